// Package postgres persists the queue in PostgreSQL through pgx. Row claims use
// FOR UPDATE SKIP LOCKED so concurrent callers never receive the same ticket.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartq/internal/models"
	"smartq/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) CreateTicket(ctx context.Context, ticket models.Ticket) (models.Ticket, error) {
	day, err := time.Parse("2006-01-02", ticket.TokenDay)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("parse token day: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tickets (ticket_id, full_name, phone, token_number, token_day, status,
			counter_id, counter_name, service_key, service_label, service_note, device_token,
			upcoming_notified, joined_at, called_at, served_at, skipped_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING `+ticketColumns(""),
		ticket.ID, ticket.FullName, ticket.Phone, ticket.TokenNumber, day, ticket.Status,
		nullIfEmpty(ticket.CounterID), ticket.CounterName, ticket.ServiceKey, ticket.ServiceLabel, ticket.ServiceNote,
		ticket.DeviceToken, ticket.UpcomingNotified, ticket.JoinedAt, ticket.CalledAt, ticket.ServedAt,
		ticket.SkippedAt, ticket.ExpiresAt, ticket.CreatedAt, ticket.UpdatedAt,
	)
	created, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns("")+` FROM tickets WHERE ticket_id = $1`, ticketID)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, err
}

func (s *Store) FindTicket(ctx context.Context, filter store.TicketFilter, order store.TicketSort) (models.Ticket, error) {
	tickets, err := s.ListTickets(ctx, filter, order, 1)
	if err != nil {
		return models.Ticket{}, err
	}
	if len(tickets) == 0 {
		return models.Ticket{}, store.ErrNoMatch
	}
	return tickets[0], nil
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter, order store.TicketSort, limit int) ([]models.Ticket, error) {
	args := &queryArgs{}
	query := `SELECT ` + ticketColumns("") + ` FROM tickets WHERE ` + ticketWhere(filter, args) + ` ORDER BY ` + ticketOrder(order)
	if limit > 0 {
		query += ` LIMIT ` + args.add(limit)
	}
	rows, err := s.pool.Query(ctx, query, args.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Store) CountTickets(ctx context.Context, filter store.TicketFilter) (int, error) {
	args := &queryArgs{}
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+ticketWhere(filter, args), args.values...).Scan(&count)
	return count, err
}

// FindAndUpdateTicket claims the first matching row. Queue claims without an id skip
// rows another transaction holds; updates of a named ticket wait for the lock instead.
func (s *Store) FindAndUpdateTicket(ctx context.Context, filter store.TicketFilter, order store.TicketSort, update store.TicketUpdate) (models.Ticket, error) {
	args := &queryArgs{}
	where := ticketWhere(filter, args)
	set := ticketSet(update, args)
	lock := "FOR UPDATE SKIP LOCKED"
	if filter.ID != "" {
		lock = "FOR UPDATE"
	}
	query := `
		WITH target AS (
			SELECT ticket_id FROM tickets
			WHERE ` + where + `
			ORDER BY ` + ticketOrder(order) + `
			LIMIT 1
			` + lock + `
		)
		UPDATE tickets SET ` + set + `
		FROM target
		WHERE tickets.ticket_id = target.ticket_id
		RETURNING ` + ticketColumns("tickets.")
	ticket, err := scanTicket(s.pool.QueryRow(ctx, query, args.values...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrNoMatch
	}
	if err != nil {
		return models.Ticket{}, mapWriteError(err)
	}
	return ticket, nil
}

func (s *Store) UpdateTickets(ctx context.Context, filter store.TicketFilter, update store.TicketUpdate) ([]models.Ticket, error) {
	args := &queryArgs{}
	where := ticketWhere(filter, args)
	set := ticketSet(update, args)
	rows, err := s.pool.Query(ctx, `UPDATE tickets SET `+set+` WHERE `+where+` RETURNING `+ticketColumns(""), args.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Store) DeleteTicket(ctx context.Context, filter store.TicketFilter) (models.Ticket, error) {
	args := &queryArgs{}
	query := `
		DELETE FROM tickets
		WHERE ticket_id = (
			SELECT ticket_id FROM tickets
			WHERE ` + ticketWhere(filter, args) + `
			ORDER BY ` + ticketOrder(store.SortJoinedAsc) + `
			LIMIT 1
			FOR UPDATE
		)
		RETURNING ` + ticketColumns("")
	ticket, err := scanTicket(s.pool.QueryRow(ctx, query, args.values...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrNoMatch
	}
	return ticket, err
}

func (s *Store) DeleteTickets(ctx context.Context, filter store.TicketFilter) (int64, error) {
	args := &queryArgs{}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tickets WHERE `+ticketWhere(filter, args), args.values...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListCounters(ctx context.Context, filter store.CounterFilter) ([]models.Counter, error) {
	args := &queryArgs{}
	rows, err := s.pool.Query(ctx, `SELECT `+counterColumns+` FROM counters WHERE `+counterWhere(filter, args)+` ORDER BY created_at ASC, name ASC`, args.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counters := make([]models.Counter, 0)
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	return counters, rows.Err()
}

func (s *Store) GetCounter(ctx context.Context, counterID string) (models.Counter, error) {
	counter, err := scanCounter(s.pool.QueryRow(ctx, `SELECT `+counterColumns+` FROM counters WHERE counter_id = $1`, counterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Counter{}, store.ErrCounterNotFound
	}
	return counter, err
}

func (s *Store) InsertCounters(ctx context.Context, counters []models.Counter) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, counter := range counters {
		_, err = tx.Exec(ctx, `
			INSERT INTO counters (counter_id, name, now_serving_token, waiting_count, avg_seconds_per_ticket, online, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			counter.ID, counter.Name, counter.NowServingToken, counter.WaitingCount,
			counter.AvgSecondsPerTicket, counter.Online, counter.CreatedAt, counter.UpdatedAt,
		)
		if err != nil {
			err = mapWriteError(err)
			return err
		}
	}
	err = tx.Commit(ctx)
	return err
}

func (s *Store) UpdateCounter(ctx context.Context, counterID string, update store.CounterUpdate) (models.Counter, error) {
	args := &queryArgs{}
	set := counterSet(update, args)
	query := `UPDATE counters SET ` + set + ` WHERE counter_id = ` + args.add(counterID) + ` RETURNING ` + counterColumns
	counter, err := scanCounter(s.pool.QueryRow(ctx, query, args.values...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Counter{}, store.ErrCounterNotFound
	}
	return counter, err
}

func (s *Store) UpdateCounters(ctx context.Context, filter store.CounterFilter, update store.CounterUpdate) (int64, error) {
	args := &queryArgs{}
	set := counterSet(update, args)
	tag, err := s.pool.Exec(ctx, `UPDATE counters SET `+set+` WHERE `+counterWhere(filter, args), args.values...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CreateActivity(ctx context.Context, activity models.Activity) (models.Activity, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activities (activity_id, type, message, ticket_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		activity.ID, activity.Type, activity.Message, nullIfEmpty(activity.TicketID), activity.CreatedAt,
	)
	if err != nil {
		return models.Activity{}, mapWriteError(err)
	}
	return activity, nil
}

func (s *Store) ListActivities(ctx context.Context, filter store.ActivityFilter, limit int) ([]models.Activity, error) {
	args := &queryArgs{}
	query := `SELECT ` + activityColumns + ` FROM activities`
	if len(filter.Types) > 0 {
		query += ` WHERE type = ANY(` + args.add(filter.Types) + `)`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ` + args.add(limit)
	}
	rows, err := s.pool.Query(ctx, query, args.values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]models.Activity, 0)
	for rows.Next() {
		var activity models.Activity
		var ticketID sql.NullString
		if err := rows.Scan(&activity.ID, &activity.Type, &activity.Message, &ticketID, &activity.CreatedAt); err != nil {
			return nil, err
		}
		activity.TicketID = ticketID.String
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

func (s *Store) DeleteActivities(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM activities WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count)
	return count, err
}

func (s *Store) CreateAdmin(ctx context.Context, admin models.Admin) (models.Admin, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admins (admin_id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		admin.ID, admin.Username, admin.PasswordHash, admin.CreatedAt,
	)
	if err != nil {
		return models.Admin{}, mapWriteError(err)
	}
	return admin, nil
}

func (s *Store) GetAdmin(ctx context.Context, adminID string) (models.Admin, error) {
	return s.getAdmin(ctx, `admin_id = $1`, adminID)
}

func (s *Store) GetAdminByUsername(ctx context.Context, username string) (models.Admin, error) {
	return s.getAdmin(ctx, `username = $1`, username)
}

func (s *Store) getAdmin(ctx context.Context, where string, value string) (models.Admin, error) {
	var admin models.Admin
	err := s.pool.QueryRow(ctx, `SELECT admin_id, username, password_hash, created_at FROM admins WHERE `+where, value).
		Scan(&admin.ID, &admin.Username, &admin.PasswordHash, &admin.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Admin{}, store.ErrAdminNotFound
	}
	return admin, err
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var tokenDay time.Time
	var counterID sql.NullString
	var calledAt, servedAt, skippedAt sql.NullTime
	err := row.Scan(
		&ticket.ID,
		&ticket.FullName,
		&ticket.Phone,
		&ticket.TokenNumber,
		&tokenDay,
		&ticket.Status,
		&counterID,
		&ticket.CounterName,
		&ticket.ServiceKey,
		&ticket.ServiceLabel,
		&ticket.ServiceNote,
		&ticket.DeviceToken,
		&ticket.UpcomingNotified,
		&ticket.JoinedAt,
		&calledAt,
		&ticket.CallSeq,
		&servedAt,
		&skippedAt,
		&ticket.ExpiresAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.LastCounterID,
		&ticket.LastCounterName,
	)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.TokenDay = tokenDay.Format("2006-01-02")
	ticket.CounterID = counterID.String
	ticket.CalledAt = nullTimePtr(calledAt)
	ticket.ServedAt = nullTimePtr(servedAt)
	ticket.SkippedAt = nullTimePtr(skippedAt)
	return ticket, nil
}

func scanCounter(row rowScanner) (models.Counter, error) {
	var counter models.Counter
	var nowServing sql.NullInt64
	var online sql.NullBool
	err := row.Scan(
		&counter.ID,
		&counter.Name,
		&nowServing,
		&counter.WaitingCount,
		&counter.AvgSecondsPerTicket,
		&online,
		&counter.CreatedAt,
		&counter.UpdatedAt,
	)
	if err != nil {
		return models.Counter{}, err
	}
	if nowServing.Valid {
		token := int(nowServing.Int64)
		counter.NowServingToken = &token
	}
	if online.Valid {
		value := online.Bool
		counter.Online = &value
	}
	return counter, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
