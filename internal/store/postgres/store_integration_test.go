package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"smartq/internal/models"
	"smartq/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestFindAndUpdateTicketConcurrency(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 1; i <= 2; i++ {
		createTicket(t, ctx, st, i, base.Add(time.Duration(i)*time.Second))
	}

	var wg sync.WaitGroup
	results := make(chan claimResult, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := st.FindAndUpdateTicket(ctx,
				store.TicketFilter{Statuses: []string{models.StatusWaiting}},
				store.SortJoinedAsc,
				callUpdate(time.Now()),
			)
			results <- claimResult{ticketID: ticket.ID, err: err}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	misses := 0
	for result := range results {
		if errors.Is(result.err, store.ErrNoMatch) {
			misses++
			continue
		}
		if result.err != nil {
			t.Fatalf("claim error: %v", result.err)
		}
		if seen[result.ticketID] {
			t.Fatalf("ticket %s claimed twice", result.ticketID)
		}
		seen[result.ticketID] = true
	}
	if len(seen) != 2 || misses != 1 {
		t.Fatalf("expected 2 claims and 1 miss, got %d claims and %d misses", len(seen), misses)
	}
}

func TestCreateTicketDuplicateToken(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	now := time.Now().UTC()
	createTicket(t, ctx, st, 1, now)

	_, err := st.CreateTicket(ctx, newTicket(1, now))
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestCallSequenceAndCounterFilters(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	now := time.Now().UTC().Truncate(time.Second)
	online := true
	if err := st.InsertCounters(ctx, []models.Counter{
		{ID: uuid.NewString(), Name: "Counter 1", AvgSecondsPerTicket: 240, Online: &online, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), Name: "Counter 2", AvgSecondsPerTicket: 240, CreatedAt: now.Add(time.Millisecond), UpdatedAt: now},
	}); err != nil {
		t.Fatalf("insert counters: %v", err)
	}
	counters, err := st.ListCounters(ctx, store.CounterFilter{OnlineOnly: true})
	if err != nil {
		t.Fatalf("list counters: %v", err)
	}
	if len(counters) != 2 || counters[0].Name != "Counter 1" || counters[1].Online != nil {
		t.Fatalf("unexpected counters: %+v", counters)
	}

	first := createTicket(t, ctx, st, 1, now)
	second := createTicket(t, ctx, st, 2, now.Add(time.Second))
	update := callUpdate(now)
	update.CounterID = &counters[0].ID
	update.CounterName = &counters[0].Name

	a, err := st.FindAndUpdateTicket(ctx, store.TicketFilter{ID: first.ID}, store.SortJoinedAsc, update)
	if err != nil {
		t.Fatalf("call first: %v", err)
	}
	b, err := st.FindAndUpdateTicket(ctx, store.TicketFilter{ID: second.ID}, store.SortJoinedAsc, update)
	if err != nil {
		t.Fatalf("call second: %v", err)
	}
	if a.CallSeq == 0 || b.CallSeq <= a.CallSeq {
		t.Fatalf("expected increasing call sequence, got %d then %d", a.CallSeq, b.CallSeq)
	}

	earlier, err := st.ListTickets(ctx, store.TicketFilter{
		Statuses:        []string{models.StatusCalled},
		CounterName:     counters[0].Name,
		CalledBeforeSeq: b.CallSeq,
	}, store.SortJoinedAsc, 0)
	if err != nil {
		t.Fatalf("list earlier: %v", err)
	}
	if len(earlier) != 1 || earlier[0].ID != first.ID {
		t.Fatalf("expected only the first call, got %+v", earlier)
	}

	cleared, err := st.UpdateTickets(ctx, store.TicketFilter{ID: first.ID}, store.TicketUpdate{ClearCounter: true, ClearCalledAt: true})
	if err != nil {
		t.Fatalf("clear binding: %v", err)
	}
	if len(cleared) != 1 || cleared[0].CounterID != "" || cleared[0].CounterName != "" || cleared[0].CalledAt != nil {
		t.Fatalf("binding not cleared: %+v", cleared)
	}
}

func TestSearchAndDelete(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	now := time.Now().UTC()
	createTicket(t, ctx, st, 7, now)
	other := newTicket(8, now.Add(time.Second))
	other.FullName = "Bob_Stone"
	if _, err := st.CreateTicket(ctx, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	byToken, err := st.ListTickets(ctx, store.TicketFilter{Search: "7"}, store.SortJoinedAsc, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(byToken) != 1 || byToken[0].TokenNumber != 7 {
		t.Fatalf("unexpected token search result: %+v", byToken)
	}
	literal, err := st.ListTickets(ctx, store.TicketFilter{Search: "b_s"}, store.SortJoinedAsc, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(literal) != 1 || literal[0].ID != other.ID {
		t.Fatalf("unexpected name search result: %+v", literal)
	}

	if _, err := st.DeleteTicket(ctx, store.TicketFilter{ID: other.ID, Statuses: []string{models.StatusServed}}); !errors.Is(err, store.ErrNoMatch) {
		t.Fatalf("expected no match, got %v", err)
	}
	deleted, err := st.DeleteTicket(ctx, store.TicketFilter{ID: other.ID})
	if err != nil || deleted.ID != other.ID {
		t.Fatalf("delete: %v %+v", err, deleted)
	}
	if _, err := st.GetTicket(ctx, other.ID); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdminsAndActivities(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	now := time.Now().UTC()
	admin := models.Admin{ID: uuid.NewString(), Username: "frontdesk", PasswordHash: "hash", CreatedAt: now}
	if _, err := st.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	admin.ID = uuid.NewString()
	if _, err := st.CreateAdmin(ctx, admin); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	found, err := st.GetAdminByUsername(ctx, "frontdesk")
	if err != nil || found.PasswordHash != "hash" {
		t.Fatalf("get admin: %v %+v", err, found)
	}

	for i, kind := range []string{models.ActivityJoined, models.ActivityCalled, models.ActivityCalled} {
		if _, err := st.CreateActivity(ctx, models.Activity{
			ID: uuid.NewString(), Type: kind, Message: kind, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("create activity: %v", err)
		}
	}
	called, err := st.ListActivities(ctx, store.ActivityFilter{Types: []string{models.ActivityCalled}}, 10)
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(called) != 2 || !called[0].CreatedAt.After(called[1].CreatedAt) {
		t.Fatalf("expected newest-first called activities, got %+v", called)
	}
	removed, err := st.DeleteActivities(ctx, now.Add(1500*time.Millisecond))
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d (%v)", removed, err)
	}
}

type claimResult struct {
	ticketID string
	err      error
}

func callUpdate(at time.Time) store.TicketUpdate {
	status := models.StatusCalled
	return store.TicketUpdate{Status: &status, CalledAt: &at, UpdatedAt: at}
}

func newTicket(token int, joinedAt time.Time) models.Ticket {
	return models.Ticket{
		ID:          uuid.NewString(),
		FullName:    "Guest",
		TokenNumber: token,
		TokenDay:    joinedAt.Format("2006-01-02"),
		Status:      models.StatusWaiting,
		JoinedAt:    joinedAt,
		ExpiresAt:   joinedAt.Add(48 * time.Hour),
		CreatedAt:   joinedAt,
		UpdatedAt:   joinedAt,
	}
}

func createTicket(t *testing.T, ctx context.Context, st *Store, token int, joinedAt time.Time) models.Ticket {
	t.Helper()
	ticket, err := st.CreateTicket(ctx, newTicket(token, joinedAt))
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return NewStore(pool), cleanup
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}
