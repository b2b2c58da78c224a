// Package memory keeps the queue in process memory. A single mutex guards every
// collection, so find-and-update operations are atomic with respect to each other.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"smartq/internal/models"
	"smartq/internal/store"
)

type Store struct {
	mu         sync.Mutex
	tickets    map[string]models.Ticket
	counters   map[string]models.Counter
	activities []models.Activity
	admins     map[string]models.Admin
	callSeq    int64
}

func NewStore() *Store {
	return &Store{
		tickets:  make(map[string]models.Ticket),
		counters: make(map[string]models.Counter),
		admins:   make(map[string]models.Admin),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateTicket(ctx context.Context, ticket models.Ticket) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.ID]; exists {
		return models.Ticket{}, store.ErrDuplicate
	}
	for _, existing := range s.tickets {
		if existing.TokenDay == ticket.TokenDay && existing.TokenNumber == ticket.TokenNumber {
			return models.Ticket{}, store.ErrDuplicate
		}
	}
	s.tickets[ticket.ID] = ticket
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Store) FindTicket(ctx context.Context, filter store.TicketFilter, order store.TicketSort) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.matchTickets(filter, order)
	if len(matches) == 0 {
		return models.Ticket{}, store.ErrNoMatch
	}
	return matches[0], nil
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter, order store.TicketSort, limit int) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.matchTickets(filter, order)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) CountTickets(ctx context.Context, filter store.TicketFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ticket := range s.tickets {
		if matchTicket(ticket, filter) {
			count++
		}
	}
	return count, nil
}

func (s *Store) FindAndUpdateTicket(ctx context.Context, filter store.TicketFilter, order store.TicketSort, update store.TicketUpdate) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.matchTickets(filter, order)
	if len(matches) == 0 {
		return models.Ticket{}, store.ErrNoMatch
	}
	updated := s.applyTicketUpdate(matches[0], update)
	s.tickets[updated.ID] = updated
	return updated, nil
}

func (s *Store) UpdateTickets(ctx context.Context, filter store.TicketFilter, update store.TicketUpdate) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.matchTickets(filter, store.SortJoinedAsc)
	out := make([]models.Ticket, 0, len(matches))
	for _, ticket := range matches {
		updated := s.applyTicketUpdate(ticket, update)
		s.tickets[updated.ID] = updated
		out = append(out, updated)
	}
	return out, nil
}

func (s *Store) DeleteTicket(ctx context.Context, filter store.TicketFilter) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.matchTickets(filter, store.SortJoinedAsc)
	if len(matches) == 0 {
		return models.Ticket{}, store.ErrNoMatch
	}
	delete(s.tickets, matches[0].ID)
	return matches[0], nil
}

func (s *Store) DeleteTickets(ctx context.Context, filter store.TicketFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, ticket := range s.tickets {
		if matchTicket(ticket, filter) {
			delete(s.tickets, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) ListCounters(ctx context.Context, filter store.CounterFilter) ([]models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchCounters(filter), nil
}

func (s *Store) GetCounter(ctx context.Context, counterID string) (models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	return counter, nil
}

func (s *Store) InsertCounters(ctx context.Context, counters []models.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make(map[string]bool, len(s.counters))
	for _, existing := range s.counters {
		names[existing.Name] = true
	}
	for _, counter := range counters {
		if names[counter.Name] {
			return store.ErrDuplicate
		}
		names[counter.Name] = true
	}
	for _, counter := range counters {
		s.counters[counter.ID] = counter
	}
	return nil
}

func (s *Store) UpdateCounter(ctx context.Context, counterID string, update store.CounterUpdate) (models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[counterID]
	if !ok {
		return models.Counter{}, store.ErrCounterNotFound
	}
	counter = applyCounterUpdate(counter, update)
	s.counters[counterID] = counter
	return counter, nil
}

func (s *Store) UpdateCounters(ctx context.Context, filter store.CounterFilter, update store.CounterUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, counter := range s.matchCounters(filter) {
		s.counters[counter.ID] = applyCounterUpdate(counter, update)
		n++
	}
	return n, nil
}

func (s *Store) CreateActivity(ctx context.Context, activity models.Activity) (models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	return activity, nil
}

func (s *Store) ListActivities(ctx context.Context, filter store.ActivityFilter, limit int) ([]models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Activity, 0, limit)
	// Newest first; the slice is append-only so walking backwards keeps insertion order for ties.
	for i := len(s.activities) - 1; i >= 0; i-- {
		activity := s.activities[i]
		if len(filter.Types) > 0 && !contains(filter.Types, activity.Type) {
			continue
		}
		out = append(out, activity)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteActivities(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.activities[:0]
	var removed int64
	for _, activity := range s.activities {
		if activity.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, activity)
	}
	s.activities = kept
	return removed, nil
}

func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.admins), nil
}

func (s *Store) CreateAdmin(ctx context.Context, admin models.Admin) (models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.admins {
		if existing.Username == admin.Username {
			return models.Admin{}, store.ErrDuplicate
		}
	}
	s.admins[admin.ID] = admin
	return admin, nil
}

func (s *Store) GetAdmin(ctx context.Context, adminID string) (models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[adminID]
	if !ok {
		return models.Admin{}, store.ErrAdminNotFound
	}
	return admin, nil
}

func (s *Store) GetAdminByUsername(ctx context.Context, username string) (models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, admin := range s.admins {
		if admin.Username == username {
			return admin, nil
		}
	}
	return models.Admin{}, store.ErrAdminNotFound
}

func (s *Store) matchTickets(filter store.TicketFilter, order store.TicketSort) []models.Ticket {
	out := make([]models.Ticket, 0)
	for _, ticket := range s.tickets {
		if matchTicket(ticket, filter) {
			out = append(out, ticket)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if order == store.SortTokenDesc {
			return out[i].TokenNumber > out[j].TokenNumber
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].TokenNumber < out[j].TokenNumber
	})
	return out
}

func (s *Store) matchCounters(filter store.CounterFilter) []models.Counter {
	out := make([]models.Counter, 0, len(s.counters))
	for _, counter := range s.counters {
		if filter.ID != "" && counter.ID != filter.ID {
			continue
		}
		if filter.OnlineOnly && !counter.IsOnline() {
			continue
		}
		out = append(out, counter)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func matchTicket(t models.Ticket, f store.TicketFilter) bool {
	if f.ID != "" && t.ID != f.ID {
		return false
	}
	if f.ExcludeID != "" && t.ID == f.ExcludeID {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.ExcludeStatuses) > 0 && contains(f.ExcludeStatuses, t.Status) {
		return false
	}
	if f.CounterID != "" || f.CounterName != "" {
		byID := f.CounterID != "" && t.CounterID == f.CounterID
		byName := f.CounterName != "" && t.CounterName == f.CounterName
		if !byID && !byName {
			return false
		}
	}
	if f.JoinedBefore != nil && !t.JoinedAt.Before(*f.JoinedBefore) {
		return false
	}
	if f.JoinedFrom != nil && t.JoinedAt.Before(*f.JoinedFrom) {
		return false
	}
	if f.CalledBeforeSeq > 0 && t.CallSeq >= f.CalledBeforeSeq {
		return false
	}
	if f.HasDeviceToken && t.DeviceToken == "" {
		return false
	}
	if f.UpcomingNotified != nil && t.UpcomingNotified != *f.UpcomingNotified {
		return false
	}
	if f.ExpiresBefore != nil && t.ExpiresAt.After(*f.ExpiresBefore) {
		return false
	}
	if f.Search != "" && !matchSearch(t, f.Search) {
		return false
	}
	return true
}

func matchSearch(t models.Ticket, q string) bool {
	if token, err := strconv.Atoi(q); err == nil && token == t.TokenNumber {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(t.FullName), q) || strings.Contains(strings.ToLower(t.Phone), q)
}

// applyTicketUpdate must be called with s.mu held.
func (s *Store) applyTicketUpdate(t models.Ticket, u store.TicketUpdate) models.Ticket {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.ClearCounter {
		t.CounterID = ""
		t.CounterName = ""
	}
	if u.CounterID != nil {
		t.CounterID = *u.CounterID
	}
	if u.CounterName != nil {
		t.CounterName = *u.CounterName
	}
	if u.LastCounterID != nil {
		t.LastCounterID = *u.LastCounterID
	}
	if u.LastCounterName != nil {
		t.LastCounterName = *u.LastCounterName
	}
	if u.ClearCalledAt {
		t.CalledAt = nil
	}
	if u.CalledAt != nil {
		at := *u.CalledAt
		t.CalledAt = &at
		s.callSeq++
		t.CallSeq = s.callSeq
	}
	if u.ServedAt != nil {
		at := *u.ServedAt
		t.ServedAt = &at
	}
	if u.SkippedAt != nil {
		at := *u.SkippedAt
		t.SkippedAt = &at
	}
	if u.UpcomingNotified != nil {
		t.UpcomingNotified = *u.UpcomingNotified
	}
	if !u.UpdatedAt.IsZero() {
		t.UpdatedAt = u.UpdatedAt
	}
	return t
}

func applyCounterUpdate(c models.Counter, u store.CounterUpdate) models.Counter {
	if u.ClearNowServing {
		c.NowServingToken = nil
	}
	if u.NowServingToken != nil {
		token := *u.NowServingToken
		c.NowServingToken = &token
	}
	if u.WaitingCount != nil {
		c.WaitingCount = *u.WaitingCount
	}
	if u.Online != nil {
		online := *u.Online
		c.Online = &online
	}
	if !u.UpdatedAt.IsZero() {
		c.UpdatedAt = u.UpdatedAt
	}
	return c
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
