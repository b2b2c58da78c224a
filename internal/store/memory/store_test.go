package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartq/internal/models"
	"smartq/internal/store"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTicket(id string, token int, offset time.Duration) models.Ticket {
	joined := base.Add(offset)
	return models.Ticket{
		ID:          id,
		FullName:    "Guest " + id,
		TokenNumber: token,
		TokenDay:    joined.Format("2006-01-02"),
		Status:      models.StatusWaiting,
		JoinedAt:    joined,
		ExpiresAt:   joined.Add(48 * time.Hour),
		CreatedAt:   joined,
		UpdatedAt:   joined,
	}
}

func seed(t *testing.T, st *Store, tickets ...models.Ticket) {
	t.Helper()
	for _, ticket := range tickets {
		if _, err := st.CreateTicket(context.Background(), ticket); err != nil {
			t.Fatalf("create %s: %v", ticket.ID, err)
		}
	}
}

func TestCreateTicketRejectsDuplicateToken(t *testing.T) {
	st := NewStore()
	seed(t, st, newTicket("a", 1, 0))

	if _, err := st.CreateTicket(context.Background(), newTicket("b", 1, time.Minute)); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	nextDay := newTicket("c", 1, 24*time.Hour)
	if _, err := st.CreateTicket(context.Background(), nextDay); err != nil {
		t.Fatalf("token 1 on a new day should be accepted: %v", err)
	}
}

func TestFindAndUpdateTicketOrderAndSequence(t *testing.T) {
	st := NewStore()
	seed(t, st, newTicket("late", 2, 2*time.Minute), newTicket("early", 1, time.Minute))
	status := models.StatusCalled
	now := base.Add(time.Hour)
	update := store.TicketUpdate{Status: &status, CalledAt: &now}

	first, err := st.FindAndUpdateTicket(context.Background(), store.TicketFilter{Statuses: []string{models.StatusWaiting}}, store.SortJoinedAsc, update)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	second, err := st.FindAndUpdateTicket(context.Background(), store.TicketFilter{Statuses: []string{models.StatusWaiting}}, store.SortJoinedAsc, update)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if first.ID != "early" || second.ID != "late" {
		t.Fatalf("expected FIFO claims, got %s then %s", first.ID, second.ID)
	}
	if second.CallSeq <= first.CallSeq {
		t.Fatalf("expected increasing call sequence, got %d then %d", first.CallSeq, second.CallSeq)
	}
	if _, err := st.FindAndUpdateTicket(context.Background(), store.TicketFilter{Statuses: []string{models.StatusWaiting}}, store.SortJoinedAsc, update); !errors.Is(err, store.ErrNoMatch) {
		t.Fatalf("expected no match, got %v", err)
	}
}

func TestFindAndUpdateTicketConcurrentClaims(t *testing.T) {
	st := NewStore()
	for i := 1; i <= 20; i++ {
		seed(t, st, newTicket(string(rune('a'+i)), i, time.Duration(i)*time.Second))
	}
	status := models.StatusCalled
	now := base.Add(time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := map[string]int{}
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := st.FindAndUpdateTicket(context.Background(),
				store.TicketFilter{Statuses: []string{models.StatusWaiting}},
				store.SortJoinedAsc,
				store.TicketUpdate{Status: &status, CalledAt: &now},
			)
			if err != nil {
				return
			}
			mu.Lock()
			claimed[ticket.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(claimed) != 20 {
		t.Fatalf("expected 20 distinct claims, got %d", len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("ticket %s claimed %d times", id, n)
		}
	}
}

func TestTicketFilters(t *testing.T) {
	st := NewStore()
	bound := newTicket("bound", 3, 3*time.Minute)
	bound.Status = models.StatusCalled
	bound.CounterName = "Counter 2"
	device := newTicket("device", 4, 4*time.Minute)
	device.DeviceToken = "push-token"
	device.Phone = "+1 555 0100"
	seed(t, st, newTicket("one", 1, time.Minute), newTicket("two", 2, 2*time.Minute), bound, device)

	cutoff := base.Add(2 * time.Minute)
	cases := []struct {
		name   string
		filter store.TicketFilter
		want   []string
	}{
		{"joined before", store.TicketFilter{JoinedBefore: &cutoff}, []string{"one"}},
		{"joined from", store.TicketFilter{JoinedFrom: &cutoff}, []string{"two", "bound", "device"}},
		{"counter by name only", store.TicketFilter{CounterID: "missing", CounterName: "Counter 2"}, []string{"bound"}},
		{"exclude statuses", store.TicketFilter{ExcludeStatuses: []string{models.StatusWaiting}}, []string{"bound"}},
		{"device token", store.TicketFilter{HasDeviceToken: true}, []string{"device"}},
		{"search token", store.TicketFilter{Search: "2"}, []string{"two"}},
		{"search phone", store.TicketFilter{Search: "555"}, []string{"device"}},
		{"search name", store.TicketFilter{Search: "GUEST ON"}, []string{"one"}},
		{"exclude id", store.TicketFilter{Statuses: []string{models.StatusWaiting}, ExcludeID: "one"}, []string{"two", "device"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := st.ListTickets(context.Background(), tc.filter, store.SortJoinedAsc, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %d tickets", tc.want, len(got))
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestUpdateClearsBindingBeforeSettingIt(t *testing.T) {
	st := NewStore()
	ticket := newTicket("a", 1, 0)
	ticket.CounterID = "c1"
	ticket.CounterName = "Counter 1"
	seed(t, st, ticket)

	id := "c2"
	updated, err := st.UpdateTickets(context.Background(), store.TicketFilter{ID: "a"}, store.TicketUpdate{ClearCounter: true, CounterID: &id})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated) != 1 || updated[0].CounterID != "c2" || updated[0].CounterName != "" {
		t.Fatalf("unexpected binding: %+v", updated)
	}
}

func TestCountersSortedAndUnique(t *testing.T) {
	st := NewStore()
	offline := false
	err := st.InsertCounters(context.Background(), []models.Counter{
		{ID: "2", Name: "Counter 2", CreatedAt: base.Add(time.Millisecond)},
		{ID: "1", Name: "Counter 1", CreatedAt: base},
		{ID: "3", Name: "Counter 3", Online: &offline, CreatedAt: base.Add(2 * time.Millisecond)},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.InsertCounters(context.Background(), []models.Counter{{ID: "4", Name: "Counter 1"}}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate name, got %v", err)
	}

	online, err := st.ListCounters(context.Background(), store.CounterFilter{OnlineOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(online) != 2 || online[0].ID != "1" || online[1].ID != "2" {
		t.Fatalf("unexpected online counters: %+v", online)
	}

	token := 7
	if _, err := st.UpdateCounter(context.Background(), "1", store.CounterUpdate{NowServingToken: &token}); err != nil {
		t.Fatalf("update: %v", err)
	}
	cleared, err := st.UpdateCounter(context.Background(), "1", store.CounterUpdate{ClearNowServing: true})
	if err != nil || cleared.NowServingToken != nil {
		t.Fatalf("expected cleared token, got %+v (%v)", cleared, err)
	}
	if _, err := st.UpdateCounter(context.Background(), "missing", store.CounterUpdate{}); !errors.Is(err, store.ErrCounterNotFound) {
		t.Fatalf("expected counter not found, got %v", err)
	}
}

func TestActivitiesNewestFirst(t *testing.T) {
	st := NewStore()
	for i, kind := range []string{models.ActivityJoined, models.ActivityCalled, models.ActivityCalled} {
		_, _ = st.CreateActivity(context.Background(), models.Activity{
			ID: kind + string(rune('0'+i)), Type: kind, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	called, err := st.ListActivities(context.Background(), store.ActivityFilter{Types: []string{models.ActivityCalled}}, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(called) != 1 || called[0].ID != "called2" {
		t.Fatalf("unexpected activities: %+v", called)
	}
	removed, err := st.DeleteActivities(context.Background(), base.Add(90*time.Second))
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed, got %d (%v)", removed, err)
	}
}

func TestAdmins(t *testing.T) {
	st := NewStore()
	if _, err := st.CreateAdmin(context.Background(), models.Admin{ID: "1", Username: "desk"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateAdmin(context.Background(), models.Admin{ID: "2", Username: "desk"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if n, _ := st.CountAdmins(context.Background()); n != 1 {
		t.Fatalf("expected 1 admin, got %d", n)
	}
	if _, err := st.GetAdminByUsername(context.Background(), "other"); !errors.Is(err, store.ErrAdminNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
