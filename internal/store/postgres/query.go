package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"smartq/internal/store"
)

// queryArgs collects positional parameters while a statement is assembled.
type queryArgs struct {
	values []interface{}
}

func (a *queryArgs) add(value interface{}) string {
	a.values = append(a.values, value)
	return fmt.Sprintf("$%d", len(a.values))
}

var ticketFields = []string{
	"ticket_id", "full_name", "phone", "token_number", "token_day", "status",
	"counter_id", "counter_name", "service_key", "service_label", "service_note",
	"device_token", "upcoming_notified", "joined_at", "called_at", "call_seq",
	"served_at", "skipped_at", "expires_at", "created_at", "updated_at",
	"last_counter_id", "last_counter_name",
}

func ticketColumns(prefix string) string {
	cols := make([]string, len(ticketFields))
	for i, field := range ticketFields {
		cols[i] = prefix + field
	}
	return strings.Join(cols, ", ")
}

const counterColumns = `counter_id, name, now_serving_token, waiting_count, avg_seconds_per_ticket, online, created_at, updated_at`

const activityColumns = `activity_id, type, message, ticket_id, created_at`

func ticketWhere(f store.TicketFilter, args *queryArgs) string {
	clauses := []string{"TRUE"}
	if f.ID != "" {
		clauses = append(clauses, "ticket_id = "+args.add(f.ID))
	}
	if f.ExcludeID != "" {
		clauses = append(clauses, "ticket_id <> "+args.add(f.ExcludeID))
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status = ANY("+args.add(f.Statuses)+")")
	}
	if len(f.ExcludeStatuses) > 0 {
		clauses = append(clauses, "NOT (status = ANY("+args.add(f.ExcludeStatuses)+"))")
	}
	switch {
	case f.CounterID != "" && f.CounterName != "":
		clauses = append(clauses, "(counter_id = "+args.add(f.CounterID)+" OR counter_name = "+args.add(f.CounterName)+")")
	case f.CounterID != "":
		clauses = append(clauses, "counter_id = "+args.add(f.CounterID))
	case f.CounterName != "":
		clauses = append(clauses, "counter_name = "+args.add(f.CounterName))
	}
	if f.JoinedBefore != nil {
		clauses = append(clauses, "joined_at < "+args.add(*f.JoinedBefore))
	}
	if f.JoinedFrom != nil {
		clauses = append(clauses, "joined_at >= "+args.add(*f.JoinedFrom))
	}
	if f.CalledBeforeSeq > 0 {
		clauses = append(clauses, "call_seq < "+args.add(f.CalledBeforeSeq))
	}
	if f.HasDeviceToken {
		clauses = append(clauses, "device_token <> ''")
	}
	if f.UpcomingNotified != nil {
		clauses = append(clauses, "upcoming_notified = "+args.add(*f.UpcomingNotified))
	}
	if f.ExpiresBefore != nil {
		clauses = append(clauses, "expires_at <= "+args.add(*f.ExpiresBefore))
	}
	if f.Search != "" {
		pattern := args.add("%" + escapeLike(f.Search) + "%")
		search := "full_name ILIKE " + pattern + " OR phone ILIKE " + pattern
		if token, err := strconv.Atoi(f.Search); err == nil {
			search += " OR token_number = " + args.add(token)
		}
		clauses = append(clauses, "("+search+")")
	}
	return strings.Join(clauses, " AND ")
}

func ticketOrder(order store.TicketSort) string {
	if order == store.SortTokenDesc {
		return "token_number DESC, joined_at DESC"
	}
	return "joined_at ASC, token_number ASC"
}

func ticketSet(u store.TicketUpdate, args *queryArgs) string {
	var sets []string
	if u.Status != nil {
		sets = append(sets, "status = "+args.add(*u.Status))
	}
	switch {
	case u.CounterID != nil:
		sets = append(sets, "counter_id = "+args.add(nullIfEmpty(*u.CounterID)))
	case u.ClearCounter:
		sets = append(sets, "counter_id = NULL")
	}
	switch {
	case u.CounterName != nil:
		sets = append(sets, "counter_name = "+args.add(*u.CounterName))
	case u.ClearCounter:
		sets = append(sets, "counter_name = ''")
	}
	if u.LastCounterID != nil {
		sets = append(sets, "last_counter_id = "+args.add(*u.LastCounterID))
	}
	if u.LastCounterName != nil {
		sets = append(sets, "last_counter_name = "+args.add(*u.LastCounterName))
	}
	switch {
	case u.CalledAt != nil:
		sets = append(sets, "called_at = "+args.add(*u.CalledAt), "call_seq = nextval('ticket_call_seq')")
	case u.ClearCalledAt:
		sets = append(sets, "called_at = NULL")
	}
	if u.ServedAt != nil {
		sets = append(sets, "served_at = "+args.add(*u.ServedAt))
	}
	if u.SkippedAt != nil {
		sets = append(sets, "skipped_at = "+args.add(*u.SkippedAt))
	}
	if u.UpcomingNotified != nil {
		sets = append(sets, "upcoming_notified = "+args.add(*u.UpcomingNotified))
	}
	if u.UpdatedAt.IsZero() {
		sets = append(sets, "updated_at = now()")
	} else {
		sets = append(sets, "updated_at = "+args.add(u.UpdatedAt))
	}
	return strings.Join(sets, ", ")
}

func counterWhere(f store.CounterFilter, args *queryArgs) string {
	clauses := []string{"TRUE"}
	if f.ID != "" {
		clauses = append(clauses, "counter_id = "+args.add(f.ID))
	}
	if f.OnlineOnly {
		clauses = append(clauses, "COALESCE(online, TRUE)")
	}
	return strings.Join(clauses, " AND ")
}

func counterSet(u store.CounterUpdate, args *queryArgs) string {
	var sets []string
	switch {
	case u.NowServingToken != nil:
		sets = append(sets, "now_serving_token = "+args.add(*u.NowServingToken))
	case u.ClearNowServing:
		sets = append(sets, "now_serving_token = NULL")
	}
	if u.WaitingCount != nil {
		sets = append(sets, "waiting_count = "+args.add(*u.WaitingCount))
	}
	if u.Online != nil {
		sets = append(sets, "online = "+args.add(*u.Online))
	}
	if u.UpdatedAt.IsZero() {
		sets = append(sets, "updated_at = now()")
	} else {
		sets = append(sets, "updated_at = "+args.add(u.UpdatedAt))
	}
	return strings.Join(sets, ", ")
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
