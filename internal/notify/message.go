package notify

import (
	"fmt"
	"strconv"

	"smartq/internal/models"
)

type Event string

const (
	EventCalled   Event = "called"
	EventRecalled Event = "recalled"
	EventUpcoming Event = "upcoming"
)

const defaultCounterLabel = "the counter"

// Message is one push notification addressed to a device token.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// BuildTurnMessage renders the notification text for a ticket event. The etaMinutes
// entry of extra is used by upcoming notifications; every entry is copied into Data.
func BuildTurnMessage(ticket models.Ticket, event Event, counterLabel string, extra map[string]string) Message {
	label := counterLabel
	if label == "" {
		label = ticket.CounterName
	}
	if label == "" {
		label = defaultCounterLabel
	}

	var msg Message
	switch event {
	case EventCalled:
		msg.Title = "Your turn in SmartQ"
		msg.Body = fmt.Sprintf("Token #%d called to %s.", ticket.TokenNumber, label)
	case EventRecalled:
		msg.Title = "Reminder from SmartQ"
		msg.Body = fmt.Sprintf("Reminder: Token #%d at %s.", ticket.TokenNumber, label)
	case EventUpcoming:
		msg.Title = "Your turn is coming up"
		msg.Body = fmt.Sprintf("Token #%d will be called soon.", ticket.TokenNumber)
		if eta := extra["etaMinutes"]; eta != "" {
			msg.Body = fmt.Sprintf("Token #%d will be called soon. Estimated wait ~%s minutes. Please stay nearby.", ticket.TokenNumber, eta)
		}
	default:
		msg.Title = "SmartQ update"
		msg.Body = fmt.Sprintf("Update for token #%d.", ticket.TokenNumber)
	}

	msg.Data = map[string]string{
		"ticketId":    ticket.ID,
		"tokenNumber": strconv.Itoa(ticket.TokenNumber),
		"status":      ticket.Status,
		"eventType":   string(event),
	}
	if label != defaultCounterLabel {
		msg.Data["counterName"] = label
	}
	for k, v := range extra {
		msg.Data[k] = v
	}
	return msg
}
