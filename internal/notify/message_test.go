package notify

import (
	"testing"

	"smartq/internal/models"
)

func TestBuildTurnMessage(t *testing.T) {
	ticket := models.Ticket{ID: "t-1", TokenNumber: 12, Status: models.StatusCalled, CounterName: "Counter 2"}

	cases := []struct {
		name         string
		event        Event
		counterLabel string
		extra        map[string]string
		title        string
		body         string
	}{
		{"called uses ticket counter", EventCalled, "", nil, "Your turn in SmartQ", "Token #12 called to Counter 2."},
		{"called prefers explicit label", EventCalled, "Desk A", nil, "Your turn in SmartQ", "Token #12 called to Desk A."},
		{"recalled", EventRecalled, "", nil, "Reminder from SmartQ", "Reminder: Token #12 at Counter 2."},
		{"upcoming with eta", EventUpcoming, "", map[string]string{"etaMinutes": "8"}, "Your turn is coming up", "Token #12 will be called soon. Estimated wait ~8 minutes. Please stay nearby."},
		{"upcoming without eta", EventUpcoming, "", nil, "Your turn is coming up", "Token #12 will be called soon."},
		{"unknown event", Event("moved"), "", nil, "SmartQ update", "Update for token #12."},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			msg := BuildTurnMessage(ticket, tt.event, tt.counterLabel, tt.extra)
			if msg.Title != tt.title || msg.Body != tt.body {
				t.Fatalf("got %q / %q", msg.Title, msg.Body)
			}
			if msg.Data["ticketId"] != "t-1" || msg.Data["tokenNumber"] != "12" || msg.Data["eventType"] != string(tt.event) {
				t.Fatalf("unexpected data %v", msg.Data)
			}
		})
	}
}

func TestBuildTurnMessageDefaultCounterLabel(t *testing.T) {
	msg := BuildTurnMessage(models.Ticket{TokenNumber: 3}, EventCalled, "", nil)
	if msg.Body != "Token #3 called to the counter." {
		t.Fatalf("unexpected body %q", msg.Body)
	}
	if _, ok := msg.Data["counterName"]; ok {
		t.Fatalf("expected no counterName in data")
	}
}
