package queue

// Real-time event names broadcast after state changes.
const (
	EventTicketJoined    = "ticket:joined"
	EventTicketCalled    = "ticket:called"
	EventTicketUpdated   = "ticket:updated"
	EventTicketRecalled  = "ticket:recalled"
	EventTicketDeleted   = "ticket:deleted"
	EventCountersUpdated = "counters:updated"
	EventActivityCreated = "activity:created"
)
