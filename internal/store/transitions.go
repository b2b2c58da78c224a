package store

import "smartq/internal/models"

const (
	ActionCall   = "call"
	ActionStart  = "start"
	ActionServe  = "serve"
	ActionSkip   = "skip"
	ActionRecall = "recall"
	ActionDelete = "delete"
)

var transitionMap = map[string][]string{
	ActionCall:   {models.StatusWaiting},
	ActionStart:  {models.StatusCalled},
	ActionServe:  {models.StatusCalled, models.StatusServing},
	ActionSkip:   {models.StatusWaiting, models.StatusCalled},
	ActionRecall: {models.StatusSkipped, models.StatusCalled},
	ActionDelete: {models.StatusWaiting, models.StatusCalled, models.StatusServing, models.StatusSkipped, models.StatusCancelled},
}

func ValidTransition(action, fromStatus string) bool {
	for _, status := range AllowedFrom(action) {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses an action may start from.
func AllowedFrom(action string) []string {
	allowed := transitionMap[action]
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}
