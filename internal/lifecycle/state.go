package lifecycle

import (
	"fmt"

	"finserv-applications/internal/models"
)

// transitions is the single source of truth for allowed status edges.
// Approved -> Rejected is the post-approval reversal admins use when fraud
// or a documentation problem surfaces after approval.
var transitions = map[models.Status][]models.Status{
	models.StatusPending:     {models.StatusUnderReview, models.StatusApproved, models.StatusRejected},
	models.StatusUnderReview: {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:    {models.StatusDisbursed, models.StatusRejected},
	models.StatusRejected:    nil,
	models.StatusDisbursed:   nil,
}

// AllowedNext returns the statuses reachable from current in one step.
func AllowedNext(current models.Status) []models.Status {
	next := transitions[current]
	out := make([]models.Status, len(next))
	copy(out, next)
	return out
}

func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.Status) bool {
	return s.Valid() && len(transitions[s]) == 0
}

// ValidateHistory checks that history starts at Pending and every step is an
// allowed edge.
func ValidateHistory(history []models.StatusChange) error {
	if len(history) == 0 {
		return fmt.Errorf("status history is empty")
	}
	if history[0].Status != models.StatusPending {
		return fmt.Errorf("status history starts at %s", history[0].Status)
	}
	for i := 1; i < len(history); i++ {
		from, to := history[i-1].Status, history[i].Status
		if !CanTransition(from, to) {
			return fmt.Errorf("status history step %d: %s -> %s is not allowed", i, from, to)
		}
	}
	return nil
}
