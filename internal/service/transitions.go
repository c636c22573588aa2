package service

import (
	"fmt"

	"pathpatrol/internal/model"
)

// transitions lists the statuses reachable from each status. Staying in the
// same status is always allowed.
var transitions = map[model.ComplaintStatus][]model.ComplaintStatus{
	model.StatusPending:    {model.StatusInProgress, model.StatusResolved, model.StatusRejected},
	model.StatusInProgress: {model.StatusResolved, model.StatusRejected},
	model.StatusResolved:   {model.StatusRejected},
	model.StatusRejected:   {},
}

func CanTransition(from, to model.ComplaintStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to model.ComplaintStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", model.ErrValidation, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, from, to)
	}
	return nil
}
