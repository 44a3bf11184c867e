package warranties

import (
	"fmt"

	"github.com/prepmood/prepmood-backend/pkg/enums"
	pkgerrors "github.com/prepmood/prepmood-backend/pkg/errors"
)

// transitions lists every legal status edge. Ownership transfer keeps the
// warranty active and is not a status edge.
var transitions = map[enums.WarrantyStatus][]enums.WarrantyStatus{
	enums.WarrantyStatusIssuedUnassigned: {enums.WarrantyStatusIssued, enums.WarrantyStatusRevoked},
	enums.WarrantyStatusIssued:           {enums.WarrantyStatusActive, enums.WarrantyStatusRevoked},
	enums.WarrantyStatusActive:           {enums.WarrantyStatusSuspended},
	enums.WarrantyStatusSuspended:        {enums.WarrantyStatusActive},
	enums.WarrantyStatusRevoked:          {enums.WarrantyStatusIssued, enums.WarrantyStatusIssuedUnassigned},
}

// TransitionError names the stored and the requested state of a rejected move.
type TransitionError struct {
	From enums.WarrantyStatus
	To   enums.WarrantyStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("warranty cannot move from %s to %s", e.From, e.To)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to enums.WarrantyStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to enums.WarrantyStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return transitionError(from, to)
}

func transitionError(from, to enums.WarrantyStatus) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, &TransitionError{From: from, To: to}, "invalid warranty transition").
		WithDetails(map[string]any{"current": from, "requested": to})
}

// targetStatus is the issued status for an order with or without an account owner.
func targetStatus(hasOwner bool) enums.WarrantyStatus {
	if hasOwner {
		return enums.WarrantyStatusIssued
	}
	return enums.WarrantyStatusIssuedUnassigned
}
