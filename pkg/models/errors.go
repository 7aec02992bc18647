package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the user-facing taxonomy. Handlers map these to
// HTTP status codes; everything else is a 500.
var (
	// ErrAlertNotFound indicates the referenced alert id does not exist
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidTransition indicates the requested state change is
	// illegal from the alert's current status
	ErrInvalidTransition = errors.New("invalid alert state transition")

	// ErrStoreUnavailable indicates the persistence layer could not be
	// reached; a reconciliation pass aborts and is retried on the next
	// scheduled trigger
	ErrStoreUnavailable = errors.New("alert store unavailable")

	// ErrDuplicateActiveAlert indicates an insert raced another pass
	// that already created the active alert for the same dedup key
	ErrDuplicateActiveAlert = errors.New("active alert already exists for dedup key")
)

// RuleEvaluationError records a detection rule skipping one entity.
// Never fatal to a pass: it is logged, counted in the pass summary,
// and evaluation of other entities and rules continues.
type RuleEvaluationError struct {
	Rule   string
	Entity string
	Reason string
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %s skipped entity %q: %s", e.Rule, e.Entity, e.Reason)
}

// DeliveryError records a notification channel send failing after
// retries. Recorded in the audit trail, never fatal to reconciliation.
type DeliveryError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery via %s to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
