package models

import "fmt"

type Status string

const (
	StatusPending     Status = "pending"
	StatusBidding     Status = "bidding"
	StatusBidAccepted Status = "bid_accepted"
	StatusConfirmed   Status = "confirmed"
	StatusScheduled   Status = "scheduled"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusDisputed    Status = "disputed"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusBidding, StatusBidAccepted, StatusConfirmed,
		StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusDisputed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status: %q", s)
	}
}

// allowedTransitions is the lifecycle table. A missing source status or an
// empty target set means the status is terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:     {StatusBidding, StatusConfirmed, StatusCancelled},
	StatusBidding:     {StatusBidAccepted, StatusCancelled},
	StatusBidAccepted: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:   {StatusScheduled, StatusCancelled},
	StatusScheduled:   {StatusInProgress, StatusCancelled},
	StatusInProgress:  {StatusCompleted, StatusDisputed, StatusCancelled},
	StatusCompleted:   {StatusDisputed},
	StatusCancelled:   {},
	StatusDisputed:    {},
}

func CanTransition(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no normal-flow transition leaves the status.
func (s Status) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// InvalidTransitionError identifies both the current and the requested
// status so callers can render a precise message.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}
