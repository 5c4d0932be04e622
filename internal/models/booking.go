package models

import "time"

type Booking struct {
	ID            int64         `json:"id"`
	CustomerID    int64         `json:"customer_id"`
	TechnicianID  int64         `json:"technician_id,omitempty"`
	ServiceType   ServiceType   `json:"service_type"`
	Issue         string        `json:"issue"`
	Urgency       Urgency       `json:"urgency"`
	ScheduledDate time.Time     `json:"scheduled_date"`
	CompletedDate *time.Time    `json:"completed_date,omitempty"`
	Status        Status        `json:"status"`
	HasBids       bool          `json:"has_bids"`
	SelectedBidID int64         `json:"selected_bid_id,omitempty"`
	HasReview     bool          `json:"has_review"`
	ReviewID      int64         `json:"review_id,omitempty"`
	Cancellation  *Cancellation `json:"cancellation,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Version       int64         `json:"version"`
	EventSeq      int64         `json:"event_seq"`

	History []StatusHistoryEntry `json:"status_history,omitempty"`
}

// StatusHistoryEntry is a single row of the append-only audit trail.
// Entries are only ever inserted, in the same transaction as the status
// change they record.
type StatusHistoryEntry struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy ActorRole `json:"updated_by"`
	Forced    bool      `json:"forced,omitempty"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

type Cancellation struct {
	CancelledBy ActorRole `json:"cancelled_by"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// Assigned reports whether a technician has been attached to the booking.
func (b *Booking) Assigned() bool {
	return b.TechnicianID != 0
}
