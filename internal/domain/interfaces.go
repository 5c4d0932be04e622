package domain

import (
	"context"
	"time"

	"fixhub/internal/events"
	"fixhub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TransitionRequest carries everything the store needs to apply a status
// change atomically: the new status, the audit-trail fields, and the version
// the caller read. The store rejects the request if the version moved.
type TransitionRequest struct {
	BookingID   int64
	FromVersion int64
	Target      models.Status
	Actor       models.ActorRole
	Note        string
	Forced      bool
}

// TransitionResult reports what the store persisted.
type TransitionResult struct {
	Seq       int64
	UpdatedAt time.Time
}

// Repository is the narrow persistence surface for bookings. There is no
// generic status setter: ApplyTransition is the only write path for the
// status field, and it appends the matching history entry in the same
// transaction.
type Repository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetStatusHistory(ctx context.Context, bookingID int64) ([]models.StatusHistoryEntry, error)
	ApplyTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	AssignTechnician(ctx context.Context, bookingID, fromVersion, technicianID int64) error
	AttachReview(ctx context.Context, bookingID, reviewID int64) error
	MarkBidPlaced(ctx context.Context, bookingID int64) error
	SelectBid(ctx context.Context, bookingID, bidID int64) error
	UpdatePaymentStatus(ctx context.Context, bookingID int64, status models.PaymentStatus) error
	GetCustomerBookings(ctx context.Context, customerID int64, status models.Status) ([]*models.Booking, error)
	GetTechnicianBookings(ctx context.Context, technicianID int64, status models.Status) ([]*models.Booking, error)
	GetBookingsByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

// EventPublisher is the real-time fan-out collaborator. Publish is
// best-effort: a failed publish must not roll back the persisted change.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event events.BookingStatusChanged) error
}

// SyncWorker mirrors booking changes into external spreadsheets.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}

// SheetsWriter applies booking rows to the spreadsheet mirror.
type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

// TelegramSender abstracts the bot API client for the admin notifier.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	Transition(ctx context.Context, bookingID int64, target models.Status, actor models.ActorRole, note string) (*models.Booking, error)
	ForceTransition(ctx context.Context, bookingID int64, target models.Status, actor models.ActorRole, note string) (*models.Booking, error)
	AssignTechnician(ctx context.Context, bookingID, technicianID int64) error
	AttachReview(ctx context.Context, bookingID, reviewID int64) error
	MarkBidPlaced(ctx context.Context, bookingID int64) error
	SelectBid(ctx context.Context, bookingID, bidID int64) error
	UpdatePaymentStatus(ctx context.Context, bookingID int64, status models.PaymentStatus) error
	GetCustomerBookings(ctx context.Context, customerID int64, status models.Status) ([]*models.Booking, error)
	GetTechnicianBookings(ctx context.Context, technicianID int64, status models.Status) ([]*models.Booking, error)
	GetBookingsByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}
