package service

import (
	"context"
	"fmt"
	"time"

	"fixhub/internal/domain"
	"fixhub/internal/events"
	"fixhub/internal/metrics"
	"fixhub/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ValidationError reports malformed input before anything touches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrForceNotAllowed is returned when a non-privileged actor requests a
// forced transition.
var ErrForceNotAllowed = fmt.Errorf("only admin and system actors may force a transition")

// BookingService owns the booking lifecycle: every status change goes
// through Transition or ForceTransition, which persist atomically and then
// fan the change out. Fan-out is best-effort; the persisted status is the
// source of truth.
type BookingService struct {
	repo       domain.Repository
	fanout     domain.EventPublisher
	bus        *events.EventBus
	syncWorker domain.SyncWorker
	logger     *zerolog.Logger
}

func NewBookingService(repo domain.Repository, fanout domain.EventPublisher, bus *events.EventBus, syncWorker domain.SyncWorker, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:       repo,
		fanout:     fanout,
		bus:        bus,
		syncWorker: syncWorker,
		logger:     logger,
	}
}

func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.CustomerID == 0 {
		return &ValidationError{Field: "customer_id", Reason: "required"}
	}
	if booking.Issue == "" {
		return &ValidationError{Field: "issue", Reason: "required"}
	}
	if _, err := models.ParseServiceType(string(booking.ServiceType)); err != nil {
		return &ValidationError{Field: "service_type", Reason: err.Error()}
	}
	if booking.Urgency == "" {
		booking.Urgency = models.UrgencyMedium
	}
	if _, err := models.ParseUrgency(string(booking.Urgency)); err != nil {
		return &ValidationError{Field: "urgency", Reason: err.Error()}
	}

	// Status is owned by the engine; creation always starts at pending.
	booking.Status = models.StatusPending

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return err
	}

	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventBookingCreated, booking)
	}
	s.enqueueSync(ctx, booking, "upsert")

	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// Transition applies a table-checked status change. Exactly one history
// entry is appended with the change, and one BookingStatusChanged event is
// emitted per affected topic.
func (s *BookingService) Transition(ctx context.Context, bookingID int64, target models.Status, actor models.ActorRole, note string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(booking.Status, target) {
		metrics.IncInvalidTransition(string(booking.Status), string(target))
		return nil, &models.InvalidTransitionError{From: booking.Status, To: target}
	}

	return s.applyTransition(ctx, booking, target, actor, note, false)
}

// ForceTransition bypasses the transition table. It is the documented
// escape hatch for admin and system actors; the override is recorded in the
// history entry and on the emitted event, never silently.
func (s *BookingService) ForceTransition(ctx context.Context, bookingID int64, target models.Status, actor models.ActorRole, note string) (*models.Booking, error) {
	if !actor.CanForce() {
		return nil, ErrForceNotAllowed
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Warn().
		Int64("booking_id", bookingID).
		Str("from", string(booking.Status)).
		Str("to", string(target)).
		Str("actor", string(actor)).
		Msg("forced status transition")
	metrics.IncForcedTransition(string(target), string(actor))

	return s.applyTransition(ctx, booking, target, actor, note, true)
}

func (s *BookingService) applyTransition(ctx context.Context, booking *models.Booking, target models.Status, actor models.ActorRole, note string, forced bool) (*models.Booking, error) {
	result, err := s.repo.ApplyTransition(ctx, domain.TransitionRequest{
		BookingID:   booking.ID,
		FromVersion: booking.Version,
		Target:      target,
		Actor:       actor,
		Note:        note,
		Forced:      forced,
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(booking.Status), string(target), string(actor))

	event := events.BookingStatusChanged{
		EventID:        uuid.NewString(),
		BookingID:      booking.ID,
		PreviousStatus: booking.Status,
		NewStatus:      target,
		ActorRole:      actor,
		Note:           note,
		Forced:         forced,
		Seq:            result.Seq,
		Timestamp:      result.UpdatedAt,
	}
	s.publishStatusChanged(ctx, booking, event)

	updated, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, updated, "update_status")
	return updated, nil
}

// publishStatusChanged fans the event out to the booking's topics. Failures
// are logged and counted; they never roll back the persisted transition.
func (s *BookingService) publishStatusChanged(ctx context.Context, booking *models.Booking, event events.BookingStatusChanged) {
	if s.fanout != nil {
		s.publishTopic(ctx, events.UserTopic(booking.CustomerID), "user", event)
		if booking.Assigned() {
			s.publishTopic(ctx, events.UserTopic(booking.TechnicianID), "user", event)
		}
		// The role-wide broadcast only fires when a booking opens for bids,
		// so every technician sees new work exactly once.
		if event.PreviousStatus == models.StatusPending && event.NewStatus == models.StatusBidding {
			s.publishTopic(ctx, events.TopicTechnicians, "role", event)
		}
	}

	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventBookingStatusChanged, event)
	}
}

func (s *BookingService) publishTopic(ctx context.Context, topic, kind string, event events.BookingStatusChanged) {
	if err := s.fanout.Publish(ctx, topic, event); err != nil {
		metrics.IncPublishFailure(kind)
		s.logger.Error().Err(err).
			Str("topic", topic).
			Int64("booking_id", event.BookingID).
			Int64("seq", event.Seq).
			Msg("publish event error")
	}
}

func (s *BookingService) AssignTechnician(ctx context.Context, bookingID, technicianID int64) error {
	if technicianID == 0 {
		return &ValidationError{Field: "technician_id", Reason: "required"}
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	if err := s.repo.AssignTechnician(ctx, bookingID, booking.Version, technicianID); err != nil {
		return err
	}

	updated, err := s.repo.GetBooking(ctx, bookingID)
	if err == nil {
		s.enqueueSync(ctx, updated, "upsert")
	}
	return nil
}

// AttachReview is idempotent: the first review reference wins and repeat
// calls are no-ops.
func (s *BookingService) AttachReview(ctx context.Context, bookingID, reviewID int64) error {
	if reviewID == 0 {
		return &ValidationError{Field: "review_id", Reason: "required"}
	}

	if err := s.repo.AttachReview(ctx, bookingID, reviewID); err != nil {
		return err
	}

	if s.bus != nil {
		_ = s.bus.PublishJSON(events.EventReviewAttached, map[string]int64{
			"booking_id": bookingID,
			"review_id":  reviewID,
		})
	}
	return nil
}

// MarkBidPlaced is called by the bid collaborator when a real bid exists.
// The lifecycle engine never sets has_bids on its own.
func (s *BookingService) MarkBidPlaced(ctx context.Context, bookingID int64) error {
	return s.repo.MarkBidPlaced(ctx, bookingID)
}

func (s *BookingService) SelectBid(ctx context.Context, bookingID, bidID int64) error {
	if bidID == 0 {
		return &ValidationError{Field: "bid_id", Reason: "required"}
	}
	return s.repo.SelectBid(ctx, bookingID, bidID)
}

func (s *BookingService) UpdatePaymentStatus(ctx context.Context, bookingID int64, status models.PaymentStatus) error {
	if _, err := models.ParsePaymentStatus(string(status)); err != nil {
		return &ValidationError{Field: "payment_status", Reason: err.Error()}
	}

	if err := s.repo.UpdatePaymentStatus(ctx, bookingID, status); err != nil {
		return err
	}

	updated, err := s.repo.GetBooking(ctx, bookingID)
	if err == nil {
		s.enqueueSync(ctx, updated, "upsert")
	}
	return nil
}

func (s *BookingService) GetCustomerBookings(ctx context.Context, customerID int64, status models.Status) ([]*models.Booking, error) {
	return s.repo.GetCustomerBookings(ctx, customerID, status)
}

func (s *BookingService) GetTechnicianBookings(ctx context.Context, technicianID int64, status models.Status) ([]*models.Booking, error) {
	return s.repo.GetTechnicianBookings(ctx, technicianID, status)
}

func (s *BookingService) GetBookingsByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error) {
	return s.repo.GetBookingsByStatus(ctx, status)
}

func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.repo.GetBookingsByDateRange(ctx, start, end)
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.syncWorker == nil {
		return
	}

	var status string
	if taskType == "update_status" {
		status = string(booking.Status)
	}

	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
