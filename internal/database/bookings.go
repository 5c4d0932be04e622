package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixhub/internal/domain"
	"fixhub/internal/models"
)

const bookingColumns = `id, customer_id, technician_id, service_type, issue, urgency,
                 scheduled_date, completed_date, status, has_bids, selected_bid_id,
                 has_review, review_id, cancelled_by, cancel_reason, cancelled_at,
                 payment_status, created_at, updated_at, version, event_seq`

// CreateBooking inserts the booking together with its initial history entry.
// New bookings always start in pending with the entry recorded by system.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	if booking.Urgency == "" {
		booking.Urgency = models.UrgencyMedium
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = models.PaymentPending
	}

	queryInsert := `INSERT INTO bookings (
				customer_id, technician_id, service_type, issue, urgency,
				scheduled_date, status, payment_status, created_at, updated_at, version, event_seq
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.CustomerID,
		booking.TechnicianID,
		booking.ServiceType,
		booking.Issue,
		booking.Urgency,
		booking.ScheduledDate,
		booking.Status,
		booking.PaymentStatus,
		now,
		now,
		1,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	queryHistory := `INSERT INTO booking_status_history (booking_id, status, note, updated_by, forced, seq, created_at)
	                 VALUES (?, ?, ?, ?, 0, ?, ?)`
	if _, err := tx.ExecContext(ctx, queryHistory, id, booking.Status, "", models.ActorSystem, 1, now); err != nil {
		return fmt.Errorf("failed to insert initial history entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	booking.EventSeq = 1
	booking.History = []models.StatusHistoryEntry{{
		BookingID: id,
		Status:    booking.Status,
		UpdatedBy: models.ActorSystem,
		Seq:       1,
		CreatedAt: now,
	}}

	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	history, err := db.GetStatusHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	booking.History = history

	return booking, nil
}

func (db *DB) GetStatusHistory(ctx context.Context, bookingID int64) ([]models.StatusHistoryEntry, error) {
	query := `SELECT id, booking_id, status, note, updated_by, forced, seq, created_at
	          FROM booking_status_history WHERE booking_id = ? ORDER BY seq ASC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	var history []models.StatusHistoryEntry
	for rows.Next() {
		var entry models.StatusHistoryEntry
		var note sql.NullString
		if err := rows.Scan(
			&entry.ID, &entry.BookingID, &entry.Status, &note,
			&entry.UpdatedBy, &entry.Forced, &entry.Seq, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Note = note.String
		history = append(history, entry)
	}
	return history, rows.Err()
}

// ApplyTransition is the only write path for the status field. The status
// update, the version/seq bump and the history append happen in one
// transaction guarded by the caller's version, so two racing transitions on
// the same booking cannot both succeed.
func (db *DB) ApplyTransition(ctx context.Context, req domain.TransitionRequest) (*domain.TransitionResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, req.BookingID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check booking: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	now := time.Now()
	queryUpdate := `UPDATE bookings SET status = ?, version = version + 1, event_seq = event_seq + 1, updated_at = ?`
	args := []interface{}{req.Target, now}

	if req.Target == models.StatusCompleted {
		queryUpdate += `, completed_date = ?`
		args = append(args, now)
	}
	if req.Target == models.StatusCancelled {
		queryUpdate += `, cancelled_by = ?, cancel_reason = ?, cancelled_at = ?`
		args = append(args, req.Actor, req.Note, now)
	}

	queryUpdate += ` WHERE id = ? AND version = ?`
	args = append(args, req.BookingID, req.FromVersion)

	result, err := tx.ExecContext(ctx, queryUpdate, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrConcurrentModification
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT event_seq FROM bookings WHERE id = ?`, req.BookingID).Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to read event seq: %w", err)
	}

	queryHistory := `INSERT INTO booking_status_history (booking_id, status, note, updated_by, forced, seq, created_at)
	                 VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, queryHistory,
		req.BookingID, req.Target, req.Note, req.Actor, req.Forced, seq, now); err != nil {
		return nil, fmt.Errorf("failed to append history entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	return &domain.TransitionResult{Seq: seq, UpdatedAt: now}, nil
}

func (db *DB) AssignTechnician(ctx context.Context, bookingID, fromVersion, technicianID int64) error {
	query := `UPDATE bookings SET technician_id = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, technicianID, time.Now(), bookingID, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to assign technician: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := db.GetBooking(ctx, bookingID); err != nil {
			return err
		}
		return ErrConcurrentModification
	}
	return nil
}

// AttachReview flips has_review exactly once. A second call is a no-op, so
// double-attachment races cannot duplicate the reference.
func (db *DB) AttachReview(ctx context.Context, bookingID, reviewID int64) error {
	query := `UPDATE bookings SET has_review = 1, review_id = ?, updated_at = ? WHERE id = ? AND has_review = 0`
	result, err := db.ExecContext(ctx, query, reviewID, time.Now(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to attach review: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := db.GetBooking(ctx, bookingID); err != nil {
			return err
		}
		// has_review already set; keep the first reference
		return nil
	}
	return nil
}

// MarkBidPlaced sets has_bids. The bid collaborator calls this when a real
// bid exists; the lifecycle engine never flips the flag on its own.
func (db *DB) MarkBidPlaced(ctx context.Context, bookingID int64) error {
	query := `UPDATE bookings SET has_bids = 1, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, time.Now(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to mark bid placed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) SelectBid(ctx context.Context, bookingID, bidID int64) error {
	query := `UPDATE bookings SET selected_bid_id = ?, has_bids = 1, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, bidID, time.Now(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to select bid: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) UpdatePaymentStatus(ctx context.Context, bookingID int64, status models.PaymentStatus) error {
	query := `UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetCustomerBookings(ctx context.Context, customerID int64, status models.Status) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE customer_id = ?`
	args := []interface{}{customerID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	return db.queryBookings(ctx, query, args...)
}

func (db *DB) GetTechnicianBookings(ctx context.Context, technicianID int64, status models.Status) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE technician_id = ?`
	args := []interface{}{technicianID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	return db.queryBookings(ctx, query, args...)
}

func (db *DB) GetBookingsByStatus(ctx context.Context, status models.Status) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? ORDER BY created_at DESC`
	return db.queryBookings(ctx, query, status)
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
	          WHERE scheduled_date >= ? AND scheduled_date <= ? ORDER BY scheduled_date ASC`
	return db.queryBookings(ctx, query, start, end)
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var scheduledDate, completedDate, cancelledAt sql.NullTime
	var cancelledBy, cancelReason sql.NullString

	err := row.Scan(
		&b.ID, &b.CustomerID, &b.TechnicianID, &b.ServiceType, &b.Issue, &b.Urgency,
		&scheduledDate, &completedDate, &b.Status, &b.HasBids, &b.SelectedBidID,
		&b.HasReview, &b.ReviewID, &cancelledBy, &cancelReason, &cancelledAt,
		&b.PaymentStatus, &b.CreatedAt, &b.UpdatedAt, &b.Version, &b.EventSeq,
	)
	if err != nil {
		return nil, err
	}

	if scheduledDate.Valid {
		b.ScheduledDate = scheduledDate.Time
	}
	if completedDate.Valid {
		t := completedDate.Time
		b.CompletedDate = &t
	}
	if cancelledBy.Valid && cancelledBy.String != "" {
		b.Cancellation = &models.Cancellation{
			CancelledBy: models.ActorRole(cancelledBy.String),
			Reason:      cancelReason.String,
			CancelledAt: cancelledAt.Time,
		}
	}
	return &b, nil
}
