package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fixhub/internal/database"
	"fixhub/internal/models"

	"github.com/rs/zerolog"
)

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSyncWorker(db, sheets, nil, RetryPolicy{}, zerolog.Nop())

	booking := &models.Booking{
		ID:          1,
		CustomerID:  42,
		ServiceType: models.ServiceMobileRepair,
		Issue:       "battery drains",
		Status:      models.StatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	ctx := context.Background()
	if err := w.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := w.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if sheets.upsertCalls != 1 {
		t.Fatalf("expected upsert call, got %d", sheets.upsertCalls)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	w := NewSyncWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, zerolog.Nop())

	booking := &models.Booking{ID: 2, CustomerID: 42, ServiceType: models.ServicePCRepair, Issue: "no boot", Status: models.StatusPending}

	ctx := context.Background()
	if err := w.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := w.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	w := NewSyncWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, zerolog.Nop())

	booking := &models.Booking{ID: 3, CustomerID: 42, ServiceType: models.ServicePCRepair, Issue: "x", Status: models.StatusPending}

	ctx := context.Background()
	w.EnqueueTask(ctx, TaskUpsert, booking.ID, booking, "")
	task, _ := w.tryLocalQueue()
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestHandleTask(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewSyncWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3}, zerolog.Nop())

	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		booking := &models.Booking{ID: 1, Issue: "test"}
		if err := w.handleTask(ctx, TaskUpsert, taskPayload{Booking: booking}); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.upsertCalls != 1 {
			t.Fatalf("expected 1 upsert call, got %d", sheets.upsertCalls)
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		if err := w.handleTask(ctx, TaskUpdateStatus, taskPayload{BookingID: 123, Status: "confirmed"}); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.statusCalls != 1 {
			t.Fatalf("expected 1 status call, got %d", sheets.statusCalls)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if err := w.handleTask(ctx, "vacuum", taskPayload{}); err == nil {
			t.Fatalf("expected error for unknown task type")
		}
	})
}

func TestEnqueueTaskValidation(t *testing.T) {
	db := newTestDB(t)
	w := NewSyncWorker(db, &fakeSheets{}, nil, RetryPolicy{}, zerolog.Nop())

	ctx := context.Background()
	booking := &models.Booking{ID: 1, Issue: "test"}

	t.Run("EmptyTaskType", func(t *testing.T) {
		if err := w.EnqueueTask(ctx, "", 1, booking, ""); err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("MissingBookingID", func(t *testing.T) {
		if err := w.EnqueueTask(ctx, TaskUpsert, 0, nil, ""); err == nil {
			t.Fatalf("expected error for missing booking id")
		}
	})

	t.Run("IDFromBooking", func(t *testing.T) {
		if err := w.EnqueueTask(ctx, TaskUpsert, 0, booking, ""); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		task, ok := w.tryLocalQueue()
		if !ok {
			t.Fatalf("expected task in local queue")
		}
		if task.BookingID != booking.ID {
			t.Fatalf("expected booking id from payload, got %d", task.BookingID)
		}
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

// Helpers

type fakeSheets struct {
	err          error
	upsertCalls  int
	statusCalls  int
	replaceCalls int
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.Booking) error {
	f.upsertCalls++
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	f.statusCalls++
	return f.err
}

func (f *fakeSheets) ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error {
	f.replaceCalls++
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	db, err := database.NewDB(path)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
