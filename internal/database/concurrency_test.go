package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fixhub/internal/domain"
	"fixhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two transitions racing from the same read must not both succeed: the
// version guard lets exactly one through and the loser gets a conflict.
func TestConcurrentTransitions(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	booking := &models.Booking{
		CustomerID:    1,
		ServiceType:   models.ServiceLaptopRepair,
		Issue:         "does not boot",
		ScheduledDate: time.Now().AddDate(0, 0, 1),
	}
	require.NoError(t, db.CreateBooking(ctx, booking))

	// Move to confirmed first, as in the contested scenario
	_, err = db.ApplyTransition(ctx, domain.TransitionRequest{
		BookingID:   booking.ID,
		FromVersion: 1,
		Target:      models.StatusConfirmed,
		Actor:       models.ActorAdmin,
	})
	require.NoError(t, err)

	targets := []models.Status{models.StatusScheduled, models.StatusCancelled}
	var wg sync.WaitGroup
	wg.Add(len(targets))
	results := make(chan error, len(targets))

	for _, target := range targets {
		go func(target models.Status) {
			defer wg.Done()
			_, tErr := db.ApplyTransition(ctx, domain.TransitionRequest{
				BookingID:   booking.ID,
				FromVersion: 2, // both read the same version
				Target:      target,
				Actor:       models.ActorTechnician,
			})
			results <- tErr
		}(target)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ErrConcurrentModification):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "exactly one transition must win")
	assert.Equal(t, 1, conflictCount, "the loser must see a version conflict")

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 3)
	assert.Equal(t, got.Status, got.History[len(got.History)-1].Status)
	assert.Equal(t, int64(3), got.Version)
}
