package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{
		"pending", "bidding", "bid_accepted", "confirmed",
		"scheduled", "in_progress", "completed", "cancelled", "disputed",
	} {
		parsed, err := ParseStatus(s)
		assert.NoError(t, err)
		assert.Equal(t, Status(s), parsed)
	}

	_, err := ParseStatus("rejected")
	assert.Error(t, err)
	_, err = ParseStatus("")
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	t.Run("AllowedPairs", func(t *testing.T) {
		allowed := [][2]Status{
			{StatusPending, StatusBidding},
			{StatusPending, StatusConfirmed},
			{StatusPending, StatusCancelled},
			{StatusBidding, StatusBidAccepted},
			{StatusBidding, StatusCancelled},
			{StatusBidAccepted, StatusConfirmed},
			{StatusBidAccepted, StatusCancelled},
			{StatusConfirmed, StatusScheduled},
			{StatusConfirmed, StatusCancelled},
			{StatusScheduled, StatusInProgress},
			{StatusScheduled, StatusCancelled},
			{StatusInProgress, StatusCompleted},
			{StatusInProgress, StatusDisputed},
			{StatusInProgress, StatusCancelled},
			{StatusCompleted, StatusDisputed},
		}
		for _, pair := range allowed {
			assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s", pair[0], pair[1])
		}
	})

	t.Run("ForbiddenPairs", func(t *testing.T) {
		all := []Status{
			StatusPending, StatusBidding, StatusBidAccepted, StatusConfirmed,
			StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusDisputed,
		}

		// Everything not in the table must be rejected, including self-loops
		// and anything out of a terminal status.
		assert.False(t, CanTransition(StatusBidding, StatusInProgress))
		assert.False(t, CanTransition(StatusPending, StatusScheduled))
		assert.False(t, CanTransition(StatusCompleted, StatusPending))
		for _, to := range all {
			assert.False(t, CanTransition(StatusCancelled, to), "cancelled -> %s", to)
			assert.False(t, CanTransition(StatusDisputed, to), "disputed -> %s", to)
		}
		for _, s := range all {
			assert.False(t, CanTransition(s, s), "%s self-loop", s)
		}
	})
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusDisputed.Terminal())
	assert.False(t, StatusCompleted.Terminal()) // completed -> disputed remains open
	assert.False(t, StatusPending.Terminal())
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{From: StatusBidding, To: StatusInProgress}
	assert.Contains(t, err.Error(), "bidding")
	assert.Contains(t, err.Error(), "in_progress")
}

func TestActorRole(t *testing.T) {
	role, err := ParseActorRole("technician")
	assert.NoError(t, err)
	assert.Equal(t, ActorTechnician, role)

	_, err = ParseActorRole("manager")
	assert.Error(t, err)

	assert.True(t, ActorAdmin.CanForce())
	assert.True(t, ActorSystem.CanForce())
	assert.False(t, ActorCustomer.CanForce())
	assert.False(t, ActorTechnician.CanForce())
}

func TestParseEnums(t *testing.T) {
	_, err := ParseServiceType("pc_repair")
	assert.NoError(t, err)
	_, err = ParseServiceType("tv_repair")
	assert.Error(t, err)

	_, err = ParseUrgency("urgent")
	assert.NoError(t, err)
	_, err = ParseUrgency("asap")
	assert.Error(t, err)

	_, err = ParsePaymentStatus("refunded")
	assert.NoError(t, err)
	_, err = ParsePaymentStatus("chargeback")
	assert.Error(t, err)
}
