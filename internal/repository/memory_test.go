package repository

import (
	"context"
	"testing"

	"fixhub/internal/events"
	"fixhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHub(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	customerCh := hub.Subscribe(events.UserTopic(1))
	technicianCh := hub.Subscribe(events.UserTopic(2))

	event := events.BookingStatusChanged{
		BookingID: 4,
		NewStatus: models.StatusScheduled,
		Seq:       2,
	}
	require.NoError(t, hub.Publish(ctx, events.UserTopic(1), event))

	select {
	case got := <-customerCh:
		assert.Equal(t, int64(4), got.BookingID)
	default:
		t.Fatal("customer subscriber did not receive the event")
	}

	// Other topics stay quiet
	select {
	case <-technicianCh:
		t.Fatal("technician subscriber received an event for another topic")
	default:
	}
}

func TestMemoryHubOrderingPerTopic(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch := hub.Subscribe(events.TopicTechnicians)

	for seq := int64(1); seq <= 5; seq++ {
		require.NoError(t, hub.Publish(ctx, events.TopicTechnicians, events.BookingStatusChanged{
			BookingID: 1,
			Seq:       seq,
		}))
	}

	for want := int64(1); want <= 5; want++ {
		got := <-ch
		assert.Equal(t, want, got.Seq)
	}
}

func TestMemoryHubDropsWhenFull(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch := hub.Subscribe("user:9")
	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, "user:9", events.BookingStatusChanged{Seq: int64(i)}))
	}

	// Publishing past the buffer must not block or error; the overflow is dropped.
	assert.Len(t, ch, subscriberBuffer)
}
