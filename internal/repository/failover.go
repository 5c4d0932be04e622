package repository

import (
	"context"
	"sync/atomic"
	"time"

	"fixhub/internal/domain"
	"fixhub/internal/events"

	"github.com/rs/zerolog"
)

// FailoverPublisher routes events to the primary transport and falls back
// to the secondary when the primary errors. The primary is retried after a
// cool-down so a recovered Redis picks the stream back up.
type FailoverPublisher struct {
	primary   domain.EventPublisher
	fallback  domain.EventPublisher
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

const recoveryInterval = time.Minute

func NewFailoverPublisher(primary, fallback domain.EventPublisher, logger *zerolog.Logger) *FailoverPublisher {
	return &FailoverPublisher{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (p *FailoverPublisher) Publish(ctx context.Context, topic string, event events.BookingStatusChanged) error {
	if !p.isDown.Load() {
		err := p.primary.Publish(ctx, topic, event)
		if err == nil {
			return nil
		}
		p.logger.Error().Err(err).Str("topic", topic).Msg("primary publisher failed, falling back")
		p.isDown.Store(true)
		p.lastCheck.Store(time.Now().UnixNano())
	}

	if p.isDown.Load() && time.Since(time.Unix(0, p.lastCheck.Load())) > recoveryInterval {
		err := p.primary.Publish(ctx, topic, event)
		if err == nil {
			p.isDown.Store(false)
			return nil
		}
		p.lastCheck.Store(time.Now().UnixNano())
	}

	return p.fallback.Publish(ctx, topic, event)
}
