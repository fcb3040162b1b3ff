// Package events fans job completion events out to in-process subscribers.
package events

import (
	"context"
	"sync"

	"github.com/de-tools/advisor-reports/pkg/models/domain"
	"github.com/rs/zerolog"
)

type Handler func(ctx context.Context, event domain.JobEvent)

type Publisher interface {
	Publish(ctx context.Context, event domain.JobEvent)
}

// Bus delivers each event synchronously to every subscriber in subscription
// order. A panicking subscriber is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, event domain.JobEvent) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(ctx, h, event)
	}
}

func deliver(ctx context.Context, h Handler, event domain.JobEvent) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().
				Interface("panic", r).
				Str("job_id", event.JobID).
				Msg("event subscriber panicked")
		}
	}()
	h(ctx, event)
}
