package audit

import (
	"context"
	"errors"
	"time"

	id "sandoog/pkg/domain"

	"github.com/google/uuid"
)

// ErrQueueFull reports a dropped event; callers log and move on.
var ErrQueueFull = errors.New("audit queue full")

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, userID id.UserID) ([]Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// AsyncPublisher enqueues events for a background worker instead of writing
// inline. Suited to lifecycle events that need not commit with a decision;
// transactional audit rows go through Publisher so they join the unit of
// work.
type AsyncPublisher struct {
	inbox chan<- Event
}

func NewAsyncPublisher(inbox chan<- Event) *AsyncPublisher {
	return &AsyncPublisher{inbox: inbox}
}

// Emit enqueues the event. A full inbox drops the event rather than stalling
// the request path.
func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		return ErrQueueFull
	}
}
