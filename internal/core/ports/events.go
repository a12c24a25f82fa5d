package ports

import (
	"context"

	"github.com/rbroggi/referralhub/internal/core/model"
)

// UserEventHandler consumes store change events, one at a time.
type UserEventHandler interface {
	// Handle processes a single event. A returned error asks the source to redeliver it.
	Handle(ctx context.Context, userEvent model.UserEvent) error
}

// Sender publishes sanitized user events to downstream consumers.
type Sender interface {
	// Send blocks until the event is accepted by the transport.
	Send(ctx context.Context, event model.UserEvent) error
}
