package usecase

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
)

// NewInformer builds a new informer.
func NewInformer(sender ports.Sender) *Informer {
	return &Informer{sender: sender}
}

// Informer adapts CDC events to a public-facing event. It publicly 'informs' about user changes.
type Informer struct {
	sender ports.Sender
}

// Handle sanitizes the change event and sends it unless nothing public changed.
func (i *Informer) Handle(ctx context.Context, userEvent model.UserEvent) error {
	userEvent.Before = sanitize(userEvent.Before)
	userEvent.After = sanitize(userEvent.After)

	// tombstones are not public: a soft-deletion is published as a deletion and later changes to a
	// deleted user are not published at all.
	if userEvent.Before != nil && userEvent.Before.IsDeleted {
		return nil
	}
	if userEvent.After != nil && userEvent.After.IsDeleted {
		if userEvent.Before == nil {
			return nil
		}
		userEvent.After = nil
	}

	// this happens if there were only changes in password hash
	if publiclyEqual(userEvent.Before, userEvent.After) {
		return nil
	}

	if err := i.sender.Send(ctx, userEvent); err != nil {
		return fmt.Errorf("error sending user event ID [%s]: %w", userEvent.ID, err)
	}

	return nil
}

// sanitize returns a copy of the user without its password hash.
func sanitize(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := u.Clone()
	c.PasswordHash = ""
	return &c
}

// publiclyEqual compares two sanitized states ignoring the update timestamp, which moves on every write.
func publiclyEqual(before, after *model.User) bool {
	if before == nil || after == nil {
		return before == nil && after == nil
	}
	b, a := before.Clone(), after.Clone()
	b.UpdatedAt, a.UpdatedAt = time.Time{}, time.Time{}
	return reflect.DeepEqual(b, a)
}
