package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/referralhub/internal/core/model"
)

// EventTypeAttribute is the message attribute carrying the event type, usable in subscription filters.
const EventTypeAttribute = "event_type"

// NewProducer creates a new producer.
func NewProducer(topic *pubsub.Topic) (*Producer, error) {
	if topic == nil {
		return nil, errors.New("topic is nil")
	}
	return &Producer{topic: topic}, nil
}

// Producer is the pubsub producer of public user events.
type Producer struct {
	topic *pubsub.Topic
}

// Send publishes the event and blocks until pubsub acknowledges it.
func (p *Producer) Send(ctx context.Context, event model.UserEvent) error {
	data, err := json.Marshal(toPublicEvent(event))
	if err != nil {
		return fmt.Errorf("error marshaling user-event message: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{EventTypeAttribute: event.EventType()},
	})
	// Block until the result is returned and a server-generated
	// ID is returned for the published message.
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("error publishing user-event: %w", err)
	}
	return nil
}

// PublicEvent is the wire representation of a user event.
type PublicEvent struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Before *PublicUser `json:"before,omitempty"`
	After  *PublicUser `json:"after,omitempty"`
}

// PublicUser is the published view of a user. It never carries credentials.
type PublicUser struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	ReferralCode string   `json:"referral_code"`
	ReferrerID   string   `json:"referrer_id,omitempty"`
	Referrals    []string `json:"referrals"`
	RewardPoints int64    `json:"reward_points"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func toPublicEvent(event model.UserEvent) PublicEvent {
	return PublicEvent{
		ID:     event.ID,
		Type:   event.EventType(),
		Before: toPublicUser(event.Before),
		After:  toPublicUser(event.After),
	}
}

func toPublicUser(u *model.User) *PublicUser {
	if u == nil {
		return nil
	}
	referrals := u.Referrals
	if referrals == nil {
		referrals = []string{}
	}
	return &PublicUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		ReferralCode: u.ReferralCode,
		ReferrerID:   u.ReferrerID,
		Referrals:    referrals,
		RewardPoints: u.RewardPoints,
		CreatedAt:    u.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:    u.UpdatedAt.UTC().Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"
