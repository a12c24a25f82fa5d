package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"

	log "github.com/sirupsen/logrus"
)

const (
	usersSchema = "referrals"
	usersTable  = "users"
)

// SubscriberArgs contain the mandatory arguments to build a subscriber.
type SubscriberArgs struct {
	// Subscription is a pubsub subscription fed by the debezium postgres connector.
	Subscription *pubsub.Subscription

	// UserEventHandler is a event handler
	UserEventHandler ports.UserEventHandler
}

// Subscriber is a pubsub async subscriber
type Subscriber struct {
	subscription     *pubsub.Subscription
	userEventHandler ports.UserEventHandler
}

// NewSubscriber creates a subscriber
func NewSubscriber(args SubscriberArgs) (*Subscriber, error) {
	if args.Subscription == nil || args.UserEventHandler == nil {
		return nil, errors.New("subscription and handler are mandatory")
	}
	return &Subscriber{
		subscription:     args.Subscription,
		userEventHandler: args.UserEventHandler,
	}, nil
}

// Consume starts the subscriber. This is a blocking method and should be started in it's own go-routine.
// The way to terminate the method is to cancel the context in input.
func (s *Subscriber) Consume(ctx context.Context) error {
	if err := s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := log.WithField("message_id", msg.ID)

		userEvent, err := decodeMsgIntoUserEvent(msg)
		if errors.Is(err, ErrIgnoreEvent) {
			logger.Debug("ignoring change event")
			msg.Ack()
			return
		}
		if err != nil {
			// redelivery cannot fix a message that does not decode
			logger.WithError(err).Error("dropping undecodable change event")
			msg.Ack()
			return
		}

		if err := s.userEventHandler.Handle(ctx, *userEvent); err != nil {
			logger.WithError(err).Error("error in user event handler")
			msg.Nack()
			return
		}
		msg.Ack()
	}); err != nil {
		return fmt.Errorf("error receiving messages from subscription: %w", err)
	}
	return nil
}

// ErrIgnoreEvent is returned for messages that do not describe a user row change.
var ErrIgnoreEvent = errors.New("event should be ignored")

func decodeMsgIntoUserEvent(msg *pubsub.Message) (*model.UserEvent, error) {
	if msg == nil {
		return nil, errors.New("cannot decode nil pubsub msg")
	}
	// debezium emits an empty tombstone after each delete
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil, ErrIgnoreEvent
	}
	debeziumMsg := new(debeziumMessage)
	if err := json.Unmarshal(msg.Data, debeziumMsg); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}

	source := debeziumMsg.Payload.Source
	if source.Table != usersTable || (source.Schema != "" && source.Schema != usersSchema) {
		return nil, ErrIgnoreEvent
	}
	if debeziumMsg.Payload.Before == nil && debeziumMsg.Payload.After == nil {
		return nil, ErrIgnoreEvent
	}

	return &model.UserEvent{
		ID:     msg.ID,
		Before: translateUserToModel(debeziumMsg.Payload.Before),
		After:  translateUserToModel(debeziumMsg.Payload.After),
	}, nil
}

func translateUserToModel(dbzUser *debeziumUser) *model.User {
	if dbzUser == nil {
		return nil
	}
	referrals := make([]string, len(dbzUser.Referrals))
	copy(referrals, dbzUser.Referrals)
	referrerID := ""
	if dbzUser.ReferrerID != nil {
		referrerID = *dbzUser.ReferrerID
	}

	return &model.User{
		ID:           dbzUser.ID,
		Name:         dbzUser.Name,
		Email:        dbzUser.Email,
		PasswordHash: dbzUser.PasswordHash,
		ReferralCode: dbzUser.ReferralCode,
		ReferrerID:   referrerID,
		Referrals:    referrals,
		RewardPoints: dbzUser.RewardPoints,
		IsDeleted:    dbzUser.IsDeleted,
		CreatedAt:    dbzUser.CreatedAt.Time,
		UpdatedAt:    dbzUser.UpdatedAt.Time,
	}
}

type debeziumMessage struct {
	// Payload is the debezium segment containing the row states.
	Payload payload `json:"payload"`
}

type payload struct {
	Op     string        `json:"op"`
	Source source        `json:"source"`
	Before *debeziumUser `json:"before"`
	After  *debeziumUser `json:"after"`
}

type source struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type debeziumUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	ReferralCode string    `json:"referral_code"`
	ReferrerID   *string   `json:"referrer_id"`
	Referrals    []string  `json:"referrals"`
	RewardPoints int64     `json:"reward_points"`
	IsDeleted    bool      `json:"is_deleted"`
	CreatedAt    ZonedTime `json:"created_at"`
	UpdatedAt    ZonedTime `json:"updated_at"`
}

// ZonedTime decodes the debezium io.debezium.time.ZonedTimestamp representation of TIMESTAMPTZ columns.
type ZonedTime struct {
	time.Time
}

func (zt *ZonedTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		zt.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("malformed zoned timestamp %q: %w", s, err)
	}
	zt.Time = t.UTC()
	return nil
}

func (zt ZonedTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(zt.UTC().Format(time.RFC3339Nano))
}
