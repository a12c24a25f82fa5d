package subscriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const updateMessage = `{
  "schema": {},
  "payload": {
    "op": "u",
    "source": {"schema": "referrals", "table": "users"},
    "before": {
      "id": "0b1d7a2e-6f0b-4c55-9d43-7c1e3b0f8a11",
      "name": "Alice",
      "email": "alice@example.com",
      "password_hash": "$argon2id$hash",
      "referral_code": "ALI1234",
      "referrer_id": null,
      "referrals": [],
      "reward_points": 0,
      "is_deleted": false,
      "created_at": "2024-01-01T10:00:00.123456Z",
      "updated_at": "2024-01-01T10:00:00.123456Z"
    },
    "after": {
      "id": "0b1d7a2e-6f0b-4c55-9d43-7c1e3b0f8a11",
      "name": "Alice",
      "email": "alice@example.com",
      "password_hash": "$argon2id$hash",
      "referral_code": "ALI1234",
      "referrer_id": null,
      "referrals": ["5f0c3c9e-0d2c-4d8e-9a57-2b3f1d4e6a77"],
      "reward_points": 10,
      "is_deleted": false,
      "created_at": "2024-01-01T10:00:00.123456Z",
      "updated_at": "2024-01-01T10:05:00Z"
    }
  }
}`

const insertMessage = `{
  "payload": {
    "op": "c",
    "source": {"schema": "referrals", "table": "users"},
    "before": null,
    "after": {
      "id": "5f0c3c9e-0d2c-4d8e-9a57-2b3f1d4e6a77",
      "name": "Bob",
      "email": "bob@example.com",
      "password_hash": "$argon2id$hash",
      "referral_code": "BOB5678",
      "referrer_id": "0b1d7a2e-6f0b-4c55-9d43-7c1e3b0f8a11",
      "referrals": [],
      "reward_points": 0,
      "is_deleted": false,
      "created_at": "2024-01-01T10:05:00Z",
      "updated_at": "2024-01-01T10:05:00Z"
    }
  }
}`

func TestDecodeMsgIntoUserEvent(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.UTC)
	tests := []struct {
		name          string
		data          string
		expected      *model.UserEvent
		expectedError error
	}{
		{
			name: "update",
			data: updateMessage,
			expected: &model.UserEvent{
				ID: "m1",
				Before: &model.User{
					ID: "0b1d7a2e-6f0b-4c55-9d43-7c1e3b0f8a11", Name: "Alice", Email: "alice@example.com",
					PasswordHash: "$argon2id$hash", ReferralCode: "ALI1234", Referrals: []string{},
					CreatedAt: created, UpdatedAt: created,
				},
				After: &model.User{
					ID: "0b1d7a2e-6f0b-4c55-9d43-7c1e3b0f8a11", Name: "Alice", Email: "alice@example.com",
					PasswordHash: "$argon2id$hash", ReferralCode: "ALI1234",
					Referrals: []string{"5f0c3c9e-0d2c-4d8e-9a57-2b3f1d4e6a77"}, RewardPoints: 10,
					CreatedAt: created, UpdatedAt: time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC),
				},
			},
		},
		{
			name: "insert with referrer",
			data: insertMessage,
			expected: &model.UserEvent{
				ID: "m1",
				After: &model.User{
					ID: "5f0c3c9e-0d2c-4d8e-9a57-2b3f1d4e6a77", Name: "Bob", Email: "bob@example.com",
					PasswordHash: "$argon2id$hash", ReferralCode: "BOB5678",
					ReferrerID: "0b1d7a2e-6f0b-4c55-9d43-7c1e3b0f8a11", Referrals: []string{},
					CreatedAt: time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC), UpdatedAt: time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC),
				},
			},
		},
		{
			name:          "other table",
			data:          `{"payload": {"op": "c", "source": {"schema": "referrals", "table": "schema_migrations"}, "after": {"id": "x"}}}`,
			expectedError: ErrIgnoreEvent,
		},
		{
			name:          "tombstone",
			data:          ``,
			expectedError: ErrIgnoreEvent,
		},
		{
			name:          "null tombstone",
			data:          `null`,
			expectedError: ErrIgnoreEvent,
		},
		{
			name:          "no row states",
			data:          `{"payload": {"op": "t", "source": {"schema": "referrals", "table": "users"}}}`,
			expectedError: ErrIgnoreEvent,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := decodeMsgIntoUserEvent(&pubsub.Message{ID: "m1", Data: []byte(test.data)})
			if test.expectedError != nil {
				require.ErrorIs(t, err, test.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestDecodeMsgIntoUserEvent_Malformed(t *testing.T) {
	for _, data := range []string{`{`, `{"payload": {"source": {"table": "users"}, "after": {"created_at": "yesterday"}}}`} {
		_, err := decodeMsgIntoUserEvent(&pubsub.Message{ID: "m1", Data: []byte(data)})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrIgnoreEvent)
	}
}

type flakyHandler struct {
	mu       sync.Mutex
	failures int
	events   []model.UserEvent
}

func (h *flakyHandler) Handle(_ context.Context, e model.UserEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return errors.New("downstream unavailable")
	}
	h.events = append(h.events, e)
	return nil
}

func (h *flakyHandler) handled() []model.UserEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.UserEvent{}, h.events...)
}

func TestSubscriber_Consume(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "cdc")
	require.NoError(t, err)
	subscription, err := client.CreateSubscription(ctx, "worker", pubsub.SubscriptionConfig{Topic: topic, AckDeadline: 10 * time.Second})
	require.NoError(t, err)

	handler := &flakyHandler{failures: 1}
	sub, err := NewSubscriber(SubscriberArgs{Subscription: subscription, UserEventHandler: handler})
	require.NoError(t, err)

	consumeCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sub.Consume(consumeCtx) }()

	for _, data := range []string{`{`, `null`, insertMessage} {
		_, err := topic.Publish(ctx, &pubsub.Message{Data: []byte(data)}).Get(ctx)
		require.NoError(t, err)
	}

	// the handler failure is retried through redelivery
	require.Eventually(t, func() bool { return len(handler.handled()) == 1 }, 10*time.Second, 20*time.Millisecond)
	events := handler.handled()
	assert.Equal(t, "Bob", events[0].After.Name)
	assert.Nil(t, events[0].Before)

	cancel()
	assert.NoError(t, <-done)
	topic.Stop()
}

func TestNewSubscriber_MissingArgs(t *testing.T) {
	_, err := NewSubscriber(SubscriberArgs{})
	assert.Error(t, err)
}
