package producer

import (
	"context"
	"encoding/json"
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

func newTestTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "user-events")
	require.NoError(t, err)
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestProducer_Send(t *testing.T) {
	srv, topic := newTestTopic(t)
	producer, err := NewProducer(topic)
	require.NoError(t, err)

	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	before := &model.User{ID: "u1", Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1234", CreatedAt: created, UpdatedAt: created}
	after := before.Clone()
	after.RewardPoints = 10
	after.Referrals = []string{"u2"}
	after.UpdatedAt = created.Add(time.Minute)

	tests := []struct {
		name         string
		event        model.UserEvent
		expectedType string
		expected     PublicEvent
	}{
		{
			name:         "creation",
			event:        model.UserEvent{ID: "e1", After: before},
			expectedType: model.EventTypeCreated,
			expected: PublicEvent{ID: "e1", Type: model.EventTypeCreated, After: &PublicUser{
				ID: "u1", Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1234", Referrals: []string{},
				CreatedAt: "2024-01-01T10:00:00.000000Z", UpdatedAt: "2024-01-01T10:00:00.000000Z",
			}},
		},
		{
			name:         "update",
			event:        model.UserEvent{ID: "e2", Before: before, After: &after},
			expectedType: model.EventTypeUpdated,
			expected: PublicEvent{ID: "e2", Type: model.EventTypeUpdated,
				Before: &PublicUser{
					ID: "u1", Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1234", Referrals: []string{},
					CreatedAt: "2024-01-01T10:00:00.000000Z", UpdatedAt: "2024-01-01T10:00:00.000000Z",
				},
				After: &PublicUser{
					ID: "u1", Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1234", Referrals: []string{"u2"}, RewardPoints: 10,
					CreatedAt: "2024-01-01T10:00:00.000000Z", UpdatedAt: "2024-01-01T10:01:00.000000Z",
				},
			},
		},
		{
			name:         "deletion",
			event:        model.UserEvent{ID: "e3", Before: &after},
			expectedType: model.EventTypeDeleted,
			expected: PublicEvent{ID: "e3", Type: model.EventTypeDeleted, Before: &PublicUser{
				ID: "u1", Name: "Alice", Email: "alice@example.com", ReferralCode: "ALI1234", Referrals: []string{"u2"}, RewardPoints: 10,
				CreatedAt: "2024-01-01T10:00:00.000000Z", UpdatedAt: "2024-01-01T10:01:00.000000Z",
			}},
		},
	}
	for i, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, producer.Send(context.Background(), test.event))

			msgs := srv.Messages()
			require.Len(t, msgs, i+1)
			msg := msgs[i]
			assert.Equal(t, test.expectedType, msg.Attributes[EventTypeAttribute])

			var got PublicEvent
			require.NoError(t, json.Unmarshal(msg.Data, &got))
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestProducer_NeverPublishesPasswordHash(t *testing.T) {
	srv, topic := newTestTopic(t)
	producer, err := NewProducer(topic)
	require.NoError(t, err)

	err = producer.Send(context.Background(), model.UserEvent{ID: "e1", After: &model.User{ID: "u1", PasswordHash: "$argon2id$secret"}})
	require.NoError(t, err)
	require.Len(t, srv.Messages(), 1)
	assert.NotContains(t, string(srv.Messages()[0].Data), "argon2id")
}

func TestNewProducer_NilTopic(t *testing.T) {
	_, err := NewProducer(nil)
	assert.Error(t, err)
}
