package main

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rbroggi/referralhub/internal/config"
	log "github.com/sirupsen/logrus"
)

// ensureTopic creates the topic unless it already exists.
func ensureTopic(ctx context.Context, client *pubsub.Client, topicID string) (*pubsub.Topic, error) {
	topic, err := client.CreateTopic(ctx, topicID)
	if status.Code(err) == codes.AlreadyExists {
		return client.Topic(topicID), nil
	}
	return topic, err
}

// ensureSubscription creates the subscription on topic unless it already exists.
func ensureSubscription(ctx context.Context, client *pubsub.Client, topic *pubsub.Topic, subscriptionID string) error {
	_, err := client.CreateSubscription(ctx, subscriptionID, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 30 * time.Second,
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("error loading configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	projectID := cfg.PubSub.ProjectID
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		log.WithError(err).WithField("project", projectID).Fatal("unable to create pubsub client")
	}
	defer client.Close()

	if _, err := ensureTopic(ctx, client, cfg.PubSub.PublicTopicID); err != nil {
		log.WithError(err).WithField("topic", cfg.PubSub.PublicTopicID).Fatal("unable to create topic")
	}
	log.WithField("project", projectID).WithField("topic", cfg.PubSub.PublicTopicID).Info("public topic ready")

	// the debezium connector publishes postgres changes to the CDC topic, drained by the worker
	cdcTopic, err := ensureTopic(ctx, client, cfg.PubSub.CDCTopicID)
	if err != nil {
		log.WithError(err).WithField("topic", cfg.PubSub.CDCTopicID).Fatal("unable to create topic")
	}
	if err := ensureSubscription(ctx, client, cdcTopic, cfg.PubSub.CDCSubscriptID); err != nil {
		log.WithError(err).WithField("subscription", cfg.PubSub.CDCSubscriptID).Fatal("unable to create subscription")
	}
	log.
		WithField("project", projectID).
		WithField("topic", cfg.PubSub.CDCTopicID).
		WithField("subscription", cfg.PubSub.CDCSubscriptID).
		Info("cdc topic and subscription ready")
}
