package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChangeWatcherArgs are the mandatory arguments for the creation of a ChangeWatcher.
type ChangeWatcherArgs struct {
	// UserCollection is the watched collection.
	UserCollection *mongo.Collection

	// Handler receives one model.UserEvent per change.
	Handler ports.UserEventHandler
}

// ChangeWatcher turns the change stream of the user collection into user events.
type ChangeWatcher struct {
	userCollection *mongo.Collection
	handler        ports.UserEventHandler
	resumeToken    bson.Raw
}

// NewChangeWatcher creates a ChangeWatcher.
func NewChangeWatcher(args ChangeWatcherArgs) (*ChangeWatcher, error) {
	if args.UserCollection == nil {
		return nil, errors.New("nil user collection")
	}
	if args.Handler == nil {
		return nil, errors.New("nil handler")
	}
	return &ChangeWatcher{userCollection: args.UserCollection, handler: args.Handler}, nil
}

// Consume blocks handling changes until ctx is cancelled or an event fails to be handled.
// Calling Consume again resumes after the last handled event.
func (w *ChangeWatcher) Consume(ctx context.Context) error {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if w.resumeToken != nil {
		opts = opts.SetStartAfter(w.resumeToken)
	}
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{
			{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}},
		}}}}},
	}

	stream, err := w.userCollection.Watch(ctx, pipeline, opts)
	if err != nil {
		return fmt.Errorf("error opening change stream: %w", err)
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var change changeEvent
		if err := stream.Decode(&change); err != nil {
			return fmt.Errorf("error decoding change event: %w", err)
		}
		event := change.toUserEvent()
		if err := w.handler.Handle(ctx, event); err != nil {
			return fmt.Errorf("error handling change event [%s]: %w", event.ID, err)
		}
		w.resumeToken = stream.ResumeToken()
		log.WithField("event_id", event.ID).WithField("operation", change.OperationType).Debug("change event handled")
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("change stream error: %w", err)
	}
	return nil
}

type changeEvent struct {
	ID struct {
		Data string `bson:"_data"`
	} `bson:"_id"`
	OperationType            string  `bson:"operationType"`
	FullDocument             *userDB `bson:"fullDocument"`
	FullDocumentBeforeChange *userDB `bson:"fullDocumentBeforeChange"`
}

func (c changeEvent) toUserEvent() model.UserEvent {
	event := model.UserEvent{ID: c.ID.Data}
	if c.FullDocumentBeforeChange != nil {
		before := translateDBToModel(*c.FullDocumentBeforeChange)
		event.Before = &before
	}
	if c.FullDocument != nil && c.OperationType != "delete" {
		after := translateDBToModel(*c.FullDocument)
		event.After = &after
	}
	return event
}
