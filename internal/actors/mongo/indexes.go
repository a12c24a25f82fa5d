package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	emailIndexName        = "email_active_unique"
	referralCodeIndexName = "referral_code_unique"
	createdAtIndexName    = "created_at"
)

// EnsureIndexes creates the user collection indexes. Emails are unique among active users only so
// that a deleted account does not lock its address, while referral codes stay unique forever.
func (p *MongoDB) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName(emailIndexName).
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "is_deleted", Value: false}}),
		},
		{
			Keys:    bson.D{{Key: "referral_code", Value: 1}},
			Options: options.Index().SetName(referralCodeIndexName).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName(createdAtIndexName),
		},
	}
	if _, err := p.userCollection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("error creating user indexes: %w", err)
	}
	return nil
}

// EnablePreImages turns on pre and post images for the user collection so that change events carry
// the document state before the change. The collection must exist.
func (p *MongoDB) EnablePreImages(ctx context.Context) error {
	cmd := bson.D{
		{Key: "collMod", Value: p.userCollection.Name()},
		{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
	}
	if err := p.userCollection.Database().RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("error enabling change stream pre-images: %w", err)
	}
	return nil
}
