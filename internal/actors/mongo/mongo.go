package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserCollectionName is the collection holding the users.
const UserCollectionName = "users"

// MongoDB is a mongo adapter for persistance.
type MongoDB struct {
	userCollection *mongo.Collection
	nowFunc        func() time.Time
}

// MongoDBArgs are the mandatory arguments for the creation of a MongoDB
type MongoDBArgs struct {
	// UserCollection is a mongo collection
	UserCollection *mongo.Collection
}

// MongoDBOptArgs are the optional arguments for building a MongoDB
type MongoDBOptArgs = func(*MongoDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) MongoDBOptArgs {
	return func(p *MongoDB) {
		p.nowFunc = nowFunc
	}
}

// NewMongoDB creates a new MongoDB.
func NewMongoDB(args MongoDBArgs, optArgs ...MongoDBOptArgs) (*MongoDB, error) {
	if args.UserCollection == nil {
		return nil, errors.New("nil user collection")
	}
	p := &MongoDB{userCollection: args.UserCollection, nowFunc: func() time.Time { return time.Now().UTC() }}
	for _, opt := range optArgs {
		opt(p)
	}
	return p, nil
}

// SaveUser will save the user in the database.
func (p *MongoDB) SaveUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}

	dbUser, err := p.toDBModel(user)
	if err != nil {
		return err
	}
	if _, err := p.userCollection.InsertOne(ctx, dbUser); err != nil {
		return translateWriteError(err)
	}

	*user = translateDBToModel(*dbUser)
	return nil
}

// SaveReferredUser inserts the user and credits its referrer within a single transaction.
// Transactions require the server to run as a replica set.
func (p *MongoDB) SaveReferredUser(ctx context.Context, user *model.User, bonus int64) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}
	referrerID, err := primitive.ObjectIDFromHex(user.ReferrerID)
	if err != nil {
		return model.ErrInvalidReferralCode
	}

	dbUser, err := p.toDBModel(user)
	if err != nil {
		return err
	}

	session, err := p.userCollection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("error starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := p.userCollection.InsertOne(sc, dbUser); err != nil {
			return nil, err
		}
		res, err := p.userCollection.UpdateOne(sc,
			bson.D{{Key: "_id", Value: referrerID}, {Key: "is_deleted", Value: false}},
			bson.D{
				{Key: "$push", Value: bson.D{{Key: "referrals", Value: dbUser.ID}}},
				{Key: "$inc", Value: bson.D{{Key: "reward_points", Value: bonus}}},
				{Key: "$set", Value: bson.D{{Key: "updated_at", Value: dbUser.CreatedAt}}},
			})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, model.ErrInvalidReferralCode
		}
		return nil, nil
	})
	if err != nil {
		return translateWriteError(err)
	}

	*user = translateDBToModel(*dbUser)
	return nil
}

// UpdateUser will update user. It returns model.ErrNotFound if the input user does not exist or is deleted.
func (p *MongoDB) UpdateUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to update method")
	}

	objectID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return model.ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	updated := new(userDB)
	err = p.userCollection.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: objectID}, {Key: "is_deleted", Value: false}},
		p.updateExisting(user),
		opts,
	).Decode(updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ErrNotFound
	}
	if err != nil {
		return translateWriteError(err)
	}

	*user = translateDBToModel(*updated)
	return nil
}

// GetUser returns the user matching the query. It returns model.ErrNotFound when none does.
func (p *MongoDB) GetUser(ctx context.Context, query ports.GetUserQuery) (*model.User, error) {
	filter := bson.D{}
	switch {
	case query.ID != "":
		objectID, err := primitive.ObjectIDFromHex(query.ID)
		if err != nil {
			return nil, model.ErrNotFound
		}
		filter = append(filter, bson.E{Key: "_id", Value: objectID})
	case query.Email != "":
		filter = append(filter, bson.E{Key: "email", Value: query.Email})
	case query.ReferralCode != "":
		filter = append(filter, bson.E{Key: "referral_code", Value: query.ReferralCode})
	default:
		return nil, fmt.Errorf("empty user query: %w", model.ErrInvalidArgument)
	}
	if !query.IncludeDeleted {
		filter = append(filter, bson.E{Key: "is_deleted", Value: false})
	}

	dbUser := new(userDB)
	if err := p.userCollection.FindOne(ctx, filter).Decode(dbUser); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	user := translateDBToModel(*dbUser)
	return &user, nil
}

// ListUsers list users matching the parameters in input
func (p *MongoDB) ListUsers(ctx context.Context, query ports.ListUsersQuery) (*ports.ListUsersResult, error) {

	filters := bson.M{}
	if !query.IncludeDeleted {
		filters["is_deleted"] = false
	}
	if len(query.IDs) > 0 {
		ids := make([]primitive.ObjectID, 0, len(query.IDs))
		for _, id := range query.IDs {
			// ids that cannot exist in this store are skipped
			if objectID, err := primitive.ObjectIDFromHex(id); err == nil {
				ids = append(ids, objectID)
			}
		}
		filters["_id"] = bson.M{"$in": ids}
	}

	opts := new(options.FindOptions)
	if query.Limit != uint32(0) {
		l := int64(query.Limit)
		opts.Limit = &l
	}
	if query.Offset != uint32(0) {
		s := int64(query.Offset)
		opts.Skip = &s
	}
	opts = opts.SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	var users []userDB
	cursor, err := p.userCollection.Find(ctx, filters, opts)
	if err != nil {
		return nil, err
	}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return &ports.ListUsersResult{
		Users: translateDBToModels(users),
	}, nil
}

// DeleteUser will soft-delete a user. The document is kept as a tombstone.
func (p *MongoDB) DeleteUser(ctx context.Context, query ports.DeleteUserQuery) error {
	objectID, err := primitive.ObjectIDFromHex(query.ID)
	if err != nil {
		return model.ErrNotFound
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "is_deleted", Value: true},
		{Key: "updated_at", Value: p.nowFunc()},
	}}}
	res, err := p.userCollection.UpdateOne(ctx, bson.D{{Key: "_id", Value: objectID}, {Key: "is_deleted", Value: false}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// RedeemPoints atomically takes cost points from the balance of an active user holding at least cost points.
func (p *MongoDB) RedeemPoints(ctx context.Context, id string, cost int64) (*model.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	updated := new(userDB)
	err = p.userCollection.FindOneAndUpdate(ctx,
		bson.D{
			{Key: "_id", Value: objectID},
			{Key: "is_deleted", Value: false},
			{Key: "reward_points", Value: bson.D{{Key: "$gte", Value: cost}}},
		},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "reward_points", Value: -cost}}},
			{Key: "$set", Value: bson.D{{Key: "updated_at", Value: p.nowFunc()}}},
		},
		opts,
	).Decode(updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// either the user is gone or the balance is too low
		if _, err := p.GetUser(ctx, ports.GetUserQuery{ID: id}); err != nil {
			return nil, err
		}
		return nil, model.ErrInsufficientPoints
	}
	if err != nil {
		return nil, err
	}
	user := translateDBToModel(*updated)
	return &user, nil
}

func (p *MongoDB) toDBModel(user *model.User) (*userDB, error) {
	now := p.nowFunc()
	dbUser := &userDB{
		ID:           primitive.NewObjectID(),
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		ReferralCode: user.ReferralCode,
		Referrals:    []primitive.ObjectID{},
		RewardPoints: user.RewardPoints,
		IsDeleted:    user.IsDeleted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.ID != "" {
		id, err := primitive.ObjectIDFromHex(user.ID)
		if err != nil {
			return nil, fmt.Errorf("malformed user id %q: %w", user.ID, model.ErrInvalidArgument)
		}
		dbUser.ID = id
	}
	if user.ReferrerID != "" {
		id, err := primitive.ObjectIDFromHex(user.ReferrerID)
		if err != nil {
			return nil, model.ErrInvalidReferralCode
		}
		dbUser.ReferrerID = id
	}
	for _, referral := range user.Referrals {
		id, err := primitive.ObjectIDFromHex(referral)
		if err != nil {
			return nil, fmt.Errorf("malformed referral id %q: %w", referral, model.ErrInvalidArgument)
		}
		dbUser.Referrals = append(dbUser.Referrals, id)
	}
	if !user.CreatedAt.IsZero() {
		dbUser.CreatedAt = user.CreatedAt
	}
	return dbUser, nil
}

func (p *MongoDB) updateExisting(user *model.User) bson.D {
	toUpdate := bson.D{}
	if user.Name != "" {
		toUpdate = append(toUpdate, bson.E{Key: "name", Value: user.Name})
	}
	if user.Email != "" {
		toUpdate = append(toUpdate, bson.E{Key: "email", Value: user.Email})
	}
	if len(user.PasswordHash) != 0 {
		toUpdate = append(toUpdate, bson.E{Key: "password_hash", Value: user.PasswordHash})
	}
	toUpdate = append(toUpdate, bson.E{Key: "updated_at", Value: p.nowFunc()})

	return bson.D{{Key: "$set", Value: toUpdate}}
}

// translateWriteError maps unique index violations to the domain errors.
func translateWriteError(err error) error {
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, emailIndexName):
		return model.ErrDuplicateEmail
	case strings.Contains(msg, referralCodeIndexName):
		return model.ErrDuplicateReferralCode
	}
	return err
}

func translateDBToModels(dbUsers []userDB) []model.User {
	models := make([]model.User, len(dbUsers))
	for i, dbUser := range dbUsers {
		models[i] = translateDBToModel(dbUser)
	}
	return models
}

func translateDBToModel(dbUser userDB) model.User {
	user := model.User{
		ID:           dbUser.ID.Hex(),
		Name:         dbUser.Name,
		Email:        dbUser.Email,
		PasswordHash: dbUser.PasswordHash,
		ReferralCode: dbUser.ReferralCode,
		Referrals:    make([]string, len(dbUser.Referrals)),
		RewardPoints: dbUser.RewardPoints,
		IsDeleted:    dbUser.IsDeleted,
		CreatedAt:    dbUser.CreatedAt,
		UpdatedAt:    dbUser.UpdatedAt,
	}
	if !dbUser.ReferrerID.IsZero() {
		user.ReferrerID = dbUser.ReferrerID.Hex()
	}
	for i, id := range dbUser.Referrals {
		user.Referrals[i] = id.Hex()
	}
	return user
}

type userDB struct {
	// ID unique identifier of the user.
	ID primitive.ObjectID `bson:"_id"`

	// Name is the user display name.
	Name string `bson:"name"`

	// Email is the normalized user email
	Email string `bson:"email"`

	// PasswordHash contains the password hash.
	PasswordHash string `bson:"password_hash"`

	// ReferralCode is unique across all users, deleted ones included.
	ReferralCode string `bson:"referral_code"`

	// ReferrerID is the referring user. Absent when the user registered without a code.
	ReferrerID primitive.ObjectID `bson:"referrer,omitempty"`

	// Referrals are the referred users, append-only.
	Referrals []primitive.ObjectID `bson:"referrals"`

	// RewardPoints is the reward balance.
	RewardPoints int64 `bson:"reward_points"`

	// IsDeleted marks a tombstone.
	IsDeleted bool `bson:"is_deleted"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `bson:"created_at"`

	// UpdatedAt is the time at which the user was last updated
	UpdatedAt time.Time `bson:"updated_at"`
}
