package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/google/uuid"
	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
)

const (
	emailIndexName        = "email_active_unique"
	referralCodeIndexName = "referral_code_unique"
)

// PostgresDB is a postgress adapter for persistance.
type PostgresDB struct {
	db      *pg.DB
	nowFunc func() time.Time
}

// PostgresDBArgs are the mandatory arguments for the creation of a PostgresDB
type PostgresDBArgs struct {
	// DB is a postgres database handle
	DB *pg.DB
}

// PostgresDBOptArgs are the optional arguments for building a PostgresDB
type PostgresDBOptArgs = func(*PostgresDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) PostgresDBOptArgs {
	return func(p *PostgresDB) {
		p.nowFunc = nowFunc
	}
}

// NewPostgresDB creates a new PostgresDB.
func NewPostgresDB(args PostgresDBArgs, optArgs ...PostgresDBOptArgs) (*PostgresDB, error) {
	if args.DB == nil {
		return nil, errors.New("nil postgres db")
	}
	pg := &PostgresDB{db: args.DB, nowFunc: func() time.Time { return time.Now().UTC() }}
	for _, opt := range optArgs {
		opt(pg)
	}
	return pg, nil
}

// SaveUser will save the user in the database.
func (p *PostgresDB) SaveUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}

	dbUser, err := p.toDBModel(user)
	if err != nil {
		return err
	}
	if _, err := p.db.ModelContext(ctx, dbUser).Insert(); err != nil {
		return translateWriteError(err)
	}

	*user = translateDBToModel(*dbUser)
	return nil
}

// SaveReferredUser inserts the user and credits its referrer within a single transaction.
func (p *PostgresDB) SaveReferredUser(ctx context.Context, user *model.User, bonus int64) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}
	if _, err := uuid.Parse(user.ReferrerID); err != nil {
		return model.ErrInvalidReferralCode
	}

	dbUser, err := p.toDBModel(user)
	if err != nil {
		return err
	}

	err = p.db.RunInTransaction(ctx, func(tx *pg.Tx) error {
		if _, err := tx.ModelContext(ctx, dbUser).Insert(); err != nil {
			return err
		}
		res, err := tx.ModelContext(ctx, (*userDB)(nil)).
			Set("referrals = array_append(referrals, ?::uuid)", dbUser.ID.String()).
			Set("reward_points = reward_points + ?", bonus).
			Set("updated_at = ?", dbUser.CreatedAt).
			Where("id = ?", user.ReferrerID).
			Where("is_deleted = FALSE").
			Update()
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return model.ErrInvalidReferralCode
		}
		return nil
	})
	if err != nil {
		return translateWriteError(err)
	}

	*user = translateDBToModel(*dbUser)
	return nil
}

// UpdateUser will update user. It returns model.ErrNotFound if the input user does not exist or is deleted.
func (p *PostgresDB) UpdateUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to update method")
	}
	if _, err := uuid.Parse(user.ID); err != nil {
		return model.ErrNotFound
	}

	updated := new(userDB)
	q := p.db.ModelContext(ctx, updated).
		Set("updated_at = ?", p.nowFunc()).
		Where("id = ?", user.ID).
		Where("is_deleted = FALSE").
		Returning("*")
	if user.Name != "" {
		q = q.Set("name = ?", user.Name)
	}
	if user.Email != "" {
		q = q.Set("email = ?", user.Email)
	}
	if len(user.PasswordHash) != 0 {
		q = q.Set("password_hash = ?", user.PasswordHash)
	}

	res, err := q.Update()
	if errors.Is(err, pg.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return translateWriteError(err)
	}
	if res.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	*user = translateDBToModel(*updated)
	return nil
}

// GetUser returns the user matching the query. It returns model.ErrNotFound when none does.
func (p *PostgresDB) GetUser(ctx context.Context, query ports.GetUserQuery) (*model.User, error) {
	dbUser := new(userDB)
	q := p.db.ModelContext(ctx, dbUser)
	switch {
	case query.ID != "":
		if _, err := uuid.Parse(query.ID); err != nil {
			return nil, model.ErrNotFound
		}
		q = q.Where("id = ?", query.ID)
	case query.Email != "":
		q = q.Where("email = ?", query.Email)
	case query.ReferralCode != "":
		q = q.Where("referral_code = ?", query.ReferralCode)
	default:
		return nil, fmt.Errorf("empty user query: %w", model.ErrInvalidArgument)
	}
	if !query.IncludeDeleted {
		q = q.Where("is_deleted = FALSE")
	}

	if err := q.Limit(1).Select(); err != nil {
		if errors.Is(err, pg.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	user := translateDBToModel(*dbUser)
	return &user, nil
}

// ListUsers list users matching the parameters in input
func (p *PostgresDB) ListUsers(ctx context.Context, query ports.ListUsersQuery) (*ports.ListUsersResult, error) {
	var users []userDB
	q := p.db.ModelContext(ctx, &users).Order("created_at ASC", "id ASC")

	if !query.IncludeDeleted {
		q = q.Where("is_deleted = FALSE")
	}
	if len(query.IDs) > 0 {
		ids := make([]string, 0, len(query.IDs))
		for _, id := range query.IDs {
			// ids that cannot exist in this store are skipped
			if _, err := uuid.Parse(id); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return &ports.ListUsersResult{Users: []model.User{}}, nil
		}
		q = q.WhereIn("id IN (?)", ids)
	}
	if query.Limit != uint32(0) {
		q = q.Limit(int(query.Limit))
	}
	if query.Offset != uint32(0) {
		q = q.Offset(int(query.Offset))
	}
	if err := q.Select(); err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, err
	}

	return &ports.ListUsersResult{
		Users: translateDBToModels(users),
	}, nil
}

// DeleteUser will soft-delete a user. The row is kept as a tombstone.
func (p *PostgresDB) DeleteUser(ctx context.Context, query ports.DeleteUserQuery) error {
	if _, err := uuid.Parse(query.ID); err != nil {
		return model.ErrNotFound
	}
	res, err := p.db.ModelContext(ctx, (*userDB)(nil)).
		Set("is_deleted = TRUE").
		Set("updated_at = ?", p.nowFunc()).
		Where("id = ?", query.ID).
		Where("is_deleted = FALSE").
		Update()
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// RedeemPoints atomically takes cost points from the balance of an active user holding at least cost points.
func (p *PostgresDB) RedeemPoints(ctx context.Context, id string, cost int64) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	updated := new(userDB)
	res, err := p.db.ModelContext(ctx, updated).
		Set("reward_points = reward_points - ?", cost).
		Set("updated_at = ?", p.nowFunc()).
		Where("id = ?", id).
		Where("is_deleted = FALSE").
		Where("reward_points >= ?", cost).
		Returning("*").
		Update()
	if err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, err
	}
	if err != nil || res.RowsAffected() == 0 {
		// either the user is gone or the balance is too low
		if _, err := p.GetUser(ctx, ports.GetUserQuery{ID: id}); err != nil {
			return nil, err
		}
		return nil, model.ErrInsufficientPoints
	}

	user := translateDBToModel(*updated)
	return &user, nil
}

func (p *PostgresDB) toDBModel(user *model.User) (*userDB, error) {
	now := p.nowFunc()
	dbUser := &userDB{
		ID:           uuid.New(),
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		ReferralCode: user.ReferralCode,
		ReferrerID:   user.ReferrerID,
		Referrals:    []string{},
		RewardPoints: user.RewardPoints,
		IsDeleted:    user.IsDeleted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.ID != "" {
		id, err := uuid.Parse(user.ID)
		if err != nil {
			return nil, fmt.Errorf("malformed user id %q: %w", user.ID, model.ErrInvalidArgument)
		}
		dbUser.ID = id
	}
	dbUser.Referrals = append(dbUser.Referrals, user.Referrals...)
	if !user.CreatedAt.IsZero() {
		dbUser.CreatedAt = user.CreatedAt
	}
	return dbUser, nil
}

// translateWriteError maps unique constraint violations to the domain errors.
func translateWriteError(err error) error {
	var pgErr pg.Error
	if err == nil || !errors.As(err, &pgErr) || !pgErr.IntegrityViolation() {
		return err
	}
	switch pgErr.Field('n') {
	case emailIndexName:
		return model.ErrDuplicateEmail
	case referralCodeIndexName:
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
	referrals := make([]string, len(dbUser.Referrals))
	copy(referrals, dbUser.Referrals)
	return model.User{
		ID:           dbUser.ID.String(),
		Name:         dbUser.Name,
		Email:        dbUser.Email,
		PasswordHash: dbUser.PasswordHash,
		ReferralCode: dbUser.ReferralCode,
		ReferrerID:   dbUser.ReferrerID,
		Referrals:    referrals,
		RewardPoints: dbUser.RewardPoints,
		IsDeleted:    dbUser.IsDeleted,
		CreatedAt:    dbUser.CreatedAt.UTC(),
		UpdatedAt:    dbUser.UpdatedAt.UTC(),
	}
}

type userDB struct {
	tableName struct{} `pg:"referrals.users"`

	// ID unique identifier of the user.
	ID uuid.UUID `pg:"id,type:uuid,default:uuid_generate_v4()"`

	// Name is the user display name.
	Name string `pg:"name"`

	// Email is the normalized user email
	Email string `pg:"email"`

	// PasswordHash contains the password hash.
	PasswordHash string `pg:"password_hash"`

	// ReferralCode is unique across all users, deleted ones included.
	ReferralCode string `pg:"referral_code"`

	// ReferrerID is the referring user. Stored as NULL when empty.
	ReferrerID string `pg:"referrer_id,type:uuid"`

	// Referrals are the referred users, append-only.
	Referrals []string `pg:"referrals,type:uuid[],array,use_zero"`

	// RewardPoints is the reward balance.
	RewardPoints int64 `pg:"reward_points,use_zero"`

	// IsDeleted marks a tombstone.
	IsDeleted bool `pg:"is_deleted,use_zero"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `pg:"created_at"`

	// UpdatedAt is the time at which the user was last updated
	UpdatedAt time.Time `pg:"updated_at"`
}
