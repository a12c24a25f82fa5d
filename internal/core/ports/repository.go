package ports

import (
	"context"

	"github.com/rbroggi/referralhub/internal/core/model"
)

// Repository is the interface for the persistence layer.
//
// Implementations must enforce email uniqueness among active users and referral-code uniqueness
// among all users, reporting violations as model.ErrDuplicateEmail and model.ErrDuplicateReferralCode.
type Repository interface {
	// SaveUser durably saves a new user. ID, CreatedAt and UpdatedAt are set on the input.
	SaveUser(ctx context.Context, user *model.User) error

	// SaveReferredUser saves a new user whose ReferrerID is set and, in the same transaction, appends
	// the new user id to the referrer's referrals and credits the referrer with bonus points.
	// It returns model.ErrInvalidReferralCode if the referrer is not an active user anymore.
	SaveReferredUser(ctx context.Context, user *model.User, bonus int64) error

	// UpdateUser updates an active user and saves the state in the persistence layer.
	// All the non-zero values among Name, Email and PasswordHash will be updated; the input is then
	// filled with the stored state. It returns model.ErrNotFound if no active user matches.
	UpdateUser(ctx context.Context, user *model.User) error

	// GetUser returns the single user matching the query, or model.ErrNotFound.
	GetUser(ctx context.Context, query GetUserQuery) (*model.User, error)

	// ListUsers lists all users matching the query parameters, ordered by creation time.
	ListUsers(ctx context.Context, query ListUsersQuery) (*ListUsersResult, error)

	// DeleteUser soft-deletes the user. It returns model.ErrNotFound if the user does not exist or is
	// already deleted.
	DeleteUser(ctx context.Context, query DeleteUserQuery) error

	// RedeemPoints atomically takes cost points from an active user balance and returns the updated
	// user. It returns model.ErrNotFound or model.ErrInsufficientPoints.
	RedeemPoints(ctx context.Context, id string, cost int64) (*model.User, error)
}

// GetUserQuery selects a single user. Exactly one of ID, Email and ReferralCode is expected.
type GetUserQuery struct {
	// ID is the user id.
	ID string

	// Email is the normalized user email.
	Email string

	// ReferralCode is the user referral code.
	ReferralCode string

	// IncludeDeleted also matches soft-deleted users.
	IncludeDeleted bool
}

// ListUsersQuery gather the parameters for which the query
type ListUsersQuery struct {
	// IDs restricts the result to these user ids. Zero-value will be ignored as filter.
	IDs []string

	// IncludeDeleted also returns soft-deleted users.
	IncludeDeleted bool

	// Limit is the maximum amount of users to return (for pagination). Zero-value will be interpreted as no-limit.
	Limit uint32

	// Offset is the offset to apply (for pagination). Zero-value will be interpreted as 0 Offset.
	Offset uint32
}

// ListUsersResult gathers the result
type ListUsersResult struct {
	// Users are the users matching the query parameters
	Users []model.User
}

// DeleteUserQuery
type DeleteUserQuery struct {
	// ID is the ID of the user to be deleted
	ID string
}
