package model

import (
	"time"
)

// RegisterArgs contain the arguments of the Register method.
type RegisterArgs struct {
	// Name is the user display name.
	Name string

	// Email is the user email.
	Email string

	// Password is the user password.
	Password string

	// ReferralCode is the optional code of the referring user.
	ReferralCode string
}

// RegisterResponse contains the response of the Register method.
type RegisterResponse struct {
	// User is the created user.
	User User

	// Token is the issued access token.
	Token string

	// ExpiresAt is the token expiry.
	ExpiresAt time.Time
}

// LoginArgs contain the arguments of the Login method.
type LoginArgs struct {
	Email    string
	Password string
}

// LoginResponse contains the response of the Login method.
type LoginResponse struct {
	// User is the authenticated user.
	User User

	// Token is the issued access token.
	Token string

	// ExpiresAt is the token expiry.
	ExpiresAt time.Time
}

// ListUsersArgs contain the arguments for the ListUsers use-case.
type ListUsersArgs struct {
	// Limit is the maximum amount of users to return (for pagination). Zero-value will be interpreted as no-limit.
	Limit uint32

	// Offset is the offset to apply (for pagination). Zero-value will be interpreted as 0 Offset.
	Offset uint32
}

// ListUsersResponse contains the users matching the input query of the ListUsers api.
type ListUsersResponse struct {
	// Users are the users matching the ListUsers query.
	Users []User
}

// UpdateUserArgs contain the arguments of the UpdateUser method. Empty fields are left unchanged.
type UpdateUserArgs struct {
	// ID is the id of the user to be updated.
	ID string

	// Name is the new display name.
	Name string

	// Email is the new email.
	Email string

	// Password is the new plain-text password. It is hashed before storage.
	Password string
}

// UpdateUserResponse contains the response of the UpdateUser method.
type UpdateUserResponse struct {
	// User
	User User
}

// DeleteUserArgs contains the arguments for deleting a user.
type DeleteUserArgs struct {
	// ID is the id of the user to be deleted.
	ID string
}

// ReferralInfo is the referral summary of a user.
type ReferralInfo struct {
	ReferralCode string
	RewardPoints int64
	Referrals    []ReferredUser
}

// ReferredUser is the lightweight view of a referred user.
type ReferredUser struct {
	ID    string
	Name  string
	Email string

	// Deactivated is set when the referred user has been soft-deleted.
	Deactivated bool
}

// RedeemResponse contains the response of the Redeem method.
type RedeemResponse struct {
	// Redeemed is the amount of points taken from the balance.
	Redeemed int64

	// RemainingPoints is the balance after the redemption.
	RemainingPoints int64
}
