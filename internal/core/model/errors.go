package model

import "errors"

var (
	// ErrNotFound is returned when an entity is required to exist and does not.
	ErrNotFound = errors.New("entity was not found")

	// ErrInvalidArgument is returned when a mandatory input is missing or malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateEmail is returned when an active user already owns the email.
	ErrDuplicateEmail = errors.New("email already in use")

	// ErrDuplicateReferralCode is returned by the store when the referral code is already taken.
	ErrDuplicateReferralCode = errors.New("referral code already in use")

	// ErrCodeGenerationExhausted is returned when no free referral code was found within the attempt budget.
	ErrCodeGenerationExhausted = errors.New("could not generate a unique referral code")

	// ErrInvalidCredentials is returned on login failures. It never tells apart unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidReferralCode is returned when no active user owns the presented referral code.
	ErrInvalidReferralCode = errors.New("invalid referral code")

	// ErrSelfReferral is returned when a user tries to register with its own referral code.
	ErrSelfReferral = errors.New("self referral is not allowed")

	// ErrInsufficientPoints is returned when the reward balance is below the redemption cost.
	ErrInsufficientPoints = errors.New("not enough points to redeem")

	// ErrUnauthenticated is returned when the caller identity cannot be resolved to an active user.
	ErrUnauthenticated = errors.New("unauthenticated")
)
