package model

import (
	"time"
)

// User represents a participant of the referral program.
type User struct {
	// ID unique identifier of the user.
	ID string `json:"id"`

	// Name is the user display name.
	Name string `json:"name"`

	// Email is the user email, normalized to lower-case. It is the login identifier.
	Email string `json:"email"`

	// PasswordHash contains the password hash.
	PasswordHash string `json:"password_hash,omitempty"`

	// ReferralCode is the code other users present at registration to be referred by this user.
	ReferralCode string `json:"referral_code"`

	// ReferrerID is the id of the user who referred this one. Empty if the user registered without a code.
	ReferrerID string `json:"referrer_id,omitempty"`

	// Referrals are the ids of the users referred by this user, in referral order.
	Referrals []string `json:"referrals"`

	// RewardPoints is the current reward balance.
	RewardPoints int64 `json:"reward_points"`

	// IsDeleted marks a soft-deleted user.
	IsDeleted bool `json:"is_deleted"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the time at which the user was last updated
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the user.
func (u User) Clone() User {
	c := u
	if u.Referrals != nil {
		c.Referrals = append([]string{}, u.Referrals...)
	}
	return c
}

// UserEvent collects a user change. It can represent creation, update and deletion of a user.
type UserEvent struct {
	// ID is the event id.
	ID string

	// Before is the user state before the event. It will be nil in case of user-creations.
	Before *User

	// After is the user state after the event. It will be nil in case of deletions.
	After *User
}

// EventType classifies the event based on which states are present.
func (e UserEvent) EventType() string {
	switch {
	case e.Before == nil && e.After != nil:
		return EventTypeCreated
	case e.Before != nil && e.After == nil:
		return EventTypeDeleted
	default:
		return EventTypeUpdated
	}
}

const (
	EventTypeCreated = "created"
	EventTypeUpdated = "updated"
	EventTypeDeleted = "deleted"
)
