package usecase

import (
	"context"
	"fmt"

	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
)

const (
	// DefaultRedemptionCost is the amount of points taken by a single redemption.
	DefaultRedemptionCost int64 = 50

	// DeactivatedUserName replaces the name of soft-deleted referred users.
	DeactivatedUserName = "Deactivated user"
)

// ReferralServiceArgs contains the mandatory arguments for the ReferralService.
type ReferralServiceArgs struct {
	// Repository is the repository for persistance operations.
	Repository ports.Repository

	// RedemptionCost is the amount of points a redemption takes. Zero-value means DefaultRedemptionCost.
	RedemptionCost int64
}

// NewReferralService creates a new ReferralService.
func NewReferralService(args ReferralServiceArgs) *ReferralService {
	cost := args.RedemptionCost
	if cost == 0 {
		cost = DefaultRedemptionCost
	}
	return &ReferralService{repository: args.Repository, redemptionCost: cost}
}

// ReferralService exposes the referral standing of a user and reward redemption.
type ReferralService struct {
	repository     ports.Repository
	redemptionCost int64
}

// GetReferralInfo returns the referral code, balance and referred users of an active user.
func (s *ReferralService) GetReferralInfo(ctx context.Context, userID string) (*model.ReferralInfo, error) {
	if userID == "" {
		return nil, model.ErrNotFound
	}
	user, err := s.repository.GetUser(ctx, ports.GetUserQuery{ID: userID})
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	info := &model.ReferralInfo{
		ReferralCode: user.ReferralCode,
		RewardPoints: user.RewardPoints,
		Referrals:    make([]model.ReferredUser, 0, len(user.Referrals)),
	}
	if len(user.Referrals) == 0 {
		return info, nil
	}

	res, err := s.repository.ListUsers(ctx, ports.ListUsersQuery{IDs: user.Referrals, IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("error listing referred users: %w", err)
	}
	byID := make(map[string]model.User, len(res.Users))
	for _, u := range res.Users {
		byID[u.ID] = u
	}

	// stored order is the referral order
	for _, id := range user.Referrals {
		referred, ok := byID[id]
		if !ok || referred.IsDeleted {
			info.Referrals = append(info.Referrals, model.ReferredUser{ID: id, Name: DeactivatedUserName, Deactivated: true})
			continue
		}
		info.Referrals = append(info.Referrals, model.ReferredUser{ID: id, Name: referred.Name, Email: referred.Email})
	}
	return info, nil
}

// Redeem takes the redemption cost from the user balance. It returns model.ErrInsufficientPoints when
// the balance is below the cost.
func (s *ReferralService) Redeem(ctx context.Context, userID string) (*model.RedeemResponse, error) {
	if userID == "" {
		return nil, model.ErrNotFound
	}
	user, err := s.repository.RedeemPoints(ctx, userID, s.redemptionCost)
	if err != nil {
		return nil, fmt.Errorf("error redeeming points: %w", err)
	}
	return &model.RedeemResponse{Redeemed: s.redemptionCost, RemainingPoints: user.RewardPoints}, nil
}
