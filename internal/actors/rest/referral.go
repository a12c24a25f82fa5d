package rest

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rbroggi/referralhub/internal/core/model"
)

type referredUserResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Deactivated bool   `json:"deactivated,omitempty"`
}

type referralInfoResponse struct {
	ReferralCode string                 `json:"referralCode"`
	RewardPoints int64                  `json:"rewardPoints"`
	Referrals    []referredUserResponse `json:"referrals"`
}

type redeemResponse struct {
	Message         string `json:"message"`
	Redeemed        int64  `json:"redeemed"`
	RemainingPoints int64  `json:"remainingPoints"`
}

func (s *Server) referralInfo(c echo.Context) error {
	info, err := s.referrals.GetReferralInfo(c.Request().Context(), callerID(c))
	if err != nil {
		return err
	}
	resp := referralInfoResponse{
		ReferralCode: info.ReferralCode,
		RewardPoints: info.RewardPoints,
		Referrals:    make([]referredUserResponse, len(info.Referrals)),
	}
	for i, r := range info.Referrals {
		resp.Referrals[i] = referredUserResponse{ID: r.ID, Name: r.Name, Email: r.Email, Deactivated: r.Deactivated}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) redeem(c echo.Context) error {
	resp, err := s.referrals.Redeem(c.Request().Context(), callerID(c))
	switch {
	case errors.Is(err, model.ErrInsufficientPoints):
		s.metrics.recordRedemption("insufficient_points")
		return err
	case err != nil:
		s.metrics.recordRedemption("error")
		return err
	}
	s.metrics.recordRedemption("success")
	requestLogger(c).WithField("user_id", callerID(c)).WithField("remaining_points", resp.RemainingPoints).Info("points redeemed")

	return c.JSON(http.StatusOK, redeemResponse{
		Message:         "reward redeemed",
		Redeemed:        resp.Redeemed,
		RemainingPoints: resp.RemainingPoints,
	})
}
