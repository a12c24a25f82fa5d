package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rbroggi/referralhub/internal/core/model"
)

type registerRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,min=6,max=128"`
	ReferralCode string `json:"referralCode" validate:"omitempty,max=32"`

	// LegacyReferralCode is the snake_case spelling accepted by earlier clients.
	LegacyReferralCode string `json:"referral_code" validate:"omitempty,max=32"`
}

func (r registerRequest) referralCode() string {
	if r.ReferralCode != "" {
		return r.ReferralCode
	}
	return r.LegacyReferralCode
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type listUsersRequest struct {
	Limit  uint32 `query:"limit" validate:"max=1000"`
	Offset uint32 `query:"offset"`
}

type userIDRequest struct {
	ID string `param:"id" json:"-" validate:"required"`
}

type updateUserRequest struct {
	ID       string `param:"id" json:"-" validate:"required"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"omitempty,min=6,max=128"`
}

// userSummary is returned on registration.
type userSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ReferralCode string `json:"referralCode"`
}

type authResponse struct {
	User      userSummary `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type loginResponse struct {
	User      userProfile `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// userProfile is the public view of a user. The password hash never leaves the service.
type userProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	ReferralCode string    `json:"referralCode"`
	ReferrerID   string    `json:"referrerId,omitempty"`
	Referrals    []string  `json:"referrals"`
	RewardPoints int64     `json:"rewardPoints"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type listUsersResponse struct {
	Users []userProfile `json:"users"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	resp, err := s.users.Register(c.Request().Context(), model.RegisterArgs{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		ReferralCode: req.referralCode(),
	})
	if err != nil {
		return err
	}
	s.metrics.recordRegistration(resp.User.ReferrerID != "")
	requestLogger(c).WithField("user_id", resp.User.ID).Info("user registered")

	return c.JSON(http.StatusCreated, authResponse{
		User:      toSummary(resp.User),
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
	})
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	resp, err := s.users.Login(c.Request().Context(), model.LoginArgs{Email: req.Email, Password: req.Password})
	if errors.Is(err, model.ErrInvalidCredentials) {
		s.metrics.recordLogin("invalid_credentials")
		return err
	}
	if err != nil {
		s.metrics.recordLogin("error")
		return err
	}
	s.metrics.recordLogin("success")

	s.setTokenCookie(c, resp.Token, resp.ExpiresAt)
	return c.JSON(http.StatusOK, loginResponse{
		User:      toProfile(resp.User),
		Token:     resp.Token,
		ExpiresAt: resp.ExpiresAt,
	})
}

func (s *Server) logout(c echo.Context) error {
	s.clearTokenCookie(c)
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) checkAuth(c echo.Context) error {
	user, err := s.users.CheckAuth(c.Request().Context(), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfile(*user))
}

func (s *Server) listUsers(c echo.Context) error {
	var req listUsersRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := s.users.ListUsers(c.Request().Context(), model.ListUsersArgs{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listUsersResponse{Users: toProfiles(resp.Users)})
}

func (s *Server) getUser(c echo.Context) error {
	var req userIDRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := s.users.GetUser(c.Request().Context(), req.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfile(*user))
}

func (s *Server) updateUser(c echo.Context) error {
	var req updateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := s.users.UpdateUser(c.Request().Context(), model.UpdateUserArgs{
		ID:       req.ID,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfile(resp.User))
}

func (s *Server) deleteUser(c echo.Context) error {
	var req userIDRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := s.users.DeleteUser(c.Request().Context(), model.DeleteUserArgs{ID: req.ID}); err != nil {
		return err
	}
	requestLogger(c).WithField("user_id", req.ID).WithField("caller_id", callerID(c)).Info("user deleted")
	return c.JSON(http.StatusOK, messageResponse{Message: "user deleted"})
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	return c.Validate(req)
}

func toSummary(user model.User) userSummary {
	return userSummary{ID: user.ID, Name: user.Name, Email: user.Email, ReferralCode: user.ReferralCode}
}

func toProfiles(users []model.User) []userProfile {
	ret := make([]userProfile, len(users))
	for i, u := range users {
		ret[i] = toProfile(u)
	}
	return ret
}

func toProfile(user model.User) userProfile {
	referrals := user.Referrals
	if referrals == nil {
		referrals = []string{}
	}
	return userProfile{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		ReferralCode: user.ReferralCode,
		ReferrerID:   user.ReferrerID,
		Referrals:    referrals,
		RewardPoints: user.RewardPoints,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}
