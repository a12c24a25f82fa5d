package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultReferralBonus is the amount of points credited to a referrer per referred registration.
	DefaultReferralBonus int64 = 10

	// DefaultCodeAttempts bounds the number of referral codes drawn for a single registration.
	DefaultCodeAttempts = 5
)

// UserServiceArgs contains the mandatory arguments for the UserService.
type UserServiceArgs struct {
	// Repository is the repository for persistance operations.
	Repository ports.Repository

	// Hasher hashes and verifies passwords.
	Hasher ports.PasswordHasher

	// Tokens issues access tokens.
	Tokens ports.TokenIssuer

	// CodeAttempts is the maximum number of referral codes drawn per registration. Zero-value means DefaultCodeAttempts.
	CodeAttempts int
}

// UserServiceOptArgs are the optional arguments for building a UserService
type UserServiceOptArgs = func(*UserService)

// WithReferralBonus overrides DefaultReferralBonus, the points credited to the referrer on each referred
// registration. Zero is honoured.
func WithReferralBonus(bonus int64) UserServiceOptArgs {
	return func(s *UserService) {
		s.referralBonus = bonus
	}
}

// WithCodeGenerator overrides the referral code generator. Useful for testing.
func WithCodeGenerator(gen CodeGenerator) UserServiceOptArgs {
	return func(s *UserService) {
		s.codeGenerator = gen
	}
}

// NewUserService creates a new UserService.
func NewUserService(args UserServiceArgs, optArgs ...UserServiceOptArgs) *UserService {
	s := &UserService{
		repository:    args.Repository,
		hasher:        args.Hasher,
		tokens:        args.Tokens,
		referralBonus: DefaultReferralBonus,
		codeAttempts:  args.CodeAttempts,
		codeGenerator: NewReferralCode,
	}
	if s.codeAttempts <= 0 {
		s.codeAttempts = DefaultCodeAttempts
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

// UserService gathers the functionality around the account lifecycle: registration, authentication
// and profile management.
type UserService struct {
	repository    ports.Repository
	hasher        ports.PasswordHasher
	tokens        ports.TokenIssuer
	referralBonus int64
	codeAttempts  int
	codeGenerator CodeGenerator
}

// Register creates a user, links it to its referrer when a referral code is given and issues a token.
func (s *UserService) Register(ctx context.Context, args model.RegisterArgs) (*model.RegisterResponse, error) {
	name := strings.TrimSpace(args.Name)
	email := normalizeEmail(args.Email)
	if name == "" || email == "" || args.Password == "" {
		return nil, fmt.Errorf("name, email and password are required: %w", model.ErrInvalidArgument)
	}

	var referrer *model.User
	if code := normalizeReferralCode(args.ReferralCode); code != "" {
		var err error
		referrer, err = s.repository.GetUser(ctx, ports.GetUserQuery{ReferralCode: code})
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidReferralCode
		}
		if err != nil {
			return nil, fmt.Errorf("error looking up referral code: %w", err)
		}
		if strings.EqualFold(referrer.Email, email) {
			return nil, model.ErrSelfReferral
		}
	}

	// after the referral lookup so that presenting one's own code reports a self-referral
	if err := s.ensureEmailAvailable(ctx, email, ""); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, args.Password)
	if err != nil {
		return nil, fmt.Errorf("error creating password hash: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Referrals:    []string{},
	}
	if referrer != nil {
		user.ReferrerID = referrer.ID
	}

	if err := s.saveWithUniqueCode(ctx, user); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}

	return &model.RegisterResponse{User: *user, Token: token, ExpiresAt: expiresAt}, nil
}

// saveWithUniqueCode draws referral codes until the store accepts one or the attempt budget is spent.
func (s *UserService) saveWithUniqueCode(ctx context.Context, user *model.User) error {
	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		user.ID = ""
		user.ReferralCode = s.codeGenerator(user.Name)

		var err error
		if user.ReferrerID != "" {
			err = s.repository.SaveReferredUser(ctx, user, s.referralBonus)
		} else {
			err = s.repository.SaveUser(ctx, user)
		}

		switch {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrDuplicateReferralCode):
			log.WithField("attempt", attempt).WithField("code", user.ReferralCode).Warn("referral code collision")
		case errors.Is(err, model.ErrDuplicateEmail), errors.Is(err, model.ErrInvalidReferralCode):
			return err
		default:
			return fmt.Errorf("error saving user in repository: %w", err)
		}
	}
	return model.ErrCodeGenerationExhausted
}

// Login verifies the credentials of an active user and issues a token.
func (s *UserService) Login(ctx context.Context, args model.LoginArgs) (*model.LoginResponse, error) {
	email := normalizeEmail(args.Email)
	if email == "" || args.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", model.ErrInvalidArgument)
	}

	user, err := s.repository.GetUser(ctx, ports.GetUserQuery{Email: email})
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	match, err := s.hasher.Verify(ctx, args.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("error verifying password: %w", err)
	}
	if !match {
		return nil, model.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}
	return &model.LoginResponse{User: *user, Token: token, ExpiresAt: expiresAt}, nil
}

// CheckAuth resolves the authenticated user id into its active user. It returns
// model.ErrUnauthenticated if the user is gone or deleted.
func (s *UserService) CheckAuth(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.ErrUnauthenticated
	}
	user, err := s.repository.GetUser(ctx, ports.GetUserQuery{ID: userID})
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}
	return user, nil
}

// GetUser returns an active user. It returns model.ErrNotFound if the user is absent or deleted.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, model.ErrNotFound
	}
	user, err := s.repository.GetUser(ctx, ports.GetUserQuery{ID: id})
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return user, nil
}

// ListUsers lists active users.
func (s *UserService) ListUsers(ctx context.Context, args model.ListUsersArgs) (*model.ListUsersResponse, error) {
	res, err := s.repository.ListUsers(ctx, ports.ListUsersQuery{
		Limit:  args.Limit,
		Offset: args.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("error listing users on the repository: %w", err)
	}

	return &model.ListUsersResponse{Users: res.Users}, nil
}

// UpdateUser updates a user. It returns model.ErrNotFound if the ID does not correspond to an active user.
func (s *UserService) UpdateUser(ctx context.Context, args model.UpdateUserArgs) (*model.UpdateUserResponse, error) {
	if args.ID == "" {
		return nil, model.ErrNotFound
	}
	user := &model.User{
		ID:    args.ID,
		Name:  strings.TrimSpace(args.Name),
		Email: normalizeEmail(args.Email),
	}

	if user.Email != "" {
		if err := s.ensureEmailAvailable(ctx, user.Email, user.ID); err != nil {
			return nil, err
		}
	}

	if args.Password != "" {
		hash, err := s.hasher.Hash(ctx, args.Password)
		if err != nil {
			return nil, fmt.Errorf("error creating password hash: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.repository.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	return &model.UpdateUserResponse{User: *user}, nil
}

// DeleteUser soft-deletes a user. Deleting an already deleted user returns model.ErrNotFound.
func (s *UserService) DeleteUser(ctx context.Context, args model.DeleteUserArgs) error {
	if args.ID == "" {
		return model.ErrNotFound
	}
	if err := s.repository.DeleteUser(ctx, ports.DeleteUserQuery{ID: args.ID}); err != nil {
		return fmt.Errorf("error deleting user from repository: %w", err)
	}
	return nil
}

// ensureEmailAvailable returns model.ErrDuplicateEmail if an active user other than selfID owns email.
func (s *UserService) ensureEmailAvailable(ctx context.Context, email, selfID string) error {
	existing, err := s.repository.GetUser(ctx, ports.GetUserQuery{Email: email})
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error checking email availability: %w", err)
	}
	if existing.ID != selfID {
		return model.ErrDuplicateEmail
	}
	return nil
}
