package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
	"golang.org/x/time/rate"
)

// ServerArgs are the mandatory args to instantiate the Server.
type ServerArgs struct {
	// Users is the account usecase.
	Users userUsecase

	// Referrals is the referral usecase.
	Referrals referralUsecase

	// Tokens verifies the caller tokens.
	Tokens ports.TokenIssuer

	// Metrics collects request and domain metrics.
	Metrics *Metrics
}

// ServerOptArgs are the optional arguments for building a Server.
type ServerOptArgs = func(*Server)

// WithCORSOrigins sets the origins allowed to send credentialed requests.
func WithCORSOrigins(origins []string) ServerOptArgs {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithSecureCookie marks the token cookie as Secure.
func WithSecureCookie(secure bool) ServerOptArgs {
	return func(s *Server) {
		s.cookieSecure = secure
	}
}

// WithAuthRateLimit limits register and login per client IP. A zero limit disables limiting.
func WithAuthRateLimit(limit rate.Limit, burst int) ServerOptArgs {
	return func(s *Server) {
		s.authLimit = limit
		s.authBurst = burst
	}
}

// Server is the HTTP surface of the referral program.
type Server struct {
	echo         *echo.Echo
	users        userUsecase
	referrals    referralUsecase
	tokens       ports.TokenIssuer
	metrics      *Metrics
	corsOrigins  []string
	cookieSecure bool
	authLimit    rate.Limit
	authBurst    int
}

// NewServer builds the echo instance with its middleware chain and routes.
func NewServer(args ServerArgs, optArgs ...ServerOptArgs) (*Server, error) {
	if args.Users == nil || args.Referrals == nil || args.Tokens == nil {
		return nil, errors.New("users, referrals and tokens are mandatory")
	}
	s := &Server{
		echo:      echo.New(),
		users:     args.Users,
		referrals: args.Referrals,
		tokens:    args.Tokens,
		metrics:   args.Metrics,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("referralhub")
	}
	for _, opt := range optArgs {
		opt(s)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Validator = newRequestValidator()

	e.Use(middleware.Recover())
	e.Use(requestID)
	e.Use(accessLog)
	e.Use(s.metrics.Middleware())
	if len(s.corsOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     s.corsOrigins,
			AllowCredentials: true,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, requestIDHeader},
		}))
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.GET("/docs/openapi.yaml", serveOpenAPIYAML)
	e.GET("/docs/openapi.json", serveOpenAPIJSON)

	users := e.Group("/users")

	public := []echo.MiddlewareFunc{}
	if s.authLimit > 0 {
		public = append(public, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      s.authLimit,
				Burst:     s.authBurst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			},
		}))
	}
	users.POST("/register", s.register, public...)
	users.POST("/login", s.login, public...)
	users.POST("/logout", s.logout)

	authed := users.Group("", authenticate(s.tokens))
	authed.GET("/check-auth", s.checkAuth)
	authed.GET("/referral/me", s.referralInfo)
	authed.POST("/referral/redeem", s.redeem)
	authed.GET("", s.listUsers)
	authed.GET("/:id", s.getUser)
	authed.PUT("/:id", s.updateUser)
	authed.DELETE("/:id", s.deleteUser)
}

// ServeHTTP serves a single request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown. It returns nil once the server is shut down.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// userUsecase
type userUsecase interface {
	// Register creates a user.
	Register(ctx context.Context, args model.RegisterArgs) (*model.RegisterResponse, error)

	// Login authenticates a user.
	Login(ctx context.Context, args model.LoginArgs) (*model.LoginResponse, error)

	// CheckAuth resolves the authenticated user.
	CheckAuth(ctx context.Context, userID string) (*model.User, error)

	// GetUser returns a user.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListUsers lists users.
	ListUsers(ctx context.Context, args model.ListUsersArgs) (*model.ListUsersResponse, error)

	// UpdateUser updates a user.
	UpdateUser(ctx context.Context, args model.UpdateUserArgs) (*model.UpdateUserResponse, error)

	// DeleteUser deletes a user.
	DeleteUser(ctx context.Context, args model.DeleteUserArgs) error
}

// referralUsecase
type referralUsecase interface {
	// GetReferralInfo returns the referral standing of a user.
	GetReferralInfo(ctx context.Context, userID string) (*model.ReferralInfo, error)

	// Redeem takes the redemption cost from the user balance.
	Redeem(ctx context.Context, userID string) (*model.RedeemResponse, error)
}
