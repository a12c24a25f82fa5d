package rest

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rbroggi/referralhub/internal/core/model"
	"github.com/rbroggi/referralhub/internal/core/ports"
)

const tokenCookieName = "token"

// authenticate resolves the caller from the bearer token, falling back to the token cookie, and
// stores its id under userIDKey.
func authenticate(tokens ports.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				if cookie, err := c.Cookie(tokenCookieName); err == nil {
					token = cookie.Value
				}
			}
			if token == "" {
				return model.ErrUnauthenticated
			}

			userID, err := tokens.Verify(c.Request().Context(), token)
			if err != nil {
				requestLogger(c).WithError(err).Debug("token rejected")
				return model.ErrUnauthenticated
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func callerID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func (s *Server) setTokenCookie(c echo.Context, token string, expiresAt time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearTokenCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
