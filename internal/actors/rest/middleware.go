package rest

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
	userIDKey       = "user_id"
)

// requestID propagates the caller's X-Request-ID or assigns a new one, and attaches a request scoped logger.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Response().Header().Set(requestIDHeader, id)
		c.Set(loggerKey, log.WithField("request_id", id))
		return next(c)
	}
}

// accessLog logs one line per request once it has been served.
func accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			status = statusOf(err)
		}
		requestLogger(c).
			WithField("method", c.Request().Method).
			WithField("path", c.Request().URL.Path).
			WithField("status", status).
			WithField("latency", time.Since(start).String()).
			WithField("remote_ip", c.RealIP()).
			Info("request served")
		return err
	}
}

func requestLogger(c echo.Context) *log.Entry {
	if entry, ok := c.Get(loggerKey).(*log.Entry); ok {
		return entry
	}
	return log.NewEntry(log.StandardLogger())
}
