package app

import (
	"log/slog"
	"net/http"
)

type contextKey string

const (
	userIDContextKey    = contextKey("userID")
	userEmailContextKey = contextKey("userEmail")
	loggerContextKey    = contextKey("logger")
)

// contextGetUserId returns the authenticated user's id, or zero for guests.
func (app *Application) contextGetUserId(r *http.Request) int64 {
	userID, ok := r.Context().Value(userIDContextKey).(int64)
	if !ok {
		return 0
	}

	return userID
}

// contextGetUserEmail returns the authenticated user's email as forwarded by the
// upstream gateway, or empty.
func (app *Application) contextGetUserEmail(r *http.Request) string {
	email, ok := r.Context().Value(userEmailContextKey).(string)
	if !ok {
		return ""
	}

	return email
}

func (app *Application) contextGetLogger(r *http.Request) *slog.Logger {
	logger, ok := r.Context().Value(loggerContextKey).(*slog.Logger)
	if !ok {
		return app.logger
	}

	return logger
}
