package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/opd-scribe/internal/session"
)

const sessionCookie = "opd_scribe_session"

type ctxKey int

const (
	ctxSessionID ctxKey = iota
	ctxHolder
)

// SessionStore is the subset of session.Store used by the HTTP layer.
type SessionStore interface {
	Acquire(id string) (string, *session.Holder)
	End(id string)
	Len() int
}

// Sessions attaches the caller's session holder to the request context,
// issuing a fresh session cookie when the presented one is missing or stale.
func Sessions(store SessionStore, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := ""
			if c, err := r.Cookie(sessionCookie); err == nil {
				presented = c.Value
			}

			id, holder := store.Acquire(presented)
			if id != presented {
				setSessionCookie(w, id, secure)
			}

			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("session", id[:8])
			})

			ctx := context.WithValue(r.Context(), ctxSessionID, id)
			ctx = context.WithValue(ctx, ctxHolder, holder)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HolderFrom returns the session holder attached by Sessions.
func HolderFrom(ctx context.Context) *session.Holder {
	h, _ := ctx.Value(ctxHolder).(*session.Holder)
	return h
}

// SessionIDFrom returns the session id attached by Sessions.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxSessionID).(string)
	return id
}

func setSessionCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionHandler ends sessions on request.
type SessionHandler struct {
	store  SessionStore
	secure bool
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store SessionStore, secure bool) *SessionHandler {
	return &SessionHandler{store: store, secure: secure}
}

// End handles DELETE /api/v1/session.
// The session's case note is destroyed with it.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.store.End(SessionIDFrom(r.Context()))
	clearSessionCookie(w, h.secure)
	w.WriteHeader(http.StatusNoContent)
}
