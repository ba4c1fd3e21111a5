package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

const (
	HeaderUserID     = "X-User-ID"
	HeaderSessionKey = "X-Session-Key"
	HeaderRequestID  = "X-Request-ID"
	SessionCookie    = "session_key"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	requestIDKey
)

// IdentityMiddleware resolves who the request acts for. X-User-ID is trusted
// as set by the upstream gateway. A request without any session key gets a
// new one, returned in both the response header and the session cookie.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id domain.Identity

		if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid user id")
				return
			}
			id.UserID = userID
		}

		id.SessionKey = strings.TrimSpace(r.Header.Get(HeaderSessionKey))
		if id.SessionKey == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				id.SessionKey = strings.TrimSpace(c.Value)
			}
		}
		if id.SessionKey == "" && !id.Authenticated() {
			id.SessionKey = uuid.NewString()
			w.Header().Set(HeaderSessionKey, id.SessionKey)
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id.SessionKey,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return id
	}
	return domain.Identity{}
}

// WithIdentity attaches id to ctx the same way IdentityMiddleware does.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
