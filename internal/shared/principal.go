package shared

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/recargaplus/storefront/internal/roles"
)

// Session value keys written by the login flow.
const (
	SessionKeyUserID  = "user.id"
	SessionKeyName    = "user.name"
	SessionKeyEmail   = "user.email"
	SessionKeyRole    = "user.role"
	SessionKeyToken   = "accessToken"
	SessionKeyExpires = "expires"
)

// tokenKeys lists every field that has carried the bearer token over time,
// in lookup order.
var tokenKeys = []string{"accessToken", "token", "user.token"}

var roleKeys = []string{SessionKeyRole, "role"}

// Principal is the actor behind a request: either Authenticated or
// Anonymous.
type Principal interface {
	principal()
}

// Anonymous is a request without a usable session.
type Anonymous struct{}

// Authenticated is a request carrying a bearer token for the backend API.
type Authenticated struct {
	UserID  string
	Name    string
	Email   string
	Role    roles.Role
	RawRole string
	Token   string
	Expires time.Time
}

func (Anonymous) principal()     {}
func (Authenticated) principal() {}

// PrincipalFromSession extracts the identity stored in sess. A session
// without a token, with an unreadable expiry or past its expiry yields
// Anonymous.
func PrincipalFromSession(sess *Session, now time.Time) Principal {
	if sess == nil || sess.destroyed {
		return Anonymous{}
	}
	token := firstValue(sess, tokenKeys)
	if token == "" {
		return Anonymous{}
	}
	var expires time.Time
	if raw := strings.TrimSpace(sess.Get(SessionKeyExpires)); raw != "" {
		parsed, ok := parseExpiry(raw)
		if !ok || !now.Before(parsed) {
			return Anonymous{}
		}
		expires = parsed
	}
	userID := strings.TrimSpace(sess.User())
	if userID == "" {
		userID = strings.TrimSpace(sess.Get(SessionKeyUserID))
	}
	rawRole := firstValue(sess, roleKeys)
	return Authenticated{
		UserID:  userID,
		Name:    sess.Get(SessionKeyName),
		Email:   sess.Get(SessionKeyEmail),
		Role:    roles.Normalize(rawRole),
		RawRole: rawRole,
		Token:   token,
		Expires: expires,
	}
}

type sessionContextKey struct{}

// ContextWithSession attaches the request session to ctx.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request session, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// PrincipalFromContext resolves the principal of the session stored in ctx.
func PrincipalFromContext(ctx context.Context) Principal {
	return PrincipalFromSession(SessionFromContext(ctx), time.Now())
}

func firstValue(sess *Session, keys []string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(sess.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

func parseExpiry(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0), true
	}
	return time.Time{}, false
}
