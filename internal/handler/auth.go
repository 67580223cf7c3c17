package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/interviewer/internal/model"
)

const (
	userIDHeader   = "X-User-ID"
	userRoleHeader = "X-User-Role"
	roleAdmin      = "admin"
)

var errUnauthenticated = errors.New("unauthenticated")

// Claims are the token claims the service reads. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller of a request. With a secret it accepts
// HS256 bearer tokens only; without one it trusts the X-User-ID header, which
// is meant for local development behind a trusted proxy.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// TokenMode reports whether bearer tokens are required.
func (a *Authenticator) TokenMode() bool { return len(a.secret) > 0 }

// Issue signs a token for userID valid for ttl.
func (a *Authenticator) Issue(userID string, admin bool, ttl time.Duration) (string, error) {
	if !a.TokenMode() {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if admin {
		claims.Role = roleAdmin
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Identify returns the caller of r.
func (a *Authenticator) Identify(r *http.Request) (*model.User, error) {
	if !a.TokenMode() {
		id := strings.TrimSpace(r.Header.Get(userIDHeader))
		if id == "" {
			return nil, errUnauthenticated
		}
		return &model.User{ID: id, Admin: r.Header.Get(userRoleHeader) == roleAdmin}, nil
	}

	raw := bearerToken(r)
	if raw == "" {
		return nil, errUnauthenticated
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", errUnauthenticated)
	}
	return &model.User{ID: claims.Subject, Admin: claims.Role == roleAdmin}, nil
}

// UserID resolves only the caller id. It is handed to the relay hub, whose
// browser clients pass the token as a query parameter.
func (a *Authenticator) UserID(r *http.Request) (string, error) {
	u, err := a.Identify(r)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// requireUser rejects requests without a resolvable caller.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.auth.Identify(r)
		if err != nil {
			slog.Debug("authentication failed", "path", r.URL.Path, "error", err)
			h.writeError(w, r, http.StatusUnauthorized, "ErrUnauthorized")
			return
		}
		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin must run after requireUser.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := model.UserFromContext(r.Context())
		if user == nil {
			h.writeError(w, r, http.StatusUnauthorized, "ErrUnauthorized")
			return
		}
		if !user.Admin {
			h.writeError(w, r, http.StatusForbidden, "ErrForbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
