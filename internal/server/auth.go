package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

const (
	RoleAdmin      = "ADMIN"
	RoleStaff      = "STAFF"
	RoleSuperAdmin = "SUPERADMIN"
)

func adminRole(role string) bool {
	switch role {
	case RoleAdmin, RoleStaff, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller of an admin request.
type Actor struct {
	Username string
	Role     string
}

type actorKey struct{}

func withActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the caller stored by the auth middleware.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

type Authenticator struct {
	users   UserRepo
	secret  []byte
	ttl     time.Duration
	timeNow func() time.Time
}

func NewAuthenticator(users UserRepo, secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{users: users, secret: []byte(secret), ttl: ttl, timeNow: time.Now}
}

func (a *Authenticator) IssueToken(user *repository.User) (string, time.Time, error) {
	now := a.timeNow()
	expires := now.Add(a.ttl)
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (a *Authenticator) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.timeNow),
	)
	if err != nil || !token.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}

// Authenticate accepts a Bearer token or HTTP Basic credentials.
func (a *Authenticator) Authenticate(r *http.Request) (Actor, error) {
	header := r.Header.Get("Authorization")
	if parts := strings.Fields(header); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		claims, err := a.ParseToken(parts[1])
		if err != nil {
			return Actor{}, err
		}
		return Actor{Username: claims.Subject, Role: claims.Role}, nil
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		return Actor{}, apperr.Unauthorized("missing credentials")
	}
	return a.login(r.Context(), username, password)
}

func (a *Authenticator) login(ctx context.Context, username, password string) (Actor, error) {
	user, err := a.users.ValidateUser(ctx, username, password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			return Actor{}, apperr.Unauthorized(err.Error())
		}
		return Actor{}, apperr.Persistence("failed to validate user", err)
	}
	return Actor{Username: user.Username, Role: user.Role}, nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.auth.Authenticate(r)
		if err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			}
			s.writeError(w, r, err)
			return
		}
		if !adminRole(actor.Role) {
			s.writeError(w, r, apperr.Forbidden("admin or staff role required"))
			return
		}

		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

// requireSecret guards webhooks with a shared secret header. An empty
// secret disables the endpoint.
func (s *Server) requireSecret(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Webhook-Secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			s.writeError(w, r, apperr.Unauthorized("invalid webhook secret"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, err := s.auth.login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !adminRole(actor.Role) {
		s.writeError(w, r, apperr.Forbidden("admin or staff role required"))
		return
	}

	token, expires, err := s.auth.IssueToken(&repository.User{Username: actor.Username, Role: actor.Role})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"role":      actor.Role,
		"expiresAt": expires.UTC(),
	})
}
