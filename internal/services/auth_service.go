package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hive/internal/domain"
	"hive/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Credentials is what login needs from the user store.
type Credentials struct {
	User         domain.User
	PasswordHash string
}

// CredentialStore looks users up by email.
type CredentialStore interface {
	FindCredentials(ctx context.Context, email string) (Credentials, error)
}

// Claims is the bearer token payload.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Guard  string `json:"guard"`
	Tenant string `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

// Revocations remembers logged-out token ids until the tokens expire.
type Revocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func NewRevocations() *Revocations {
	return &Revocations{ids: map[string]time.Time{}}
}

// Revoke rejects id until the token would have expired anyway.
func (r *Revocations) Revoke(id string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = until
}

// Revoked reports whether id was revoked, dropping entries past expiry.
func (r *Revocations) Revoked(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, until := range r.ids {
		if !now.Before(until) {
			delete(r.ids, k)
		}
	}
	_, ok := r.ids[id]
	return ok
}

// AuthService issues and checks bearer tokens.
type AuthService struct {
	Users  CredentialStore
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
	// Revoked holds logged-out tokens; nil disables logout.
	Revoked *Revocations
}

var errBadCredentials = domain.UnauthorizedError{Msg: "invalid email or password"}

// Login verifies the password and returns a signed token.
func (s AuthService) Login(ctx context.Context, rc domain.RequestContext, email, password string) (string, domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", domain.User{}, domain.ValidationError{Msg: "email and password are required"}
	}

	cred, err := s.Users.FindCredentials(ctx, email)
	if err != nil {
		if domain.IsNotFound(err) {
			return "", domain.User{}, errBadCredentials
		}
		return "", domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", domain.User{}, errBadCredentials
	}
	if !cred.User.IsActive {
		return "", domain.User{}, domain.ForbiddenError{Msg: "account is inactive"}
	}

	token, err := s.Issue(Claims{
		UserID: cred.User.ID,
		Role:   cred.User.PrimaryRole(),
		Guard:  rc.GuardOrDefault(),
		Tenant: rc.Tenant,
	})
	if err != nil {
		return "", domain.User{}, domain.InternalError{Msg: "could not create token", Err: err}
	}
	return token, cred.User, nil
}

// Issue signs claims with HS256, filling expiry from TTL.
func (s AuthService) Issue(c Claims) (string, error) {
	now := s.now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl()))
	c.Subject = fmt.Sprint(c.UserID)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.Secret)
}

// Parse validates a token and returns the request context it carries.
func (s AuthService) Parse(token string) (domain.RequestContext, error) {
	var c Claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return domain.RequestContext{}, domain.UnauthorizedError{Msg: msg, Err: err}
	}
	if !parsed.Valid || c.UserID <= 0 {
		return domain.RequestContext{}, domain.UnauthorizedError{Msg: "invalid token"}
	}
	if s.Revoked != nil && s.Revoked.Revoked(c.ID, s.now()) {
		return domain.RequestContext{}, domain.UnauthorizedError{Msg: "token revoked"}
	}
	rc := domain.RequestContext{
		UserID:  domain.ID(c.UserID),
		Role:    c.Role,
		Guard:   c.Guard,
		Tenant:  c.Tenant,
		TokenID: c.ID,
	}
	if c.ExpiresAt != nil {
		rc.TokenExpiry = c.ExpiresAt.Time
	}
	return rc, nil
}

// Logout revokes the caller's token.
func (s AuthService) Logout(ctx context.Context, rc domain.RequestContext) error {
	if s.Revoked == nil || rc.TokenID == "" {
		return nil
	}
	until := rc.TokenExpiry
	if until.IsZero() {
		until = s.now().Add(s.ttl())
	}
	s.Revoked.Revoke(rc.TokenID, until)
	utils.LogEvent(rc.RequestID, "auth", "logout", zap.Int64("user_id", int64(rc.UserID)))
	return nil
}

// HashPassword is used by seeders and tests.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s AuthService) ttl() time.Duration {
	if s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

func (s AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
