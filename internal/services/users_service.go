package services

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"hive/internal/domain"
	"hive/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SuperAdminRole can never be modified through the API.
const SuperAdminRole = "Super Admin"

const (
	maxNameLen     = 255
	minPasswordLen = 8
)

// NewUser is a user row ready to insert. Role is resolved within Guard.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Guard        string
}

// UserChanges holds the fields an update sets; nil fields are left alone.
type UserChanges struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Role         *string
	Guard        string
}

// UserInput is a create or update request. On update, empty fields are
// left unchanged.
type UserInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UserAdminStore is the write side used by user administration.
type UserAdminStore interface {
	Stats(ctx context.Context) (domain.UserStats, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Create(ctx context.Context, u NewUser) (int64, error)
	Update(ctx context.Context, id int64, ch UserChanges) error
	Delete(ctx context.Context, id int64) error
}

// UsersService covers the user operations beyond listing.
type UsersService struct {
	Users       UserAdminStore
	ProtectedID int64
}

// Stats summarizes the users table for list meta.
func (s UsersService) Stats(ctx context.Context) (domain.UserStats, error) {
	return s.Users.Stats(ctx)
}

// Profile returns the authenticated user.
func (s UsersService) Profile(ctx context.Context, rc domain.RequestContext) (domain.User, error) {
	return s.Users.GetByID(ctx, int64(rc.UserID))
}

// IsProtected reports whether u is the system administrator record.
func (s UsersService) IsProtected(u domain.User) bool {
	if s.ProtectedID > 0 && u.ID == s.ProtectedID {
		return true
	}
	for _, r := range u.Roles {
		if r == SuperAdminRole {
			return true
		}
	}
	return false
}

// ToggleStatus flips is_active and returns the updated user.
func (s UsersService) ToggleStatus(ctx context.Context, rc domain.RequestContext, id int64) (domain.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if s.IsProtected(u) {
		return domain.User{}, domain.ForbiddenError{Msg: "the super admin cannot be modified"}
	}
	if int64(rc.UserID) == id {
		return domain.User{}, domain.ForbiddenError{Msg: "you cannot change your own status"}
	}
	if err := s.Users.SetActive(ctx, id, !u.IsActive); err != nil {
		return domain.User{}, err
	}
	u.IsActive = !u.IsActive
	utils.LogEvent(rc.RequestID, "users", "toggle_status", zap.Int64("user_id", id), zap.Bool("active", u.IsActive))
	return u, nil
}

// Show returns one user.
func (s UsersService) Show(ctx context.Context, id int64) (domain.User, error) {
	return s.Users.GetByID(ctx, id)
}

// Create adds an active user with one role. The account gets a random
// password until an admin sets one with Update.
func (s UsersService) Create(ctx context.Context, rc domain.RequestContext, in UserInput) (domain.User, error) {
	name, email, role := strings.TrimSpace(in.Name), normalizeEmail(in.Email), strings.TrimSpace(in.Role)
	if err := validateName("name", name); err != nil {
		return domain.User{}, err
	}
	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}
	if role == "" {
		return domain.User{}, domain.ValidationError{Field: "role", Msg: "is required"}
	}
	if role == SuperAdminRole {
		return domain.User{}, domain.ForbiddenError{Msg: "you cannot create a super admin user"}
	}

	hash, err := HashPassword(uuid.NewString())
	if err != nil {
		return domain.User{}, domain.InternalError{Msg: "could not hash password", Err: err}
	}
	id, err := s.Users.Create(ctx, NewUser{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Guard:        rc.GuardOrDefault(),
	})
	if err != nil {
		return domain.User{}, err
	}
	utils.LogEvent(rc.RequestID, "users", "create", zap.Int64("user_id", id), zap.String("role", role))
	return s.Users.GetByID(ctx, id)
}

// Update changes the given fields of a user. The super admin cannot be
// modified and the super admin role cannot be assigned.
func (s UsersService) Update(ctx context.Context, rc domain.RequestContext, id int64, in UserInput) (domain.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if s.IsProtected(u) {
		return domain.User{}, domain.ForbiddenError{Msg: "the super admin cannot be modified"}
	}

	ch := UserChanges{Guard: rc.GuardOrDefault()}
	if name := strings.TrimSpace(in.Name); name != "" {
		if err := validateName("name", name); err != nil {
			return domain.User{}, err
		}
		ch.Name = &name
	}
	if email := normalizeEmail(in.Email); email != "" {
		if err := validateEmail(email); err != nil {
			return domain.User{}, err
		}
		ch.Email = &email
	}
	if in.Password != "" {
		if utf8.RuneCountInString(in.Password) < minPasswordLen {
			return domain.User{}, domain.ValidationError{Field: "password", Msg: "must be at least 8 characters"}
		}
		hash, err := HashPassword(in.Password)
		if err != nil {
			return domain.User{}, domain.InternalError{Msg: "could not hash password", Err: err}
		}
		ch.PasswordHash = &hash
	}
	if role := strings.TrimSpace(in.Role); role != "" {
		if role == SuperAdminRole {
			return domain.User{}, domain.ForbiddenError{Msg: "you cannot assign the super admin role"}
		}
		if role != u.PrimaryRole() || len(u.Roles) != 1 {
			ch.Role = &role
		}
	}

	if err := s.Users.Update(ctx, id, ch); err != nil {
		return domain.User{}, err
	}
	utils.LogEvent(rc.RequestID, "users", "update", zap.Int64("user_id", id))
	return s.Users.GetByID(ctx, id)
}

// Delete removes a user. The super admin and the caller's own account
// cannot be deleted.
func (s UsersService) Delete(ctx context.Context, rc domain.RequestContext, id int64) error {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.IsProtected(u) {
		return domain.ForbiddenError{Msg: "the super admin cannot be deleted"}
	}
	if int64(rc.UserID) == id {
		return domain.ForbiddenError{Msg: "you cannot delete your own account"}
	}
	if err := s.Users.Delete(ctx, id); err != nil {
		return err
	}
	utils.LogEvent(rc.RequestID, "users", "delete", zap.Int64("user_id", id))
	return nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateName(field, name string) error {
	if name == "" {
		return domain.ValidationError{Field: field, Msg: "is required"}
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return domain.ValidationError{Field: field, Msg: "must be at most 255 characters"}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return domain.ValidationError{Field: "email", Msg: "is required"}
	}
	if a, err := mail.ParseAddress(email); err != nil || a.Address != email {
		return domain.ValidationError{Field: "email", Msg: "must be a valid email address", Err: err}
	}
	return nil
}
