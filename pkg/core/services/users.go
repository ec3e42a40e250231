package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/mentor-bridge/internal/config"
	"github.com/jakechorley/mentor-bridge/pkg/core/model"
	"github.com/jakechorley/mentor-bridge/pkg/core/visibility"
	"github.com/jakechorley/mentor-bridge/pkg/db"
	"github.com/jakechorley/mentor-bridge/pkg/password"
	"github.com/jakechorley/mentor-bridge/pkg/session"
)

const (
	minPasswordLength       = 8
	temporaryPasswordLength = 16
)

// hashParams is nil in production, meaning password.DefaultParams
var hashParams *password.Params

// UserInput holds the fields of a new account
type UserInput struct {
	Name     string
	Nickname string
	Email    string
	Role     model.Role
	Roles    []model.Role
	Phone    string
	// Password is optional; when empty a temporary password is generated and must be changed at first login
	Password string
}

// UserUpdate holds the fields to change on an account; nil fields are left as they are
type UserUpdate struct {
	Name     *string
	Nickname *string
	Email    *string
	Role     *model.Role
	Roles    *[]model.Role
	Phone    *string
}

func requirePermission(actor model.User, action visibility.Action) error {
	if !visibility.UserCan(actor, action) {
		return fmt.Errorf("%w: %s requires the %s permission", ErrForbidden, actor.ID, action)
	}
	return nil
}

func validateRoles(primary model.Role, extra []model.Role) error {
	if !primary.IsValid() {
		return invalid("unknown role %q", primary)
	}
	for _, r := range extra {
		if !r.IsValid() {
			return invalid("unknown role %q", r)
		}
	}
	return nil
}

func dedupeRoles(primary model.Role, extra []model.Role) []model.Role {
	var roles []model.Role
	for _, r := range extra {
		if r != primary && !model.HasRole(roles, r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// CreateUser adds an account. Returns the temporary password when one was generated; it is
// not stored or logged and cannot be recovered later.
func CreateUser(ctx context.Context, database db.UserStore, logger *zap.Logger, actor model.User, input UserInput) (*model.User, string, error) {
	if err := requirePermission(actor, visibility.ActionManageUsers); err != nil {
		return nil, "", err
	}
	if err := validateRoles(input.Role, input.Roles); err != nil {
		return nil, "", err
	}

	user := model.User{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(input.Name),
		Nickname:  strings.TrimSpace(input.Nickname),
		Email:     model.NormalizeEmail(input.Email),
		Role:      input.Role,
		Roles:     dedupeRoles(input.Role, input.Roles),
		Phone:     strings.TrimSpace(input.Phone),
		CreatedAt: clock(),
	}
	if err := validateEntity("user", user); err != nil {
		return nil, "", err
	}

	plain := input.Password
	temporary := ""
	if plain == "" {
		generated, err := password.GenerateTemporary(temporaryPasswordLength)
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate temporary password: %w", err)
		}
		plain = generated
		temporary = generated
		user.RequiresPasswordChange = true
	} else if len(plain) < minPasswordLength {
		return nil, "", invalid("password must be at least %d characters", minPasswordLength)
	}

	hash, err := password.Hash(plain, hashParams)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash

	if err := database.InsertUser(ctx, &user); err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			return nil, "", &ValidationError{Message: fmt.Sprintf("email %s is already in use", user.Email), Err: err}
		}
		return nil, "", fmt.Errorf("failed to insert user: %w", err)
	}

	logger.Info("User created",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("role", string(user.Role)),
		zap.String("actor_id", actor.ID))

	return &user, temporary, nil
}

// ErrAlreadyBootstrapped is returned by BootstrapAdmin once any account exists
var ErrAlreadyBootstrapped = errors.New("accounts already exist")

// BootstrapAdmin creates the first admin account of an empty system with a temporary password
func BootstrapAdmin(ctx context.Context, database db.UserStore, logger *zap.Logger, name, email string) (*model.User, string, error) {
	existing, err := database.GetUsers(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch users: %w", err)
	}
	if len(existing) > 0 {
		return nil, "", ErrAlreadyBootstrapped
	}

	system := model.User{ID: "system", Role: model.RoleAdmin}
	return CreateUser(ctx, database, logger, system, UserInput{Name: name, Email: email, Role: model.RoleAdmin})
}

// mutateUser loads id, applies mutate and writes with compare-and-swap, retrying on conflicts
func mutateUser(
	ctx context.Context,
	database db.UserStore,
	cfg *config.Config,
	logger *zap.Logger,
	operation string,
	id string,
	mutate func(model.User) (model.User, error),
) (*model.User, error) {
	var result *model.User

	err := retryOnConflict(ctx, cfg, logger, operation, id, func() error {
		current, err := database.GetUser(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}

		next, err := mutate(current.Clone())
		if err != nil {
			return err
		}

		if err := database.UpdateUser(ctx, &next); err != nil {
			if errors.Is(err, db.ErrDuplicateEmail) {
				return &ValidationError{Message: fmt.Sprintf("email %s is already in use", next.Email), Err: err}
			}
			return fmt.Errorf("failed to update user: %w", err)
		}

		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateUser edits an account. Users may change their own name, nickname and phone;
// email and roles need the manage_users permission.
func UpdateUser(ctx context.Context, database db.UserStore, cfg *config.Config, logger *zap.Logger, actor model.User, id string, update UserUpdate) (*model.User, error) {
	isAdmin := visibility.UserCan(actor, visibility.ActionManageUsers)
	if !isAdmin && actor.ID != id {
		return nil, fmt.Errorf("%w: cannot edit another user's account", ErrForbidden)
	}
	if !isAdmin && (update.Email != nil || update.Role != nil || update.Roles != nil) {
		return nil, fmt.Errorf("%w: changing email or roles requires the %s permission", ErrForbidden, visibility.ActionManageUsers)
	}

	user, err := mutateUser(ctx, database, cfg, logger, "update_user", id, func(u model.User) (model.User, error) {
		if update.Name != nil {
			u.Name = strings.TrimSpace(*update.Name)
		}
		if update.Nickname != nil {
			u.Nickname = strings.TrimSpace(*update.Nickname)
		}
		if update.Phone != nil {
			u.Phone = strings.TrimSpace(*update.Phone)
		}
		if update.Email != nil {
			u.Email = model.NormalizeEmail(*update.Email)
		}
		if update.Role != nil {
			u.Role = *update.Role
		}
		if update.Roles != nil {
			u.Roles = *update.Roles
		}
		if err := validateRoles(u.Role, u.Roles); err != nil {
			return u, err
		}
		u.Roles = dedupeRoles(u.Role, u.Roles)
		if actor.ID == id && isAdmin && !u.HasRole(model.RoleAdmin) && actor.HasRole(model.RoleAdmin) {
			return u, invalid("admins cannot remove their own admin role")
		}
		return u, validateEntity("user", u)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("User updated", zap.String("user_id", id), zap.String("actor_id", actor.ID))
	return user, nil
}

// DeleteUser permanently removes an account
func DeleteUser(ctx context.Context, database db.UserStore, logger *zap.Logger, actor model.User, id string) error {
	if err := requirePermission(actor, visibility.ActionManageUsers); err != nil {
		return err
	}
	if actor.ID == id {
		return invalid("cannot delete your own account")
	}

	if err := database.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	logger.Info("User deleted", zap.String("user_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// ResetPassword replaces a user's password with a generated temporary one, returned once
func ResetPassword(ctx context.Context, database db.UserStore, cfg *config.Config, logger *zap.Logger, actor model.User, id string) (string, error) {
	if err := requirePermission(actor, visibility.ActionManageUsers); err != nil {
		return "", err
	}

	temporary, err := password.GenerateTemporary(temporaryPasswordLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate temporary password: %w", err)
	}
	hash, err := password.Hash(temporary, hashParams)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = mutateUser(ctx, database, cfg, logger, "reset_password", id, func(u model.User) (model.User, error) {
		u.PasswordHash = hash
		u.RequiresPasswordChange = true
		return u, nil
	})
	if err != nil {
		return "", err
	}

	logger.Info("Password reset", zap.String("user_id", id), zap.String("actor_id", actor.ID))
	return temporary, nil
}

// ChangePassword sets a new password after verifying the current one and clears the change flag
func ChangePassword(ctx context.Context, database db.UserStore, cfg *config.Config, logger *zap.Logger, userID, current, next string) error {
	if len(next) < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}
	if next == current {
		return invalid("new password must differ from the current one")
	}

	hash, err := password.Hash(next, hashParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = mutateUser(ctx, database, cfg, logger, "change_password", userID, func(u model.User) (model.User, error) {
		ok, err := password.Verify(current, u.PasswordHash)
		if err != nil || !ok {
			return u, ErrInvalidCredentials
		}
		u.PasswordHash = hash
		u.RequiresPasswordChange = false
		return u, nil
	})
	if err != nil {
		return err
	}

	logger.Info("Password changed", zap.String("user_id", userID))
	return nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnVerify spends the same effort as a real verification so unknown emails are not
// distinguishable by response time
func burnVerify(plain string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = password.Hash("mentor-bridge-placeholder", hashParams)
	})
	if dummyHash != "" {
		_, _ = password.Verify(plain, dummyHash)
	}
}

// Authenticate looks up email case-insensitively and verifies password.
// Every failure returns ErrInvalidCredentials.
func Authenticate(ctx context.Context, database db.UserStore, logger *zap.Logger, email, plain string) (*model.User, error) {
	email = model.NormalizeEmail(email)

	user, err := database.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		burnVerify(plain)
		logger.Info("Login failed: unknown email", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	ok, err := password.Verify(plain, user.PasswordHash)
	if err != nil {
		logger.Warn("Stored password hash is unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		logger.Info("Login failed: wrong password", zap.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	logger.Info("Login succeeded", zap.String("user_id", user.ID))
	return user, nil
}

// Login authenticates and issues a session token
func Login(ctx context.Context, database db.UserStore, sessions *session.Manager, logger *zap.Logger, email, plain string) (string, time.Time, *model.User, error) {
	user, err := Authenticate(ctx, database, logger, email, plain)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	token, expires, err := sessions.Issue(*user)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return token, expires, user, nil
}

// Impersonate issues a session acting as targetID on behalf of admin. Admin accounts cannot be impersonated.
func Impersonate(ctx context.Context, database db.UserStore, sessions *session.Manager, logger *zap.Logger, admin model.User, targetID string) (string, time.Time, *model.User, error) {
	if err := requirePermission(admin, visibility.ActionImpersonate); err != nil {
		return "", time.Time{}, nil, err
	}
	if admin.ID == targetID {
		return "", time.Time{}, nil, invalid("cannot impersonate yourself")
	}

	target, err := database.GetUser(ctx, targetID)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("failed to load user: %w", err)
	}
	if target.HasRole(model.RoleAdmin) {
		return "", time.Time{}, nil, fmt.Errorf("%w: cannot impersonate another admin", ErrForbidden)
	}

	token, expires, err := sessions.IssueImpersonation(admin.ID, *target)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("failed to issue session: %w", err)
	}

	logger.Info("Impersonation started",
		zap.String("actor_id", admin.ID),
		zap.String("user_id", target.ID))

	return token, expires, target, nil
}
