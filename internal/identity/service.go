// Package identity provisions and verifies operator login accounts.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"proctor/api/internal/rbac"
	"proctor/api/internal/store"
	"proctor/api/internal/util"
)

// ErrInvalidCredentials is returned for any sign-in failure; callers must not
// learn whether the login name exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore defines the storage interface for identity records
type UserStore interface {
	GetUserByLogin(ctx context.Context, login string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	InsertUser(ctx context.Context, user store.User) error
}

// Service provisions operator credentials and authenticates sign-ins
type Service struct {
	store UserStore
}

func NewService(userStore UserStore) *Service {
	return &Service{store: userStore}
}

// ProvisionRequest identifies the operator profile a fresh identity is for
type ProvisionRequest struct {
	ProfileID  string
	RollNumber string
	Email      string
}

// ProvisionResult carries the resolved identity. Password is the plaintext
// credential and is only set when a new record was created; it exists solely
// for notification dispatch and is never stored.
type ProvisionResult struct {
	User     store.User
	Password string
	Created  bool
}

// Provision resolves or creates the identity for an operator profile. The
// login name derives from the person's roll number; when that name is taken
// by a different person, it is suffixed with a fragment of the profile ID
// rather than overwriting the holder.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	if req.RollNumber == "" {
		return nil, errors.New("roll number is required")
	}

	username := strings.ToLower(strings.TrimSpace(req.RollNumber))

	// Same person already holds an account under this login: reuse it.
	existing, err := s.store.GetUserByLogin(ctx, username)
	if err == nil && strings.EqualFold(existing.Email, req.Email) {
		return &ProvisionResult{User: existing, Created: false}, nil
	}

	password, err := generatePassword()
	if err != nil {
		return nil, fmt.Errorf("generate credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash credential: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         string(rbac.RoleOperator),
	}

	err = s.store.InsertUser(ctx, user)
	if errors.Is(err, store.ErrConflict) {
		// Login name held by a different person: disambiguate by profile ID.
		user.Username = username + "-" + suffixFrom(req.ProfileID)
		err = s.store.InsertUser(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	return &ProvisionResult{User: user, Password: password, Created: true}, nil
}

// SignIn authenticates a login name or email against the stored hash
func (s *Service) SignIn(ctx context.Context, login, password string) (store.User, error) {
	if login == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByLogin(ctx, strings.ToLower(strings.TrimSpace(login)))
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// EnsureRootAccount creates the named owner account if no user holds that
// login yet. The generated password is returned exactly once, on creation.
func (s *Service) EnsureRootAccount(ctx context.Context, username string) (string, bool, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return "", false, errors.New("owner username is required")
	}

	if _, err := s.store.GetUserByLogin(ctx, username); err == nil {
		return "", false, nil
	}

	password, err := generatePassword()
	if err != nil {
		return "", false, fmt.Errorf("generate credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", false, fmt.Errorf("hash credential: %w", err)
	}

	err = s.store.InsertUser(ctx, store.User{
		ID:           util.NewID("usr"),
		Username:     username,
		PasswordHash: string(hash),
		Role:         string(rbac.RoleOwner),
	})
	if errors.Is(err, store.ErrConflict) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("create owner: %w", err)
	}
	return password, true, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func suffixFrom(profileID string) string {
	trimmed := strings.TrimPrefix(profileID, "op_")
	if len(trimmed) > 6 {
		trimmed = trimmed[:6]
	}
	if trimmed == "" {
		return "x"
	}
	return trimmed
}
