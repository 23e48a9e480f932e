package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"proctor/api/internal/store"
)

// mockUserStore is an in-memory UserStore for testing
type mockUserStore struct {
	users     map[string]store.User // by ID
	usernames map[string]string     // username -> ID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:     make(map[string]store.User),
		usernames: make(map[string]string),
	}
}

func (m *mockUserStore) GetUserByLogin(ctx context.Context, login string) (store.User, error) {
	if id, ok := m.usernames[login]; ok {
		return m.users[id], nil
	}
	for _, user := range m.users {
		if user.Email == login {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (m *mockUserStore) InsertUser(ctx context.Context, user store.User) error {
	if _, taken := m.usernames[user.Username]; taken {
		return store.ErrConflict
	}
	m.users[user.ID] = user
	m.usernames[user.Username] = user.ID
	return nil
}

func TestProvisionCreatesIdentity(t *testing.T) {
	users := newMockUserStore()
	svc := NewService(users)

	result, err := svc.Provision(context.Background(), ProvisionRequest{
		ProfileID:  "op_abc123",
		RollNumber: "PT2024001",
		Email:      "a@example.com",
	})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if !result.Created {
		t.Fatal("expected a new identity")
	}
	if result.User.Username != "pt2024001" {
		t.Fatalf("username = %q, want derived from roll number", result.User.Username)
	}
	if result.Password == "" {
		t.Fatal("expected a plaintext credential for delivery")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(result.User.PasswordHash), []byte(result.Password)); err != nil {
		t.Fatalf("stored hash does not match issued credential: %v", err)
	}
}

func TestProvisionReusesSamePersonIdentity(t *testing.T) {
	users := newMockUserStore()
	svc := NewService(users)
	ctx := context.Background()

	first, err := svc.Provision(ctx, ProvisionRequest{ProfileID: "op_one", RollNumber: "PT1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	// Same person volunteering under a second campaign resolves to the same
	// account instead of minting a new one.
	second, err := svc.Provision(ctx, ProvisionRequest{ProfileID: "op_two", RollNumber: "PT1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if second.Created {
		t.Fatal("expected existing identity to be reused")
	}
	if second.User.ID != first.User.ID {
		t.Fatalf("identity IDs differ: %s vs %s", second.User.ID, first.User.ID)
	}
	if second.Password != "" {
		t.Fatal("reuse must not issue a fresh credential")
	}
}

func TestProvisionDisambiguatesLoginCollision(t *testing.T) {
	users := newMockUserStore()
	svc := NewService(users)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, ProvisionRequest{ProfileID: "op_one", RollNumber: "PT1", Email: "a@example.com"}); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	// Different person, colliding roll-derived login.
	result, err := svc.Provision(ctx, ProvisionRequest{ProfileID: "op_two99", RollNumber: "PT1", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if !result.Created {
		t.Fatal("expected a distinct identity for the second person")
	}
	if result.User.Username != "pt1-two99" {
		t.Fatalf("username = %q, want profile-suffixed login", result.User.Username)
	}
}

func TestSignIn(t *testing.T) {
	users := newMockUserStore()
	svc := NewService(users)
	ctx := context.Background()

	result, err := svc.Provision(ctx, ProvisionRequest{ProfileID: "op_one", RollNumber: "PT1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	user, err := svc.SignIn(ctx, "PT1", result.Password)
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.ID != result.User.ID {
		t.Fatalf("signed in as %s, want %s", user.ID, result.User.ID)
	}

	if _, err := svc.SignIn(ctx, "PT1", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody", result.Password); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown login, got %v", err)
	}
}
