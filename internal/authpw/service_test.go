package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"legajo/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users map[string]store.User // keyed by email
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]store.User)}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return store.User{}, errors.New("user not found")
}

func (m *mockUserStore) add(t *testing.T, email, password, role string, deactivated bool) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := store.User{
		ID:           "u_" + email,
		FullName:     "Test User",
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if deactivated {
		now := time.Now()
		user.DeactivatedAt = &now
	}
	m.users[email] = user
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	mockStore.add(t, "abogado@example.com", "password123", "rc_abogados", false)
	mockStore.add(t, "baja@example.com", "password123", "user", true)
	svc := NewService(mockStore)

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, SignInRequest{
			Email:    "abogado@example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "abogado@example.com" {
			t.Errorf("expected email abogado@example.com, got %s", user.Email)
		}
		if user.Role != "rc_abogados" {
			t.Errorf("expected role rc_abogados, got %s", user.Role)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "abogado@example.com",
			Password: "wrongpassword",
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "nonexistent@example.com",
			Password: "password123",
		})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{
			Email:    "baja@example.com",
			Password: "password123",
		})
		if !errors.Is(err, ErrAccountDeactivated) {
			t.Errorf("expected ErrAccountDeactivated, got %v", err)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.SignIn(ctx, SignInRequest{})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestHashPassword(t *testing.T) {
	t.Run("short password rejected", func(t *testing.T) {
		if _, err := HashPassword("short"); err == nil {
			t.Error("expected error for short password")
		}
	})

	t.Run("hash differs from input", func(t *testing.T) {
		hash, err := HashPassword("password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hash == "password123" || hash == "" {
			t.Error("expected bcrypt hash, got raw or empty value")
		}
	})
}
