package usecase

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	authdomain "subtrack-backend/internal/auth/domain"
	authdto "subtrack-backend/internal/auth/dto"
	"subtrack-backend/internal/auth/repository"
	"subtrack-backend/pkg/config"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "auth-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&authdomain.User{}, &authdomain.RefreshToken{}); err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to migrate: %v", err)
	}
	return db, func() { os.RemoveAll(dir) }
}

func newTestAuthUsecase(t *testing.T, db *gorm.DB) AuthUsecase {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:       "test-secret",
		JWTAccessExpiry: 15 * time.Minute,
	}
	return NewAuthUsecase(repository.NewUserRepository(db), cfg)
}

func registerTestUser(t *testing.T, uc AuthUsecase) *authdto.TokenResponse {
	t.Helper()
	resp, err := uc.Register(&authdto.RegisterRequest{
		Email:    "user@example.com",
		Password: "secret123",
		Name:     "Test User",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return resp
}

func TestRegisterIssuesTokens(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := newTestAuthUsecase(t, db)

	resp := registerTestUser(t, uc)
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("register did not return a token pair")
	}
	if resp.User == nil || resp.User.Email != "user@example.com" {
		t.Errorf("user = %+v, want registered user", resp.User)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := newTestAuthUsecase(t, db)

	registerTestUser(t, uc)
	if _, err := uc.Register(&authdto.RegisterRequest{
		Email:    "user@example.com",
		Password: "different",
		Name:     "Someone Else",
	}); err == nil {
		t.Error("expected error registering a duplicate email")
	}
}

func TestLoginRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := newTestAuthUsecase(t, db)
	registerTestUser(t, uc)

	resp, err := uc.Login(&authdto.LoginRequest{
		Email:    "user@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	user, err := uc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if user.Email != "user@example.com" {
		t.Errorf("validated user email = %s", user.Email)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := newTestAuthUsecase(t, db)
	registerTestUser(t, uc)

	if _, err := uc.Login(&authdto.LoginRequest{
		Email:    "user@example.com",
		Password: "wrong-password",
	}); err == nil {
		t.Error("expected error for wrong password")
	}
	if _, err := uc.Login(&authdto.LoginRequest{
		Email:    "nobody@example.com",
		Password: "secret123",
	}); err == nil {
		t.Error("expected error for unknown email")
	}
}

func TestRefreshTokenRotates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := newTestAuthUsecase(t, db)
	first := registerTestUser(t, uc)

	refreshed, err := uc.RefreshToken(first.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if refreshed.AccessToken == "" || refreshed.RefreshToken == "" {
		t.Error("refresh did not return a new token pair")
	}
	if _, err := uc.ValidateToken(refreshed.AccessToken); err != nil {
		t.Errorf("refreshed access token invalid: %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := newTestAuthUsecase(t, db)
	resp := registerTestUser(t, uc)

	if err := uc.Logout(resp.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := uc.RefreshToken(resp.RefreshToken); err == nil {
		t.Error("expected error refreshing a revoked token")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	uc := newTestAuthUsecase(t, db)

	if _, err := uc.ValidateToken("not-a-jwt"); err == nil {
		t.Error("expected error validating a malformed token")
	}
}
