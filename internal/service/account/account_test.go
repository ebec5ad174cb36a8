package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"legaladvisor/internal/config"
	"legaladvisor/internal/models"
	"legaladvisor/internal/storage"
)

var testDefaults = models.Settings{Locale: models.LocaleArabic, Theme: models.ThemeSystem}

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewService(db, testDefaults), db
}

func TestRegisterAndLogin(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	user, err := svc.Register(ctx, " Lawyer@Example.com ", "pass123", models.Settings{})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Email != "lawyer@example.com" {
		t.Fatalf("email not normalised: %s", user.Email)
	}
	if user.Locale != models.LocaleArabic || user.Theme != models.ThemeSystem {
		t.Fatalf("defaults not applied: %+v", user.Settings())
	}

	got, err := svc.Login(ctx, "lawyer@example.com", "pass123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("login returned user %d, want %d", got.ID, user.ID)
	}
	if _, err := svc.Login(ctx, "lawyer@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "ghost@example.com", "pass123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "x", models.Settings{}); err == nil {
		t.Fatalf("expected error for empty email")
	}
	if _, err := svc.Register(ctx, "not-an-email", "x", models.Settings{}); err == nil {
		t.Fatalf("expected error for malformed email")
	}
	if _, err := svc.Register(ctx, "a@b.com", "x", models.Settings{}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Register(ctx, "a@b.com", "y", models.Settings{}); err == nil {
		t.Fatalf("expected duplicate email to fail")
	}
}

func TestUpdateSettings(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	user, err := svc.Register(ctx, "s@example.com", "pw", models.Settings{Locale: models.LocaleEnglish})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Locale != models.LocaleEnglish {
		t.Fatalf("explicit locale ignored")
	}
	updated, err := svc.UpdateSettings(ctx, user.ID, models.Settings{Locale: models.LocaleArabic, Theme: models.ThemeDark})
	if err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	if updated.Locale != models.LocaleArabic || updated.Theme != models.ThemeDark {
		t.Fatalf("settings not stored: %+v", updated.Settings())
	}
	if _, err := svc.UpdateSettings(ctx, user.ID, models.Settings{Locale: "fr", Theme: models.ThemeDark}); err == nil {
		t.Fatalf("expected unsupported locale error")
	}
	if _, err := svc.UpdateSettings(ctx, 9999, models.Settings{Locale: models.LocaleArabic, Theme: models.ThemeDark}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, db := newTestService(t)
	defer db.Close()
	ctx := context.Background()

	user, err := svc.Register(ctx, "d@example.com", "pw", models.Settings{})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := svc.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := svc.Delete(ctx, user.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows on second delete, got %v", err)
	}
}
