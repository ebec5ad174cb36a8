package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"legaladvisor/internal/auth"
	"legaladvisor/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Service handles the user lifecycle and display settings.
type Service struct {
	db       *sql.DB
	defaults models.Settings
}

// NewService builds an account service. defaults seed new users' settings.
func NewService(db *sql.DB, defaults models.Settings) *Service {
	return &Service{db: db, defaults: defaults}
}

// Defaults returns the process-wide settings.
func (s *Service) Defaults() models.Settings {
	return s.defaults
}

// Register creates a user with the supplied credentials.
func (s *Service) Register(ctx context.Context, email, password string, prefs models.Settings) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("invalid email address")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	prefs = prefs.WithDefaults(s.defaults)
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, locale, theme, created_at) VALUES (?, ?, ?, ?, ?)`,
		email, hash, string(prefs.Locale), string(prefs.Theme), now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{ID: id, Email: email, PasswordHash: hash, Locale: prefs.Locale, Theme: prefs.Theme, CreatedAt: now}, nil
}

// Login validates credentials and returns the user profile.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	user, err := s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, locale, theme, created_at FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, errors.New("invalid user id")
	}
	user, err := s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, locale, theme, created_at FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// UpdateSettings replaces the user's locale and theme. Invalid values are rejected.
func (s *Service) UpdateSettings(ctx context.Context, id int64, prefs models.Settings) (*models.User, error) {
	if !prefs.Locale.Valid() {
		return nil, fmt.Errorf("unsupported locale %q", prefs.Locale)
	}
	if !prefs.Theme.Valid() {
		return nil, fmt.Errorf("unsupported theme %q", prefs.Theme)
	}
	// mysql reports zero affected rows for a no-op update, so existence comes from the reload
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET locale = ?, theme = ? WHERE id = ?`,
		string(prefs.Locale), string(prefs.Theme), id); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a user. Tokens cascade; consultations keep a null owner.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid user id")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) scanUser(row *sql.Row) (*models.User, error) {
	var (
		user   models.User
		locale string
		theme  string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &locale, &theme, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Locale = models.Locale(locale)
	user.Theme = models.Theme(theme)
	return &user, nil
}
