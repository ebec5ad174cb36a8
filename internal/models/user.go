package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Locale       Locale    `json:"locale"`
	Theme        Theme     `json:"theme"`
	CreatedAt    time.Time `json:"created_at"`
}

// Settings returns the user's display preferences.
func (u *User) Settings() Settings {
	return Settings{Locale: u.Locale, Theme: u.Theme}
}
