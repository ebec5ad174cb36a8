package models

import "time"

type Locale string

const (
	LocaleArabic  Locale = "ar"
	LocaleEnglish Locale = "en"
)

func (l Locale) Valid() bool {
	return l == LocaleArabic || l == LocaleEnglish
}

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// Settings is the explicit display configuration handed to every view.
type Settings struct {
	Locale Locale `json:"locale"`
	Theme  Theme  `json:"theme"`
}

// WithDefaults fills invalid or missing values from def.
func (s Settings) WithDefaults(def Settings) Settings {
	if !s.Locale.Valid() {
		s.Locale = def.Locale
	}
	if !s.Theme.Valid() {
		s.Theme = def.Theme
	}
	return s
}

type NotificationVariant string

const (
	VariantDefault     NotificationVariant = "default"
	VariantDestructive NotificationVariant = "destructive"
)

// Notification is a short-lived toast surfaced to the workspace owner.
type Notification struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
	CreatedAt   time.Time           `json:"created_at"`
}
