package i18n

import (
	"context"
	"testing"

	"legaladvisor/internal/models"
)

func TestNegotiate(t *testing.T) {
	cases := []struct {
		header string
		want   models.Locale
	}{
		{"", models.LocaleArabic},
		{"en-US,en;q=0.9", models.LocaleEnglish},
		{"ar-SA,ar;q=0.9,en;q=0.5", models.LocaleArabic},
		{"fr-FR,en;q=0.4", models.LocaleEnglish},
		{"de-DE", models.LocaleArabic},
		{"!!garbage", models.LocaleArabic},
	}
	for _, tc := range cases {
		if got := Negotiate(tc.header, models.LocaleArabic); got != tc.want {
			t.Errorf("Negotiate(%q) = %s, want %s", tc.header, got, tc.want)
		}
	}
}

func TestTranslateFallbacks(t *testing.T) {
	if got := T(models.LocaleEnglish, FilesAttachedPlaceholder); got != "Files attached for analysis" {
		t.Fatalf("unexpected english placeholder %q", got)
	}
	if got := T("fr", FilesAttachedPlaceholder); got != "تم إرفاق ملفات للتحليل" {
		t.Fatalf("unknown locale should fall back to arabic, got %q", got)
	}
	if got := T(models.LocaleEnglish, Key("missing")); got != "missing" {
		t.Fatalf("missing key should echo itself, got %q", got)
	}
	if got := T(models.LocaleEnglish, UploadLimitDescription, 3); got != "You can upload at most 3 files" {
		t.Fatalf("format args not applied: %q", got)
	}
}

func TestLocaleContext(t *testing.T) {
	ctx := WithLocale(context.Background(), models.LocaleEnglish)
	if got := LocaleFrom(ctx, models.LocaleArabic); got != models.LocaleEnglish {
		t.Fatalf("expected en from context, got %s", got)
	}
	if got := LocaleFrom(context.Background(), models.LocaleArabic); got != models.LocaleArabic {
		t.Fatalf("expected fallback, got %s", got)
	}
}
