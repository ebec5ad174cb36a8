package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"databases": {"sqlite3": {"dsn": "data/app.db"}},
		"preview": {"secret": "s3cret"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Upload.MaxFilesChat != 5 || cfg.Upload.MaxFilesDocument != 3 {
		t.Fatalf("unexpected upload limits: %+v", cfg.Upload)
	}
	if cfg.Settings.Locale != "ar" {
		t.Fatalf("expected arabic default locale, got %q", cfg.Settings.Locale)
	}
	if cfg.Analysis.Mode != "simulated" {
		t.Fatalf("expected simulated analysis mode, got %q", cfg.Analysis.Mode)
	}
	want := filepath.Join(filepath.Dir(path), "data/app.db")
	if got := cfg.Databases["sqlite3"].DSN; got != want {
		t.Fatalf("sqlite dsn not resolved against config dir: %s", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"preview": {"secret": "from-file"}}`)
	t.Setenv("LEGALADVISOR_PREVIEW_SECRET", "from-env")
	t.Setenv("LEGALADVISOR_RATE_LIMIT_QPS", "7")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Preview.Secret != "from-env" {
		t.Fatalf("env override ignored, secret=%q", cfg.Preview.Secret)
	}
	if cfg.BasicConfig.RateLimitQPS != 7 {
		t.Fatalf("expected qps 7, got %d", cfg.BasicConfig.RateLimitQPS)
	}
}

func TestLoadRejectsUnsupportedAnalysisMode(t *testing.T) {
	path := writeConfig(t, `{"preview": {"secret": "x"}, "analysis": {"mode": "ocr"}}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for non-simulated analysis mode")
	}
}

func TestLoadRequiresPreviewSecret(t *testing.T) {
	path := writeConfig(t, `{}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error without preview secret")
	}
}

func TestValidateLLMResponderNeedsProvider(t *testing.T) {
	cfg := &Config{Preview: PreviewConfig{Secret: "x"}, Responder: ResponderConfig{Kind: "llm", Provider: "openai"}}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected provider validation error")
	}
	cfg.Providers = map[string]ProviderConfig{"openai": {Model: "gpt-4o-mini"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "preview:\n  secret: yaml-secret\nupload:\n  max_files_chat: 4\n  max_file_bytes: 2048\nsettings:\n  locale: en\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Preview.Secret != "yaml-secret" || cfg.Upload.MaxFilesChat != 4 || cfg.Upload.MaxFileBytes != 2048 {
		t.Fatalf("yaml values not decoded: %+v %+v", cfg.Preview, cfg.Upload)
	}
	if cfg.Settings.Locale != "en" {
		t.Fatalf("expected en locale, got %q", cfg.Settings.Locale)
	}
}
