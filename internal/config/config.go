package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "LEGALADVISOR_"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Upload      UploadConfig              `json:"upload"`
	Settings    SettingsConfig            `json:"settings"`
	Preview     PreviewConfig             `json:"preview"`
	Events      EventsConfig              `json:"events"`
	Analysis    AnalysisConfig            `json:"analysis"`
	Responder   ResponderConfig           `json:"responder"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address"`
	Environment       string   `json:"environment"`
	LogLevel          string   `json:"log_level"`
	MinWorkers        int      `json:"min_workers"`
	MaxWorkers        int      `json:"max_workers"`
	QueueSize         int      `json:"queue_size"`
	WorkerIdleTimeout int      `json:"worker_idle_timeout"`  // minutes
	WorkspaceIdleTTL  int      `json:"workspace_idle_ttl"`   // minutes
	WorkspaceSweep    int      `json:"workspace_sweep"`      // minutes
	TokenTTL          int      `json:"token_ttl"`            // hours
	RateLimitQPS      int      `json:"rate_limit_qps"`       // per user, 0 disables
	AllowedOrigins    []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// UploadConfig bounds the per-workspace upload collectors.
type UploadConfig struct {
	MaxFilesChat     int      `json:"max_files_chat"`
	MaxFilesDocument int      `json:"max_files_document"`
	MaxFileBytes     int64    `json:"max_file_bytes"`
	Accept           []string `json:"accept"`
}

type SettingsConfig struct {
	Locale string `json:"locale"`
	Theme  string `json:"theme"`
}

// PreviewConfig selects where uploaded bytes live while a file is attached.
type PreviewConfig struct {
	Backend         string `json:"backend"` // disk | gcs
	BaseDir         string `json:"base_dir"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	CredentialsFile string `json:"credentials_file"`
	Secret          string `json:"secret"`
	TTL             int    `json:"ttl"` // minutes
	PublicBaseURL   string `json:"public_base_url"`
}

type EventsConfig struct {
	NatsURL       string `json:"nats_url"`
	Token         string `json:"token"`
	SubjectPrefix string `json:"subject_prefix"`
}

type AnalysisConfig struct {
	Mode string `json:"mode"`
}

// ResponderConfig picks the generator behind consultation replies.
type ResponderConfig struct {
	Kind     string `json:"kind"` // template | llm
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// Load reads configuration from the provided path (defaults to config.json), then
// applies LEGALADVISOR_* environment overrides and defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v := viper.New()
	// format follows the extension: json, yaml or toml
	v.SetConfigFile(absPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "json" }); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnv(&cfg)
	cfg.ApplyDefaults()

	for name, db := range cfg.Databases {
		if db.DSN != "" && db.DSN != ":memory:" && !strings.HasPrefix(db.DSN, "file:") && !filepath.IsAbs(db.DSN) && isSQLite(name) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values with the service defaults.
func (c *Config) ApplyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":8090"
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}
	if b.MinWorkers <= 0 {
		b.MinWorkers = 2
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = b.MinWorkers * 4
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 64
	}
	if b.WorkerIdleTimeout <= 0 {
		b.WorkerIdleTimeout = 5
	}
	if b.WorkspaceIdleTTL <= 0 {
		b.WorkspaceIdleTTL = 60
	}
	if b.WorkspaceSweep <= 0 {
		b.WorkspaceSweep = 5
	}
	if b.TokenTTL <= 0 {
		b.TokenTTL = 24
	}
	if c.Databases == nil {
		c.Databases = map[string]DatabaseConfig{"sqlite3": {DSN: "./data/legaladvisor.db"}}
	}

	u := &c.Upload
	if u.MaxFilesChat <= 0 {
		u.MaxFilesChat = 5
	}
	if u.MaxFilesDocument <= 0 {
		u.MaxFilesDocument = 3
	}
	if u.MaxFileBytes <= 0 {
		u.MaxFileBytes = 10 << 20
	}
	if len(u.Accept) == 0 {
		u.Accept = []string{".pdf", ".doc", ".docx", ".txt", "image/"}
	}

	if c.Settings.Locale == "" {
		c.Settings.Locale = "ar"
	}
	if c.Settings.Theme == "" {
		c.Settings.Theme = "system"
	}

	p := &c.Preview
	if p.Backend == "" {
		p.Backend = "disk"
	}
	if p.BaseDir == "" {
		p.BaseDir = "./data/previews"
	}
	if p.TTL <= 0 {
		p.TTL = 60
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "consultations"
	}
	if c.Analysis.Mode == "" {
		c.Analysis.Mode = "simulated"
	}
	if c.Responder.Kind == "" {
		c.Responder.Kind = "template"
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Analysis.Mode != "simulated" {
		return fmt.Errorf("analysis mode %q is not supported", c.Analysis.Mode)
	}
	switch c.Settings.Locale {
	case "ar", "en":
	default:
		return fmt.Errorf("settings.locale must be ar or en, got %q", c.Settings.Locale)
	}
	switch c.Preview.Backend {
	case "disk":
	case "gcs":
		if c.Preview.Bucket == "" {
			return fmt.Errorf("preview.bucket must be configured for gcs backend")
		}
	default:
		return fmt.Errorf("unsupported preview backend: %s", c.Preview.Backend)
	}
	if c.Preview.Secret == "" {
		return fmt.Errorf("preview.secret must be configured")
	}
	switch c.Responder.Kind {
	case "template":
	case "llm":
		if _, ok := c.Providers[c.Responder.Provider]; !ok {
			return fmt.Errorf("provider %s not configured", c.Responder.Provider)
		}
	default:
		return fmt.Errorf("unsupported responder: %s", c.Responder.Kind)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := getEnv("SERVER_ADDRESS"); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	if v := getEnv("ENV"); v != "" {
		cfg.BasicConfig.Environment = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.BasicConfig.LogLevel = v
	}
	if v := getEnv("PREVIEW_SECRET"); v != "" {
		cfg.Preview.Secret = v
	}
	if v := getEnv("NATS_URL"); v != "" {
		cfg.Events.NatsURL = v
	}
	if v := getEnv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v, ok := getIntEnv("RATE_LIMIT_QPS"); ok {
		cfg.BasicConfig.RateLimitQPS = v
	}
	if v := getEnv("RESPONDER_API_KEY"); v != "" {
		cfg.Responder.APIKey = v
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func getIntEnv(key string) (int, bool) {
	raw := getEnv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isSQLite(name string) bool {
	name = strings.ToLower(name)
	return name == "sqlite" || name == "sqlite3"
}
