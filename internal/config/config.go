// Package config loads the server's configuration.
//
// LOAD ORDER (later wins):
//  1. Built-in defaults
//  2. An optional YAML file named by RAKSHAK_CONFIG
//  3. Environment variables, including ones from a local .env file
//
// A single Config value is built in main and handed to server.New, so no
// other package reads the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	SOS    SOSConfig    `yaml:"sos"`
	Seed   SeedConfig   `yaml:"seed"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port          int      `yaml:"port"`
	CORSOrigins   []string `yaml:"cors_origins"`
	SecureCookies bool     `yaml:"secure_cookies"` // set when served over HTTPS
}

// StoreConfig picks the document store. Accounts and the local store always
// live in SQLite at DBPath.
type StoreConfig struct {
	Driver            string `yaml:"driver"` // sqlite | dynamodb
	DBPath            string `yaml:"db_path"`
	AWSRegion         string `yaml:"aws_region"`
	DynamoTablePrefix string `yaml:"dynamo_table_prefix"`
	DynamoEndpoint    string `yaml:"dynamo_endpoint"` // e.g. http://localhost:8000 for DynamoDB Local
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	AllowGuest       bool          `yaml:"allow_guest"`
	AllowDemo        bool          `yaml:"allow_demo"`
	AllowSignup      bool          `yaml:"allow_signup"`
	LoginMaxAttempts int           `yaml:"login_max_attempts"`
	LoginWindow      time.Duration `yaml:"login_window"`
	GitHub           GitHubConfig  `yaml:"github"`
}

type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Enabled reports whether GitHub sign-in routes should be registered.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type SOSConfig struct {
	// DemoFallback stores a fixed demo coordinate when the browser cannot
	// report a position. The stored location is marked source=demo.
	DemoFallback bool `yaml:"demo_fallback"`
	QueueSize    int  `yaml:"queue_size"`
}

type SeedConfig struct {
	File  string `yaml:"file"` // empty uses the embedded seed
	Watch bool   `yaml:"watch"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Store: StoreConfig{
			Driver:            DriverSQLite,
			DBPath:            "data/rakshak.db",
			AWSRegion:         "ap-south-1",
			DynamoTablePrefix: "rakshak_",
		},
		Auth: AuthConfig{
			TokenTTL:         24 * time.Hour,
			AllowGuest:       true,
			AllowDemo:        false,
			AllowSignup:      true,
			LoginMaxAttempts: 5,
			LoginWindow:      2 * time.Minute,
		},
		SOS:  SOSConfig{DemoFallback: true, QueueSize: 64},
		Log:  LogConfig{Level: "info"},
		Seed: SeedConfig{},
	}
}

// Load builds the Config from defaults, RAKSHAK_CONFIG and the environment,
// then validates it.
func Load() (*Config, error) {
	// Missing .env is normal in production.
	_ = godotenv.Load()

	cfg := Default()
	if path := getEnv("RAKSHAK_CONFIG", ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if cfg.Auth.GitHub.CallbackURL == "" {
		cfg.Auth.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	overrideString(&c.Store.Driver, "STORE_DRIVER")
	overrideString(&c.Store.DBPath, "DB_PATH")
	overrideString(&c.Store.AWSRegion, "AWS_REGION")
	overrideString(&c.Store.DynamoTablePrefix, "DYNAMO_TABLE_PREFIX")
	overrideString(&c.Store.DynamoEndpoint, "DYNAMO_ENDPOINT")
	overrideString(&c.Auth.JWTSecret, "JWT_SECRET")
	overrideString(&c.Auth.GitHub.ClientID, "GITHUB_CLIENT_ID")
	overrideString(&c.Auth.GitHub.ClientSecret, "GITHUB_CLIENT_SECRET")
	overrideString(&c.Auth.GitHub.CallbackURL, "GITHUB_CALLBACK_URL")
	overrideString(&c.Seed.File, "SEED_FILE")
	overrideString(&c.Log.Level, "LOG_LEVEL")

	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}

	return errors.Join(
		overrideInt(&c.Server.Port, "PORT"),
		overrideInt(&c.Auth.LoginMaxAttempts, "LOGIN_MAX_ATTEMPTS"),
		overrideDuration(&c.Auth.TokenTTL, "TOKEN_TTL"),
		overrideDuration(&c.Auth.LoginWindow, "LOGIN_WINDOW"),
		overrideBool(&c.Auth.AllowGuest, "ALLOW_GUEST"),
		overrideBool(&c.Auth.AllowDemo, "ALLOW_DEMO"),
		overrideBool(&c.Auth.AllowSignup, "ALLOW_SIGNUP"),
		overrideBool(&c.SOS.DemoFallback, "SOS_DEMO_FALLBACK"),
		overrideBool(&c.Seed.Watch, "SEED_WATCH"),
		overrideBool(&c.Server.SecureCookies, "SECURE_COOKIES"),
	)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Server.Port))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: JWT_SECRET must be at least 16 characters"))
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverDynamoDB:
	default:
		errs = append(errs, fmt.Errorf("config: unknown store driver %q", c.Store.Driver))
	}
	if c.Store.DBPath == "" {
		errs = append(errs, errors.New("config: DB_PATH is required"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel returns the slog level named by Log.Level.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := parseLevel(c.Log.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid log level %q", s)
	}
	return lvl, nil
}

// getEnv returns the variable's value, or fallback when it is unset.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func overrideString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func overrideInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func overrideBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func overrideDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
