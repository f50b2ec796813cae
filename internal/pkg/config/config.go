// Package config loads the service configuration from an optional YAML file
// and HELPDESK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use "__",
// e.g. HELPDESK_GLPI__BASE_URL.
const EnvPrefix = "HELPDESK_"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	GLPI      GLPIConfig      `koanf:"glpi"`
	LLM       LLMConfig       `koanf:"llm"`
	Storage   StorageConfig   `koanf:"storage"`
	Intake    IntakeConfig    `koanf:"intake"`
	Auth      AuthConfig      `koanf:"auth"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Remind    RemindConfig    `koanf:"remind"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// GLPIConfig configures the remote ticketing API.
type GLPIConfig struct {
	BaseURL   string        `koanf:"base_url"`
	AppToken  string        `koanf:"app_token"`
	UserToken string        `koanf:"user_token"`
	Timeout   time.Duration `koanf:"timeout"`

	// TokenTTL bounds the reuse of a session token. Zero opens a session per call.
	TokenTTL time.Duration `koanf:"token_ttl"`
	PageSize int           `koanf:"page_size"`

	// TempPassword is set on remote users created during reconciliation.
	// A random one is generated when empty.
	TempPassword string `koanf:"temp_password"`

	// Profiles maps canonical role names to remote profile ids.
	Profiles map[string]int `koanf:"profiles"`

	ReconcileCacheTTL  time.Duration `koanf:"reconcile_cache_ttl"`
	ReconcileCacheSize int           `koanf:"reconcile_cache_size"`
}

// LLMConfig configures the OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL         string        `koanf:"base_url"`
	APIKey          string        `koanf:"api_key"`
	Model           string        `koanf:"model"`
	Timeout         time.Duration `koanf:"timeout"`
	MaxPromptTokens int           `koanf:"max_prompt_tokens"`

	// Mock replaces the remote model with the built-in heuristic responder.
	Mock bool `koanf:"mock"`
}

type StorageConfig struct {
	Type     string         `koanf:"type"` // memory, sqlite
	Database DatabaseConfig `koanf:"database"`
}

// DatabaseConfig is the generic database configuration for multi-dialect support.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, or pgx when a driver is linked
	DSN    string `koanf:"dsn"`
}

// IntakeConfig holds the hot-reloadable conversation rules.
type IntakeConfig struct {
	MinTitle             int      `koanf:"min_title"`
	MinTitleInline       int      `koanf:"min_title_inline"`
	MinDescription       int      `koanf:"min_description"`
	MinDescriptionInline int      `koanf:"min_description_inline"`
	GenericTerms         []string `koanf:"generic_terms"`
	CancelPhrases        []string `koanf:"cancel_phrases"`
	MaxHistory           int      `koanf:"max_history"`
	FAQResults           int      `koanf:"faq_results"`
}

type AuthConfig struct {
	APIKeys []APIKeyConfig `koanf:"api_keys"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type RemindConfig struct {
	StaleAfter time.Duration `koanf:"stale_after"`

	// Email and Name identify the account the sweep acts as.
	Email string `koanf:"email"`
	Name  string `koanf:"name"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]interface{}{
	"server.port":                   8080,
	"server.request_timeout":        "60s",
	"glpi.timeout":                  "30s",
	"glpi.token_ttl":                "10m",
	"glpi.page_size":                50,
	"glpi.reconcile_cache_ttl":      "10m",
	"glpi.reconcile_cache_size":     1024,
	"llm.base_url":                  "https://api.openai.com/v1",
	"llm.model":                     "gpt-4o-mini",
	"llm.timeout":                   "60s",
	"llm.max_prompt_tokens":         3000,
	"storage.type":                  "memory",
	"intake.min_title":              5,
	"intake.min_title_inline":       10,
	"intake.min_description":        10,
	"intake.min_description_inline": 15,
	"intake.max_history":            20,
	"intake.faq_results":            3,
	"telemetry.service_name":        "helpdesk-gateway",
	"remind.stale_after":            "2h",
	"remind.email":                  "helpdesk-bot@localhost",
	"remind.name":                   "Helpdesk reminders",
}

// Load reads DefaultPath (if present) and the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the YAML file at path, when it exists, then applies
// environment overrides and defaults.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.expandSecrets()
	return &cfg, nil
}

// envKey maps HELPDESK_GLPI__BASE_URL to glpi.base_url.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func (c *Config) expandSecrets() {
	c.GLPI.BaseURL = substituteEnvVars(c.GLPI.BaseURL)
	c.GLPI.AppToken = substituteEnvVars(c.GLPI.AppToken)
	c.GLPI.UserToken = substituteEnvVars(c.GLPI.UserToken)
	c.GLPI.TempPassword = substituteEnvVars(c.GLPI.TempPassword)
	c.LLM.BaseURL = substituteEnvVars(c.LLM.BaseURL)
	c.LLM.APIKey = substituteEnvVars(c.LLM.APIKey)
	c.Storage.Database.DSN = substituteEnvVars(c.Storage.Database.DSN)
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.GLPI.BaseURL == "" {
		errs = append(errs, errors.New("glpi.base_url is required"))
	}
	if c.GLPI.AppToken == "" || c.GLPI.UserToken == "" {
		errs = append(errs, errors.New("glpi.app_token and glpi.user_token are required"))
	}
	if !c.LLM.Mock && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.api_key is required unless llm.mock is set"))
	}
	switch c.Storage.Type {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.type %q is not supported", c.Storage.Type))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port %d is invalid", c.Server.Port))
	}
	return errors.Join(errs...)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
