package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
server:
  port: 9090
glpi:
  base_url: ${TEST_GLPI_URL}
  app_token: app
  user_token: user
  token_ttl: 5m
  profiles:
    admin: 4
    client: 2
llm:
  mock: true
storage:
  type: sqlite
  database:
    dsn: intake.db
intake:
  min_title: 8
  generic_terms: [hello, help]
auth:
  api_keys:
    - key_hash: abc123
      description: web front-end
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.GLPI.TokenTTL != 10*time.Minute {
		t.Errorf("token_ttl = %v, want 10m", cfg.GLPI.TokenTTL)
	}
	if cfg.Remind.StaleAfter != 2*time.Hour {
		t.Errorf("stale_after = %v, want 2h", cfg.Remind.StaleAfter)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage.type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Intake.MinDescriptionInline != 15 {
		t.Errorf("min_description_inline = %d, want 15", cfg.Intake.MinDescriptionInline)
	}
}

func TestLoadFile_YAMLAndEnv(t *testing.T) {
	t.Setenv("TEST_GLPI_URL", "https://glpi.example.com/apirest.php")
	t.Setenv("HELPDESK_SERVER__PORT", "9100")
	t.Setenv("HELPDESK_LLM__MODEL", "local-model")

	cfg, err := LoadFile(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.GLPI.BaseURL != "https://glpi.example.com/apirest.php" {
		t.Errorf("base_url = %q, want substituted value", cfg.GLPI.BaseURL)
	}
	if cfg.GLPI.TokenTTL != 5*time.Minute {
		t.Errorf("token_ttl = %v, want 5m", cfg.GLPI.TokenTTL)
	}
	if cfg.GLPI.Profiles["admin"] != 4 || cfg.GLPI.Profiles["client"] != 2 {
		t.Errorf("profiles = %v", cfg.GLPI.Profiles)
	}
	if cfg.LLM.Model != "local-model" || !cfg.LLM.Mock {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Intake.MinTitle != 8 || cfg.Intake.MinDescription != 10 {
		t.Errorf("intake thresholds = %d/%d, want 8/10", cfg.Intake.MinTitle, cfg.Intake.MinDescription)
	}
	if got := strings.Join(cfg.Intake.GenericTerms, ","); got != "hello,help" {
		t.Errorf("generic_terms = %q", got)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].KeyHash != "abc123" {
		t.Errorf("api_keys = %+v", cfg.Auth.APIKeys)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "server: [unclosed")); err == nil {
		t.Fatal("LoadFile() error = nil, want parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want missing settings")
	}
	for _, want := range []string{"glpi.base_url", "glpi.app_token", "llm.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %q, want mention of %s", err, want)
		}
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple substitution", input: "${TEST_VAR}", want: "test-value"},
		{name: "embedded", input: "prefix-${TEST_VAR}-suffix", want: "prefix-test-value-suffix"},
		{name: "unset variable", input: "${NONEXISTENT_VAR_12345}", want: ""},
		{name: "no substitution", input: "plain-string", want: "plain-string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
