package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfig_DefaultEnvironment(t *testing.T) {
	os.Unsetenv("ENV")
	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("expected %q, got %q", EnvDevelopment, cfg.Environment)
	}
}

func TestLoadServerConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("ENV", "invalid")
	cfg := LoadServerConfig()
	if cfg.Environment != EnvDevelopment {
		t.Errorf("expected %q for invalid ENV, got %q", EnvDevelopment, cfg.Environment)
	}
}

func TestLoadServerConfig_ValidEnvironments(t *testing.T) {
	tests := []struct {
		env  string
		want Environment
	}{
		{"development", EnvDevelopment},
		{"staging", EnvStaging},
		{"production", EnvProduction},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			cfg := LoadServerConfig()
			if cfg.Environment != tt.want {
				t.Errorf("expected %q, got %q", tt.want, cfg.Environment)
			}
		})
	}
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "PORT", "REPRODUCTION_MAX_DAYS_PAYMENT", "REPRODUCTION_REMINDER_DAYS", "CORS_ORIGINS", "S3_LINK_TTL", "MAINTENANCE_SCHEDULE"} {
		t.Setenv(k, "")
	}
	cfg := LoadServerConfig()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("expected listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.ReproductionMaxDaysPayment != 21 {
		t.Errorf("expected 21 payment days, got %d", cfg.ReproductionMaxDaysPayment)
	}
	if cfg.ReproductionReminderDays != 14 {
		t.Errorf("expected 14 reminder days, got %d", cfg.ReproductionReminderDays)
	}
	if cfg.MaintenanceSchedule != "0 0 * * 1-5" {
		t.Errorf("unexpected maintenance schedule %q", cfg.MaintenanceSchedule)
	}
	if cfg.S3.LinkTTL != 7*24*time.Hour {
		t.Errorf("unexpected link TTL %s", cfg.S3.LinkTTL)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("expected no CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestLoadServerConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("CORS_ORIGINS", "https://a.example.org, https://b.example.org,")
	t.Setenv("REPRODUCTION_MAX_DAYS_PAYMENT", "30")
	t.Setenv("REPRODUCTION_REMINDER_DAYS", "40")
	t.Setenv("S3_LINK_TTL", "not-a-duration")
	t.Setenv("SMTP_TLS", "yes")
	t.Setenv("BASE_URL", "https://delivery.example.org/")

	cfg := LoadServerConfig()
	if cfg.ListenAddr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.ListenAddr)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.org" {
		t.Errorf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
	if cfg.ReproductionMaxDaysPayment != 30 {
		t.Errorf("expected 30 payment days, got %d", cfg.ReproductionMaxDaysPayment)
	}
	// A reminder after the cancellation deadline falls back to two thirds of it.
	if cfg.ReproductionReminderDays != 20 {
		t.Errorf("expected 20 reminder days, got %d", cfg.ReproductionReminderDays)
	}
	if cfg.S3.LinkTTL != 7*24*time.Hour {
		t.Errorf("expected default TTL for invalid value, got %s", cfg.S3.LinkTTL)
	}
	if !cfg.SMTP.UseTLS {
		t.Error("expected SMTP TLS to be enabled")
	}
	if cfg.BaseURL != "https://delivery.example.org" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	cfg := ServerConfig{
		DatabaseURL:   "postgres://localhost/delivery",
		SessionSecret: strings.Repeat("s", 32),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.OIDCIssuer = "https://login.example.org"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for incomplete OIDC settings")
	}

	err := ServerConfig{}.Validate()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") || !strings.Contains(err.Error(), "SESSION_SECRET") {
		t.Errorf("expected both missing settings reported, got %v", err)
	}
}

func TestLoadRoleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.yaml")
	content := `groups:
  reading-room:
    - reservation_view
    - reservation_modify
  repro-desk:
    - reproduction_view
mail_subjects:
  reservation_confirmed: "Your reservation"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	rf, err := LoadRoleFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rf.Groups["reading-room"]) != 2 {
		t.Errorf("unexpected groups %v", rf.Groups)
	}
	if rf.MailSubjects["reservation_confirmed"] != "Your reservation" {
		t.Errorf("unexpected mail subjects %v", rf.MailSubjects)
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("groups: {}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRoleFile(empty); err == nil {
		t.Error("expected error for role file without groups")
	}
	if _, err := LoadRoleFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
