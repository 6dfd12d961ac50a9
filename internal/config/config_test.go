package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	if p.Limits.Daily != (Limit{MaxTasks: 10, MaxCoins: 50}) {
		t.Errorf("daily limit = %+v", p.Limits.Daily)
	}
	if p.Recurring.WeeklyDays != 6 || p.Recurring.MonthlyDays != 26 {
		t.Errorf("recurring = %+v, want 6/26", p.Recurring)
	}
	if p.Loot.RarityWeights["legendary"] != 10 {
		t.Errorf("legendary weight = %d, want 10", p.Loot.RarityWeights["legendary"])
	}
}

func TestParsePolicyOverridesOnlyGivenKeys(t *testing.T) {
	p, err := ParsePolicy([]byte(`
limits:
  daily:
    max_tasks: 3
loot:
  rarity_weights:
    mythic: 2
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Limits.Daily.MaxTasks != 3 {
		t.Errorf("daily max_tasks = %d, want 3", p.Limits.Daily.MaxTasks)
	}
	if p.Limits.Daily.MaxCoins != 50 {
		t.Errorf("daily max_coins = %d, want default 50", p.Limits.Daily.MaxCoins)
	}
	if p.Loot.RarityWeights["mythic"] != 2 {
		t.Errorf("mythic weight = %d, want 2", p.Loot.RarityWeights["mythic"])
	}
	if p.Loot.RarityWeights["common"] != 50 {
		t.Errorf("common weight = %d, want default 50", p.Loot.RarityWeights["common"])
	}
}

func TestParsePolicyRejectsInvalid(t *testing.T) {
	if _, err := ParsePolicy([]byte("recurring:\n  weekly_days: 0\n")); err == nil {
		t.Error("expected error for zero weekly_days")
	}
	if _, err := ParsePolicy([]byte("loot:\n  rarity_weights:\n    common: -1\n")); err == nil {
		t.Error("expected error for negative weight")
	}
	if _, err := ParsePolicy([]byte("limits: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("retention_days: 7\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	t.Setenv("CHOREQUEST_JWT_SECRET", "secret")
	t.Setenv("CHOREQUEST_PORT", "9000")
	t.Setenv("CHOREQUEST_TIMEZONE", "Asia/Ho_Chi_Minh")
	t.Setenv("CHOREQUEST_POLICY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("port = %q, want 9000", cfg.Port)
	}
	if cfg.BaseURL != "http://localhost:9000" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
	if cfg.Timezone.String() != "Asia/Ho_Chi_Minh" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	if cfg.Policy.RetentionDays != 7 {
		t.Errorf("retention = %d, want 7", cfg.Policy.RetentionDays)
	}
	if cfg.S3.Enabled() {
		t.Error("s3 should be disabled without credentials")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CHOREQUEST_JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Error("expected error without JWT secret")
	}
}

func TestLoadBadTimezone(t *testing.T) {
	t.Setenv("CHOREQUEST_JWT_SECRET", "secret")
	t.Setenv("CHOREQUEST_TIMEZONE", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
