package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/hms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("default env should be development")
	}
	if cfg.DefaultCurrency != "NGN" {
		t.Errorf("DefaultCurrency = %q", cfg.DefaultCurrency)
	}
	if cfg.InpatientMedDefaultPrice != "500" {
		t.Errorf("InpatientMedDefaultPrice = %q", cfg.InpatientMedDefaultPrice)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Env: "production"}
	if err := cfg.Validate(); err == nil {
		t.Error("production without JWT_SECRET should fail")
	}
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	dev := &Config{Env: "development"}
	if err := dev.Validate(); err != nil {
		t.Errorf("dev Validate: %v", err)
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/hms")
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("INPATIENT_MED_DEFAULT_PRICE", "750")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.Env != "production" || cfg.InpatientMedDefaultPrice != "750" {
		t.Errorf("cfg = %+v", cfg)
	}
}
