package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "DATABASE_MAX_OPEN_CONNS", "EXTRACTOR_URL", "EXTRACTOR_TIMEOUT_SEC",
		"EXTRACTOR_RATE_PER_SEC", "INDEX_DIM", "BACKFILL_BATCH_SIZE", "BACKFILL_CONCURRENCY",
		"BACKFILL_INTERVAL_SEC", "LOG_ENV", "WEB_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Database.URL != "" {
		t.Errorf("expected empty database URL, got %q", cfg.Database.URL)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("unexpected pool defaults: %+v", cfg.Database)
	}
	if cfg.Extractor.URL != "http://localhost:8000" {
		t.Errorf("unexpected extractor URL %q", cfg.Extractor.URL)
	}
	if cfg.Extractor.Timeout != 30*time.Second {
		t.Errorf("unexpected extractor timeout %v", cfg.Extractor.Timeout)
	}
	if cfg.Extractor.RatePerSec != 0 {
		t.Errorf("expected no rate limit, got %v", cfg.Extractor.RatePerSec)
	}
	if cfg.Index.Dim != 0 {
		t.Errorf("expected unpinned dimension, got %d", cfg.Index.Dim)
	}
	if cfg.Backfill.BatchSize != 50 || cfg.Backfill.Concurrency != 1 || cfg.Backfill.Interval != 0 {
		t.Errorf("unexpected backfill defaults: %+v", cfg.Backfill)
	}
	if cfg.Log.Env != "local" {
		t.Errorf("unexpected log env %q", cfg.Log.Env)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("unexpected web port %d", cfg.Web.Port)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/visualmatch")
	t.Setenv("EXTRACTOR_TIMEOUT_SEC", "5")
	t.Setenv("EXTRACTOR_RATE_PER_SEC", "2.5")
	t.Setenv("INDEX_DIM", "512")
	t.Setenv("BACKFILL_CONCURRENCY", "4")
	t.Setenv("BACKFILL_INTERVAL_SEC", "60")

	cfg := Load()

	if cfg.Database.URL != "postgres://localhost/visualmatch" {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
	if cfg.Extractor.Timeout != 5*time.Second {
		t.Errorf("unexpected timeout %v", cfg.Extractor.Timeout)
	}
	if cfg.Extractor.RatePerSec != 2.5 {
		t.Errorf("unexpected rate %v", cfg.Extractor.RatePerSec)
	}
	if cfg.Index.Dim != 512 {
		t.Errorf("unexpected dim %d", cfg.Index.Dim)
	}
	if cfg.Backfill.Concurrency != 4 || cfg.Backfill.Interval != time.Minute {
		t.Errorf("unexpected backfill config %+v", cfg.Backfill)
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 7},
		{"abc", 7},
		{"-3", 7},
		{"0", 7},
		{"12", 12},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("TEST_ENV_INT", tc.value)
			if got := envInt("TEST_ENV_INT", 7); got != tc.want {
				t.Errorf("envInt(%q) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}

func TestKinds(t *testing.T) {
	cfg := Load()

	pet, ok := cfg.Kind("pet")
	if !ok {
		t.Fatal("expected pet kind")
	}
	if pet.Name != "pet" || pet.Threshold != 0.7 || pet.Limit != 5 {
		t.Errorf("unexpected pet config %+v", pet)
	}

	victim, ok := cfg.Kind("victim")
	if !ok {
		t.Fatal("expected victim kind")
	}
	if victim.Threshold != 0.7 || victim.Limit != 10 {
		t.Errorf("unexpected victim config %+v", victim)
	}

	if _, ok := cfg.Kind("car"); ok {
		t.Error("unexpected kind car")
	}

	names := cfg.KindNames()
	if len(names) != 2 || names[0] != "pet" || names[1] != "victim" {
		t.Errorf("KindNames() = %v", names)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg := Load()
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Web.AllowedOrigins)
	}

	t.Setenv("WEB_ALLOWED_ORIGINS", "")
	if got := Load().Web.AllowedOrigins; len(got) != 0 {
		t.Errorf("expected no origins, got %v", got)
	}
}
