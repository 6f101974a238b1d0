package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv unsets all MPS_ environment variables for a clean test.
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"MPS_SERVER_PORT",
		"MPS_SERVER_HOST",
		"MPS_DATABASE_URL",
		"MPS_DATABASE_MAX_CONNS",
		"MPS_DATABASE_MIN_CONNS",
		"MPS_DATABASE_MIGRATE",
		"MPS_CACHE_URL",
		"MPS_BACKEND_MODE",
		"MPS_BACKEND_URL",
		"MPS_BACKEND_TIMEOUT",
		"MPS_BACKEND_LOCAL_DIR",
		"MPS_STORAGE_MODE",
		"MPS_STORAGE_PREFIX",
		"MPS_SESSION_DEDUPE_ATTEMPTS",
		"MPS_SESSION_FLUSH_TIMEOUT",
		"MPS_LOG_LEVEL",
		"MPS_LOG_FORMAT",
	}
	for _, v := range envVars {
		_ = os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.MaxConns != 10 {
		t.Errorf("Database.MaxConns = %d, want 10", cfg.Database.MaxConns)
	}
	if cfg.Cache.URL != "redis://localhost:6379" {
		t.Errorf("Cache.URL = %q, want redis://localhost:6379", cfg.Cache.URL)
	}
	if cfg.Backend.Mode != BackendLocal {
		t.Errorf("Backend.Mode = %q, want local", cfg.Backend.Mode)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want 10s", cfg.Backend.Timeout)
	}
	if cfg.Storage.Mode != StorageMemory {
		t.Errorf("Storage.Mode = %q, want memory", cfg.Storage.Mode)
	}
	if !cfg.Session.DedupeAttempts {
		t.Error("Session.DedupeAttempts should default to true")
	}
	if cfg.Session.FlushTimeout != 5*time.Second {
		t.Errorf("Session.FlushTimeout = %v, want 5s", cfg.Session.FlushTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("MPS_SERVER_PORT", "9090")
	t.Setenv("MPS_BACKEND_MODE", "http")
	t.Setenv("MPS_BACKEND_URL", "https://lms.example.com/api")
	t.Setenv("MPS_BACKEND_TIMEOUT", "2s")
	t.Setenv("MPS_STORAGE_MODE", "redis")
	t.Setenv("MPS_SESSION_DEDUPE_ATTEMPTS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Backend.URL != "https://lms.example.com/api" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout != 2*time.Second {
		t.Errorf("Backend.Timeout = %v, want 2s", cfg.Backend.Timeout)
	}
	if cfg.Storage.Mode != StorageRedis {
		t.Errorf("Storage.Mode = %q, want redis", cfg.Storage.Mode)
	}
	if cfg.Session.DedupeAttempts {
		t.Error("Session.DedupeAttempts should be false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MPS_SERVER_PORT=7070\nMPS_LOG_LEVEL=debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("MPS_LOG_LEVEL", "warn")
	t.Cleanup(func() { _ = os.Unsetenv("MPS_SERVER_PORT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 from .env", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want environment to win over .env", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"local default", nil, false},
		{"http without url", map[string]string{"MPS_BACKEND_MODE": "http"}, true},
		{"http with url", map[string]string{"MPS_BACKEND_MODE": "http", "MPS_BACKEND_URL": "http://x"}, false},
		{"postgres", map[string]string{"MPS_BACKEND_MODE": "postgres"}, false},
		{"unknown backend", map[string]string{"MPS_BACKEND_MODE": "ftp"}, true},
		{"unknown storage", map[string]string{"MPS_STORAGE_MODE": "disk"}, true},
		{"bad log format", map[string]string{"MPS_LOG_FORMAT": "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvParsing(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want bool
	}{
		{"true", "true", true},
		{"TRUE", "TRUE", true},
		{"false", "false", false},
		{"1", "1", true},
		{"0", "0", false},
		{"empty", "", true},
		{"invalid", "notabool", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.val != "" {
				t.Setenv("MPS_SESSION_DEDUPE_ATTEMPTS", tt.val)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Session.DedupeAttempts != tt.want {
				t.Errorf("Session.DedupeAttempts = %v, want %v", cfg.Session.DedupeAttempts, tt.want)
			}
		})
	}

	clearEnv(t)
	t.Setenv("MPS_SESSION_FLUSH_TIMEOUT", "soon")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.FlushTimeout != 5*time.Second {
		t.Errorf("FlushTimeout = %v, want fallback 5s for unparsable value", cfg.Session.FlushTimeout)
	}
}
