package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty search base url",
			mutate: func(cfg *Config) {
				cfg.SearchBaseURL = ""
			},
			wantErr: "search base URL",
		},
		{
			name: "invalid detail url format",
			mutate: func(cfg *Config) {
				cfg.DetailBaseURL = "http://"
			},
			wantErr: "detail base URL",
		},
		{
			name: "politeness delay below floor",
			mutate: func(cfg *Config) {
				cfg.MinDelay = 100 * time.Millisecond
			},
			wantErr: "politeness delay",
		},
		{
			name: "negative search timeout",
			mutate: func(cfg *Config) {
				cfg.SearchTimeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero result cap",
			mutate: func(cfg *Config) {
				cfg.MaxResultsPerZIP = 0
			},
			wantErr: "max results",
		},
		{
			name: "empty property type",
			mutate: func(cfg *Config) {
				cfg.PropertyTypeTarget = ""
			},
			wantErr: "property type",
		},
		{
			name: "bad output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "parquet"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("MH_TEST_INT", "42")
	v, ok, err := EnvInt("MH_TEST_INT")
	if err != nil || !ok || v != 42 {
		t.Fatalf("EnvInt = (%d, %v, %v), want (42, true, nil)", v, ok, err)
	}

	t.Setenv("MH_TEST_INT", "not-a-number")
	if _, _, err := EnvInt("MH_TEST_INT"); err == nil {
		t.Fatalf("expected parse error")
	}

	if _, ok, _ := EnvInt("MH_TEST_INT_UNSET"); ok {
		t.Fatalf("unset variable should not report ok")
	}
}
