package fetcher

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !cfg.DenyPrivateIPs {
		t.Error("default config must deny private IPs")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ContentFetchConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *ContentFetchConfig) {}, wantErr: false},
		{name: "negative threshold", mutate: func(c *ContentFetchConfig) { c.Threshold = -1 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *ContentFetchConfig) { c.Timeout = 0 }, wantErr: true},
		{name: "tiny body size", mutate: func(c *ContentFetchConfig) { c.MaxBodySize = 100 }, wantErr: true},
		{name: "too many redirects", mutate: func(c *ContentFetchConfig) { c.MaxRedirects = 11 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONTENT_FETCH_THRESHOLD", "2000")
	t.Setenv("CONTENT_FETCH_TIMEOUT", "15s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv err=%v", err)
	}
	if cfg.Threshold != 2000 {
		t.Errorf("Threshold = %d, want 2000", cfg.Threshold)
	}
	if cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Timeout)
	}
}

func TestLoadConfigFromEnv_InvalidValue(t *testing.T) {
	t.Setenv("CONTENT_FETCH_TIMEOUT", "soon")

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("LoadConfigFromEnv accepted invalid timeout")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{name: "ftp scheme", url: "ftp://example.com/file", wantErr: ErrInvalidURL},
		{name: "empty hostname", url: "https:///path", wantErr: ErrInvalidURL},
		{name: "loopback", url: "http://127.0.0.1/admin", wantErr: ErrPrivateIP},
		{name: "private range", url: "http://192.168.1.10/", wantErr: ErrPrivateIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateURL(tt.url, true)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validateURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL_PrivateAllowedWhenDisabled(t *testing.T) {
	if err := validateURL("http://127.0.0.1/metrics", false); err != nil {
		t.Errorf("validateURL with deny disabled = %v, want nil", err)
	}
}
