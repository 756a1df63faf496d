package main

import (
	"log/slog"
	"testing"
	"time"

	"pantry-alerts/ratelimit"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(env(nil))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.port)
	}
	if cfg.localStorage != "./data" || !cfg.local() {
		t.Errorf("localStorage = %q, want ./data", cfg.localStorage)
	}
	if cfg.pushProvider != "mock" {
		t.Errorf("pushProvider = %q, want mock", cfg.pushProvider)
	}
	if cfg.rateLimit != ratelimit.DefaultLimit || cfg.rateWindow != ratelimit.DefaultWindow {
		t.Errorf("rate limit = %d/%v, want defaults", cfg.rateLimit, cfg.rateWindow)
	}
	if cfg.logLevel != slog.LevelInfo {
		t.Errorf("logLevel = %v, want INFO", cfg.logLevel)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(env(map[string]string{
		"PORT":             "9090",
		"STORAGE_BUCKET":   "pantry-prod",
		"AUTH_SECRET":      "s3cret",
		"PUSH_PROVIDER":    "SNS",
		"SNS_PLATFORM_ARN": "arn:aws:sns:us-east-1:123:app/GCM/pantry",
		"RATE_LIMIT":       "30",
		"RATE_WINDOW":      "30s",
		"LOG_LEVEL":        "debug",
	}))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.local() {
		t.Error("local() = true with a bucket configured")
	}
	if cfg.pushProvider != "sns" || cfg.awsRegion != "us-east-1" {
		t.Errorf("push = %q in %q, want sns in us-east-1", cfg.pushProvider, cfg.awsRegion)
	}
	if cfg.rateLimit != 30 || cfg.rateWindow != 30*time.Second {
		t.Errorf("rate limit = %d/%v, want 30/30s", cfg.rateLimit, cfg.rateWindow)
	}
	if cfg.logLevel != slog.LevelDebug {
		t.Errorf("logLevel = %v, want DEBUG", cfg.logLevel)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"missing auth secret", map[string]string{"STORAGE_BUCKET": "b", "FIREBASE_PROJECT_ID": "p"}},
		{"fcm without project", map[string]string{"STORAGE_BUCKET": "b", "AUTH_SECRET": "s"}},
		{"sns without arn", map[string]string{"PUSH_PROVIDER": "sns"}},
		{"unknown provider", map[string]string{"PUSH_PROVIDER": "pigeon"}},
		{"bad rate limit", map[string]string{"RATE_LIMIT": "-1"}},
		{"bad rate window", map[string]string{"RATE_WINDOW": "soon"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(env(tt.vars)); err == nil {
				t.Error("loadConfig() error = nil, want error")
			}
		})
	}
}
