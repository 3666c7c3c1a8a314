package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "secret",
	}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Port != "8080" || cfg.LogLevel != "info" {
		t.Errorf("unexpected server defaults: %+v", cfg)
	}
	if cfg.Bulk.MaxBatch != 500 || cfg.Bulk.Concurrency != 50 || cfg.Bulk.EnrollmentPageSize != 500 {
		t.Errorf("unexpected bulk defaults: %+v", cfg.Bulk)
	}
	if cfg.Bulk.CallTimeout != 10*time.Second || cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("unexpected durations: %v %v", cfg.Bulk.CallTimeout, cfg.Auth.TokenTTL)
	}
	if cfg.Mongo.Database != "student_lifecycle" {
		t.Errorf("unexpected database: %s", cfg.Mongo.Database)
	}
	if cfg.IsProduction() {
		t.Errorf("default env must not be production")
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":           "secret",
		"ENV":                  "production",
		"BULK_MAX_BATCH":       "100",
		"GATEWAY_CALL_TIMEOUT": "3s",
		"ADMIN_EMAIL":          "root@school.edu",
		"ADMIN_PASSWORD":       "s3cret!!",
	}))
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.Bulk.MaxBatch != 100 || cfg.Bulk.CallTimeout != 3*time.Second {
		t.Errorf("overrides not applied: %+v", cfg.Bulk)
	}
	if !cfg.IsProduction() || cfg.Auth.AdminEmail != "root@school.edu" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]struct {
		env  map[string]string
		want string
	}{
		"missing secret": {map[string]string{}, "JWT_SECRET is required"},
		"half admin":     {map[string]string{"JWT_SECRET": "s", "ADMIN_EMAIL": "a@b.co"}, "must be set together"},
		"zero batch":     {map[string]string{"JWT_SECRET": "s", "BULK_MAX_BATCH": "0"}, "BULK_MAX_BATCH"},
		"short password": {map[string]string{"JWT_SECRET": "s", "DEFAULT_STUDENT_PASSWORD": "abc"}, "DEFAULT_STUDENT_PASSWORD"},
		"bad duration":   {map[string]string{"JWT_SECRET": "s", "BULK_TIMEOUT": "soon"}, "config:"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(context.Background(), envconfig.MapLookuper(tc.env))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
