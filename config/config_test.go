// Copyright 2025 QueryGate
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Policy.HardRowLimit != 1000 {
		t.Errorf("Expected hard_row_limit 1000, got %d", cfg.Policy.HardRowLimit)
	}
	if cfg.Policy.InlineRowCap != 500 {
		t.Errorf("Expected inline_row_cap 500, got %d", cfg.Policy.InlineRowCap)
	}
	if cfg.Policy.MaxTimeout != 30*time.Second {
		t.Errorf("Expected max_timeout 30s, got %v", cfg.Policy.MaxTimeout)
	}
	if !cfg.Policy.BlockSelectStar {
		t.Error("Expected block_select_star to default to true")
	}
	if cfg.Policy.PlanCostCeiling != 0 {
		t.Errorf("Expected plan_cost_ceiling disabled (0), got %v", cfg.Policy.PlanCostCeiling)
	}
	if cfg.Policy.HandleTTL != 15*time.Minute {
		t.Errorf("Expected handle_ttl 15m, got %v", cfg.Policy.HandleTTL)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "querygate.yaml")

	content := `
listen_port: "9090"
policy:
  hard_row_limit: 2000
  inline_row_cap: 100
  block_select_star: false
  plan_cost_ceiling: 50000
connections:
  - id: orders-db
    driver: postgres
    host: db.internal
    port: "5432"
    database: orders
    user: reader
    password: secret
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenPort != "9090" {
		t.Errorf("Expected listen_port 9090, got %s", cfg.ListenPort)
	}
	if cfg.Policy.HardRowLimit != 2000 {
		t.Errorf("Expected hard_row_limit 2000, got %d", cfg.Policy.HardRowLimit)
	}
	if cfg.Policy.BlockSelectStar {
		t.Error("Expected block_select_star false from file")
	}
	// File did not set handle_ttl, so the default must survive
	if cfg.Policy.HandleTTL != 15*time.Minute {
		t.Errorf("Expected default handle_ttl to survive, got %v", cfg.Policy.HandleTTL)
	}
	if len(cfg.Connections) != 1 || cfg.Connections[0].ID != "orders-db" {
		t.Fatalf("Expected one connection orders-db, got %+v", cfg.Connections)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
		check  func(*Config) bool
	}{
		{
			name:   "hard row limit override",
			envVar: EnvHardRowLimit,
			value:  "250",
			check:  func(c *Config) bool { return c.Policy.HardRowLimit == 250 },
		},
		{
			name:   "invalid hard row limit keeps default",
			envVar: EnvHardRowLimit,
			value:  "not-a-number",
			check:  func(c *Config) bool { return c.Policy.HardRowLimit == 1000 },
		},
		{
			name:   "negative hard row limit keeps default",
			envVar: EnvHardRowLimit,
			value:  "-5",
			check:  func(c *Config) bool { return c.Policy.HardRowLimit == 1000 },
		},
		{
			name:   "max timeout override",
			envVar: EnvMaxTimeoutMS,
			value:  "5000",
			check:  func(c *Config) bool { return c.Policy.MaxTimeout == 5*time.Second },
		},
		{
			name:   "block select star off",
			envVar: EnvBlockSelectStar,
			value:  "false",
			check:  func(c *Config) bool { return !c.Policy.BlockSelectStar },
		},
		{
			name:   "invalid block select star keeps default",
			envVar: EnvBlockSelectStar,
			value:  "maybe",
			check:  func(c *Config) bool { return c.Policy.BlockSelectStar },
		},
		{
			name:   "handle ttl override",
			envVar: EnvHandleTTL,
			value:  "30m",
			check:  func(c *Config) bool { return c.Policy.HandleTTL == 30*time.Minute },
		},
		{
			name:   "plan cost ceiling override",
			envVar: EnvPlanCostCeiling,
			value:  "25000.5",
			check:  func(c *Config) bool { return c.Policy.PlanCostCeiling == 25000.5 },
		},
		{
			name:   "api key override",
			envVar: EnvAPIKey,
			value:  "test-key",
			check:  func(c *Config) bool { return c.APIKey == "test-key" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.Setenv(tt.envVar, tt.value); err != nil {
				t.Fatalf("Failed to set %s: %v", tt.envVar, err)
			}
			defer func() {
				if err := os.Unsetenv(tt.envVar); err != nil {
					t.Errorf("Failed to unset %s: %v", tt.envVar, err)
				}
			}()

			cfg := Default()
			cfg.ApplyEnv()

			if !tt.check(&cfg) {
				t.Errorf("Override check failed for %s=%s", tt.envVar, tt.value)
			}
		})
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "inline cap above hard limit",
			mutate:  func(c *Config) { c.Policy.InlineRowCap = 5000 },
			wantErr: "inline_row_cap",
		},
		{
			name:    "zero hard limit",
			mutate:  func(c *Config) { c.Policy.HardRowLimit = 0 },
			wantErr: "hard_row_limit",
		},
		{
			name:    "unknown artifact backend",
			mutate:  func(c *Config) { c.Artifact.Backend = "ftp" },
			wantErr: "artifact.backend",
		},
		{
			name: "s3 backend without bucket",
			mutate: func(c *Config) {
				c.Artifact.Backend = "s3"
				c.Artifact.Bucket = ""
			},
			wantErr: "artifact.bucket",
		},
		{
			name: "duplicate connection ids",
			mutate: func(c *Config) {
				c.Connections = []ConnectionConfig{
					{ID: "a", Driver: "postgres", DSN: "postgres://x"},
					{ID: "a", Driver: "postgres", DSN: "postgres://y"},
				}
			},
			wantErr: "duplicate id",
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Connections = []ConnectionConfig{
					{ID: "a", Driver: "oracle", DSN: "oracle://x"},
				}
			},
			wantErr: "unknown driver",
		},
		{
			name: "missing dsn and parts",
			mutate: func(c *Config) {
				c.Connections = []ConnectionConfig{
					{ID: "a", Driver: "postgres"},
				}
			},
			wantErr: "need dsn or host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		conn ConnectionConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			conn: ConnectionConfig{ID: "a", Driver: "postgres", DSN: "postgres://u:p@h/d"},
			want: "postgres://u:p@h/d",
		},
		{
			name: "postgres from parts",
			conn: ConnectionConfig{
				ID: "a", Driver: "postgres",
				Host: "db.internal", Port: "5432", Database: "orders",
				User: "reader", Password: "pw", SSLMode: "verify-full",
			},
			want: "postgres://reader:pw@db.internal:5432/orders?sslmode=verify-full",
		},
		{
			name: "postgres sslmode defaults to require",
			conn: ConnectionConfig{
				ID: "a", Driver: "postgres",
				Host: "h", Database: "d", User: "u", Password: "p",
			},
			want: "postgres://u:p@h/d?sslmode=require",
		},
		{
			name: "mysql from parts",
			conn: ConnectionConfig{
				ID: "a", Driver: "mysql",
				Host: "db.internal", Port: "3307", Database: "orders",
				User: "reader", Password: "pw",
			},
			want: "reader:pw@tcp(db.internal:3307)/orders?parseTime=true",
		},
		{
			name: "mysql default port",
			conn: ConnectionConfig{
				ID: "a", Driver: "mysql",
				Host: "h", Database: "d", User: "u", Password: "p",
			},
			want: "u:p@tcp(h:3306)/d?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.conn.BuildDSN()
			if err != nil {
				t.Fatalf("BuildDSN failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected DSN %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("unknown driver", func(t *testing.T) {
		conn := ConnectionConfig{ID: "a", Driver: "oracle"}
		if _, err := conn.BuildDSN(); err == nil {
			t.Error("Expected error for unknown driver")
		}
	})
}

func TestResolveCredentials(t *testing.T) {
	sm := NewLocalSecretsManager()
	sm.SetSecret("arn:aws:secretsmanager:us-east-1:123456789012:secret:orders-abc123", map[string]string{
		"username": "svc_reader",
		"password": "resolved-pw",
	})

	conns := []ConnectionConfig{
		{
			ID: "orders-db", Driver: "postgres",
			Host: "h", Database: "d", User: "placeholder",
			SecretARN: "arn:aws:secretsmanager:us-east-1:123456789012:secret:orders-abc123",
		},
		{
			ID: "static-db", Driver: "mysql",
			Host: "h", Database: "d", User: "u", Password: "static",
		},
	}

	if err := ResolveCredentials(context.Background(), sm, conns); err != nil {
		t.Fatalf("ResolveCredentials failed: %v", err)
	}

	if conns[0].User != "svc_reader" || conns[0].Password != "resolved-pw" {
		t.Errorf("Expected resolved credentials, got user=%s", conns[0].User)
	}
	if conns[1].Password != "static" {
		t.Error("Connection without secret reference should be untouched")
	}
}

func TestResolveCredentialsMissingSecret(t *testing.T) {
	sm := NewLocalSecretsManager()
	conns := []ConnectionConfig{
		{ID: "a", Driver: "postgres", Host: "h", Database: "d", User: "u", SecretARN: "arn:aws:secretsmanager:us-east-1:123456789012:secret:missing"},
	}

	err := ResolveCredentials(context.Background(), sm, conns)
	if err == nil {
		t.Fatal("Expected error for missing secret")
	}
	if strings.Contains(err.Error(), "missing") && !strings.Contains(err.Error(), "...") {
		t.Errorf("Error should mask the secret reference: %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "super-secret"
	cfg.JWTSecret = "also-secret"
	cfg.Connections = []ConnectionConfig{
		{ID: "orders-db", Driver: "postgres", DSN: "postgres://u:topsecret@h/d"},
	}

	redacted := cfg.Redacted()

	for k, v := range redacted {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(s, "super-secret") || strings.Contains(s, "topsecret") {
			t.Errorf("Redacted output leaks a secret in field %s", k)
		}
	}
	if redacted["api_key_set"] != true {
		t.Error("Expected api_key_set true")
	}
}

func TestMaskRef(t *testing.T) {
	if got := maskRef("short"); got != "***" {
		t.Errorf("Expected *** for short ref, got %s", got)
	}
	long := "arn:aws:secretsmanager:us-east-1:123456789012:secret:orders-abc123"
	masked := maskRef(long)
	if !strings.HasPrefix(masked, "...") || len(masked) != 11 {
		t.Errorf("Unexpected mask %q", masked)
	}
}
