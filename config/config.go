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
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the complete, immutable service configuration. It is built once
// at startup (Load) and passed explicitly to every component; changing policy
// requires a restart.
type Config struct {
	// ListenPort is the HTTP port the gateway binds to.
	ListenPort string `yaml:"listen_port"`

	// APIKey is the shared secret trusted callers must send as X-Api-Key.
	// Empty disables the guard (local development).
	APIKey string `yaml:"api_key"`

	// JWTSecret signs/verifies optional end-user tokens.
	JWTSecret string `yaml:"jwt_secret"`

	// RedisURL enables distributed rate limiting when set.
	RedisURL string `yaml:"redis_url"`

	// RateLimitPerMinute is the per-client request budget (0 = unlimited).
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// SchemaTTL bounds how long a cached SchemaSnapshot is served.
	SchemaTTL time.Duration `yaml:"schema_ttl"`

	Policy      Policy             `yaml:"policy"`
	Artifact    Artifact           `yaml:"artifact"`
	Generator   Generator          `yaml:"generator"`
	Connections []ConnectionConfig `yaml:"connections"`
}

// Policy holds the query-safety knobs. Every field is a hard server-side
// bound: caller input can lower effective values, never raise them.
type Policy struct {
	// HardRowLimit is the LIMIT ceiling injected into or clamped onto
	// every statement.
	HardRowLimit int `yaml:"hard_row_limit"`

	// MaxTimeout clamps the per-request statement timeout.
	MaxTimeout time.Duration `yaml:"max_timeout"`

	// DefaultTimeout applies when the caller does not ask for one.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// InlineRowCap is the largest result returned inline; anything larger
	// is persisted and returned as an overflow handle.
	InlineRowCap int `yaml:"inline_row_cap"`

	// BlockSelectStar rejects bare `SELECT *` projections.
	BlockSelectStar bool `yaml:"block_select_star"`

	// PlanCostCeiling rejects plans whose estimated cost exceeds it,
	// in the backend estimator's own units. 0 disables the check.
	PlanCostCeiling float64 `yaml:"plan_cost_ceiling"`

	// HandleTTL is the overflow handle lifetime from creation.
	HandleTTL time.Duration `yaml:"handle_ttl"`

	// HandlePageSize is the number of rows per handle fetch page.
	HandlePageSize int `yaml:"handle_page_size"`

	// SweepInterval is the period of the expired-handle sweeper.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Artifact selects and configures the overflow artifact store backend.
type Artifact struct {
	// Backend is one of: s3, gcs, azblob, memory.
	Backend string `yaml:"backend"`

	// Bucket (s3/gcs) or container (azblob) holding artifacts.
	Bucket string `yaml:"bucket"`

	// Prefix namespaces artifact keys inside the bucket.
	Prefix string `yaml:"prefix"`

	// Region for S3; Endpoint overrides for S3-compatible stores (MinIO).
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// ProjectID and CredentialsFile for GCS.
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`

	// AccountURL for Azure Blob (https://<account>.blob.core.windows.net).
	AccountURL string `yaml:"account_url"`
}

// Generator configures the external NL-to-SQL model. Its output is untrusted
// and passes through the full validation pipeline like hand-written SQL.
type Generator struct {
	Enabled     bool    `yaml:"enabled"`
	Region      string  `yaml:"region"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// ConnectionConfig describes one read-only database connection. The
// capability is fixed: there is no write flag to set.
type ConnectionConfig struct {
	// ID is the identifier callers pass as "connection".
	ID string `yaml:"id"`

	// Driver is "postgres" or "mysql".
	Driver string `yaml:"driver"`

	// DSN, when set, is used verbatim (password and all).
	DSN string `yaml:"dsn"`

	// Host/Port/Database/User/SSLMode build the DSN when DSN is empty.
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	SSLMode  string `yaml:"sslmode"`

	// Password is usually left empty and resolved from SecretARN.
	Password string `yaml:"password"`

	// SecretARN references an AWS Secrets Manager secret holding the
	// credentials ({"username": ..., "password": ...}).
	SecretARN string `yaml:"secret_arn"`

	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// Default returns the baseline configuration before file and environment
// overrides are applied.
func Default() Config {
	return Config{
		ListenPort:         "8080",
		RateLimitPerMinute: 0,
		SchemaTTL:          5 * time.Minute,
		Policy: Policy{
			HardRowLimit:    1000,
			MaxTimeout:      30 * time.Second,
			DefaultTimeout:  10 * time.Second,
			InlineRowCap:    500,
			BlockSelectStar: true,
			PlanCostCeiling: 0,
			HandleTTL:       15 * time.Minute,
			HandlePageSize:  200,
			SweepInterval:   time.Minute,
		},
		Artifact: Artifact{
			Backend: "memory",
			Prefix:  "querygate/results",
			Region:  "us-east-1",
		},
		Generator: Generator{
			Enabled:     false,
			Region:      "us-east-1",
			Model:       "anthropic.claude-3-5-sonnet-20241022-v2:0",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
	}
}

// Environment variable names recognized by ApplyEnv.
const (
	EnvConfigFile      = "QG_CONFIG_FILE"
	EnvPort            = "PORT"
	EnvAPIKey          = "QG_API_KEY"
	EnvJWTSecret       = "JWT_SECRET"
	EnvRedisURL        = "REDIS_URL"
	EnvRateLimit       = "QG_RATE_LIMIT_PER_MINUTE"
	EnvHardRowLimit    = "QG_HARD_ROW_LIMIT"
	EnvMaxTimeoutMS    = "QG_MAX_TIMEOUT_MS"
	EnvInlineRowCap    = "QG_INLINE_ROW_CAP"
	EnvBlockSelectStar = "QG_BLOCK_SELECT_STAR"
	EnvPlanCostCeiling = "QG_PLAN_COST_CEILING"
	EnvHandleTTL       = "QG_HANDLE_TTL"
	EnvArtifactBackend = "QG_ARTIFACT_BACKEND"
	EnvArtifactBucket  = "QG_ARTIFACT_BUCKET"
	EnvGeneratorModel  = "QG_GENERATOR_MODEL"
	EnvGeneratorRegion = "QG_GENERATOR_REGION"
)

// ApplyEnv overlays recognized environment variables onto c. Invalid values
// are logged and ignored, keeping the previous value.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPort); v != "" {
		c.ListenPort = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RateLimitPerMinute = n
		} else {
			log.Printf("[config] WARNING: invalid %s=%q, keeping %d", EnvRateLimit, v, c.RateLimitPerMinute)
		}
	}
	if v := os.Getenv(EnvHardRowLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Policy.HardRowLimit = n
		} else {
			log.Printf("[config] WARNING: invalid %s=%q, keeping %d", EnvHardRowLimit, v, c.Policy.HardRowLimit)
		}
	}
	if v := os.Getenv(EnvMaxTimeoutMS); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Policy.MaxTimeout = time.Duration(n) * time.Millisecond
		} else {
			log.Printf("[config] WARNING: invalid %s=%q, keeping %v", EnvMaxTimeoutMS, v, c.Policy.MaxTimeout)
		}
	}
	if v := os.Getenv(EnvInlineRowCap); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Policy.InlineRowCap = n
		} else {
			log.Printf("[config] WARNING: invalid %s=%q, keeping %d", EnvInlineRowCap, v, c.Policy.InlineRowCap)
		}
	}
	if v := os.Getenv(EnvBlockSelectStar); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			c.Policy.BlockSelectStar = true
		case "false", "0", "no":
			c.Policy.BlockSelectStar = false
		default:
			log.Printf("[config] WARNING: invalid %s=%q, keeping %v", EnvBlockSelectStar, v, c.Policy.BlockSelectStar)
		}
	}
	if v := os.Getenv(EnvPlanCostCeiling); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			c.Policy.PlanCostCeiling = f
		} else {
			log.Printf("[config] WARNING: invalid %s=%q, keeping %v", EnvPlanCostCeiling, v, c.Policy.PlanCostCeiling)
		}
	}
	if v := os.Getenv(EnvHandleTTL); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Policy.HandleTTL = d
		} else {
			log.Printf("[config] WARNING: invalid %s=%q, keeping %v", EnvHandleTTL, v, c.Policy.HandleTTL)
		}
	}
	if v := os.Getenv(EnvArtifactBackend); v != "" {
		c.Artifact.Backend = v
	}
	if v := os.Getenv(EnvArtifactBucket); v != "" {
		c.Artifact.Bucket = v
	}
	if v := os.Getenv(EnvGeneratorModel); v != "" {
		c.Generator.Model = v
		c.Generator.Enabled = true
	}
	if v := os.Getenv(EnvGeneratorRegion); v != "" {
		c.Generator.Region = v
	}
}

// Validate checks the assembled configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Policy.HardRowLimit <= 0 {
		errs = append(errs, "policy.hard_row_limit must be positive")
	}
	if c.Policy.InlineRowCap <= 0 {
		errs = append(errs, "policy.inline_row_cap must be positive")
	}
	if c.Policy.InlineRowCap > c.Policy.HardRowLimit {
		errs = append(errs, "policy.inline_row_cap must not exceed policy.hard_row_limit")
	}
	if c.Policy.MaxTimeout <= 0 {
		errs = append(errs, "policy.max_timeout must be positive")
	}
	if c.Policy.DefaultTimeout <= 0 || c.Policy.DefaultTimeout > c.Policy.MaxTimeout {
		errs = append(errs, "policy.default_timeout must be positive and at most policy.max_timeout")
	}
	if c.Policy.HandleTTL <= 0 {
		errs = append(errs, "policy.handle_ttl must be positive")
	}
	if c.Policy.HandlePageSize <= 0 {
		errs = append(errs, "policy.handle_page_size must be positive")
	}
	if c.Policy.PlanCostCeiling < 0 {
		errs = append(errs, "policy.plan_cost_ceiling must not be negative")
	}

	switch c.Artifact.Backend {
	case "memory":
	case "s3", "gcs", "azblob":
		if c.Artifact.Bucket == "" {
			errs = append(errs, fmt.Sprintf("artifact.bucket required for backend %q", c.Artifact.Backend))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown artifact.backend %q (want s3, gcs, azblob, or memory)", c.Artifact.Backend))
	}

	seen := make(map[string]bool)
	for i, conn := range c.Connections {
		if conn.ID == "" {
			errs = append(errs, fmt.Sprintf("connections[%d]: id required", i))
			continue
		}
		if seen[conn.ID] {
			errs = append(errs, fmt.Sprintf("connections[%d]: duplicate id %q", i, conn.ID))
		}
		seen[conn.ID] = true
		if conn.Driver != "postgres" && conn.Driver != "mysql" {
			errs = append(errs, fmt.Sprintf("connection %q: unknown driver %q", conn.ID, conn.Driver))
		}
		if conn.DSN == "" && (conn.Host == "" || conn.Database == "" || conn.User == "") {
			errs = append(errs, fmt.Sprintf("connection %q: need dsn or host/database/user", conn.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Redacted returns a loggable summary of the configuration with every
// credential-bearing field removed.
func (c *Config) Redacted() map[string]interface{} {
	connIDs := make([]string, 0, len(c.Connections))
	for _, conn := range c.Connections {
		connIDs = append(connIDs, conn.ID+"("+conn.Driver+")")
	}
	return map[string]interface{}{
		"listen_port":       c.ListenPort,
		"api_key_set":       c.APIKey != "",
		"redis":             c.RedisURL != "",
		"hard_row_limit":    c.Policy.HardRowLimit,
		"max_timeout":       c.Policy.MaxTimeout.String(),
		"inline_row_cap":    c.Policy.InlineRowCap,
		"block_select_star": c.Policy.BlockSelectStar,
		"plan_cost_ceiling": c.Policy.PlanCostCeiling,
		"handle_ttl":        c.Policy.HandleTTL.String(),
		"artifact_backend":  c.Artifact.Backend,
		"generator_enabled": c.Generator.Enabled,
		"connections":       connIDs,
	}
}
