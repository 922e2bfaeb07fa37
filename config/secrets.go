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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a credential reference to its key/value content.
// Secret values must never appear in logs or error messages.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret from AWS Secrets Manager.
// The secret value is expected to be a JSON object with string values
// ({"username": ..., "password": ...} for database credentials).
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[ref]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskRef(ref))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskRef(ref), err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskRef(ref))
	}

	var credentials map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &credentials); err != nil {
		// Plain-string secrets hold a single password
		credentials = map[string]string{"password": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{
		value:     credentials,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return credentials, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
	s.logger.Printf("Invalidated cache for secret %s", maskRef(ref))
}

// maskRef masks a secret reference for logging (shows only last 8 characters)
func maskRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "..." + ref[len(ref)-8:]
}

// LocalSecretsManager implements SecretsManager from an in-process map.
// Useful for development and tests without AWS Secrets Manager.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewLocalSecretsManager creates a local secrets manager for development
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{
		secrets: make(map[string]map[string]string),
	}
}

// GetSecret retrieves a secret from local storage
func (s *LocalSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[ref]; exists {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found in local secrets manager", maskRef(ref))
}

// SetSecret stores a secret locally (for testing/development)
func (s *LocalSecretsManager) SetSecret(ref string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = value
}

// ResolveCredentials fills in the User and Password of every connection that
// names a SecretARN. Connections without a reference are left untouched.
func ResolveCredentials(ctx context.Context, sm SecretsManager, conns []ConnectionConfig) error {
	for i := range conns {
		conn := &conns[i]
		if conn.SecretARN == "" {
			continue
		}
		creds, err := sm.GetSecret(ctx, conn.SecretARN)
		if err != nil {
			return fmt.Errorf("connection %q: resolving credentials: %w", conn.ID, err)
		}
		if u, ok := creds["username"]; ok && u != "" {
			conn.User = u
		}
		if p, ok := creds["password"]; ok && p != "" {
			conn.Password = p
		}
		if conn.Password == "" {
			return fmt.Errorf("connection %q: secret %s holds no password", conn.ID, maskRef(conn.SecretARN))
		}
	}
	return nil
}
