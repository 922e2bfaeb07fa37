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

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"querygate/platform/config"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.New("artifact not found")

// Store persists overflow result artifacts. Artifacts are written once,
// read many times, and deleted on handle expiry or release; nothing ever
// rewrites an existing key.
type Store interface {
	// Put writes data under key. The key must not already exist.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the artifact at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the artifact at key. Deleting a missing key
	// returns ErrNotFound.
	Delete(ctx context.Context, key string) error
}

// New builds the configured backend.
func New(ctx context.Context, cfg config.Artifact) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "s3":
		return NewS3(ctx, cfg)
	case "gcs":
		return NewGCS(ctx, cfg)
	case "azblob":
		return NewAzureBlob(cfg)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

// objectKey namespaces an artifact key under the configured prefix.
func objectKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}
