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
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"querygate/platform/config"
)

// GCS stores artifacts as objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS store. Credentials come from the configured file
// or application default credentials.
func NewGCS(ctx context.Context, cfg config.Artifact) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	return &GCS{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (g *GCS) Put(ctx context.Context, key string, data []byte) error {
	obj := g.client.Bucket(g.bucket).Object(objectKey(g.prefix, key))

	w := obj.NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing artifact %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing artifact %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	obj := g.client.Bucket(g.bucket).Object(objectKey(g.prefix, key))

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening artifact %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return data, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	obj := g.client.Bucket(g.bucket).Object(objectKey(g.prefix, key))

	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting artifact %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
