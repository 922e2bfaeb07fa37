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
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"querygate/platform/config"
)

// AzureBlob stores artifacts as blobs in an Azure storage container.
// cfg.Bucket names the container; cfg.AccountURL the storage account.
type AzureBlob struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureBlob creates an Azure Blob store using the default credential
// chain (managed identity, environment, CLI).
func NewAzureBlob(cfg config.Artifact) (*AzureBlob, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure credential: %w", err)
	}

	client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("creating Azure Blob client: %w", err)
	}

	return &AzureBlob{
		client:    client,
		container: cfg.Bucket,
		prefix:    cfg.Prefix,
	}, nil
}

func (a *AzureBlob) Put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, objectKey(a.prefix, key), data, nil)
	if err != nil {
		return fmt.Errorf("putting artifact %s: %w", key, err)
	}
	return nil
}

func (a *AzureBlob) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, objectKey(a.prefix, key), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting artifact %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return data, nil
}

func (a *AzureBlob) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, objectKey(a.prefix, key), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting artifact %s: %w", key, err)
	}
	return nil
}
