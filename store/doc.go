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

/*
Package store persists overflow result artifacts behind a small Store
interface: write-once Put, Get, Delete, with ErrNotFound for unknown
keys.

Four backends are provided, selected by configuration:

  - s3: AWS S3 or any S3-compatible endpoint (MinIO) via an endpoint
    override
  - gcs: Google Cloud Storage
  - azblob: Azure Blob Storage
  - memory: in-process, for development and tests

The handle manager treats artifacts as immutable after creation and only
publishes a handle id once its artifact is fully written, so a reader
can never observe a partial object through any backend.
*/
package store
