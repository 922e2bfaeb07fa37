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
Package gateway is the request-handling shell of QueryGate. It exposes
the service operations over HTTP:

	POST   /api/v1/schema        table/column snapshot for a connection
	POST   /api/v1/sql/generate  NL-to-SQL via the external generator
	POST   /api/v1/explain       validate + plan estimate, no execution
	POST   /api/v1/query         full pipeline, inline rows or handle
	GET    /api/v1/handles/{id}  next page of an overflow result
	DELETE /api/v1/handles/{id}  early release
	GET    /health               readiness-aware liveness
	GET    /metrics              Prometheus exposition

Every query runs the pipeline in strict order: statement validation,
plan guard, read-only execution, then inline return or overflow handle
creation. A rejection at any stage short-circuits with a structured
stage/reason/message envelope; a rejected query is never retried in a
relaxed form. Generated SQL passes through the same pipeline as
hand-written SQL with no elevated trust.

API requests are guarded by a shared-secret X-Api-Key header (when
configured), optional JWT user tokens, and a per-client rate limit
backed by Redis with an in-memory fallback.
*/
package gateway
