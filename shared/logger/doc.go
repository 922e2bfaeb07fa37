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
Package logger provides structured JSON logging for QueryGate components.

# Overview

The logger package outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK stack, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, executor, sweeper, etc.)
  - Instance ID and container name (for distributed tracing)
  - Request ID (for request correlation)
  - Connection ID (the database connection the request targets)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("gateway")

Log messages with request context:

	log.Info("req-456", "orders-db", "Query accepted", map[string]interface{}{
	    "effective_limit": 1000,
	})

Log pipeline rejections with their stage and reason code:

	log.RejectedWithReason("req-456", "orders-db", "validator", "not_select", nil)

# Credential Safety

Callers must never pass DSNs, passwords, or secret values in fields.
Error paths log backend messages only after credential scrubbing.

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
