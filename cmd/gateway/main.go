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

// Package main is the entry point for the QueryGate service.
//
// QueryGate is a read-only SQL gateway that:
// - Validates every statement down to a single bounded SELECT
// - Guards execution with a pre-flight plan cost estimate
// - Runs queries in read-only transactions with hard timeouts
// - Pages large results through expiring handles
//
// Usage:
//
//	./gateway [-config path/to/config.yaml]
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	QG_API_KEY - shared secret for API callers
//	QG_CONFIG_FILE - config file path (overridden by -config)
//	REDIS_URL - Redis URL for distributed rate limiting
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"querygate/platform/config"
	"querygate/platform/gateway"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvConfigFile), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("🛑 Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gateway.Run(ctx, cfg); err != nil {
		log.Fatalf("🛑 Gateway exited: %v", err)
	}
}
