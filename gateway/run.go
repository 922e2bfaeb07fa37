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

package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"querygate/platform/config"
	"querygate/platform/gateway/dbconn"
	"querygate/platform/generator"
	"querygate/platform/store"
)

// Router builds the HTTP routes. Exposed separately from Run so tests
// can drive the full stack through httptest.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.middleware)
	api.HandleFunc("/schema", s.handleSchema).Methods("POST")
	api.HandleFunc("/sql/generate", s.handleGenerate).Methods("POST")
	api.HandleFunc("/explain", s.handleExplain).Methods("POST")
	api.HandleFunc("/query", s.handleQuery).Methods("POST")
	api.HandleFunc("/handles/{id}", s.handleFetchHandle).Methods("GET")
	api.HandleFunc("/handles/{id}", s.handleReleaseHandle).Methods("DELETE")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

// Run starts the gateway and blocks until ctx is cancelled. Startup
// order: resolve credentials, open connection pools, build the artifact
// store and generator, then serve; the health endpoint reports ready
// only once the pools are verified.
func Run(ctx context.Context, cfg *config.Config) error {
	startupLog := log.Default()
	startupLog.Printf("🚀 Starting QueryGate on port %s", cfg.ListenPort)

	if hasSecretRefs(cfg.Connections) {
		sm, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{})
		if err != nil {
			return fmt.Errorf("creating secrets manager: %w", err)
		}
		if err := config.ResolveCredentials(ctx, sm, cfg.Connections); err != nil {
			return err
		}
	}

	registry, err := dbconn.Open(ctx, cfg.Connections)
	if err != nil {
		return err
	}
	defer registry.Close()

	artifacts, err := store.New(ctx, cfg.Artifact)
	if err != nil {
		return fmt.Errorf("building artifact store: %w", err)
	}

	var gen SQLGenerator
	if cfg.Generator.Enabled {
		g, err := generator.New(ctx, cfg.Generator)
		if err != nil {
			return fmt.Errorf("building SQL generator: %w", err)
		}
		gen = g
	}

	svc := NewService(cfg, registry, artifacts, gen)
	auth := &authGuard{apiKey: cfg.APIKey, jwtSecret: cfg.JWTSecret}
	limiter := newRateLimiter(cfg.RedisURL, cfg.RateLimitPerMinute)
	server := NewServer(svc, auth, limiter)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go svc.Handles().RunSweeper(sweepCtx, cfg.Policy.SweepInterval)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Api-Key"},
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.ListenPort,
		Handler:      corsHandler.Handler(server.Router()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		startupLog.Printf("✅ QueryGate listening on :%s", cfg.ListenPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	server.SetReady(true)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	startupLog.Printf("🛑 Shutting down")
	server.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func hasSecretRefs(conns []config.ConnectionConfig) bool {
	for _, c := range conns {
		if c.SecretARN != "" {
			return true
		}
	}
	return false
}
