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
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"querygate/platform/shared/logger"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Server is the HTTP surface over the Service.
type Server struct {
	svc     *Service
	auth    *authGuard
	limiter RateLimiter
	log     *logger.Logger
	ready   atomic.Bool
}

// NewServer wires the HTTP layer.
func NewServer(svc *Service, auth *authGuard, limiter RateLimiter) *Server {
	return &Server{
		svc:     svc,
		auth:    auth,
		limiter: limiter,
		log:     logger.New("gateway-http"),
	}
}

// SetReady flips the readiness flag reported by /health.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

type errorResponse struct {
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, perr *PipelineError) {
	writeJSON(w, httpStatus(perr), errorResponse{
		Stage:     perr.Stage,
		Reason:    perr.Reason,
		Message:   perr.Message,
		RequestID: requestID(r),
	})
}

// middleware authenticates, rate limits, and tags every API request
// with a request id.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		clientID, status, err := s.auth.check(r)
		if err != nil {
			writeJSON(w, status, errorResponse{
				Stage:     StageGateway,
				Reason:    "unauthorized",
				Message:   err.Error(),
				RequestID: id,
			})
			return
		}

		if !s.limiter.Allow(r.Context(), clientID) {
			rateLimitedTotal.Inc()
			s.log.Warn(id, "", "Rate limit exceeded", map[string]interface{}{"client": clientID})
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Stage:     StageGateway,
				Reason:    "rate_limited",
				Message:   "request rate limit exceeded, retry later",
				RequestID: id,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Stage:     StageGateway,
			Reason:    "bad_request",
			Message:   "invalid request body: " + err.Error(),
			RequestID: requestID(r),
		})
		return false
	}
	return true
}

type schemaRequest struct {
	Connection string `json:"connection"`
	Refresh    bool   `json:"refresh,omitempty"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	snap, perr := s.svc.Schema(r.Context(), requestID(r), req.Connection, req.Refresh)
	if perr != nil {
		s.writeError(w, r, perr)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type generateRequest struct {
	Connection string `json:"connection"`
	Intent     string `json:"intent"`
}

type generateResponse struct {
	SQL string `json:"sql"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sql, perr := s.svc.Generate(r.Context(), requestID(r), req.Connection, req.Intent)
	if perr != nil {
		s.writeError(w, r, perr)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{SQL: sql})
}

type explainRequest struct {
	Connection string `json:"connection"`
	SQL        string `json:"sql"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !decodeBody(w, r, &req) {
		return
	}

	est, perr := s.svc.Explain(r.Context(), requestID(r), req.Connection, req.SQL)
	if perr != nil {
		s.writeError(w, r, perr)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

type queryRequest struct {
	Connection string `json:"connection"`
	SQL        string `json:"sql"`
	Limit      int    `json:"limit,omitempty"`
	TimeoutMS  int    `json:"timeout_ms,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, perr := s.svc.Query(r.Context(), requestID(r), req.Connection, req.SQL,
		req.Limit, time.Duration(req.TimeoutMS)*time.Millisecond)
	if perr != nil {
		s.writeError(w, r, perr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFetchHandle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pageToken := r.URL.Query().Get("page_token")

	page, perr := s.svc.FetchHandle(r.Context(), requestID(r), id, pageToken)
	if perr != nil {
		s.writeError(w, r, perr)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleReleaseHandle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if perr := s.svc.ReleaseHandle(r.Context(), requestID(r), id); perr != nil {
		s.writeError(w, r, perr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	code := http.StatusServiceUnavailable
	if s.ready.Load() {
		status = "healthy"
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]interface{}{
		"status":      status,
		"connections": s.svc.registry.IDs(),
	})
}
