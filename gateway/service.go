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
	"errors"
	"time"

	"querygate/platform/config"
	"querygate/platform/gateway/dbconn"
	"querygate/platform/gateway/executor"
	"querygate/platform/gateway/handle"
	"querygate/platform/gateway/planguard"
	"querygate/platform/gateway/schema"
	"querygate/platform/gateway/sqlcheck"
	"querygate/platform/shared/logger"
	"querygate/platform/store"
)

// SQLGenerator is the untrusted external NL-to-SQL collaborator.
type SQLGenerator interface {
	Generate(ctx context.Context, intent string, snap *schema.Snapshot) (string, error)
}

// Service composes the pipeline stages. Each request runs isolated from
// the others; the only shared state is the schema catalog cache and the
// handle manager's index.
type Service struct {
	cfg       *config.Config
	log       *logger.Logger
	validator *sqlcheck.Validator
	guard     *planguard.Guard
	exec      *executor.Executor
	handles   *handle.Manager
	catalog   *schema.Catalog
	registry  *dbconn.Registry
	gen       SQLGenerator // nil when disabled
}

// NewService wires the pipeline from configuration. gen may be nil.
func NewService(cfg *config.Config, registry *dbconn.Registry, artifacts store.Store, gen SQLGenerator) *Service {
	handles := handle.NewManager(artifacts, cfg.Policy.HandleTTL, cfg.Policy.HandlePageSize)
	// Sweeps and deferred deletes bypass the service, so the gauge
	// decrement lives on the manager's delete path.
	handles.OnDelete(activeHandles.Dec)

	return &Service{
		cfg:       cfg,
		log:       logger.New("gateway"),
		validator: sqlcheck.New(cfg.Policy.HardRowLimit, cfg.Policy.BlockSelectStar),
		guard:     planguard.New(cfg.Policy.PlanCostCeiling),
		exec:      executor.New(cfg.Policy.DefaultTimeout, cfg.Policy.MaxTimeout),
		handles:   handles,
		catalog:   schema.NewCatalog(cfg.SchemaTTL),
		registry:  registry,
		gen:       gen,
	}
}

// Handles exposes the handle manager for the sweeper goroutine.
func (s *Service) Handles() *handle.Manager { return s.handles }

// InlineResult is a complete result set returned in the response body.
type InlineResult struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	Truncated bool            `json:"truncated"`
}

// QueryResult is the query outcome: exactly one of Inline or
// Overflow is set.
type QueryResult struct {
	Inline   *InlineResult `json:"inline,omitempty"`
	Overflow *handle.Ref   `json:"overflow,omitempty"`
}

func (s *Service) conn(connID string) (*dbconn.Conn, *PipelineError) {
	conn, err := s.registry.Get(connID)
	if err != nil {
		return nil, pipelineErr(StageGateway, "unknown_connection", err.Error())
	}
	return conn, nil
}

// Schema returns the (possibly cached) snapshot for a connection.
func (s *Service) Schema(ctx context.Context, requestID, connID string, refresh bool) (*schema.Snapshot, *PipelineError) {
	conn, perr := s.conn(connID)
	if perr != nil {
		return nil, perr
	}

	snap, err := s.catalog.Snapshot(ctx, conn.DB, conn.Driver, connID, refresh)
	if err != nil {
		return nil, pipelineErr(StageGateway, "internal", err.Error())
	}
	return snap, nil
}

// Generate forwards the intent to the external generator and returns
// its raw text. The result has no elevated trust; callers submit it to
// Query or Explain like any other SQL.
func (s *Service) Generate(ctx context.Context, requestID, connID, intent string) (string, *PipelineError) {
	if s.gen == nil {
		return "", pipelineErr(StageGateway, "generator_unavailable", "SQL generation is not configured")
	}

	snap, perr := s.Schema(ctx, requestID, connID, false)
	if perr != nil {
		return "", perr
	}

	sql, err := s.gen.Generate(ctx, intent, snap)
	if err != nil {
		return "", pipelineErr(StageGateway, "generator_error", err.Error())
	}

	s.log.Info(requestID, connID, "SQL generated from intent", map[string]interface{}{
		"intent_chars": len(intent),
		"sql_chars":    len(sql),
	})
	return sql, nil
}

// validateAndPlan runs the first two stages; shared by Explain and Query.
func (s *Service) validateAndPlan(ctx context.Context, requestID string, conn *dbconn.Conn, sql string, limit int) (planguard.Approved, *PipelineError) {
	verdict := s.validator.Validate(sqlcheck.DialectForDriver(conn.Driver), sql, limit)
	if !verdict.Accepted {
		s.log.RejectedWithReason(requestID, conn.ID, StageValidator, string(verdict.Reason), nil)
		rejectionsTotal.WithLabelValues(StageValidator, string(verdict.Reason)).Inc()
		return planguard.Approved{}, pipelineErr(StageValidator, string(verdict.Reason), verdict.Message)
	}

	result := s.guard.Check(ctx, conn.DB, conn.Driver, verdict.Statement)
	if !result.Accepted {
		s.log.RejectedWithReason(requestID, conn.ID, StagePlanGuard, string(result.Reason), nil)
		rejectionsTotal.WithLabelValues(StagePlanGuard, string(result.Reason)).Inc()
		return planguard.Approved{}, pipelineErr(StagePlanGuard, string(result.Reason), result.Message)
	}

	return result.Approved, nil
}

// Explain runs validation and the plan pass only.
func (s *Service) Explain(ctx context.Context, requestID, connID, sql string) (*planguard.Estimate, *PipelineError) {
	conn, perr := s.conn(connID)
	if perr != nil {
		return nil, perr
	}

	approved, perr := s.validateAndPlan(ctx, requestID, conn, sql, 0)
	if perr != nil {
		return nil, perr
	}

	est := approved.Estimate()
	return &est, nil
}

// Query runs the full pipeline in strict order: validate, plan, execute,
// then inline or overflow. A rejection at any stage short-circuits. A
// transient connection error is retried once with backoff; nothing else
// is ever retried.
func (s *Service) Query(ctx context.Context, requestID, connID, sql string, limit int, timeout time.Duration) (*QueryResult, *PipelineError) {
	start := time.Now()

	conn, perr := s.conn(connID)
	if perr != nil {
		return nil, perr
	}

	approved, perr := s.validateAndPlan(ctx, requestID, conn, sql, limit)
	if perr != nil {
		requestsTotal.WithLabelValues("query", "rejected").Inc()
		return nil, perr
	}

	outcome, err := s.exec.Run(ctx, conn.DB, conn.Driver, approved, timeout)
	if err != nil {
		var execErr *executor.Error
		if errors.As(err, &execErr) && execErr.Retryable() {
			s.log.Warn(requestID, connID, "Transient connection error, retrying once", map[string]interface{}{
				"error": execErr.Message,
			})
			// A cancelled caller skips both the backoff and the retry.
			backoff := time.NewTimer(500 * time.Millisecond)
			select {
			case <-ctx.Done():
				backoff.Stop()
			case <-backoff.C:
				outcome, err = s.exec.Run(ctx, conn.DB, conn.Driver, approved, timeout)
			}
		}
	}
	if err != nil {
		var execErr *executor.Error
		if !errors.As(err, &execErr) {
			execErr = &executor.Error{Reason: executor.ReasonExecutionError, Message: err.Error()}
		}
		s.log.Error(requestID, connID, "Execution failed", map[string]interface{}{
			"reason": string(execErr.Reason),
		})
		requestsTotal.WithLabelValues("query", "error").Inc()
		return nil, pipelineErr(StageExecutor, string(execErr.Reason), execErr.Message)
	}

	queryDuration.WithLabelValues(connID).Observe(time.Since(start).Seconds())

	// A result past the inline cap is never partially returned; it
	// becomes an overflow handle covering every row.
	if len(outcome.Rows) > s.cfg.Policy.InlineRowCap {
		ref, err := s.handles.Create(ctx, requestID, outcome.Columns, outcome.Rows)
		if err != nil {
			requestsTotal.WithLabelValues("query", "error").Inc()
			return nil, pipelineErr(StageHandles, "internal", err.Error())
		}
		activeHandles.Inc()
		requestsTotal.WithLabelValues("query", "overflow").Inc()
		s.log.InfoWithDuration(requestID, connID, "Query completed with overflow handle",
			float64(time.Since(start).Milliseconds()), map[string]interface{}{
				"rows":      ref.RowCount,
				"handle_id": ref.ID,
			})
		return &QueryResult{Overflow: ref}, nil
	}

	requestsTotal.WithLabelValues("query", "accepted").Inc()
	s.log.InfoWithDuration(requestID, connID, "Query completed",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"rows":      len(outcome.Rows),
			"truncated": outcome.Truncated,
		})
	return &QueryResult{Inline: &InlineResult{
		Columns:   outcome.Columns,
		Rows:      outcome.Rows,
		Truncated: outcome.Truncated,
	}}, nil
}

// FetchHandle returns one page of an overflow result.
func (s *Service) FetchHandle(ctx context.Context, requestID, id, pageToken string) (*handle.Page, *PipelineError) {
	page, err := s.handles.Fetch(ctx, id, pageToken)
	if err != nil {
		return nil, handleErr(err)
	}
	return page, nil
}

// ReleaseHandle deletes an overflow result before its TTL.
func (s *Service) ReleaseHandle(ctx context.Context, requestID, id string) *PipelineError {
	if err := s.handles.Release(ctx, id); err != nil {
		return handleErr(err)
	}
	s.log.Info(requestID, "", "Handle released early", map[string]interface{}{"handle_id": id})
	return nil
}
