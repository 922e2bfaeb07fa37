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
	"errors"
	"fmt"
	"net/http"

	"querygate/platform/gateway/executor"
	"querygate/platform/gateway/handle"
)

// Stage names used in error envelopes and logs.
const (
	StageGateway   = "gateway"
	StageValidator = "validator"
	StagePlanGuard = "plan_guard"
	StageExecutor  = "executor"
	StageHandles   = "handle_manager"
)

// PipelineError is a structured failure from any pipeline stage. Every
// rejection carries the stage it came from, a machine-readable reason,
// and a human-readable message; nothing ever degrades to a relaxed
// "best effort" execution.
type PipelineError struct {
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Stage, e.Reason, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.err }

func pipelineErr(stage, reason, message string) *PipelineError {
	return &PipelineError{Stage: stage, Reason: reason, Message: message}
}

// httpStatus maps a pipeline failure to a response code. Policy
// rejections are the caller's problem (4xx); transport and timeout
// failures are gateway-side (5xx).
func httpStatus(e *PipelineError) int {
	switch e.Reason {
	case "unknown_connection":
		return http.StatusNotFound
	case string(executor.ReasonTimeout):
		return http.StatusGatewayTimeout
	case string(executor.ReasonConnectionError):
		return http.StatusBadGateway
	case "handle_not_found":
		return http.StatusNotFound
	case "handle_expired":
		return http.StatusGone
	case "generator_unavailable":
		return http.StatusNotImplemented
	case "internal":
		return http.StatusInternalServerError
	default:
		// validation_rejected, plan_rejected, execution_error, bad input
		return http.StatusUnprocessableEntity
	}
}

// handleErr converts handle-manager sentinel errors to the envelope.
func handleErr(err error) *PipelineError {
	switch {
	case errors.Is(err, handle.ErrNotFound):
		return pipelineErr(StageHandles, "handle_not_found", "handle is unknown or was released")
	case errors.Is(err, handle.ErrExpired):
		return pipelineErr(StageHandles, "handle_expired", "handle TTL has elapsed")
	case errors.Is(err, handle.ErrBadPageToken):
		return pipelineErr(StageHandles, "bad_page_token", "page token is not valid for this handle")
	default:
		return pipelineErr(StageHandles, "internal", err.Error())
	}
}
