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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_requests_total",
		Help: "Requests by operation and outcome (accepted, rejected, error, overflow)",
	}, []string{"operation", "outcome"})

	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_rejections_total",
		Help: "Pipeline rejections by stage and reason",
	}, []string{"stage", "reason"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querygate_query_duration_seconds",
		Help:    "End-to-end query latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"connection"})

	activeHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "querygate_active_handles",
		Help: "Live overflow handles",
	})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "querygate_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)
