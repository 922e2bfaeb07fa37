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
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter bounds per-client request rates. Allow reports whether
// the client may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, clientID string) bool
}

// unlimitedLimiter is used when no limit is configured.
type unlimitedLimiter struct{}

func (unlimitedLimiter) Allow(context.Context, string) bool { return true }

// redisLimiter is a distributed sliding-window limiter. Redis failures
// fail open: a broken limiter must not take the gateway down with it.
type redisLimiter struct {
	client         *redis.Client
	limitPerMinute int
}

// newRedisLimiter connects to redisURL and verifies the connection.
func newRedisLimiter(redisURL string, limitPerMinute int) (*redisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisLimiter{client: client, limitPerMinute: limitPerMinute}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, clientID string) bool {
	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s", clientID)

	pipe := r.client.Pipeline()

	// Drop timestamps outside the sliding one-minute window
	minScore := now.Add(-time.Minute).Unix()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", minScore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("Warning: Redis rate limit check failed for %s: %v (failing open)", clientID, err)
		return true
	}

	count := cmds[1].(*redis.IntCmd).Val()
	return count < int64(r.limitPerMinute)
}

func (r *redisLimiter) Close() error {
	return r.client.Close()
}

// memoryLimiter is the single-instance fallback when Redis is not
// configured.
type memoryLimiter struct {
	limitPerMinute int

	mu      sync.Mutex
	history map[string][]time.Time
}

func newMemoryLimiter(limitPerMinute int) *memoryLimiter {
	return &memoryLimiter{
		limitPerMinute: limitPerMinute,
		history:        make(map[string][]time.Time),
	}
}

func (m *memoryLimiter) Allow(ctx context.Context, clientID string) bool {
	now := time.Now()
	cutoff := now.Add(-time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.history[clientID][:0]
	for _, ts := range m.history[clientID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= m.limitPerMinute {
		m.history[clientID] = recent
		return false
	}

	m.history[clientID] = append(recent, now)
	return true
}

// newRateLimiter picks the backend: Redis when configured, in-memory
// otherwise, unlimited when the limit is zero. A Redis connection
// failure falls back to in-memory with a warning rather than refusing
// to start.
func newRateLimiter(redisURL string, limitPerMinute int) RateLimiter {
	if limitPerMinute <= 0 {
		return unlimitedLimiter{}
	}
	if redisURL != "" {
		limiter, err := newRedisLimiter(redisURL, limitPerMinute)
		if err != nil {
			log.Printf("⚠️ Redis rate limiter unavailable (%v), using in-memory limiter", err)
			return newMemoryLimiter(limitPerMinute)
		}
		log.Printf("✅ Redis rate limiter connected")
		return limiter
	}
	return newMemoryLimiter(limitPerMinute)
}
