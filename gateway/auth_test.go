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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func TestAuthGuardCheck(t *testing.T) {
	guard := &authGuard{apiKey: "sekret", jwtSecret: "jwt-secret"}

	tests := []struct {
		name       string
		apiKey     string
		authHeader string
		wantErr    bool
		wantStatus int
		wantClient string
	}{
		{
			name:       "missing api key",
			wantErr:    true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong api key",
			apiKey:     "nope",
			wantErr:    true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "api key only, identity from address",
			apiKey:     "sekret",
			wantClient: "192.0.2.1",
		},
		{
			name:       "valid user token",
			apiKey:     "sekret",
			authHeader: "Bearer " + signToken(t, "jwt-secret", "user-42"),
			wantClient: "user-42",
		},
		{
			name:       "token signed with wrong secret",
			apiKey:     "sekret",
			authHeader: "Bearer " + signToken(t, "other-secret", "user-42"),
			wantErr:    true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			apiKey:     "sekret",
			authHeader: "Bearer not.a.token",
			wantErr:    true,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/query", nil)
			if tt.apiKey != "" {
				req.Header.Set("X-Api-Key", tt.apiKey)
			}
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			client, status, err := guard.check(req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				if status != tt.wantStatus {
					t.Errorf("Expected status %d, got %d", tt.wantStatus, status)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client != tt.wantClient {
				t.Errorf("Expected client %q, got %q", tt.wantClient, client)
			}
		})
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	guard := &authGuard{jwtSecret: "jwt-secret"}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("jwt-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/v1/query", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	if _, _, err := guard.check(req); err == nil {
		t.Error("Expired token must be rejected")
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"plain remote addr", "10.0.0.5:43210", "", "10.0.0.5"},
		{"forwarded single", "10.0.0.5:43210", "203.0.113.9", "203.0.113.9"},
		{"forwarded chain", "10.0.0.5:43210", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientAddr(req); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
