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
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// authGuard enforces the shared-secret caller check and, when a JWT
// secret is configured, validates optional end-user tokens.
type authGuard struct {
	apiKey    string
	jwtSecret string
}

// check validates the request. It returns the client identity used for
// rate limiting, or an error with the HTTP status to respond with.
func (a *authGuard) check(r *http.Request) (string, int, error) {
	if a.apiKey != "" {
		got := r.Header.Get("X-Api-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.apiKey)) != 1 {
			return "", http.StatusUnauthorized, fmt.Errorf("missing or invalid API key")
		}
	}

	// An Authorization header, when present, must be a valid token;
	// a bad token is rejected rather than ignored.
	if auth := r.Header.Get("Authorization"); auth != "" && a.jwtSecret != "" {
		tokenString := strings.TrimPrefix(auth, "Bearer ")
		sub, err := a.validateUserToken(tokenString)
		if err != nil {
			return "", http.StatusUnauthorized, fmt.Errorf("invalid user token")
		}
		return sub, 0, nil
	}

	return clientAddr(r), 0, nil
}

// validateUserToken verifies an HS256 user token and returns its
// subject claim.
func (a *authGuard) validateUserToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// clientAddr is the rate-limit identity for unauthenticated-user calls.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
