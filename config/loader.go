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

package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load builds the service configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides, then
// validation. The result is treated as immutable by every caller.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BuildDSN returns the driver-specific connection string. An explicit DSN
// wins; otherwise one is assembled from the parts. The result contains the
// password and must never be logged.
func (c *ConnectionConfig) BuildDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch c.Driver {
	case "postgres":
		u := &url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.User, c.Password),
			Host:   c.Host,
			Path:   "/" + c.Database,
		}
		if c.Port != "" {
			u.Host = c.Host + ":" + c.Port
		}
		q := url.Values{}
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "require"
		}
		q.Set("sslmode", sslmode)
		u.RawQuery = q.Encode()
		return u.String(), nil

	case "mysql":
		port := c.Port
		if port == "" {
			port = "3306"
		}
		// parseTime makes DATETIME columns scan as time.Time
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			c.User, c.Password, c.Host, port, c.Database), nil

	default:
		return "", fmt.Errorf("connection %q: unknown driver %q", c.ID, c.Driver)
	}
}
