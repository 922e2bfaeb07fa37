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

/*
Package config builds the immutable QueryGate service configuration.

Configuration is assembled exactly once at startup: built-in defaults,
overlaid by an optional YAML file, overlaid by environment variables,
then validated. Components receive the resulting Config (or a sub-struct)
explicitly; there are no configuration globals and no runtime reloads.
Changing policy means restarting the service.

Every policy field is a hard server-side bound. Caller-supplied request
parameters can lower effective limits and timeouts but never raise them
past the configured values.

Connection credentials are resolved through the SecretsManager interface.
Production deployments use AWS Secrets Manager; tests and development use
the in-process LocalSecretsManager. DSNs carry passwords and are never
logged; use Config.Redacted for startup logging.
*/
package config
