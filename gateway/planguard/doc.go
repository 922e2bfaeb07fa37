// Package planguard is the second pipeline stage: a dry-run cost pass
// over an already-validated statement. It asks the backend planner for
// an estimate via EXPLAIN, never executing the real query, so malformed
// or degenerate SQL fails here cheaply instead of consuming a
// transaction and a timeout budget. Accepted statements come back as an
// Approved value, the only input type the executor accepts.
package planguard
