package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"querygate/platform/gateway/planguard"
)

// Reason is a machine-readable execution failure code.
type Reason string

const (
	// ReasonTimeout: the statement exceeded its deadline. Never retried
	// automatically; the caller may resubmit with a larger budget.
	ReasonTimeout Reason = "timeout"
	// ReasonConnectionError: transient transport failure. The gateway
	// may retry once with backoff.
	ReasonConnectionError Reason = "connection_error"
	// ReasonExecutionError: the backend rejected the statement after
	// planning succeeded. Surfaced with the backend message, scrubbed
	// of credentials.
	ReasonExecutionError Reason = "execution_error"
)

// Error wraps an execution failure with its classification.
type Error struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the gateway may retry the run once.
func (e *Error) Retryable() bool { return e.Reason == ReasonConnectionError }

// Outcome holds the rows produced by one run. Truncated is set when the
// result filled the row cap, meaning more rows may exist.
type Outcome struct {
	Columns   []string
	Rows      [][]interface{}
	Truncated bool
	Duration  time.Duration
}

// Executor runs approved statements inside read-only transactions.
type Executor struct {
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

// New creates an Executor. defaultTimeout applies when the caller gives
// none; maxTimeout clamps whatever the caller asks for.
func New(defaultTimeout, maxTimeout time.Duration) *Executor {
	return &Executor{
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
	}
}

// ClampTimeout resolves the effective statement deadline from a caller
// request. Zero or negative means the default; nothing exceeds the max.
func (e *Executor) ClampTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return e.defaultTimeout
	}
	if requested > e.maxTimeout {
		return e.maxTimeout
	}
	return requested
}

// Run executes the approved statement on db. The transaction is opened
// read-only at the session level, carries a statement timeout equal to
// the clamped value, and is rolled back unconditionally. Exactly the
// validated SQL text is sent; nothing is concatenated after validation.
// Cancelling ctx cancels the in-flight database call, not just the wait.
func (e *Executor) Run(ctx context.Context, db *sql.DB, driverName string, approved planguard.Approved, requestedTimeout time.Duration) (*Outcome, error) {
	timeout := e.ClampTimeout(requestedTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, classify(err, "opening read-only transaction")
	}
	// Rollback is the uniform cleanup path; the session is read-only so
	// there is never anything to commit.
	defer tx.Rollback() //nolint:errcheck

	ms := int(timeout / time.Millisecond)
	switch driverName {
	case "postgres":
		// SET LOCAL scopes the timeout to this transaction.
		if _, err := tx.ExecContext(ctx, "SET LOCAL statement_timeout = "+strconv.Itoa(ms)); err != nil {
			return nil, classify(err, "setting statement timeout")
		}
	case "mysql":
		// Session-scoped; the context deadline below is the backstop
		// that also covers the pooled connection after rollback.
		if _, err := tx.ExecContext(ctx, "SET SESSION max_execution_time = "+strconv.Itoa(ms)); err != nil {
			return nil, classify(err, "setting statement timeout")
		}
	default:
		return nil, &Error{
			Reason:  ReasonExecutionError,
			Message: fmt.Sprintf("unsupported driver %q", driverName),
		}
	}

	stmt := approved.Statement()
	rows, err := tx.QueryContext(ctx, stmt.SQL())
	if err != nil {
		return nil, classify(err, "executing statement")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(err, "reading column metadata")
	}

	cap := stmt.Limit()
	results := make([][]interface{}, 0, min(cap, 64))
	for rows.Next() {
		if len(results) >= cap {
			break
		}
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err, "scanning row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		results = append(results, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterating rows")
	}

	return &Outcome{
		Columns:   columns,
		Rows:      results,
		Truncated: len(results) >= cap,
		Duration:  time.Since(start),
	}, nil
}

// classify maps a database error to the failure taxonomy. Timeouts are
// detected from the context deadline and from the backend's own
// cancellation codes (Postgres 57014, MySQL 3024).
func classify(err error, during string) *Error {
	reason := ReasonExecutionError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = ReasonTimeout
	case errors.Is(err, driver.ErrBadConn):
		reason = ReasonConnectionError
	default:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "57014" {
			reason = ReasonTimeout
			break
		}
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && (myErr.Number == 3024 || myErr.Number == 1317) {
			reason = ReasonTimeout
			break
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			reason = ReasonConnectionError
		}
	}

	return &Error{
		Reason:  reason,
		Message: fmt.Sprintf("%s: %s", during, scrub(err.Error())),
		Err:     err,
	}
}

var credentialPattern = regexp.MustCompile(`(?i)(password|passwd|pwd)=\S+`)

// scrub removes credential-shaped fragments from backend messages before
// they reach logs or callers.
func scrub(msg string) string {
	return credentialPattern.ReplaceAllString(msg, "$1=***")
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
