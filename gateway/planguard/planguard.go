package planguard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"querygate/platform/gateway/sqlcheck"
)

// Reason is a machine-readable rejection code from the plan pass.
type Reason string

const (
	ReasonSyntaxError   Reason = "syntax_error"
	ReasonPlanningError Reason = "planning_error"
	ReasonCostExceeded  Reason = "cost_exceeded"
)

// Estimate is the backend planner's cost and row prediction. Cost is in
// the estimator's own units (Postgres planner units, MySQL query_cost);
// the ceiling is compared in those units without conversion.
type Estimate struct {
	Cost float64 `json:"cost"`
	Rows float64 `json:"rows"`
}

// Approved pairs a validated statement with its accepted plan estimate.
// Only Check constructs it, so the executor cannot receive a statement
// that skipped the plan pass.
type Approved struct {
	stmt     sqlcheck.Statement
	estimate Estimate
}

// Statement returns the validated statement.
func (a Approved) Statement() sqlcheck.Statement { return a.stmt }

// Estimate returns the accepted plan estimate.
func (a Approved) Estimate() Estimate { return a.estimate }

// Result is the plan-guard outcome. Approved is meaningful only when
// Accepted is true; Reason and Message only when it is false.
type Result struct {
	Accepted bool
	Approved Approved
	Reason   Reason
	Message  string
}

// Guard runs the cost-estimation pass. A zero ceiling disables the cost
// check; syntax and planning failures are still caught.
type Guard struct {
	costCeiling float64
}

// New creates a Guard with the given cost ceiling (0 disables it).
func New(costCeiling float64) *Guard {
	return &Guard{costCeiling: costCeiling}
}

func rejected(reason Reason, format string, args ...interface{}) Result {
	return Result{
		Accepted: false,
		Reason:   reason,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Check runs EXPLAIN for stmt on db and applies the cost ceiling. The
// real statement is never executed. Database errors are not retried;
// they surface as syntax_error (malformed SQL the validator's textual
// rules could not see) or planning_error (everything else).
func (g *Guard) Check(ctx context.Context, db *sql.DB, driver string, stmt sqlcheck.Statement) Result {
	var explainSQL string
	switch driver {
	case "postgres":
		explainSQL = "EXPLAIN (FORMAT JSON) " + stmt.SQL()
	case "mysql":
		explainSQL = "EXPLAIN FORMAT=JSON " + stmt.SQL()
	default:
		return rejected(ReasonPlanningError, "unsupported driver %q", driver)
	}

	var payload string
	if err := db.QueryRowContext(ctx, explainSQL).Scan(&payload); err != nil {
		if isSyntaxError(err) {
			return rejected(ReasonSyntaxError, "statement failed to parse: %v", err)
		}
		return rejected(ReasonPlanningError, "plan estimation failed: %v", err)
	}

	var estimate Estimate
	var err error
	switch driver {
	case "postgres":
		estimate, err = parsePostgresPlan(payload)
	case "mysql":
		estimate, err = parseMySQLPlan(payload)
	}
	if err != nil {
		return rejected(ReasonPlanningError, "cannot parse plan output: %v", err)
	}

	if g.costCeiling > 0 && estimate.Cost > g.costCeiling {
		return rejected(ReasonCostExceeded,
			"estimated cost %.1f exceeds ceiling %.1f", estimate.Cost, g.costCeiling)
	}

	return Result{
		Accepted: true,
		Approved: Approved{stmt: stmt, estimate: estimate},
	}
}

// isSyntaxError distinguishes a parse failure from other backend errors.
// Postgres reports SQLSTATE 42601; MySQL reports error 1064.
func isSyntaxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42601"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1064
	}
	return false
}

// parsePostgresPlan reads EXPLAIN (FORMAT JSON) output:
// [{"Plan": {"Total Cost": f, "Plan Rows": f, ...}}]
func parsePostgresPlan(payload string) (Estimate, error) {
	var doc []struct {
		Plan struct {
			TotalCost float64 `json:"Total Cost"`
			PlanRows  float64 `json:"Plan Rows"`
		} `json:"Plan"`
	}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return Estimate{}, err
	}
	if len(doc) == 0 {
		return Estimate{}, fmt.Errorf("empty plan document")
	}
	return Estimate{
		Cost: doc[0].Plan.TotalCost,
		Rows: doc[0].Plan.PlanRows,
	}, nil
}

// parseMySQLPlan reads EXPLAIN FORMAT=JSON output:
// {"query_block": {"cost_info": {"query_cost": "123.45"}, ...}}
// query_cost arrives as a string.
func parseMySQLPlan(payload string) (Estimate, error) {
	var doc struct {
		QueryBlock struct {
			CostInfo struct {
				QueryCost string `json:"query_cost"`
			} `json:"cost_info"`
			Table struct {
				RowsExaminedPerScan float64 `json:"rows_examined_per_scan"`
			} `json:"table"`
		} `json:"query_block"`
	}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return Estimate{}, err
	}
	if doc.QueryBlock.CostInfo.QueryCost == "" {
		return Estimate{}, fmt.Errorf("plan document missing query_cost")
	}
	cost, err := strconv.ParseFloat(doc.QueryBlock.CostInfo.QueryCost, 64)
	if err != nil {
		return Estimate{}, fmt.Errorf("invalid query_cost %q: %w", doc.QueryBlock.CostInfo.QueryCost, err)
	}
	return Estimate{
		Cost: cost,
		Rows: doc.QueryBlock.Table.RowsExaminedPerScan,
	}, nil
}
