package planguard

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"querygate/platform/gateway/sqlcheck"
)

func validStatement(t *testing.T, sql string) sqlcheck.Statement {
	t.Helper()
	verdict := sqlcheck.New(1000, false).Validate(sqlcheck.DialectPostgres, sql, 0)
	if !verdict.Accepted {
		t.Fatalf("Test statement rejected by validator: %s", verdict.Message)
	}
	return verdict.Statement
}

const pgPlanJSON = `[{"Plan": {"Node Type": "Seq Scan", "Total Cost": 155.5, "Plan Rows": 2550}}]`

const mysqlPlanJSON = `{"query_block": {"select_id": 1, "cost_info": {"query_cost": "287.25"}, "table": {"table_name": "users", "rows_examined_per_scan": 2841}}}`

func TestCheckPostgresAccepted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	stmt := validStatement(t, "SELECT id FROM users")

	mock.ExpectQuery("EXPLAIN \\(FORMAT JSON\\) SELECT id FROM users LIMIT 1000").
		WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow(pgPlanJSON))

	result := New(0).Check(context.Background(), db, "postgres", stmt)
	if !result.Accepted {
		t.Fatalf("Expected accepted, got %s: %s", result.Reason, result.Message)
	}
	est := result.Approved.Estimate()
	if est.Cost != 155.5 {
		t.Errorf("Expected cost 155.5, got %v", est.Cost)
	}
	if est.Rows != 2550 {
		t.Errorf("Expected rows 2550, got %v", est.Rows)
	}
	if result.Approved.Statement().SQL() != stmt.SQL() {
		t.Error("Approved statement must carry the validated SQL unchanged")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestCheckMySQLAccepted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	stmt := validStatement(t, "SELECT id FROM users")

	mock.ExpectQuery("EXPLAIN FORMAT=JSON SELECT id FROM users LIMIT 1000").
		WillReturnRows(sqlmock.NewRows([]string{"EXPLAIN"}).AddRow(mysqlPlanJSON))

	result := New(0).Check(context.Background(), db, "mysql", stmt)
	if !result.Accepted {
		t.Fatalf("Expected accepted, got %s: %s", result.Reason, result.Message)
	}
	if result.Approved.Estimate().Cost != 287.25 {
		t.Errorf("Expected cost 287.25, got %v", result.Approved.Estimate().Cost)
	}
}

func TestCheckCostCeiling(t *testing.T) {
	tests := []struct {
		name     string
		ceiling  float64
		wantPass bool
	}{
		{"under ceiling", 200, true},
		{"over ceiling", 100, false},
		{"ceiling disabled", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create sqlmock: %v", err)
			}
			defer db.Close()

			mock.ExpectQuery("EXPLAIN").
				WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow(pgPlanJSON))

			stmt := validStatement(t, "SELECT id FROM users")
			result := New(tt.ceiling).Check(context.Background(), db, "postgres", stmt)

			if result.Accepted != tt.wantPass {
				t.Errorf("Expected accepted=%v, got %v (%s)", tt.wantPass, result.Accepted, result.Message)
			}
			if !tt.wantPass && result.Reason != ReasonCostExceeded {
				t.Errorf("Expected cost_exceeded, got %s", result.Reason)
			}
		})
	}
}

func TestCheckSyntaxError(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		err    error
	}{
		{"postgres syntax error", "postgres", &pq.Error{Code: "42601", Message: "syntax error at or near"}},
		{"mysql syntax error", "mysql", &mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create sqlmock: %v", err)
			}
			defer db.Close()

			mock.ExpectQuery("EXPLAIN").WillReturnError(tt.err)

			stmt := validStatement(t, "SELECT id FROM users")
			result := New(0).Check(context.Background(), db, tt.driver, stmt)

			if result.Accepted {
				t.Fatal("Expected rejection")
			}
			if result.Reason != ReasonSyntaxError {
				t.Errorf("Expected syntax_error, got %s", result.Reason)
			}
		})
	}
}

func TestCheckPlanningError(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(sqlmock.Sqlmock)
		wantMsg string
	}{
		{
			name: "backend error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("EXPLAIN").WillReturnError(errors.New("relation does not exist"))
			},
		},
		{
			name: "malformed plan json",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("EXPLAIN").
					WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow("not json"))
			},
		},
		{
			name: "empty plan document",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("EXPLAIN").
					WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow("[]"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("Failed to create sqlmock: %v", err)
			}
			defer db.Close()

			tt.setup(mock)

			stmt := validStatement(t, "SELECT id FROM users")
			result := New(0).Check(context.Background(), db, "postgres", stmt)

			if result.Accepted {
				t.Fatal("Expected rejection")
			}
			if result.Reason != ReasonPlanningError {
				t.Errorf("Expected planning_error, got %s", result.Reason)
			}
		})
	}
}

func TestCheckUnsupportedDriver(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	stmt := validStatement(t, "SELECT id FROM users")
	result := New(0).Check(context.Background(), db, "oracle", stmt)

	if result.Accepted || result.Reason != ReasonPlanningError {
		t.Errorf("Expected planning_error for unsupported driver, got %+v", result)
	}
}

func TestParseMySQLPlanErrors(t *testing.T) {
	if _, err := parseMySQLPlan(`{"query_block": {}}`); err == nil {
		t.Error("Expected error for missing query_cost")
	}
	if _, err := parseMySQLPlan(`{"query_block": {"cost_info": {"query_cost": "abc"}}}`); err == nil {
		t.Error("Expected error for non-numeric query_cost")
	}
}
