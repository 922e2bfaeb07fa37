package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Column is one column of an introspected table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// Table is one introspected table with its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Snapshot is the cached table/column list for one connection.
type Snapshot struct {
	Connection string    `json:"connection"`
	Tables     []Table   `json:"tables"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Catalog caches one Snapshot per connection with a TTL. Reads are
// lock-cheap; a refresh builds a complete new Snapshot off-lock and then
// swaps the pointer, so readers never observe a partially built one.
type Catalog struct {
	ttl time.Duration

	mu    sync.RWMutex
	cache map[string]*Snapshot
}

// NewCatalog creates a Catalog whose snapshots expire after ttl.
func NewCatalog(ttl time.Duration) *Catalog {
	return &Catalog{
		ttl:   ttl,
		cache: make(map[string]*Snapshot),
	}
}

// Snapshot returns the cached snapshot for connID, refreshing from db
// when missing, expired, or force is set. Concurrent refreshes may race;
// each produces a complete snapshot and the last swap wins.
func (c *Catalog) Snapshot(ctx context.Context, db *sql.DB, driverName, connID string, force bool) (*Snapshot, error) {
	if !force {
		c.mu.RLock()
		snap, ok := c.cache[connID]
		c.mu.RUnlock()
		if ok && time.Since(snap.FetchedAt) < c.ttl {
			return snap, nil
		}
	}

	snap, err := introspect(ctx, db, driverName, connID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[connID] = snap
	c.mu.Unlock()

	return snap, nil
}

// Invalidate drops the cached snapshot for connID.
func (c *Catalog) Invalidate(connID string) {
	c.mu.Lock()
	delete(c.cache, connID)
	c.mu.Unlock()
}

const postgresColumnsQuery = `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

const mysqlColumnsQuery = `SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

// introspect reads information_schema.columns and folds the rows into
// per-table column lists. Pure read, no side effects.
func introspect(ctx context.Context, db *sql.DB, driverName, connID string) (*Snapshot, error) {
	var query string
	switch driverName {
	case "postgres":
		query = postgresColumnsQuery
	case "mysql":
		query = mysqlColumnsQuery
	default:
		return nil, fmt.Errorf("unsupported driver %q", driverName)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspecting schema for %s: %w", connID, err)
	}
	defer rows.Close()

	snap := &Snapshot{
		Connection: connID,
		FetchedAt:  time.Now().UTC(),
	}

	var current *Table
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		if current == nil || current.Name != tableName {
			snap.Tables = append(snap.Tables, Table{Name: tableName})
			current = &snap.Tables[len(snap.Tables)-1]
		}
		current.Columns = append(current.Columns, Column{
			Name:     columnName,
			DataType: dataType,
			Nullable: isNullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema rows: %w", err)
	}

	return snap, nil
}
