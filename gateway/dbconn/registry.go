package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	// Database drivers for the two supported connection kinds.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"querygate/platform/config"
)

// Conn is one opened read-only connection pool. The read-only capability
// is enforced per transaction by the executor; nothing here ever commits.
type Conn struct {
	ID     string
	Driver string
	DB     *sql.DB
}

// Registry holds the connection pools for the service lifetime. It is
// populated once at startup and read-only afterwards.
type Registry struct {
	conns map[string]*Conn
}

// Open builds pools for every configured connection and verifies each
// with a ping. Any failure closes what was opened and returns an error
// that names the connection id, never the DSN.
func Open(ctx context.Context, configs []config.ConnectionConfig) (*Registry, error) {
	r := &Registry{conns: make(map[string]*Conn)}

	for _, cc := range configs {
		dsn, err := cc.BuildDSN()
		if err != nil {
			r.Close()
			return nil, err
		}

		db, err := sql.Open(cc.Driver, dsn)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("connection %q: opening pool: %w", cc.ID, err)
		}

		maxOpen := cc.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 5
		}
		maxIdle := cc.MaxIdleConns
		if maxIdle <= 0 {
			maxIdle = 2
		}
		lifetime := cc.ConnLifetime
		if lifetime <= 0 {
			lifetime = 5 * time.Minute
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(lifetime)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			db.Close()
			r.Close()
			return nil, fmt.Errorf("connection %q: ping failed: %w", cc.ID, err)
		}

		r.conns[cc.ID] = &Conn{ID: cc.ID, Driver: cc.Driver, DB: db}
		log.Printf("✅ Connection %q ready (%s, max_open=%d)", cc.ID, cc.Driver, maxOpen)
	}

	return r, nil
}

// NewStatic builds a registry from already-opened pools. Used by tests
// and by callers that manage pool lifecycle themselves.
func NewStatic(conns ...*Conn) *Registry {
	r := &Registry{conns: make(map[string]*Conn, len(conns))}
	for _, c := range conns {
		r.conns[c.ID] = c
	}
	return r
}

// Get returns the pool for id.
func (r *Registry) Get(id string) (*Conn, error) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("unknown connection %q", id)
	}
	return conn, nil
}

// IDs lists the configured connection ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// HealthCheck pings every pool and reports per-connection status.
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	status := make(map[string]error, len(r.conns))
	for id, conn := range r.conns {
		status[id] = conn.DB.PingContext(ctx)
	}
	return status
}

// Close shuts down every pool. Safe to call on a partially opened
// registry.
func (r *Registry) Close() {
	for id, conn := range r.conns {
		if err := conn.DB.Close(); err != nil {
			log.Printf("⚠️ Closing connection %q: %v", id, err)
		}
	}
	r.conns = make(map[string]*Conn)
}
