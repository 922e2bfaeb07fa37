package handle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"querygate/platform/shared/logger"
	"querygate/platform/store"
)

var (
	// ErrNotFound: the id was never issued, was released, or was swept
	// long enough ago that its tombstone is gone.
	ErrNotFound = errors.New("handle not found")
	// ErrExpired: the handle's TTL has elapsed.
	ErrExpired = errors.New("handle expired")
	// ErrBadPageToken: the continuation token is not one this manager
	// issued for the handle.
	ErrBadPageToken = errors.New("invalid page token")
)

// Ref is the caller-visible view of a handle. Callers hold only this;
// the artifact and cursor stay inside the manager.
type Ref struct {
	ID        string    `json:"id"`
	Columns   []string  `json:"columns"`
	RowCount  int       `json:"row_count"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Page is one bounded slice of a handle's rows. NextPageToken is empty
// on the final page.
type Page struct {
	Columns       []string        `json:"columns"`
	Rows          [][]interface{} `json:"rows"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	TotalRows     int             `json:"total_rows"`
}

// entry is the manager's private per-handle state.
type entry struct {
	key       string
	columns   []string
	rowCount  int
	createdAt time.Time
	expiresAt time.Time

	leases         int  // active fetches holding the artifact
	pendingDelete  bool // delete once leases drain
	pendingExpired bool // the deferred delete is an expiry, not a release
	tombstone      bool // artifact gone, kept to report Expired
}

// Manager owns overflow artifacts and their lifecycle: create, paged
// fetch, early release, and time-driven expiry. The index is mutated
// under one mutex; artifact reads happen outside it under a lease so a
// sweep never deletes an artifact mid-fetch.
type Manager struct {
	store    store.Store
	ttl      time.Duration
	pageSize int
	log      *logger.Logger

	mu      sync.Mutex
	handles map[string]*entry

	now      func() time.Time // test override
	onDelete func()           // fires once per handle removed or tombstoned
}

// NewManager creates a Manager storing artifacts in s.
func NewManager(s store.Store, ttl time.Duration, pageSize int) *Manager {
	return &Manager{
		store:    s,
		ttl:      ttl,
		pageSize: pageSize,
		log:      logger.New("handle-manager"),
		handles:  make(map[string]*entry),
		now:      time.Now,
	}
}

// Create persists rows as a new artifact and returns a fresh handle.
// The id is a random UUID, published only after the artifact is fully
// written. Ids are never reused across results.
func (m *Manager) Create(ctx context.Context, requestID string, columns []string, rows [][]interface{}) (*Ref, error) {
	data, err := encodeArtifact(columns, rows)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := id + ".ndjson"

	if err := m.store.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("persisting overflow artifact: %w", err)
	}

	now := m.now()
	e := &entry{
		key:       key,
		columns:   columns,
		rowCount:  len(rows),
		createdAt: now,
		expiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.handles[id] = e
	m.mu.Unlock()

	m.log.Info(requestID, "", "Overflow handle created", map[string]interface{}{
		"handle_id": id,
		"rows":      len(rows),
		"expires":   e.expiresAt.Format(time.RFC3339),
	})

	return &Ref{
		ID:        id,
		Columns:   columns,
		RowCount:  len(rows),
		ExpiresAt: e.expiresAt,
	}, nil
}

// Fetch returns the page starting at pageToken (empty for the first
// page). The fetch holds a lease for its duration, so a concurrent
// sweep or release defers artifact deletion until this call returns.
func (m *Manager) Fetch(ctx context.Context, id, pageToken string) (*Page, error) {
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, ErrBadPageToken
		}
		offset = n
	}

	m.mu.Lock()
	e, ok := m.handles[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if e.tombstone || m.now().After(e.expiresAt) {
		m.mu.Unlock()
		return nil, ErrExpired
	}
	if e.pendingDelete {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	e.leases++
	m.mu.Unlock()

	defer m.returnLease(ctx, id, e)

	if offset > e.rowCount {
		return nil, ErrBadPageToken
	}

	data, err := m.store.Get(ctx, e.key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading overflow artifact: %w", err)
	}

	header, rows, err := decodeArtifact(data, offset, m.pageSize)
	if err != nil {
		return nil, err
	}

	next := ""
	if offset+len(rows) < header.Rows {
		next = strconv.Itoa(offset + len(rows))
	}

	return &Page{
		Columns:       header.Columns,
		Rows:          rows,
		NextPageToken: next,
		TotalRows:     header.Rows,
	}, nil
}

// returnLease drops a fetch lease and performs a delete that was
// deferred while the lease was held.
func (m *Manager) returnLease(ctx context.Context, id string, e *entry) {
	m.mu.Lock()
	e.leases--
	doDelete := e.pendingDelete && e.leases == 0
	expired := e.pendingExpired
	m.mu.Unlock()

	if doDelete {
		m.deleteArtifact(ctx, id, e, expired)
	}
}

// Release deletes the handle early. A fetch in flight keeps the
// artifact alive until it completes; the id is invalid either way.
func (m *Manager) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.handles[id]
	if !ok || e.tombstone || e.pendingDelete {
		m.mu.Unlock()
		if ok && e.tombstone {
			return ErrExpired
		}
		return ErrNotFound
	}
	if e.leases > 0 {
		e.pendingDelete = true
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.deleteArtifact(ctx, id, e, false)
	return nil
}

// Sweep removes expired handles. Handles mid-fetch are skipped; their
// delete happens when the lease is returned. Tombstones from the
// previous sweep are purged, so an expired id reports Expired for at
// least one sweep interval before decaying to NotFound.
func (m *Manager) Sweep(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	type victim struct {
		id string
		e  *entry
	}
	var expired []victim
	for id, e := range m.handles {
		if e.tombstone {
			delete(m.handles, id)
			continue
		}
		if !now.After(e.expiresAt) {
			continue
		}
		if e.leases > 0 {
			e.pendingDelete = true
			e.pendingExpired = true
			continue
		}
		expired = append(expired, victim{id, e})
	}
	m.mu.Unlock()

	for _, v := range expired {
		m.deleteArtifact(ctx, v.id, v.e, true)
	}
}

// OnDelete registers a hook fired every time a handle leaves the live
// set, whatever the path: early release, sweep, or a delete deferred
// behind a fetch lease. The gateway uses it to keep its gauge honest.
func (m *Manager) OnDelete(fn func()) { m.onDelete = fn }

// deleteArtifact removes the backing object. Expired handles leave a
// tombstone so a late fetch still reports Expired; released handles are
// dropped outright.
func (m *Manager) deleteArtifact(ctx context.Context, id string, e *entry, expired bool) {
	if err := m.store.Delete(ctx, e.key); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.log.Error("", "", "Failed to delete overflow artifact", map[string]interface{}{
			"handle_id": id,
			"error":     err.Error(),
		})
	}

	m.mu.Lock()
	if expired {
		e.tombstone = true
		e.pendingDelete = false
	} else {
		delete(m.handles, id)
	}
	m.mu.Unlock()

	if m.onDelete != nil {
		m.onDelete()
	}
}

// RunSweeper sweeps every interval until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Count reports the number of live (non-tombstone) handles.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.handles {
		if !e.tombstone {
			n++
		}
	}
	return n
}
