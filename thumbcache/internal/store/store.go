// Package store is the bounded thumbnail index: an in-memory map plus a
// running byte total, mirrored write-through to SQLite and evicted
// least-recently-updated first when either the entry or the byte ceiling
// is exceeded.
//
// The in-memory index is the source of truth. Every mutation completes its
// in-memory update before touching the durable mirror; a failed mirror
// write is logged and swallowed, so the cache stays correct for the current
// process lifetime and merely loses that entry across a restart.
package store

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strconv"
	"sync"
)

// Entry is the cached thumbnail record for one tab.
type Entry struct {
	TabID int
	// ImageData is the encoded thumbnail, nil when absent.
	ImageData []byte
	// Blocked marks tabs whose captures are permanently disallowed.
	// Blocked entries never carry image data.
	Blocked bool
	// LastUpdated is the unix-millisecond timestamp of the last successful
	// write. 0 = unknown (sorts first for eviction).
	LastUpdated int64
	// ByteSize is always exactly len(ImageData).
	ByteSize int
}

// Options tunes the store bounds.
type Options struct {
	// MaxEntries is the entry-count ceiling. Default: 120.
	MaxEntries int
	// MaxTotalBytes is the byte ceiling over all image payloads. Default: 8 MiB.
	MaxTotalBytes int64
	// KeyPrefix prefixes durable keys. Default: "thumb:".
	KeyPrefix string
	Logger    *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxEntries <= 0 {
		o.MaxEntries = 120
	}
	if o.MaxTotalBytes <= 0 {
		o.MaxTotalBytes = 8 << 20
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = "thumb:"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store is the bounded thumbnail index. Safe for concurrent use.
type Store struct {
	opts Options
	db   *sql.DB

	mu         sync.RWMutex
	entries    map[int]*Entry
	totalBytes int64
}

// New creates a Store over an opened database. The database must have the
// Schema applied. Call Hydrate before serving reads.
func New(db *sql.DB, opts Options) *Store {
	opts.defaults()
	return &Store{
		opts:    opts,
		db:      db,
		entries: make(map[int]*Entry),
	}
}

// Key returns the durable storage key for a tab.
func (s *Store) Key(tabID int) string {
	return s.opts.KeyPrefix + strconv.Itoa(tabID)
}

// Put writes or replaces the entry for tabID, adjusts the running byte
// total, mirrors the entry to durable storage, then evicts until both
// bounds hold again. Blocked entries never store image data.
//
// A durable-write failure is logged and swallowed: the in-memory index is
// already updated and stays authoritative.
func (s *Store) Put(ctx context.Context, tabID int, image []byte, blocked bool, timestamp int64) {
	if blocked {
		image = nil
	}

	e := &Entry{
		TabID:       tabID,
		ImageData:   image,
		Blocked:     blocked,
		LastUpdated: timestamp,
		ByteSize:    len(image),
	}

	s.mu.Lock()
	if prev, ok := s.entries[tabID]; ok {
		s.totalBytes -= int64(prev.ByteSize)
	}
	s.entries[tabID] = e
	s.totalBytes += int64(e.ByteSize)

	evicted := s.evictLocked()
	survived := s.entries[tabID] == e
	s.mu.Unlock()

	// An oversized payload can be evicted by its own put; never mirror it.
	if survived {
		s.persist(ctx, e)
	}
	for _, id := range evicted {
		s.deleteDurable(ctx, id)
	}
}

// Remove deletes the entry for tabID if present, adjusting the running
// total and the durable mirror. Reports whether an entry was removed.
func (s *Store) Remove(ctx context.Context, tabID int) bool {
	s.mu.Lock()
	e, ok := s.entries[tabID]
	if ok {
		delete(s.entries, tabID)
		s.totalBytes -= int64(e.ByteSize)
	}
	s.mu.Unlock()

	if ok {
		s.deleteDurable(ctx, tabID)
	}
	return ok
}

// Get returns a copy of the entry for tabID. The image slice is shared;
// callers must not mutate it.
func (s *Store) Get(tabID int) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[tabID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// TotalBytes returns the running byte total over all image payloads.
func (s *Store) TotalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalBytes
}

// Stats are point-in-time store counters for the query surface.
type Stats struct {
	Entries       int   `json:"entries"`
	TotalBytes    int64 `json:"total_bytes"`
	MaxEntries    int   `json:"max_entries"`
	MaxTotalBytes int64 `json:"max_total_bytes"`
	Blocked       int   `json:"blocked"`
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Entries:       len(s.entries),
		TotalBytes:    s.totalBytes,
		MaxEntries:    s.opts.MaxEntries,
		MaxTotalBytes: s.opts.MaxTotalBytes,
	}
	for _, e := range s.entries {
		if e.Blocked {
			st.Blocked++
		}
	}
	return st
}

// Hydrate rebuilds the in-memory index from the durable mirror, then runs
// one eviction pass (the ceilings may have shrunk since the rows were
// written, or a crash may have left the mirror over budget).
//
// Malformed rows are skipped individually and do not abort hydration.
func (s *Store) Hydrate(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tab_id, image, blocked, last_updated FROM thumbnails`)
	if err != nil {
		return err
	}
	defer rows.Close()

	entries := make(map[int]*Entry)
	var total int64
	for rows.Next() {
		var (
			tabID   int
			image   []byte
			blocked int
			updated int64
		)
		if err := rows.Scan(&tabID, &image, &blocked, &updated); err != nil {
			s.opts.Logger.Warn("store: skipping malformed thumbnail row", "error", err)
			continue
		}
		if blocked != 0 && len(image) > 0 {
			s.opts.Logger.Warn("store: skipping blocked row with image data", "tab_id", tabID)
			continue
		}
		e := &Entry{
			TabID:       tabID,
			ImageData:   image,
			Blocked:     blocked != 0,
			LastUpdated: updated,
			ByteSize:    len(image),
		}
		entries[tabID] = e
		total += int64(e.ByteSize)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = entries
	s.totalBytes = total
	evicted := s.evictLocked()
	s.mu.Unlock()

	for _, id := range evicted {
		s.deleteDurable(ctx, id)
	}

	s.opts.Logger.Info("store: hydrated",
		"entries", len(entries), "bytes", total, "evicted", len(evicted))
	return nil
}

// PruneExcept removes entries whose tab ID is not in live. Used after
// hydration to drop records for tabs no longer open. Returns the removed
// tab IDs.
func (s *Store) PruneExcept(ctx context.Context, live map[int]bool) []int {
	s.mu.Lock()
	var pruned []int
	for id, e := range s.entries {
		if !live[id] {
			delete(s.entries, id)
			s.totalBytes -= int64(e.ByteSize)
			pruned = append(pruned, id)
		}
	}
	s.mu.Unlock()

	for _, id := range pruned {
		s.deleteDurable(ctx, id)
	}
	return pruned
}

// evictLocked removes entries oldest-first until both ceilings hold.
// Entries with a zero LastUpdated sort first. Ties break on tab ID so the
// order is deterministic. Caller holds s.mu. Returns evicted tab IDs;
// durable cleanup is the caller's job (outside the lock).
func (s *Store) evictLocked() []int {
	if len(s.entries) <= s.opts.MaxEntries && s.totalBytes <= s.opts.MaxTotalBytes {
		return nil
	}

	order := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		order = append(order, e)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].LastUpdated != order[j].LastUpdated {
			return order[i].LastUpdated < order[j].LastUpdated
		}
		return order[i].TabID < order[j].TabID
	})

	var evicted []int
	for _, e := range order {
		if len(s.entries) <= s.opts.MaxEntries && s.totalBytes <= s.opts.MaxTotalBytes {
			break
		}
		delete(s.entries, e.TabID)
		s.totalBytes -= int64(e.ByteSize)
		evicted = append(evicted, e.TabID)
	}

	if len(evicted) > 0 {
		s.opts.Logger.Debug("store: evicted",
			"count", len(evicted), "entries", len(s.entries), "bytes", s.totalBytes)
	}
	return evicted
}

func (s *Store) persist(ctx context.Context, e *Entry) {
	blocked := 0
	if e.Blocked {
		blocked = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thumbnails (key, tab_id, image, blocked, last_updated, byte_size)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(tab_id) DO UPDATE SET
			image = excluded.image,
			blocked = excluded.blocked,
			last_updated = excluded.last_updated,
			byte_size = excluded.byte_size`,
		s.Key(e.TabID), e.TabID, e.ImageData, blocked, e.LastUpdated, e.ByteSize,
	)
	if err != nil {
		s.opts.Logger.Warn("store: durable write failed, entry is memory-only",
			"tab_id", e.TabID, "error", err)
	}
}

func (s *Store) deleteDurable(ctx context.Context, tabID int) {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM thumbnails WHERE tab_id = ?`, tabID); err != nil {
		s.opts.Logger.Warn("store: durable delete failed", "tab_id", tabID, "error", err)
	}
}
