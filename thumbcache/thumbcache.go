// Package thumbcache is the bounded thumbnail cache for the tab graph:
// a byte- and entry-limited cache of downscaled screenshots keyed by tab
// identity, fed by a debounced, single-flight capture pipeline, mirrored
// to SQLite across restarts, and evicted least-recently-updated first.
//
// Control flow: tab lifecycle events reach the Gate, which schedules or
// skips a Capturer invocation; the result is written to the store; the
// store evicts if over budget; the Notifier announces the change.
//
// Usage:
//
//	db, _ := dbopen.Open("graphtabs.db", dbopen.WithSchema(thumbcache.Schema))
//	svc := thumbcache.New(db, backend, thumbcache.Config{}, logger)
//	svc.Hydrate(ctx)
//	defer svc.Close()
package thumbcache

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/thesantatitan/graphtabs/graph"
	"github.com/thesantatitan/graphtabs/thumbcache/internal/store"
)

// Service owns the capture gate, capturer, cache store, and notifier.
// Create one per process; inject it wherever thumbnails are consumed.
type Service struct {
	cfg      Config
	store    *store.Store
	gate     *Gate
	capturer *Capturer
	notifier *Notifier
	logger   *slog.Logger
}

// New creates the thumbnail cache service over an opened database (with
// Schema applied) and a host capture backend. Call Hydrate before serving.
func New(db *sql.DB, backend CaptureBackend, cfg Config, logger *slog.Logger) *Service {
	cfg.defaults()
	if logger == nil {
		logger = cfg.Logger
	}

	s := &Service{
		cfg: cfg,
		store: store.New(db, store.Options{
			MaxEntries:    cfg.MaxEntries,
			MaxTotalBytes: cfg.MaxTotalBytes,
			KeyPrefix:     cfg.KeyPrefix,
			Logger:        logger,
		}),
		capturer: NewCapturer(backend, &cfg, logger),
		notifier: NewNotifier(logger),
		logger:   logger,
	}
	s.gate = NewGate(cfg.Debounce, backend, s.capture, logger)
	return s
}

// Hydrate rebuilds the in-memory index from the durable mirror and runs
// one eviction pass. Call once at startup.
func (s *Service) Hydrate(ctx context.Context) error {
	return s.store.Hydrate(ctx)
}

// Prune removes entries for tabs not in live (tab IDs do not persist
// across browser sessions). Pruned tabs get a "removed" notification.
func (s *Service) Prune(ctx context.Context, live map[int]bool) {
	for _, id := range s.store.PruneExcept(ctx, live) {
		s.notifier.Notify(id, ReasonRemoved)
	}
}

// Close stops pending capture timers. In-flight captures finish.
func (s *Service) Close() {
	s.gate.Close()
}

// RequestCapture asks the gate to schedule a capture for a tab.
func (s *Service) RequestCapture(tabID, windowID int, reason string) {
	s.gate.RequestCapture(tabID, windowID, reason)
}

// HandleTabEvent implements graph.Handler: qualifying lifecycle events
// schedule captures, closures invalidate entries.
func (s *Service) HandleTabEvent(ev graph.Event) {
	switch ev.Type {
	case graph.EventCreated:
		s.gate.RequestCapture(ev.TabID, ev.WindowID, string(ev.Type))

	case graph.EventUpdated:
		if ev.NavigationComplete {
			s.gate.RequestCapture(ev.TabID, ev.WindowID, string(ev.Type))
		}

	case graph.EventActivated:
		s.gate.RequestCapture(ev.TabID, ev.WindowID, string(ev.Type))

	case graph.EventRemoved:
		s.gate.Cancel(ev.TabID)
		s.invalidate(context.Background(), ev.TabID)

	case graph.EventReplaced:
		s.gate.Cancel(ev.TabID)
		s.invalidate(context.Background(), ev.TabID)
		s.gate.RequestCapture(ev.NewTabID, ev.WindowID, string(ev.Type))
	}
}

// LookupResult is the thumb:get response: Found is true only when a
// non-blocked entry with image data exists.
type LookupResult struct {
	Found       bool    `json:"found"`
	Blocked     bool    `json:"blocked"`
	StorageKey  *string `json:"storage_key"`
	LastUpdated *int64  `json:"last_updated"`
}

// Lookup returns the cache state for a tab.
func (s *Service) Lookup(tabID int) LookupResult {
	e, ok := s.store.Get(tabID)
	if !ok {
		return LookupResult{}
	}

	key := s.store.Key(tabID)
	res := LookupResult{
		Blocked:    e.Blocked,
		StorageKey: &key,
	}
	if e.LastUpdated != 0 {
		ts := e.LastUpdated
		res.LastUpdated = &ts
	}
	res.Found = !e.Blocked && len(e.ImageData) > 0
	return res
}

// Image returns the encoded thumbnail payload for a tab, if present.
func (s *Service) Image(tabID int) ([]byte, bool) {
	e, ok := s.store.Get(tabID)
	if !ok || e.Blocked || len(e.ImageData) == 0 {
		return nil, false
	}
	return e.ImageData, true
}

// Stats returns current cache counters.
func (s *Service) Stats() Stats {
	return s.store.Stats()
}

// Subscribe registers an observer for entry-change notifications.
func (s *Service) Subscribe(fn ObserverFunc) string {
	return s.notifier.Subscribe(fn)
}

// Unsubscribe removes an observer.
func (s *Service) Unsubscribe(token string) {
	s.notifier.Unsubscribe(token)
}

// capture is the gate's fire target: run one bounded attempt and record
// the result. Transient failures write nothing and notify nobody.
func (s *Service) capture(tabID, windowID int, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CaptureTimeout)
	defer cancel()

	res := s.capturer.Capture(ctx, tabID, windowID)

	// The timeout bounds the capture only. A capture that used up its
	// budget must not poison the durable write with an expired context.
	putCtx := context.Background()

	switch res.Outcome {
	case OutcomeCaptured:
		s.store.Put(putCtx, tabID, res.Image, false, res.Timestamp)
		s.notifier.Notify(tabID, ReasonUpdated)
		s.logger.Debug("thumbcache: captured",
			"tab_id", tabID, "bytes", len(res.Image), "reason", reason)

	case OutcomeBlocked:
		s.store.Put(putCtx, tabID, nil, true, res.Timestamp)
		s.notifier.Notify(tabID, ReasonBlocked)
		s.logger.Info("thumbcache: capture blocked",
			"tab_id", tabID, "error", res.Err)

	case OutcomeAborted:
		// Tab gone or not active anymore. Nothing to record.

	case OutcomeTransient:
		s.logger.Warn("thumbcache: capture failed, will retry on next event",
			"tab_id", tabID, "error", res.Err)
	}
}

func (s *Service) invalidate(ctx context.Context, tabID int) {
	if s.store.Remove(ctx, tabID) {
		s.notifier.Notify(tabID, ReasonRemoved)
	}
}
