package thumbcache

import (
	"log/slog"
	"sync"
	"time"
)

// CaptureFunc runs one capture attempt for a tab. The gate guarantees at
// most one invocation is in flight per tab at any time.
type CaptureFunc func(tabID, windowID int, reason string)

type captureReq struct {
	windowID int
	reason   string
}

// Gate rate-limits and de-duplicates capture attempts per tab.
//
// Debounce: a request arms a timer; a newer request within the window
// cancels and replaces it, so only the most recent request fires.
// Single-flight: a request arriving while a capture is in flight for the
// same tab is dropped, never queued — the next lifecycle event naturally
// re-attempts.
type Gate struct {
	window   time.Duration
	resolver TabResolver
	fire     CaptureFunc
	logger   *slog.Logger

	mu       sync.Mutex
	timers   map[int]*time.Timer
	pending  map[int]captureReq
	inflight map[int]bool
	closed   bool
}

// NewGate creates a Gate. resolver may be nil, in which case the fire-time
// active check is skipped (tests). fire is invoked from timer goroutines.
func NewGate(window time.Duration, resolver TabResolver, fire CaptureFunc, logger *slog.Logger) *Gate {
	if window <= 0 {
		window = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		window:   window,
		resolver: resolver,
		fire:     fire,
		logger:   logger,
		timers:   make(map[int]*time.Timer),
		pending:  make(map[int]captureReq),
		inflight: make(map[int]bool),
	}
}

// RequestCapture records a capture request for a tab. The latest request's
// parameters win within a debounce window.
func (g *Gate) RequestCapture(tabID, windowID int, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	if g.inflight[tabID] {
		g.logger.Debug("thumbcache: capture in flight, request dropped",
			"tab_id", tabID, "reason", reason)
		return
	}

	g.pending[tabID] = captureReq{windowID: windowID, reason: reason}
	if t, ok := g.timers[tabID]; ok {
		t.Stop()
	}
	g.timers[tabID] = time.AfterFunc(g.window, func() { g.fireTab(tabID) })
}

// Cancel drops any pending request for a tab (e.g. the tab closed before
// the debounce window elapsed).
func (g *Gate) Cancel(tabID int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.timers[tabID]; ok {
		t.Stop()
		delete(g.timers, tabID)
	}
	delete(g.pending, tabID)
}

// Close stops all pending timers. In-flight captures run to completion.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
	g.pending = make(map[int]captureReq)
}

func (g *Gate) fireTab(tabID int) {
	g.mu.Lock()
	req, ok := g.pending[tabID]
	delete(g.pending, tabID)
	delete(g.timers, tabID)

	if !ok || g.closed || g.inflight[tabID] {
		g.mu.Unlock()
		return
	}

	// Eligibility is re-checked at fire time, not request time: a tab that
	// lost focus during the debounce window must not be captured stale.
	if g.resolver != nil {
		state, live := g.resolver.ResolveTab(tabID)
		if !live || !state.Active {
			g.mu.Unlock()
			g.logger.Debug("thumbcache: tab not active at fire time, capture skipped",
				"tab_id", tabID)
			return
		}
		if state.WindowID != 0 {
			req.windowID = state.WindowID
		}
	}

	g.inflight[tabID] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.inflight, tabID)
		g.mu.Unlock()
	}()

	g.fire(tabID, req.windowID, req.reason)
}
