package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/thesantatitan/graphtabs/graph"
	"github.com/thesantatitan/graphtabs/thumbcache"
)

// Tabs tracks page targets of a connected browser, assigns session-stable
// integer tab and window IDs, translates CDP target events into graph
// events, and implements the thumbcache capture backend.
type Tabs struct {
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	nextTab  int
	byTarget map[proto.TargetTargetID]*tabRec
	byID     map[int]*tabRec
	handlers []graph.Handler
}

type tabRec struct {
	id       int
	targetID proto.TargetTargetID
	windowID int
	url      string
	title    string
	page     *rod.Page
}

// tabView is a point-in-time copy of a record's mutable fields. Records
// are shared between the event goroutine and capture goroutines; readers
// take a view under t.mu and never touch a live record unlocked.
type tabView struct {
	id       int
	windowID int
	url      string
	page     *rod.Page
}

func (r *tabRec) view() tabView {
	return tabView{id: r.id, windowID: r.windowID, url: r.url, page: r.page}
}

func (t *Tabs) view(tabID int) (tabView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[tabID]
	if !ok {
		return tabView{}, false
	}
	return rec.view(), true
}

// NewTabs creates a Tabs registry over a connected browser.
func NewTabs(b *rod.Browser, logger *slog.Logger) *Tabs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tabs{
		logger:   logger,
		browser:  b,
		byTarget: make(map[proto.TargetTargetID]*tabRec),
		byID:     make(map[int]*tabRec),
	}
}

// OnEvent registers a lifecycle event handler (the graph, the thumbnail
// service). Handlers run on the event goroutine; keep them fast.
func (t *Tabs) OnEvent(h graph.Handler) {
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
}

// Watch registers already-open pages and then follows target events until
// ctx is cancelled.
func (t *Tabs) Watch(ctx context.Context) error {
	b := t.browser.Context(ctx)

	// Rod enables discovery on connect; repeating it is harmless and
	// guards against externally configured browsers.
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(b); err != nil {
		return fmt.Errorf("browser: discover targets: %w", err)
	}

	pages, err := b.Pages()
	if err != nil {
		return fmt.Errorf("browser: list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			t.logger.Warn("browser: page info", "error", err)
			continue
		}
		t.onCreated(info)
	}

	go b.EachEvent(
		func(e *proto.TargetTargetCreated) { t.onCreated(e.TargetInfo) },
		func(e *proto.TargetTargetInfoChanged) { t.onChanged(e.TargetInfo) },
		func(e *proto.TargetTargetDestroyed) { t.onDestroyed(e.TargetID) },
	)()

	return nil
}

// LiveTabIDs returns the IDs of currently tracked tabs, for pruning
// hydrated cache entries from a previous session.
func (t *Tabs) LiveTabIDs() map[int]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := make(map[int]bool, len(t.byID))
	for id := range t.byID {
		live[id] = true
	}
	return live
}

// Activate brings a tab to the front and emits an activated event.
func (t *Tabs) Activate(tabID int) error {
	v, ok := t.view(tabID)
	if !ok {
		return fmt.Errorf("browser: activate tab %d: %w", tabID, thumbcache.ErrTabGone)
	}
	if v.page == nil {
		return fmt.Errorf("browser: activate tab %d: no attached page", tabID)
	}
	if _, err := v.page.Activate(); err != nil {
		return fmt.Errorf("browser: activate tab %d: %w", tabID, err)
	}
	t.emit(graph.Event{
		Type:     graph.EventActivated,
		TabID:    tabID,
		WindowID: v.windowID,
		Active:   true,
	})
	return nil
}

// ResolveTab implements thumbcache.TabResolver. A tab is active when its
// document reports itself visible; headless pages normally do.
func (t *Tabs) ResolveTab(tabID int) (thumbcache.TabState, bool) {
	v, ok := t.view(tabID)
	if !ok {
		return thumbcache.TabState{}, false
	}
	return thumbcache.TabState{
		WindowID: v.windowID,
		Active:   pageVisible(v.page),
	}, true
}

// CaptureScreenshot implements thumbcache.Screenshotter: a JPEG capture
// of the window's visible tab. Restricted schemes are refused with
// thumbcache.ErrCaptureForbidden before touching the host API.
func (t *Tabs) CaptureScreenshot(ctx context.Context, windowID, quality int) ([]byte, error) {
	v, ok := t.visibleTabOfWindow(windowID)
	if !ok {
		return nil, fmt.Errorf("browser: window %d has no visible tab: %w", windowID, thumbcache.ErrTabGone)
	}
	if isRestrictedURL(v.url) {
		return nil, fmt.Errorf("browser: %s: %w", v.url, thumbcache.ErrCaptureForbidden)
	}
	if v.page == nil {
		return nil, fmt.Errorf("browser: tab %d has no attached page: %w", v.id, thumbcache.ErrTabGone)
	}

	q := quality
	data, err := v.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &q,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot tab %d: %w", v.id, err)
	}
	return data, nil
}

func (t *Tabs) onCreated(info *proto.TargetTargetInfo) {
	if info.Type != "page" {
		return
	}

	t.mu.Lock()
	if _, seen := t.byTarget[info.TargetID]; seen {
		t.mu.Unlock()
		return
	}
	t.nextTab++
	rec := &tabRec{
		id:       t.nextTab,
		targetID: info.TargetID,
		url:      info.URL,
		title:    info.Title,
	}
	openerID := 0
	if opener, ok := t.byTarget[info.OpenerID]; ok {
		openerID = opener.id
	}
	t.byTarget[info.TargetID] = rec
	t.byID[rec.id] = rec
	t.mu.Unlock()

	t.attach(rec)

	// attach may have raced with a concurrent change; re-read the
	// emitted fields under the lock.
	t.mu.Lock()
	ev := graph.Event{
		Type:     graph.EventCreated,
		TabID:    rec.id,
		WindowID: rec.windowID,
		OpenerID: openerID,
		URL:      rec.url,
		Title:    rec.title,
	}
	t.mu.Unlock()

	t.emit(ev)
}

func (t *Tabs) onChanged(info *proto.TargetTargetInfo) {
	t.mu.Lock()
	rec, ok := t.byTarget[info.TargetID]
	if !ok {
		t.mu.Unlock()
		return
	}
	navigated := navigationComplete(rec.url, info.URL)
	rec.url = info.URL
	rec.title = info.Title
	ev := graph.Event{
		Type:               graph.EventUpdated,
		TabID:              rec.id,
		WindowID:           rec.windowID,
		URL:                rec.url,
		Title:              rec.title,
		NavigationComplete: navigated,
	}
	t.mu.Unlock()

	t.emit(ev)
}

func (t *Tabs) onDestroyed(targetID proto.TargetTargetID) {
	t.mu.Lock()
	rec, ok := t.byTarget[targetID]
	var ev graph.Event
	if ok {
		delete(t.byTarget, targetID)
		delete(t.byID, rec.id)
		ev = graph.Event{
			Type:     graph.EventRemoved,
			TabID:    rec.id,
			WindowID: rec.windowID,
		}
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	t.emit(ev)
}

// attach resolves the page handle and window for a new target. Best
// effort: a failure leaves the tab tracked without a page, and captures
// for it abort until it can be resolved.
func (t *Tabs) attach(rec *tabRec) {
	if t.browser == nil {
		return
	}

	page, err := t.browser.PageFromTarget(rec.targetID)
	if err != nil {
		t.logger.Warn("browser: attach page", "tab_id", rec.id, "error", err)
		return
	}

	windowID := 0
	win, err := proto.BrowserGetWindowForTarget{TargetID: rec.targetID}.Call(page)
	if err != nil {
		t.logger.Debug("browser: window for target", "tab_id", rec.id, "error", err)
	} else {
		windowID = int(win.WindowID)
	}

	t.mu.Lock()
	rec.page = page
	rec.windowID = windowID
	t.mu.Unlock()
}

// visibleTabOfWindow returns a snapshot of the window's visible tab. The
// visibility probe runs on copied views, outside the lock.
func (t *Tabs) visibleTabOfWindow(windowID int) (tabView, bool) {
	t.mu.Lock()
	var candidates []tabView
	for _, rec := range t.byID {
		if rec.windowID == windowID {
			candidates = append(candidates, rec.view())
		}
	}
	t.mu.Unlock()

	if len(candidates) == 1 {
		return candidates[0], true
	}
	for _, v := range candidates {
		if pageVisible(v.page) {
			return v, true
		}
	}
	return tabView{}, false
}

func pageVisible(page *rod.Page) bool {
	if page == nil {
		return false
	}
	res, err := page.Timeout(2 * time.Second).Eval(`() => document.visibilityState`)
	if err != nil {
		return false
	}
	return res.Value.Str() == "visible"
}

func (t *Tabs) emit(ev graph.Event) {
	t.mu.Lock()
	handlers := make([]graph.Handler, len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.Unlock()

	for _, h := range handlers {
		h.HandleTabEvent(ev)
	}
}

// restrictedPrefixes are URL schemes the host refuses to capture.
var restrictedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"devtools://",
	"edge://",
	"view-source:",
}

func isRestrictedURL(url string) bool {
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}

// navigationComplete reports whether a target info change amounts to a
// finished navigation. CDP emits title-only changes after load; a URL
// transition to a concrete document is the signal worth capturing.
func navigationComplete(oldURL, newURL string) bool {
	if newURL == "" || newURL == "about:blank" {
		return false
	}
	return newURL != oldURL
}
