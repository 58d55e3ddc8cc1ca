package thumbcache

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thesantatitan/graphtabs/dbopen"
	"github.com/thesantatitan/graphtabs/graph"
)

type change struct {
	tabID  int
	reason string
}

func testService(t *testing.T, backend CaptureBackend) (*Service, *sql.DB, chan change) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	svc := New(db, backend, Config{Debounce: 10 * time.Millisecond}, nil)
	t.Cleanup(svc.Close)

	changes := make(chan change, 16)
	svc.Subscribe(func(tabID int, reason string) error {
		changes <- change{tabID, reason}
		return nil
	})
	return svc, db, changes
}

func waitChange(t *testing.T, ch chan change) change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no notification arrived")
		return change{}
	}
}

func expectSilence(t *testing.T, ch chan change) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected notification %+v", c)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCapturePipelineSuccess(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return shot, nil },
	}
	svc, _, changes := testService(t, backend)

	svc.RequestCapture(5, 10, "activated")

	c := waitChange(t, changes)
	if c.tabID != 5 || c.reason != ReasonUpdated {
		t.Fatalf("notification: got %+v, want tab 5 updated", c)
	}

	res := svc.Lookup(5)
	if !res.Found || res.Blocked {
		t.Errorf("Lookup: got %+v, want found non-blocked", res)
	}
	if res.StorageKey == nil || *res.StorageKey != "thumb:5" {
		t.Errorf("StorageKey: got %v, want thumb:5", res.StorageKey)
	}
	if res.LastUpdated == nil {
		t.Error("LastUpdated: nil")
	}

	if _, ok := svc.Image(5); !ok {
		t.Error("Image(5): missing after successful capture")
	}
}

func TestSlowCaptureStillPersists(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot: func(int) ([]byte, error) {
			// Outlive the capture budget; the durable write must not
			// inherit the expired deadline.
			time.Sleep(50 * time.Millisecond)
			return shot, nil
		},
	}
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	svc := New(db, backend, Config{
		Debounce:       5 * time.Millisecond,
		CaptureTimeout: 20 * time.Millisecond,
	}, nil)
	t.Cleanup(svc.Close)

	changes := make(chan change, 16)
	svc.Subscribe(func(tabID int, reason string) error {
		changes <- change{tabID, reason}
		return nil
	})

	svc.RequestCapture(5, 10, "activated")
	if c := waitChange(t, changes); c.reason != ReasonUpdated {
		t.Fatalf("notification reason: got %q, want %q", c.reason, ReasonUpdated)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM thumbnails WHERE tab_id = 5`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Fatalf("durable rows for tab 5: got %d, want 1", rows)
	}
}

func TestCapturePermissionDeniedWritesBlockedEntry(t *testing.T) {
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return nil, errors.New("permission denied") },
	}
	svc, _, changes := testService(t, backend)

	svc.RequestCapture(5, 10, "created")

	c := waitChange(t, changes)
	if c.reason != ReasonBlocked {
		t.Fatalf("notification reason: got %q, want %q", c.reason, ReasonBlocked)
	}

	res := svc.Lookup(5)
	if res.Found {
		t.Error("Found: got true for blocked entry")
	}
	if !res.Blocked {
		t.Error("Blocked: got false, want true")
	}
	if _, ok := svc.Image(5); ok {
		t.Error("Image(5): blocked entry must carry no image")
	}
}

func TestCaptureTransientWritesNothing(t *testing.T) {
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return nil, errors.New("network timeout") },
	}
	svc, db, changes := testService(t, backend)

	svc.RequestCapture(5, 10, "created")
	expectSilence(t, changes)

	res := svc.Lookup(5)
	if res.Found || res.Blocked || res.StorageKey != nil {
		t.Errorf("Lookup after transient failure: got %+v, want absent", res)
	}
	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM thumbnails`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 0 {
		t.Errorf("durable rows: got %d, want 0", rows)
	}
}

func TestTabRemovalInvalidatesEntry(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return shot, nil },
	}
	svc, _, changes := testService(t, backend)

	svc.RequestCapture(5, 10, "created")
	waitChange(t, changes)

	svc.HandleTabEvent(graph.Event{Type: graph.EventRemoved, TabID: 5})

	c := waitChange(t, changes)
	if c.reason != ReasonRemoved {
		t.Fatalf("notification reason: got %q, want %q", c.reason, ReasonRemoved)
	}
	if res := svc.Lookup(5); res.StorageKey != nil {
		t.Errorf("Lookup after removal: got %+v, want absent", res)
	}
}

func TestRemovalOfUnknownTabNotifiesNothing(t *testing.T) {
	backend := &fakeBackend{
		states: map[int]TabState{},
		shot:   func(int) ([]byte, error) { return nil, errors.New("unreachable") },
	}
	svc, _, changes := testService(t, backend)

	svc.HandleTabEvent(graph.Event{Type: graph.EventRemoved, TabID: 99})
	expectSilence(t, changes)
}

func TestUpdatedEventGatesOnNavigationComplete(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return shot, nil },
	}
	svc, _, changes := testService(t, backend)

	// Mid-navigation updates must not capture.
	svc.HandleTabEvent(graph.Event{Type: graph.EventUpdated, TabID: 5, WindowID: 10})
	expectSilence(t, changes)

	svc.HandleTabEvent(graph.Event{
		Type: graph.EventUpdated, TabID: 5, WindowID: 10, NavigationComplete: true,
	})
	c := waitChange(t, changes)
	if c.reason != ReasonUpdated {
		t.Fatalf("notification: got %+v, want updated", c)
	}
}

func TestHydrateRestoresAcrossRestart(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return shot, nil },
	}

	svc1 := New(db, backend, Config{Debounce: 10 * time.Millisecond}, nil)
	done := make(chan struct{})
	svc1.Subscribe(func(int, string) error { close(done); return nil })
	svc1.RequestCapture(5, 10, "created")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture never completed")
	}
	svc1.Close()

	// New service over the same database: hydration restores the entry.
	svc2 := New(db, backend, Config{}, nil)
	defer svc2.Close()
	if err := svc2.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}

	res := svc2.Lookup(5)
	if !res.Found {
		t.Fatalf("Lookup after hydrate: got %+v, want found", res)
	}
}

func TestPruneNotifiesRemoved(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{
			1: {WindowID: 10, Active: true},
		},
		shot: func(int) ([]byte, error) { return shot, nil },
	}
	svc, _, changes := testService(t, backend)

	svc.RequestCapture(1, 10, "created")
	waitChange(t, changes)

	// Tab 1 is not among the live tabs anymore.
	svc.Prune(context.Background(), map[int]bool{2: true})

	c := waitChange(t, changes)
	if c.tabID != 1 || c.reason != ReasonRemoved {
		t.Fatalf("notification: got %+v, want tab 1 removed", c)
	}
}
