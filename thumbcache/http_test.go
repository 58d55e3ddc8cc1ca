package thumbcache

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	_ "modernc.org/sqlite"

	"github.com/thesantatitan/graphtabs/dbopen"
)

func testServer(t *testing.T, backend CaptureBackend) (*Service, *httptest.Server, chan change) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	svc := New(db, backend, Config{Debounce: 10 * time.Millisecond}, nil)
	t.Cleanup(svc.Close)

	changes := make(chan change, 16)
	svc.Subscribe(func(tabID int, reason string) error {
		changes <- change{tabID, reason}
		return nil
	})

	r := chi.NewRouter()
	svc.RegisterHTTP(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return svc, ts, changes
}

func TestHTTPThumbGet(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return shot, nil },
	}
	svc, ts, changes := testServer(t, backend)

	svc.RequestCapture(5, 10, "activated")
	waitChange(t, changes)

	resp, err := http.Get(ts.URL + "/thumbs/5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got LookupResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Found || got.Blocked {
		t.Errorf("response: got %+v, want found non-blocked", got)
	}
	if got.StorageKey == nil || *got.StorageKey != "thumb:5" {
		t.Errorf("storage_key: got %v, want thumb:5", got.StorageKey)
	}
}

func TestHTTPThumbGetAbsent(t *testing.T) {
	backend := &fakeBackend{states: map[int]TabState{}}
	_, ts, _ := testServer(t, backend)

	resp, err := http.Get(ts.URL + "/thumbs/42")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (absence is data, not an error)", resp.StatusCode)
	}
	var got LookupResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Found || got.Blocked || got.StorageKey != nil || got.LastUpdated != nil {
		t.Errorf("response: got %+v, want all-absent", got)
	}
}

func TestHTTPImage(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return shot, nil },
	}
	svc, ts, changes := testServer(t, backend)

	svc.RequestCapture(5, 10, "activated")
	waitChange(t, changes)

	resp, err := http.Get(ts.URL + "/thumbs/5/image")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type: got %q, want image/jpeg", ct)
	}
}

func TestHTTPImageNotFound(t *testing.T) {
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return nil, errors.New("permission denied") },
	}
	svc, ts, changes := testServer(t, backend)

	svc.RequestCapture(5, 10, "activated")
	waitChange(t, changes) // blocked entry written

	resp, err := http.Get(ts.URL + "/thumbs/5/image")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404 for blocked entry", resp.StatusCode)
	}
}

func TestHTTPBadTabID(t *testing.T) {
	backend := &fakeBackend{states: map[int]TabState{}}
	_, ts, _ := testServer(t, backend)

	resp, err := http.Get(ts.URL + "/thumbs/notanumber")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHTTPStats(t *testing.T) {
	shot := screenshotPNG(t)
	backend := &fakeBackend{
		states: map[int]TabState{5: {WindowID: 10, Active: true}},
		shot:   func(int) ([]byte, error) { return shot, nil },
	}
	svc, ts, changes := testServer(t, backend)

	svc.RequestCapture(5, 10, "activated")
	waitChange(t, changes)

	resp, err := http.Get(ts.URL + "/thumbs/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Entries != 1 {
		t.Errorf("entries: got %d, want 1", got.Entries)
	}
	if got.TotalBytes <= 0 {
		t.Errorf("total_bytes: got %d, want > 0", got.TotalBytes)
	}
	if got.MaxEntries != 120 || got.MaxTotalBytes != 8<<20 {
		t.Errorf("ceilings: got %d/%d, want defaults 120/8MiB", got.MaxEntries, got.MaxTotalBytes)
	}
}
