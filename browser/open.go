package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/stealth"

	"github.com/thesantatitan/graphtabs/thumbcache"
)

// Open creates a new tab with stealth applied, navigates it to url and
// returns its assigned tab ID.
func (t *Tabs) Open(ctx context.Context, url string) (int, error) {
	t.mu.Lock()
	b := t.browser
	t.mu.Unlock()
	if b == nil {
		return 0, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return 0, fmt.Errorf("browser: create tab: %w", err)
	}

	// Register synchronously; the discovery event for the same target is
	// a no-op once the tab is tracked.
	info, err := page.Info()
	if err != nil {
		page.Close()
		return 0, fmt.Errorf("browser: new tab info: %w", err)
	}
	t.onCreated(info)

	t.mu.Lock()
	id := 0
	if rec := t.byTarget[info.TargetID]; rec != nil {
		id = rec.id
	}
	t.mu.Unlock()
	if id == 0 {
		page.Close()
		return 0, fmt.Errorf("browser: new tab not tracked")
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return 0, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	return id, nil
}

// CloseTab closes a tab's page; the destroyed event removes it from the
// registry and the graph.
func (t *Tabs) CloseTab(tabID int) error {
	v, ok := t.view(tabID)
	if !ok {
		return fmt.Errorf("browser: close tab %d: %w", tabID, thumbcache.ErrTabGone)
	}
	if v.page == nil {
		return fmt.Errorf("browser: close tab %d: no attached page", tabID)
	}
	if err := v.page.Close(); err != nil {
		return fmt.Errorf("browser: close tab %d: %w", tabID, err)
	}
	return nil
}
