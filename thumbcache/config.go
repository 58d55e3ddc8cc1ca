package thumbcache

import (
	"log/slog"
	"time"

	"github.com/thesantatitan/graphtabs/thumbcache/internal/store"
)

// Schema is the DDL for the thumbnail mirror table. Apply it when opening
// the database (dbopen.WithSchema(thumbcache.Schema)).
const Schema = store.Schema

// Stats are point-in-time cache counters.
type Stats = store.Stats

// Config tunes the thumbnail cache subsystem.
type Config struct {
	// Debounce is the capture coalescing window per tab. Default: 200ms.
	Debounce time.Duration

	// ThumbWidth and ThumbHeight are the target thumbnail dimensions.
	// Default: 160x100.
	ThumbWidth  int
	ThumbHeight int

	// Quality is the JPEG encode quality, 1-100. Default: 70.
	Quality int

	// MaxEntries is the entry-count ceiling. Default: 120.
	MaxEntries int

	// MaxTotalBytes is the byte ceiling over all thumbnails. Default: 8 MiB.
	MaxTotalBytes int64

	// KeyPrefix prefixes durable storage keys. Default: "thumb:".
	KeyPrefix string

	// CaptureTimeout bounds one capture attempt. Expiry releases the
	// tab's single-flight slot and counts as a transient failure.
	// Default: 10s.
	CaptureTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 200 * time.Millisecond
	}
	if c.ThumbWidth <= 0 {
		c.ThumbWidth = 160
	}
	if c.ThumbHeight <= 0 {
		c.ThumbHeight = 100
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = 70
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 120
	}
	if c.MaxTotalBytes <= 0 {
		c.MaxTotalBytes = 8 << 20
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "thumb:"
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
