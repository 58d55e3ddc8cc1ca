package thumbcache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/thesantatitan/graphtabs/thumbcache/internal/scale"
)

// Screenshotter captures an encoded full-resolution screenshot of a
// window's visible tab. Quality is the encode quality, 1-100.
// Implementations should wrap ErrCaptureForbidden for permanent refusals
// and ErrTabGone when the target disappeared.
type Screenshotter interface {
	CaptureScreenshot(ctx context.Context, windowID, quality int) ([]byte, error)
}

// TabState is the resolved current state of a tab.
type TabState struct {
	WindowID int
	Active   bool
}

// TabResolver reports the current state of a tab. The second return is
// false when the tab no longer exists.
type TabResolver interface {
	ResolveTab(tabID int) (TabState, bool)
}

// CaptureBackend is the host capability surface the capture pipeline
// consumes: screenshots plus tab state resolution.
type CaptureBackend interface {
	Screenshotter
	TabResolver
}

// Outcome classifies one capture attempt.
type Outcome int

const (
	// OutcomeCaptured means a thumbnail was produced.
	OutcomeCaptured Outcome = iota
	// OutcomeBlocked means capture is permanently disallowed for the
	// tab's current navigation state.
	OutcomeBlocked
	// OutcomeAborted means the tab is gone or no longer active: nothing
	// is recorded and no error is surfaced.
	OutcomeAborted
	// OutcomeTransient means a retriable failure: nothing is recorded,
	// the next lifecycle event re-triggers the gate.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCaptured:
		return "captured"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeAborted:
		return "aborted"
	default:
		return "transient"
	}
}

// Result is the outcome of one capture attempt.
type Result struct {
	Outcome   Outcome
	Image     []byte
	Timestamp int64
	// Err carries the underlying failure for blocked and transient
	// outcomes. Informational; the Outcome is authoritative.
	Err error
}

// Capturer produces a thumbnail or a definitive blocked classification
// for one tab.
type Capturer struct {
	backend CaptureBackend
	cfg     *Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewCapturer creates a Capturer over a host backend.
func NewCapturer(backend CaptureBackend, cfg *Config, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{backend: backend, cfg: cfg, logger: logger, now: time.Now}
}

// Capture runs one attempt for tabID: resolve state, screenshot the
// window, downscale, classify failures. Gone or inactive tabs abort
// silently. A downscale failure falls back to the full-resolution capture
// rather than losing the attempt.
func (c *Capturer) Capture(ctx context.Context, tabID, windowID int) Result {
	state, ok := c.backend.ResolveTab(tabID)
	if !ok || !state.Active {
		return Result{Outcome: OutcomeAborted}
	}
	if state.WindowID != 0 {
		windowID = state.WindowID
	}

	raw, err := c.backend.CaptureScreenshot(ctx, windowID, c.cfg.Quality)
	if err != nil {
		return c.classify(tabID, err)
	}

	ts := c.now().UnixMilli()
	thumb, err := scale.Thumbnail(raw, c.cfg.ThumbWidth, c.cfg.ThumbHeight, c.cfg.Quality)
	if err != nil {
		// Keep the capture: a full-resolution entry beats no entry.
		c.logger.Warn("thumbcache: downscale failed, storing full capture",
			"tab_id", tabID, "error", err)
		return Result{Outcome: OutcomeCaptured, Image: raw, Timestamp: ts}
	}

	return Result{Outcome: OutcomeCaptured, Image: thumb, Timestamp: ts}
}

func (c *Capturer) classify(tabID int, err error) Result {
	if errors.Is(err, ErrTabGone) {
		return Result{Outcome: OutcomeAborted}
	}
	if IsCaptureForbidden(err) {
		return Result{Outcome: OutcomeBlocked, Timestamp: c.now().UnixMilli(), Err: err}
	}
	return Result{Outcome: OutcomeTransient, Err: err}
}

// forbiddenIndicators are message fragments from host environments that
// refuse captures without a structured error code. Matching is the
// fallback path; backends that can should wrap ErrCaptureForbidden.
var forbiddenIndicators = []string{
	"permission denied",
	"access is denied",
	"not allowed",
	"forbidden",
	"restricted",
	"cannot capture",
	"cannot be captured",
	"chrome://",
	"chrome-extension://",
	"devtools://",
}

// IsCaptureForbidden reports whether err is a permanent capture refusal:
// either a wrapped ErrCaptureForbidden or a message matching a known
// forbidden-capture indicator.
func IsCaptureForbidden(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCaptureForbidden) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range forbiddenIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
