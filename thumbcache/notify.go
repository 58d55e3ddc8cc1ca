package thumbcache

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Change reasons delivered to observers.
const (
	ReasonUpdated = "updated"
	ReasonBlocked = "blocked"
	ReasonRemoved = "removed"
)

// ObserverFunc receives "entry for tab X changed" notifications. The
// payload is deliberately absent; observers re-fetch via Lookup. Errors
// are logged and never propagate to the mutation path.
type ObserverFunc func(tabID int, reason string) error

// Notifier fans out entry-change notifications to subscribed observers,
// best-effort. With no observers a notification is silently dropped — not
// queued, not retried.
type Notifier struct {
	mu        sync.RWMutex
	observers map[string]ObserverFunc
	logger    *slog.Logger
}

// NewNotifier creates an empty Notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		observers: make(map[string]ObserverFunc),
		logger:    logger,
	}
}

// Subscribe registers an observer and returns a token for Unsubscribe.
func (n *Notifier) Subscribe(fn ObserverFunc) string {
	token := uuid.NewString()
	n.mu.Lock()
	n.observers[token] = fn
	n.mu.Unlock()
	return token
}

// Unsubscribe removes the observer registered under token.
func (n *Notifier) Unsubscribe(token string) {
	n.mu.Lock()
	delete(n.observers, token)
	n.mu.Unlock()
}

// Notify broadcasts a change for tabID. One observer failing does not
// block the others, and no failure reaches the caller.
func (n *Notifier) Notify(tabID int, reason string) {
	n.mu.RLock()
	fns := make([]ObserverFunc, 0, len(n.observers))
	for _, fn := range n.observers {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(tabID, reason); err != nil {
			n.logger.Warn("thumbcache: observer notify failed",
				"tab_id", tabID, "reason", reason, "error", err)
		}
	}
}
