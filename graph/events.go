package graph

// EventType identifies a tab lifecycle transition.
type EventType string

const (
	EventCreated   EventType = "created"
	EventUpdated   EventType = "updated"
	EventActivated EventType = "activated"
	EventRemoved   EventType = "removed"
	EventReplaced  EventType = "replaced"
	EventAttached  EventType = "attached"
	EventDetached  EventType = "detached"
	EventMoved     EventType = "moved"
)

// Event is one tab lifecycle transition as reported by the host browser.
// TabID and WindowID are session-stable integers assigned by the adapter.
type Event struct {
	Type     EventType `json:"type"`
	TabID    int       `json:"tab_id"`
	WindowID int       `json:"window_id"`

	// OpenerID is the tab that opened this one. 0 = no opener.
	// Only meaningful on created events.
	OpenerID int `json:"opener_id,omitempty"`

	// NewTabID is the replacement tab. Only meaningful on replaced events.
	NewTabID int `json:"new_tab_id,omitempty"`

	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
	Active bool   `json:"active"`

	// NavigationComplete is set on updated events once the page finished
	// loading. Capture scheduling keys off this flag.
	NavigationComplete bool `json:"navigation_complete,omitempty"`
}

// Handler consumes tab lifecycle events. Implementations must not retain
// the event past the call.
type Handler interface {
	HandleTabEvent(ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ev Event)

func (f HandlerFunc) HandleTabEvent(ev Event) { f(ev) }
