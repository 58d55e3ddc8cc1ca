// Package graph maintains the live model of open browser tabs: one node per
// tab, one edge per opener relationship. It is fed by lifecycle events from
// the host adapter and queried by the HTTP/MCP surface.
//
// The graph holds metadata only. Thumbnails live in the thumbcache
// subsystem, keyed by the same tab IDs.
package graph

import (
	"sync"
	"time"
)

// Node is one open tab.
type Node struct {
	TabID    int    `json:"tab_id"`
	WindowID int    `json:"window_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Active   bool   `json:"active"`

	// OpenerID is the tab that opened this one. 0 = root (no opener).
	OpenerID int `json:"opener_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Edge is one opener relationship: From opened To.
type Edge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Graph is the in-memory tab index. Safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[int]*Node
	now   func() time.Time
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[int]*Node),
		now:   time.Now,
	}
}

// Apply mutates the graph according to one lifecycle event.
func (g *Graph) Apply(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch ev.Type {
	case EventCreated:
		n := &Node{
			TabID:     ev.TabID,
			WindowID:  ev.WindowID,
			URL:       ev.URL,
			Title:     ev.Title,
			Active:    ev.Active,
			OpenerID:  ev.OpenerID,
			CreatedAt: g.now(),
			UpdatedAt: g.now(),
		}
		if ev.Active {
			g.deactivateWindowLocked(ev.WindowID, ev.TabID)
		}
		g.nodes[ev.TabID] = n

	case EventUpdated:
		n, ok := g.nodes[ev.TabID]
		if !ok {
			return
		}
		if ev.URL != "" {
			n.URL = ev.URL
		}
		if ev.Title != "" {
			n.Title = ev.Title
		}
		n.UpdatedAt = g.now()

	case EventActivated:
		n, ok := g.nodes[ev.TabID]
		if !ok {
			return
		}
		g.deactivateWindowLocked(n.WindowID, ev.TabID)
		n.Active = true
		n.UpdatedAt = g.now()

	case EventRemoved:
		delete(g.nodes, ev.TabID)
		g.dropOpenerLocked(ev.TabID)

	case EventReplaced:
		// The host swapped the tab's backing target: rebind the node to the
		// new ID, keep metadata, and repoint children.
		n, ok := g.nodes[ev.TabID]
		if !ok {
			return
		}
		delete(g.nodes, ev.TabID)
		n.TabID = ev.NewTabID
		n.UpdatedAt = g.now()
		g.nodes[ev.NewTabID] = n
		for _, child := range g.nodes {
			if child.OpenerID == ev.TabID {
				child.OpenerID = ev.NewTabID
			}
		}

	case EventAttached, EventMoved:
		n, ok := g.nodes[ev.TabID]
		if !ok {
			return
		}
		n.WindowID = ev.WindowID
		n.UpdatedAt = g.now()

	case EventDetached:
		n, ok := g.nodes[ev.TabID]
		if !ok {
			return
		}
		n.WindowID = 0
		n.Active = false
		n.UpdatedAt = g.now()
	}
}

// HandleTabEvent implements Handler.
func (g *Graph) HandleTabEvent(ev Event) { g.Apply(ev) }

// Get returns a copy of the node for tabID, or false if not present.
func (g *Graph) Get(tabID int) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[tabID]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Len returns the number of open tabs.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// ActiveTab returns the active tab of a window, or false if none.
func (g *Graph) ActiveTab(windowID int) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.WindowID == windowID && n.Active {
			return *n, true
		}
	}
	return Node{}, false
}

// Snapshot returns copies of all nodes and the opener edges between
// currently open tabs. Edges whose opener has closed are omitted.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Snapshot returns a stable copy of the graph.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{Nodes: make([]Node, 0, len(g.nodes))}
	for _, n := range g.nodes {
		snap.Nodes = append(snap.Nodes, *n)
		if n.OpenerID != 0 {
			if _, ok := g.nodes[n.OpenerID]; ok {
				snap.Edges = append(snap.Edges, Edge{From: n.OpenerID, To: n.TabID})
			}
		}
	}
	return snap
}

// TabIDs returns the IDs of all open tabs.
func (g *Graph) TabIDs() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	return ids
}

func (g *Graph) deactivateWindowLocked(windowID, exceptTabID int) {
	for _, n := range g.nodes {
		if n.WindowID == windowID && n.TabID != exceptTabID {
			n.Active = false
		}
	}
}

// dropOpenerLocked clears opener references to a closed tab so the edge
// disappears from snapshots.
func (g *Graph) dropOpenerLocked(tabID int) {
	for _, n := range g.nodes {
		if n.OpenerID == tabID {
			n.OpenerID = 0
		}
	}
}
