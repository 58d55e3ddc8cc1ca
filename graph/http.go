package graph

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterHTTP mounts the graph query surface:
//
//	GET /graph             full snapshot (nodes + opener edges)
//	GET /graph/tabs/{tabID}  one node
func (g *Graph) RegisterHTTP(r chi.Router) {
	r.Route("/graph", func(r chi.Router) {
		r.Get("/", g.handleSnapshot)
		r.Get("/tabs/{tabID}", g.handleTab)
	})
}

func (g *Graph) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g.Snapshot())
}

func (g *Graph) handleTab(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil {
		http.Error(w, "invalid tab id", http.StatusBadRequest)
		return
	}
	n, ok := g.Get(tabID)
	if !ok {
		http.Error(w, "no such tab", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(n)
}
