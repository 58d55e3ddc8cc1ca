package thumbcache

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterHTTP mounts the thumbnail query surface:
//
//	GET /thumbs/stats          cache counters
//	GET /thumbs/{tabID}        thumb:get contract (found/blocked/key/updated)
//	GET /thumbs/{tabID}/image  the encoded payload
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Route("/thumbs", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/{tabID}", s.handleGet)
		r.Get("/{tabID}/image", s.handleImage)
	})
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Stats())
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil {
		http.Error(w, "invalid tab id", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Lookup(tabID))
}

func (s *Service) handleImage(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil {
		http.Error(w, "invalid tab id", http.StatusBadRequest)
		return
	}

	img, ok := s.Image(tabID)
	if !ok {
		http.Error(w, "no thumbnail", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
