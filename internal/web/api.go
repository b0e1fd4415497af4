package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/renderinc/forumsync/internal/search"
)

type SearchResponse struct {
	Results []*search.SearchResult `json:"results"`
	Query   string                 `json:"query"`
	Count   int                    `json:"count"`
	Error   string                 `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if s.idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, SearchResponse{Query: query, Error: "search index not available"})
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	results, err := s.idx.Search(query, limit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SearchResponse{Query: query, Error: err.Error()})
		return
	}
	if results == nil {
		results = []*search.SearchResult{}
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Query:   query,
		Count:   len(results),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.feed.State()
	resp := map[string]any{
		"status":        "ok",
		"authenticated": s.session.IsAuthenticated(),
		"posts_loaded":  state.Loaded,
		"posts":         len(state.Posts),
	}
	if state.Err != nil {
		resp["load_error"] = state.Err.Error()
	}
	if s.db != nil {
		if n, err := s.db.Count(); err == nil {
			resp["posts_in_db"] = n
		}
	}
	if s.idx != nil {
		if n, err := s.idx.Count(); err == nil {
			resp["posts_in_index"] = n
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
