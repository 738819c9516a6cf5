package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Research projects
	mux.HandleFunc("/api/projects/", s.app.ResearchHandler.HandleProjects)

	// API routes - Settings (key/value storage, API keys)
	mux.HandleFunc("/api/kv", s.app.KVHandler.ListKVHandler)
	mux.HandleFunc("/api/kv/", s.handleKVRoutes)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}

// handleKVRoutes dispatches /api/kv/{key} by method
func (s *Server) handleKVRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.TrimPrefix(r.URL.Path, "/api/kv/") == "" {
		http.Error(w, "Missing key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.KVHandler.GetKVHandler(w, r)
	case http.MethodPut:
		s.app.KVHandler.SetKVHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
