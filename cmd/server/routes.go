package main

import (
	"fmt"
	"net/http"
)

// setupRoutes registers all HTTP routes and middleware.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/tracks", s.handleUpload)
	mux.HandleFunc("/api/tracks/", s.handleTrackMatches)

	mux.HandleFunc("/api/matches/pending", s.handlePendingMatches)
	mux.HandleFunc("/api/matches/", s.handleReview)

	mux.HandleFunc("/api/compare", s.handleCompare)

	return corsMiddleware(s.config.AllowedOrigins)(mux)
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			} else {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	handler := s.setupRoutes()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Infof("waveprint server starting on %s", addr)
	s.log.Infof("  database:    %s", s.config.DBPath)
	s.log.Infof("  sample rate: %d Hz", s.config.SampleRate)
	s.log.Infof("  threshold:   %.2f%%", s.config.Threshold)
	s.log.Infof("endpoints:")
	s.log.Infof("  GET  /health                    - health check")
	s.log.Infof("  POST /api/tracks                - upload audio, fingerprint and check duplicates")
	s.log.Infof("  GET  /api/tracks/{id}/matches   - matches involving a track")
	s.log.Infof("  GET  /api/matches/pending       - unreviewed matches, newest first")
	s.log.Infof("  POST /api/matches/{id}/review   - record a review decision")
	s.log.Infof("  POST /api/compare               - similarity of two audio files")

	return http.ListenAndServe(addr, handler)
}
