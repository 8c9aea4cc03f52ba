// Package api serves the current track picture over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"adsbtrack/internal/adsb"
	"adsbtrack/internal/ingest"
	"adsbtrack/internal/metrics"
	"adsbtrack/internal/snapshot"
	"adsbtrack/internal/track"
)

// DefaultShutdownTimeout bounds graceful shutdown
const DefaultShutdownTimeout = 5 * time.Second

// Tracks is the read side of the track store
type Tracks interface {
	Snapshot(addr adsb.Address) (track.Track, bool)
	AllSnapshots() []track.Track
	Len() int
}

// StatsSource provides the ingestion counters
type StatsSource interface {
	Summary() ingest.Summary
}

// Server exposes tracks, stats and metrics
type Server struct {
	router  *chi.Mux
	http    *http.Server
	tracks  Tracks
	emitter *snapshot.Emitter
	stats   StatsSource
	logger  *logrus.Logger
}

// NewServer creates a server listening on addr. Records use the emitter's
// unit policy so the API matches what the sinks receive.
func NewServer(addr string, tracks Tracks, emitter *snapshot.Emitter, stats StatsSource,
	gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		tracks:  tracks,
		emitter: emitter,
		stats:   stats,
		logger:  logger,
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler(gatherer))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/aircraft", s.handleGetAircraft)
		r.Get("/aircraft/{icao}", s.handleGetAircraftByICAO)
		r.Get("/stats", s.handleGetStats)
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("HTTP API listening")
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve HTTP API: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(sctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP API: %w", err)
	}
	s.logger.Info("HTTP API stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tracks": s.tracks.Len(),
	})
}

// handleGetAircraft lists every track. ?position=true keeps only aircraft
// with a resolved position.
func (s *Server) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	onlyPositioned := r.URL.Query().Get("position") == "true"

	records := s.emitter.EmitAll(s.tracks.AllSnapshots())
	if onlyPositioned {
		kept := records[:0]
		for _, rec := range records {
			if rec.HasPosition() {
				kept = append(kept, rec)
			}
		}
		records = kept
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"aircraft": records,
		"count":    len(records),
		"now":      time.Now().UTC(),
	})
}

func (s *Server) handleGetAircraftByICAO(w http.ResponseWriter, r *http.Request) {
	icao := chi.URLParam(r, "icao")
	addr, err := adsb.ParseAddress(icao)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid ICAO address %q", icao))
		return
	}

	t, ok := s.tracks.Snapshot(addr)
	if !ok {
		respondError(w, http.StatusNotFound, "aircraft not found")
		return
	}
	respondJSON(w, http.StatusOK, s.emitter.Emit(t))
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.stats.Summary())
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
