// Package httpapi exposes the operational surface: liveness, Prometheus
// metrics, and a read-only view of the job registry.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/samlafell/mlb-betting-sub012/internal/scheduler"
)

// Server serves the operational endpoints. It never exposes picks; those
// go through the persistence sink and notifier.
type Server struct {
	addr  string
	sched *scheduler.Scheduler
	http  *http.Server
}

func NewServer(addr string, sched *scheduler.Scheduler) *Server {
	s := &Server{addr: addr, sched: sched}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler returns the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

type healthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	JobsTotal int    `json:"jobs_total"`
	JobsLive  int    `json:"jobs_live"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if s.sched != nil {
		jobs := s.sched.Jobs()
		resp.JobsTotal = len(jobs)
		for _, j := range jobs {
			if !j.State.Terminal() {
				resp.JobsLive++
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		writeJSON(w, http.StatusOK, []scheduler.Job{})
		return
	}
	writeJSON(w, http.StatusOK, s.sched.Jobs())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}
