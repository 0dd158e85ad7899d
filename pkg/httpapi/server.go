// Package httpapi exposes the daemon's HTTP surface: an interactive
// question endpoint, the batch audit trigger, health, and a websocket
// stream of per-item run outcomes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/maulida/sleuth/pkg/audit"
	"github.com/rs/zerolog"
)

// Asker answers a single ad-hoc question.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// BatchTrigger schedules a background batch run.
type BatchTrigger interface {
	TryStart(ctx context.Context) (string, error)
	Running() bool
	LastResult() (audit.Result, bool)
}

// ServerOptions holds HTTP server settings.
type ServerOptions struct {
	Host string
	Port int

	// AskTimeout bounds interactive question handling.
	AskTimeout time.Duration
}

// Server is the daemon HTTP server.
type Server struct {
	options     ServerOptions
	server      *http.Server
	asker       Asker
	trigger     BatchTrigger
	broadcaster *RunBroadcaster
	logger      zerolog.Logger
	startTime   time.Time

	// baseCtx outlives individual requests; background batch runs are
	// bound to it so they survive the triggering request.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates the daemon HTTP server.
func NewServer(options ServerOptions, asker Asker, trigger BatchTrigger, broadcaster *RunBroadcaster, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.AskTimeout == 0 {
		options.AskTimeout = 5 * time.Minute
	}
	if asker == nil {
		return nil, fmt.Errorf("asker is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("batch trigger is required")
	}
	if broadcaster == nil {
		broadcaster = NewRunBroadcaster(logger)
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Server{
		options:     options,
		asker:       asker,
		trigger:     trigger,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "httpapi").Logger(),
		startTime:   time.Now(),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
	}, nil
}

// Handler returns the routed handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ask", s.withRequestTracking(s.handleAsk))
	mux.HandleFunc("/run_batch_audit", s.withRequestTracking(s.handleRunBatchAudit))
	mux.Handle("/ws/runs", s.broadcaster)
	return mux
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.baseCancel()
	s.broadcaster.Close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Broadcaster returns the run outcome broadcaster for wiring into the
// batch runner's observer hook.
func (s *Server) Broadcaster() *RunBroadcaster {
	return s.broadcaster
}

func (s *Server) withRequestTracking(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).Seconds(),
		"run_active": s.trigger.Running(),
		"timestamp":  time.Now().UnixMilli(),
	}

	if last, ok := s.trigger.LastResult(); ok {
		response["last_run"] = map[string]interface{}{
			"run_id":      last.RunID,
			"finished_at": last.FinishedAt,
			"succeeded":   last.Succeeded,
			"skipped":     last.Skipped,
			"failed":      last.Failed,
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	question := r.URL.Query().Get("q")
	if question == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), s.options.AskTimeout)
	defer cancel()

	answer, err := s.asker.Ask(ctx, question)
	if err != nil {
		s.logger.Error().Err(err).Str("question", question).Msg("Ask request failed")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info().
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Ask request completed")
	s.writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleRunBatchAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID, err := s.trigger.TryStart(s.baseCtx)
	if err != nil {
		if errors.Is(err, audit.ErrRunInFlight) {
			s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to start batch run")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info().Str("run_id", runID).Msg("Batch audit run accepted")
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Batch audit process started in the background.",
		"run_id":  runID,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write response")
	}
}
