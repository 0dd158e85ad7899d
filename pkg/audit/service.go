package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRunInFlight is returned when a batch run is requested while
// another run is still executing.
var ErrRunInFlight = errors.New("a batch audit run is already in progress")

// Service serializes batch runs over a Runner. At most one run is in
// flight at a time regardless of how it was triggered.
type Service struct {
	runner  *Runner
	logger  zerolog.Logger
	running atomic.Bool

	mu   sync.RWMutex
	last *Result
}

// NewService wraps a runner with single-flight semantics.
func NewService(runner *Runner, logger zerolog.Logger) *Service {
	return &Service{
		runner: runner,
		logger: logger.With().Str("component", "audit-service").Logger(),
	}
}

// RunNow executes a batch synchronously. Returns ErrRunInFlight if a
// run is already executing.
func (s *Service) RunNow(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrRunInFlight
	}
	defer s.running.Store(false)

	result, err := s.runner.run(ctx, uuid.New().String())
	if err == nil {
		s.setLast(result)
	}
	return result, err
}

// TryStart launches a batch in the background and returns its run ID.
// Returns ErrRunInFlight if a run is already executing. The given
// context bounds the whole run; pass a long-lived context, not a
// per-request one.
func (s *Service) TryStart(ctx context.Context) (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrRunInFlight
	}

	runID := uuid.New().String()

	go func() {
		defer s.running.Store(false)
		result, err := s.runner.run(ctx, runID)
		if err != nil {
			s.logger.Error().Err(err).Str("run_id", runID).Msg("Background batch run failed")
			return
		}
		s.setLast(result)
	}()

	return runID, nil
}

// Running reports whether a batch run is currently executing.
func (s *Service) Running() bool {
	return s.running.Load()
}

// LastResult returns the most recently completed run, if any.
func (s *Service) LastResult() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

func (s *Service) setLast(result Result) {
	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()
}
