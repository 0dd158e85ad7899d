// Package cron runs the batch audit on a fixed schedule. Ticks that
// land while a previous run is still executing are skipped rather than
// queued.
package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/maulida/sleuth/pkg/audit"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// BatchStarter launches a background batch run.
type BatchStarter interface {
	TryStart(ctx context.Context) (string, error)
}

// Scheduler triggers batch runs from a cron expression.
type Scheduler struct {
	cron    *cron.Cron
	starter BatchStarter
	expr    string
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler for the given 5-field cron
// expression.
func NewScheduler(expr string, starter BatchStarter, logger zerolog.Logger) (*Scheduler, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression is required")
	}
	if starter == nil {
		return nil, fmt.Errorf("batch starter is required")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		starter: starter,
		expr:    expr,
		logger:  logger.With().Str("component", "cron").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if _, err := s.cron.AddFunc(expr, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule batch job: %w", err)
	}

	return s, nil
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Str("schedule", s.expr).Msg("Batch schedule started")
}

// Stop stops the schedule and cancels any scheduled run still in
// flight.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cancel()
	s.logger.Info().Msg("Batch schedule stopped")
}

func (s *Scheduler) tick() {
	runID, err := s.starter.TryStart(s.ctx)
	if err != nil {
		if errors.Is(err, audit.ErrRunInFlight) {
			s.logger.Warn().Msg("Skipping scheduled batch, previous run still in progress")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to start scheduled batch")
		return
	}

	s.logger.Info().Str("run_id", runID).Msg("Scheduled batch run started")
}
