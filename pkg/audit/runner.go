// Package audit implements the approved-question batch pipeline: fetch
// eligible questions, invoke the auditor agent once per question, and
// persist each answer with per-item failure isolation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/maulida/sleuth/pkg/store"
	"github.com/rs/zerolog"
)

// Invoker is the single-call agent contract the runner consumes.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Observer receives each outcome as it is recorded, in fetch order.
type Observer func(runID string, outcome Outcome)

// Config holds runner dependencies and policy.
type Config struct {
	Store   store.QuestionStore
	Invoker Invoker

	// InvocationTimeout bounds each agent call.
	InvocationTimeout time.Duration

	// Observer, when set, is called synchronously per outcome.
	Observer Observer

	Logger zerolog.Logger
}

// Runner processes all currently Approved questions exactly once per
// batch invocation. A failure in item i has no effect on whether item
// i+1 is attempted.
type Runner struct {
	store    store.QuestionStore
	invoker  Invoker
	timeout  time.Duration
	observer Observer
	logger   zerolog.Logger
}

// NewRunner creates a batch audit runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("question store is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("agent invoker is required")
	}
	if cfg.InvocationTimeout <= 0 {
		cfg.InvocationTimeout = 3 * time.Minute
	}

	return &Runner{
		store:    cfg.Store,
		invoker:  cfg.Invoker,
		timeout:  cfg.InvocationTimeout,
		observer: cfg.Observer,
		logger:   cfg.Logger.With().Str("component", "audit").Logger(),
	}, nil
}

// Run executes one batch. The returned error is non-nil only when the
// eligible-set fetch itself fails; per-item failures are reported in
// the result. Cancelling ctx stops launching new item invocations and
// returns the outcomes accumulated so far.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	return r.run(ctx, uuid.New().String())
}

// run executes one batch under a caller-supplied run ID.
func (r *Runner) run(ctx context.Context, runID string) (Result, error) {
	result := Result{
		RunID:     runID,
		StartedAt: time.Now(),
	}
	logger := r.logger.With().Str("run_id", result.RunID).Logger()

	questions, err := r.store.FetchEligible(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch eligible questions: %w", err)
	}

	if len(questions) == 0 {
		logger.Info().Msg("No approved questions to process")
		result.FinishedAt = time.Now()
		return result, nil
	}

	logger.Info().Int("count", len(questions)).Msg("Starting batch audit run")

	for _, q := range questions {
		if ctx.Err() != nil {
			logger.Warn().Int("remaining", len(questions)-result.Processed()).Msg("Batch cancelled, stopping before next item")
			break
		}

		outcome := r.processItem(ctx, logger, q)
		r.record(&result, outcome)
	}

	result.FinishedAt = time.Now()
	logger.Info().
		Int("succeeded", result.Succeeded).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Batch audit run complete")

	return result, nil
}

// processItem handles one question. All failure modes are returned as
// outcome values; nothing escapes to abort the batch.
func (r *Runner) processItem(ctx context.Context, logger zerolog.Logger, q store.Question) Outcome {
	outcome := Outcome{
		ID:           newOutcomeID(),
		QuestionID:   q.ID,
		QuestionText: q.Text,
		At:           time.Now(),
	}

	if q.ID == 0 || strings.TrimSpace(q.Text) == "" {
		logger.Warn().Int64("question_id", q.ID).Msg("Skipping malformed question")
		outcome.Status = OutcomeSkipped
		outcome.Reason = ReasonMalformed
		return outcome
	}

	itemLogger := logger.With().Int64("question_id", q.ID).Logger()
	itemLogger.Info().Str("question", q.Text).Msg("Processing question")

	if err := r.store.SetQuestionStatus(ctx, q.ID, store.StatusProcessing); err != nil {
		// Status tracking is advisory for visibility; the answer flow decides.
		itemLogger.Warn().Err(err).Msg("Failed to mark question processing")
	}

	invokeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	answer, err := r.invoker.Invoke(invokeCtx, q.Text)
	cancel()

	if err != nil {
		itemLogger.Error().Err(err).Msg("Agent invocation failed")
		r.setStatus(ctx, itemLogger, q.ID, store.StatusFailed)
		outcome.Status = OutcomeFailed
		outcome.Reason = ReasonInvocationError
		outcome.Detail = err.Error()
		return outcome
	}

	if answer == "" {
		itemLogger.Error().Msg("Agent returned an empty response")
		r.setStatus(ctx, itemLogger, q.ID, store.StatusFailed)
		outcome.Status = OutcomeFailed
		outcome.Reason = ReasonEmptyResponse
		return outcome
	}

	outcome.AnswerObtained = true

	payload, err := json.Marshal(map[string]string{"answer": answer})
	if err == nil {
		err = r.store.StoreAnswer(ctx, q.ID, q.Text, payload, store.AnswerApproved)
	}
	if err != nil {
		itemLogger.Error().Err(err).Msg("Failed to persist answer")
		// The answer was obtained but lost; leave the question eligible
		// so the next run reprocesses it.
		r.setStatus(ctx, itemLogger, q.ID, store.StatusApproved)
		outcome.Status = OutcomeFailed
		outcome.Reason = ReasonPersistenceError
		outcome.Detail = err.Error()
		return outcome
	}

	r.setStatus(ctx, itemLogger, q.ID, store.StatusCompleted)
	itemLogger.Info().Msg("Answer stored")

	outcome.Status = OutcomeSucceeded
	return outcome
}

func (r *Runner) setStatus(ctx context.Context, logger zerolog.Logger, id int64, status store.Status) {
	if err := r.store.SetQuestionStatus(ctx, id, status); err != nil {
		logger.Warn().Err(err).Str("status", string(status)).Msg("Failed to update question status")
	}
}

func (r *Runner) record(result *Result, outcome Outcome) {
	switch outcome.Status {
	case OutcomeSucceeded:
		result.Succeeded++
	case OutcomeSkipped:
		result.Skipped++
	case OutcomeFailed:
		result.Failed++
	}
	result.Outcomes = append(result.Outcomes, outcome)

	if r.observer != nil {
		r.observer(result.RunID, outcome)
	}
}

func newOutcomeID() string {
	id, err := gonanoid.New()
	if err != nil {
		// nanoid only fails when the system RNG does
		return uuid.New().String()
	}
	return id
}
