package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Classifier routes question text to an agent category.
type Classifier interface {
	Classify(ctx context.Context, text string) string
}

// AskInvoker is the single-call surface a dispatcher routes to.
type AskInvoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Dispatcher answers ad-hoc questions by classifying them and handing
// them to the specialist invoker for the resulting category.
type Dispatcher struct {
	classifier Classifier
	invokers   map[string]AskInvoker
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher over per-category invokers.
func NewDispatcher(classifier Classifier, invokers map[string]AskInvoker, logger zerolog.Logger) (*Dispatcher, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if len(invokers) == 0 {
		return nil, fmt.Errorf("at least one invoker is required")
	}

	return &Dispatcher{
		classifier: classifier,
		invokers:   invokers,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Ask classifies the question and invokes the matching specialist.
func (d *Dispatcher) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	category := d.classifier.Classify(ctx, question)
	invoker, ok := d.invokers[category]
	if !ok {
		return "", fmt.Errorf("no agent configured for category %q", category)
	}

	d.logger.Info().Str("category", category).Msg("Dispatching question")
	return invoker.Invoke(ctx, question)
}
