// Package router classifies an incoming question to the analyst agent
// category best suited to answer it, using a single lightweight LLM
// call with a constrained prompt.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/maulida/sleuth/pkg/agent"
	"github.com/rs/zerolog"
)

// Known analyst categories.
const (
	CategorySupabaseAnalyst   = "supabase_analyst"
	CategoryClickHouseAnalyst = "clickhouse_analyst"
)

const routingPrompt = `You are an orchestrator that routes user questions to the correct analyst.

Available analysts:
- supabase_analyst: handles questions about the application database, including users, questionnaires, audits, approvals, and answer records.
- clickhouse_analyst: handles analytical questions over event and metrics data, including aggregations, trends, funnels, and time-series analysis.

Respond with EXACTLY one analyst name and nothing else.`

// Config holds classifier settings.
type Config struct {
	// Model is the lightweight model used for routing decisions.
	Model string

	// DefaultCategory is returned when the model output does not match
	// any known category.
	DefaultCategory string

	Profiles []agent.AuthProfile
	Factory  agent.ProviderCreator
	Logger   zerolog.Logger
}

// Classifier routes question text to an agent category. Classification
// never fails the caller: on any error or unrecognized output it falls
// back to the default category.
type Classifier struct {
	model           string
	defaultCategory string
	profiles        []agent.AuthProfile
	factory         agent.ProviderCreator
	logger          zerolog.Logger
}

// NewClassifier creates a question classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("routing model is required")
	}
	if cfg.DefaultCategory == "" {
		return nil, fmt.Errorf("default category is required")
	}
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}
	if cfg.Factory == nil {
		cfg.Factory = &agent.ProviderFactory{}
	}

	return &Classifier{
		model:           cfg.Model,
		defaultCategory: cfg.DefaultCategory,
		profiles:        cfg.Profiles,
		factory:         cfg.Factory,
		logger:          cfg.Logger.With().Str("component", "router").Logger(),
	}, nil
}

// Classify returns the analyst category for the given question text.
func (c *Classifier) Classify(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return c.defaultCategory
	}

	provider, err := c.factory.NewProvider(c.profiles[0])
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to create routing provider, using default category")
		return c.defaultCategory
	}

	response, err := provider.Call(ctx, agent.Request{
		Model:        c.model,
		SystemPrompt: routingPrompt,
		Messages: []agent.Message{
			{Role: "user", Content: text},
		},
		MaxTokens: 16,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Routing call failed, using default category")
		return c.defaultCategory
	}

	category := normalizeCategory(response.Content)
	switch category {
	case CategorySupabaseAnalyst, CategoryClickHouseAnalyst:
		c.logger.Debug().Str("category", category).Msg("Question classified")
		return category
	}

	c.logger.Warn().Str("output", response.Content).Msg("Unrecognized routing output, using default category")
	return c.defaultCategory
}

// normalizeCategory strips whitespace, code fences, and quotes that
// models habitually wrap short answers in.
func normalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	return strings.ToLower(s)
}
