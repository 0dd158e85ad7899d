package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/maulida/sleuth/pkg/agent"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	content string
	err     error
	calls   int
}

func (f *fakeProvider) Call(ctx context.Context, request agent.Request) (*agent.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Response{Content: f.content}, nil
}

func (f *fakeProvider) Provider() string { return "fake" }

type fakeFactory struct {
	provider *fakeProvider
	err      error
}

func (f *fakeFactory) NewProvider(profile agent.AuthProfile) (agent.LLMProvider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

func setupTestClassifier(t *testing.T, factory agent.ProviderCreator) *Classifier {
	t.Helper()
	classifier, err := NewClassifier(Config{
		Model:           "llama3-70b-8192",
		DefaultCategory: CategoryClickHouseAnalyst,
		Profiles:        []agent.AuthProfile{{ID: "p1", Provider: "openai", APIKey: "sk-test"}},
		Factory:         factory,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)
	return classifier
}

func TestNewClassifier_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing model", func(c *Config) { c.Model = "" }},
		{"missing default category", func(c *Config) { c.DefaultCategory = "" }},
		{"no profiles", func(c *Config) { c.Profiles = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Model:           "m",
				DefaultCategory: CategoryClickHouseAnalyst,
				Profiles:        []agent.AuthProfile{{Provider: "openai"}},
			}
			tt.mutate(&cfg)
			_, err := NewClassifier(cfg)
			assert.Error(t, err)
		})
	}
}

func TestClassify_KnownCategories(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"supabase plain", "supabase_analyst", CategorySupabaseAnalyst},
		{"clickhouse plain", "clickhouse_analyst", CategoryClickHouseAnalyst},
		{"surrounded by whitespace", "  supabase_analyst\n", CategorySupabaseAnalyst},
		{"wrapped in backticks", "`clickhouse_analyst`", CategoryClickHouseAnalyst},
		{"wrapped in quotes", `"supabase_analyst"`, CategorySupabaseAnalyst},
		{"uppercased", "SUPABASE_ANALYST", CategorySupabaseAnalyst},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := setupTestClassifier(t, &fakeFactory{provider: &fakeProvider{content: tt.content}})
			got := classifier.Classify(context.Background(), "which users signed up last week")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_FallsBackToDefault(t *testing.T) {
	t.Run("unrecognized output", func(t *testing.T) {
		classifier := setupTestClassifier(t, &fakeFactory{provider: &fakeProvider{content: "I think the supabase analyst should handle this"}})
		assert.Equal(t, CategoryClickHouseAnalyst, classifier.Classify(context.Background(), "some question"))
	})

	t.Run("provider call error", func(t *testing.T) {
		classifier := setupTestClassifier(t, &fakeFactory{provider: &fakeProvider{err: fmt.Errorf("rate limit exceeded")}})
		assert.Equal(t, CategoryClickHouseAnalyst, classifier.Classify(context.Background(), "some question"))
	})

	t.Run("factory error", func(t *testing.T) {
		classifier := setupTestClassifier(t, &fakeFactory{err: fmt.Errorf("unsupported provider")})
		assert.Equal(t, CategoryClickHouseAnalyst, classifier.Classify(context.Background(), "some question"))
	})
}

func TestClassify_EmptyTextSkipsCall(t *testing.T) {
	provider := &fakeProvider{content: "supabase_analyst"}
	classifier := setupTestClassifier(t, &fakeFactory{provider: provider})

	got := classifier.Classify(context.Background(), "   ")

	assert.Equal(t, CategoryClickHouseAnalyst, got)
	assert.Equal(t, 0, provider.calls)
}
