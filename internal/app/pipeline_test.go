package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/infra/adapter/persistence/memory"
	"content-pipeline/internal/infra/summarizer"
	"content-pipeline/internal/resilience/circuitbreaker"
	"content-pipeline/internal/resilience/dlq"
)

func newTestResilience() *Resilience {
	return NewResilience(memory.NewStore(), nil, circuitbreaker.DefaultConfig())
}

func TestLoadPipelineConfig(t *testing.T) {
	t.Setenv("PIPELINE_CONFIG", "/etc/pipeline.yaml")
	t.Setenv("FEEDS", "https://a.example.com/rss, ftp://mirror.example.com/rss, https://b.example.com/atom")
	t.Setenv("SCOUT_MAX_ITEMS", "-1")
	t.Setenv("SCOUT_PARALLELISM", "8")

	cfg := LoadPipelineConfig(discardLogger(), 14)

	assert.Equal(t, "/etc/pipeline.yaml", cfg.DefinitionPath)
	assert.Equal(t, []string{"https://a.example.com/rss", "https://b.example.com/atom"}, cfg.Feeds, "non-http feeds are dropped")
	assert.Equal(t, 20, cfg.ScoutMaxItems, "out of range falls back")
	assert.Equal(t, 8, cfg.ScoutParallelism)
	assert.Equal(t, 14, cfg.RetentionDays)
}

func TestBuildPipeline_DefaultDefinition(t *testing.T) {
	t.Setenv("CONTENT_FETCH_ENABLED", "false")
	r := newTestResilience()

	orch, err := BuildPipeline(discardLogger(), r, PipelineConfig{RetentionDays: 7})
	require.NoError(t, err)

	assert.Equal(t, []string{"scout", "generate", "retention"}, orch.Stages())
	assert.ElementsMatch(t, []string{"scout", "generate", "retention"}, r.Handlers.Stages())
}

func TestBuildPipeline_DefinitionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stages:
  - name: scout
    service: feed_api
    timeout: 1m
  - name: generate
    service: llm_api
    critical: true
`), 0o600))

	orch, err := BuildPipeline(discardLogger(), newTestResilience(), PipelineConfig{DefinitionPath: path})
	require.NoError(t, err)
	assert.Equal(t, []string{"scout", "generate"}, orch.Stages())
}

func TestBuildPipeline_UnknownStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stages:
  - name: publish
    service: cms_api
`), 0o600))

	_, err := BuildPipeline(discardLogger(), newTestResilience(), PipelineConfig{DefinitionPath: path})
	assert.ErrorContains(t, err, `stage "publish": no action registered`)
}

func TestBuildPipeline_HandlersAlreadyRegistered(t *testing.T) {
	r := newTestResilience()
	require.NoError(t, r.Handlers.Register("generate", func(context.Context, *entity.DeadLetterJob) error { return nil }))

	_, err := BuildPipeline(discardLogger(), r, PipelineConfig{})
	assert.ErrorIs(t, err, dlq.ErrHandlerExists)
}

func TestSummarizers(t *testing.T) {
	tests := []struct {
		name          string
		cfg           PipelineConfig
		wantPrimary   any
		wantFallbacks int
	}{
		{"none", PipelineConfig{}, summarizer.NoOp{}, 0},
		{"claude only", PipelineConfig{AnthropicAPIKey: "sk-ant"}, &summarizer.Claude{}, 0},
		{"openai only", PipelineConfig{OpenAIAPIKey: "sk-oai"}, &summarizer.OpenAI{}, 0},
		{"both", PipelineConfig{AnthropicAPIKey: "sk-ant", OpenAIAPIKey: "sk-oai"}, &summarizer.Claude{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, fallbacks := summarizers(discardLogger(), tt.cfg)

			assert.IsType(t, tt.wantPrimary, primary)
			assert.Len(t, fallbacks, tt.wantFallbacks)
		})
	}
}
