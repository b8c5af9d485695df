package app

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"content-pipeline/internal/domain/entity"
	"content-pipeline/internal/infra/fetcher"
	"content-pipeline/internal/infra/scraper"
	"content-pipeline/internal/infra/summarizer"
	pkgconfig "content-pipeline/internal/pkg/config"
	"content-pipeline/internal/usecase/pipeline"
	"content-pipeline/pkg/config"
)

// PipelineConfig collects the stage settings read from the environment.
//
// Environment variables:
//   - PIPELINE_CONFIG: YAML stage definition (default: built-in scout, generate, retention)
//   - FEEDS: comma-separated RSS/Atom URLs
//   - SCOUT_MAX_ITEMS: items handed to generate, newest first (default 20)
//   - SCOUT_PARALLELISM: concurrent feed fetches (default 5)
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: summarizer credentials
type PipelineConfig struct {
	DefinitionPath   string
	Feeds            []string
	ScoutMaxItems    int
	ScoutParallelism int
	RetentionDays    int
	AnthropicAPIKey  string
	OpenAIAPIKey     string
}

// LoadPipelineConfig reads PipelineConfig. retentionDays comes from the
// worker configuration.
func LoadPipelineConfig(logger *slog.Logger, retentionDays int) PipelineConfig {
	var warnings []string
	load := func(r pkgconfig.ConfigLoadResult) interface{} {
		warnings = append(warnings, r.Warnings...)
		return r.Value
	}
	between := func(lo, hi int) func(int) error {
		return func(n int) error { return pkgconfig.ValidateIntRange(n, lo, hi) }
	}

	cfg := PipelineConfig{
		DefinitionPath:   os.Getenv("PIPELINE_CONFIG"),
		Feeds:            validFeeds(logger, config.GetEnvStringList("FEEDS", nil)),
		ScoutMaxItems:    load(pkgconfig.LoadEnvInt("SCOUT_MAX_ITEMS", 20, between(0, 500))).(int),
		ScoutParallelism: load(pkgconfig.LoadEnvInt("SCOUT_PARALLELISM", 5, between(1, 50))).(int),
		RetentionDays:    retentionDays,
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
	}
	for _, w := range warnings {
		logger.Warn("pipeline configuration", slog.String("warning", w))
	}
	if len(cfg.Feeds) == 0 {
		logger.Warn("FEEDS is empty, the scout stage will fail on every run")
	}
	return cfg
}

// validFeeds drops entries that are not absolute http(s) URLs.
func validFeeds(logger *slog.Logger, feeds []string) []string {
	out := make([]string, 0, len(feeds))
	for _, f := range feeds {
		if err := entity.ValidateFeedURL(f); err != nil {
			logger.Warn("ignoring invalid feed URL", slog.String("feed", f), slog.Any("error", err))
			continue
		}
		out = append(out, f)
	}
	return out
}

// BuildPipeline creates the orchestrator for cfg and registers its DLQ
// retry handlers with r.Handlers.
func BuildPipeline(logger *slog.Logger, r *Resilience, cfg PipelineConfig) (*pipeline.Orchestrator, error) {
	def, err := pipeline.LoadDefinition(cfg.DefinitionPath)
	if err != nil {
		return nil, err
	}

	stages, err := def.Build(StageActions(logger, r, cfg))
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	orch := pipeline.NewOrchestrator(r.Executor, r.Queue, r.Errors, stages, pipeline.WithLogger(logger))
	if err := orch.RegisterRetryHandlers(r.Handlers); err != nil {
		return nil, fmt.Errorf("register dlq handlers: %w", err)
	}
	logger.Info("pipeline ready", slog.Any("stages", orch.Stages()))
	return orch, nil
}

// StageActions binds the built-in stages to real infrastructure.
func StageActions(logger *slog.Logger, r *Resilience, cfg PipelineConfig) map[string]pipeline.Actions {
	feeds := scraper.NewRSSFetcher(newHTTPClient())

	scoutCfg := pipeline.ScoutConfig{
		Feeds:       cfg.Feeds,
		Parallelism: cfg.ScoutParallelism,
		MaxItems:    cfg.ScoutMaxItems,
	}
	var content pipeline.ContentFetcher
	if fetchCfg := fetcher.LoadConfigFromEnv(logger); fetchCfg.Enabled {
		content = fetcher.NewReadabilityFetcher(fetchCfg)
		scoutCfg.EnrichBelow = fetchCfg.Threshold
		logger.Info("content enrichment enabled",
			slog.Int("threshold", fetchCfg.Threshold),
			slog.Duration("timeout", fetchCfg.Timeout))
	}

	primary, fallbacks := summarizers(logger, cfg)
	genCfg := pipeline.GenerateConfig{Source: "scout", MaxItems: cfg.ScoutMaxItems}
	generate := pipeline.Actions{Action: pipeline.GenerateAction(primary, genCfg)}
	for _, s := range fallbacks {
		generate.Fallbacks = append(generate.Fallbacks, pipeline.GenerateAction(s, genCfg))
	}

	return map[string]pipeline.Actions{
		"scout":     {Action: pipeline.ScoutAction(feeds, content, scoutCfg)},
		"generate":  generate,
		"retention": {Action: pipeline.RetentionAction(r.Queue, cfg.RetentionDays)},
	}
}

// summarizers returns Claude as primary and OpenAI as fallback, whichever
// have credentials. With neither, summaries are plain truncations.
func summarizers(logger *slog.Logger, cfg PipelineConfig) (pipeline.Summarizer, []pipeline.Summarizer) {
	var available []pipeline.Summarizer
	if cfg.AnthropicAPIKey != "" {
		available = append(available, summarizer.NewClaude(cfg.AnthropicAPIKey,
			summarizer.LoadConfig(logger, summarizer.DefaultClaudeModel)))
		logger.Info("summarizer configured", slog.String("provider", "claude"))
	}
	if cfg.OpenAIAPIKey != "" {
		available = append(available, summarizer.NewOpenAI(cfg.OpenAIAPIKey,
			summarizer.LoadConfig(logger, summarizer.DefaultOpenAIModel)))
		logger.Info("summarizer configured", slog.String("provider", "openai"))
	}
	if len(available) == 0 {
		logger.Warn("no LLM credentials configured, summaries are truncated article text")
		return summarizer.NewNoOp(), nil
	}
	return available[0], available[1:]
}

// newHTTPClient creates the feed client. TLS 1.2+ is enforced.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
