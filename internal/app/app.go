// Package app assembles the corpus, site policy, acquisition and query
// pipeline from configuration. The HTTP server and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/windoze95/groceryplan-api/internal/ai"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/policy"
	"github.com/windoze95/groceryplan-api/internal/repository"
	"github.com/windoze95/groceryplan-api/internal/s3"
	"github.com/windoze95/groceryplan-api/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired components.
type App struct {
	Cfg      *config.Config
	Repo     repository.CorpusRepo
	Gate     *policy.Gate
	Acquirer *service.RecipeAcquirer
	Pipeline *service.QueryPipeline
	Recipes  *service.RecipeService
}

// New wires every component against database. Web augmentation is left off
// when no search backend has credentials; single-URL fetches still work.
func New(ctx context.Context, cfg *config.Config, database *gorm.DB) (*App, error) {
	log := logger.Get()

	textProvider, err := ai.NewTextProvider(cfg)
	if err != nil {
		return nil, err
	}
	if textProvider == nil {
		log.Info("no AI provider configured, using rule-based interpretation and JSON-LD extraction only")
	}

	repo := repository.NewRecipeRepository(database)

	gate := policy.NewGate(policy.Options{
		Sites:         cfg.EnvVars.SupportedSites,
		UserAgent:     cfg.EnvVars.UserAgent,
		RobotsTimeout: cfg.EnvVars.RobotsTimeout,
		MinInterval:   cfg.EnvVars.HostMinInterval,
	})

	var archiver service.PageArchiver
	if cfg.ArchiveEnabled() {
		pageArchiver, err := s3.NewPageArchiver(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("page archive: %w", err)
		}
		archiver = pageArchiver
		log.Info("archiving fetched pages", zap.String("bucket", cfg.EnvVars.S3Bucket))
	}

	searchProvider := ai.NewWebSearchProvider(cfg.EnvVars.GoogleSearchKey, cfg.EnvVars.GoogleSearchCX, cfg.EnvVars.BraveSearchKey)

	acquirer := service.NewRecipeAcquirer(cfg, repo, gate,
		service.NewRecipeSearcher(searchProvider),
		service.NewHTTPFetcher(gate.UserAgent(), cfg.EnvVars.FetchTimeout),
		service.NewRecipeExtractor(textProvider),
		archiver,
	)

	pipelineAcquirer := acquirer
	if !searchProvider.Configured() {
		log.Warn("no web search credentials, queries are answered from the corpus only")
		pipelineAcquirer = nil
	}

	matcher := service.NewRecipeMatcher(repo)
	return &App{
		Cfg:      cfg,
		Repo:     repo,
		Gate:     gate,
		Acquirer: acquirer,
		Pipeline: service.NewQueryPipeline(cfg, service.NewQueryInterpreter(cfg, textProvider), matcher, pipelineAcquirer),
		Recipes:  service.NewRecipeService(matcher),
	}, nil
}
