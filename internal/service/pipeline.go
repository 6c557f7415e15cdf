package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/models"
	"go.uber.org/zap"
)

// defaultMealCount applies when neither the intent nor the config sets one.
const defaultMealCount = 5

// QueryResult is everything one query produces.
type QueryResult struct {
	Intent             models.StructuredIntent  `json:"parsed_query"`
	Recipes            []*RecipeResponse        `json:"suggested_recipes"`
	GroceryList        []models.GroceryListItem `json:"grocery_list"`
	ShoppingList       []models.GroceryListItem `json:"shopping_list"`
	TotalEstimatedCost *float64                 `json:"total_estimated_cost"`
	RecipesFromWeb     int                      `json:"recipes_from_web"`
	SearchPerformed    bool                     `json:"search_performed"`
	SearchError        string                   `json:"search_error,omitempty"`
}

// QueryPipeline composes interpretation, matching, acquisition and
// aggregation for one query.
type QueryPipeline struct {
	Cfg         *config.Config
	Interpreter *QueryInterpreter
	Matcher     *RecipeMatcher
	// Acquirer is nil when web augmentation is unavailable.
	Acquirer *RecipeAcquirer
}

// NewQueryPipeline creates a QueryPipeline.
func NewQueryPipeline(cfg *config.Config, interpreter *QueryInterpreter, matcher *RecipeMatcher, acquirer *RecipeAcquirer) *QueryPipeline {
	return &QueryPipeline{
		Cfg:         cfg,
		Interpreter: interpreter,
		Matcher:     matcher,
		Acquirer:    acquirer,
	}
}

// Run interprets query and fulfils the resulting intent.
func (p *QueryPipeline) Run(ctx context.Context, query string) (*QueryResult, error) {
	return p.RunObserved(ctx, query, nil)
}

// RunObserved is Run with acquisition progress reported to observe.
func (p *QueryPipeline) RunObserved(ctx context.Context, query string, observe OutcomeObserver) (*QueryResult, error) {
	intent := p.Interpreter.Interpret(ctx, query)
	return p.Fulfil(ctx, intent, observe)
}

// Fulfil matches intent against the corpus, tops the set up from the web
// when augmentation is enabled and the corpus is short, and aggregates the
// grocery list. A search failure degrades to corpus-only results unless
// strict web search is configured, in which case the *SearchError is returned.
func (p *QueryPipeline) Fulfil(ctx context.Context, intent models.StructuredIntent, observe OutcomeObserver) (*QueryResult, error) {
	intent.Normalize()
	log := logger.Get()

	recipes, err := p.Matcher.Match(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("match recipes: %w", err)
	}

	result := &QueryResult{Intent: intent}

	desired := intent.DesiredCount(p.defaultMealCount())
	if p.augmentationEnabled() && len(recipes) < desired {
		result.SearchPerformed = true
		log.Info("corpus is short, searching the web",
			zap.Int("matched", len(recipes)),
			zap.Int("desired", desired))

		acquired, err := p.Acquirer.AcquireObserved(ctx, intent, desired-len(recipes), observe)
		if err != nil {
			var searchErr *SearchError
			if !errors.As(err, &searchErr) || p.Cfg.EnvVars.StrictWebSearch {
				return nil, err
			}
			log.Warn("web augmentation unavailable, returning corpus matches", zap.Error(err))
			result.SearchError = err.Error()
		}
		recipes = append(recipes, acquired...)
		result.RecipesFromWeb = len(acquired)
	}

	result.Recipes = ToRecipeResponses(recipes)
	result.GroceryList = Optimize(Aggregate(recipes, intent.OwnedIngredients))
	result.ShoppingList = FilterOwned(result.GroceryList)
	if cost := EstimateCost(result.GroceryList); cost > 0 {
		result.TotalEstimatedCost = &cost
	}
	return result, nil
}

func (p *QueryPipeline) augmentationEnabled() bool {
	return p.Acquirer != nil && p.Cfg != nil && p.Cfg.EnvVars.WebAugmentation
}

func (p *QueryPipeline) defaultMealCount() int {
	if p.Cfg != nil && p.Cfg.EnvVars.DefaultMealCount > 0 {
		return p.Cfg.EnvVars.DefaultMealCount
	}
	return defaultMealCount
}
