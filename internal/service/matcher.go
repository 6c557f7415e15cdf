package service

import (
	"context"

	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/repository"
)

// RecipeMatcher selects corpus recipes for an intent. Selection is two
// stages: a filter that keeps every recipe satisfying all of the intent's
// constraints, then a prefix take of the desired count. Nothing is ranked;
// the corpus order (ascending ID, which is insertion order) is kept.
type RecipeMatcher struct {
	Repo repository.CorpusRepo
}

// NewRecipeMatcher creates a RecipeMatcher.
func NewRecipeMatcher(repo repository.CorpusRepo) *RecipeMatcher {
	return &RecipeMatcher{Repo: repo}
}

// Match returns the corpus recipes matching intent, truncated to its meal count.
func (m *RecipeMatcher) Match(ctx context.Context, intent models.StructuredIntent) ([]models.Recipe, error) {
	// The store narrows by meal type and cuisine; FilterRecipes still applies
	// every predicate so the result does not depend on the store doing so.
	candidates, err := m.Repo.QueryRecipes(ctx, repository.RecipeQuery{
		MealTypes: intent.MealTypes,
		Cuisines:  intent.CuisinePreferences,
	})
	if err != nil {
		return nil, err
	}
	return TruncateRecipes(FilterRecipes(candidates, intent), intent.MealCount), nil
}

// Get returns one recipe or a repository.NotFoundError.
func (m *RecipeMatcher) Get(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	return m.Repo.GetRecipeByID(ctx, recipeID)
}

// All returns the whole corpus in corpus order.
func (m *RecipeMatcher) All(ctx context.Context) ([]models.Recipe, error) {
	return m.Repo.ListRecipes(ctx)
}

type recipePredicate func(*models.Recipe) bool

// intentPredicates builds one predicate per constraint the intent sets.
func intentPredicates(intent models.StructuredIntent) []recipePredicate {
	var preds []recipePredicate

	if len(intent.MealTypes) > 0 {
		allowed := termSet(intent.MealTypes)
		preds = append(preds, func(r *models.Recipe) bool {
			_, ok := allowed[models.NormalizeTerm(r.MealType)]
			return ok
		})
	}

	if len(intent.DietaryRestrictions) > 0 {
		required := intent.DietaryRestrictions
		preds = append(preds, func(r *models.Recipe) bool {
			return r.HasAllTags(required)
		})
	}

	if len(intent.CuisinePreferences) > 0 {
		allowed := termSet(intent.CuisinePreferences)
		preds = append(preds, func(r *models.Recipe) bool {
			_, ok := allowed[models.NormalizeTerm(r.Cuisine)]
			return ok
		})
	}

	return preds
}

// FilterRecipes keeps the recipes satisfying every constraint of intent, in
// their original order. Dietary restrictions are a subset test: a recipe must
// carry all of them.
func FilterRecipes(recipes []models.Recipe, intent models.StructuredIntent) []models.Recipe {
	preds := intentPredicates(intent)
	out := make([]models.Recipe, 0, len(recipes))
	for i := range recipes {
		if matchesAll(&recipes[i], preds) {
			out = append(out, recipes[i])
		}
	}
	return out
}

func matchesAll(r *models.Recipe, preds []recipePredicate) bool {
	for _, p := range preds {
		if !p(r) {
			return false
		}
	}
	return true
}

// TruncateRecipes returns the first *limit recipes, or all of them when
// limit is nil.
func TruncateRecipes(recipes []models.Recipe, limit *int) []models.Recipe {
	if limit == nil || *limit < 0 || *limit >= len(recipes) {
		return recipes
	}
	return recipes[:*limit]
}

func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		if t = models.NormalizeTerm(t); t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}
