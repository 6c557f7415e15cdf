package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/windoze95/groceryplan-api/internal/ai"
	"github.com/windoze95/groceryplan-api/internal/models"
)

// SearchError means the web search collaborator itself failed. It is an
// infrastructure failure and the request may be retried.
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("web search unavailable: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Retryable always reports true.
func (e *SearchError) Retryable() bool { return true }

// RecipeSearcher turns an intent into a bounded list of candidate URLs.
type RecipeSearcher struct {
	SearchProvider ai.SearchProvider
}

// NewRecipeSearcher creates a RecipeSearcher.
func NewRecipeSearcher(searchProvider ai.SearchProvider) *RecipeSearcher {
	return &RecipeSearcher{SearchProvider: searchProvider}
}

// Search returns at most limit candidates in the order the provider ranked
// them. Any provider failure is returned as a *SearchError.
func (s *RecipeSearcher) Search(ctx context.Context, intent models.StructuredIntent, limit int) ([]models.CandidateURL, error) {
	if limit <= 0 {
		return nil, nil
	}

	results, err := s.SearchProvider.SearchRecipes(ctx, BuildSearchQuery(intent), limit)
	if err != nil {
		return nil, &SearchError{Err: err}
	}

	candidates := make([]models.CandidateURL, 0, min(len(results), limit))
	for _, r := range results {
		if len(candidates) == limit {
			break
		}
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		candidates = append(candidates, models.CandidateURL{
			Index: len(candidates),
			URL:   strings.TrimSpace(r.URL),
			Title: r.Title,
		})
	}
	return candidates, nil
}

// BuildSearchQuery renders an intent as a web search query such as
// "vegan mexican black beans dinner recipe".
func BuildSearchQuery(intent models.StructuredIntent) string {
	var parts []string
	parts = append(parts, intent.DietaryRestrictions...)
	if len(intent.CuisinePreferences) > 0 {
		parts = append(parts, strings.ToLower(intent.CuisinePreferences[0]))
	}
	parts = append(parts, intent.RequiredIngredients...)
	if len(intent.MealTypes) > 0 {
		parts = append(parts, intent.MealTypes[0])
	}
	parts = append(parts, "recipe")
	return strings.Join(parts, " ")
}
