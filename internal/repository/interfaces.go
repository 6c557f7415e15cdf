package repository

import (
	"context"

	"github.com/windoze95/groceryplan-api/internal/models"
)

// RecipeQuery narrows a corpus read. Empty lists do not constrain.
type RecipeQuery struct {
	MealTypes []string
	Cuisines  []string
}

// CorpusRepo is the interface for recipe corpus operations. Reads return
// recipes in ascending ID order with ingredients and tags loaded.
type CorpusRepo interface {
	ListRecipes(ctx context.Context) ([]models.Recipe, error)
	QueryRecipes(ctx context.Context, q RecipeQuery) ([]models.Recipe, error)
	GetRecipeByID(ctx context.Context, recipeID uint) (*models.Recipe, error)
	GetRecipeBySourceURL(ctx context.Context, sourceURL string) (*models.Recipe, error)
	SourceURLExists(ctx context.Context, sourceURL string) (bool, error)
	CreateRecipe(ctx context.Context, recipe *models.Recipe) error
	CountRecipes(ctx context.Context) (int64, error)
}
