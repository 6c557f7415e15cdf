package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecipeRepository is a gorm-backed CorpusRepo.
type RecipeRepository struct {
	DB *gorm.DB
}

// NewRecipeRepository creates a new RecipeRepository.
func NewRecipeRepository(db *gorm.DB) *RecipeRepository {
	return &RecipeRepository{DB: db}
}

// withAssociations loads ingredients in list order and dietary tags.
func withAssociations(db *gorm.DB) *gorm.DB {
	return db.Preload("Ingredients", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Preload("DietaryRestrictions")
}

// ListRecipes returns every recipe in the corpus in insertion order.
func (r *RecipeRepository) ListRecipes(ctx context.Context) ([]models.Recipe, error) {
	return r.QueryRecipes(ctx, RecipeQuery{})
}

// QueryRecipes returns recipes whose meal type and cuisine fall within the
// query sets, compared case-insensitively, in ascending ID order.
func (r *RecipeRepository) QueryRecipes(ctx context.Context, q RecipeQuery) ([]models.Recipe, error) {
	tx := withAssociations(r.DB.WithContext(ctx))
	if terms := lowerTerms(q.MealTypes); len(terms) > 0 {
		tx = tx.Where("LOWER(TRIM(meal_type)) IN ?", terms)
	}
	if terms := lowerTerms(q.Cuisines); len(terms) > 0 {
		tx = tx.Where("LOWER(TRIM(cuisine)) IN ?", terms)
	}

	var recipes []models.Recipe
	if err := tx.Order("id ASC").Find(&recipes).Error; err != nil {
		logger.Get().Error("failed to query recipes", zap.Error(err))
		return nil, err
	}
	return recipes, nil
}

// GetRecipeByID retrieves a recipe by its ID.
func (r *RecipeRepository) GetRecipeByID(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	var recipe models.Recipe
	err := withAssociations(r.DB.WithContext(ctx)).First(&recipe, recipeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{message: "Recipe not found"}
		}
		logger.Get().Error("failed to retrieve recipe", zap.Uint("recipe_id", recipeID), zap.Error(err))
		return nil, err
	}
	return &recipe, nil
}

// GetRecipeBySourceURL retrieves a web-acquired recipe by its source URL.
func (r *RecipeRepository) GetRecipeBySourceURL(ctx context.Context, sourceURL string) (*models.Recipe, error) {
	var recipe models.Recipe
	err := withAssociations(r.DB.WithContext(ctx)).
		Where("source_url = ?", sourceURL).
		First(&recipe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFoundError{message: "Recipe not found"}
		}
		return nil, err
	}
	return &recipe, nil
}

// SourceURLExists reports whether a recipe with sourceURL is stored.
func (r *RecipeRepository) SourceURLExists(ctx context.Context, sourceURL string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).
		Model(&models.Recipe{}).
		Where("source_url = ?", sourceURL).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountRecipes returns the number of recipes in the corpus.
func (r *RecipeRepository) CountRecipes(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.Recipe{}).Count(&count).Error
	return count, err
}

// CreateRecipe stores a recipe with its ingredients in one transaction.
// Dietary tags are matched to existing rows by lower-cased name and created
// when missing. A second recipe with the same source URL yields DuplicateError.
func (r *RecipeRepository) CreateRecipe(ctx context.Context, recipe *models.Recipe) error {
	if recipe.Servings <= 0 {
		recipe.Servings = models.DefaultServings
	}
	for i := range recipe.Ingredients {
		recipe.Ingredients[i].Position = i
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := findOrCreateTags(tx, recipe.DietaryRestrictions)
		if err != nil {
			return err
		}
		recipe.DietaryRestrictions = tags

		// Tags already exist at this point; only the join rows are written.
		return tx.Omit("DietaryRestrictions.*").Create(recipe).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return DuplicateError{SourceURL: recipe.SourceURLValue()}
		}
		logger.Get().Error("failed to create recipe", zap.String("name", recipe.Name), zap.Error(err))
		return fmt.Errorf("create recipe: %w", err)
	}
	return nil
}

func findOrCreateTags(tx *gorm.DB, in []models.DietaryRestriction) ([]models.DietaryRestriction, error) {
	out := make([]models.DietaryRestriction, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, dr := range in {
		name := models.NormalizeTerm(dr.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		tag := models.DietaryRestriction{Name: name, Description: dr.Description}
		if err := tx.Where(models.DietaryRestriction{Name: name}).
			Attrs(models.DietaryRestriction{Description: dr.Description}).
			FirstOrCreate(&tag).Error; err != nil {
			return nil, fmt.Errorf("find or create dietary restriction %q: %w", name, err)
		}
		out = append(out, tag)
	}
	return out, nil
}

func lowerTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
