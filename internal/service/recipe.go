package service

import (
	"context"

	"github.com/windoze95/groceryplan-api/internal/models"
)

// RecipeResponse is the response object for recipe-related operations.
type RecipeResponse struct {
	ID                  uint                 `json:"id"`
	Name                string               `json:"name"`
	Description         *string              `json:"description"`
	Cuisine             *string              `json:"cuisine"`
	MealType            *string              `json:"meal_type"`
	PrepTimeMinutes     *int                 `json:"prep_time_minutes"`
	Servings            int                  `json:"servings"`
	SourceURL           *string              `json:"source_url,omitempty"`
	Ingredients         []IngredientResponse `json:"ingredients"`
	Instructions        []string             `json:"instructions"`
	DietaryRestrictions []string             `json:"dietary_restrictions"`
}

// IngredientResponse is one ingredient line of a RecipeResponse.
type IngredientResponse struct {
	IngredientName string  `json:"ingredient_name"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit"`
	Notes          *string `json:"notes"`
	Category       *string `json:"category,omitempty"`
}

// RecipeService serves corpus reads for the HTTP and CLI layers.
type RecipeService struct {
	Matcher *RecipeMatcher
}

// NewRecipeService creates a RecipeService.
func NewRecipeService(matcher *RecipeMatcher) *RecipeService {
	return &RecipeService{Matcher: matcher}
}

// ListRecipes returns the whole corpus in corpus order.
func (s *RecipeService) ListRecipes(ctx context.Context) ([]*RecipeResponse, error) {
	recipes, err := s.Matcher.All(ctx)
	if err != nil {
		return nil, err
	}
	return ToRecipeResponses(recipes), nil
}

// GetRecipeByID fetches a recipe by its ID. A missing recipe yields
// repository.NotFoundError.
func (s *RecipeService) GetRecipeByID(ctx context.Context, recipeID uint) (*RecipeResponse, error) {
	recipe, err := s.Matcher.Get(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	return ToRecipeResponse(recipe), nil
}

// ToRecipeResponses converts a recipe slice, keeping its order.
func ToRecipeResponses(recipes []models.Recipe) []*RecipeResponse {
	out := make([]*RecipeResponse, 0, len(recipes))
	for i := range recipes {
		out = append(out, ToRecipeResponse(&recipes[i]))
	}
	return out
}

// ToRecipeResponse converts a Recipe to a RecipeResponse.
func ToRecipeResponse(r *models.Recipe) *RecipeResponse {
	ingredients := make([]IngredientResponse, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		ingredients = append(ingredients, IngredientResponse{
			IngredientName: ing.Name,
			Quantity:       ing.Quantity,
			Unit:           ing.Unit,
			Notes:          optionalString(ing.Notes),
			Category:       optionalString(ing.Category),
		})
	}

	instructions := []string(r.Instructions)
	if instructions == nil {
		instructions = []string{}
	}

	return &RecipeResponse{
		ID:                  r.ID,
		Name:                r.Name,
		Description:         optionalString(r.Description),
		Cuisine:             optionalString(r.Cuisine),
		MealType:            optionalString(r.MealType),
		PrepTimeMinutes:     r.PrepTimeMinutes,
		Servings:            r.Servings,
		SourceURL:           r.SourceURL,
		Ingredients:         ingredients,
		Instructions:        instructions,
		DietaryRestrictions: r.TagNames(),
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
