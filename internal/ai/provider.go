package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// maxExtractChars caps the page text sent to a model for recipe extraction.
const maxExtractChars = 24000

// TextProvider handles all text tasks: free-text completion for request
// interpretation and structured recipe extraction from page text.
type TextProvider interface {
	// Complete returns the raw model reply to a system and user prompt.
	Complete(ctx context.Context, system, prompt string) (string, error)
	// ExtractRecipeFromText pulls one recipe out of readable page text.
	ExtractRecipeFromText(ctx context.Context, pageURL, text string) (*RecipeResult, error)
}

// SearchProvider handles web recipe search (Brave + Google fallback).
type SearchProvider interface {
	SearchRecipes(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// RecipeResult is the structured output of a recipe extraction.
// The validate tags are checked before a result is saved to the corpus.
type RecipeResult struct {
	Name            string             `json:"name" validate:"required,max=255"`
	Description     string             `json:"description"`
	Cuisine         string             `json:"cuisine" validate:"max=64"`
	MealType        string             `json:"meal_type" validate:"max=32"`
	PrepTimeMinutes int                `json:"prep_time_minutes" validate:"gte=0"`
	Servings        int                `json:"servings" validate:"gte=0"`
	Ingredients     []IngredientResult `json:"ingredients" validate:"required,min=1,dive"`
	Instructions    []string           `json:"instructions"`
	DietaryTags     []string           `json:"dietary_tags"`
}

// IngredientResult is a single ingredient in the extraction output.
type IngredientResult struct {
	Name     string  `json:"name" validate:"required,max=255"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Unit     string  `json:"unit" validate:"max=32"`
	Notes    string  `json:"notes"`
	Category string  `json:"category" validate:"max=32"`
}

// SearchResult is a single web search result.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"source_url"`
	Source      string `json:"source_domain"`
	Description string `json:"description"`
}

// recipeSchema is the JSON schema shared by tool-calling providers.
var recipeSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"name":              map[string]interface{}{"type": "string", "description": "Recipe title, empty when the page has no recipe"},
		"description":       map[string]interface{}{"type": "string"},
		"cuisine":           map[string]interface{}{"type": "string", "description": "Cuisine such as Mexican or Italian"},
		"meal_type":         map[string]interface{}{"type": "string", "enum": []string{"breakfast", "lunch", "dinner", "snack", ""}},
		"prep_time_minutes": map[string]interface{}{"type": "integer"},
		"servings":          map[string]interface{}{"type": "integer"},
		"ingredients": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":     map[string]interface{}{"type": "string", "description": "Ingredient name without amount or unit"},
					"quantity": map[string]interface{}{"type": "number"},
					"unit":     map[string]interface{}{"type": "string"},
					"notes":    map[string]interface{}{"type": "string", "description": "Preparation notes such as diced"},
					"category": map[string]interface{}{"type": "string", "enum": []string{"produce", "dairy", "meat", "pantry", "spices", "bakery", ""}},
				},
				"required": []string{"name"},
			},
		},
		"instructions": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"dietary_tags": map[string]interface{}{
			"type":        "array",
			"description": "Dietary labels that clearly apply, such as vegan or gluten-free",
			"items":       map[string]interface{}{"type": "string"},
		},
	},
	"required": []string{"name", "ingredients"},
}

const recipeToolName = "record_recipe"

// decodeRecipeResult parses a JSON recipe object produced by a model.
func decodeRecipeResult(raw []byte) (*RecipeResult, error) {
	var result RecipeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse recipe result: %w", err)
	}
	if strings.TrimSpace(result.Name) == "" {
		return nil, fmt.Errorf("model found no recipe")
	}
	return &result, nil
}

func truncateText(text string) string {
	if len(text) <= maxExtractChars {
		return text
	}
	return strings.ToValidUTF8(text[:maxExtractChars], "")
}
