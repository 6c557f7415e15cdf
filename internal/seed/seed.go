// Package seed loads the starter recipe corpus from YAML.
package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/repository"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a seed file.
type File struct {
	DietaryRestrictions []Tag    `yaml:"dietary_restrictions"`
	Recipes             []Recipe `yaml:"recipes"`
}

// Tag describes a dietary restriction.
type Tag struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Recipe is a seed recipe.
type Recipe struct {
	Name                string       `yaml:"name"`
	Description         string       `yaml:"description"`
	Cuisine             string       `yaml:"cuisine"`
	MealType            string       `yaml:"meal_type"`
	PrepTimeMinutes     *int         `yaml:"prep_time_minutes"`
	Servings            int          `yaml:"servings"`
	DietaryRestrictions []string     `yaml:"dietary_restrictions"`
	Instructions        []string     `yaml:"instructions"`
	Ingredients         []Ingredient `yaml:"ingredients"`
}

// Ingredient is one seed ingredient line.
type Ingredient struct {
	Name     string  `yaml:"name"`
	Quantity float64 `yaml:"quantity"`
	Unit     string  `yaml:"unit"`
	Notes    string  `yaml:"notes"`
	Category string  `yaml:"category"`
}

// Parse decodes a seed file.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}
	for i, r := range f.Recipes {
		if r.Name == "" {
			return nil, fmt.Errorf("seed recipe %d has no name", i)
		}
	}
	return &f, nil
}

// ToModels converts the seed recipes to corpus models. Tag descriptions come
// from the dietary_restrictions section.
func (f *File) ToModels() []models.Recipe {
	descriptions := make(map[string]string, len(f.DietaryRestrictions))
	for _, t := range f.DietaryRestrictions {
		descriptions[models.NormalizeTerm(t.Name)] = t.Description
	}

	out := make([]models.Recipe, 0, len(f.Recipes))
	for _, r := range f.Recipes {
		recipe := models.Recipe{
			Name:            r.Name,
			Description:     r.Description,
			Cuisine:         r.Cuisine,
			MealType:        r.MealType,
			PrepTimeMinutes: r.PrepTimeMinutes,
			Servings:        r.Servings,
			Instructions:    models.StringList(r.Instructions),
		}
		for _, name := range r.DietaryRestrictions {
			key := models.NormalizeTerm(name)
			recipe.DietaryRestrictions = append(recipe.DietaryRestrictions, models.DietaryRestriction{
				Name:        key,
				Description: descriptions[key],
			})
		}
		for i, ing := range r.Ingredients {
			recipe.Ingredients = append(recipe.Ingredients, models.RecipeIngredient{
				Position: i,
				Name:     ing.Name,
				Quantity: ing.Quantity,
				Unit:     ing.Unit,
				Notes:    ing.Notes,
				Category: ing.Category,
			})
		}
		out = append(out, recipe)
	}
	return out
}

// LoadFile seeds the corpus from path when the corpus is empty. It returns
// the number of recipes created.
func LoadFile(ctx context.Context, repo repository.CorpusRepo, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return 0, err
	}
	return Load(ctx, repo, f)
}

// Load writes the seed recipes when the corpus is empty.
func Load(ctx context.Context, repo repository.CorpusRepo, f *File) (int, error) {
	count, err := repo.CountRecipes(ctx)
	if err != nil {
		return 0, fmt.Errorf("count recipes: %w", err)
	}
	if count > 0 {
		logger.Get().Info("corpus already populated, skipping seed", zap.Int64("recipes", count))
		return 0, nil
	}

	created := 0
	for _, recipe := range f.ToModels() {
		recipe := recipe
		if err := repo.CreateRecipe(ctx, &recipe); err != nil {
			return created, fmt.Errorf("seed recipe %q: %w", recipe.Name, err)
		}
		logger.Get().Info("seeded recipe", zap.Uint("recipe_id", recipe.ID), zap.String("name", recipe.Name))
		created++
	}
	return created, nil
}
