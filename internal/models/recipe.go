package models

import (
	"strings"

	"gorm.io/gorm"
)

// DefaultServings is used when a recipe does not state its yield.
const DefaultServings = 4

// Recipe is the model for a recipe in the local corpus. SourceURL is nil for
// seeded recipes and set for recipes acquired from the web.
type Recipe struct {
	gorm.Model
	Name                string               `gorm:"not null"`
	Description         string
	Cuisine             string               `gorm:"index"`
	MealType            string               `gorm:"index"`
	PrepTimeMinutes     *int
	Servings            int                  `gorm:"not null;default:4"`
	SourceURL           *string              `gorm:"uniqueIndex"`
	Instructions        StringList           `gorm:"type:text"`
	Ingredients         []RecipeIngredient   `gorm:"foreignKey:RecipeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	DietaryRestrictions []DietaryRestriction `gorm:"many2many:recipe_dietary_restrictions;"`
}

// RecipeIngredient is one line of a recipe's ingredient list. Position keeps
// the order the recipe lists them in.
type RecipeIngredient struct {
	ID       uint    `gorm:"primarykey"`
	RecipeID uint    `gorm:"index;not null"`
	Position int     `gorm:"not null"`
	Name     string  `gorm:"not null"`
	Quantity float64 `gorm:"not null;default:0"`
	Unit     string
	Notes    string
	Category string
}

// DietaryRestriction is a named tag such as "vegan". Tags are shared across
// recipes through the recipe_dietary_restrictions join table.
type DietaryRestriction struct {
	ID          uint   `gorm:"primarykey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
}

// TagNames returns the lower-cased dietary restriction names of the recipe.
func (r *Recipe) TagNames() []string {
	names := make([]string, 0, len(r.DietaryRestrictions))
	for _, dr := range r.DietaryRestrictions {
		names = append(names, NormalizeTerm(dr.Name))
	}
	return names
}

// HasAllTags reports whether the recipe carries every tag in required.
// Comparison is case-insensitive and ignores surrounding whitespace.
func (r *Recipe) HasAllTags(required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(r.DietaryRestrictions))
	for _, name := range r.TagNames() {
		have[name] = struct{}{}
	}
	for _, want := range required {
		want = NormalizeTerm(want)
		if want == "" {
			continue
		}
		if _, ok := have[want]; !ok {
			return false
		}
	}
	return true
}

// SourceURLValue returns the source URL or an empty string for seeded recipes.
func (r *Recipe) SourceURLValue() string {
	if r.SourceURL == nil {
		return ""
	}
	return *r.SourceURL
}

// NormalizeTerm lower-cases and trims a term used for matching.
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
