package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/windoze95/groceryplan-api/internal/models"
)

// dietaryKeywords maps phrases to canonical restriction names. The order is
// the order restrictions appear in a fallback intent.
var dietaryKeywords = []struct {
	phrase string
	tag    string
}{
	{"vegan", "vegan"},
	{"vegetarian", "vegetarian"},
	{"gluten-free", "gluten-free"},
	{"gluten free", "gluten-free"},
	{"dairy-free", "dairy-free"},
	{"dairy free", "dairy-free"},
	{"keto", "keto"},
	{"paleo", "paleo"},
}

var mealKeywords = []string{"breakfast", "lunch", "dinner", "snack"}

var (
	mealCountPattern = regexp.MustCompile(`(\d+)\s*(meal|breakfast|lunch|dinner)`)
	ownedPattern     = regexp.MustCompile(`\b(?:already have|have|own|got)\s+([^.!?]+)`)
	ownedSplit       = regexp.MustCompile(`,|\sand\s`)
)

// FallbackInterpret extracts an intent from text with fixed keyword tables
// and regular expressions. It never infers required ingredients, cuisine or
// protein.
//
// Owned-ingredient extraction takes the rest of the first clause after a
// possession verb and splits it on commas and " and ". Compound clauses such
// as "rice and some leftover chicken the cat likes" come through verbatim.
func FallbackInterpret(text string) models.StructuredIntent {
	lower := strings.ToLower(text)
	intent := models.EmptyIntent()

	for _, kw := range dietaryKeywords {
		if strings.Contains(lower, kw.phrase) {
			intent.DietaryRestrictions = append(intent.DietaryRestrictions, kw.tag)
		}
	}

	for _, meal := range mealKeywords {
		if strings.Contains(lower, meal) {
			intent.MealTypes = append(intent.MealTypes, meal)
		}
	}

	if m := mealCountPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			intent.MealCount = &n
		}
	}

	if m := ownedPattern.FindStringSubmatch(lower); m != nil {
		intent.OwnedIngredients = append(intent.OwnedIngredients, ownedSplit.Split(m[1], -1)...)
	}

	intent.Normalize()
	return intent
}
