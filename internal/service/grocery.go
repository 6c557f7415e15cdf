package service

import (
	"math"
	"sort"
	"strings"

	"github.com/windoze95/groceryplan-api/internal/models"
)

type groceryKey struct {
	name string
	unit string
}

type groceryAccumulator struct {
	total    float64
	category string
	recipes  map[string]struct{}
}

// Aggregate merges the ingredients of recipes into a grocery list keyed by
// (lower-cased name, unit). The same name in two units stays as two rows.
// An item is already owned when its trimmed, lower-cased name equals a
// trimmed, lower-cased entry of owned; there is no partial matching.
//
// Output is sorted by category (uncategorised last), then name, then unit,
// so permuting the input does not change the result.
func Aggregate(recipes []models.Recipe, owned []string) []models.GroceryListItem {
	ownedSet := make(map[string]struct{}, len(owned))
	for _, o := range owned {
		ownedSet[models.NormalizeTerm(o)] = struct{}{}
	}

	acc := make(map[groceryKey]*groceryAccumulator)
	for _, recipe := range recipes {
		for _, ing := range recipe.Ingredients {
			key := groceryKey{
				name: models.NormalizeTerm(ing.Name),
				unit: ing.Unit,
			}
			if key.name == "" {
				continue
			}
			a, ok := acc[key]
			if !ok {
				a = &groceryAccumulator{recipes: make(map[string]struct{})}
				acc[key] = a
			}
			a.total += ing.Quantity
			a.recipes[recipe.Name] = struct{}{}
			// Smallest non-empty category wins so the result is order-independent.
			if c := models.NormalizeTerm(ing.Category); c != "" && (a.category == "" || c < a.category) {
				a.category = c
			}
		}
	}

	items := make([]models.GroceryListItem, 0, len(acc))
	for key, a := range acc {
		item := models.GroceryListItem{
			IngredientName: key.name,
			Unit:           key.unit,
			TotalQuantity:  roundQuantity(a.total),
			RecipesUsedIn:  sortedNames(a.recipes),
		}
		if a.category != "" {
			c := a.category
			item.Category = &c
		}
		_, item.AlreadyOwned = ownedSet[key.name]
		items = append(items, item)
	}

	SortGroceryList(items)
	return items
}

// SortGroceryList orders items by category with uncategorised items last,
// then by lower-cased name, then by unit.
func SortGroceryList(items []models.GroceryListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Category == nil || b.Category == nil {
			if (a.Category == nil) != (b.Category == nil) {
				return b.Category == nil
			}
		} else if *a.Category != *b.Category {
			return *a.Category < *b.Category
		}
		an, bn := strings.ToLower(a.IngredientName), strings.ToLower(b.IngredientName)
		if an != bn {
			return an < bn
		}
		return a.Unit < b.Unit
	})
}

// FilterOwned returns the items that are not already owned.
func FilterOwned(items []models.GroceryListItem) []models.GroceryListItem {
	out := make([]models.GroceryListItem, 0, len(items))
	for _, item := range items {
		if !item.AlreadyOwned {
			out = append(out, item)
		}
	}
	return out
}

// EstimateCost is a placeholder until price lookup exists. It always
// returns 0; callers report an absent estimate rather than a free list.
func EstimateCost(items []models.GroceryListItem) float64 {
	return 0
}

// Optimize is a placeholder for multi-store optimisation. It returns items
// unchanged.
func Optimize(items []models.GroceryListItem) []models.GroceryListItem {
	return items
}

// roundQuantity rounds half away from zero to 2 decimal places.
func roundQuantity(q float64) float64 {
	return math.Round(q*100) / 100
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
