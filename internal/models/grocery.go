package models

// GroceryListItem is one aggregated line of a grocery list. Items are keyed
// by (lower-cased name, unit); quantities in different units stay separate.
type GroceryListItem struct {
	IngredientName string   `json:"ingredient_name"`
	Unit           string   `json:"unit"`
	TotalQuantity  float64  `json:"total_quantity"`
	Category       *string  `json:"category"`
	RecipesUsedIn  []string `json:"recipes_used_in"`
	AlreadyOwned   bool     `json:"already_owned"`
}

// CategoryValue returns the category or an empty string when uncategorised.
func (g GroceryListItem) CategoryValue() string {
	if g.Category == nil {
		return ""
	}
	return *g.Category
}
