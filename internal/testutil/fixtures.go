package testutil

import (
	"github.com/windoze95/groceryplan-api/internal/models"
)

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

// Tags builds dietary restriction tags from names.
func Tags(names ...string) []models.DietaryRestriction {
	out := make([]models.DietaryRestriction, 0, len(names))
	for _, n := range names {
		out = append(out, models.DietaryRestriction{Name: n})
	}
	return out
}

// TestRecipe creates a minimal recipe with the given meal type and tags.
func TestRecipe(name, mealType string, tags ...string) models.Recipe {
	return models.Recipe{
		Name:                name,
		MealType:            mealType,
		Servings:            models.DefaultServings,
		Instructions:        models.StringList{"Cook it"},
		DietaryRestrictions: Tags(tags...),
	}
}

// VeganChiliRecipe is a vegan Mexican dinner.
func VeganChiliRecipe() models.Recipe {
	return models.Recipe{
		Name:            "Black Bean Chili",
		Description:     "Smoky weeknight chili",
		Cuisine:         "Mexican",
		MealType:        "dinner",
		PrepTimeMinutes: IntPtr(40),
		Servings:        4,
		Instructions:    models.StringList{"Saute onion", "Add beans and tomatoes", "Simmer 30 minutes"},
		Ingredients: []models.RecipeIngredient{
			{Position: 0, Name: "Black beans", Quantity: 2, Unit: "can", Category: "pantry"},
			{Position: 1, Name: "Onion", Quantity: 1, Unit: "", Notes: "diced", Category: "produce"},
			{Position: 2, Name: "Rice", Quantity: 2, Unit: "cup", Category: "pantry"},
		},
		DietaryRestrictions: Tags("vegan", "vegetarian", "gluten-free"),
	}
}

// VegetarianFrittataRecipe is vegetarian but not vegan.
func VegetarianFrittataRecipe() models.Recipe {
	return models.Recipe{
		Name:         "Spinach Frittata",
		Cuisine:      "Italian",
		MealType:     "breakfast",
		Servings:     2,
		Instructions: models.StringList{"Whisk eggs", "Bake"},
		Ingredients: []models.RecipeIngredient{
			{Position: 0, Name: "Eggs", Quantity: 6, Unit: "", Category: "dairy"},
			{Position: 1, Name: "Spinach", Quantity: 2, Unit: "cup", Category: "produce"},
		},
		DietaryRestrictions: Tags("vegetarian", "gluten-free"),
	}
}

// RiceBowlRecipe shares rice with VeganChiliRecipe in the same unit and
// adds rice in grams and rice vinegar.
func RiceBowlRecipe() models.Recipe {
	return models.Recipe{
		Name:         "Tofu Rice Bowl",
		Cuisine:      "Japanese",
		MealType:     "lunch",
		Servings:     2,
		Instructions: models.StringList{"Cook rice", "Fry tofu", "Assemble"},
		Ingredients: []models.RecipeIngredient{
			{Position: 0, Name: "rice", Quantity: 2, Unit: "cup", Category: "pantry"},
			{Position: 1, Name: "Rice", Quantity: 100, Unit: "g", Category: "pantry"},
			{Position: 2, Name: "Rice vinegar", Quantity: 1, Unit: "tbsp", Category: "pantry"},
			{Position: 3, Name: "Tofu", Quantity: 1, Unit: "block", Category: "produce"},
			{Position: 4, Name: "Scallions", Quantity: 2, Unit: ""},
		},
		DietaryRestrictions: Tags("vegan"),
	}
}

// JSONLDRecipePage is an HTML page carrying a schema.org Recipe in a
// @graph container.
const JSONLDRecipePage = `<!DOCTYPE html>
<html><head><title>Lentil Soup</title>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebPage","name":"Lentil Soup page"},
  {"@type":"Recipe",
   "name":"Lentil Soup",
   "description":"Hearty and simple",
   "recipeIngredient":["1 cup red lentils","2 carrots, diced","1 1/2 tsp cumin","4 cups vegetable broth"],
   "recipeInstructions":[{"@type":"HowToStep","text":"Rinse lentils"},{"@type":"HowToStep","text":"Simmer everything 25 minutes"}],
   "prepTime":"PT10M","cookTime":"PT25M",
   "recipeYield":["6","6 bowls"],
   "recipeCuisine":"Middle Eastern",
   "recipeCategory":"Dinner",
   "keywords":"soup, vegan, easy",
   "suitableForDiet":"https://schema.org/GlutenFreeDiet"}
]}
</script></head>
<body><h1>Lentil Soup</h1></body></html>`
