package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/testutil"
)

func newTestMatcher() *RecipeMatcher {
	repo := testutil.NewMockCorpusRepo(
		testutil.VeganChiliRecipe(),
		testutil.VegetarianFrittataRecipe(),
		testutil.RiceBowlRecipe(),
	)
	return NewRecipeMatcher(repo)
}

func recipeNames(recipes []models.Recipe) []string {
	names := make([]string, 0, len(recipes))
	for _, r := range recipes {
		names = append(names, r.Name)
	}
	return names
}

func assertNames(t *testing.T, got []models.Recipe, want ...string) {
	t.Helper()
	names := recipeNames(got)
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestMatch_DietaryRestrictionsAreConjunctive(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	intent := models.EmptyIntent()
	intent.DietaryRestrictions = []string{"vegetarian"}
	got, err := m.Match(ctx, intent)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	assertNames(t, got, "Black Bean Chili", "Spinach Frittata")

	intent.DietaryRestrictions = []string{"vegan"}
	got, _ = m.Match(ctx, intent)
	assertNames(t, got, "Black Bean Chili", "Tofu Rice Bowl")

	intent.DietaryRestrictions = []string{"vegan", "vegetarian"}
	got, _ = m.Match(ctx, intent)
	assertNames(t, got, "Black Bean Chili")

	intent.DietaryRestrictions = []string{"vegan", "paleo"}
	got, _ = m.Match(ctx, intent)
	assertNames(t, got)
}

func TestMatch_MealTypeAndCuisine(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	intent := models.EmptyIntent()
	intent.MealTypes = []string{"dinner", "lunch"}
	got, _ := m.Match(ctx, intent)
	assertNames(t, got, "Black Bean Chili", "Tofu Rice Bowl")

	intent = models.EmptyIntent()
	intent.CuisinePreferences = []string{"  mexican "}
	got, _ = m.Match(ctx, intent)
	assertNames(t, got, "Black Bean Chili")

	intent.MealTypes = []string{"breakfast"}
	got, _ = m.Match(ctx, intent)
	assertNames(t, got)
}

func TestMatch_EmptyIntentReturnsWholeCorpus(t *testing.T) {
	got, err := newTestMatcher().Match(context.Background(), models.EmptyIntent())
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	assertNames(t, got, "Black Bean Chili", "Spinach Frittata", "Tofu Rice Bowl")
}

func TestMatch_TruncatesInCorpusOrder(t *testing.T) {
	var recipes []models.Recipe
	for i := 1; i <= 10; i++ {
		recipes = append(recipes, testutil.TestRecipe(fmt.Sprintf("Dinner %d", i), "dinner", "vegan"))
	}
	m := NewRecipeMatcher(testutil.NewMockCorpusRepo(recipes...))

	intent := models.EmptyIntent()
	intent.DietaryRestrictions = []string{"vegan"}
	intent.MealCount = testutil.IntPtr(3)

	got, err := m.Match(context.Background(), intent)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	assertNames(t, got, "Dinner 1", "Dinner 2", "Dinner 3")
}

func TestMatch_RepoError(t *testing.T) {
	repo := testutil.NewMockCorpusRepo()
	repo.QueryRecipesErr = errors.New("db down")

	_, err := NewRecipeMatcher(repo).Match(context.Background(), models.EmptyIntent())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestTruncateRecipes(t *testing.T) {
	recipes := []models.Recipe{{Name: "a"}, {Name: "b"}}

	if got := TruncateRecipes(recipes, nil); len(got) != 2 {
		t.Errorf("nil limit: got %d recipes, want 2", len(got))
	}
	if got := TruncateRecipes(recipes, testutil.IntPtr(5)); len(got) != 2 {
		t.Errorf("limit above length: got %d recipes, want 2", len(got))
	}
	if got := TruncateRecipes(recipes, testutil.IntPtr(1)); len(got) != 1 || got[0].Name != "a" {
		t.Errorf("limit 1: got %v", recipeNames(got))
	}
}

func TestMatcher_GetAndAll(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	r, err := m.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if r.Name != "Spinach Frittata" {
		t.Errorf("Get(2).Name = %q, want Spinach Frittata", r.Name)
	}

	if _, err := m.Get(ctx, 99); err == nil {
		t.Error("Get(99): expected not found error")
	}

	all, _ := m.All(ctx)
	if len(all) != 3 {
		t.Errorf("All() returned %d recipes, want 3", len(all))
	}
}
