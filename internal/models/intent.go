package models

import "strings"

// StructuredIntent is the machine-usable form of a free-text meal request.
// List fields are never nil once Normalize has run, so they encode as [].
type StructuredIntent struct {
	DietaryRestrictions []string `json:"dietary_restrictions"`
	MealTypes           []string `json:"meal_types"`
	MealCount           *int     `json:"meal_count"`
	OwnedIngredients    []string `json:"owned_ingredients"`
	RequiredIngredients []string `json:"required_ingredients"`
	CuisinePreferences  []string `json:"cuisine_preferences"`
	ProteinRequirement  *int     `json:"protein_requirement"`
	OtherRequirements   *string  `json:"other_requirements"`
}

// Normalize trims every list entry, drops empty entries and duplicates, and
// lower-cases dietary restrictions and meal types. Nil lists become empty.
func (in *StructuredIntent) Normalize() {
	in.DietaryRestrictions = cleanList(in.DietaryRestrictions, true)
	in.MealTypes = cleanList(in.MealTypes, true)
	in.OwnedIngredients = cleanList(in.OwnedIngredients, false)
	in.RequiredIngredients = cleanList(in.RequiredIngredients, false)
	in.CuisinePreferences = cleanList(in.CuisinePreferences, false)

	if in.OtherRequirements != nil {
		trimmed := strings.TrimSpace(*in.OtherRequirements)
		if trimmed == "" {
			in.OtherRequirements = nil
		} else {
			in.OtherRequirements = &trimmed
		}
	}
}

// DesiredCount returns MealCount when set, otherwise fallback.
func (in *StructuredIntent) DesiredCount(fallback int) int {
	if in.MealCount != nil {
		return *in.MealCount
	}
	return fallback
}

// EmptyIntent returns an intent with every list present and empty.
func EmptyIntent() StructuredIntent {
	in := StructuredIntent{}
	in.Normalize()
	return in
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
