package service

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ParsedIngredient is one free-text ingredient line split into its parts.
type ParsedIngredient struct {
	Name     string
	Quantity float64
	Unit     string
	Notes    string
}

var unicodeFractions = map[rune]float64{
	'¼': 0.25,     // ¼
	'½': 0.5,      // ½
	'¾': 0.75,     // ¾
	'⅓': 0.333333, // ⅓
	'⅔': 0.666667, // ⅔
	'⅕': 0.2,      // ⅕
	'⅖': 0.4,      // ⅖
	'⅗': 0.6,      // ⅗
	'⅘': 0.8,      // ⅘
	'⅙': 0.166667, // ⅙
	'⅚': 0.833333, // ⅚
	'⅛': 0.125,    // ⅛
	'⅜': 0.375,    // ⅜
	'⅝': 0.625,    // ⅝
	'⅞': 0.875,    // ⅞
}

// unitNormalization maps abbreviations and plurals onto one spelling so that
// "2 cups rice" and "1 c. rice" aggregate under the same unit.
var unitNormalization = map[string]string{
	"tsp":         "teaspoon",
	"teaspoons":   "teaspoon",
	"tbsp":        "tablespoon",
	"tbs":         "tablespoon",
	"tablespoons": "tablespoon",
	"fl oz":       "fluid ounce",
	"c":           "cup",
	"cups":        "cup",
	"pt":          "pint",
	"pints":       "pint",
	"qt":          "quart",
	"quarts":      "quart",
	"l":           "liter",
	"liters":      "liter",
	"litres":      "liter",
	"ml":          "milliliter",
	"milliliters": "milliliter",
	"oz":          "ounce",
	"ounces":      "ounce",
	"lb":          "pound",
	"lbs":         "pound",
	"pounds":      "pound",
	"g":           "gram",
	"grams":       "gram",
	"kg":          "kilogram",
	"kilograms":   "kilogram",
	"pieces":      "piece",
	"packages":    "package",
	"pkg":         "package",
	"bunches":     "bunch",
	"heads":       "head",
	"cloves":      "clove",
	"sprigs":      "sprig",
	"stalks":      "stalk",
	"slices":      "slice",
	"cans":        "can",
	"jars":        "jar",
	"sticks":      "stick",
	"pinches":     "pinch",
	"dashes":      "dash",
}

var (
	ingRangePattern         = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*`)
	ingWholeSpacePattern    = regexp.MustCompile(`^(\d+)\s*`)
	ingWholeFractionPattern = regexp.MustCompile(`^(\d+)\s+(\d+)/(\d+)\s*`)
	ingFractionPattern      = regexp.MustCompile(`^(\d+)/(\d+)\s*`)
	ingDecimalPattern       = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*`)
	ingUnitPattern          = regexp.MustCompile(`(?i)^(tablespoons?|teaspoons?|fl\.? oz|milliliters?|kilograms?|packages?|bunch(?:es)?|ounces?|pounds?|pieces?|liters?|litres?|sprigs?|stalks?|slices?|cloves?|quarts?|pinch(?:es)?|pints?|dash(?:es)?|sticks?|heads?|grams?|cups?|cans?|jars?|tbsp|tsp|tbs|pkg|qt|pt|oz|lbs?|ml|kg|g|l|c)\.?(?:\s+|$)`)
	ingParenPattern         = regexp.MustCompile(`\(([^)]*)\)`)
	ingSpacePattern         = regexp.MustCompile(`\s+`)
)

// ParseIngredientLine splits a free-text ingredient such as
// "1 ½ cups long-grain rice, rinsed" into quantity, unit, name and notes.
// Lines without a leading amount get a quantity of 1 and no unit.
func ParseIngredientLine(line string) ParsedIngredient {
	remaining := strings.TrimSpace(line)

	remaining, qty := extractQuantity(remaining)
	remaining, unit := extractUnit(remaining)
	remaining, notes := extractNotes(remaining)

	return ParsedIngredient{
		Name:     cleanIngredientName(remaining),
		Quantity: qty,
		Unit:     unit,
		Notes:    notes,
	}
}

func extractQuantity(s string) (string, float64) {
	s = strings.TrimSpace(s)

	// Ranges use the average.
	if m := ingRangePattern.FindStringSubmatch(s); len(m) == 3 {
		low, _ := strconv.ParseFloat(m[1], 64)
		high, _ := strconv.ParseFloat(m[2], 64)
		return strings.TrimSpace(s[len(m[0]):]), (low + high) / 2
	}

	// "1 ½" or "1½"
	if m := ingWholeSpacePattern.FindStringSubmatch(s); len(m) == 2 {
		if rest, frac := extractUnicodeFraction(s[len(m[0]):]); frac > 0 {
			whole, _ := strconv.ParseFloat(m[1], 64)
			return rest, whole + frac
		}
	}

	// "1 1/2"
	if m := ingWholeFractionPattern.FindStringSubmatch(s); len(m) == 4 {
		whole, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		denom, _ := strconv.ParseFloat(m[3], 64)
		qty := whole
		if denom != 0 {
			qty += num / denom
		}
		return strings.TrimSpace(s[len(m[0]):]), qty
	}

	if rest, frac := extractUnicodeFraction(s); frac > 0 {
		return rest, frac
	}

	if m := ingFractionPattern.FindStringSubmatch(s); len(m) == 3 {
		num, _ := strconv.ParseFloat(m[1], 64)
		denom, _ := strconv.ParseFloat(m[2], 64)
		qty := 1.0
		if denom != 0 {
			qty = num / denom
		}
		return strings.TrimSpace(s[len(m[0]):]), qty
	}

	if m := ingDecimalPattern.FindStringSubmatch(s); len(m) == 2 {
		qty, _ := strconv.ParseFloat(m[1], 64)
		return strings.TrimSpace(s[len(m[0]):]), qty
	}

	return s, 1
}

func extractUnicodeFraction(s string) (string, float64) {
	runes := []rune(s)
	idx := 0
	for idx < len(runes) && unicode.IsSpace(runes[idx]) {
		idx++
	}
	if idx >= len(runes) {
		return s, 0
	}
	if val, ok := unicodeFractions[runes[idx]]; ok {
		return strings.TrimSpace(string(runes[idx+1:])), val
	}
	return s, 0
}

func extractUnit(s string) (string, string) {
	s = strings.TrimSpace(s)
	m := ingUnitPattern.FindStringSubmatch(s)
	if len(m) < 2 {
		return s, ""
	}
	unit := strings.ToLower(m[1])
	unit = strings.ReplaceAll(unit, ".", "")
	if normalized, ok := unitNormalization[unit]; ok {
		unit = normalized
	}
	return strings.TrimSpace(s[len(m[0]):]), unit
}

func extractNotes(s string) (string, string) {
	var notes []string

	if matches := ingParenPattern.FindAllStringSubmatch(s, -1); len(matches) > 0 {
		for _, m := range matches {
			if n := strings.TrimSpace(m[1]); n != "" {
				notes = append(notes, n)
			}
		}
		s = ingParenPattern.ReplaceAllString(s, "")
	}

	if idx := strings.Index(s, ","); idx >= 0 {
		if after := strings.TrimSpace(s[idx+1:]); after != "" {
			notes = append(notes, after)
		}
		s = s[:idx]
	}

	return strings.TrimSpace(s), strings.Join(notes, "; ")
}

func cleanIngredientName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "of ")
	s = strings.TrimRight(s, ".,;:-_")
	s = ingSpacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
