package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"
	"github.com/go-shiori/go-readability"
	"github.com/windoze95/groceryplan-api/internal/ai"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/models"
	"go.uber.org/zap"
)

// minReadableChars is the least page text worth sending to a model.
const minReadableChars = 200

// ExtractionError is returned when no usable recipe could be pulled from a page.
type ExtractionError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract recipe from %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract recipe from %s: %s", e.URL, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RecipeExtractor turns a fetched page into a recipe. Structured JSON-LD is
// preferred; the readable text of the page goes to the text provider when
// the page has none.
type RecipeExtractor struct {
	TextProvider ai.TextProvider
	validate     *validator.Validate
}

// NewRecipeExtractor creates a RecipeExtractor. textProvider may be nil, in
// which case only pages with JSON-LD can be extracted.
func NewRecipeExtractor(textProvider ai.TextProvider) *RecipeExtractor {
	return &RecipeExtractor{
		TextProvider: textProvider,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Extract builds an unsaved recipe from the page at pageURL.
func (e *RecipeExtractor) Extract(ctx context.Context, pageURL string, html []byte) (*models.Recipe, error) {
	log := logger.With(zap.String("source_url", pageURL))

	result, err := extractJSONLD(html)
	if err == nil {
		log.Debug("extracted recipe from JSON-LD")
	} else {
		if e.TextProvider == nil {
			return nil, &ExtractionError{URL: pageURL, Reason: "no structured recipe data", Err: err}
		}

		text, rerr := readableText(pageURL, html)
		if rerr != nil {
			return nil, &ExtractionError{URL: pageURL, Reason: "page has no readable content", Err: rerr}
		}

		result, err = e.TextProvider.ExtractRecipeFromText(ctx, pageURL, text)
		if err != nil {
			return nil, &ExtractionError{URL: pageURL, Reason: "model extraction failed", Err: err}
		}
		log.Debug("extracted recipe from page text")
	}

	if err := e.validate.Struct(result); err != nil {
		return nil, &ExtractionError{URL: pageURL, Reason: "extracted recipe is incomplete", Err: err}
	}

	return recipeResultToModel(result, pageURL), nil
}

// readableText returns the main text of the page with navigation and other
// boilerplate removed.
func readableText(pageURL string, html []byte) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}

	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(html), parsedURL)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minReadableChars {
		return "", fmt.Errorf("only %d characters of text", len(text))
	}
	if article.Title != "" {
		text = article.Title + "\n\n" + text
	}
	return text, nil
}

// recipeResultToModel converts an extraction result into an unsaved Recipe.
func recipeResultToModel(result *ai.RecipeResult, sourceURL string) *models.Recipe {
	recipe := &models.Recipe{
		Name:         strings.TrimSpace(result.Name),
		Description:  strings.TrimSpace(result.Description),
		Cuisine:      strings.TrimSpace(result.Cuisine),
		MealType:     models.NormalizeTerm(result.MealType),
		Servings:     result.Servings,
		Instructions: models.StringList(result.Instructions),
	}
	if recipe.Servings <= 0 {
		recipe.Servings = models.DefaultServings
	}
	if result.PrepTimeMinutes > 0 {
		prep := result.PrepTimeMinutes
		recipe.PrepTimeMinutes = &prep
	}
	if sourceURL != "" {
		src := sourceURL
		recipe.SourceURL = &src
	}

	for i, ing := range result.Ingredients {
		recipe.Ingredients = append(recipe.Ingredients, models.RecipeIngredient{
			Position: i,
			Name:     strings.TrimSpace(ing.Name),
			Quantity: ing.Quantity,
			Unit:     strings.ToLower(strings.TrimSpace(ing.Unit)),
			Notes:    strings.TrimSpace(ing.Notes),
			Category: models.NormalizeTerm(ing.Category),
		})
	}

	for _, tag := range normalizeDietaryTags(result.DietaryTags) {
		recipe.DietaryRestrictions = append(recipe.DietaryRestrictions, models.DietaryRestriction{Name: tag})
	}
	return recipe
}

// jsonLDRecipe represents the JSON-LD Recipe schema (subset of fields we care about).
type jsonLDRecipe struct {
	Type            interface{} `json:"@type"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Ingredients     []string    `json:"recipeIngredient"`
	Instructions    interface{} `json:"recipeInstructions"`
	PrepTime        string      `json:"prepTime"`
	CookTime        string      `json:"cookTime"`
	TotalTime       string      `json:"totalTime"`
	Yield           interface{} `json:"recipeYield"`
	Cuisine         interface{} `json:"recipeCuisine"`
	Category        interface{} `json:"recipeCategory"`
	Keywords        interface{} `json:"keywords"`
	SuitableForDiet interface{} `json:"suitableForDiet"`
}

// extractJSONLD finds the first schema.org Recipe in the page's
// application/ld+json blocks.
func extractJSONLD(html []byte) (*ai.RecipeResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var found *ai.RecipeResult
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		jsonStr := strings.TrimSpace(s.Text())
		if jsonStr == "" {
			return true
		}

		if result, err := tryParseJSONLDObject([]byte(jsonStr)); err == nil {
			found = result
			return false
		}

		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(jsonStr), &arr); err == nil {
			for _, item := range arr {
				if result, err := tryParseJSONLDObject(item); err == nil {
					found = result
					return false
				}
			}
		}
		return true
	})

	if found == nil {
		return nil, fmt.Errorf("no JSON-LD recipe found")
	}
	return found, nil
}

// tryParseJSONLDObject attempts to parse raw JSON as a JSON-LD Recipe,
// descending into @graph containers.
func tryParseJSONLDObject(raw []byte) (*ai.RecipeResult, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	if graph, ok := obj["@graph"].([]interface{}); ok {
		for _, item := range graph {
			itemBytes, err := json.Marshal(item)
			if err != nil {
				continue
			}
			if result, err := tryParseJSONLDObject(itemBytes); err == nil {
				return result, nil
			}
		}
		return nil, fmt.Errorf("no recipe found in @graph")
	}

	if !isRecipeType(obj["@type"]) {
		return nil, fmt.Errorf("not a Recipe type")
	}

	var recipe jsonLDRecipe
	if err := json.Unmarshal(raw, &recipe); err != nil {
		return nil, err
	}
	return jsonLDToRecipeResult(&recipe)
}

// isRecipeType checks if the @type field indicates a Recipe.
func isRecipeType(typeField interface{}) bool {
	switch v := typeField.(type) {
	case string:
		return v == "Recipe" || strings.HasSuffix(v, "/Recipe")
	case []interface{}:
		for _, t := range v {
			if s, ok := t.(string); ok && (s == "Recipe" || strings.HasSuffix(s, "/Recipe")) {
				return true
			}
		}
	}
	return false
}

func jsonLDToRecipeResult(recipe *jsonLDRecipe) (*ai.RecipeResult, error) {
	name := strings.TrimSpace(recipe.Name)
	if name == "" {
		return nil, fmt.Errorf("recipe name is empty")
	}

	ingredients := make([]ai.IngredientResult, 0, len(recipe.Ingredients))
	for _, line := range recipe.Ingredients {
		parsed := ParseIngredientLine(line)
		if parsed.Name == "" {
			continue
		}
		ingredients = append(ingredients, ai.IngredientResult{
			Name:     parsed.Name,
			Quantity: parsed.Quantity,
			Unit:     parsed.Unit,
			Notes:    parsed.Notes,
		})
	}

	prep := parseISO8601Duration(recipe.TotalTime)
	if prep == 0 {
		prep = parseISO8601Duration(recipe.PrepTime) + parseISO8601Duration(recipe.CookTime)
	}

	tags := append(parseKeywords(recipe.Keywords), parseDiets(recipe.SuitableForDiet)...)

	return &ai.RecipeResult{
		Name:            name,
		Description:     strings.TrimSpace(recipe.Description),
		Cuisine:         firstString(recipe.Cuisine),
		MealType:        mealTypeFromCategory(recipe.Category),
		PrepTimeMinutes: prep,
		Servings:        parseYield(recipe.Yield),
		Ingredients:     ingredients,
		Instructions:    parseJSONLDInstructions(recipe.Instructions),
		DietaryTags:     normalizeDietaryTags(tags),
	}, nil
}

// parseJSONLDInstructions extracts instruction strings from various JSON-LD formats.
func parseJSONLDInstructions(instructions interface{}) []string {
	switch v := instructions.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []interface{}:
		var result []string
		for _, item := range v {
			switch step := item.(type) {
			case string:
				result = append(result, strings.TrimSpace(step))
			case map[string]interface{}:
				// HowToStep or HowToSection
				if text, ok := step["text"].(string); ok {
					result = append(result, strings.TrimSpace(text))
				} else if items, ok := step["itemListElement"].([]interface{}); ok {
					result = append(result, parseJSONLDInstructions(items)...)
				}
			}
		}
		return result
	}
	return nil
}

var iso8601Pattern = regexp.MustCompile(`P(?:\d+D)?T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// parseISO8601Duration parses an ISO 8601 duration string (e.g., "PT30M") into minutes.
func parseISO8601Duration(duration string) int {
	if duration == "" {
		return 0
	}

	matches := iso8601Pattern.FindStringSubmatch(strings.ToUpper(duration))
	if matches == nil {
		return 0
	}

	var total int
	if matches[1] != "" {
		var hours int
		fmt.Sscanf(matches[1], "%d", &hours)
		total += hours * 60
	}
	if matches[2] != "" {
		var minutes int
		fmt.Sscanf(matches[2], "%d", &minutes)
		total += minutes
	}
	if matches[3] != "" {
		var seconds int
		fmt.Sscanf(matches[3], "%d", &seconds)
		if seconds >= 30 {
			total++
		}
	}
	return total
}

// parseYield extracts a serving count from the recipeYield field.
func parseYield(yield interface{}) int {
	switch v := yield.(type) {
	case string:
		var n int
		fmt.Sscanf(strings.TrimSpace(v), "%d", &n)
		return n
	case float64:
		return int(v)
	case []interface{}:
		for _, item := range v {
			if n := parseYield(item); n > 0 {
				return n
			}
		}
	}
	return 0
}

// parseKeywords splits a keywords field into individual terms.
func parseKeywords(keywords interface{}) []string {
	switch v := keywords.(type) {
	case string:
		var result []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		return result
	case []interface{}:
		var result []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}

var schemaDiets = map[string]string{
	"vegandiet":      "vegan",
	"vegetariandiet": "vegetarian",
	"glutenfreediet": "gluten-free",
}

// parseDiets maps schema.org RestrictedDiet values onto dietary tag names.
func parseDiets(field interface{}) []string {
	var raw []string
	switch v := field.(type) {
	case string:
		raw = []string{v}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}

	var tags []string
	for _, d := range raw {
		d = strings.ToLower(d)
		if i := strings.LastIndex(d, "/"); i >= 0 {
			d = d[i+1:]
		}
		if tag, ok := schemaDiets[d]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// normalizeDietaryTags keeps only terms from the known dietary vocabulary,
// mapped to their canonical names and deduplicated in first-seen order.
func normalizeDietaryTags(terms []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, term := range terms {
		term = models.NormalizeTerm(term)
		for _, kw := range dietaryKeywords {
			if term != kw.phrase && term != kw.tag {
				continue
			}
			if _, dup := seen[kw.tag]; !dup {
				seen[kw.tag] = struct{}{}
				out = append(out, kw.tag)
			}
			break
		}
	}
	return out
}

func mealTypeFromCategory(field interface{}) string {
	var cats []string
	switch v := field.(type) {
	case string:
		cats = []string{v}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				cats = append(cats, s)
			}
		}
	}

	for _, c := range cats {
		c = strings.ToLower(c)
		switch {
		case strings.Contains(c, "breakfast"), strings.Contains(c, "brunch"):
			return "breakfast"
		case strings.Contains(c, "lunch"):
			return "lunch"
		case strings.Contains(c, "dinner"), strings.Contains(c, "main"), strings.Contains(c, "entree"):
			return "dinner"
		case strings.Contains(c, "snack"), strings.Contains(c, "appetizer"):
			return "snack"
		}
	}
	return ""
}

func firstString(field interface{}) string {
	switch v := field.(type) {
	case string:
		return strings.TrimSpace(v)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
