package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/windoze95/groceryplan-api/internal/ai"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/metrics"
	"github.com/windoze95/groceryplan-api/internal/models"
	"go.uber.org/zap"
)

// intentFields are the keys a model reply must carry, null or not.
var intentFields = []string{
	"dietary_restrictions",
	"meal_types",
	"meal_count",
	"owned_ingredients",
	"required_ingredients",
	"cuisine_preferences",
	"protein_requirement",
	"other_requirements",
}

// QueryInterpreter turns free text into a StructuredIntent.
type QueryInterpreter struct {
	Cfg          *config.Config
	TextProvider ai.TextProvider
}

// NewQueryInterpreter creates a QueryInterpreter. textProvider may be nil,
// in which case every query goes through the keyword fallback.
func NewQueryInterpreter(cfg *config.Config, textProvider ai.TextProvider) *QueryInterpreter {
	return &QueryInterpreter{
		Cfg:          cfg,
		TextProvider: textProvider,
	}
}

// Interpret never fails. When the model call errors, times out, or replies
// with anything other than a well-formed intent object, the result is
// FallbackInterpret(text).
func (s *QueryInterpreter) Interpret(ctx context.Context, text string) models.StructuredIntent {
	log := logger.Get()

	if s.TextProvider == nil || s.Cfg == nil || s.Cfg.Prompts == nil {
		metrics.ObserveInterpret(metrics.PathFallback)
		return FallbackInterpret(text)
	}

	intent, err := s.interpretWithModel(ctx, text)
	if err != nil {
		log.Warn("query interpretation fell back to keyword rules", zap.Error(err))
		metrics.ObserveInterpret(metrics.PathFallback)
		return FallbackInterpret(text)
	}

	metrics.ObserveInterpret(metrics.PathLLM)
	return intent
}

func (s *QueryInterpreter) interpretWithModel(ctx context.Context, text string) (models.StructuredIntent, error) {
	prompt, err := config.RenderPrompt(s.Cfg.Prompts.Interpret.User, map[string]interface{}{
		"Query": text,
	})
	if err != nil {
		return models.StructuredIntent{}, err
	}

	if timeout := s.Cfg.EnvVars.InterpretTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reply, err := s.TextProvider.Complete(ctx, s.Cfg.Prompts.Interpret.System, prompt)
	if err != nil {
		return models.StructuredIntent{}, fmt.Errorf("text provider: %w", err)
	}
	return ParseIntentReply(reply)
}

// ParseIntentReply decodes the JSON object in a model reply. The object is
// the span from the first '{' to the last '}'. Every intent field must be
// present; lists must hold strings, meal_count must be a positive integer
// and protein_requirement a non-negative integer when not null.
func ParseIntentReply(reply string) (models.StructuredIntent, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return models.StructuredIntent{}, errors.New("reply contains no JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &fields); err != nil {
		return models.StructuredIntent{}, fmt.Errorf("reply is not a JSON object: %w", err)
	}
	for _, key := range intentFields {
		if _, ok := fields[key]; !ok {
			return models.StructuredIntent{}, fmt.Errorf("reply is missing %q", key)
		}
	}

	var intent models.StructuredIntent
	lists := []struct {
		key string
		dst *[]string
	}{
		{"dietary_restrictions", &intent.DietaryRestrictions},
		{"meal_types", &intent.MealTypes},
		{"owned_ingredients", &intent.OwnedIngredients},
		{"required_ingredients", &intent.RequiredIngredients},
		{"cuisine_preferences", &intent.CuisinePreferences},
	}
	for _, l := range lists {
		if err := json.Unmarshal(fields[l.key], l.dst); err != nil {
			return models.StructuredIntent{}, fmt.Errorf("%s: %w", l.key, err)
		}
	}

	var err error
	if intent.MealCount, err = decodeOptionalInt(fields["meal_count"], 1); err != nil {
		return models.StructuredIntent{}, fmt.Errorf("meal_count: %w", err)
	}
	if intent.ProteinRequirement, err = decodeOptionalInt(fields["protein_requirement"], 0); err != nil {
		return models.StructuredIntent{}, fmt.Errorf("protein_requirement: %w", err)
	}
	if err := json.Unmarshal(fields["other_requirements"], &intent.OtherRequirements); err != nil {
		return models.StructuredIntent{}, fmt.Errorf("other_requirements: %w", err)
	}

	intent.Normalize()
	return intent, nil
}

// decodeOptionalInt decodes null or an integral number no smaller than floor.
func decodeOptionalInt(raw json.RawMessage, floor int) (*int, error) {
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}
	if *f != math.Trunc(*f) || *f > math.MaxInt32 {
		return nil, fmt.Errorf("%v is not an integer", *f)
	}
	n := int(*f)
	if n < floor {
		return nil, fmt.Errorf("%d is below %d", n, floor)
	}
	return &n, nil
}
