package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported values for AI_PROVIDER.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

// Config holds the application configuration.
type Config struct {
	EnvVars EnvVars  `json:"env"`
	Prompts *Prompts `json:"-"`
}

// EnvVars holds environment variables required by the application.
// Fields tagged `optional:"true"` are skipped by CheckConfigEnvFields.
type EnvVars struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabaseUrl  string `env:"DATABASE_URL"`
	PromptsPath  string `env:"PROMPTS_PATH" envDefault:"configs/prompts.yaml"`
	JwtSecretKey string `env:"JWT_SECRET_KEY" optional:"true"`
	SeedPath     string `env:"SEED_PATH" envDefault:"configs/seed_recipes.yaml" optional:"true"`

	CorsOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000" optional:"true"`
	RateLimitRPS   int      `env:"RATE_LIMIT_RPS" envDefault:"5"`
	MaxQueryLength int      `env:"MAX_QUERY_LENGTH" envDefault:"1000"`

	AWSRegion          string `env:"AWS_REGION" optional:"true"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" optional:"true"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" optional:"true"`
	S3Bucket           string `env:"S3_BUCKET" optional:"true"`
	S3Endpoint         string `env:"S3_ENDPOINT" optional:"true"`

	AIProvider      string `env:"AI_PROVIDER" envDefault:"ollama"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY" optional:"true"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY" optional:"true"`
	OllamaHost      string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	OllamaModel     string `env:"OLLAMA_MODEL" envDefault:"llama2"`

	GoogleSearchKey string `env:"GOOGLE_SEARCH_KEY" optional:"true"`
	GoogleSearchCX  string `env:"GOOGLE_SEARCH_CX" optional:"true"`
	BraveSearchKey  string `env:"BRAVE_SEARCH_KEY" optional:"true"`

	WebAugmentation  bool          `env:"WEB_AUGMENTATION" envDefault:"true" optional:"true"`
	StrictWebSearch  bool          `env:"STRICT_WEB_SEARCH" envDefault:"false" optional:"true"`
	DefaultMealCount int           `env:"DEFAULT_MEAL_COUNT" envDefault:"5"`
	AcquireWorkers   int           `env:"ACQUIRE_WORKERS" envDefault:"1"`
	UserAgent        string        `env:"USER_AGENT" envDefault:"GroceryPlanBot/1.0"`
	SupportedSites   []string      `env:"SUPPORTED_SITES" envSeparator:"," optional:"true"`
	InterpretTimeout time.Duration `env:"INTERPRET_TIMEOUT" envDefault:"30s"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`
	RobotsTimeout    time.Duration `env:"ROBOTS_TIMEOUT" envDefault:"5s"`
	HostMinInterval  time.Duration `env:"HOST_MIN_INTERVAL" envDefault:"1s"`
}

// LoadConfig parses environment variables into the Config struct.
func LoadConfig() (*Config, error) {
	var config Config
	if err := env.Parse(&config.EnvVars); err != nil {
		return nil, err
	}
	config.EnvVars.AIProvider = strings.ToLower(strings.TrimSpace(config.EnvVars.AIProvider))
	return &config, nil
}

// CheckConfigEnvFields validates that all required EnvVars fields are set
// and that the selected AI provider has the credentials it needs.
func (c *Config) CheckConfigEnvFields() error {
	if err := checkFieldsRecursive(reflect.ValueOf(c.EnvVars)); err != nil {
		return err
	}

	switch c.EnvVars.AIProvider {
	case ProviderAnthropic:
		if c.EnvVars.AnthropicAPIKey == "" {
			return fmt.Errorf("$AnthropicAPIKey must be set when AI_PROVIDER=%s", ProviderAnthropic)
		}
	case ProviderOpenAI:
		if c.EnvVars.OpenAIAPIKey == "" {
			return fmt.Errorf("$OpenAIAPIKey must be set when AI_PROVIDER=%s", ProviderOpenAI)
		}
	case ProviderOllama, ProviderNone:
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.EnvVars.AIProvider)
	}

	if c.EnvVars.DefaultMealCount <= 0 {
		return fmt.Errorf("$DefaultMealCount must be positive")
	}
	if c.EnvVars.AcquireWorkers <= 0 {
		return fmt.Errorf("$AcquireWorkers must be positive")
	}
	return nil
}

// ArchiveEnabled reports whether fetched pages should be archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.EnvVars.S3Bucket != "" && c.EnvVars.AWSRegion != ""
}

func checkFieldsRecursive(v reflect.Value) error {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := v.Type().Field(i)
		if fieldType.Tag.Get("optional") == "true" {
			continue
		}
		if isZeroValue(field) {
			return fmt.Errorf("$%s must be set", fieldType.Name)
		}
		if field.Kind() == reflect.Struct {
			if err := checkFieldsRecursive(field); err != nil {
				return err
			}
		}
	}
	return nil
}

func isZeroValue(v reflect.Value) bool {
	return v.Interface() == reflect.Zero(v.Type()).Interface()
}
