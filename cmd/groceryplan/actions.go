package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/windoze95/groceryplan-api/internal/app"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/db"
	"github.com/windoze95/groceryplan-api/internal/middleware"
	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/policy"
	"github.com/windoze95/groceryplan-api/internal/seed"
	"github.com/windoze95/groceryplan-api/internal/service"
)

// loadConfig reads and checks the environment and loads the prompts.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.CheckConfigEnvFields(); err != nil {
		return nil, fmt.Errorf("missing required config fields: %w", err)
	}
	prompts, err := config.LoadPrompts(cfg.EnvVars.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	cfg.Prompts = prompts
	return cfg, nil
}

// openApp connects to the corpus and wires the pipeline. The returned
// function closes the database.
func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	database, err := db.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	application, err := app.New(ctx, cfg, database)
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return application, func() { sqlDB.Close() }, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SeedAction loads the seed file into an empty corpus.
func SeedAction(c *cli.Context) error {
	application, closeDB, err := openApp(c.Context)
	if err != nil {
		return err
	}
	defer closeDB()

	path := c.String("file")
	if path == "" {
		path = application.Cfg.EnvVars.SeedPath
	}

	created, err := seed.LoadFile(c.Context, application.Repo, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Seeded %d recipes from %s\n", created, path)
	return nil
}

// QueryAction runs one query and prints the result as JSON.
func QueryAction(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return cli.Exit("a query is required", 1)
	}

	application, closeDB, err := openApp(c.Context)
	if err != nil {
		return err
	}
	defer closeDB()

	pipeline := application.Pipeline
	if c.Bool("no-web") {
		pipeline = service.NewQueryPipeline(application.Cfg, pipeline.Interpreter, pipeline.Matcher, nil)
	}

	var observe service.OutcomeObserver
	if c.Bool("progress") {
		observe = progressPrinter(c.App.ErrWriter)
	}

	result, err := pipeline.RunObserved(c.Context, query, observe)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, result)
}

// progressPrinter writes one line per terminal acquisition outcome.
func progressPrinter(w io.Writer) service.OutcomeObserver {
	return func(o models.FetchOutcome) {
		if !o.State.Terminal() {
			return
		}
		line := fmt.Sprintf("[%d] %-9s %s", o.Candidate.Index, o.State, o.Candidate.URL)
		if o.Reason != "" {
			line += " (" + o.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}
}

// SitesAction prints the allow-listed sites. It needs no database.
func SitesAction(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	gate := policy.NewGate(policy.Options{Sites: cfg.EnvVars.SupportedSites})

	sites := gate.SupportedSites()
	for _, s := range sites {
		fmt.Fprintln(c.App.Writer, s)
	}
	fmt.Fprintf(c.App.Writer, "\nTotal: %d sites\n", len(sites))
	return nil
}

// FetchAction extracts a recipe from one URL and prints it as JSON.
func FetchAction(c *cli.Context) error {
	pageURL := strings.TrimSpace(c.Args().First())
	if pageURL == "" {
		return cli.Exit("a url is required", 1)
	}

	application, closeDB, err := openApp(c.Context)
	if err != nil {
		return err
	}
	defer closeDB()

	recipe, saved, err := application.Acquirer.FetchFromURL(c.Context, pageURL, c.Bool("save"))
	if err != nil {
		return err
	}
	if saved {
		fmt.Fprintf(c.App.ErrWriter, "Recipe %d is in the corpus\n", recipe.ID)
	}
	return writeJSON(c.App.Writer, service.ToRecipeResponse(recipe))
}

// TokenAction prints an admin token signed with JWT_SECRET_KEY.
func TokenAction(c *cli.Context) error {
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		return cli.Exit("JWT_SECRET_KEY must be set", 1)
	}
	token, err := middleware.SignAdminToken(secret, c.String("subject"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}
