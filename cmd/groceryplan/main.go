// Command groceryplan runs the meal-planning pipeline from the terminal.
package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("GROCERYPLAN_DEBUG") != "")
	defer logger.Sync()

	if err := newApp().Run(os.Args); err != nil {
		logger.Get().Fatal("command failed", zap.Error(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "groceryplan",
		Usage: "plan meals from a recipe corpus and build a grocery list",
		Commands: []*cli.Command{
			{
				Name:   "seed",
				Usage:  "load the starter recipes into an empty corpus",
				Action: SeedAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "seed YAML file (defaults to SEED_PATH)"},
				},
			},
			{
				Name:      "query",
				Usage:     "interpret a request and print recipes plus a grocery list",
				ArgsUsage: "<query>",
				Action:    QueryAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-web", Usage: "answer from the corpus only"},
					&cli.BoolFlag{Name: "progress", Usage: "print acquisition progress to stderr"},
				},
			},
			{
				Name:   "sites",
				Usage:  "list the sites recipes may be fetched from",
				Action: SitesAction,
			},
			{
				Name:      "fetch",
				Usage:     "extract a recipe from one supported page",
				ArgsUsage: "<url>",
				Action:    FetchAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "save", Usage: "store the recipe in the corpus"},
				},
			},
			{
				Name:   "token",
				Usage:  "issue an admin token for the fetch-from-url endpoint",
				Action: TokenAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Value: "cli", Usage: "token subject"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
				},
			},
		},
	}
}
