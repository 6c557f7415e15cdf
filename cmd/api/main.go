package main

import (
	"context"
	"os"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/windoze95/groceryplan-api/internal/app"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/db"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/router"
	"github.com/windoze95/groceryplan-api/internal/seed"
	"go.uber.org/zap"
)

// init is called before the main function.
func init() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	// Initialize structured logger (dev mode if GIN_MODE != release)
	isDev := os.Getenv("GIN_MODE") != "release"
	logger.Init(isDev)

	// Configure the runtime
	ConfigureRuntime()
}

// Entry point for the API.
func main() {
	defer logger.Sync()
	ctx := context.Background()

	// Load the config
	var cfg *config.Config
	if c, err := config.LoadConfig(); err != nil {
		logger.Get().Fatal("failed to load config", zap.Error(err))
	} else {
		cfg = c
	}

	// Check that all ENV variables are set
	if err := cfg.CheckConfigEnvFields(); err != nil {
		logger.Get().Fatal("missing required config fields", zap.Error(err))
	}

	// Load prompts from YAML
	prompts, err := config.LoadPrompts(cfg.EnvVars.PromptsPath)
	if err != nil {
		logger.Get().Fatal("failed to load prompts", zap.Error(err))
	}
	cfg.Prompts = prompts

	// Connect to the database
	database, err := db.New(cfg)
	if err != nil {
		logger.Get().Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := database.DB()
	if err != nil {
		logger.Get().Fatal("failed to get underlying sql.DB", zap.Error(err))
	}
	defer sqlDB.Close()

	application, err := app.New(ctx, cfg, database)
	if err != nil {
		logger.Get().Fatal("failed to wire application", zap.Error(err))
	}

	// Seed an empty corpus
	if cfg.EnvVars.SeedPath != "" {
		created, err := seed.LoadFile(ctx, application.Repo, cfg.EnvVars.SeedPath)
		if err != nil {
			logger.Get().Fatal("failed to seed corpus", zap.Error(err))
		}
		if created > 0 {
			logger.Get().Info("seeded corpus", zap.Int("recipes", created))
		}
	}

	// Create a new gin router
	gin.SetMode(gin.ReleaseMode)
	r := router.SetupRouter(application)

	// Run the server
	logger.Get().Info("starting server", zap.String("port", cfg.EnvVars.Port))
	if err := r.Run(":" + cfg.EnvVars.Port); err != nil {
		logger.Get().Fatal("server stopped", zap.Error(err))
	}
}

// ConfigureRuntime sets the number of operating system threads.
func ConfigureRuntime() {
	nuCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(nuCPU)
	logger.Get().Info("runtime configured", zap.Int("cpus", nuCPU))
}
