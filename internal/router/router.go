package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/windoze95/groceryplan-api/internal/app"
	"github.com/windoze95/groceryplan-api/internal/handlers"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/metrics"
	"github.com/windoze95/groceryplan-api/internal/middleware"
	"github.com/windoze95/groceryplan-api/internal/ws"
)

const (
	rateLimitCleanupInterval = time.Minute
	rateLimitExpiration      = 10 * time.Minute
)

// SetupRouter sets up the Gin router.
func SetupRouter(application *app.App) *gin.Engine {
	cfg := application.Cfg

	// Create default Gin router
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AddAllowHeaders("Authorization", "X-Request-ID")
	corsConfig.AddExposeHeaders("X-Request-ID", "Retry-After")
	if allowAllOrigins(cfg.EnvVars.CorsOrigins) {
		// Credentials cannot be combined with a wildcard origin.
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowCredentials = true
		corsConfig.AllowOrigins = cfg.EnvVars.CorsOrigins
	}
	r.Use(cors.New(corsConfig))

	// Add request ID middleware for request correlation
	r.Use(logger.RequestIDMiddleware())
	r.Use(metrics.Middleware())

	// Ping route for testing
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	r.GET("/", handlers.Root)
	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	queryHandler := handlers.NewQueryHandler(application.Pipeline, cfg.EnvVars.MaxQueryLength)
	recipeHandler := handlers.NewRecipeHandler(application.Recipes, application.Acquirer, application.Gate)

	limited := middleware.RateLimitByIP(cfg.EnvVars.RateLimitRPS, rateLimitCleanupInterval, rateLimitExpiration)

	// Group for API routes that don't require token verification
	apiPublic := r.Group("/v1")
	{
		apiPublic.GET("/health", handlers.Health)

		// Interpret a query and plan meals plus a grocery list
		apiPublic.POST("/query", limited, queryHandler.Query)

		// Recipe-related routes
		apiPublic.GET("/recipes", recipeHandler.ListRecipes)
		apiPublic.GET("/recipes/supported-sites", recipeHandler.SupportedSites)
		apiPublic.GET("/recipes/:recipe_id", recipeHandler.GetRecipe)
	}

	// Group for API routes that require token verification
	apiProtected := r.Group("/v1")
	{
		apiProtected.Use(middleware.VerifyTokenMiddleware(cfg.EnvVars.JwtSecretKey))

		// Fetch a single recipe page, optionally storing it
		apiProtected.POST("/recipes/fetch-from-url", limited, recipeHandler.FetchFromURL)
	}

	// WebSocket route streaming acquisition progress for a query
	hub := ws.NewHub()
	go hub.Run()
	wsHandler := ws.NewQueryHandler(hub, application.Pipeline, queryHandler.ValidateQuery, cfg.EnvVars.CorsOrigins)
	r.GET("/v1/ws/query", limited, wsHandler.HandleQuerySession)

	return r
}

func allowAllOrigins(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
