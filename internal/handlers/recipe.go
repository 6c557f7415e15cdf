package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/gin-gonic/gin"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/policy"
	"github.com/windoze95/groceryplan-api/internal/repository"
	"github.com/windoze95/groceryplan-api/internal/service"
	"go.uber.org/zap"
)

// RecipeHandler is the handler for recipe-related requests.
type RecipeHandler struct {
	Service  *service.RecipeService
	Acquirer *service.RecipeAcquirer
	Gate     *policy.Gate
}

// NewRecipeHandler is the constructor function for initializing a new RecipeHandler.
func NewRecipeHandler(recipeService *service.RecipeService, acquirer *service.RecipeAcquirer, gate *policy.Gate) *RecipeHandler {
	return &RecipeHandler{
		Service:  recipeService,
		Acquirer: acquirer,
		Gate:     gate,
	}
}

// ListRecipes returns the whole corpus.
func (h *RecipeHandler) ListRecipes(c *gin.Context) {
	recipes, err := h.Service.ListRecipes(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("failed to list recipes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recipes"})
		return
	}

	c.JSON(http.StatusOK, recipes)
}

// GetRecipe returns a recipe by ID.
func (h *RecipeHandler) GetRecipe(c *gin.Context) {
	recipeIDStr := c.Param("recipe_id")
	recipeID, err := parseUintParam(recipeIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipe ID"})
		return
	}

	recipeResponse, err := h.Service.GetRecipeByID(c.Request.Context(), recipeID)
	if err != nil {
		switch e := err.(type) {
		case repository.NotFoundError:
			c.JSON(http.StatusNotFound, gin.H{"error": e.Error()})
		default:
			logger.FromGin(c).Error("failed to get recipe", zap.String("recipe_id", recipeIDStr), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": e.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, recipeResponse)
}

// SupportedSites lists the sites recipes may be fetched from.
func (h *RecipeHandler) SupportedSites(c *gin.Context) {
	sites := h.Gate.SupportedSites()
	c.JSON(http.StatusOK, gin.H{
		"supported_sites": sites,
		"total_count":     len(sites),
		"message":         fmt.Sprintf("This API supports fetching recipes from %d websites", len(sites)),
	})
}

type fetchFromURLRequest struct {
	URL      string `json:"url"`
	SaveToDB bool   `json:"save_to_db"`
}

// FetchFromURL extracts a recipe from a single supported page and, when
// asked, stores it in the corpus.
func (h *RecipeHandler) FetchFromURL(c *gin.Context) {
	var req fetchFromURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	pageURL := strings.TrimSpace(req.URL)
	if pageURL == "" || !govalidator.IsURL(pageURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid url is required"})
		return
	}

	log := logger.FromGin(c).With(zap.String("source_url", pageURL))

	recipe, saved, err := h.Acquirer.FetchFromURL(c.Request.Context(), pageURL, req.SaveToDB)
	if err != nil {
		if isFetchRejection(err) {
			log.Info("recipe fetch rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error("failed to fetch recipe", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching recipe: " + err.Error()})
		return
	}

	message := "Recipe fetched successfully"
	if saved {
		message += " and saved to database"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    message,
		"recipe":     service.ToRecipeResponse(recipe),
		"source_url": pageURL,
	})
}

// isFetchRejection reports whether err is the caller's problem: a site we do
// not fetch from, a page we may not fetch, or a page without a recipe.
func isFetchRejection(err error) bool {
	var extractErr *service.ExtractionError
	return errors.Is(err, service.ErrUnsupportedSite) ||
		errors.Is(err, service.ErrRobotsDisallowed) ||
		errors.Is(err, service.ErrFetchFailed) ||
		errors.As(err, &extractErr)
}
