package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	goaway "github.com/TwiN/go-away"
	"github.com/gin-gonic/gin"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/service"
	"go.uber.org/zap"
)

// retryAfterSeconds is sent with 503 responses caused by search outages.
const retryAfterSeconds = "30"

// QueryHandler is the handler for meal-planning queries.
type QueryHandler struct {
	Pipeline       *service.QueryPipeline
	MaxQueryLength int
	profanity      *goaway.ProfanityDetector
}

// NewQueryHandler creates a QueryHandler. A non-positive maxQueryLength
// disables the length check. Profanity never rejects a query; it is only
// masked in logs.
func NewQueryHandler(pipeline *service.QueryPipeline, maxQueryLength int) *QueryHandler {
	return &QueryHandler{
		Pipeline:       pipeline,
		MaxQueryLength: maxQueryLength,
		profanity:      goaway.NewProfanityDetector().WithSanitizeLeetSpeak(true).WithSanitizeSpecialCharacters(true).WithSanitizeAccents(false),
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

// ValidateQuery checks a free-text query before it reaches the pipeline.
func (h *QueryHandler) ValidateQuery(query string) error {
	if query == "" {
		return errors.New("query is required")
	}
	if h.MaxQueryLength > 0 && utf8.RuneCountInString(query) > h.MaxQueryLength {
		return fmt.Errorf("query must be at most %d characters", h.MaxQueryLength)
	}
	return nil
}

// CensorForLog masks profanity in a query before it is logged. The pipeline
// always sees the query unchanged.
func (h *QueryHandler) CensorForLog(query string) string {
	if !h.profanity.IsProfane(query) {
		return query
	}
	return h.profanity.Censor(query)
}

// Query interprets a free-text request and returns recipes plus a grocery list.
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	query := strings.TrimSpace(req.Query)
	if err := h.ValidateQuery(query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.FromGin(c).Info("processing query", zap.String("query", h.CensorForLog(query)))

	result, err := h.Pipeline.Run(c.Request.Context(), query)
	if err != nil {
		writePipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// writePipelineError maps pipeline errors onto HTTP statuses.
func writePipelineError(c *gin.Context, err error) {
	log := logger.FromGin(c)

	var searchErr *service.SearchError
	if errors.As(err, &searchErr) {
		log.Warn("query failed on web search", zap.Error(err))
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": searchErr.Error()})
		return
	}

	log.Error("failed to process query", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Error processing query"})
}
