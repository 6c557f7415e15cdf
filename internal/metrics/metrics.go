// Package metrics exposes the Prometheus collectors for the query pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Interpret paths.
const (
	PathLLM      = "llm"
	PathFallback = "fallback"
)

var (
	interpretTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groceryplan_interpret_total",
			Help: "Query interpretations by the path that produced the intent",
		},
		[]string{"path"},
	)

	acquisitionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groceryplan_acquisition_outcomes_total",
			Help: "Terminal states reached by candidate recipe URLs",
		},
		[]string{"state"},
	)

	webRecipesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groceryplan_web_recipes_total",
			Help: "Recipes acquired from the web and added to the corpus",
		},
	)

	searchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groceryplan_search_errors_total",
			Help: "Web search calls that failed",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groceryplan_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groceryplan_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ObserveInterpret counts one interpretation on the given path.
func ObserveInterpret(path string) {
	interpretTotal.WithLabelValues(path).Inc()
}

// ObserveOutcome counts one candidate URL reaching a terminal state.
func ObserveOutcome(state string) {
	acquisitionOutcomes.WithLabelValues(state).Inc()
}

// ObserveWebRecipes adds n acquired recipes.
func ObserveWebRecipes(n int) {
	if n > 0 {
		webRecipesTotal.Add(float64(n))
	}
}

// ObserveSearchError counts one failed search call.
func ObserveSearchError() {
	searchErrorsTotal.Inc()
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
