package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/recipes/:recipe_id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/recipes/:recipe_id", "200")
	unmatched := httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before, beforeUnmatched := testutil.ToFloat64(counter), testutil.ToFloat64(unmatched)

	for _, path := range []string{"/v1/recipes/1", "/v1/recipes/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("route counter delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(unmatched) - beforeUnmatched; got != 1 {
		t.Errorf("unmatched counter delta = %v, want 1", got)
	}
}

func TestObserveHelpers(t *testing.T) {
	persisted := acquisitionOutcomes.WithLabelValues("persisted")
	before := testutil.ToFloat64(persisted)
	ObserveOutcome("persisted")
	if got := testutil.ToFloat64(persisted) - before; got != 1 {
		t.Errorf("outcome delta = %v, want 1", got)
	}

	webBefore := testutil.ToFloat64(webRecipesTotal)
	ObserveWebRecipes(0)
	ObserveWebRecipes(3)
	if got := testutil.ToFloat64(webRecipesTotal) - webBefore; got != 3 {
		t.Errorf("web recipes delta = %v, want 3", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	ObserveInterpret(PathFallback)

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(w.Body.String(), `groceryplan_interpret_total{path="fallback"}`) {
		t.Error("expected interpret counter in /metrics output")
	}
}
