package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/policy"
	"github.com/windoze95/groceryplan-api/internal/service"
	"github.com/windoze95/groceryplan-api/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type handlerFixture struct {
	cfg      *config.Config
	repo     *testutil.MockCorpusRepo
	search   *testutil.MockSearchProvider
	fetcher  *testutil.MockPageFetcher
	gate     *policy.Gate
	acquirer *service.RecipeAcquirer
	base     string
}

// newHandlerFixture wires a real gate against a local robots.txt server and
// serves page bodies from a mock fetcher: /good carries JSON-LD, /empty has
// no recipe and /broken fails.
func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(site.Close)

	f := &handlerFixture{
		cfg: &config.Config{EnvVars: config.EnvVars{
			DefaultMealCount: 5,
			AcquireWorkers:   1,
		}},
		repo: testutil.NewMockCorpusRepo(
			testutil.VeganChiliRecipe(),
			testutil.VegetarianFrittataRecipe(),
			testutil.RiceBowlRecipe(),
		),
		search: &testutil.MockSearchProvider{},
		fetcher: &testutil.MockPageFetcher{
			FetchPageFunc: func(ctx context.Context, pageURL string) ([]byte, error) {
				switch {
				case strings.HasSuffix(pageURL, "/good"):
					return []byte(testutil.JSONLDRecipePage), nil
				case strings.HasSuffix(pageURL, "/empty"):
					return []byte("<html><body><p>Nothing to see.</p></body></html>"), nil
				}
				return nil, errors.New("URL returned status 500")
			},
		},
		gate: policy.NewGate(policy.Options{
			Sites:         []string{"127.0.0.1", "budgetbytes.com"},
			RobotsTimeout: time.Second,
		}),
		base: site.URL,
	}
	f.acquirer = service.NewRecipeAcquirer(f.cfg, f.repo, f.gate,
		service.NewRecipeSearcher(f.search), f.fetcher,
		service.NewRecipeExtractor(nil), &testutil.MockArchiver{})
	return f
}

func (f *handlerFixture) recipeRouter() *gin.Engine {
	h := NewRecipeHandler(service.NewRecipeService(service.NewRecipeMatcher(f.repo)), f.acquirer, f.gate)
	r := gin.New()
	r.GET("/recipes", h.ListRecipes)
	r.GET("/recipes/supported-sites", h.SupportedSites)
	r.GET("/recipes/:recipe_id", h.GetRecipe)
	r.POST("/recipes/fetch-from-url", h.FetchFromURL)
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.repo.CountRecipes(context.Background())
	if err != nil {
		t.Fatalf("CountRecipes: %v", err)
	}
	return n
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestListRecipes(t *testing.T) {
	f := newHandlerFixture(t)
	w := doJSON(f.recipeRouter(), http.MethodGet, "/recipes", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var recipes []service.RecipeResponse
	decodeBody(t, w, &recipes)
	if len(recipes) != 3 {
		t.Fatalf("expected 3 recipes, got %d", len(recipes))
	}
	if recipes[0].Name != "Black Bean Chili" {
		t.Errorf("expected first recipe Black Bean Chili, got %q", recipes[0].Name)
	}
}

func TestListRecipes_RepoError(t *testing.T) {
	f := newHandlerFixture(t)
	f.repo.ListRecipesErr = errors.New("db gone")

	w := doJSON(f.recipeRouter(), http.MethodGet, "/recipes", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestGetRecipe(t *testing.T) {
	f := newHandlerFixture(t)
	r := f.recipeRouter()

	tests := []struct {
		path       string
		wantStatus int
		wantName   string
		wantError  string
	}{
		{"/recipes/2", http.StatusOK, "Spinach Frittata", ""},
		{"/recipes/99", http.StatusNotFound, "", "Recipe not found"},
		{"/recipes/abc", http.StatusBadRequest, "", "Invalid recipe ID"},
		{"/recipes/0", http.StatusBadRequest, "", "Invalid recipe ID"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, tt.path, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			var body map[string]interface{}
			decodeBody(t, w, &body)
			if tt.wantName != "" && body["name"] != tt.wantName {
				t.Errorf("expected name %q, got %v", tt.wantName, body["name"])
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("expected error %q, got %v", tt.wantError, body["error"])
			}
		})
	}
}

func TestSupportedSites(t *testing.T) {
	f := newHandlerFixture(t)
	w := doJSON(f.recipeRouter(), http.MethodGet, "/recipes/supported-sites", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body struct {
		SupportedSites []string `json:"supported_sites"`
		TotalCount     int      `json:"total_count"`
		Message        string   `json:"message"`
	}
	decodeBody(t, w, &body)
	if body.TotalCount != 2 || len(body.SupportedSites) != 2 {
		t.Errorf("expected 2 supported sites, got %d (%v)", body.TotalCount, body.SupportedSites)
	}
	if body.Message != "This API supports fetching recipes from 2 websites" {
		t.Errorf("unexpected message %q", body.Message)
	}
}

func TestFetchFromURL_Rejections(t *testing.T) {
	f := newHandlerFixture(t)
	r := f.recipeRouter()

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed body", "{"},
		{"missing url", map[string]interface{}{"save_to_db": true}},
		{"not a url", map[string]interface{}{"url": "not a url"}},
		{"unsupported site", map[string]interface{}{"url": "https://unsupported.example.com/recipe"}},
		{"robots disallowed", map[string]interface{}{"url": f.base + "/private/recipe"}},
		{"fetch failed", map[string]interface{}{"url": f.base + "/broken"}},
		{"no recipe on page", map[string]interface{}{"url": f.base + "/empty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/recipes/fetch-from-url", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	if f.count(t) != 3 {
		t.Errorf("rejected fetches must not touch the corpus, have %d recipes", f.count(t))
	}
}

func TestFetchFromURL_SaveToDB(t *testing.T) {
	f := newHandlerFixture(t)
	r := f.recipeRouter()
	pageURL := f.base + "/good"

	w := doJSON(r, http.MethodPost, "/recipes/fetch-from-url", map[string]interface{}{
		"url":        pageURL,
		"save_to_db": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Success   bool                   `json:"success"`
		Message   string                 `json:"message"`
		Recipe    service.RecipeResponse `json:"recipe"`
		SourceURL string                 `json:"source_url"`
	}
	decodeBody(t, w, &body)
	if !body.Success {
		t.Error("expected success true")
	}
	if body.Message != "Recipe fetched successfully and saved to database" {
		t.Errorf("unexpected message %q", body.Message)
	}
	if body.Recipe.Name != "Lentil Soup" || body.Recipe.ID == 0 {
		t.Errorf("unexpected recipe %+v", body.Recipe)
	}
	if body.SourceURL != pageURL {
		t.Errorf("expected source_url %q, got %q", pageURL, body.SourceURL)
	}
	if f.count(t) != 4 {
		t.Errorf("expected the recipe to be stored, have %d recipes", f.count(t))
	}

	// A second save returns the stored copy.
	w = doJSON(r, http.MethodPost, "/recipes/fetch-from-url", map[string]interface{}{
		"url":        pageURL,
		"save_to_db": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 on repeat, got %d", w.Code)
	}
	if f.count(t) != 4 {
		t.Errorf("repeat save must not duplicate, have %d recipes", f.count(t))
	}
}

func TestFetchFromURL_PreviewOnly(t *testing.T) {
	f := newHandlerFixture(t)
	w := doJSON(f.recipeRouter(), http.MethodPost, "/recipes/fetch-from-url", map[string]interface{}{
		"url": f.base + "/good",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	decodeBody(t, w, &body)
	if body["message"] != "Recipe fetched successfully" {
		t.Errorf("unexpected message %v", body["message"])
	}
	if f.count(t) != 3 {
		t.Errorf("preview must not store, have %d recipes", f.count(t))
	}
}

func TestFetchFromURL_SaveFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.repo.CreateRecipeErr = errors.New("disk full")

	w := doJSON(f.recipeRouter(), http.MethodPost, "/recipes/fetch-from-url", map[string]interface{}{
		"url":        f.base + "/good",
		"save_to_db": true,
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	var body map[string]interface{}
	decodeBody(t, w, &body)
	if msg, _ := body["error"].(string); !strings.HasPrefix(msg, "Error fetching recipe: ") {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestHealthAndRoot(t *testing.T) {
	r := gin.New()
	r.GET("/", Root)
	r.GET("/health", Health)

	w := doJSON(r, http.MethodGet, "/health", nil)
	var health map[string]string
	decodeBody(t, w, &health)
	if w.Code != http.StatusOK || health["status"] != "healthy" || health["service"] != serviceName {
		t.Errorf("unexpected health response %d %v", w.Code, health)
	}

	w = doJSON(r, http.MethodGet, "/", nil)
	var root map[string]string
	decodeBody(t, w, &root)
	if root["version"] != "1.0.0" {
		t.Errorf("unexpected root response %v", root)
	}
}
