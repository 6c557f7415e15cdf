package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/windoze95/groceryplan-api/internal/ai"
	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/policy"
	"github.com/windoze95/groceryplan-api/internal/testutil"
)

// newRobotsSite serves only robots.txt; page bodies come from the mock fetcher.
// hits, when non-nil, counts robots.txt requests.
func newRobotsSite(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if hits != nil {
				atomic.AddInt32(hits, 1)
			}
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type acquirerFixture struct {
	acquirer *RecipeAcquirer
	repo     *testutil.MockCorpusRepo
	search   *testutil.MockSearchProvider
	fetcher  *testutil.MockPageFetcher
	archiver *testutil.MockArchiver
	base     string
	// robotsHits counts robots.txt requests to base.
	robotsHits int32
}

func newAcquirerFixture(t *testing.T, workers int) *acquirerFixture {
	t.Helper()
	return newAcquirerFixtureForSites(t, workers, "127.0.0.1")
}

func newAcquirerFixtureForSites(t *testing.T, workers int, sites ...string) *acquirerFixture {
	t.Helper()
	f := &acquirerFixture{}
	site := newRobotsSite(t, &f.robotsHits)

	cfg := &config.Config{EnvVars: config.EnvVars{AcquireWorkers: workers}}
	gate := policy.NewGate(policy.Options{
		Sites:         sites,
		RobotsTimeout: time.Second,
	})

	f.repo = testutil.NewMockCorpusRepo()
	f.search = &testutil.MockSearchProvider{}
	f.archiver = &testutil.MockArchiver{}
	f.base = site.URL
	f.fetcher = &testutil.MockPageFetcher{
		FetchPageFunc: func(ctx context.Context, pageURL string) ([]byte, error) {
			if strings.Contains(pageURL, "broken") {
				return nil, errors.New("URL returned status 500")
			}
			return []byte("<html>" + pageURL + "</html>"), nil
		},
	}
	extractor := &testutil.MockExtractor{
		ExtractFunc: func(ctx context.Context, pageURL string, html []byte) (*models.Recipe, error) {
			if strings.Contains(pageURL, "norecipe") {
				return nil, &ExtractionError{URL: pageURL, Reason: "no structured recipe data"}
			}
			r := testutil.TestRecipe("Recipe from "+pageURL[strings.LastIndex(pageURL, "/")+1:], "dinner", "vegan")
			r.SourceURL = testutil.StrPtr(pageURL)
			return &r, nil
		},
	}

	f.acquirer = NewRecipeAcquirer(cfg, f.repo, gate, NewRecipeSearcher(f.search), f.fetcher, extractor, f.archiver)
	return f
}

func candidates(urls ...string) []models.CandidateURL {
	out := make([]models.CandidateURL, 0, len(urls))
	for i, u := range urls {
		out = append(out, models.CandidateURL{Index: i, URL: u})
	}
	return out
}

func (f *acquirerFixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.repo.CountRecipes(context.Background())
	if err != nil {
		t.Fatalf("CountRecipes: %v", err)
	}
	return n
}

func sourceURLs(recipes []models.Recipe) []string {
	out := make([]string, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, r.SourceURLValue())
	}
	return out
}

func terminalOutcomes(outcomes []models.FetchOutcome) map[int]models.URLState {
	out := make(map[int]models.URLState)
	for _, o := range outcomes {
		if o.State.Terminal() {
			out[o.Candidate.Index] = o.State
		}
	}
	return out
}

func TestAcquireFrom_StopsAtNeededCount(t *testing.T) {
	f := newAcquirerFixture(t, 1)

	list := candidates(
		"https://unsupported.example.com/recipes/1",
		f.base+"/private/recipe",
		f.base+"/broken",
		f.base+"/good",
		f.base+"/later",
	)

	var outcomes []models.FetchOutcome
	got := f.acquirer.AcquireFrom(context.Background(), list, 1, func(o models.FetchOutcome) {
		outcomes = append(outcomes, o)
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 recipe, got %d", len(got))
	}
	if got[0].SourceURLValue() != f.base+"/good" {
		t.Errorf("expected %s, got %s", f.base+"/good", got[0].SourceURLValue())
	}
	if got[0].ID == 0 {
		t.Error("expected the recipe to be persisted with an ID")
	}

	wantFetched := []string{f.base + "/broken", f.base + "/good"}
	if fetched := f.fetcher.FetchedURLs(); !reflect.DeepEqual(fetched, wantFetched) {
		t.Errorf("expected fetches %v, got %v", wantFetched, fetched)
	}
	wantStates := map[int]models.URLState{
		0: models.URLSkipped,
		1: models.URLSkipped,
		2: models.URLFailed,
		3: models.URLPersisted,
	}
	if states := terminalOutcomes(outcomes); !reflect.DeepEqual(states, wantStates) {
		t.Errorf("expected outcomes %v, got %v", wantStates, states)
	}

	if n := f.count(t); n != 1 {
		t.Errorf("expected 1 stored recipe, got %d", n)
	}
	if archived := f.archiver.Archived[got[0].ID]; archived != f.base+"/good" {
		t.Errorf("expected the page to be archived, got %q", archived)
	}
}

func TestAcquireFrom_UnlistedHostNeverChecksRobots(t *testing.T) {
	// The robots server is reachable but its host is not on the allow-list.
	f := newAcquirerFixtureForSites(t, 1, "budgetbytes.com")

	var outcomes []models.FetchOutcome
	got := f.acquirer.AcquireFrom(context.Background(), candidates(f.base+"/recipe/1"), 1, func(o models.FetchOutcome) {
		outcomes = append(outcomes, o)
	})

	if len(got) != 0 {
		t.Errorf("expected no recipes, got %d", len(got))
	}
	if hits := atomic.LoadInt32(&f.robotsHits); hits != 0 {
		t.Errorf("expected no robots.txt request, got %d", hits)
	}
	if state := terminalOutcomes(outcomes)[0]; state != models.URLSkipped {
		t.Errorf("expected %s, got %s", models.URLSkipped, state)
	}
	for _, o := range outcomes {
		if o.State == models.URLPolicyChecked {
			t.Error("expected the URL never to pass the policy check")
		}
	}
	if fetched := f.fetcher.FetchedURLs(); len(fetched) != 0 {
		t.Errorf("expected no page fetches, got %v", fetched)
	}
}

func TestAcquireFrom_ListedHostChecksRobotsOnce(t *testing.T) {
	f := newAcquirerFixture(t, 1)

	got := f.acquirer.AcquireFrom(context.Background(), candidates(f.base+"/a", f.base+"/b"), 2, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 recipes, got %d", len(got))
	}
	if hits := atomic.LoadInt32(&f.robotsHits); hits != 1 {
		t.Errorf("expected 1 robots.txt request for the batch, got %d", hits)
	}
}

func TestAcquireFrom_StateSequenceForPersistedURL(t *testing.T) {
	f := newAcquirerFixture(t, 1)

	var states []models.URLState
	f.acquirer.AcquireFrom(context.Background(), candidates(f.base+"/good"), 1, func(o models.FetchOutcome) {
		states = append(states, o.State)
	})

	want := []models.URLState{
		models.URLDiscovered,
		models.URLPolicyChecked,
		models.URLFetched,
		models.URLExtracted,
		models.URLPersisted,
	}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("expected states %v, got %v", want, states)
	}
}

func TestAcquireFrom_ExhaustedCandidatesReturnFewer(t *testing.T) {
	f := newAcquirerFixture(t, 1)

	got := f.acquirer.AcquireFrom(context.Background(), candidates(
		f.base+"/a",
		f.base+"/norecipe",
		f.base+"/b",
	), 5, nil)

	want := []string{f.base + "/a", f.base + "/b"}
	if urls := sourceURLs(got); !reflect.DeepEqual(urls, want) {
		t.Errorf("expected %v, got %v", want, urls)
	}
}

func TestAcquireFrom_SkipsURLsAlreadyInCorpus(t *testing.T) {
	f := newAcquirerFixture(t, 1)
	existing := testutil.TestRecipe("Existing", "dinner")
	existing.SourceURL = testutil.StrPtr(f.base + "/known")
	if err := f.repo.CreateRecipe(context.Background(), &existing); err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	var outcomes []models.FetchOutcome
	got := f.acquirer.AcquireFrom(context.Background(), candidates(f.base+"/known", f.base+"/fresh"), 1, func(o models.FetchOutcome) {
		outcomes = append(outcomes, o)
	})

	if urls := sourceURLs(got); !reflect.DeepEqual(urls, []string{f.base + "/fresh"}) {
		t.Errorf("expected only the fresh recipe, got %v", urls)
	}
	if fetched := f.fetcher.FetchedURLs(); !reflect.DeepEqual(fetched, []string{f.base + "/fresh"}) {
		t.Errorf("expected only the fresh page to be fetched, got %v", fetched)
	}
	if state := terminalOutcomes(outcomes)[0]; state != models.URLSkipped {
		t.Errorf("expected the known URL to be skipped, got %s", state)
	}
}

func TestAcquireFrom_ParallelWorkersKeepCandidateOrder(t *testing.T) {
	f := newAcquirerFixture(t, 3)
	f.fetcher.FetchPageFunc = func(ctx context.Context, pageURL string) ([]byte, error) {
		if strings.HasSuffix(pageURL, "/r0") {
			time.Sleep(50 * time.Millisecond)
		}
		return []byte("<html></html>"), nil
	}

	var urls []string
	for i := 0; i < 6; i++ {
		urls = append(urls, fmt.Sprintf("%s/r%d", f.base, i))
	}

	got := f.acquirer.AcquireFrom(context.Background(), candidates(urls...), 2, nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 recipes, got %d", len(got))
	}

	idx := make([]int, 0, len(got))
	for _, r := range got {
		for i, u := range urls {
			if r.SourceURLValue() == u {
				idx = append(idx, i)
			}
		}
	}
	if !sort.IntsAreSorted(idx) {
		t.Errorf("recipes out of candidate order: %v", idx)
	}
	if n := f.count(t); n != 2 {
		t.Errorf("expected 2 stored recipes, got %d", n)
	}
}

func TestAcquire_SearchErrorIsReturned(t *testing.T) {
	f := newAcquirerFixture(t, 1)
	f.search.SearchRecipesFunc = func(ctx context.Context, query string, count int) ([]ai.SearchResult, error) {
		return nil, errors.New("503 from search API")
	}

	intent := models.EmptyIntent()
	intent.DietaryRestrictions = []string{"vegan"}

	got, err := f.acquirer.Acquire(context.Background(), intent, 2)
	if got != nil {
		t.Errorf("expected no recipes, got %v", got)
	}

	var searchErr *SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("expected *SearchError, got %v", err)
	}
	if !searchErr.Retryable() {
		t.Error("expected the search error to be retryable")
	}
	if fetched := f.fetcher.FetchedURLs(); len(fetched) != 0 {
		t.Errorf("expected no fetches, got %v", fetched)
	}
}

func TestAcquire_SearchRequestsAtMostNeeded(t *testing.T) {
	f := newAcquirerFixture(t, 1)
	f.search.SearchRecipesFunc = func(ctx context.Context, query string, count int) ([]ai.SearchResult, error) {
		return []ai.SearchResult{
			{URL: f.base + "/one"},
			{URL: "  "},
			{URL: f.base + "/two"},
			{URL: f.base + "/three"},
		}, nil
	}

	intent := models.EmptyIntent()
	intent.DietaryRestrictions = []string{"vegan"}
	intent.MealTypes = []string{"dinner"}

	got, err := f.acquirer.Acquire(context.Background(), intent, 2)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 recipes, got %d", len(got))
	}

	if !reflect.DeepEqual(f.search.Counts, []int{2}) {
		t.Errorf("expected one search for 2 results, got %v", f.search.Counts)
	}
	if !reflect.DeepEqual(f.search.Queries, []string{"vegan dinner recipe"}) {
		t.Errorf("unexpected search queries %v", f.search.Queries)
	}
	want := []string{f.base + "/one", f.base + "/two"}
	if fetched := f.fetcher.FetchedURLs(); !reflect.DeepEqual(fetched, want) {
		t.Errorf("expected fetches %v, got %v", want, fetched)
	}
}

func TestAcquire_NothingNeeded(t *testing.T) {
	f := newAcquirerFixture(t, 1)
	got, err := f.acquirer.Acquire(context.Background(), models.EmptyIntent(), 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no recipes, got %d", len(got))
	}
	if calls := f.search.Calls(); calls != 0 {
		t.Errorf("expected no search calls, got %d", calls)
	}
}

// --- FetchFromURL ---

func TestFetchFromURL_Errors(t *testing.T) {
	f := newAcquirerFixture(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		url  string
		want error
	}{
		{"unsupported site", "https://unsupported.example.com/r", ErrUnsupportedSite},
		{"robots disallowed", f.base + "/private/r", ErrRobotsDisallowed},
		{"fetch failed", f.base + "/broken", ErrFetchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.acquirer.FetchFromURL(ctx, tt.url, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("no recipe", func(t *testing.T) {
		_, _, err := f.acquirer.FetchFromURL(ctx, f.base+"/norecipe", false)
		var extractErr *ExtractionError
		if !errors.As(err, &extractErr) {
			t.Errorf("expected *ExtractionError, got %v", err)
		}
	})
}

func TestFetchFromURL_PreviewDoesNotSave(t *testing.T) {
	f := newAcquirerFixture(t, 1)

	recipe, saved, err := f.acquirer.FetchFromURL(context.Background(), f.base+"/preview", false)
	if err != nil {
		t.Fatalf("FetchFromURL: %v", err)
	}
	if saved {
		t.Error("expected a preview not to be saved")
	}
	if recipe.ID != 0 {
		t.Errorf("expected no ID, got %d", recipe.ID)
	}
	if n := f.count(t); n != 0 {
		t.Errorf("expected an empty corpus, got %d recipes", n)
	}
}

func TestFetchFromURL_SaveIsIdempotent(t *testing.T) {
	f := newAcquirerFixture(t, 1)
	ctx := context.Background()
	pageURL := f.base + "/keeper"

	first, saved, err := f.acquirer.FetchFromURL(ctx, pageURL, true)
	if err != nil {
		t.Fatalf("first FetchFromURL: %v", err)
	}
	if !saved || first.ID == 0 {
		t.Fatalf("expected the first fetch to be saved, saved=%v id=%d", saved, first.ID)
	}

	second, saved, err := f.acquirer.FetchFromURL(ctx, pageURL, true)
	if err != nil {
		t.Fatalf("second FetchFromURL: %v", err)
	}
	if !saved {
		t.Error("expected the stored recipe to be reported as saved")
	}
	if second.ID != first.ID {
		t.Errorf("expected the stored recipe %d, got %d", first.ID, second.ID)
	}

	if fetched := f.fetcher.FetchedURLs(); len(fetched) != 1 {
		t.Errorf("expected a single page fetch, got %v", fetched)
	}
	if archived := f.archiver.Archived[first.ID]; archived != pageURL {
		t.Errorf("expected %s to be archived, got %q", pageURL, archived)
	}
}

func TestFetchFromURL_WithJSONLDExtractor(t *testing.T) {
	f := newAcquirerFixture(t, 1)
	f.acquirer.Extractor = NewRecipeExtractor(nil)
	f.fetcher.FetchPageFunc = func(ctx context.Context, pageURL string) ([]byte, error) {
		return []byte(testutil.JSONLDRecipePage), nil
	}

	recipe, saved, err := f.acquirer.FetchFromURL(context.Background(), f.base+"/lentil-soup", true)
	if err != nil {
		t.Fatalf("FetchFromURL: %v", err)
	}
	if !saved {
		t.Error("expected the recipe to be saved")
	}
	if recipe.Name != "Lentil Soup" {
		t.Errorf("expected Lentil Soup, got %q", recipe.Name)
	}
	if recipe.MealType != "dinner" {
		t.Errorf("expected meal type dinner, got %q", recipe.MealType)
	}
	if len(recipe.Ingredients) != 4 {
		t.Errorf("expected 4 ingredients, got %d", len(recipe.Ingredients))
	}
}
