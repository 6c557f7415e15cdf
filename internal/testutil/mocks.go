package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/windoze95/groceryplan-api/internal/ai"
	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/repository"
)

// --- MockTextProvider ---

// MockTextProvider is a mock implementation of ai.TextProvider.
type MockTextProvider struct {
	CompleteFunc              func(ctx context.Context, system, prompt string) (string, error)
	ExtractRecipeFromTextFunc func(ctx context.Context, pageURL, text string) (*ai.RecipeResult, error)

	mu            sync.Mutex
	CompleteCalls int
}

func (m *MockTextProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.CompleteCalls++
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, prompt)
	}
	return "", fmt.Errorf("Complete not configured")
}

func (m *MockTextProvider) ExtractRecipeFromText(ctx context.Context, pageURL, text string) (*ai.RecipeResult, error) {
	if m.ExtractRecipeFromTextFunc != nil {
		return m.ExtractRecipeFromTextFunc(ctx, pageURL, text)
	}
	return nil, fmt.Errorf("ExtractRecipeFromText not configured")
}

// --- MockSearchProvider ---

// MockSearchProvider is a mock implementation of ai.SearchProvider.
type MockSearchProvider struct {
	SearchRecipesFunc func(ctx context.Context, query string, count int) ([]ai.SearchResult, error)

	mu      sync.Mutex
	Queries []string
	Counts  []int
}

func (m *MockSearchProvider) SearchRecipes(ctx context.Context, query string, count int) ([]ai.SearchResult, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.Counts = append(m.Counts, count)
	m.mu.Unlock()
	if m.SearchRecipesFunc != nil {
		return m.SearchRecipesFunc(ctx, query, count)
	}
	return nil, fmt.Errorf("SearchRecipes not configured")
}

// Calls returns how many searches were made.
func (m *MockSearchProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// --- MockPageFetcher ---

// MockPageFetcher is a mock implementation of service.PageFetcher that
// records every URL it is asked for.
type MockPageFetcher struct {
	FetchPageFunc func(ctx context.Context, pageURL string) ([]byte, error)

	mu      sync.Mutex
	Fetched []string
}

func (m *MockPageFetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	m.mu.Lock()
	m.Fetched = append(m.Fetched, pageURL)
	m.mu.Unlock()
	if m.FetchPageFunc != nil {
		return m.FetchPageFunc(ctx, pageURL)
	}
	return nil, fmt.Errorf("FetchPage not configured")
}

// FetchedURLs returns a copy of the fetched URLs in call order.
func (m *MockPageFetcher) FetchedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Fetched...)
}

// --- MockExtractor ---

// MockExtractor is a mock implementation of service.RecipePageExtractor.
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, pageURL string, html []byte) (*models.Recipe, error)
}

func (m *MockExtractor) Extract(ctx context.Context, pageURL string, html []byte) (*models.Recipe, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, pageURL, html)
	}
	return nil, fmt.Errorf("Extract not configured")
}

// --- MockArchiver ---

// MockArchiver is a mock implementation of service.PageArchiver.
type MockArchiver struct {
	ArchivePageErr error

	mu       sync.Mutex
	Archived map[uint]string
}

func (m *MockArchiver) ArchivePage(ctx context.Context, recipeID uint, sourceURL string, html []byte) (string, error) {
	if m.ArchivePageErr != nil {
		return "", m.ArchivePageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Archived == nil {
		m.Archived = make(map[uint]string)
	}
	m.Archived[recipeID] = sourceURL
	return fmt.Sprintf("s3://test/recipes/%d", recipeID), nil
}

// --- MockCorpusRepo ---

// MockCorpusRepo is an in-memory mock implementation of repository.CorpusRepo.
// Reads return recipes in ascending ID order.
type MockCorpusRepo struct {
	mu      sync.Mutex
	Recipes map[uint]*models.Recipe
	NextID  uint

	// Error overrides: set these to force specific methods to return errors.
	ListRecipesErr  error
	QueryRecipesErr error
	CreateRecipeErr error
	SourceURLErr    error
}

// NewMockCorpusRepo creates a MockCorpusRepo holding recipes. Recipes
// without an ID are assigned one in order.
func NewMockCorpusRepo(recipes ...models.Recipe) *MockCorpusRepo {
	m := &MockCorpusRepo{
		Recipes: make(map[uint]*models.Recipe),
		NextID:  1,
	}
	for i := range recipes {
		r := recipes[i]
		if r.ID == 0 {
			r.ID = m.NextID
		}
		if r.ID >= m.NextID {
			m.NextID = r.ID + 1
		}
		m.Recipes[r.ID] = &r
	}
	return m
}

func (m *MockCorpusRepo) sorted() []models.Recipe {
	out := make([]models.Recipe, 0, len(m.Recipes))
	for _, r := range m.Recipes {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockCorpusRepo) ListRecipes(ctx context.Context) ([]models.Recipe, error) {
	if m.ListRecipesErr != nil {
		return nil, m.ListRecipesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

// QueryRecipes returns every recipe; callers apply their own filters.
func (m *MockCorpusRepo) QueryRecipes(ctx context.Context, q repository.RecipeQuery) ([]models.Recipe, error) {
	if m.QueryRecipesErr != nil {
		return nil, m.QueryRecipesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *MockCorpusRepo) GetRecipeByID(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Recipes[recipeID]
	if !ok {
		return nil, repository.NewNotFoundError("Recipe not found")
	}
	cp := *r
	return &cp, nil
}

func (m *MockCorpusRepo) GetRecipeBySourceURL(ctx context.Context, sourceURL string) (*models.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Recipes {
		if r.SourceURLValue() == sourceURL {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.NewNotFoundError("Recipe not found")
}

func (m *MockCorpusRepo) SourceURLExists(ctx context.Context, sourceURL string) (bool, error) {
	if m.SourceURLErr != nil {
		return false, m.SourceURLErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Recipes {
		if r.SourceURLValue() == sourceURL {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockCorpusRepo) CreateRecipe(ctx context.Context, recipe *models.Recipe) error {
	if m.CreateRecipeErr != nil {
		return m.CreateRecipeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if src := recipe.SourceURLValue(); src != "" {
		for _, r := range m.Recipes {
			if r.SourceURLValue() == src {
				return repository.DuplicateError{SourceURL: src}
			}
		}
	}
	if recipe.Servings <= 0 {
		recipe.Servings = models.DefaultServings
	}
	recipe.ID = m.NextID
	m.NextID++
	cp := *recipe
	m.Recipes[recipe.ID] = &cp
	return nil
}

func (m *MockCorpusRepo) CountRecipes(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Recipes)), nil
}
