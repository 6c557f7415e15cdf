package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/windoze95/groceryplan-api/internal/config"
	"github.com/windoze95/groceryplan-api/internal/logger"
	"github.com/windoze95/groceryplan-api/internal/metrics"
	"github.com/windoze95/groceryplan-api/internal/models"
	"github.com/windoze95/groceryplan-api/internal/policy"
	"github.com/windoze95/groceryplan-api/internal/repository"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedSite means the URL's host is not on the allow-list.
	ErrUnsupportedSite = errors.New("site is not supported")
	// ErrRobotsDisallowed means robots.txt forbids fetching the URL.
	ErrRobotsDisallowed = policy.ErrRobotsDisallowed
	// ErrFetchFailed wraps transport and HTTP status failures for one page.
	ErrFetchFailed = errors.New("failed to fetch page")
)

// OutcomeObserver receives every state change of every candidate URL.
// Calls are serialized.
type OutcomeObserver func(models.FetchOutcome)

// RecipeAcquirer discovers recipes on the web and adds them to the corpus.
// Each candidate URL moves Discovered -> PolicyChecked -> Fetched ->
// Extracted -> Persisted, or stops early as Skipped or Failed. Per-URL
// problems never abort the batch.
type RecipeAcquirer struct {
	Cfg       *config.Config
	Repo      repository.CorpusRepo
	Gate      *policy.Gate
	Searcher  *RecipeSearcher
	Fetcher   PageFetcher
	Extractor RecipePageExtractor
	// Archiver is optional.
	Archiver PageArchiver
}

// NewRecipeAcquirer creates a RecipeAcquirer.
func NewRecipeAcquirer(cfg *config.Config, repo repository.CorpusRepo, gate *policy.Gate, searcher *RecipeSearcher, fetcher PageFetcher, extractor RecipePageExtractor, archiver PageArchiver) *RecipeAcquirer {
	return &RecipeAcquirer{
		Cfg:       cfg,
		Repo:      repo,
		Gate:      gate,
		Searcher:  searcher,
		Fetcher:   fetcher,
		Extractor: extractor,
		Archiver:  archiver,
	}
}

// Acquire runs one acquisition batch for up to needed recipes. The only
// error it returns is a *SearchError from the search step.
func (a *RecipeAcquirer) Acquire(ctx context.Context, intent models.StructuredIntent, needed int) ([]models.Recipe, error) {
	return a.AcquireObserved(ctx, intent, needed, nil)
}

// AcquireObserved is Acquire with a progress callback; observe may be nil.
func (a *RecipeAcquirer) AcquireObserved(ctx context.Context, intent models.StructuredIntent, needed int, observe OutcomeObserver) ([]models.Recipe, error) {
	if needed <= 0 {
		return nil, nil
	}
	log := logger.With(zap.Int("needed", needed))

	candidates, err := a.Searcher.Search(ctx, intent, needed)
	if err != nil {
		metrics.ObserveSearchError()
		log.Error("recipe search failed", zap.Error(err))
		return nil, err
	}
	log.Info("recipe search returned candidates", zap.Int("candidates", len(candidates)))

	recipes := a.AcquireFrom(ctx, candidates, needed, observe)
	metrics.ObserveWebRecipes(len(recipes))
	log.Info("acquisition batch finished", zap.Int("acquired", len(recipes)))
	return recipes, nil
}

// AcquireFrom processes candidates in order until needed recipes are
// persisted or the list runs out. Recipes come back in candidate order.
func (a *RecipeAcquirer) AcquireFrom(ctx context.Context, candidates []models.CandidateURL, needed int, observe OutcomeObserver) []models.Recipe {
	if needed <= 0 {
		return nil
	}

	run := newAcquisitionRun(needed, observe)
	batch := a.Gate.NewBatch()

	workers := 1
	if a.Cfg != nil && a.Cfg.EnvVars.AcquireWorkers > 1 {
		workers = a.Cfg.EnvVars.AcquireWorkers
	}

	jobs := make(chan models.CandidateURL)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				// Not started yet, so it is dropped without an outcome.
				if run.done() || ctx.Err() != nil {
					continue
				}
				a.processCandidate(ctx, batch, run, c)
			}
		}()
	}

feed:
	for _, c := range candidates {
		select {
		case <-run.stop:
			break feed
		case <-ctx.Done():
			break feed
		case jobs <- c:
		}
	}
	close(jobs)
	wg.Wait()

	return run.recipes()
}

// processCandidate walks one URL through the state machine.
func (a *RecipeAcquirer) processCandidate(ctx context.Context, batch *policy.Batch, run *acquisitionRun, c models.CandidateURL) {
	defer func() {
		if r := recover(); r != nil {
			run.finish(c, models.URLFailed, fmt.Sprintf("unexpected error: %v", r), 0)
		}
	}()

	run.transition(c, models.URLDiscovered, "")

	if !a.Gate.IsSupported(c.URL) {
		run.finish(c, models.URLSkipped, ErrUnsupportedSite.Error(), 0)
		return
	}

	exists, err := a.Repo.SourceURLExists(ctx, c.URL)
	if err != nil {
		run.finish(c, models.URLFailed, fmt.Sprintf("corpus lookup: %v", err), 0)
		return
	}
	if exists {
		run.finish(c, models.URLSkipped, "already in corpus", 0)
		return
	}

	if err := batch.CheckRobots(ctx, c.URL); err != nil {
		run.finish(c, models.URLSkipped, err.Error(), 0)
		return
	}
	run.transition(c, models.URLPolicyChecked, "")

	if err := batch.Wait(ctx, c.URL); err != nil {
		run.finish(c, models.URLFailed, fmt.Sprintf("rate limit wait: %v", err), 0)
		return
	}

	html, err := a.Fetcher.FetchPage(ctx, c.URL)
	if err != nil {
		run.finish(c, models.URLFailed, err.Error(), 0)
		return
	}
	run.transition(c, models.URLFetched, "")

	recipe, err := a.Extractor.Extract(ctx, c.URL, html)
	if err != nil {
		run.finish(c, models.URLFailed, err.Error(), 0)
		return
	}
	run.transition(c, models.URLExtracted, "")

	// A faster worker may have filled the batch while this one was fetching.
	if !run.claim() {
		run.finish(c, models.URLSkipped, "batch target already reached", 0)
		return
	}

	if err := a.Repo.CreateRecipe(ctx, recipe); err != nil {
		run.release()
		var dup repository.DuplicateError
		if errors.As(err, &dup) {
			run.finish(c, models.URLSkipped, "already in corpus", 0)
			return
		}
		run.finish(c, models.URLFailed, fmt.Sprintf("persist: %v", err), 0)
		return
	}

	// Persisted before it becomes part of the result.
	run.commit(c, *recipe)
	run.finish(c, models.URLPersisted, "", recipe.ID)

	a.archive(ctx, recipe, html)
}

func (a *RecipeAcquirer) archive(ctx context.Context, recipe *models.Recipe, html []byte) {
	if a.Archiver == nil {
		return
	}
	if _, err := a.Archiver.ArchivePage(ctx, recipe.ID, recipe.SourceURLValue(), html); err != nil {
		// Non-fatal: recipe was still created
		logger.Get().Warn("failed to archive recipe page",
			zap.Uint("recipe_id", recipe.ID),
			zap.Error(err))
	}
}

// FetchFromURL acquires a single recipe outside a search batch. When save is
// true the recipe is stored, or the stored copy returned if the URL is
// already in the corpus. saved reports whether the returned recipe is in
// the corpus.
func (a *RecipeAcquirer) FetchFromURL(ctx context.Context, pageURL string, save bool) (recipe *models.Recipe, saved bool, err error) {
	log := logger.With(zap.String("source_url", pageURL))

	if !a.Gate.IsSupported(pageURL) {
		return nil, false, ErrUnsupportedSite
	}

	if save {
		existing, err := a.Repo.GetRecipeBySourceURL(ctx, pageURL)
		if err == nil {
			log.Info("recipe already in corpus", zap.Uint("recipe_id", existing.ID))
			return existing, true, nil
		}
		if _, notFound := err.(repository.NotFoundError); !notFound {
			return nil, false, err
		}
	}

	batch := a.Gate.NewBatch()
	if err := batch.CheckRobots(ctx, pageURL); err != nil {
		if errors.Is(err, policy.ErrRobotsDisallowed) {
			return nil, false, ErrRobotsDisallowed
		}
		return nil, false, fmt.Errorf("%w: %v", ErrRobotsDisallowed, err)
	}

	html, err := a.Fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	recipe, err = a.Extractor.Extract(ctx, pageURL, html)
	if err != nil {
		return nil, false, err
	}

	if !save {
		return recipe, false, nil
	}

	if err := a.Repo.CreateRecipe(ctx, recipe); err != nil {
		log.Error("failed to save fetched recipe", zap.Error(err))
		return nil, false, fmt.Errorf("failed to save fetched recipe: %w", err)
	}
	log.Info("recipe fetched and saved", zap.Uint("recipe_id", recipe.ID))
	a.archive(ctx, recipe, html)
	return recipe, true, nil
}

// acquisitionRun is the shared state of one batch's workers.
type acquisitionRun struct {
	needed  int
	observe OutcomeObserver

	mu        sync.Mutex
	observeMu sync.Mutex
	reserved  int
	acquired  []indexedRecipe
	stop      chan struct{}
	stopped   bool
}

type indexedRecipe struct {
	index  int
	recipe models.Recipe
}

func newAcquisitionRun(needed int, observe OutcomeObserver) *acquisitionRun {
	return &acquisitionRun{
		needed:  needed,
		observe: observe,
		stop:    make(chan struct{}),
	}
}

func (r *acquisitionRun) done() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// claim reserves a result slot ahead of persistence.
func (r *acquisitionRun) claim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserved >= r.needed {
		return false
	}
	r.reserved++
	return true
}

func (r *acquisitionRun) release() {
	r.mu.Lock()
	r.reserved--
	r.mu.Unlock()
}

// commit records a persisted recipe and stops the batch once enough are in.
func (r *acquisitionRun) commit(c models.CandidateURL, recipe models.Recipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquired = append(r.acquired, indexedRecipe{index: c.Index, recipe: recipe})
	if len(r.acquired) >= r.needed && !r.stopped {
		r.stopped = true
		close(r.stop)
	}
}

// recipes returns the acquired recipes in candidate order.
func (r *acquisitionRun) recipes() []models.Recipe {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(r.acquired, func(i, j int) bool { return r.acquired[i].index < r.acquired[j].index })
	out := make([]models.Recipe, 0, len(r.acquired))
	for _, ir := range r.acquired {
		out = append(out, ir.recipe)
	}
	return out
}

func (r *acquisitionRun) transition(c models.CandidateURL, state models.URLState, reason string) {
	r.emit(models.FetchOutcome{Candidate: c, State: state, Reason: reason})
}

// finish records a terminal state.
func (r *acquisitionRun) finish(c models.CandidateURL, state models.URLState, reason string, recipeID uint) {
	log := logger.With(
		zap.String("url", c.URL),
		zap.String("state", string(state)),
	)
	switch state {
	case models.URLFailed:
		log.Warn("candidate url failed", zap.String("reason", reason))
	case models.URLSkipped:
		log.Info("candidate url skipped", zap.String("reason", reason))
	default:
		log.Info("candidate url persisted", zap.Uint("recipe_id", recipeID))
	}
	metrics.ObserveOutcome(string(state))
	r.emit(models.FetchOutcome{Candidate: c, State: state, Reason: reason, RecipeID: recipeID})
}

func (r *acquisitionRun) emit(o models.FetchOutcome) {
	if r.observe == nil {
		return
	}
	r.observeMu.Lock()
	defer r.observeMu.Unlock()
	r.observe(o)
}
