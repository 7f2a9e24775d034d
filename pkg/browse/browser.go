// Package browse keeps the "load more" state of one category listing.
//
// A Browser owns a pagination.Paginator over catalog pages and projects its
// notifications into a State value: the accumulated books, the loading flag,
// the last error and whether the end of the listing was reached.
package browse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sternrassler/catalog-pager/pkg/catalog"
	"github.com/Sternrassler/catalog-pager/pkg/pagination"
	"github.com/Sternrassler/catalog-pager/pkg/prefs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// UnknownError is shown when a failure carries no message.
const UnknownError = "An unknown error occurred"

// ErrNoCategory is returned by LoadNext and Reload before LoadCategory.
var ErrNoCategory = errors.New("no category selected")

// BookSource fetches one page of a category.
type BookSource interface {
	BooksByCategory(ctx context.Context, category string, page int64, lang catalog.Language) (catalog.BookSet, error)
}

// State is the projection a UI renders.
type State struct {
	IsLoading  bool           `json:"is_loading"`
	Items      []catalog.Book `json:"items"`
	Error      string         `json:"error,omitempty"`
	EndReached bool           `json:"end_reached"`
	Page       int64          `json:"page"`
}

func initialState() State {
	return State{Items: []catalog.Book{}, Page: 1}
}

// Option configures a Browser.
type Option func(*Browser)

// WithOnChange registers a function called with a snapshot after every state
// change.
func WithOnChange(fn func(State)) Option {
	return func(b *Browser) {
		b.onChange = fn
	}
}

// fetched is one catalog page tagged with the listing epoch it was
// requested for. Reload starts a new epoch.
type fetched struct {
	set   catalog.BookSet
	epoch uint64
}

// epochError tags a fetch failure with the listing epoch.
type epochError struct {
	epoch uint64
	err   error
}

func (e *epochError) Error() string { return e.err.Error() }
func (e *epochError) Unwrap() error { return e.err }

// Browser walks one catalog category page by page.
type Browser struct {
	books    BookSource
	prefs    prefs.Store
	logger   zerolog.Logger
	onChange func(State)

	mu       sync.Mutex
	state    State
	category string
	language catalog.Language
	epoch    uint64
	pager    *pagination.Paginator[int64, fetched]
}

// New creates a Browser and loads the preferred language from store. A
// missing or unreadable preference falls back to catalog.AllBooks.
func New(ctx context.Context, books BookSource, store prefs.Store, opts ...Option) (*Browser, error) {
	if books == nil {
		return nil, fmt.Errorf("book source is required")
	}
	if store == nil {
		return nil, fmt.Errorf("preference store is required")
	}

	b := &Browser{
		books:  books,
		prefs:  store,
		logger: log.With().Str("component", "browser").Logger(),
		state:  initialState(),
	}
	for _, opt := range opts {
		opt(b)
	}

	code, err := store.GetString(ctx, prefs.KeyPreferredBookLang, catalog.AllBooks.ISOCode)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to read preferred language, using all books")
	}
	b.language = catalog.LanguageByCode(code)

	return b, nil
}

// LoadCategory selects category and loads its next page. Selecting a
// different category than before starts over from the first page.
func (b *Browser) LoadCategory(ctx context.Context, category string) (pagination.Outcome, error) {
	if !catalog.IsCategory(category) {
		return pagination.OutcomeSkipped, fmt.Errorf("%w: %q", catalog.ErrUnknownCategory, category)
	}

	b.mu.Lock()
	switching := b.pager != nil && b.category != category
	b.category = category
	if b.pager == nil {
		pager, err := b.newPaginator()
		if err != nil {
			b.mu.Unlock()
			return pagination.OutcomeSkipped, err
		}
		b.pager = pager
	}
	b.mu.Unlock()

	if switching {
		b.logger.Info().Str("category", category).Msg("Category changed, reloading")
		return b.Reload(ctx)
	}
	return b.LoadNext(ctx)
}

func (b *Browser) newPaginator() (*pagination.Paginator[int64, fetched], error) {
	source := pagination.SourceFuncs[int64, fetched]{
		FetchFunc: func(ctx context.Context, page int64) (fetched, error) {
			category, lang, epoch := b.selection()
			set, err := b.books.BooksByCategory(ctx, category, page, lang)
			if err != nil {
				return fetched{epoch: epoch}, &epochError{epoch: epoch, err: err}
			}
			return fetched{set: set, epoch: epoch}, nil
		},
		NextKeyFunc: pagination.Increment[int64](1),
	}

	return pagination.New(b.state.Page, pagination.Source[int64, fetched](source),
		pagination.Callbacks[int64, fetched]{
			OnLoadingChanged: b.onLoadingChanged,
			OnSuccess:        b.onSuccess,
			OnError:          b.onError,
		},
		pagination.WithName("browse"),
		pagination.WithLogger(b.logger),
	)
}

// LoadNext loads the next page unless the end was reached or a page is
// already loading.
func (b *Browser) LoadNext(ctx context.Context) (pagination.Outcome, error) {
	b.mu.Lock()
	pager := b.pager
	endReached := b.state.EndReached
	b.mu.Unlock()

	if pager == nil {
		return pagination.OutcomeSkipped, ErrNoCategory
	}
	if endReached {
		b.logger.Debug().Msg("End reached, not loading more")
		return pagination.OutcomeSkipped, nil
	}
	return pager.Advance(ctx), nil
}

// Reload drops every loaded book and loads the first page again.
func (b *Browser) Reload(ctx context.Context) (pagination.Outcome, error) {
	b.mu.Lock()
	pager := b.pager
	if pager == nil {
		b.mu.Unlock()
		return pagination.OutcomeSkipped, ErrNoCategory
	}
	pager.Reset()
	b.epoch++
	b.state = initialState()
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(snapshot)
	return b.LoadNext(ctx)
}

// ChangeLanguage stores lang as the preferred language and reloads the
// current category with it. The listing is reloaded even if storing the
// preference fails; the storage error is returned afterwards.
func (b *Browser) ChangeLanguage(ctx context.Context, lang catalog.Language) (pagination.Outcome, error) {
	b.mu.Lock()
	b.language = lang
	hasCategory := b.pager != nil
	b.mu.Unlock()

	storeErr := b.prefs.PutString(ctx, prefs.KeyPreferredBookLang, lang.ISOCode)
	if storeErr != nil {
		b.logger.Warn().Err(storeErr).Str("language", lang.ISOCode).Msg("Failed to store preferred language")
		storeErr = fmt.Errorf("store preferred language: %w", storeErr)
	}

	if !hasCategory {
		return pagination.OutcomeSkipped, storeErr
	}

	outcome, err := b.Reload(ctx)
	if err != nil {
		return outcome, err
	}
	return outcome, storeErr
}

// Language returns the active language filter.
func (b *Browser) Language() catalog.Language {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.language
}

// Category returns the selected category, or "" before LoadCategory.
func (b *Browser) Category() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.category
}

// State returns a snapshot of the current state.
func (b *Browser) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Browser) selection() (string, catalog.Language, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.category, b.language, b.epoch
}

func (b *Browser) onLoadingChanged(loading bool) {
	b.update(func(s *State) {
		// A fetch started after a Reload may already be running when the
		// previous one reports false.
		s.IsLoading = loading || b.pager.Loading()
		if loading {
			s.Error = ""
		}
	})
}

func (b *Browser) onSuccess(f fetched, next int64) {
	set := f.set
	books := make([]catalog.Book, 0, len(set.Results))
	for _, book := range set.Results {
		if book.HasEpub() {
			books = append(books, book)
		}
	}

	applied := b.updateEpoch(f.epoch, func(s *State) {
		s.Items = append(s.Items, books...)
		s.Page = next
		s.EndReached = len(set.Results) == 0
	})
	if !applied {
		b.logger.Debug().Int64("next_page", next).Msg("Dropping page fetched before reload")
		return
	}

	b.logger.Debug().
		Int("received", len(set.Results)).
		Int("kept", len(books)).
		Int64("next_page", next).
		Bool("invalid_page", set.IsInvalidPage()).
		Msg("Page merged")
}

func (b *Browser) onError(err error) {
	msg := UnknownError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	apply := func(s *State) {
		s.Error = msg
	}

	var tagged *epochError
	if errors.As(err, &tagged) {
		if !b.updateEpoch(tagged.epoch, apply) {
			b.logger.Debug().Err(err).Msg("Dropping error of fetch started before reload")
		}
		return
	}
	b.update(apply)
}

func (b *Browser) update(fn func(*State)) {
	b.mu.Lock()
	fn(&b.state)
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(snapshot)
}

// updateEpoch applies fn only if no Reload happened since epoch.
func (b *Browser) updateEpoch(epoch uint64, fn func(*State)) bool {
	b.mu.Lock()
	if epoch != b.epoch {
		b.mu.Unlock()
		return false
	}
	fn(&b.state)
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.notify(snapshot)
	return true
}

func (b *Browser) notify(s State) {
	if b.onChange != nil {
		b.onChange(s)
	}
}

func (b *Browser) snapshotLocked() State {
	s := b.state
	s.Items = make([]catalog.Book, len(b.state.Items))
	copy(s.Items, b.state.Items)
	return s
}
