package browse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-pager/internal/testutil"
	"github.com/Sternrassler/catalog-pager/pkg/catalog"
	"github.com/Sternrassler/catalog-pager/pkg/pagination"
	"github.com/Sternrassler/catalog-pager/pkg/prefs"
)

type request struct {
	category string
	page     int64
	lang     string
}

// fakeBooks serves pages of books per category with optional failures.
type fakeBooks struct {
	mu       sync.Mutex
	pages    map[string][][]catalog.Book
	failures map[int64]error
	requests []request
}

func (f *fakeBooks) BooksByCategory(_ context.Context, category string, page int64, lang catalog.Language) (catalog.BookSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, request{category: category, page: page, lang: lang.ISOCode})
	if err, ok := f.failures[page]; ok {
		return catalog.BookSet{}, err
	}

	pages := f.pages[category]
	if int(page) > len(pages) {
		return catalog.BookSet{Results: []catalog.Book{}}, nil
	}
	return catalog.BookSet{Results: pages[page-1]}, nil
}

func (f *fakeBooks) lastRequest() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeBooks) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func book(id int64, epub bool) catalog.Book {
	b := catalog.Book{ID: id, Title: fmt.Sprintf("Book %d", id), Formats: map[string]string{}}
	if epub {
		b.Formats[catalog.FormatEpub] = fmt.Sprintf("https://example.org/%d.epub", id)
	}
	return b
}

func ids(books []catalog.Book) []int64 {
	out := make([]int64, 0, len(books))
	for _, b := range books {
		out = append(out, b.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) GetString(_ context.Context, _, def string) (string, error) {
	return def, errors.New("store offline")
}

func (failingStore) PutString(context.Context, string, string) error {
	return errors.New("store offline")
}

func newTestBrowser(t *testing.T, books BookSource, store prefs.Store, opts ...Option) *Browser {
	t.Helper()
	b, err := New(context.Background(), books, store, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, nil, prefs.NewMemoryStore()); err == nil {
		t.Error("Expected error for nil book source")
	}
	if _, err := New(ctx, &fakeBooks{}, nil); err == nil {
		t.Error("Expected error for nil store")
	}
}

func TestNew_PreferredLanguage(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		store  prefs.Store
		want   string
	}{
		{name: "nothing stored", want: "all"},
		{name: "stored french", stored: "fr", want: "fr"},
		{name: "stored unknown code", stored: "xx", want: "all"},
		{name: "store failure", store: failingStore{}, want: "all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store
			if store == nil {
				mem := prefs.NewMemoryStore()
				if tt.stored != "" {
					mem.PutString(context.Background(), prefs.KeyPreferredBookLang, tt.stored)
				}
				store = mem
			}

			b := newTestBrowser(t, &fakeBooks{}, store)
			if got := b.Language().ISOCode; got != tt.want {
				t.Errorf("Language() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBrowser_InitialState(t *testing.T) {
	b := newTestBrowser(t, &fakeBooks{}, prefs.NewMemoryStore())
	s := b.State()

	if s.Page != 1 || s.IsLoading || s.EndReached || s.Error != "" || len(s.Items) != 0 {
		t.Errorf("initial state = %+v", s)
	}
}

func TestBrowser_LoadNextBeforeCategory(t *testing.T) {
	b := newTestBrowser(t, &fakeBooks{}, prefs.NewMemoryStore())

	if _, err := b.LoadNext(context.Background()); !errors.Is(err, ErrNoCategory) {
		t.Errorf("LoadNext() error = %v, want ErrNoCategory", err)
	}
	if _, err := b.Reload(context.Background()); !errors.Is(err, ErrNoCategory) {
		t.Errorf("Reload() error = %v, want ErrNoCategory", err)
	}
}

func TestBrowser_LoadCategoryUnknown(t *testing.T) {
	b := newTestBrowser(t, &fakeBooks{}, prefs.NewMemoryStore())

	if _, err := b.LoadCategory(context.Background(), "cooking"); !errors.Is(err, catalog.ErrUnknownCategory) {
		t.Errorf("LoadCategory() error = %v, want ErrUnknownCategory", err)
	}
}

func TestBrowser_PagesUntilEnd(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{
		"fiction": {
			{book(1, true), book(2, false), book(3, true)},
			{book(4, true)},
		},
	}}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())
	ctx := context.Background()

	if out, err := b.LoadCategory(ctx, "fiction"); err != nil || out != pagination.OutcomeSucceeded {
		t.Fatalf("LoadCategory() = %s, %v", out, err)
	}
	s := b.State()
	if !equalIDs(ids(s.Items), []int64{1, 3}) {
		t.Errorf("items after page 1 = %v, want [1 3]", ids(s.Items))
	}
	if s.Page != 2 || s.EndReached {
		t.Errorf("page = %d, endReached = %v", s.Page, s.EndReached)
	}

	b.LoadNext(ctx)
	b.LoadNext(ctx)
	s = b.State()
	if !equalIDs(ids(s.Items), []int64{1, 3, 4}) {
		t.Errorf("items = %v, want [1 3 4]", ids(s.Items))
	}
	if !s.EndReached {
		t.Error("EndReached = false after empty page")
	}
	if s.Page != 4 {
		t.Errorf("Page = %d, want 4", s.Page)
	}

	before := books.requestCount()
	if out, _ := b.LoadNext(ctx); out != pagination.OutcomeSkipped {
		t.Errorf("LoadNext() after end = %s, want skipped", out)
	}
	if books.requestCount() != before {
		t.Error("LoadNext() after end should not fetch")
	}
}

func TestBrowser_PageWithoutEpubsIsNotTheEnd(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{
		"music": {{book(1, false)}, {book(2, true)}},
	}}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())
	ctx := context.Background()

	b.LoadCategory(ctx, "music")
	if b.State().EndReached {
		t.Fatal("EndReached = true for a non-empty page")
	}
	b.LoadNext(ctx)
	if !equalIDs(ids(b.State().Items), []int64{2}) {
		t.Errorf("items = %v, want [2]", ids(b.State().Items))
	}
}

func TestBrowser_ErrorAndRetry(t *testing.T) {
	books := &fakeBooks{
		pages: map[string][][]catalog.Book{
			"crime": {{book(1, true)}, {book(2, true)}},
		},
		failures: map[int64]error{2: errors.New("network down")},
	}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())
	ctx := context.Background()

	b.LoadCategory(ctx, "crime")
	if out, _ := b.LoadNext(ctx); out != pagination.OutcomeFailed {
		t.Fatalf("LoadNext() = %s, want failed", out)
	}

	s := b.State()
	if s.Error != "network down" {
		t.Errorf("Error = %q, want network down", s.Error)
	}
	if s.Page != 2 || s.IsLoading {
		t.Errorf("page = %d, loading = %v", s.Page, s.IsLoading)
	}

	books.mu.Lock()
	delete(books.failures, 2)
	books.mu.Unlock()

	b.LoadNext(ctx)
	if got := books.lastRequest().page; got != 2 {
		t.Errorf("retry page = %d, want 2", got)
	}
	s = b.State()
	if s.Error != "" {
		t.Errorf("Error after retry = %q, want empty", s.Error)
	}
	if !equalIDs(ids(s.Items), []int64{1, 2}) {
		t.Errorf("items = %v, want [1 2]", ids(s.Items))
	}
}

func TestBrowser_EmptyErrorMessage(t *testing.T) {
	books := &fakeBooks{failures: map[int64]error{1: errors.New("")}}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())

	b.LoadCategory(context.Background(), "law")
	if got := b.State().Error; got != UnknownError {
		t.Errorf("Error = %q, want %q", got, UnknownError)
	}
}

func TestBrowser_Reload(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{
		"history": {{book(1, true)}, {book(2, true)}},
	}}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())
	ctx := context.Background()

	b.LoadCategory(ctx, "history")
	b.LoadNext(ctx)
	if b.State().Page != 3 {
		t.Fatalf("Page = %d, want 3", b.State().Page)
	}

	if out, err := b.Reload(ctx); err != nil || out != pagination.OutcomeSucceeded {
		t.Fatalf("Reload() = %s, %v", out, err)
	}
	s := b.State()
	if books.lastRequest().page != 1 {
		t.Errorf("reload fetched page %d, want 1", books.lastRequest().page)
	}
	if !equalIDs(ids(s.Items), []int64{1}) || s.Page != 2 {
		t.Errorf("state after reload = items %v page %d", ids(s.Items), s.Page)
	}
}

func TestBrowser_ChangeLanguage(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{
		"romance": {{book(1, true)}, {book(2, true)}},
	}}
	store := prefs.NewMemoryStore()
	b := newTestBrowser(t, books, store)
	ctx := context.Background()

	b.LoadCategory(ctx, "romance")
	b.LoadNext(ctx)

	if _, err := b.ChangeLanguage(ctx, catalog.LanguageByCode("es")); err != nil {
		t.Fatalf("ChangeLanguage() error = %v", err)
	}

	last := books.lastRequest()
	if last.lang != "es" || last.page != 1 {
		t.Errorf("request after language change = %+v, want es page 1", last)
	}
	if stored, _ := store.GetString(ctx, prefs.KeyPreferredBookLang, ""); stored != "es" {
		t.Errorf("stored language = %q, want es", stored)
	}
	if b.Language().ISOCode != "es" {
		t.Errorf("Language() = %q, want es", b.Language().ISOCode)
	}
	if !equalIDs(ids(b.State().Items), []int64{1}) {
		t.Errorf("items = %v, want [1]", ids(b.State().Items))
	}
}

func TestBrowser_ChangeLanguageStoreFailure(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{"science": {{book(1, true)}}}}
	b := newTestBrowser(t, books, failingStore{})
	ctx := context.Background()

	b.LoadCategory(ctx, "science")
	out, err := b.ChangeLanguage(ctx, catalog.LanguageByCode("en"))
	if err == nil {
		t.Fatal("Expected store error")
	}
	if out != pagination.OutcomeSucceeded {
		t.Errorf("outcome = %s, want reload to succeed", out)
	}
	if books.lastRequest().lang != "en" {
		t.Errorf("reload language = %q, want en", books.lastRequest().lang)
	}
}

func TestBrowser_ChangeLanguageBeforeCategory(t *testing.T) {
	books := &fakeBooks{}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())

	out, err := b.ChangeLanguage(context.Background(), catalog.LanguageByCode("pl"))
	if err != nil || out != pagination.OutcomeSkipped {
		t.Errorf("ChangeLanguage() = %s, %v", out, err)
	}
	if books.requestCount() != 0 {
		t.Error("ChangeLanguage() before category should not fetch")
	}
}

func TestBrowser_SwitchCategory(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{
		"animal":   {{book(1, true)}, {book(2, true)}},
		"children": {{book(10, true)}},
	}}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())
	ctx := context.Background()

	b.LoadCategory(ctx, "animal")
	b.LoadNext(ctx)
	b.LoadCategory(ctx, "children")

	last := books.lastRequest()
	if last.category != "children" || last.page != 1 {
		t.Errorf("request = %+v, want children page 1", last)
	}
	if !equalIDs(ids(b.State().Items), []int64{10}) {
		t.Errorf("items = %v, want [10]", ids(b.State().Items))
	}
	if b.Category() != "children" {
		t.Errorf("Category() = %q", b.Category())
	}
}

func TestBrowser_OnChangeSequence(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{"education": {{book(1, true)}}}}

	var mu sync.Mutex
	var states []State
	b := newTestBrowser(t, books, prefs.NewMemoryStore(), WithOnChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}))

	b.LoadCategory(context.Background(), "education")

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 3 {
		t.Fatalf("state changes = %d, want 3", len(states))
	}
	if !states[0].IsLoading || len(states[0].Items) != 0 {
		t.Errorf("first change = %+v, want loading with no items", states[0])
	}
	if !states[1].IsLoading || len(states[1].Items) != 1 {
		t.Errorf("second change = %+v, want items while still loading", states[1])
	}
	if states[2].IsLoading {
		t.Errorf("third change = %+v, want not loading", states[2])
	}
}

func TestBrowser_StateIsSnapshot(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{"classics": {{book(1, true)}}}}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())

	b.LoadCategory(context.Background(), "classics")
	s := b.State()
	s.Items[0].Title = "changed"

	if b.State().Items[0].Title == "changed" {
		t.Error("State() must not expose internal slice")
	}
}

func TestBrowser_ConcurrentLoadNext(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.PageSize = 2
	mock.SetBooks("geography", testutil.NewBooks(1, 6, "en", true))

	client, err := catalog.New(catalog.Config{BaseURL: mock.URL(), UserAgent: "test"})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	b := newTestBrowser(t, client, prefs.NewMemoryStore())
	ctx := context.Background()

	b.LoadCategory(ctx, "geography")
	mock.Reset()

	mock.Hold()
	first := make(chan pagination.Outcome)
	go func() {
		out, _ := b.LoadNext(ctx)
		first <- out
	}()
	for !b.State().IsLoading {
		time.Sleep(time.Millisecond)
	}

	var wg sync.WaitGroup
	var skipped atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, _ := b.LoadNext(ctx); out == pagination.OutcomeSkipped {
				skipped.Add(1)
			}
		}()
	}
	wg.Wait()
	mock.Release()

	if out := <-first; out != pagination.OutcomeSucceeded {
		t.Errorf("first LoadNext() = %s, want succeeded", out)
	}
	if skipped.Load() != 8 {
		t.Errorf("skipped = %d, want 8", skipped.Load())
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if !equalIDs(ids(b.State().Items), []int64{1, 2, 3, 4}) {
		t.Errorf("items = %v, want [1 2 3 4]", ids(b.State().Items))
	}
}

func TestBrowser_InvalidPageEndsListing(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.PageSize = 2
	mock.SetBooks("periodicals", testutil.NewBooks(1, 2, "hu", true))

	client, err := catalog.New(catalog.Config{BaseURL: mock.URL(), UserAgent: "test"})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	store := prefs.NewMemoryStore()
	store.PutString(context.Background(), prefs.KeyPreferredBookLang, "hu")
	b := newTestBrowser(t, client, store)
	ctx := context.Background()

	b.LoadCategory(ctx, "periodicals")
	b.LoadNext(ctx)

	s := b.State()
	if !s.EndReached {
		t.Error("EndReached = false after invalid page")
	}
	if s.Error != "" {
		t.Errorf("Error = %q, invalid page should not be an error", s.Error)
	}
	if len(s.Items) != 2 {
		t.Errorf("items = %d, want 2", len(s.Items))
	}
}

// heldCall is a BooksByCategory call waiting for its release.
type heldCall struct {
	request
	release chan struct{}
}

// blockingBooks holds every call until the test releases it.
type blockingBooks struct {
	*fakeBooks
	calls chan heldCall
}

func newBlockingBooks(pages map[string][][]catalog.Book) *blockingBooks {
	return &blockingBooks{
		fakeBooks: &fakeBooks{pages: pages},
		calls:     make(chan heldCall),
	}
}

func (bb *blockingBooks) BooksByCategory(ctx context.Context, category string, page int64, lang catalog.Language) (catalog.BookSet, error) {
	call := heldCall{
		request: request{category: category, page: page, lang: lang.ISOCode},
		release: make(chan struct{}),
	}
	bb.calls <- call
	<-call.release
	return bb.fakeBooks.BooksByCategory(ctx, category, page, lang)
}

// await runs fn in a goroutine and returns its outcome channel.
func await(fn func() (pagination.Outcome, error)) <-chan pagination.Outcome {
	ch := make(chan pagination.Outcome, 1)
	go func() {
		out, _ := fn()
		ch <- out
	}()
	return ch
}

func hasDuplicates(list []int64) bool {
	seen := make(map[int64]bool, len(list))
	for _, id := range list {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

func TestBrowser_RestartDuringFetch(t *testing.T) {
	pages := map[string][][]catalog.Book{
		"animal":   {{book(1, true), book(2, true)}, {book(3, true), book(4, true)}},
		"children": {{book(10, true), book(11, true)}},
	}

	tests := []struct {
		name       string
		restart    func(b *Browser, ctx context.Context) (pagination.Outcome, error)
		wantReq    request
		wantItems  []int64
		staleFirst bool
	}{
		{
			name:      "reload, new page lands first",
			restart:   (*Browser).Reload,
			wantReq:   request{category: "animal", page: 1, lang: "all"},
			wantItems: []int64{1, 2},
		},
		{
			name:       "reload, stale page lands first",
			restart:    (*Browser).Reload,
			wantReq:    request{category: "animal", page: 1, lang: "all"},
			wantItems:  []int64{1, 2},
			staleFirst: true,
		},
		{
			name: "switch category, new page lands first",
			restart: func(b *Browser, ctx context.Context) (pagination.Outcome, error) {
				return b.LoadCategory(ctx, "children")
			},
			wantReq:   request{category: "children", page: 1, lang: "all"},
			wantItems: []int64{10, 11},
		},
		{
			name: "switch category, stale page lands first",
			restart: func(b *Browser, ctx context.Context) (pagination.Outcome, error) {
				return b.LoadCategory(ctx, "children")
			},
			wantReq:    request{category: "children", page: 1, lang: "all"},
			wantItems:  []int64{10, 11},
			staleFirst: true,
		},
		{
			name: "change language",
			restart: func(b *Browser, ctx context.Context) (pagination.Outcome, error) {
				return b.ChangeLanguage(ctx, catalog.LanguageByCode("fr"))
			},
			wantReq:   request{category: "animal", page: 1, lang: "fr"},
			wantItems: []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books := newBlockingBooks(pages)
			b := newTestBrowser(t, books, prefs.NewMemoryStore())
			ctx := context.Background()

			loaded := await(func() (pagination.Outcome, error) { return b.LoadCategory(ctx, "animal") })
			close((<-books.calls).release)
			if out := <-loaded; out != pagination.OutcomeSucceeded {
				t.Fatalf("LoadCategory() = %s, want succeeded", out)
			}

			staleOut := await(func() (pagination.Outcome, error) { return b.LoadNext(ctx) })
			stale := <-books.calls
			if stale.page != 2 {
				t.Fatalf("in-flight request = %+v, want page 2", stale.request)
			}

			freshOut := await(func() (pagination.Outcome, error) { return tt.restart(b, ctx) })
			fresh := <-books.calls
			if fresh.request != tt.wantReq {
				t.Errorf("restart request = %+v, want %+v", fresh.request, tt.wantReq)
			}

			var staleGot, freshGot pagination.Outcome
			if tt.staleFirst {
				close(stale.release)
				staleGot = <-staleOut
				close(fresh.release)
				freshGot = <-freshOut
			} else {
				close(fresh.release)
				freshGot = <-freshOut
				close(stale.release)
				staleGot = <-staleOut
			}

			if staleGot != pagination.OutcomeStale {
				t.Errorf("interrupted LoadNext() = %s, want stale", staleGot)
			}
			if freshGot != pagination.OutcomeSucceeded {
				t.Errorf("restart = %s, want succeeded", freshGot)
			}

			s := b.State()
			got := ids(s.Items)
			if hasDuplicates(got) {
				t.Errorf("items contain duplicates: %v", got)
			}
			if !equalIDs(got, tt.wantItems) {
				t.Errorf("items = %v, want %v", got, tt.wantItems)
			}
			if s.Page != 2 || s.IsLoading || s.EndReached {
				t.Errorf("state = %+v, want page 2, idle", s)
			}
		})
	}
}

func TestBrowser_DropsCallbacksFromBeforeReload(t *testing.T) {
	books := &fakeBooks{pages: map[string][][]catalog.Book{
		"romance": {{book(1, true)}, {book(2, true)}},
	}}
	b := newTestBrowser(t, books, prefs.NewMemoryStore())
	ctx := context.Background()

	b.LoadCategory(ctx, "romance")
	b.mu.Lock()
	before := b.epoch
	b.mu.Unlock()

	b.Reload(ctx)

	// Results of a fetch that passed the paginator's check just before the
	// reload arrive late.
	b.onSuccess(fetched{set: catalog.BookSet{Results: []catalog.Book{book(2, true)}}, epoch: before}, 3)
	b.onError(&epochError{epoch: before, err: errors.New("late failure")})

	s := b.State()
	if !equalIDs(ids(s.Items), []int64{1}) {
		t.Errorf("items = %v, want [1]", ids(s.Items))
	}
	if s.Page != 2 {
		t.Errorf("page = %d, want 2", s.Page)
	}
	if s.Error != "" {
		t.Errorf("Error = %q, want none", s.Error)
	}
}
