// Package testutil provides testing utilities for the catalog pager.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockBook is the subset of a catalog book the mock server renders.
type MockBook struct {
	ID        int64
	Title     string
	Languages []string
	Epub      bool
}

// MockCatalogResponse overrides the answer for one page number.
type MockCatalogResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockCatalog is a configurable mock catalog server for testing.
//
// Books are registered per topic and served in pages of PageSize. Requests
// past the last page get the catalog's "Invalid page." 404 when a language
// filter is present and an empty result list otherwise.
type MockCatalog struct {
	server *httptest.Server
	mu     sync.RWMutex

	books     map[string][]MockBook
	overrides map[int]MockCatalogResponse
	gate      chan struct{}

	// PageSize is the number of books per page.
	PageSize int

	// Tracking
	RequestCount  int
	LastQuery     map[string]string
	LastUserAgent string
}

// NewMockCatalog creates a new mock catalog server.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		books:     make(map[string][]MockBook),
		overrides: make(map[int]MockCatalogResponse),
		PageSize:  32,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/books", mock.handleBooks)
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the books endpoint URL.
func (m *MockCatalog) URL() string {
	return m.server.URL + "/books"
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.mu.Lock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
	m.mu.Unlock()
	m.server.Close()
}

// Reset clears tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
	m.LastUserAgent = ""
}

// SetBooks registers the books of a topic.
func (m *MockCatalog) SetBooks(topic string, books []MockBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[topic] = books
}

// SetPageResponse forces the response for a page number regardless of topic.
func (m *MockCatalog) SetPageResponse(page int, resp MockCatalogResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[page] = resp
}

// ClearPageResponse removes an override set by SetPageResponse.
func (m *MockCatalog) ClearPageResponse(page int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, page)
}

// Hold makes every request block until Release is called.
func (m *MockCatalog) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Release unblocks requests held by Hold.
func (m *MockCatalog) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the query parameters of the last request.
func (m *MockCatalog) GetLastQuery() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.LastQuery))
	for k, v := range m.LastQuery {
		out[k] = v
	}
	return out
}

func (m *MockCatalog) handleBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	m.mu.Lock()
	m.RequestCount++
	m.LastUserAgent = r.Header.Get("User-Agent")
	m.LastQuery = map[string]string{}
	for k := range q {
		m.LastQuery[k] = q.Get(k)
	}
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.RLock()
	override, hasOverride := m.overrides[page]
	m.mu.RUnlock()

	if hasOverride {
		if override.Delay > 0 {
			time.Sleep(override.Delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(override.StatusCode)
		if override.Body != "" {
			w.Write([]byte(override.Body))
		}
		return
	}

	m.defaultHandler(w, r, page)
}

// defaultHandler renders a Gutendex-like page of the requested topic.
func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request, page int) {
	q := r.URL.Query()
	topic := q.Get("topic")
	lang := q.Get("languages")

	m.mu.RLock()
	var matching []MockBook
	for _, b := range m.books[topic] {
		if lang == "" || contains(b.Languages, lang) {
			matching = append(matching, b)
		}
	}
	pageSize := m.PageSize
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	start := (page - 1) * pageSize
	if start >= len(matching) && lang != "" && page > 1 {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "Invalid page."}`))
		return
	}

	results := []map[string]any{}
	if start < len(matching) {
		end := start + pageSize
		if end > len(matching) {
			end = len(matching)
		}
		for _, b := range matching[start:end] {
			results = append(results, renderBook(b))
		}
	}

	body := map[string]any{
		"count":    len(matching),
		"next":     nil,
		"previous": nil,
		"results":  results,
	}
	if start+pageSize < len(matching) {
		body["next"] = fmt.Sprintf("%s?page=%d&topic=%s", m.URL(), page+1, topic)
	}
	if page > 1 {
		body["previous"] = fmt.Sprintf("%s?page=%d&topic=%s", m.URL(), page-1, topic)
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func renderBook(b MockBook) map[string]any {
	formats := map[string]string{
		"text/html": fmt.Sprintf("https://example.org/ebooks/%d.html", b.ID),
	}
	if b.Epub {
		formats["application/epub+zip"] = fmt.Sprintf("https://example.org/ebooks/%d.epub", b.ID)
	}
	return map[string]any{
		"id":             b.ID,
		"title":          b.Title,
		"authors":        []map[string]any{{"name": "Anonymous"}},
		"languages":      b.Languages,
		"formats":        formats,
		"media_type":     "Text",
		"download_count": 100,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// NewBooks builds n sequential books starting at firstID.
func NewBooks(firstID int64, n int, lang string, epub bool) []MockBook {
	books := make([]MockBook, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + int64(i)
		books = append(books, MockBook{
			ID:        id,
			Title:     fmt.Sprintf("Book %d", id),
			Languages: []string{lang},
			Epub:      epub,
		})
	}
	return books
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockCatalogResponse {
	return MockCatalogResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"detail": "Internal server error"}`,
	}
}

// NewMalformedResponse creates a 200 OK response with an undecodable body.
func NewMalformedResponse() MockCatalogResponse {
	return MockCatalogResponse{
		StatusCode: http.StatusOK,
		Body:       `{"results": [`,
	}
}
