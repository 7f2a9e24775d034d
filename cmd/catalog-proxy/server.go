package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-pager/pkg/browse"
	"github.com/Sternrassler/catalog-pager/pkg/catalog"
	"github.com/Sternrassler/catalog-pager/pkg/metrics"
	"github.com/Sternrassler/catalog-pager/pkg/pagination"
	"github.com/Sternrassler/catalog-pager/pkg/prefs"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pinger reports whether a backing service is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// server exposes browse sessions over HTTP. Each session owns one
// browse.Browser and therefore one paginator.
type server struct {
	books          browse.BookSource
	prefs          prefs.Store
	pinger         pinger
	requestTimeout time.Duration
	logger         zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*browse.Browser
}

func newServer(books browse.BookSource, store prefs.Store, p pinger, requestTimeout time.Duration) *server {
	return &server{
		books:          books,
		prefs:          store,
		pinger:         p,
		requestTimeout: requestTimeout,
		logger:         log.With().Str("component", "catalog-proxy").Logger(),
		sessions:       make(map[string]*browse.Browser),
	}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", readyHandler(s.pinger)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	r.HandleFunc("/languages", s.handleLanguages).Methods(http.MethodGet)
	r.HandleFunc("/language", s.handlePreferredLanguage).Methods(http.MethodGet)

	r.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/next", s.handleNext).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/reload", s.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/language", s.handleChangeLanguage).Methods(http.MethodPut)

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(p pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				http.Error(w, "preference store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// sessionResponse is returned by every session endpoint.
type sessionResponse struct {
	ID       string             `json:"id"`
	Category string             `json:"category"`
	Language catalog.Language   `json:"language"`
	Outcome  pagination.Outcome `json:"outcome,omitempty"`
	State    browse.State       `json:"state"`
}

func (s *server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Categories)
}

func (s *server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.Languages())
}

func (s *server) handlePreferredLanguage(w http.ResponseWriter, r *http.Request) {
	code, err := s.prefs.GetString(r.Context(), prefs.KeyPreferredBookLang, catalog.AllBooks.ISOCode)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read preferred language")
	}
	writeJSON(w, http.StatusOK, catalog.LanguageByCode(code))
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !catalog.IsCategory(body.Category) {
		http.Error(w, fmt.Sprintf("unknown category %q", body.Category), http.StatusBadRequest)
		return
	}

	b, err := browse.New(r.Context(), s.books, s.prefs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = b
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", id).
		Str("category", body.Category).
		Str("language", b.Language().ISOCode).
		Msg("Browse session created")

	ctx, cancel := s.fetchContext(r)
	defer cancel()
	outcome, err := b.LoadCategory(ctx, body.Category)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, sessionView(id, b, outcome))
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, b, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView(id, b, ""))
}

func (s *server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.session(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, func(ctx context.Context, b *browse.Browser) (pagination.Outcome, error) {
		return b.LoadNext(ctx)
	})
}

func (s *server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, func(ctx context.Context, b *browse.Browser) (pagination.Outcome, error) {
		return b.Reload(ctx)
	})
}

func (s *server) handleChangeLanguage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	lang := catalog.LanguageByCode(body.Language)
	if lang.ISOCode != body.Language {
		http.Error(w, fmt.Sprintf("unknown language %q", body.Language), http.StatusBadRequest)
		return
	}

	s.sessionAction(w, r, func(ctx context.Context, b *browse.Browser) (pagination.Outcome, error) {
		s.logger.Info().Str("language", lang.ISOCode).Msg("Language changed")
		outcome, err := b.ChangeLanguage(ctx, lang)
		if err != nil {
			// The listing was reloaded; only persisting the preference failed.
			s.logger.Warn().Err(err).Msg("Language change not persisted")
		}
		return outcome, nil
	})
}

// sessionAction runs fn against the session named in the URL and writes the
// resulting state. Fetch failures are part of the state, not HTTP errors.
func (s *server) sessionAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, *browse.Browser) (pagination.Outcome, error)) {
	id, b, ok := s.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.fetchContext(r)
	defer cancel()

	outcome, err := fn(ctx, b)
	if errors.Is(err, browse.ErrNoCategory) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sessionView(id, b, outcome))
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (string, *browse.Browser, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return "", nil, false
	}

	s.mu.RLock()
	b, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return "", nil, false
	}
	return id, b, true
}

func (s *server) fetchContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.requestTimeout)
}

func sessionView(id string, b *browse.Browser, outcome pagination.Outcome) sessionResponse {
	return sessionResponse{
		ID:       id,
		Category: b.Category(),
		Language: b.Language(),
		Outcome:  outcome,
		State:    b.State(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
