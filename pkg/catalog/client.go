package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-pager/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for catalog client operations.
var (
	catalogRequestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total catalog requests by endpoint and status",
	}, []string{"endpoint", "status"})

	catalogRequestDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	catalogErrorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public Gutendex books endpoint.
const DefaultBaseURL = "https://gutendex.com/books"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// Config holds the client configuration.
type Config struct {
	// BaseURL of the books endpoint, without query string.
	BaseURL string

	// User-Agent header sent with every request (required).
	UserAgent string

	// Timeout per request. Zero means 30s.
	Timeout time.Duration

	// HTTPClient overrides the underlying client (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration for the public catalog.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// Client fetches book pages from the catalog.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		config:     cfg,
		logger:     log.With().Str("component", "catalog-client").Logger(),
	}, nil
}

// BooksByCategory fetches one page of books for a topic, optionally filtered
// by language.
func (c *Client) BooksByCategory(ctx context.Context, category string, page int64, lang Language) (BookSet, error) {
	if !IsCategory(category) {
		return BookSet{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if page < 1 {
		return BookSet{}, ErrInvalidPageNumber
	}

	query := url.Values{}
	query.Set("page", strconv.FormatInt(page, 10))
	query.Set("topic", category)
	if !lang.IsAll() {
		query.Set("languages", lang.ISOCode)
	}

	return c.getBookSet(ctx, query)
}

// getBookSet performs a GET on the books endpoint and decodes the page.
func (c *Client) getBookSet(ctx context.Context, query url.Values) (BookSet, error) {
	endpoint := c.baseURL.Path
	reqURL := *c.baseURL
	reqURL.RawQuery = query.Encode()

	startTime := time.Now()
	defer func() {
		catalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return BookSet{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("query", reqURL.RawQuery).
		Msg("Executing catalog request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		catalogRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return BookSet{}, c.fail(&CatalogError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		})
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	catalogRequestsTotal.WithLabelValues(endpoint, status).Inc()

	if resp.StatusCode == http.StatusOK {
		var set BookSet
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return BookSet{}, c.fail(&CatalogError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassDecode,
				Message:    "decode book set",
				Err:        err,
			})
		}
		if set.Results == nil {
			set.Results = []Book{}
		}
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("books", len(set.Results)).
			Int64("count", set.Count).
			Msg("Catalog page received")
		return set, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusNotFound {
		if detail, ok := invalidPageDetail(body); ok {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("detail", detail).
				Msg("Catalog rejected page, treating as empty")
			return BookSet{Detail: detail}, nil
		}
	}

	errClass := classifyStatus(resp.StatusCode)
	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Msg("Catalog request error")

	return BookSet{}, c.fail(&CatalogError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    errorMessage(resp.Status, body),
	})
}

func (c *Client) fail(err *CatalogError) error {
	catalogErrorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()
	return err
}

// classifyStatus categorizes a non-200 HTTP status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx leaking through the redirect-following client.
		return ErrorClassServer
	}
}

// invalidPageDetail extracts the "detail" message of an invalid page answer.
func invalidPageDetail(body []byte) (string, bool) {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false
	}
	if !strings.Contains(strings.ToLower(payload.Detail), "invalid page") {
		return "", false
	}
	return payload.Detail, true
}

// errorMessage prefers the catalog's detail message over the bare status.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return status
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
