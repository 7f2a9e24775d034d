// Package catalog provides an HTTP client for a Gutendex-style public domain
// book catalog.
//
// The catalog serves books in numbered pages. Each page is a BookSet with the
// total count, links to neighbouring pages and up to 32 books. Pages can be
// filtered by topic (category) and by language.
//
// # Basic Usage
//
//	c, err := catalog.New(catalog.DefaultConfig("MyApp/1.0 (me@example.com)"))
//	if err != nil {
//		return err
//	}
//
//	set, err := c.BooksByCategory(ctx, "fiction", 1, catalog.LanguageByCode("en"))
//
// # Invalid Pages
//
// When a language filter is active the catalog answers past-the-end pages with
// 404 and {"detail": "Invalid page."} instead of an empty result list. The
// client returns such a response as a BookSet with no results and Detail set,
// so callers see an empty page rather than an error.
//
// # Metrics
//
//   - catalog_requests_total{endpoint, status} - Requests by endpoint and status
//   - catalog_request_duration_seconds{endpoint} - Request latency
//   - catalog_errors_total{class} - Errors by class (client, server, network, decode)
package catalog
