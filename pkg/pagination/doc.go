// Package pagination provides an incremental "load more" controller for paged
// data sources.
//
// A Paginator walks a remote source one batch at a time. It owns the cursor and
// an in-flight guard, and reports everything else through callbacks so the
// owner keeps the accumulated items in its own state.
//
// Example usage:
//
//	source := pagination.SourceFuncs[int64, catalog.BookSet]{
//		FetchFunc: func(ctx context.Context, page int64) (catalog.BookSet, error) {
//			return client.BooksByCategory(ctx, "fiction", page, catalog.AllBooks)
//		},
//		NextKeyFunc: pagination.Increment[int64](1),
//	}
//
//	p, err := pagination.New[int64, catalog.BookSet](1, source, pagination.Callbacks[int64, catalog.BookSet]{
//		OnLoadingChanged: func(loading bool) { ... },
//		OnSuccess:        func(set catalog.BookSet, next int64) { ... },
//		OnError:          func(err error) { ... },
//	}, pagination.WithName("fiction"))
//
//	p.Advance(ctx)
//
// The paginator:
//   - Runs at most one fetch at a time; concurrent Advance calls are dropped
//   - Advances the cursor only after a successful fetch
//   - Notifies loading=false only after the result callback has returned
//   - Discards results of fetches started before the last Reset
//   - Never retries on its own; callers retry by calling Advance again
package pagination
