package search

import (
	"context"
	"errors"
	"time"

	"csv-generator/config"
)

// Searcher is the part of the backend the fetcher needs.
type Searcher interface {
	Count(ctx context.Context, index string, query Clause) (int64, error)
	Search(ctx context.Context, index string, request map[string]any, keepAlive time.Duration) (*SearchResult, error)
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (*SearchResult, error)
	ClearScroll(ctx context.Context, scrollID string) error
}

type FetchOptions struct {
	MaxRows     int64         // counts above this fail with OversizeError
	PageSize    int           // hits per search/scroll page
	KeepAlive   time.Duration // scroll lifetime, renewed on every call
	ScrollBatch int64         // count / ScrollBatch continuation calls are issued
}

func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		MaxRows:     100000,
		PageSize:    1000,
		KeepAlive:   time.Minute,
		ScrollBatch: 10000,
	}
}

// Fetcher pulls every hit of a compiled query through a scroll cursor.
type Fetcher struct {
	searcher Searcher
	opts     FetchOptions
}

// NewFetcher fills zero options with DefaultFetchOptions.
func NewFetcher(s Searcher, opts FetchOptions) *Fetcher {
	def := DefaultFetchOptions()
	if opts.MaxRows <= 0 {
		opts.MaxRows = def.MaxRows
	}
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = def.KeepAlive
	}
	if opts.ScrollBatch <= 0 {
		opts.ScrollBatch = def.ScrollBatch
	}
	return &Fetcher{searcher: s, opts: opts}
}

// Count returns the number of matching documents, or EmptyResultError /
// *OversizeError when the report must not be generated.
func (f *Fetcher) Count(ctx context.Context, index string, q CompiledQuery) (int64, error) {
	n, err := f.searcher.Count(ctx, index, q.Source())
	if err != nil {
		return 0, &FetchError{Op: "count", Err: err}
	}
	if n == 0 {
		return 0, EmptyResultError{}
	}
	if n > f.opts.MaxRows {
		return n, &OversizeError{Count: n, Max: f.opts.MaxRows}
	}
	return n, nil
}

// FetchAll runs the initial scroll search then count/ScrollBatch
// continuations, concatenating non-empty pages in arrival order. includes
// restricts _source; nil returns whole documents. There is no retry.
func (f *Fetcher) FetchAll(ctx context.Context, index string, q CompiledQuery, includes []string, count int64) ([]Hit, error) {
	request := map[string]any{
		"version": true,
		"size":    f.opts.PageSize,
		"query":   q.Source(),
	}
	if includes != nil {
		request["_source"] = map[string]any{"includes": includes}
	}
	first, err := f.searcher.Search(ctx, index, request, f.opts.KeepAlive)
	if err != nil {
		return nil, &FetchError{Op: "search", Err: err}
	}
	scrollID := first.ScrollID
	defer func() {
		if scrollID != "" {
			_ = f.searcher.ClearScroll(context.WithoutCancel(ctx), scrollID)
		}
	}()

	hits := append([]Hit(nil), first.Hits...)
	extra := count / f.opts.ScrollBatch
	for i := int64(0); i < extra; i++ {
		if scrollID == "" {
			return nil, &FetchError{Op: "scroll", Err: errors.New("backend returned no scroll id")}
		}
		page, err := f.searcher.Scroll(ctx, scrollID, f.opts.KeepAlive)
		if err != nil {
			return nil, &FetchError{Op: "scroll", Err: err}
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
		if len(page.Hits) > 0 {
			hits = append(hits, page.Hits...)
		}
	}
	return hits, nil
}

// FetchOptionsFromConfig maps the report config section to fetch options.
func FetchOptionsFromConfig(cfg config.ReportConfig) FetchOptions {
	return FetchOptions{
		MaxRows:     cfg.MaxRows,
		PageSize:    cfg.PageSize,
		KeepAlive:   cfg.ScrollKeepAlive,
		ScrollBatch: cfg.ScrollBatch,
	}
}
