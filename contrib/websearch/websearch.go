// Package websearch declares the search backend contract used by the
// web_search tool.
package websearch

import (
	"context"
	"errors"
)

// DefaultMaxResults caps results when the caller does not.
const DefaultMaxResults = 5

// ErrUnavailable is returned by searchers that are not configured.
var ErrUnavailable = errors.New("web search is unavailable")

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"content"`
	URL     string `json:"url"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Fallback tries each searcher in order and returns the first success.
// Searchers returning ErrUnavailable are skipped silently.
type Fallback []Searcher

// Search implements Searcher.
func (f Fallback) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		results, err := s.Search(ctx, query, maxResults)
		if err == nil {
			return results, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, ErrUnavailable
	}
	return nil, errors.Join(errs...)
}
