// internal/gh/pages.go
package gh

import "context"

// pageFetch returns the items of one page of an upstream listing endpoint.
type pageFetch[T any] func(ctx context.Context, page int) ([]T, error)

// collectPages walks a page-numbered upstream listing starting at page 1 and
// returns the ordered concatenation of all pages. It stops when a page comes
// back empty, when a page is shorter than perPage (last page), or when the
// accumulator reaches maxItems (0 = no cap; the result is trimmed to the cap).
// Any page error aborts the whole collection fetch.
func collectPages[T any](ctx context.Context, perPage, maxItems int, fetch pageFetch[T]) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		items, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if maxItems > 0 && len(all) >= maxItems {
			return all[:maxItems], nil
		}
		if len(items) < perPage {
			return all, nil
		}
	}
}
