package vendors

import (
	"context"
	"iter"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// SearchAll yields every search result from startPage onward, fetching pages
// lazily as the caller ranges. Iteration stops after the last page or after
// yielding the first error. Restart from any page by passing it as startPage.
func SearchAll(ctx context.Context, a Adapter, h *session.Handle, query string, startPage int) iter.Seq2[models.Product, error] {
	if startPage < 1 {
		startPage = 1
	}
	return func(yield func(models.Product, error) bool) {
		for page := startPage; ; page++ {
			result, err := a.SearchProducts(ctx, h, query, page)
			if err != nil {
				yield(models.Product{}, err)
				return
			}
			for _, p := range result.Products {
				if !yield(p, nil) {
					return
				}
			}
			if !result.HasNext || len(result.Products) == 0 {
				return
			}
		}
	}
}
