package vendors

import (
	"context"

	"github.com/johnrirwin/ordo/internal/models"
)

// orderPager fetches one page (1-based) of an order history, newest first,
// and reports whether another page exists.
type orderPager func(ctx context.Context, page int) (orders []models.VendorOrderInfo, more bool, err error)

// collectOrders pages through a history until it runs out, reaches an order
// older than q.Since, or hits q.MaxPages.
func (b *base) collectOrders(ctx context.Context, q models.OrderQuery, fetch orderPager) ([]models.VendorOrderInfo, error) {
	var out []models.VendorOrderInfo
	for page := 1; ; page++ {
		batch, more, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}

		reachedCutoff := false
		for i := range batch {
			order := batch[i]
			if !q.Includes(order.OrderDate) {
				reachedCutoff = true
				continue
			}
			if b.keepOrder(&order) {
				out = append(out, order)
			}
		}

		if reachedCutoff || !more || len(batch) == 0 || (q.MaxPages > 0 && page >= q.MaxPages) {
			return out, nil
		}
	}
}

// skippable reports whether err only affects one record. Such errors are
// logged and the record is left out.
func (b *base) skippable(kind, id string, err error) bool {
	if models.KindOf(classify(b.vendor, kind, err)) != models.KindTranslation {
		return false
	}
	b.dropped(kind, id, err)
	return true
}
