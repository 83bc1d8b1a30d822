package vendors

import (
	"encoding/json"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// API vendors without a server-side cart stage lines on the session handle
// until Checkout submits them as one order.
const pendingCartKey = "pending_cart"

func pendingCart(h *session.Handle) []models.CartProduct {
	raw := h.Value(pendingCartKey)
	if raw == "" {
		return nil
	}
	var items []models.CartProduct
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

func setPendingCart(h *session.Handle, items []models.CartProduct) {
	if len(items) == 0 {
		h.SetValue(pendingCartKey, "")
		return
	}
	data, _ := json.Marshal(items)
	h.SetValue(pendingCartKey, string(data))
}

// mergeCart adds items to existing lines, summing quantities per product
func mergeCart(existing, items []models.CartProduct) []models.CartProduct {
	out := append([]models.CartProduct(nil), existing...)
	index := make(map[string]int, len(out))
	for i, item := range out {
		index[item.ProductID] = i
	}
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			out[i].UnitPrice = item.UnitPrice
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}
