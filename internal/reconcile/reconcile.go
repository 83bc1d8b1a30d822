// Package reconcile computes the writes needed to bring the local product
// mirror in line with what a vendor currently lists. Nothing here touches a
// store; jobs apply the results.
package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
)

// CatalogState is the input to a catalog diff
type CatalogState struct {
	LocalAvailable   []string         // ids currently marked available locally
	LocalUnavailable []string         // ids currently marked unavailable locally
	Remote           []models.Product // everything the vendor lists right now
}

// CatalogActions is the result of a catalog diff. The three lists are
// disjoint and sorted by product id.
type CatalogActions struct {
	Disable []string         // available locally, no longer listed
	Enable  []string         // unavailable locally, listed again
	Create  []models.Product // listed, unknown locally
}

// IsEmpty reports whether the diff requires no writes
func (a *CatalogActions) IsEmpty() bool {
	return len(a.Disable) == 0 && len(a.Enable) == 0 && len(a.Create) == 0
}

// DiffCatalog compares local availability against the remote listing.
// Matching is by ProductID. An id present in both local lists is treated as
// available. Duplicate remote records keep the first occurrence.
func DiffCatalog(state CatalogState) *CatalogActions {
	actions := &CatalogActions{}

	available := make(map[string]bool, len(state.LocalAvailable))
	for _, id := range state.LocalAvailable {
		available[id] = true
	}
	unavailable := make(map[string]bool, len(state.LocalUnavailable))
	for _, id := range state.LocalUnavailable {
		if !available[id] {
			unavailable[id] = true
		}
	}

	remote := make(map[string]bool, len(state.Remote))
	for _, p := range state.Remote {
		if p.ProductID == "" || remote[p.ProductID] {
			continue
		}
		remote[p.ProductID] = true

		switch {
		case available[p.ProductID]:
		case unavailable[p.ProductID]:
			actions.Enable = append(actions.Enable, p.ProductID)
		default:
			actions.Create = append(actions.Create, p)
		}
	}

	for id := range available {
		if !remote[id] {
			actions.Disable = append(actions.Disable, id)
		}
	}

	sort.Strings(actions.Disable)
	sort.Strings(actions.Enable)
	sort.Slice(actions.Create, func(i, j int) bool {
		return actions.Create[i].ProductID < actions.Create[j].ProductID
	})
	return actions
}

// StaleProducts returns the products whose price was last refreshed before
// now-maxAge, or never.
func StaleProducts(local []models.LocalProduct, now time.Time, maxAge time.Duration) []models.LocalProduct {
	cutoff := now.Add(-maxAge)
	var stale []models.LocalProduct
	for _, p := range local {
		if p.LastPriceUpdated == nil || p.LastPriceUpdated.Before(cutoff) {
			stale = append(stale, p)
		}
	}
	return stale
}

// DiffPrices pairs stale local products with the prices a vendor returned.
// Products the vendor did not price are left out, so they stay untouched and
// remain stale for the next run.
func DiffPrices(stale []models.LocalProduct, remote map[string]decimal.Decimal) []models.PriceUpdate {
	updates := make([]models.PriceUpdate, 0, len(remote))
	seen := make(map[string]bool, len(stale))
	for _, p := range stale {
		if seen[p.ProductID] {
			continue
		}
		price, ok := remote[p.ProductID]
		if !ok {
			continue
		}
		seen[p.ProductID] = true
		updates = append(updates, models.PriceUpdate{ProductID: p.ProductID, Price: price})
	}
	return updates
}

// Batches splits n items into consecutive [start, end) ranges of at most
// size items each.
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
