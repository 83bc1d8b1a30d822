package vendors

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// pagedAdapter serves fixed search pages and records which were fetched
type pagedAdapter struct {
	*Unsupported
	pages   [][]string
	failAt  int
	fetched []int
}

func (p *pagedAdapter) SearchProducts(_ context.Context, _ *session.Handle, _ string, page int) (*models.ProductPage, error) {
	p.fetched = append(p.fetched, page)
	if page == p.failAt {
		return nil, models.NewVendorError(models.VendorDarby, models.KindNetwork, "search", "", nil)
	}
	result := &models.ProductPage{Page: page, HasNext: page < len(p.pages)}
	if page <= len(p.pages) {
		for _, id := range p.pages[page-1] {
			result.Products = append(result.Products, models.Product{ProductID: id, Name: "item " + id, Price: decimal.NewFromInt(1)})
		}
	}
	return result, nil
}

func newPagedAdapter(pages ...[]string) *pagedAdapter {
	return &pagedAdapter{
		Unsupported: NewUnsupported(models.VendorDarby, DefaultConfig(), testDeps()),
		pages:       pages,
	}
}

func TestSearchAll(t *testing.T) {
	a := newPagedAdapter([]string{"1", "2"}, []string{"3", "4"}, []string{"5"})

	var ids []string
	for p, err := range SearchAll(context.Background(), a, nil, "gloves", 1) {
		if err != nil {
			t.Fatalf("SearchAll() error = %v", err)
		}
		ids = append(ids, p.ProductID)
	}

	if len(ids) != 5 {
		t.Fatalf("SearchAll() yielded %v, want 5 products", ids)
	}
	for i, id := range ids {
		if id != strconv.Itoa(i+1) {
			t.Errorf("ids[%d] = %q, want %d", i, id, i+1)
		}
	}
}

func TestSearchAll_StopsWhenCallerBreaks(t *testing.T) {
	a := newPagedAdapter([]string{"1", "2"}, []string{"3", "4"}, []string{"5"})

	count := 0
	for range SearchAll(context.Background(), a, nil, "gloves", 1) {
		count++
		if count == 2 {
			break
		}
	}

	if len(a.fetched) != 1 {
		t.Errorf("fetched pages %v, want only page 1", a.fetched)
	}
}

func TestSearchAll_ResumesFromPage(t *testing.T) {
	a := newPagedAdapter([]string{"1", "2"}, []string{"3", "4"}, []string{"5"})

	var ids []string
	for p, err := range SearchAll(context.Background(), a, nil, "gloves", 2) {
		if err != nil {
			t.Fatalf("SearchAll() error = %v", err)
		}
		ids = append(ids, p.ProductID)
	}

	if len(ids) != 3 || ids[0] != "3" {
		t.Errorf("SearchAll(startPage=2) yielded %v, want [3 4 5]", ids)
	}
}

func TestSearchAll_YieldsError(t *testing.T) {
	a := newPagedAdapter([]string{"1", "2"}, []string{"3", "4"}, []string{"5"})
	a.failAt = 2

	var ids []string
	var gotErr error
	for p, err := range SearchAll(context.Background(), a, nil, "gloves", 1) {
		if err != nil {
			gotErr = err
			continue
		}
		ids = append(ids, p.ProductID)
	}

	if len(ids) != 2 {
		t.Errorf("yielded %v before the error, want page 1 only", ids)
	}
	if !errors.Is(gotErr, models.ErrNetworkConnection) {
		t.Errorf("error = %v, want ErrNetworkConnection", gotErr)
	}
	if len(a.fetched) != 2 {
		t.Errorf("fetched %v, iteration should stop after the error", a.fetched)
	}
}
