package vendors

import (
	"github.com/johnrirwin/ordo/internal/models"
)

// Registry maps vendor slugs to adapters
type Registry struct {
	adapters map[models.VendorSlug]Adapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.VendorSlug]Adapter),
	}
}

// NewDefaultRegistry registers an adapter for every known vendor. Marketplace
// vendors get the Unsupported placeholder.
func NewDefaultRegistry(cfg Config, deps Deps) *Registry {
	r := NewRegistry()
	r.Register(NewHenrySchein(cfg, deps))
	r.Register(NewNet32(cfg, deps))
	r.Register(NewDarby(cfg, deps))
	r.Register(NewPatterson(cfg, deps))
	r.Register(NewBenco(cfg, deps))
	r.Register(NewDentalCity(cfg, deps))
	r.Register(NewDCDental(cfg, deps))
	r.Register(NewUltradent(cfg, deps))
	r.Register(NewEdgeEndo(cfg, deps))
	r.Register(NewUnsupported(models.VendorAmazon, cfg, deps))
	r.Register(NewUnsupported(models.VendorEbay, cfg, deps))
	return r
}

// Register adds an adapter, replacing any previous one for the same vendor
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.Vendor()] = adapter
}

// Get returns the adapter for slug. Unknown slugs and vendors without a
// registered adapter fail with models.ErrVendorNotSupported.
func (r *Registry) Get(slug models.VendorSlug) (Adapter, error) {
	a, ok := r.adapters[slug]
	if !ok {
		return nil, models.NewVendorError(slug, models.KindNotSupported, "lookup", "no adapter registered", nil)
	}
	return a, nil
}

// List returns the registered adapters in platform order
func (r *Registry) List() []Adapter {
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, slug := range models.AllVendorSlugs() {
		if a, ok := r.adapters[slug]; ok {
			adapters = append(adapters, a)
		}
	}
	return adapters
}

// VendorInfo describes every registered adapter
func (r *Registry) VendorInfo() []models.VendorInfo {
	adapters := r.List()
	infos := make([]models.VendorInfo, 0, len(adapters))
	for _, a := range adapters {
		_, unsupported := a.(*Unsupported)
		infos = append(infos, models.VendorInfo{
			Slug:       a.Vendor(),
			Name:       a.Name(),
			URL:        a.BaseURL(),
			Integrated: !unsupported,
		})
	}
	return infos
}
