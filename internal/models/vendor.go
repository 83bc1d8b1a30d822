package models

// VendorSlug identifies a supported (or explicitly unsupported) vendor
type VendorSlug string

const (
	VendorHenrySchein VendorSlug = "henry_schein"
	VendorNet32       VendorSlug = "net_32"
	VendorDarby       VendorSlug = "darby"
	VendorPatterson   VendorSlug = "patterson"
	VendorBenco       VendorSlug = "benco"
	VendorDentalCity  VendorSlug = "dental_city"
	VendorDCDental    VendorSlug = "dcdental"
	VendorUltradent   VendorSlug = "ultradent"
	VendorEdgeEndo    VendorSlug = "edge_endo"
	VendorAmazon      VendorSlug = "amazon"
	VendorEbay        VendorSlug = "ebay"
)

// AllVendorSlugs returns every vendor slug known to the platform
func AllVendorSlugs() []VendorSlug {
	return []VendorSlug{
		VendorHenrySchein,
		VendorNet32,
		VendorDarby,
		VendorPatterson,
		VendorBenco,
		VendorDentalCity,
		VendorDCDental,
		VendorUltradent,
		VendorEdgeEndo,
		VendorAmazon,
		VendorEbay,
	}
}

// IsKnown reports whether the slug is one of the platform's vendors
func (v VendorSlug) IsKnown() bool {
	for _, known := range AllVendorSlugs() {
		if v == known {
			return true
		}
	}
	return false
}

// IsIntegrated reports whether the vendor has a working adapter. Marketplace
// vendors are listed but cannot be ordered from.
func (v VendorSlug) IsIntegrated() bool {
	return v.IsKnown() && v != VendorAmazon && v != VendorEbay
}

// VendorDisplayName returns the human-readable vendor name
func VendorDisplayName(v VendorSlug) string {
	switch v {
	case VendorHenrySchein:
		return "Henry Schein"
	case VendorNet32:
		return "Net32"
	case VendorDarby:
		return "Darby"
	case VendorPatterson:
		return "Patterson"
	case VendorBenco:
		return "Benco"
	case VendorDentalCity:
		return "Dental City"
	case VendorDCDental:
		return "DC Dental"
	case VendorUltradent:
		return "Ultradent"
	case VendorEdgeEndo:
		return "Edge Endo"
	case VendorAmazon:
		return "Amazon"
	case VendorEbay:
		return "eBay"
	default:
		return string(v)
	}
}

// VendorInfo describes a registered vendor adapter
type VendorInfo struct {
	Slug       VendorSlug `json:"slug"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Integrated bool       `json:"integrated"`
}
