// Package properties defines the property catalog port. The engine never owns
// property records; it reads them from the platform catalog service.
package properties

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Property is the catalog view the engine consumes.
type Property struct {
	ID               uuid.UUID `json:"id"`
	LandlordID       uuid.UUID `json:"landlord_id"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	Type             string    `json:"type"`
	MonthlyRentCents int64     `json:"monthly_rent_cents"`
	Bedrooms         int       `json:"bedrooms"`
	Bathrooms        int       `json:"bathrooms"`
	AreaM2           int       `json:"area_m2"`
	PetsAllowed      bool      `json:"pets_allowed"`
	SmokingAllowed   bool      `json:"smoking_allowed"`
	Furnished        bool      `json:"furnished"`
	Parking          bool      `json:"parking"`
	Amenities        []string  `json:"amenities,omitempty"`
	Available        bool      `json:"available"`
}

// Filter narrows a catalog search.
type Filter struct {
	MinPriceCents  int64    `json:"min_price_cents,omitempty"`
	MaxPriceCents  int64    `json:"max_price_cents,omitempty"`
	Cities         []string `json:"cities,omitempty"`
	Types          []string `json:"types,omitempty"`
	MinBedrooms    int      `json:"min_bedrooms,omitempty"`
	MinBathrooms   int      `json:"min_bathrooms,omitempty"`
	MinAreaM2      int      `json:"min_area_m2,omitempty"`
	Amenities      []string `json:"amenities,omitempty"`
	PetsAllowed    bool     `json:"pets_allowed,omitempty"`
	Furnished      bool     `json:"furnished,omitempty"`
	Parking        bool     `json:"parking,omitempty"`
	SmokingAllowed bool     `json:"smoking_allowed,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}

// Catalog is the property catalog port.
type Catalog interface {
	Get(ctx context.Context, id uuid.UUID) (*Property, error)
	Search(ctx context.Context, f Filter) ([]*Property, error)
}

// Matches reports whether the property satisfies the filter. Implementations
// backed by remote catalogs may filter server-side; this helper exists for
// in-memory catalogs and post-filtering.
func (p *Property) Matches(f Filter) bool {
	if !p.Available {
		return false
	}
	if f.MinPriceCents > 0 && p.MonthlyRentCents < f.MinPriceCents {
		return false
	}
	if f.MaxPriceCents > 0 && p.MonthlyRentCents > f.MaxPriceCents {
		return false
	}
	if len(f.Cities) > 0 && !containsFold(f.Cities, p.City) {
		return false
	}
	if len(f.Types) > 0 && !containsFold(f.Types, p.Type) {
		return false
	}
	if p.Bedrooms < f.MinBedrooms || p.Bathrooms < f.MinBathrooms || p.AreaM2 < f.MinAreaM2 {
		return false
	}
	if f.PetsAllowed && !p.PetsAllowed {
		return false
	}
	if f.SmokingAllowed && !p.SmokingAllowed {
		return false
	}
	if f.Furnished && !p.Furnished {
		return false
	}
	if f.Parking && !p.Parking {
		return false
	}
	for _, amenity := range f.Amenities {
		if !containsFold(p.Amenities, amenity) {
			return false
		}
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
