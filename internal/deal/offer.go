package deal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Offer is the canonical, provider-agnostic listing. Treat it as immutable
// once built by a normalizer.
type Offer struct {
	Price         decimal.Decimal
	Country       string
	Destination   string
	Airport       string // destination location key, e.g. IATA code
	Brand         string
	DepartureDate string // "2006-01-02" or "" when the provider does not expose it
	Provider      string

	// Display only; not part of the identity key.
	Currency string
	Origin   string // departure airport
	Link     string

	// Package-holiday details, display only and not persisted.
	HotelStandard string
	Board         string
	ReturnDate    string              // "2006-01-02"
	PerPerson     decimal.NullDecimal // price split across the travellers
}

// IdentityKey is the natural key of an offer. Two offers with the same key are
// the same real-world listing.
type IdentityKey struct {
	Price         string // canonical decimal string
	Country       string
	Destination   string
	Airport       string
	Brand         string
	DepartureDate string
}

func (o Offer) Key() IdentityKey {
	return IdentityKey{
		Price:         o.Price.String(),
		Country:       o.Country,
		Destination:   o.Destination,
		Airport:       o.Airport,
		Brand:         o.Brand,
		DepartureDate: o.DepartureDate,
	}
}

func (k IdentityKey) String() string {
	return strings.Join([]string{k.Price, k.Country, k.Destination, k.Airport, k.Brand, k.DepartureDate}, "|")
}

// Less orders keys by price (numerically) and then by their string form.
func (k IdentityKey) Less(o IdentityKey) bool {
	a, errA := decimal.NewFromString(k.Price)
	b, errB := decimal.NewFromString(o.Price)
	if errA == nil && errB == nil && !a.Equal(b) {
		return a.LessThan(b)
	}
	return k.String() < o.String()
}

// Record is a persisted offer with its lifecycle state.
type Record struct {
	Offer
	Active    bool
	FirstSeen time.Time
	LastSeen  time.Time
}

// UniqueByKey returns offers with duplicate identity keys collapsed, keeping
// the first occurrence and the input order.
func UniqueByKey(offers []Offer) []Offer {
	seen := make(map[IdentityKey]struct{}, len(offers))
	out := make([]Offer, 0, len(offers))
	for _, o := range offers {
		k := o.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, o)
	}
	return out
}
