package provider

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"dealwatch/internal/deal"
	"dealwatch/internal/normalize"
)

const (
	tuiOffersDefaultURL  = "https://www.tui.pl/api/services/tui-search/api/search/offers"
	tuiOffersDefaultLink = "https://tui.pl"
	tuiOffersDefaultBody = `{"childrenBirthdays":[],"departuresCodes":["WAW"],"destinationsCodes":[],"durationFrom":2,"durationTo":14,"occupancies":[],"numberOfAdults":1,"offerType":"BY_PLANE","filters":[],"metaData":{"page":0,"pageSize":500,"sorting":"price"}}`
)

// tuiOffers reads TUI package holidays (flight plus hotel).
type tuiOffers struct {
	cfg Config
	h   httpJSON
}

func newTUIOffers(cfg Config, h httpJSON) *tuiOffers {
	cfg.URL = orDefault(cfg.URL, tuiOffersDefaultURL)
	cfg.LinkBase = orDefault(cfg.LinkBase, tuiOffersDefaultLink)
	if len(cfg.Body) == 0 {
		cfg.Body = []byte(tuiOffersDefaultBody)
	}
	return &tuiOffers{cfg: cfg, h: h}
}

func (p *tuiOffers) Name() string { return p.cfg.Name }

func (p *tuiOffers) Fetch(ctx context.Context) ([]Record, error) {
	var out map[string]any
	if err := p.h.do(ctx, http.MethodPost, p.cfg.URL, p.cfg.Body, &out); err != nil {
		return nil, err
	}
	offers, ok := out["offers"]
	if !ok {
		return nil, errors.New("response has no offers")
	}
	return records(offers), nil
}

func (p *tuiOffers) Normalize(rec Record) (deal.Offer, error) {
	country := ""
	if crumbs, ok := rec["breadcrumbs"].([]any); ok && len(crumbs) > 0 {
		if first, ok := crumbs[0].(map[string]any); ok {
			country = normalize.String(first, "", "label")
		}
	}
	if country == "" {
		return deal.Offer{}, deal.Malformed("missing field breadcrumbs[0].label")
	}
	city, err := normalize.RequiredString(rec, "city")
	if err != nil {
		return deal.Offer{}, err
	}
	raw, _ := normalize.Lookup(rec, "discountFullPrice")
	price, err := normalize.Price(raw)
	if err != nil {
		return deal.Offer{}, err
	}
	rawDate, _ := normalize.Lookup(rec, "departureDate")
	date, err := normalize.Date(rawDate)
	if err != nil {
		return deal.Offer{}, err
	}
	rawReturn, _ := normalize.Lookup(rec, "returnDate")
	ret, err := normalize.Date(rawReturn)
	if err != nil {
		return deal.Offer{}, err
	}
	dest := city
	if hotel := normalize.String(rec, "", "hotelName"); hotel != "" {
		dest = hotel + ", " + city
	}
	link := normalize.String(rec, "", "offerUrl")
	if link != "" {
		link = p.cfg.LinkBase + link
	}
	departure := normalize.String(rec, "", "departureFlight", "departure", "airportName")
	return deal.Offer{
		Price:         price,
		Country:       country,
		Destination:   dest,
		Airport:       departure,
		Brand:         "TUI",
		DepartureDate: date,
		Provider:      p.cfg.Name,
		Currency:      normalize.String(rec, "PLN", "currency"),
		Origin:        departure,
		Link:          link,
		HotelStandard: normalize.String(rec, "", "hotelStandard"),
		Board:         normalize.String(rec, "", "boardType"),
		ReturnDate:    ret,
		PerPerson:     perPerson(price, p.cfg.Adults),
	}, nil
}

// perPerson splits a package price across adults; it is unset for unknown
// party sizes.
func perPerson(price decimal.Decimal, adults int) decimal.NullDecimal {
	if adults < 1 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(price.DivRound(decimal.NewFromInt(int64(adults)), 2))
}
