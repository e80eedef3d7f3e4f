package provider

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/deal"
	"dealwatch/internal/normalize"
)

const (
	wakacjeDefaultURL  = "https://www.wakacje.pl/v2/api/offers"
	wakacjeDefaultLink = "https://wakacje.pl"
	wakacjeDefaultBody = `[{"method":"search.tripsSearch","params":{"brand":"WAK","limit":500,"flatArray":true,"multiSearch":true,"type":"tours","searchType":"wczasy","query":{"pageNumber":1,"type":[1],"service":[1,2,5,6],"sort":1,"order":0,"totalPrice":true,"rooms":[{"adult":1,"kid":0,"ages":[]}]}}}]`
)

// wakacje reads package holidays from wakacje.pl.
type wakacje struct {
	cfg Config
	h   httpJSON
}

func newWakacje(cfg Config, h httpJSON) *wakacje {
	cfg.URL = orDefault(cfg.URL, wakacjeDefaultURL)
	cfg.LinkBase = orDefault(cfg.LinkBase, wakacjeDefaultLink)
	if len(cfg.Body) == 0 {
		cfg.Body = []byte(wakacjeDefaultBody)
	}
	return &wakacje{cfg: cfg, h: h}
}

func (p *wakacje) Name() string { return p.cfg.Name }

func (p *wakacje) Fetch(ctx context.Context) ([]Record, error) {
	var out map[string]any
	if err := p.h.do(ctx, http.MethodPost, p.cfg.URL, p.cfg.Body, &out); err != nil {
		return nil, err
	}
	offers, ok := normalize.Lookup(out, "data", "offers")
	if !ok {
		return nil, errors.New("response has no data.offers")
	}
	return records(offers), nil
}

func (p *wakacje) Normalize(rec Record) (deal.Offer, error) {
	country, err := normalize.RequiredString(rec, "place", "country", "name")
	if err != nil {
		return deal.Offer{}, err
	}
	region, err := normalize.RequiredString(rec, "place", "region", "name")
	if err != nil {
		return deal.Offer{}, err
	}
	raw, _ := normalize.Lookup(rec, "originalCurrencyPrice")
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
	link := normalize.String(rec, "", "link")
	if link != "" {
		link = p.cfg.LinkBase + link
	}
	return deal.Offer{
		Price:         price,
		Country:       country,
		Destination:   region,
		Airport:       normalize.String(rec, "", "departurePlace"),
		Brand:         normalize.String(rec, "WAK", "tourOperatorName"),
		DepartureDate: date,
		Provider:      p.cfg.Name,
		Currency:      normalize.String(rec, "PLN", "originalCurrency"),
		Origin:        normalize.String(rec, "", "departurePlace"),
		Link:          link,
		HotelStandard: normalize.String(rec, "", "category"),
		Board:         normalize.String(rec, "", "serviceDesc"),
		ReturnDate:    ret,
		PerPerson:     perPerson(price, p.cfg.Adults),
	}, nil
}
