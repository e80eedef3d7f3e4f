package provider

import (
	"context"
	"net/http"

	"dealwatch/internal/deal"
	"dealwatch/internal/normalize"
)

const (
	tuiDefaultURL  = "https://www.tui.pl/api/www/multiCharters"
	tuiDefaultBody = `{"adultsCt":2,"arrivalAirportCodes":[],"childrenBirthDates":[],"departureAirportCodes":["WAW"],"duration":"3-14"}`
)

// tui reads TUI multi-charter fares. The source exposes no departure date.
type tui struct {
	cfg Config
	h   httpJSON
}

func newTUI(cfg Config, h httpJSON) *tui {
	cfg.URL = orDefault(cfg.URL, tuiDefaultURL)
	cfg.Origin = orDefault(cfg.Origin, "WAW")
	if len(cfg.Body) == 0 {
		cfg.Body = []byte(tuiDefaultBody)
	}
	return &tui{cfg: cfg, h: h}
}

func (p *tui) Name() string { return p.cfg.Name }

func (p *tui) Fetch(ctx context.Context) ([]Record, error) {
	var out []any
	if err := p.h.do(ctx, http.MethodPost, p.cfg.URL, p.cfg.Body, &out); err != nil {
		return nil, err
	}
	return records(out), nil
}

func (p *tui) Normalize(rec Record) (deal.Offer, error) {
	country, err := normalize.RequiredString(rec, "countryName")
	if err != nil {
		return deal.Offer{}, err
	}
	dest, err := normalize.RequiredString(rec, "destinationName")
	if err != nil {
		return deal.Offer{}, err
	}
	arrival, err := normalize.RequiredString(rec, "airportCode")
	if err != nil {
		return deal.Offer{}, err
	}
	raw, _ := normalize.Lookup(rec, "perPersonPrice")
	price, err := normalize.Price(raw)
	if err != nil {
		return deal.Offer{}, err
	}
	return deal.Offer{
		Price:       price,
		Country:     country,
		Destination: dest,
		Airport:     route(p.cfg.Origin, arrival),
		Brand:       "TUI",
		Provider:    p.cfg.Name,
		Currency:    "PLN",
		Origin:      p.cfg.Origin,
	}, nil
}
