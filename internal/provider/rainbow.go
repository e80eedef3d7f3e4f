package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/deal"
	"dealwatch/internal/normalize"
)

const rainbowDefaultURL = "https://biletyczarterowe.r.pl/api/wyszukiwanie/wyszukaj?oneWay=false&dataUrodzenia%5B%5D=1989-10-30&dataUrodzenia%5B%5D=1989-10-30&sortowanie=cena"

// rainbow reads Rainbow charter tickets ("Destynacje").
type rainbow struct {
	cfg Config
	h   httpJSON
}

func newRainbow(cfg Config, h httpJSON) *rainbow {
	cfg.URL = orDefault(cfg.URL, rainbowDefaultURL)
	cfg.Origin = orDefault(cfg.Origin, "WAW")
	return &rainbow{cfg: cfg, h: h}
}

func (p *rainbow) Name() string { return p.cfg.Name }

func (p *rainbow) Fetch(ctx context.Context) ([]Record, error) {
	var out map[string]any
	if err := p.h.do(ctx, http.MethodGet, p.cfg.URL, nil, &out); err != nil {
		return nil, err
	}
	v, ok := out["Destynacje"]
	if !ok {
		return nil, errors.New("response has no Destynacje")
	}
	return records(v), nil
}

func (p *rainbow) Normalize(rec Record) (deal.Offer, error) {
	// DataLayer.name looks like "<destination> WAW - PMI 12/08/2024"; the
	// departure airport is the fourth token from the end.
	name := normalize.String(rec, "", "DataLayer", "name")
	origin := routeToken(name, 4)
	if p.cfg.Origin != "" && origin != p.cfg.Origin {
		return deal.Offer{}, ErrFiltered
	}

	country, err := normalize.RequiredString(rec, "Panstwo")
	if err != nil {
		return deal.Offer{}, err
	}
	dest, err := normalize.RequiredString(rec, "Nazwa")
	if err != nil {
		return deal.Offer{}, err
	}
	arrival, err := normalize.RequiredString(rec, "Klucz")
	if err != nil {
		return deal.Offer{}, err
	}
	// DataLayer.price is the fare the listing is tracked by; Cena is the
	// formatted display copy and only stands in when the former is absent.
	raw, ok := normalize.Lookup(rec, "DataLayer", "price")
	if !ok {
		raw, _ = normalize.Lookup(rec, "Cena")
	}
	price, err := normalize.Price(raw)
	if err != nil {
		return deal.Offer{}, err
	}
	rawDate, _ := normalize.Lookup(rec, "TerminWyjazdu")
	date, err := normalize.Date(rawDate, "2006-01-02T15:04:05Z")
	if err != nil {
		return deal.Offer{}, err
	}

	return deal.Offer{
		Price:         price,
		Country:       country,
		Destination:   dest,
		Airport:       route(origin, arrival),
		Brand:         normalize.String(rec, "Rainbow", "DataLayer", "brand"),
		DepartureDate: date,
		Provider:      p.cfg.Name,
		Currency:      "PLN",
		Origin:        origin,
	}, nil
}

// routeToken returns the n-th whitespace separated token from the end of s.
func routeToken(s string, n int) string {
	f := strings.Fields(s)
	if n <= 0 || len(f) < n {
		return ""
	}
	return f[len(f)-n]
}

// route joins departure and arrival airports as "WAW-PMI".
func route(from, to string) string {
	if from == "" {
		return to
	}
	return from + "-" + to
}
