package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/deal"
	"dealwatch/internal/normalize"
)

const (
	itakaDefaultURL      = "https://biletylotnicze.itaka.pl/api/graphql"
	itakaDefaultMaxPages = 20
	itakaQuery           = `query charterFlights($adultsCount: Int!, $childrenCount: Int, $departureRegions: [String!], $infantsCount: Int, $oneWay: Boolean, $page: Int, $sort: CharterFlightSortDirection) {
  charterFlights(adultsCount: $adultsCount, childrenCount: $childrenCount, departureRegions: $departureRegions, infantsCount: $infantsCount, oneWay: $oneWay, page: $page, sort: $sort) {
    items {
      departureRoute { airport { city iata name } date }
      returnRoute { airport { city iata name } date }
      pricePerPerson { amount currency }
      url
      offerId
    }
    totalCount
  }
}`
)

// itaka reads Itaka charter flights through its paginated GraphQL API.
type itaka struct {
	cfg Config
	h   httpJSON
}

func newItaka(cfg Config, h httpJSON) *itaka {
	cfg.URL = orDefault(cfg.URL, itakaDefaultURL)
	cfg.Origin = orDefault(cfg.Origin, "WAW")
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = itakaDefaultMaxPages
	}
	return &itaka{cfg: cfg, h: h}
}

func (p *itaka) Name() string { return p.cfg.Name }

func (p *itaka) Fetch(ctx context.Context) ([]Record, error) {
	var all []Record
	for page := 1; page <= p.cfg.MaxPages; page++ {
		body, err := json.Marshal(map[string]any{
			"operationName": "charterFlights",
			"query":         itakaQuery,
			"variables": map[string]any{
				"adultsCount":      1,
				"childrenCount":    0,
				"infantsCount":     0,
				"departureRegions": "warszawa",
				"oneWay":           false,
				"page":             page,
				"sort":             "PRICE_ASC",
			},
		})
		if err != nil {
			return nil, errors.Wrap(err, "encode query")
		}
		var out map[string]any
		if err := p.h.do(ctx, http.MethodPost, p.cfg.URL, body, &out); err != nil {
			// A partial listing would deactivate everything on the later pages.
			return nil, errors.Wrapf(err, "page %d", page)
		}
		items, ok := normalize.Lookup(out, "data", "charterFlights", "items")
		if !ok {
			break
		}
		recs, more := itakaPage(items)
		all = append(all, recs...)
		if !more || len(recs) == 0 {
			break
		}
	}
	return all, nil
}

// itakaPage returns the page's records; a null item terminates the listing.
func itakaPage(items any) ([]Record, bool) {
	arr, _ := items.([]any)
	out := make([]Record, 0, len(arr))
	for _, it := range arr {
		m, ok := it.(map[string]any)
		if !ok {
			return out, false
		}
		out = append(out, m)
	}
	return out, true
}

func (p *itaka) Normalize(rec Record) (deal.Offer, error) {
	city, err := normalize.RequiredString(rec, "departureRoute", "airport", "city")
	if err != nil {
		return deal.Offer{}, err
	}
	iata, err := normalize.RequiredString(rec, "departureRoute", "airport", "iata")
	if err != nil {
		return deal.Offer{}, err
	}
	raw, _ := normalize.Lookup(rec, "pricePerPerson", "amount")
	price, err := normalize.Price(raw)
	if err != nil {
		return deal.Offer{}, err
	}
	rawDate, _ := normalize.Lookup(rec, "departureRoute", "date")
	date, err := normalize.Date(rawDate)
	if err != nil {
		return deal.Offer{}, err
	}
	link := normalize.String(rec, "", "url")
	if link != "" && p.cfg.LinkBase != "" {
		link = p.cfg.LinkBase + link
	}
	return deal.Offer{
		Price:         price,
		Country:       normalize.String(rec, "Nieznane", "country"),
		Destination:   city,
		Airport:       iata,
		Brand:         "ITAKA",
		DepartureDate: date,
		Provider:      p.cfg.Name,
		Currency:      normalize.String(rec, "PLN", "pricePerPerson", "currency"),
		Origin:        p.cfg.Origin,
		Link:          link,
	}, nil
}
