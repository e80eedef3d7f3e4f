package storage

import (
	"embed"
	"strings"

	"github.com/shopspring/decimal"

	"dealwatch/internal/deal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const keyCols = "price, country, destination, airport, brand, departure_date"

const recordCols = keyCols + ", provider, currency, origin, link, active, first_seen, last_seen"

func keyArgs(k deal.IdentityKey) []any {
	return []any{k.Price, k.Country, k.Destination, k.Airport, k.Brand, k.DepartureDate}
}

func offerArgs(o deal.Offer) []any {
	return append(keyArgs(o.Key()), o.Provider, o.Currency, o.Origin, o.Link)
}

// rowScanner is the Scan method shared by database/sql and pgx rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(rows rowScanner) (deal.IdentityKey, error) {
	var k deal.IdentityKey
	err := rows.Scan(&k.Price, &k.Country, &k.Destination, &k.Airport, &k.Brand, &k.DepartureDate)
	return k, err
}

// selectRecords builds the Offers query; ph renders the n-th placeholder.
func selectRecords(f Filter, ph func(n int) string, activeTrue any) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		args = append(args, activeTrue)
		where = append(where, "active = "+ph(len(args)))
	}
	if f.Provider != "" {
		args = append(args, f.Provider)
		where = append(where, "provider = "+ph(len(args)))
	}
	q := "SELECT " + recordCols + " FROM offers"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q, args
}

func parsePrice(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func limitRecords(rs []deal.Record, limit int) []deal.Record {
	sortRecords(rs)
	if limit > 0 && len(rs) > limit {
		return rs[:limit]
	}
	return rs
}
