// Package normalize holds the field-level helpers provider mappings use to
// turn raw payloads into canonical offers.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"dealwatch/internal/deal"
)

// DateLayout is the single calendar representation every offer date uses.
const DateLayout = "2006-01-02"

// Lookup walks nested JSON objects. It returns (nil, false) if any step is
// missing or not an object.
func Lookup(rec map[string]any, path ...string) (any, bool) {
	var cur any = rec
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// String returns the value at path as a trimmed string, or def.
func String(rec map[string]any, def string, path ...string) string {
	v, ok := Lookup(rec, path...)
	if !ok {
		return def
	}
	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return def
	}
	return s
}

// RequiredString is String without a default: absent or blank values are
// malformed.
func RequiredString(rec map[string]any, path ...string) (string, error) {
	s := String(rec, "", path...)
	if s == "" {
		return "", deal.Malformed("missing field %s", strings.Join(path, "."))
	}
	return s, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return decimal.NewFromFloat(x).String()
	case int:
		return fmt.Sprint(x)
	case int64:
		return fmt.Sprint(x)
	case bool:
		return fmt.Sprint(x)
	default:
		return ""
	}
}

var priceNoise = strings.NewReplacer(
	" ", "",
	"\u00a0", "", // no-break space
	"\u202f", "", // narrow no-break space
	"\u2009", "", // thin space
	"'", "",
	"zł", "",
	"PLN", "",
	"pln", "",
)

// Price parses a provider price: numbers, or strings with thousands
// separators and a currency suffix ("1 299 zł", "1.299,50", "1299,50").
// Strings whose separators cannot be told apart are malformed.
func Price(v any) (decimal.Decimal, error) {
	var raw string
	switch x := v.(type) {
	case nil:
		return decimal.Decimal{}, deal.Malformed("missing price")
	case float64:
		return checkPrice(decimal.NewFromFloat(x), fmt.Sprint(x))
	case int:
		return checkPrice(decimal.NewFromInt(int64(x)), fmt.Sprint(x))
	case int64:
		return checkPrice(decimal.NewFromInt(x), fmt.Sprint(x))
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Decimal{}, deal.MarkMalformed(err, fmt.Sprintf("parse price %q", x))
		}
		return checkPrice(d, x.String())
	case string:
		raw = x
	default:
		return decimal.Decimal{}, deal.Malformed("unsupported price type %T", v)
	}

	s := priceNoise.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Decimal{}, deal.Malformed("empty price %q", raw)
	}
	s, err := decimalPoint(s)
	if err != nil {
		return decimal.Decimal{}, deal.MarkMalformed(err, fmt.Sprintf("parse price %q", raw))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, deal.MarkMalformed(err, fmt.Sprintf("parse price %q", raw))
	}
	return checkPrice(d, raw)
}

// decimalPoint rewrites s so "." is the only separator left and marks the
// decimal point. With both "." and "," present the last one is the decimal
// point. A single kind is a thousands separator when every group after it
// has exactly three digits, and a decimal point when it occurs once with a
// different group width.
func decimalPoint(s string) (string, error) {
	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots == 0 && commas == 0:
		return s, nil
	case dots > 0 && commas > 0:
		i := strings.LastIndexAny(s, ".,")
		dec, group := s[i:i+1], ","
		if dec == "," {
			group = "."
		}
		if strings.Count(s, dec) != 1 || !thousandGroups(s[:i], group) {
			return "", errors.Newf("ambiguous separators in %q", s)
		}
		return strings.ReplaceAll(s[:i], group, "") + "." + s[i+1:], nil
	}
	sep := "."
	if commas > 0 {
		sep = ","
	}
	if thousandGroups(s, sep) {
		return strings.ReplaceAll(s, sep, ""), nil
	}
	if strings.Count(s, sep) == 1 {
		return strings.Replace(s, sep, ".", 1), nil
	}
	return "", errors.Newf("ambiguous separators in %q", s)
}

// thousandGroups reports whether s splits on sep into a leading group of one
// to three digits followed only by three-digit groups.
func thousandGroups(s, sep string) bool {
	parts := strings.Split(s, sep)
	if len(parts) < 2 || len(parts[0]) == 0 || len(parts[0]) > 3 || parts[0] == "0" {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

func checkPrice(d decimal.Decimal, raw string) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Decimal{}, deal.Malformed("negative price %q", raw)
	}
	return d, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
	"02.01.2006",
}

// Date normalizes a provider timestamp to DateLayout. Empty input yields ""
// (the absent-date sentinel). Extra layouts are tried before the defaults.
func Date(v any, layouts ...string) (string, error) {
	s := strings.TrimSpace(stringify(v))
	if s == "" {
		return "", nil
	}
	for _, l := range append(layouts, dateLayouts...) {
		if t, err := time.Parse(l, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", deal.Malformed("unparsable date %q", s)
}
