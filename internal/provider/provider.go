// Package provider adapts travel-deal sources to a common contract: fetch raw
// records, then map each one to a canonical deal.Offer.
package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/deal"
)

// Record is one raw provider payload, decoded with json.Number for numbers.
type Record = map[string]any

// ErrFiltered marks records a provider skips on purpose (e.g. another
// departure airport). They are neither malformed nor part of the snapshot.
var ErrFiltered = errors.New("record filtered")

// Provider is one deal source.
type Provider interface {
	Name() string
	// Fetch returns every raw record the source currently lists.
	Fetch(ctx context.Context) ([]Record, error)
	// Normalize maps one raw record. Errors are deal.ErrMalformedRecord or ErrFiltered.
	Normalize(rec Record) (deal.Offer, error)
}

// Kinds understood by New.
const (
	KindRainbow = "rainbow"
	KindTUI     = "tui"
	// KindTUIOffers is TUI's package-holiday search, unlike the charter
	// fares behind KindTUI.
	KindTUIOffers = "tui-offers"
	KindItaka     = "itaka"
	KindWakacje   = "wakacje"
)

// Config configures one provider instance.
type Config struct {
	Name     string
	Kind     string
	Enabled  bool
	URL      string
	Timeout  time.Duration
	Origin   string          // departure airport filter / label
	MaxPages int             // paginated sources only
	Body     json.RawMessage // request payload override
	LinkBase string          // prefix for relative offer links
	Adults   int             // party size behind package prices; 0 hides the per-person price
}

// New builds a provider from cfg. A nil client gets a default one.
func New(cfg Config, client *http.Client) (Provider, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = kind
	}
	h := httpJSON{client: client, timeout: cfg.Timeout}
	switch kind {
	case KindRainbow:
		return newRainbow(cfg, h), nil
	case KindTUI:
		return newTUI(cfg, h), nil
	case KindTUIOffers:
		return newTUIOffers(cfg, h), nil
	case KindItaka:
		return newItaka(cfg, h), nil
	case KindWakacje:
		return newWakacje(cfg, h), nil
	default:
		return nil, errors.Newf("unknown provider kind %q", cfg.Kind)
	}
}

// Known reports whether kind names a supported provider.
func Known(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindRainbow, KindTUI, KindTUIOffers, KindItaka, KindWakacje:
		return true
	}
	return false
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
