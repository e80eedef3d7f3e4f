package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"dealwatch/internal/deal"
	logx "dealwatch/pkg/logx"
)

// fileStore keeps the whole lifecycle table in memory and persists it as one
// JSON document.
//
// Files:
//   - <prefix>.state.json     (replaced by rename on every reconcile)
//   - <prefix>.history.jsonl  (append-only transition log, best effort)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	statePath   string
	historyFile *os.File
	st          state
}

type fileRecord struct {
	Price         string    `json:"price"`
	Country       string    `json:"country"`
	Destination   string    `json:"destination"`
	Airport       string    `json:"airport"`
	Brand         string    `json:"brand"`
	DepartureDate string    `json:"departure_date,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	Link          string    `json:"link,omitempty"`
	Active        bool      `json:"active"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

type historyEntry struct {
	At          time.Time `json:"at"`
	Activated   int       `json:"activated"`
	Inserted    int       `json:"inserted"`
	Deactivated int       `json:"deactivated"`
	Retained    int       `json:"retained"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	statePath := prefix + ".state.json"
	st, err := loadState(statePath)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", statePath)
	}

	hf, err := os.OpenFile(prefix+".history.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	log.Debug("file store opened", logx.String("path", statePath), logx.Int("records", len(st)))
	return &fileStore{log: log, statePath: statePath, historyFile: hf, st: st}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil
	}
	err := s.historyFile.Close()
	s.historyFile = nil
	return err
}

func (s *fileStore) Reconcile(ctx context.Context, snapshot []deal.Offer, at time.Time) (deal.Transition, error) {
	if err := ctx.Err(); err != nil {
		return deal.Transition{}, deal.PersistenceFailure(err, "reconcile")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return deal.Transition{}, deal.PersistenceFailure(ErrClosed, "reconcile")
	}

	next, tr := s.st.apply(snapshot, at)
	if err := writeState(s.statePath, next); err != nil {
		return deal.Transition{}, deal.PersistenceFailure(err, "write state")
	}
	s.st = next

	if err := json.NewEncoder(s.historyFile).Encode(historyEntry{
		At:          at,
		Activated:   len(tr.Activated),
		Inserted:    len(tr.Inserted),
		Deactivated: len(tr.Deactivated),
		Retained:    tr.Retained,
	}); err != nil {
		s.log.Debug("history append failed", logx.Err(err))
	}
	return tr, nil
}

func (s *fileStore) Offers(ctx context.Context, f Filter) ([]deal.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil, ErrClosed
	}
	return s.st.list(f), nil
}

func writeState(path string, st state) error {
	recs := st.list(Filter{})
	out := make([]fileRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, fileRecord{
			Price:         r.Price.String(),
			Country:       r.Country,
			Destination:   r.Destination,
			Airport:       r.Airport,
			Brand:         r.Brand,
			DepartureDate: r.DepartureDate,
			Provider:      r.Provider,
			Currency:      r.Currency,
			Origin:        r.Origin,
			Link:          r.Link,
			Active:        r.Active,
			FirstSeen:     r.FirstSeen,
			LastSeen:      r.LastSeen,
		})
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", " ")
	if err := enc.Encode(out); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func loadState(path string) (state, error) {
	st := state{}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	var recs []fileRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, err
	}
	for _, fr := range recs {
		price, err := decimal.NewFromString(fr.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "price %q", fr.Price)
		}
		r := deal.Record{
			Offer: deal.Offer{
				Price:         price,
				Country:       fr.Country,
				Destination:   fr.Destination,
				Airport:       fr.Airport,
				Brand:         fr.Brand,
				DepartureDate: fr.DepartureDate,
				Provider:      fr.Provider,
				Currency:      fr.Currency,
				Origin:        fr.Origin,
				Link:          fr.Link,
			},
			Active:    fr.Active,
			FirstSeen: fr.FirstSeen,
			LastSeen:  fr.LastSeen,
		}
		st[r.Key()] = r
	}
	return st, nil
}
