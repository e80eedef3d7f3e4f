package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"dealwatch/internal/deal"
	logx "dealwatch/pkg/logx"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; reconcile holds it for the whole transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "sqlite migrate")
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Reconcile(ctx context.Context, snapshot []deal.Offer, at time.Time) (deal.Transition, error) {
	tr, err := s.reconcile(ctx, deal.UniqueByKey(snapshot), at)
	if err != nil {
		return deal.Transition{}, deal.PersistenceFailure(err, "sqlite reconcile")
	}
	return tr, nil
}

func (s *sqliteStore) reconcile(ctx context.Context, snapshot []deal.Offer, at time.Time) (deal.Transition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return deal.Transition{}, err
	}
	defer func() { _ = tx.Rollback() }()

	active, err := sqliteActive(ctx, tx)
	if err != nil {
		return deal.Transition{}, err
	}
	keys := make([]deal.IdentityKey, len(snapshot))
	for i, o := range snapshot {
		keys[i] = o.Key()
	}
	tr := deal.Diff(active, keys)
	ts := at.UTC().Format(time.RFC3339Nano)

	for _, o := range snapshot {
		args := append(offerArgs(o), ts, ts)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO offers(`+keyCols+`, provider, currency, origin, link, active, first_seen, last_seen)
			 VALUES(?,?,?,?,?,?,?,?,?,?,1,?,?)
			 ON CONFLICT(`+keyCols+`) DO NOTHING`, args...)
		if err != nil {
			return deal.Transition{}, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			tr.Inserted = append(tr.Inserted, o.Key())
			continue
		}
		upd := append([]any{o.Provider, o.Currency, o.Origin, o.Link, ts}, keyArgs(o.Key())...)
		if _, err := tx.ExecContext(ctx,
			`UPDATE offers SET active = 1, provider = ?, currency = ?, origin = ?, link = ?, last_seen = ?
			 WHERE price = ? AND country = ? AND destination = ? AND airport = ? AND brand = ? AND departure_date = ?`,
			upd...); err != nil {
			return deal.Transition{}, err
		}
	}
	for _, k := range tr.Deactivated {
		if _, err := tx.ExecContext(ctx,
			`UPDATE offers SET active = 0
			 WHERE price = ? AND country = ? AND destination = ? AND airport = ? AND brand = ? AND departure_date = ?`,
			keyArgs(k)...); err != nil {
			return deal.Transition{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return deal.Transition{}, err
	}
	deal.SortKeys(tr.Inserted)
	return tr, nil
}

func sqliteActive(ctx context.Context, tx *sql.Tx) (map[deal.IdentityKey]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+keyCols+` FROM offers WHERE active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[deal.IdentityKey]struct{}{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func (s *sqliteStore) Offers(ctx context.Context, f Filter) ([]deal.Record, error) {
	q, args := selectRecords(f, func(int) string { return "?" }, 1)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deal.Record
	for rows.Next() {
		var (
			r           deal.Record
			price       string
			active      int
			first, last string
		)
		if err := rows.Scan(&price, &r.Country, &r.Destination, &r.Airport, &r.Brand, &r.DepartureDate,
			&r.Provider, &r.Currency, &r.Origin, &r.Link, &active, &first, &last); err != nil {
			return nil, err
		}
		if r.Price, err = parsePrice(price); err != nil {
			return nil, errors.Wrapf(err, "price %q", price)
		}
		r.Active = active == 1
		r.FirstSeen, _ = time.Parse(time.RFC3339Nano, first)
		r.LastSeen, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return limitRecords(out, f.Limit), nil
}
