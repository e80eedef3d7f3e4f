package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealwatch/internal/deal"
	logx "dealwatch/pkg/logx"
)

const pgMaxRetries = 3

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	b, err := migrationsFS.ReadFile("migrations/postgres.sql")
	if err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, string(b)); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres migrate")
	}
	log.Debug("postgres store opened", logx.String("host", pcfg.ConnConfig.Host))
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) Reconcile(ctx context.Context, snapshot []deal.Offer, at time.Time) (deal.Transition, error) {
	snapshot = deal.UniqueByKey(snapshot)
	for attempt := 0; ; attempt++ {
		tr, err := s.reconcile(ctx, snapshot, at)
		if err == nil {
			return tr, nil
		}
		if !retryable(err) || attempt >= pgMaxRetries {
			return deal.Transition{}, deal.PersistenceFailure(err, "postgres reconcile")
		}
		wait := time.Duration(attempt+1) * 100 * time.Millisecond
		s.log.Warn("retrying reconcile transaction", logx.Int("attempt", attempt+1), logx.Err(err))
		select {
		case <-ctx.Done():
			return deal.Transition{}, deal.PersistenceFailure(ctx.Err(), "postgres reconcile")
		case <-time.After(wait):
		}
	}
}

func (s *postgresStore) reconcile(ctx context.Context, snapshot []deal.Offer, at time.Time) (deal.Transition, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return deal.Transition{}, err
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Warn("rollback failed", logx.Err(rbErr))
		}
	}()

	rows, err := tx.Query(ctx, `SELECT `+keyCols+` FROM offers WHERE active`)
	if err != nil {
		return deal.Transition{}, err
	}
	active := map[deal.IdentityKey]struct{}{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			rows.Close()
			return deal.Transition{}, err
		}
		active[k] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return deal.Transition{}, err
	}

	keys := make([]deal.IdentityKey, len(snapshot))
	for i, o := range snapshot {
		keys[i] = o.Key()
	}
	tr := deal.Diff(active, keys)
	ts := at.UTC()

	for _, o := range snapshot {
		tag, err := tx.Exec(ctx,
			`INSERT INTO offers(`+keyCols+`, provider, currency, origin, link, active, first_seen, last_seen)
			 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE,$11,$11)
			 ON CONFLICT (`+keyCols+`) DO NOTHING`,
			append(offerArgs(o), ts)...)
		if err != nil {
			return deal.Transition{}, err
		}
		if tag.RowsAffected() == 1 {
			tr.Inserted = append(tr.Inserted, o.Key())
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE offers SET active = TRUE, provider = $7, currency = $8, origin = $9, link = $10, last_seen = $11
			 WHERE price = $1 AND country = $2 AND destination = $3 AND airport = $4 AND brand = $5 AND departure_date = $6`,
			append(offerArgs(o), ts)...); err != nil {
			return deal.Transition{}, err
		}
	}
	for _, k := range tr.Deactivated {
		if _, err := tx.Exec(ctx,
			`UPDATE offers SET active = FALSE
			 WHERE price = $1 AND country = $2 AND destination = $3 AND airport = $4 AND brand = $5 AND departure_date = $6`,
			keyArgs(k)...); err != nil {
			return deal.Transition{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return deal.Transition{}, err
	}
	deal.SortKeys(tr.Inserted)
	return tr, nil
}

func (s *postgresStore) Offers(ctx context.Context, f Filter) ([]deal.Record, error) {
	q, args := selectRecords(f, func(n int) string { return "$" + strconv.Itoa(n) }, true)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deal.Record
	for rows.Next() {
		var (
			r     deal.Record
			price string
		)
		if err := rows.Scan(&price, &r.Country, &r.Destination, &r.Airport, &r.Brand, &r.DepartureDate,
			&r.Provider, &r.Currency, &r.Origin, &r.Link, &r.Active, &r.FirstSeen, &r.LastSeen); err != nil {
			return nil, err
		}
		if r.Price, err = parsePrice(price); err != nil {
			return nil, errors.Wrapf(err, "price %q", price)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return limitRecords(out, f.Limit), nil
}

// retryable reports serialization failures and deadlocks.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}
