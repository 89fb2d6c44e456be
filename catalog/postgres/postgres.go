// Package postgres implements catalog.Store on a PostgreSQL items table
// using a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justapithecus/catalogfeed/catalog"
	"github.com/justapithecus/catalogfeed/types"
)

// Schema is the items table layout the store queries.
const Schema = `CREATE TABLE IF NOT EXISTS items (
	id               BIGINT PRIMARY KEY,
	parent_id        BIGINT REFERENCES items(id),
	kind             TEXT NOT NULL,
	status           TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	brand            TEXT NOT NULL DEFAULT '',
	condition        TEXT NOT NULL DEFAULT '',
	price_cents      BIGINT NOT NULL DEFAULT 0,
	sale_price_cents BIGINT NOT NULL DEFAULT 0,
	currency         TEXT NOT NULL DEFAULT '',
	stock_status     TEXT NOT NULL DEFAULT '',
	link             TEXT NOT NULL DEFAULT '',
	image_link       TEXT NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// listIDsSQL selects candidates: items of Kinds that are themselves
// published, and items of ChildKinds whose parent is published.
const listIDsSQL = `SELECT i.id
FROM items i
LEFT JOIN items p ON i.parent_id = p.id
WHERE (i.kind = ANY($1) AND i.status = 'publish')
   OR (i.kind = ANY($2) AND p.status = 'publish')
ORDER BY i.id ASC
LIMIT $3 OFFSET $4`

const loadSQL = `SELECT i.id, COALESCE(i.parent_id, 0), i.kind, i.status, COALESCE(p.status, ''),
       i.title, i.description, i.brand, i.condition,
       i.price_cents, i.sale_price_cents, i.currency, i.stock_status,
       i.link, i.image_link, i.updated_at
FROM items i
LEFT JOIN items p ON i.parent_id = p.id
WHERE i.id = $1`

// Config configures the connection pool.
type Config struct {
	DSN string
	// MaxConns caps pool size. Defaults to 4.
	MaxConns int
	// SimpleProtocol disables prepared statements (for pgbouncer transaction pooling).
	SimpleProtocol bool
}

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a catalog.Store backed by PostgreSQL.
type Store struct {
	db    querier
	close func()
}

// Open connects a pool and returns a Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	poolCfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by config validation
	if cfg.SimpleProtocol {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, close: pool.Close}
}

// ListIDs implements catalog.Lister.
func (s *Store) ListIDs(ctx context.Context, offset, limit int64, filter catalog.TypeFilter) ([]types.ItemID, error) {
	rows, err := s.db.Query(ctx, listIDsSQL, filter.KindStrings(), filter.ChildKindStrings(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := make([]types.ItemID, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, types.ItemID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// Load implements catalog.Loader.
func (s *Store) Load(ctx context.Context, id types.ItemID) (*types.Item, error) {
	var (
		item                              types.Item
		itemID, parentID                  int64
		kind, status, parentStatus, stock string
	)
	err := s.db.QueryRow(ctx, loadSQL, int64(id)).Scan(
		&itemID, &parentID, &kind, &status, &parentStatus,
		&item.Title, &item.Description, &item.Brand, &item.Condition,
		&item.PriceCents, &item.SalePriceCents, &item.Currency, &stock,
		&item.Link, &item.ImageLink, &item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", id, err)
	}

	item.ID = types.ItemID(itemID)
	item.ParentID = types.ItemID(parentID)
	item.Kind = types.ItemKind(kind)
	item.Status = types.ItemStatus(status)
	item.ParentStatus = types.ItemStatus(parentStatus)
	item.StockStatus = types.StockStatus(stock)
	return &item, nil
}
// Close releases the pool.
func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// IsTransient reports whether err is a connection-level failure worth retrying.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception; 57P: operator intervention.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	return pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded)
}

var _ catalog.Store = (*Store)(nil)
