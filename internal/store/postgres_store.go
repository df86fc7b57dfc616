package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS underlying_ticks (
	id         BIGSERIAL PRIMARY KEY,
	product    TEXT NOT NULL,
	tick_id    BIGINT NOT NULL,
	price      NUMERIC(18,2) NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	UNIQUE (product, tick_id)
);
CREATE INDEX IF NOT EXISTS idx_underlying_ticks_product_ts ON underlying_ticks (product, ts);

CREATE TABLE IF NOT EXISTS option_chains (
	id         BIGSERIAL PRIMARY KEY,
	product    TEXT NOT NULL,
	expiry     DATE NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL,
	UNIQUE (product, expiry, ts)
);
CREATE INDEX IF NOT EXISTS idx_option_chains_product_expiry_ts ON option_chains (product, expiry, ts);
`

const (
	insertTickQuery = `
INSERT INTO underlying_ticks (product, tick_id, price, ts) VALUES ($1, $2, $3, $4)
ON CONFLICT (product, tick_id) DO NOTHING`

	insertChainQuery = `
INSERT INTO option_chains (product, expiry, ts, payload) VALUES ($1, $2, $3, $4)
ON CONFLICT (product, expiry, ts) DO NOTHING`

	listTicksQuery = `
SELECT product, tick_id, price, ts FROM underlying_ticks
WHERE product = $1 AND ts >= $2 AND ts <= $3
ORDER BY ts ASC LIMIT $4`

	listChainsQuery = `
SELECT payload FROM option_chains
WHERE product = $1 AND expiry = $2 AND ts >= $3 AND ts <= $4
ORDER BY ts ASC LIMIT $5`

	productsQuery = `SELECT DISTINCT product FROM underlying_ticks ORDER BY product`

	expiriesQuery = `SELECT DISTINCT expiry FROM option_chains WHERE product = $1 ORDER BY expiry`
)

// PostgresStore is the DocStore implementation over database/sql + lib/pq,
// following the teacher pack's prepared-statement-on-open shape (see
// gurre-prime-fix-md-go/database/marketdata.go) adapted from SQLite
// batch inserts to Postgres upserts keyed for idempotent replay.
type PostgresStore struct {
	db *sql.DB

	stmtInsertTick  *sql.Stmt
	stmtInsertChain *sql.Stmt
}

// NewPostgresStore opens dsn, initializes the schema if absent, and
// prepares the hot-path insert statements.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: postgres ping: %v", model.ErrTransientBackend, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	ps := &PostgresStore{db: db}
	if ps.stmtInsertTick, err = db.Prepare(insertTickQuery); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert tick: %w", err)
	}
	if ps.stmtInsertChain, err = db.Prepare(insertChainQuery); err != nil {
		_ = ps.stmtInsertTick.Close()
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert chain: %w", err)
	}
	return ps, nil
}

func (p *PostgresStore) Close() error {
	_ = p.stmtInsertTick.Close()
	_ = p.stmtInsertChain.Close()
	return p.db.Close()
}

func (p *PostgresStore) InsertTick(ctx context.Context, t model.UnderlyingTick) error {
	_, err := p.stmtInsertTick.ExecContext(ctx, string(t.Product), t.TickID, t.Price.String(), t.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: insert tick: %v", model.ErrTransientBackend, err)
	}
	return nil
}

func (p *PostgresStore) InsertChain(ctx context.Context, c model.EnrichedChain) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal chain: %w", err)
	}
	_, err = p.stmtInsertChain.ExecContext(ctx, string(c.Product), c.Expiry, c.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("%w: insert chain: %v", model.ErrTransientBackend, err)
	}
	return nil
}

func (p *PostgresStore) ListUnderlyingTicks(ctx context.Context, product model.Product, from, to time.Time, limit int) ([]model.UnderlyingTick, error) {
	rows, err := p.db.QueryContext(ctx, listTicksQuery, string(product), from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list ticks: %v", model.ErrTransientBackend, err)
	}
	defer rows.Close()

	var out []model.UnderlyingTick
	for rows.Next() {
		var (
			prod     string
			tickID   int64
			priceStr string
			ts       time.Time
		)
		if err := rows.Scan(&prod, &tickID, &priceStr, &ts); err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}
		price, err := decimalFromString(priceStr)
		if err != nil {
			return nil, err
		}
		out = append(out, model.UnderlyingTick{
			Product:   model.Product(prod),
			Price:     price,
			Timestamp: ts,
			TickID:    tickID,
		})
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListOptionChains(ctx context.Context, product model.Product, expiry time.Time, from, to time.Time, limit int) ([]model.EnrichedChain, error) {
	rows, err := p.db.QueryContext(ctx, listChainsQuery, string(product), expiry, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list chains: %v", model.ErrTransientBackend, err)
	}
	defer rows.Close()

	var out []model.EnrichedChain
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan chain row: %w", err)
		}
		var c model.EnrichedChain
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("unmarshal chain payload: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Products(ctx context.Context) ([]model.Product, error) {
	rows, err := p.db.QueryContext(ctx, productsQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: products: %v", model.ErrTransientBackend, err)
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		var prod string
		if err := rows.Scan(&prod); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		out = append(out, model.Product(prod))
	}
	return out, rows.Err()
}

func (p *PostgresStore) Expiries(ctx context.Context, product model.Product) ([]time.Time, error) {
	rows, err := p.db.QueryContext(ctx, expiriesQuery, string(product))
	if err != nil {
		return nil, fmt.Errorf("%w: expiries: %v", model.ErrTransientBackend, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan expiry row: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}
