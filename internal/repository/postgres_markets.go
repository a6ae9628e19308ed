package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trader-backend/internal/domain"
)

// PostgresMarketRepository loads exchanges, markets and trade engines.
// These records change rarely; positions and strategies reference them by id.
type PostgresMarketRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMarketRepository(pool *pgxpool.Pool) *PostgresMarketRepository {
	return &PostgresMarketRepository{pool: pool}
}

func (r *PostgresMarketRepository) GetExchange(id int64) (*domain.Exchange, error) {
	row := r.pool.QueryRow(context.Background(), `
		select id, user_id, name, type, api_key, secret_enc,
			rate_limit_ms, retry_limit, is_testnet, is_enabled
		from exchanges
		where id = $1
	`, id)

	var e domain.Exchange
	var rateLimitMs int64
	if err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Name,
		&e.Type,
		&e.APIKey,
		&e.Secret,
		&rateLimitMs,
		&e.RetryLimit,
		&e.Testnet,
		&e.Enabled,
	); err != nil {
		return nil, err
	}
	e.RateLimit = time.Duration(rateLimitMs) * time.Millisecond
	return &e, nil
}

func (r *PostgresMarketRepository) DisableExchange(id int64) error {
	_, err := r.pool.Exec(context.Background(), `
		update exchanges set is_enabled = false where id = $1
	`, id)
	return err
}

func (r *PostgresMarketRepository) GetMarket(id int64) (*domain.Market, error) {
	row := r.pool.QueryRow(context.Background(), `
		select m.id, m.exchange_id, m.symbol,
			b.id, b.exchange_id, b.asset_id, b.ticker, b.precision,
			q.id, q.exchange_id, q.asset_id, q.ticker, q.precision,
			m.amount_precision, m.price_precision,
			m.amount_min, m.price_min, m.cost_min
		from markets m
		join exchange_assets b on b.id = m.base_id
		join exchange_assets q on q.id = m.quote_id
		where m.id = $1
	`, id)

	var m domain.Market
	if err := row.Scan(
		&m.ID,
		&m.ExchangeID,
		&m.Symbol,
		&m.Base.ID, &m.Base.ExchangeID, &m.Base.AssetID, &m.Base.Ticker, &m.Base.Precision,
		&m.Quote.ID, &m.Quote.ExchangeID, &m.Quote.AssetID, &m.Quote.Ticker, &m.Quote.Precision,
		&m.AmountPrecision,
		&m.PricePrecision,
		&m.AmountMin,
		&m.PriceMin,
		&m.CostMin,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresMarketRepository) GetEngine(id int64) (*domain.TradeEngine, error) {
	row := r.pool.QueryRow(context.Background(), `
		select id, name, refresh_interval_ms, num_orders, bucket_interval_ms,
			min_buckets, spread, stop_cooldown_ms, stop_gain, trailing_gain,
			stop_loss, trailing_loss, lm_ratio
		from trade_engines
		where id = $1
	`, id)

	var e domain.TradeEngine
	var refreshMs, bucketMs, cooldownMs int64
	if err := row.Scan(
		&e.ID,
		&e.Name,
		&refreshMs,
		&e.NumOrders,
		&bucketMs,
		&e.MinBuckets,
		&e.Spread,
		&cooldownMs,
		&e.StopGain,
		&e.TrailingGain,
		&e.StopLoss,
		&e.TrailingLoss,
		&e.LMRatio,
	); err != nil {
		return nil, err
	}
	e.RefreshInterval = time.Duration(refreshMs) * time.Millisecond
	e.BucketInterval = time.Duration(bucketMs) * time.Millisecond
	e.StopCooldown = time.Duration(cooldownMs) * time.Millisecond
	return &e, nil
}

// compile-time checks
var (
	_ domain.ExchangeRepository = (*PostgresMarketRepository)(nil)
	_ domain.MarketRepository   = (*PostgresMarketRepository)(nil)
	_ domain.EngineRepository   = (*PostgresMarketRepository)(nil)
)
