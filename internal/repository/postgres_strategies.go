package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trader-backend/internal/domain"
)

// PostgresStrategyRepository stores strategies, subscriptions and indicator
// rows.
type PostgresStrategyRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresStrategyRepository(pool *pgxpool.Pool) *PostgresStrategyRepository {
	return &PostgresStrategyRepository{pool: pool}
}

const strategyColumns = `
	id, exchange_id, market_id, timeframe, side, type, params::text,
	buy_engine_id, sell_engine_id, stop_engine_id, status, next_refresh`

func scanStrategy(s scanner) (*domain.Strategy, error) {
	var st domain.Strategy
	if err := s.Scan(
		&st.ID,
		&st.ExchangeID,
		&st.MarketID,
		&st.Timeframe,
		&st.Side,
		&st.Type,
		&st.Params,
		&st.BuyEngineID,
		&st.SellEngineID,
		&st.StopEngineID,
		&st.Status,
		&st.NextRefresh,
	); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *PostgresStrategyRepository) GetStrategy(id int64) (*domain.Strategy, error) {
	row := r.pool.QueryRow(context.Background(),
		`select `+strategyColumns+` from strategies where id = $1`, id)
	return scanStrategy(row)
}

func (r *PostgresStrategyRepository) PendingStrategies(now time.Time) ([]*domain.Strategy, error) {
	// Mixers last: their inputs must already be current within the batch.
	rows, err := r.pool.Query(context.Background(), `
		select `+strategyColumns+`
		from strategies
		where status in ('IDLE', 'REFRESHING', 'RESETTING')
			and next_refresh <= $1
		order by (type = 'mixer'), next_refresh
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Strategy, 0)
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *PostgresStrategyRepository) SetStrategyStatus(id int64, status domain.StrategyStatus) error {
	_, err := r.pool.Exec(context.Background(),
		`update strategies set status = $2 where id = $1`, id, status)
	return err
}

func (r *PostgresStrategyRepository) SetNextRefresh(id int64, status domain.StrategyStatus, next time.Time) error {
	_, err := r.pool.Exec(context.Background(),
		`update strategies set status = $2, next_refresh = $3 where id = $1`,
		id, status, next)
	return err
}

func (r *PostgresStrategyRepository) MarkDataReady(marketID int64, timeframe string) error {
	_, err := r.pool.Exec(context.Background(), `
		update strategies set status = 'IDLE'
		where market_id = $1 and timeframe = $2 and status = 'REFRESHING'
	`, marketID, timeframe)
	return err
}

func (r *PostgresStrategyRepository) DisableStrategy(id int64) error {
	return r.SetStrategyStatus(id, domain.StrategyInactive)
}

func (r *PostgresStrategyRepository) PostponeStrategy(id int64, delay time.Duration) error {
	_, err := r.pool.Exec(context.Background(),
		`update strategies set next_refresh = $2 where id = $1`,
		id, time.Now().Add(delay))
	return err
}

func (r *PostgresStrategyRepository) GetUserStrategy(id int64) (*domain.UserStrategy, error) {
	row := r.pool.QueryRow(context.Background(), `
		select id, user_id, strategy_id, is_active, created_at
		from user_strategies
		where id = $1
	`, id)

	var us domain.UserStrategy
	if err := row.Scan(&us.ID, &us.UserID, &us.StrategyID, &us.Active, &us.CreatedAt); err != nil {
		return nil, err
	}
	return &us, nil
}

func (r *PostgresStrategyRepository) Subscriptions(strategyID int64) ([]*domain.UserStrategy, error) {
	rows, err := r.pool.Query(context.Background(), `
		select id, user_id, strategy_id, is_active, created_at
		from user_strategies
		where strategy_id = $1 and is_active
	`, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.UserStrategy, 0)
	for rows.Next() {
		var us domain.UserStrategy
		if err := rows.Scan(&us.ID, &us.UserID, &us.StrategyID, &us.Active, &us.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &us)
	}
	return out, rows.Err()
}

func (r *PostgresStrategyRepository) DisableUserStrategy(id int64) error {
	_, err := r.pool.Exec(context.Background(),
		`update user_strategies set is_active = false where id = $1`, id)
	return err
}

func (r *PostgresStrategyRepository) LatestIndicator(strategyID int64) (*domain.Indicator, error) {
	row := r.pool.QueryRow(context.Background(), `
		select id, strategy_id, open_time, value, signal, created_at
		from indicators
		where strategy_id = $1
		order by open_time desc
		limit 1
	`, strategyID)

	var ind domain.Indicator
	err := row.Scan(&ind.ID, &ind.StrategyID, &ind.OpenTime, &ind.Value, &ind.Signal, &ind.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ind, nil
}

func (r *PostgresStrategyRepository) PendingCandles(s *domain.Strategy) ([]domain.Candle, error) {
	// Candles of the strategy's market/timeframe lacking an indicator row.
	rows, err := r.pool.Query(context.Background(), `
		select c.id, c.market_id, c.timeframe, c.open_time,
			c.open, c.high, c.low, c.close, c.volume
		from candles c
		left join indicators i
			on i.strategy_id = $1 and i.open_time = c.open_time
		where c.market_id = $2 and c.timeframe = $3 and i.id is null
		order by c.open_time
	`, s.ID, s.MarketID, s.Timeframe)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Candle, 0)
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(
			&c.ID, &c.MarketID, &c.Timeframe, &c.OpenTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresStrategyRepository) SaveIndicators(rowsIn []domain.Indicator) error {
	ctx := context.Background()
	for _, ind := range rowsIn {
		_, err := r.pool.Exec(ctx, `
			insert into indicators(strategy_id, open_time, value, signal)
			values ($1, $2, $3, $4)
			on conflict (strategy_id, open_time) do nothing
		`, ind.StrategyID, ind.OpenTime, ind.Value, ind.Signal)
		if err != nil {
			return err
		}
	}
	return nil
}

// compile-time check
var _ domain.StrategyRepository = (*PostgresStrategyRepository)(nil)
