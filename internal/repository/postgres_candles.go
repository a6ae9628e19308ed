package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trader-backend/internal/domain"
)

type PostgresCandleRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCandleRepository(pool *pgxpool.Pool) *PostgresCandleRepository {
	return &PostgresCandleRepository{pool: pool}
}

func (r *PostgresCandleRepository) LastCandleTime(marketID int64, timeframe string) (time.Time, bool, error) {
	row := r.pool.QueryRow(context.Background(), `
		select open_time
		from candles
		where market_id = $1 and timeframe = $2
		order by open_time desc
		limit 1
	`, marketID, timeframe)

	var t time.Time
	err := row.Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// InsertCandles deduplicates on (market, timeframe, open_time); the returned
// count only covers rows that were actually new.
func (r *PostgresCandleRepository) InsertCandles(rows []domain.Candle) (int, error) {
	ctx := context.Background()
	inserted := 0
	for _, c := range rows {
		tag, err := r.pool.Exec(ctx, `
			insert into candles(market_id, timeframe, open_time, open, high, low, close, volume)
			values ($1,$2,$3,$4,$5,$6,$7,$8)
			on conflict (market_id, timeframe, open_time) do nothing
		`, c.MarketID, c.Timeframe, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *PostgresCandleRepository) RecentCandles(marketID int64, timeframe string, limit int) ([]domain.Candle, error) {
	rows, err := r.pool.Query(context.Background(), `
		select market_id, timeframe, open_time, open, high, low, close, volume
		from (
			select market_id, timeframe, open_time, open, high, low, close, volume
			from candles
			where market_id = $1 and timeframe = $2
			order by open_time desc
			limit $3
		) t
		order by open_time asc
	`, marketID, timeframe, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Candle, 0, limit)
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.MarketID, &c.Timeframe, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// compile-time check
var _ domain.CandleRepository = (*PostgresCandleRepository)(nil)
