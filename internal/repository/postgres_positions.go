package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trader-backend/internal/domain"
)

// PostgresPositionRepository stores positions and their orders. The
// refreshing flag doubles as a persisted mutual-exclusion lock and is only
// ever set through the conditional update in AcquireRefreshLock.
type PostgresPositionRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPositionRepository(pool *pgxpool.Pool) *PostgresPositionRepository {
	return &PostgresPositionRepository{pool: pool}
}

type scanner interface {
	Scan(dest ...any) error
}

const positionColumns = `
	id, user_strategy_id, market_id, side, status,
	bucket, bucket_max, next_bucket,
	target_cost, target_amount,
	entry_cost, entry_amount, entry_price,
	exit_cost, exit_amount, exit_price,
	fee, pnl, roi, last_high, last_low,
	refreshing, next_refresh, created_at, updated_at, exit_time`

func scanPosition(s scanner) (*domain.Position, error) {
	var p domain.Position
	if err := s.Scan(
		&p.ID, &p.UserStrategyID, &p.MarketID, &p.Side, &p.Status,
		&p.Bucket, &p.BucketMax, &p.NextBucket,
		&p.TargetCost, &p.TargetAmount,
		&p.EntryCost, &p.EntryAmount, &p.EntryPrice,
		&p.ExitCost, &p.ExitAmount, &p.ExitPrice,
		&p.Fee, &p.PnL, &p.ROI, &p.LastHigh, &p.LastLow,
		&p.Refreshing, &p.NextRefresh, &p.CreatedAt, &p.UpdatedAt, &p.ExitTime,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPositionRepository) CreatePosition(p *domain.Position) error {
	if p == nil {
		return errors.New("nil position")
	}
	_, err := r.pool.Exec(context.Background(), `
		insert into positions(
			id, user_strategy_id, market_id, side, status,
			bucket, bucket_max, next_bucket,
			target_cost, target_amount,
			entry_cost, entry_amount, entry_price,
			exit_cost, exit_amount, exit_price,
			fee, pnl, roi, last_high, last_low,
			refreshing, next_refresh, created_at, updated_at, exit_time
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
			$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`,
		p.ID, p.UserStrategyID, p.MarketID, p.Side, p.Status,
		p.Bucket, p.BucketMax, p.NextBucket,
		p.TargetCost, p.TargetAmount,
		p.EntryCost, p.EntryAmount, p.EntryPrice,
		p.ExitCost, p.ExitAmount, p.ExitPrice,
		p.Fee, p.PnL, p.ROI, p.LastHigh, p.LastLow,
		p.Refreshing, p.NextRefresh, p.CreatedAt, p.UpdatedAt, p.ExitTime,
	)
	return err
}

func (r *PostgresPositionRepository) UpdatePosition(p *domain.Position) error {
	if p == nil {
		return errors.New("nil position")
	}
	p.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(context.Background(), `
		update positions set
			side=$2, status=$3,
			bucket=$4, bucket_max=$5, next_bucket=$6,
			target_cost=$7, target_amount=$8,
			entry_cost=$9, entry_amount=$10, entry_price=$11,
			exit_cost=$12, exit_amount=$13, exit_price=$14,
			fee=$15, pnl=$16, roi=$17, last_high=$18, last_low=$19,
			next_refresh=$20, updated_at=$21, exit_time=$22
		where id=$1
	`,
		p.ID, p.Side, p.Status,
		p.Bucket, p.BucketMax, p.NextBucket,
		p.TargetCost, p.TargetAmount,
		p.EntryCost, p.EntryAmount, p.EntryPrice,
		p.ExitCost, p.ExitAmount, p.ExitPrice,
		p.Fee, p.PnL, p.ROI, p.LastHigh, p.LastLow,
		p.NextRefresh, p.UpdatedAt, p.ExitTime,
	)
	return err
}

func (r *PostgresPositionRepository) GetPosition(id string) (*domain.Position, error) {
	row := r.pool.QueryRow(context.Background(),
		`select `+positionColumns+` from positions where id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		return nil, fmt.Errorf("position %s not found: %w", id, err)
	}
	return p, nil
}

func (r *PostgresPositionRepository) CurrentPosition(userStrategyID int64) (*domain.Position, bool, error) {
	row := r.pool.QueryRow(context.Background(), `
		select `+positionColumns+`
		from positions
		where user_strategy_id = $1
			and status not in ('closed', 'stopped', 'stalled', 'deleted')
		order by created_at desc
		limit 1
	`, userStrategyID)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (r *PostgresPositionRepository) LastStopped(userStrategyID int64) (*domain.Position, bool, error) {
	row := r.pool.QueryRow(context.Background(), `
		select `+positionColumns+`
		from positions
		where user_strategy_id = $1 and status = 'stopped'
		order by exit_time desc
		limit 1
	`, userStrategyID)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (r *PostgresPositionRepository) PendingPositions(now time.Time) ([]*domain.Position, error) {
	return r.queryPositions(`
		select `+positionColumns+`
		from positions
		where status in ('opening', 'open', 'closing', 'stopping')
			and not refreshing
			and next_refresh <= $1
		order by next_refresh
	`, now)
}

func (r *PostgresPositionRepository) ActivePositions() ([]*domain.Position, error) {
	return r.queryPositions(`
		select ` + positionColumns + `
		from positions
		where status in ('opening', 'open') and not refreshing
	`)
}

func (r *PostgresPositionRepository) queryPositions(sql string, args ...any) ([]*domain.Position, error) {
	rows, err := r.pool.Query(context.Background(), sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AcquireRefreshLock is the set-if-false conditional update: it succeeds for
// exactly one caller even with concurrent scheduler instances.
func (r *PostgresPositionRepository) AcquireRefreshLock(id string) (bool, error) {
	tag, err := r.pool.Exec(context.Background(), `
		update positions set refreshing = true
		where id = $1 and not refreshing
	`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresPositionRepository) ReleaseRefreshLock(id string) error {
	_, err := r.pool.Exec(context.Background(),
		`update positions set refreshing = false where id = $1`, id)
	return err
}

// compile-time check
var _ domain.PositionRepository = (*PostgresPositionRepository)(nil)
