package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"trader-backend/internal/domain"
)

type PostgresOrderRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOrderRepository(pool *pgxpool.Pool) *PostgresOrderRepository {
	return &PostgresOrderRepository{pool: pool}
}

const orderColumns = `
	id, position_id, exchange_order_id, status, type, side,
	price, amount, cost, filled, fee, time`

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	if err := s.Scan(
		&o.ID, &o.PositionID, &o.ExchangeOrderID, &o.Status, &o.Type, &o.Side,
		&o.Price, &o.Amount, &o.Cost, &o.Filled, &o.Fee, &o.Time,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresOrderRepository) InsertOrder(o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := r.pool.Exec(context.Background(), `
		insert into orders(
			id, position_id, exchange_order_id, status, type, side,
			price, amount, cost, filled, fee, time
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		o.ID, o.PositionID, o.ExchangeOrderID, o.Status, o.Type, o.Side,
		o.Price, o.Amount, o.Cost, o.Filled, o.Fee, o.Time,
	)
	return err
}

func (r *PostgresOrderRepository) UpdateOrder(o *domain.Order) error {
	if o == nil {
		return errors.New("nil order")
	}
	_, err := r.pool.Exec(context.Background(), `
		update orders set
			exchange_order_id=$2, status=$3,
			price=$4, amount=$5, cost=$6, filled=$7, fee=$8
		where id=$1
	`,
		o.ID, o.ExchangeOrderID, o.Status,
		o.Price, o.Amount, o.Cost, o.Filled, o.Fee,
	)
	return err
}

func (r *PostgresOrderRepository) GetOrder(id string) (*domain.Order, error) {
	row := r.pool.QueryRow(context.Background(),
		`select `+orderColumns+` from orders where id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("order %s not found: %w", id, err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) OpenOrders(positionID string) ([]*domain.Order, error) {
	return r.queryOrders(`
		select `+orderColumns+`
		from orders
		where position_id = $1 and status = 'open'
		order by time
	`, positionID)
}

func (r *PostgresOrderRepository) PositionOrders(positionID string) ([]*domain.Order, error) {
	return r.queryOrders(`
		select `+orderColumns+`
		from orders
		where position_id = $1
		order by time
	`, positionID)
}

func (r *PostgresOrderRepository) queryOrders(sql string, args ...any) ([]*domain.Order, error) {
	rows, err := r.pool.Query(context.Background(), sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// compile-time check
var _ domain.OrderRepository = (*PostgresOrderRepository)(nil)
