package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTokenRepository stores the device tokens the notification sink
// delivers to.
type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresTokenRepository(pool *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

func (r *PostgresTokenRepository) RegisterToken(userID, token, platform string) error {
	_, err := r.pool.Exec(context.Background(), `
		insert into device_tokens(token, user_id, platform, created_at)
		values ($1, $2, $3, $4)
		on conflict (token) do update set user_id = $2, platform = $3
	`, token, userID, platform, time.Now().UTC())
	return err
}

func (r *PostgresTokenRepository) UnregisterToken(token string) error {
	_, err := r.pool.Exec(context.Background(),
		`delete from device_tokens where token = $1`, token)
	return err
}

func (r *PostgresTokenRepository) TokensForUser(userID string) ([]string, error) {
	rows, err := r.pool.Query(context.Background(),
		`select token from device_tokens where user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
