package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the tables the engine needs. This keeps setup simple (no
// external migration tool) while still giving durable state the scheduler
// can resume from after a crash.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`create table if not exists exchanges (
			id bigserial primary key,
			user_id text not null,
			name text not null,
			type text not null,
			api_key text not null default '',
			secret_enc text not null default '',
			rate_limit_ms int not null default 1000,
			retry_limit int not null default 3,
			is_testnet boolean not null default false,
			is_enabled boolean not null default true,
			created_at timestamptz not null default now()
		);`,
		`create table if not exists assets (
			id bigserial primary key,
			ticker text not null unique,
			name text not null default ''
		);`,
		`create table if not exists exchange_assets (
			id bigserial primary key,
			exchange_id bigint not null references exchanges(id),
			asset_id bigint not null references assets(id),
			ticker text not null,
			precision int not null default 8,
			unique(exchange_id, asset_id)
		);`,
		`create table if not exists markets (
			id bigserial primary key,
			exchange_id bigint not null references exchanges(id),
			symbol text not null,
			base_id bigint not null references exchange_assets(id),
			quote_id bigint not null references exchange_assets(id),
			amount_precision int not null default 8,
			price_precision int not null default 8,
			amount_min bigint not null default 0,
			price_min bigint not null default 0,
			cost_min bigint not null default 0,
			unique(exchange_id, symbol)
		);`,
		`create table if not exists trade_engines (
			id bigserial primary key,
			name text not null default '',
			refresh_interval_ms bigint not null,
			num_orders int not null default 1,
			bucket_interval_ms bigint not null,
			min_buckets int not null default 1,
			spread double precision not null default 0,
			stop_cooldown_ms bigint not null default 0,
			stop_gain double precision not null default 0,
			trailing_gain double precision not null default 0,
			stop_loss double precision not null default 0,
			trailing_loss double precision not null default 0,
			lm_ratio double precision not null default 0
		);`,
		`create table if not exists strategies (
			id bigserial primary key,
			exchange_id bigint not null references exchanges(id),
			market_id bigint not null references markets(id),
			timeframe text not null,
			side text not null default 'long',
			type text not null,
			params jsonb not null default '{}'::jsonb,
			buy_engine_id bigint not null references trade_engines(id),
			sell_engine_id bigint not null references trade_engines(id),
			stop_engine_id bigint not null references trade_engines(id),
			status text not null default 'INACTIVE',
			next_refresh timestamptz not null default '1970-01-01'::timestamptz
		);`,
		`create index if not exists strategies_pending_idx on strategies(status, next_refresh);`,
		`create table if not exists user_strategies (
			id bigserial primary key,
			user_id text not null,
			strategy_id bigint not null references strategies(id),
			is_active boolean not null default true,
			created_at timestamptz not null default now(),
			unique(user_id, strategy_id)
		);`,
		`create table if not exists positions (
			id text primary key,
			user_strategy_id bigint not null references user_strategies(id),
			market_id bigint not null references markets(id),
			side text not null,
			status text not null,
			bucket int not null default 0,
			bucket_max int not null default 0,
			next_bucket timestamptz not null default '1970-01-01'::timestamptz,
			target_cost bigint not null default 0,
			target_amount bigint not null default 0,
			entry_cost bigint not null default 0,
			entry_amount bigint not null default 0,
			entry_price bigint not null default 0,
			exit_cost bigint not null default 0,
			exit_amount bigint not null default 0,
			exit_price bigint not null default 0,
			fee bigint not null default 0,
			pnl bigint not null default 0,
			roi double precision not null default 0,
			last_high bigint not null default 0,
			last_low bigint not null default 0,
			refreshing boolean not null default false,
			next_refresh timestamptz not null default '1970-01-01'::timestamptz,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now(),
			exit_time timestamptz not null default '1970-01-01'::timestamptz
		);`,
		`create index if not exists positions_status_idx on positions(status);`,
		`create index if not exists positions_pending_idx on positions(status, next_refresh);`,
		`create index if not exists positions_owner_idx on positions(user_strategy_id, status);`,
		`create table if not exists orders (
			id text primary key,
			position_id text not null references positions(id),
			exchange_order_id text not null default '',
			status text not null,
			type text not null,
			side text not null,
			price bigint not null default 0,
			amount bigint not null default 0,
			cost bigint not null default 0,
			filled bigint not null default 0,
			fee bigint not null default 0,
			time timestamptz not null default now()
		);`,
		`create index if not exists orders_position_idx on orders(position_id, status);`,
		`create table if not exists candles (
			id bigserial primary key,
			market_id bigint not null references markets(id),
			timeframe text not null,
			open_time timestamptz not null,
			open bigint not null,
			high bigint not null,
			low bigint not null,
			close bigint not null,
			volume bigint not null,
			unique(market_id, timeframe, open_time)
		);`,
		`create table if not exists indicators (
			id bigserial primary key,
			strategy_id bigint not null references strategies(id),
			open_time timestamptz not null,
			value double precision not null default 0,
			signal text not null default 'NEUTRAL',
			created_at timestamptz not null default now(),
			unique(strategy_id, open_time)
		);`,
		`create index if not exists indicators_latest_idx on indicators(strategy_id, open_time desc);`,
		`create table if not exists device_tokens (
			token text primary key,
			user_id text not null,
			platform text not null default 'android',
			created_at timestamptz not null default now()
		);`,
		`create index if not exists device_tokens_user_idx on device_tokens(user_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
