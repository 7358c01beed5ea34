package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration is one forward-only schema step, applied in order and recorded
// in schema_migrations so restarts never re-apply a step.
type migration struct {
	version int
	sql     string
}

// migrations is additive-only: once released, a step's SQL never changes.
// Version 2 illustrates the exact column set spec names as having been
// added after the fact to an existing cycle table (done_price_levels,
// current_direction, initial_threshold_price, direction_switched,
// next_order_index) — modeled here as a genuine second migration rather
// than folded into version 1, so legacy rows really do take the defaults.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS ct_cycles (
	id TEXT PRIMARY KEY,
	remote_id TEXT NOT NULL DEFAULT '',
	bot_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	magic INTEGER NOT NULL,
	kind TEXT NOT NULL,

	open_price REAL NOT NULL DEFAULT 0,
	lower_bound REAL NOT NULL DEFAULT 0,
	upper_bound REAL NOT NULL DEFAULT 0,
	threshold_lower REAL NOT NULL DEFAULT 0,
	threshold_upper REAL NOT NULL DEFAULT 0,
	zone_base_price REAL NOT NULL DEFAULT 0,
	recovery_zone_base_price REAL NOT NULL DEFAULT 0,
	initial_stop_loss_price REAL NOT NULL DEFAULT 0,

	direction_switches INTEGER NOT NULL DEFAULT 0,

	initial_orders TEXT NOT NULL DEFAULT '[]',
	hedge_orders TEXT NOT NULL DEFAULT '[]',
	pending_orders TEXT NOT NULL DEFAULT '[]',
	closed_orders TEXT NOT NULL DEFAULT '[]',
	recovery_orders TEXT NOT NULL DEFAULT '[]',
	threshold_orders TEXT NOT NULL DEFAULT '[]',
	active_orders TEXT NOT NULL DEFAULT '[]',
	completed_orders TEXT NOT NULL DEFAULT '[]',

	total_volume REAL NOT NULL DEFAULT 0,
	total_profit REAL NOT NULL DEFAULT 0,
	accumulated_loss REAL NOT NULL DEFAULT 0,
	batch_losses TEXT NOT NULL DEFAULT '[]',
	lot_idx INTEGER NOT NULL DEFAULT 0,

	status TEXT NOT NULL DEFAULT 'initial',
	is_closed INTEGER NOT NULL DEFAULT 0,
	is_pending INTEGER NOT NULL DEFAULT 0,
	opened_by TEXT NOT NULL DEFAULT '',
	closing_method TEXT NOT NULL DEFAULT '',
	close_reason TEXT NOT NULL DEFAULT '',
	close_time DATETIME,

	recovery_count INTEGER NOT NULL DEFAULT 0,
	last_candle_time DATETIME,

	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ct_cycles_bot ON ct_cycles(bot_id);
CREATE INDEX IF NOT EXISTS idx_ct_cycles_account ON ct_cycles(account_id);
CREATE INDEX IF NOT EXISTS idx_ct_cycles_remote ON ct_cycles(remote_id);
CREATE INDEX IF NOT EXISTS idx_ct_cycles_open ON ct_cycles(bot_id, is_closed);

CREATE TABLE IF NOT EXISTS ct_cycles_orders (
	id TEXT PRIMARY KEY,
	ticket INTEGER NOT NULL,
	cycle_id TEXT NOT NULL REFERENCES ct_cycles(id),
	bot_id TEXT NOT NULL,
	account_id TEXT NOT NULL,

	kind TEXT NOT NULL,
	direction TEXT NOT NULL,
	symbol TEXT NOT NULL,
	magic INTEGER NOT NULL,

	open_price REAL NOT NULL DEFAULT 0,
	volume REAL NOT NULL DEFAULT 0,
	sl REAL NOT NULL DEFAULT 0,
	tp REAL NOT NULL DEFAULT 0,
	trailing_steps INTEGER NOT NULL DEFAULT 0,

	swap REAL NOT NULL DEFAULT 0,
	commission REAL NOT NULL DEFAULT 0,
	profit REAL NOT NULL DEFAULT 0,

	is_pending INTEGER NOT NULL DEFAULT 0,
	is_closed INTEGER NOT NULL DEFAULT 0,

	opened_at DATETIME NOT NULL,
	closed_at DATETIME,
	updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ct_cycles_orders_ticket ON ct_cycles_orders(ticket);
CREATE INDEX IF NOT EXISTS idx_ct_cycles_orders_cycle ON ct_cycles_orders(cycle_id);
CREATE INDEX IF NOT EXISTS idx_ct_cycles_orders_bot ON ct_cycles_orders(bot_id, is_closed);

CREATE TABLE IF NOT EXISTS ct_config (
	bot_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (bot_id, key)
);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE ct_cycles ADD COLUMN done_price_levels TEXT NOT NULL DEFAULT '[]';
ALTER TABLE ct_cycles ADD COLUMN current_direction TEXT NOT NULL DEFAULT 'BUY';
ALTER TABLE ct_cycles ADD COLUMN initial_threshold_price REAL NOT NULL DEFAULT 0;
ALTER TABLE ct_cycles ADD COLUMN direction_switched INTEGER NOT NULL DEFAULT 0;
ALTER TABLE ct_cycles ADD COLUMN next_order_index INTEGER NOT NULL DEFAULT 0;
`,
	},
}

func migrate(db *sqlx.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at DATETIME NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	var applied []int
	if err := db.Select(&applied, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}
