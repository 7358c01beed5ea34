package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cycletrader/orchestrator/internal/models"
)

// ErrNotFound is returned by by-id/by-ticket/by-remote-id lookups that find
// nothing, letting callers distinguish "absent" from a real query failure.
var ErrNotFound = errors.New("store: not found")

// CycleRepo persists models.Cycle rows in ct_cycles.
type CycleRepo struct {
	db *sqlx.DB
}

const cycleColumns = `
	id, remote_id, bot_id, account_id, symbol, magic, kind,
	open_price, lower_bound, upper_bound, threshold_lower, threshold_upper,
	initial_threshold_price, zone_base_price, recovery_zone_base_price, initial_stop_loss_price,
	current_direction, direction_switched, direction_switches, next_order_index, done_price_levels,
	initial_orders, hedge_orders, pending_orders, closed_orders, recovery_orders,
	threshold_orders, active_orders, completed_orders,
	total_volume, total_profit, accumulated_loss, batch_losses, lot_idx,
	status, is_closed, is_pending, opened_by, closing_method, close_reason, close_time,
	recovery_count, last_candle_time, created_at, updated_at
`

// Create inserts a new cycle row. CreatedAt/UpdatedAt are stamped if zero.
func (r *CycleRepo) Create(c *models.Cycle) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := r.db.NamedExec(`
		INSERT INTO ct_cycles (`+cycleColumns+`)
		VALUES (
			:id, :remote_id, :bot_id, :account_id, :symbol, :magic, :kind,
			:open_price, :lower_bound, :upper_bound, :threshold_lower, :threshold_upper,
			:initial_threshold_price, :zone_base_price, :recovery_zone_base_price, :initial_stop_loss_price,
			:current_direction, :direction_switched, :direction_switches, :next_order_index, :done_price_levels,
			:initial_orders, :hedge_orders, :pending_orders, :closed_orders, :recovery_orders,
			:threshold_orders, :active_orders, :completed_orders,
			:total_volume, :total_profit, :accumulated_loss, :batch_losses, :lot_idx,
			:status, :is_closed, :is_pending, :opened_by, :closing_method, :close_reason, :close_time,
			:recovery_count, :last_candle_time, :created_at, :updated_at
		)`, c)
	if err != nil {
		return fmt.Errorf("inserting cycle %s: %w", c.LocalID, err)
	}
	return nil
}

// Get fetches a cycle by local id.
func (r *CycleRepo) Get(id string) (*models.Cycle, error) {
	var c models.Cycle
	err := r.db.Get(&c, `SELECT `+cycleColumns+` FROM ct_cycles WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching cycle %s: %w", id, err)
	}
	return &c, nil
}

// GetByRemoteID fetches a cycle by its remote-store id.
func (r *CycleRepo) GetByRemoteID(remoteID string) (*models.Cycle, error) {
	var c models.Cycle
	err := r.db.Get(&c, `SELECT `+cycleColumns+` FROM ct_cycles WHERE remote_id = ?`, remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching cycle by remote id %s: %w", remoteID, err)
	}
	return &c, nil
}

// ListActiveByBot returns every unclosed cycle owned by botID, oldest first.
func (r *CycleRepo) ListActiveByBot(botID string) ([]models.Cycle, error) {
	var cycles []models.Cycle
	err := r.db.Select(&cycles, `SELECT `+cycleColumns+` FROM ct_cycles WHERE bot_id = ? AND is_closed = 0 ORDER BY created_at ASC`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing active cycles for bot %s: %w", botID, err)
	}
	return cycles, nil
}

// ListByAccount returns every cycle (open and closed) owned by accountID.
func (r *CycleRepo) ListByAccount(accountID string) ([]models.Cycle, error) {
	var cycles []models.Cycle
	err := r.db.Select(&cycles, `SELECT `+cycleColumns+` FROM ct_cycles WHERE account_id = ? ORDER BY created_at ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing cycles for account %s: %w", accountID, err)
	}
	return cycles, nil
}

// Update overwrites every field of an existing cycle row by local id. The
// whole-row replace mirrors spec §4.2's "all writes are transactional at
// the row level" requirement — there is no partial-column update path.
func (r *CycleRepo) Update(c *models.Cycle) error {
	c.UpdatedAt = time.Now().UTC()

	res, err := r.db.NamedExec(`
		UPDATE ct_cycles SET
			remote_id = :remote_id, bot_id = :bot_id, account_id = :account_id,
			symbol = :symbol, magic = :magic, kind = :kind,
			open_price = :open_price, lower_bound = :lower_bound, upper_bound = :upper_bound,
			threshold_lower = :threshold_lower, threshold_upper = :threshold_upper,
			initial_threshold_price = :initial_threshold_price, zone_base_price = :zone_base_price,
			recovery_zone_base_price = :recovery_zone_base_price, initial_stop_loss_price = :initial_stop_loss_price,
			current_direction = :current_direction, direction_switched = :direction_switched,
			direction_switches = :direction_switches, next_order_index = :next_order_index,
			done_price_levels = :done_price_levels,
			initial_orders = :initial_orders, hedge_orders = :hedge_orders, pending_orders = :pending_orders,
			closed_orders = :closed_orders, recovery_orders = :recovery_orders, threshold_orders = :threshold_orders,
			active_orders = :active_orders, completed_orders = :completed_orders,
			total_volume = :total_volume, total_profit = :total_profit, accumulated_loss = :accumulated_loss,
			batch_losses = :batch_losses, lot_idx = :lot_idx,
			status = :status, is_closed = :is_closed, is_pending = :is_pending, opened_by = :opened_by,
			closing_method = :closing_method, close_reason = :close_reason, close_time = :close_time,
			recovery_count = :recovery_count, last_candle_time = :last_candle_time, updated_at = :updated_at
		WHERE id = :id`, c)
	if err != nil {
		return fmt.Errorf("updating cycle %s: %w", c.LocalID, err)
	}
	return mustAffectOne(res, "cycle", c.LocalID)
}

// UpdateByRemoteID applies the same whole-row replace as Update, but keyed
// by the remote-store id (spec §4.2's "update_by_remote_id").
func (r *CycleRepo) UpdateByRemoteID(remoteID string, c *models.Cycle) error {
	existing, err := r.GetByRemoteID(remoteID)
	if err != nil {
		return err
	}
	c.LocalID = existing.LocalID
	return r.Update(c)
}

func mustAffectOne(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for %s %s: %w", entity, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
