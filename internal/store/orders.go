package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cycletrader/orchestrator/internal/models"
)

// OrderRepo persists models.Order rows in ct_cycles_orders.
type OrderRepo struct {
	db *sqlx.DB
}

const orderColumns = `
	id, ticket, cycle_id, bot_id, account_id,
	kind, direction, symbol, magic,
	open_price, volume, sl, tp, trailing_steps,
	swap, commission, profit,
	is_pending, is_closed, opened_at, closed_at, updated_at
`

// Create inserts a new order row.
func (r *OrderRepo) Create(o *models.Order) error {
	o.UpdatedAt = time.Now().UTC()
	if o.OpenedAt.IsZero() {
		o.OpenedAt = o.UpdatedAt
	}
	_, err := r.db.NamedExec(`
		INSERT INTO ct_cycles_orders (`+orderColumns+`)
		VALUES (
			:id, :ticket, :cycle_id, :bot_id, :account_id,
			:kind, :direction, :symbol, :magic,
			:open_price, :volume, :sl, :tp, :trailing_steps,
			:swap, :commission, :profit,
			:is_pending, :is_closed, :opened_at, :closed_at, :updated_at
		)`, o)
	if err != nil {
		return fmt.Errorf("inserting order ticket %d: %w", o.Ticket, err)
	}
	return nil
}

// GetByTicket fetches an order by its broker ticket.
func (r *OrderRepo) GetByTicket(ticket int64) (*models.Order, error) {
	var o models.Order
	err := r.db.Get(&o, `SELECT `+orderColumns+` FROM ct_cycles_orders WHERE ticket = ?`, ticket)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching order ticket %d: %w", ticket, err)
	}
	return &o, nil
}

// ListByCycle returns every order belonging to cycleID, oldest first.
func (r *OrderRepo) ListByCycle(cycleID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Select(&orders, `SELECT `+orderColumns+` FROM ct_cycles_orders WHERE cycle_id = ? ORDER BY opened_at ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for cycle %s: %w", cycleID, err)
	}
	return orders, nil
}

// ListOpenByBot implements the "open_orders_only" view from spec §4.2:
// every order for botID not yet marked closed, regardless of pending state.
func (r *OrderRepo) ListOpenByBot(botID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Select(&orders, `SELECT `+orderColumns+` FROM ct_cycles_orders WHERE bot_id = ? AND is_closed = 0 ORDER BY opened_at ASC`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing open orders for bot %s: %w", botID, err)
	}
	return orders, nil
}

// ListOpenPendingByBot implements the "open_pending_orders" view: resting
// pending orders for botID that have not yet filled or been canceled.
func (r *OrderRepo) ListOpenPendingByBot(botID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Select(&orders, `SELECT `+orderColumns+` FROM ct_cycles_orders WHERE bot_id = ? AND is_pending = 1 AND is_closed = 0 ORDER BY opened_at ASC`, botID)
	if err != nil {
		return nil, fmt.Errorf("listing open pending orders for bot %s: %w", botID, err)
	}
	return orders, nil
}

// ListOpenByAccount returns every not-yet-closed order across all of
// accountID's bots, for the Order Reconciliation task (spec §4.7) which
// runs one per broker session rather than one per bot.
func (r *OrderRepo) ListOpenByAccount(accountID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Select(&orders, `SELECT `+orderColumns+` FROM ct_cycles_orders WHERE account_id = ? AND is_closed = 0 ORDER BY opened_at ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing open orders for account %s: %w", accountID, err)
	}
	return orders, nil
}

// Update overwrites every field of an existing order row by ticket (spec
// §4.2: all writes are transactional at the row level).
func (r *OrderRepo) Update(o *models.Order) error {
	o.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExec(`
		UPDATE ct_cycles_orders SET
			cycle_id = :cycle_id, bot_id = :bot_id, account_id = :account_id,
			kind = :kind, direction = :direction, symbol = :symbol, magic = :magic,
			open_price = :open_price, volume = :volume, sl = :sl, tp = :tp, trailing_steps = :trailing_steps,
			swap = :swap, commission = :commission, profit = :profit,
			is_pending = :is_pending, is_closed = :is_closed,
			opened_at = :opened_at, closed_at = :closed_at, updated_at = :updated_at
		WHERE ticket = :ticket`, o)
	if err != nil {
		return fmt.Errorf("updating order ticket %d: %w", o.Ticket, err)
	}
	return mustAffectOneTicket(res, o.Ticket)
}

func mustAffectOneTicket(res sql.Result, ticket int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected for order ticket %d: %w", ticket, err)
	}
	if n == 0 {
		return fmt.Errorf("order ticket %d: %w", ticket, ErrNotFound)
	}
	return nil
}
