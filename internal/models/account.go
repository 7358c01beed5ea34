package models

import "time"

// AccountStatus is the connectivity/validation state of a broker login.
type AccountStatus string

const (
	AccountPendingValidation AccountStatus = "pending_validation"
	AccountActive            AccountStatus = "active"
	AccountDisconnected      AccountStatus = "disconnected"
)

// Account is the identity of a broker login as seen by the remote store,
// plus the latest snapshot pushed by the Account Supervisor.
type Account struct {
	LocalID  string `json:"id" db:"id"`
	RemoteID string `json:"remote_id" db:"remote_id"`
	Login    string `json:"login" db:"login"`
	Name     string `json:"name" db:"name"`

	Status AccountStatus `json:"status" db:"status"`

	Balance    float64 `json:"balance" db:"balance"`
	Equity     float64 `json:"equity" db:"equity"`
	Margin     float64 `json:"margin" db:"margin"`
	FreeMargin float64 `json:"free_margin" db:"free_margin"`
	Profit     float64 `json:"profit" db:"profit"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ApplySnapshot copies a broker snapshot into the account's balance fields.
// Called once per second by the Account Supervisor metrics task.
func (a *Account) ApplySnapshot(balance, equity, margin, freeMargin, profit float64) {
	a.Balance = balance
	a.Equity = equity
	a.Margin = margin
	a.FreeMargin = freeMargin
	a.Profit = profit
	a.UpdatedAt = time.Now().UTC()
}
