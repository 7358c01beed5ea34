package models

import "time"

// Symbol is a per-account snapshot of a tradable symbol and its last known
// bid. Created if missing on account init; mutated on each price poll.
type Symbol struct {
	LocalID   string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`
	Name      string `json:"name" db:"name"`

	Bid    float64 `json:"bid" db:"bid"`
	Ask    float64 `json:"ask" db:"ask"`
	Point  float64 `json:"point" db:"point"`
	Spread float64 `json:"spread" db:"spread"`

	// Enabled mirrors the terminal's visible/tradable flag (§5 of
	// SPEC_FULL.md's supplemented features); a hidden-but-known symbol is
	// auto-enabled by the Broker Gateway rather than rejected.
	Enabled bool `json:"enabled" db:"enabled"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Pip returns one pip for this symbol, defined as 10x its point value.
func (s *Symbol) Pip() float64 {
	return 10 * s.Point
}
