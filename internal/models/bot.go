package models

import "time"

// Bot is the configuration record for one strategy instance on one account.
// Mutated by user events (create_bot/update_bot/delete_bot).
type Bot struct {
	LocalID   string `json:"id" db:"id"`
	RemoteID  string `json:"remote_id" db:"remote_id"`
	AccountID string `json:"account_id" db:"account_id"`

	Strategy StrategyKind `json:"strategy" db:"strategy"`
	Magic    int64        `json:"magic" db:"magic"`
	Symbol   string       `json:"symbol" db:"symbol"`

	// Config holds strategy-specific parameters (zone size, pips_step,
	// take_profit, sltp unit, lot sequence, hedge/recovery opt-ins, and so
	// on) exactly as received from the remote store — the Cycle Engine
	// interprets these per strategy family.
	Config map[string]any `json:"config" db:"config"`

	Stopped bool `json:"stopped" db:"stopped"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConfigFloat reads a numeric config field, returning def if absent or of
// the wrong type. Remote-store payloads decode JSON numbers as float64.
func (b *Bot) ConfigFloat(key string, def float64) float64 {
	if v, ok := b.Config[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

// ConfigBool reads a boolean config field, returning def if absent or of
// the wrong type.
func (b *Bot) ConfigBool(key string, def bool) bool {
	if v, ok := b.Config[key]; ok {
		if bv, ok := v.(bool); ok {
			return bv
		}
	}
	return def
}

// ConfigString reads a string config field, returning def if absent or of
// the wrong type.
func (b *Bot) ConfigString(key string, def string) string {
	if v, ok := b.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// ConfigFloatSlice reads a sequence config field (e.g. a lot-size
// progression), returning def if absent or malformed.
func (b *Bot) ConfigFloatSlice(key string, def []float64) []float64 {
	v, ok := b.Config[key]
	if !ok {
		return def
	}
	raw, ok := v.([]any)
	if !ok {
		return def
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		f, ok := item.(float64)
		if !ok {
			return def
		}
		out = append(out, f)
	}
	return out
}
