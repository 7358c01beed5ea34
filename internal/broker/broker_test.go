package broker

import (
	"strings"
	"testing"

	"github.com/cycletrader/orchestrator/internal/models"
)

func TestTruncateComment(t *testing.T) {
	short := "grid step 1"
	if got := TruncateComment(short); got != short {
		t.Errorf("expected short comment unchanged, got %q", got)
	}

	long := strings.Repeat("x", 45)
	got := TruncateComment(long)
	if len(got) != maxCommentLength {
		t.Errorf("expected truncated comment of length %d, got %d", maxCommentLength, len(got))
	}
}

func TestCandle_Direction(t *testing.T) {
	cases := []struct {
		name       string
		open, close float64
		want       models.CandleDirection
	}{
		{"bullish", 1.1000, 1.1050, models.CandleUp},
		{"bearish", 1.1050, 1.1000, models.CandleDown},
		{"flat", 1.1000, 1.1000, models.CandleNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Candle{Open: tc.open, Close: tc.close}
			if got := c.Direction(); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSymbolInfo_Pip(t *testing.T) {
	s := &SymbolInfo{Point: 0.00001}
	if got := s.Pip(); got != 0.0001 {
		t.Errorf("expected pip 0.0001, got %v", got)
	}
}
