package deal

import (
	"testing"

	"otcbot/internal/models"
)

func TestCanTransition_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"quoted -> locked (client confirms)", models.DealStateQuoted, models.DealStateLocked, true},
		{"quoted -> computing (amount fill)", models.DealStateQuoted, models.DealStateComputing, true},
		{"quoted -> expired (ttl)", models.DealStateQuoted, models.DealStateExpired, true},
		{"quoted -> cancelled", models.DealStateQuoted, models.DealStateCancelled, true},
		{"computing -> quoted (rollback)", models.DealStateComputing, models.DealStateQuoted, true},
		{"computing -> locked", models.DealStateComputing, models.DealStateLocked, true},
		{"locked -> completed", models.DealStateLocked, models.DealStateCompleted, true},
		{"locked -> expired", models.DealStateLocked, models.DealStateExpired, true},
		{"locked -> cancelled", models.DealStateLocked, models.DealStateCancelled, true},
		{"completed is terminal, no transitions out", models.DealStateCompleted, models.DealStateQuoted, false},
		{"expired is terminal, no transitions out", models.DealStateExpired, models.DealStateLocked, false},
		{"quoted cannot jump to completed", models.DealStateQuoted, models.DealStateCompleted, false},
		{"locked cannot go back to quoted", models.DealStateLocked, models.DealStateQuoted, false},
		{"unknown state", "bogus", models.DealStateQuoted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}
