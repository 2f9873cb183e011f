package deal

import "otcbot/internal/models"

// ValidTransitions defines the allowed moves between deal states (§4.6.1).
// computing is a transient sub-state: it only ever appears mid-call, never
// persisted as the deal's resting state, but it is listed here so
// CanTransition covers applyAmount's intermediate step too. Engine's
// own transition helper does not consult this table.
var ValidTransitions = map[string][]string{
	models.DealStateQuoted:    {models.DealStateLocked, models.DealStateComputing, models.DealStateExpired, models.DealStateCancelled},
	models.DealStateComputing: {models.DealStateQuoted, models.DealStateLocked},
	models.DealStateLocked:    {models.DealStateCompleted, models.DealStateComputing, models.DealStateExpired, models.DealStateCancelled},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
