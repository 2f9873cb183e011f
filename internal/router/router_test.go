package router

import "testing"

func TestRoute_ControlGroupWinsOverEverything(t *testing.T) {
	dest := Route(Context{
		IsControlGroup:  true,
		IsSenderIgnored: true,
		HasActiveDeal:   true,
		TriggerMatched:  true,
		Text:            "status",
	})
	if dest != DestinationControl {
		t.Errorf("Route() = %q, want %q", dest, DestinationControl)
	}
}

func TestRoute_IgnoredSender(t *testing.T) {
	dest := Route(Context{
		IsSenderIgnored: true,
		HasActiveDeal:   true,
		TriggerMatched:  true,
		Text:            "preço",
	})
	if dest != DestinationIgnore {
		t.Errorf("Route() = %q, want %q", dest, DestinationIgnore)
	}
}

func TestRoute_BlankTextIgnored(t *testing.T) {
	dest := Route(Context{Text: "   "})
	if dest != DestinationIgnore {
		t.Errorf("Route() = %q, want %q", dest, DestinationIgnore)
	}
}

func TestRoute_ActiveDealBeatsTrigger(t *testing.T) {
	dest := Route(Context{
		HasActiveDeal:  true,
		TriggerMatched: true,
		Text:           "fechado",
	})
	if dest != DestinationDeal {
		t.Errorf("Route() = %q, want %q", dest, DestinationDeal)
	}
}

func TestRoute_TriggerMatch(t *testing.T) {
	dest := Route(Context{TriggerMatched: true, Text: "preço"})
	if dest != DestinationTriggered {
		t.Errorf("Route() = %q, want %q", dest, DestinationTriggered)
	}
}

func TestRoute_Observe(t *testing.T) {
	dest := Route(Context{Text: "bom dia pessoal"})
	if dest != DestinationObserve {
		t.Errorf("Route() = %q, want %q", dest, DestinationObserve)
	}
}

func TestRoute_PausedDowngradesTriggerToObserve(t *testing.T) {
	dest := Route(Context{TriggerMatched: true, IsPaused: true, Text: "preço"})
	if dest != DestinationObserve {
		t.Errorf("Route() = %q, want %q while paused", dest, DestinationObserve)
	}
}

func TestRoute_PausedStillAllowsActiveDeal(t *testing.T) {
	dest := Route(Context{HasActiveDeal: true, TriggerMatched: true, IsPaused: true, Text: "fechado"})
	if dest != DestinationDeal {
		t.Errorf("Route() = %q, want %q — an in-flight deal must run to completion while paused", dest, DestinationDeal)
	}
}

func TestRoute_PausedStillAllowsControlGroup(t *testing.T) {
	dest := Route(Context{IsControlGroup: true, TriggerMatched: true, IsPaused: true, Text: "status"})
	if dest != DestinationControl {
		t.Errorf("Route() = %q, want %q — the control group must never be paused out", dest, DestinationControl)
	}
}

func TestRoute_TableDriven(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want Destination
	}{
		{"control beats deal", Context{IsControlGroup: true, HasActiveDeal: true, Text: "x"}, DestinationControl},
		{"ignored beats deal", Context{IsSenderIgnored: true, HasActiveDeal: true, Text: "x"}, DestinationIgnore},
		{"deal beats trigger", Context{HasActiveDeal: true, TriggerMatched: true, Text: "x"}, DestinationDeal},
		{"trigger beats observe", Context{TriggerMatched: true, Text: "x"}, DestinationTriggered},
		{"nothing matches", Context{Text: "x"}, DestinationObserve},
		{"empty after trim with control still observed as control", Context{IsControlGroup: true, Text: "  "}, DestinationControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.ctx); got != tt.want {
				t.Errorf("Route(%+v) = %q, want %q", tt.ctx, got, tt.want)
			}
		})
	}
}
