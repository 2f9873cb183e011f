// Package handlers implements the dashboard's HTTP handlers (§6.2).
// Each handler reads/writes through internal/repository and the
// in-process deal/trigger/rule engines directly — there is no service
// layer between the HTTP boundary and the engines, since the engines
// already encapsulate the business logic a service layer would
// otherwise hold.
package handlers

import (
	"time"

	"otcbot/internal/ai"
	"otcbot/internal/deal"
	"otcbot/internal/errsvc"
	"otcbot/internal/notifier"
	"otcbot/internal/price"
	"otcbot/internal/repository"
	"otcbot/internal/rule"
	"otcbot/internal/trigger"
	"otcbot/internal/wsapi"
)

// Dependencies carries everything a handler needs. Fields left nil are
// treated as "feature unavailable"; SetupRoutes only wires handlers
// whose dependencies are present, same as the teacher's routes.go.
type Dependencies struct {
	Groups         *repository.GroupRepository
	Triggers       *repository.TriggerRepository
	TimeRules      *repository.TimeRuleRepository
	Deals          *repository.DealRepository
	DealHistory    *repository.DealHistoryRepository
	IgnoredSenders *repository.IgnoredSenderRepository

	DealEngine *deal.Engine
	Matcher    *trigger.Matcher
	Resolver   *rule.Resolver
	Prices     *price.Aggregator
	ErrService *errsvc.Service
	Notifier   *notifier.Notifier
	AI         *ai.Boundary
	Hub        *wsapi.Hub

	ControlGroupPattern string
	StartedAt           time.Time

	// TransportConnected reports the inbound transport's current
	// connection state for /api/status; nil means the caller didn't wire
	// one (reported as unknown rather than guessed).
	TransportConnected func() bool
}
