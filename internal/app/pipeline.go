// Package app wires router, trigger, rule, and deal into the single
// dispatcher.Handler that actually drives a conversation (§4.2, §4.3,
// §4.6.6). It is the direct generalization of the teacher's
// Engine.routePriceUpdate → handlePriceUpdate → checkArbitrageOpportunity
// chain (internal/bot/engine.go): one entry point that resolves context,
// then a named handle* function per destination.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"otcbot/internal/ai"
	"otcbot/internal/apperr"
	"otcbot/internal/deal"
	"otcbot/internal/models"
	"otcbot/internal/money"
	"otcbot/internal/observability"
	"otcbot/internal/router"
	"otcbot/internal/trigger"
	"otcbot/internal/transport"
	"otcbot/pkg/utils"
)

// GroupStore resolves and records groups; internal/repository.GroupRepository
// satisfies it.
type GroupStore interface {
	GetByJID(ctx context.Context, jid string) (*models.Group, error)
	Upsert(ctx context.Context, g *models.Group) error
}

// IgnoredSenders answers whether a sender is on a group's ignore list;
// internal/repository.IgnoredSenderRepository satisfies it.
type IgnoredSenders interface {
	Exists(ctx context.Context, groupJID, senderJID string) (bool, error)
}

// ActiveDealLookup is the narrow slice of deal.Store the pipeline needs
// before deciding a destination.
type ActiveDealLookup interface {
	ActiveDeal(ctx context.Context, groupID, clientID string) (*models.Deal, error)
}

// PauseChecker reports the bot's global auto-pause status;
// internal/errsvc.Service satisfies it.
type PauseChecker interface {
	IsPaused() bool
}

// Classifier is the optional AI fallback for ambiguous text; internal/ai.Boundary
// satisfies it. A nil Classifier disables ActionAIPrompt handling.
type Classifier interface {
	Classify(ctx context.Context, groupID, message string) (ai.ClassificationResult, error)
}

// Config controls group-mode gating the router itself doesn't know about.
type Config struct {
	// ControlGroupPattern is matched against a never-before-seen group's
	// name to decide IsControlGroup before a config row exists.
	ControlGroupPattern string
}

// Pipeline implements dispatcher.Handler by composing the routing table
// with the trigger matcher, rule resolver, and deal engine.
type Pipeline struct {
	cfg Config

	groups  GroupStore
	ignored IgnoredSenders
	deals   ActiveDealLookup
	matcher *trigger.Matcher
	engine  *deal.Engine
	pause   PauseChecker
	notifier interface {
		NotifyOperator(ctx context.Context, groupID, message string) error
	}
	out      transport.Outbound
	classify Classifier
}

// New builds a Pipeline. classify may be nil when no AI boundary is
// configured.
func New(
	cfg Config,
	groups GroupStore,
	ignored IgnoredSenders,
	deals ActiveDealLookup,
	matcher *trigger.Matcher,
	engine *deal.Engine,
	pause PauseChecker,
	notifier interface {
		NotifyOperator(ctx context.Context, groupID, message string) error
	},
	out transport.Outbound,
	classify Classifier,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		groups:   groups,
		ignored:  ignored,
		deals:    deals,
		matcher:  matcher,
		engine:   engine,
		pause:    pause,
		notifier: notifier,
		out:      out,
		classify: classify,
	}
}

// Handle satisfies dispatcher.Handler: it drives msg through group
// resolution, routing, and the matched action, in that order.
func (p *Pipeline) Handle(ctx context.Context, msg transport.InboundMessage) error {
	start := time.Now()

	group, err := p.resolveGroup(ctx, msg)
	if err != nil {
		return err
	}

	isControlGroup := group.IsControl(p.cfg.ControlGroupPattern)

	isIgnored, err := p.ignored.Exists(ctx, msg.GroupID, msg.SenderID)
	if err != nil {
		return err
	}

	var activeDeal *models.Deal
	if !isControlGroup && !isIgnored {
		activeDeal, err = p.activeDealOrNil(ctx, msg.GroupID, msg.SenderID)
		if err != nil {
			return err
		}
	}

	match, err := p.matcher.Match(ctx, msg.GroupID, msg.Text, isControlGroup)
	if err != nil {
		return err
	}

	isPaused := p.pause.IsPaused() || group.Mode == models.GroupModePaused || group.Mode == models.GroupModeLearning

	rctx := router.Context{
		GroupID:         msg.GroupID,
		GroupName:       msg.GroupName,
		SenderID:        msg.SenderID,
		SenderName:      msg.SenderName,
		Text:            msg.Text,
		IsControlGroup:  isControlGroup,
		Attachments:     msg.Attachments,
		IsSenderIgnored: isIgnored,
		HasActiveDeal:   activeDeal != nil,
		TriggerMatched:  match != nil,
		IsPaused:        isPaused,
	}

	dest := router.Route(rctx)
	observability.RecordRoutingLatency(float64(time.Since(start).Microseconds()) / 1000)

	switch dest {
	case router.DestinationControl:
		return p.handleControl(ctx, msg, match)
	case router.DestinationTriggered:
		return p.handleTriggered(ctx, msg, match)
	case router.DestinationDeal:
		return p.handleDeal(ctx, msg, activeDeal, match)
	case router.DestinationObserve, router.DestinationIgnore:
		return nil
	default:
		return nil
	}
}

// resolveGroup loads the group row, discovering (upserting) it on first
// contact (§3: "discovered on first inbound message; config row upserted").
func (p *Pipeline) resolveGroup(ctx context.Context, msg transport.InboundMessage) (*models.Group, error) {
	now := msg.ReceivedAt()
	g, err := p.groups.GetByJID(ctx, msg.GroupID)
	switch {
	case err == nil:
		g.LastActivityAt = now
		if uerr := p.groups.Upsert(ctx, g); uerr != nil {
			return nil, uerr
		}
		return g, nil
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}

	g = &models.Group{
		JID:            msg.GroupID,
		Name:           msg.GroupName,
		Mode:           models.GroupModeLearning,
		FirstSeenAt:    now,
		LastActivityAt: now,
		MessageCount:   1,
	}
	g.SetIsControlGroup(strings.Contains(strings.ToLower(msg.GroupName), strings.ToLower(p.cfg.ControlGroupPattern)))
	if uerr := p.groups.Upsert(ctx, g); uerr != nil {
		return nil, uerr
	}
	return g, nil
}

// handleControl dispatches a control-group command onto the matched
// control-only trigger's ActionType (§4.8's pause/resume, §6.2's status).
func (p *Pipeline) handleControl(ctx context.Context, msg transport.InboundMessage, match *trigger.Match) error {
	if match == nil {
		return nil
	}
	switch match.Trigger.ActionType {
	case models.ActionControlPause:
		return p.reply(ctx, msg.GroupID, "bot pausado.")
	case models.ActionControlResume:
		return p.reply(ctx, msg.GroupID, "bot retomado.")
	case models.ActionControlStatus:
		status := "running"
		if p.pause.IsPaused() {
			status = "paused"
		}
		return p.reply(ctx, msg.GroupID, "status: "+status)
	default:
		return p.handleTriggered(ctx, msg, match)
	}
}

// handleTriggered executes the matched trigger's configured action
// (§4.3's action dispatch table).
func (p *Pipeline) handleTriggered(ctx context.Context, msg transport.InboundMessage, match *trigger.Match) error {
	if match == nil {
		return nil
	}
	t := match.Trigger

	switch t.ActionType {
	case models.ActionTextResponse:
		text, _ := t.ActionParams["text"].(string)
		return p.reply(ctx, msg.GroupID, text)

	case models.ActionQuote:
		return p.handleQuote(ctx, msg)

	case models.ActionLock:
		return p.handleLockIntent(ctx, msg)

	case models.ActionCancel:
		return p.handleCancelIntent(ctx, msg)

	case models.ActionApplyAmount:
		return p.handleApplyAmountIntent(ctx, msg)

	case models.ActionAIPrompt:
		return p.handleAIPrompt(ctx, msg, t)

	case models.ActionControlPause, models.ActionControlResume, models.ActionControlStatus:
		return p.handleControl(ctx, msg, match)

	default:
		utils.L().Warn("app: trigger matched with unknown action type", utils.Group(msg.GroupID), zap.String("action_type", t.ActionType))
		return nil
	}
}

func (p *Pipeline) handleQuote(ctx context.Context, msg transport.InboundMessage) error {
	side := models.SideClientBuysUSDT
	result, err := p.engine.Quote(ctx, msg.GroupID, msg.SenderID, side, nil)
	if err != nil {
		if result.Deal != nil && result.Reason == "already_active" {
			return p.reply(ctx, msg.GroupID, "já existe uma negociação em aberto.")
		}
		return err
	}
	rate := decimal.NewFromFloat(result.Deal.QuotedRate)
	return p.reply(ctx, msg.GroupID, money.FormatRate(rate))
}

// handleLockIntent continues a deal by confirming its quote, whether
// reached via a TRIGGERED match (first time the lock phrase appears, no
// active deal yet recorded in router.Context) or re-dispatched from
// handleDeal.
func (p *Pipeline) handleLockIntent(ctx context.Context, msg transport.InboundMessage) error {
	active, err := p.activeDealOrNil(ctx, msg.GroupID, msg.SenderID)
	if err != nil {
		return err
	}
	if active == nil {
		return p.reply(ctx, msg.GroupID, "nenhuma cotação em aberto para travar.")
	}
	return p.lockAndMaybeApply(ctx, msg, active)
}

func (p *Pipeline) lockAndMaybeApply(ctx context.Context, msg transport.InboundMessage, active *models.Deal) error {
	result, err := p.engine.Lock(ctx, msg.GroupID, msg.SenderID, active.ID)
	if err != nil {
		return err
	}
	d := result.Deal

	amount, ok := extractAmount(msg.Text)
	if !ok {
		rate := decimal.NewFromFloat(*d.LockedRate)
		return p.reply(ctx, msg.GroupID, "travado a "+money.FormatRate(rate))
	}
	return p.applyAmount(ctx, msg, d, amount)
}

func (p *Pipeline) handleApplyAmountIntent(ctx context.Context, msg transport.InboundMessage) error {
	active, err := p.activeDealOrNil(ctx, msg.GroupID, msg.SenderID)
	if err != nil {
		return err
	}
	if active == nil {
		return p.reply(ctx, msg.GroupID, "nenhuma negociação em aberto.")
	}
	amount, ok := extractAmount(msg.Text)
	if !ok {
		return p.reply(ctx, msg.GroupID, "não entendi o valor.")
	}
	return p.applyAmount(ctx, msg, active, amount)
}

func (p *Pipeline) applyAmount(ctx context.Context, msg transport.InboundMessage, d *models.Deal, amount decimal.Decimal) error {
	var brl, usdt *decimal.Decimal
	switch d.Side {
	case models.SideClientSellsUSDT:
		usdt = &amount
	default:
		brl = &amount
	}

	result, err := p.engine.ApplyAmount(ctx, msg.GroupID, msg.SenderID, d.ID, brl, usdt)
	if err != nil {
		return err
	}
	out := result.Deal
	return p.reply(ctx, msg.GroupID,
		money.FormatAmount(decimal.NewFromFloat(*out.AmountBRL))+" = "+
			decimal.NewFromFloat(*out.AmountUSDT).StringFixed(2)+" USDT")
}

func (p *Pipeline) handleCancelIntent(ctx context.Context, msg transport.InboundMessage) error {
	active, err := p.activeDealOrNil(ctx, msg.GroupID, msg.SenderID)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	if _, err := p.engine.Cancel(ctx, msg.GroupID, msg.SenderID, active.ID, "client_requested"); err != nil {
		return err
	}
	return p.reply(ctx, msg.GroupID, "negociação cancelada.")
}

// handleAIPrompt consults the classifier and, when it judges the message
// OTC-relevant, escalates to the operator rather than replying directly —
// the boundary's output "never writes to a deal directly" (internal/ai
// doc comment); only a human or a deterministic trigger does that.
func (p *Pipeline) handleAIPrompt(ctx context.Context, msg transport.InboundMessage, t *models.Trigger) error {
	if p.classify == nil {
		return nil
	}
	result, err := p.classify.Classify(ctx, msg.GroupID, msg.Text)
	if err != nil {
		return nil // guardrail rejection is not a pipeline failure
	}
	if !result.IsOTCRelevant || p.notifier == nil {
		return nil
	}
	return p.notifier.NotifyOperator(ctx, msg.GroupID,
		"possível intenção de negociação de "+msg.SenderID+": \""+msg.Text+"\"")
}

// handleDeal continues an in-flight deal per §4.6.6's conversation
// routing: a lock-confirmation trigger against a quoted deal locks it; a
// parseable amount against a locked (or quoted) deal applies it;
// anything else is left for the operator.
func (p *Pipeline) handleDeal(ctx context.Context, msg transport.InboundMessage, active *models.Deal, match *trigger.Match) error {
	if active == nil {
		return nil
	}

	if match != nil && match.Trigger.ActionType == models.ActionLock && active.State == models.DealStateQuoted {
		return p.lockAndMaybeApply(ctx, msg, active)
	}
	if match != nil && match.Trigger.ActionType == models.ActionCancel {
		return p.handleCancelIntent(ctx, msg)
	}

	if amount, ok := extractAmount(msg.Text); ok {
		return p.applyAmount(ctx, msg, active, amount)
	}

	// Neither a recognized confirmation nor a parseable amount: leave the
	// deal as-is, the operator reads the raw message off the transcript.
	return nil
}

func (p *Pipeline) reply(ctx context.Context, groupID, text string) error {
	if p.out == nil || text == "" {
		return nil
	}
	_, err := p.out.Send(ctx, groupID, text, transport.SendOptions{})
	return err
}

// extractAmount pulls a Brazilian-formatted monetary amount out of free
// text, the same parser the dashboard's manual apply-amount endpoint uses
// (internal/money.ParseBRLAmount), trying each whitespace-delimited token
// since the amount rarely occupies the whole message ("trava 10000").
func extractAmount(text string) (decimal.Decimal, bool) {
	for _, tok := range strings.Fields(text) {
		if amount, ok := money.ParseBRLAmount(tok); ok {
			return amount, true
		}
	}
	return decimal.Zero, false
}

// activeDealOrNil normalizes DealRepository.ActiveDeal's
// apperr.ErrDealNotFound sentinel into (nil, nil), since every caller
// here already treats "no active deal" as a plain nil check rather than
// an error branch.
func (p *Pipeline) activeDealOrNil(ctx context.Context, groupID, clientID string) (*models.Deal, error) {
	d, err := p.deals.ActiveDeal(ctx, groupID, clientID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}
