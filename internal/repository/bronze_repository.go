package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"otcbot/internal/deal"
	"otcbot/internal/models"
	"otcbot/pkg/utils"
)

// BronzeRepository writes append-only price ticks and deal events.
// Writes are fire-and-forget: failures only log, matching §4.10 and the
// teacher's own fire-and-forget bronze-sink convention in
// internal/price.Aggregator.
type BronzeRepository struct {
	db *sql.DB
}

func NewBronzeRepository(db *sql.DB) *BronzeRepository {
	return &BronzeRepository{db: db}
}

// WritePriceSample inserts one row into bronze_price_ticks.
func (r *BronzeRepository) WritePriceSample(ctx context.Context, s models.PriceSample) error {
	query := `
		INSERT INTO bronze_price_ticks (source, symbol, price, bid, ask, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, s.Source, s.Symbol, s.Price, s.Bid, s.Ask, s.CapturedAt)
	return err
}

// WriteDealEvent inserts one row into bronze_deal_events.
func (r *BronzeRepository) WriteDealEvent(ctx context.Context, e models.BronzeDealEvent) error {
	snapshot, err := json.Marshal(e.DealSnapshot)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO bronze_deal_events (
			deal_id, group_jid, client_jid, from_state, to_state, event_type,
			market_price, deal_snapshot, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		e.DealID, e.GroupJID, e.ClientJID, e.FromState, e.ToState, e.EventType,
		e.MarketPrice, snapshot, metadata, e.CreatedAt,
	)
	return err
}

// DrainPriceSink reads from ch until it closes or ctx is done, writing
// each sample. Meant to run in its own goroutine, started once at
// startup against internal/price.Aggregator.Sink().
func (r *BronzeRepository) DrainPriceSink(ctx context.Context, ch <-chan models.PriceSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-ch:
			if !ok {
				return
			}
			if err := r.WritePriceSample(ctx, sample); err != nil {
				utils.L().Warn("repository: failed to persist price tick", utils.Err(err))
			}
		}
	}
}

// EventSink adapts BronzeRepository to implement internal/deal.EventSink:
// Emit must never block the deal engine, so every event is handed to a
// bounded buffer channel drained by a background writer; a full buffer
// drops its oldest event to make room for the new one and logs, the same
// backpressure contract internal/price.Aggregator applies to its own sink.
type EventSink struct {
	repo   *BronzeRepository
	events chan deal.Event
}

// NewEventSink starts the background writer goroutine and returns the
// sink. Callers must call Stop to drain gracefully on shutdown.
func NewEventSink(repo *BronzeRepository, bufferSize int) *EventSink {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	s := &EventSink{repo: repo, events: make(chan deal.Event, bufferSize)}
	go s.run()
	return s
}

func (s *EventSink) run() {
	for e := range s.events {
		snapshot := map[string]interface{}{
			"id":             e.Deal.ID,
			"state":          e.Deal.State,
			"side":           e.Deal.Side,
			"quoted_rate":    e.Deal.QuotedRate,
			"reprice_count":  e.Deal.RepriceCount,
			"pricing_source": e.Deal.PricingSource,
		}
		bronzeEvent := models.BronzeDealEvent{
			DealID:       e.Deal.ID,
			GroupJID:     e.Deal.GroupJID,
			ClientJID:    e.Deal.ClientJID,
			ToState:      e.Deal.State,
			EventType:    string(e.Type),
			DealSnapshot: snapshot,
			Metadata:     map[string]interface{}{"reason": e.Reason},
			CreatedAt:    e.At,
		}
		if err := s.repo.WriteDealEvent(context.Background(), bronzeEvent); err != nil {
			utils.L().Warn("repository: failed to persist deal event", utils.Err(err))
		}
	}
}

// Emit implements internal/deal.EventSink.
func (s *EventSink) Emit(e deal.Event) {
	select {
	case s.events <- e:
		return
	default:
	}
	select {
	case <-s.events:
		utils.L().Warn("repository: bronze deal-event buffer full, dropping oldest event")
	default:
	}
	select {
	case s.events <- e:
	default:
		utils.L().Warn("repository: bronze deal-event buffer full, dropping event")
	}
}

// Stop closes the buffer and lets the writer drain what's left.
func (s *EventSink) Stop() {
	close(s.events)
}
