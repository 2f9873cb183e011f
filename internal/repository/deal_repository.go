package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// DealRepository implements internal/deal.Store over Postgres. Every
// state transition is a compare-and-swap UPDATE keyed on (id, state), per
// §4.10 and §6.3's unique partial index on (group_jid, client_jid) for
// non-terminal states.
type DealRepository struct {
	db *sql.DB
}

func NewDealRepository(db *sql.DB) *DealRepository {
	return &DealRepository{db: db}
}

const dealColumns = `
	id, group_jid, client_jid, side, state, base_rate, quoted_rate,
	locked_rate, locked_at, amount_brl, amount_usdt, ttl_expires_at,
	pricing_source, spread_mode, sell_spread, buy_spread,
	rule_id_used, rule_name, reprice_count, metadata, created_at, updated_at`

func scanDeal(row interface{ Scan(...interface{}) error }) (*models.Deal, error) {
	d := &models.Deal{}
	var metadataJSON []byte
	err := row.Scan(
		&d.ID, &d.GroupJID, &d.ClientJID, &d.Side, &d.State, &d.BaseRate, &d.QuotedRate,
		&d.LockedRate, &d.LockedAt, &d.AmountBRL, &d.AmountUSDT, &d.TTLExpiresAt,
		&d.PricingSource, &d.SpreadMode, &d.SellSpread, &d.BuySpread,
		&d.RuleIDUsed, &d.RuleName, &d.RepriceCount, &metadataJSON, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &d.Metadata); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ActiveDeal returns the client's non-terminal deal for groupID, or
// apperr.ErrDealNotFound if there is none.
func (r *DealRepository) ActiveDeal(ctx context.Context, groupID, clientID string) (*models.Deal, error) {
	query := `
		SELECT ` + dealColumns + `
		FROM deals
		WHERE group_jid = $1 AND client_jid = $2
		  AND state IN ('quoted', 'locked', 'computing')`

	d, err := scanDeal(r.db.QueryRowContext(ctx, query, groupID, clientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrDealNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *DealRepository) GetDeal(ctx context.Context, dealID string) (*models.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE id = $1`

	d, err := scanDeal(r.db.QueryRowContext(ctx, query, dealID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrDealNotFound
		}
		return nil, err
	}
	return d, nil
}

// CreateDeal inserts a new deal. A violation of the partial unique index
// on (group_jid, client_jid) for non-terminal states surfaces as
// apperr.ErrDealConflict, matching the at-most-one-active-deal invariant.
func (r *DealRepository) CreateDeal(ctx context.Context, d *models.Deal) error {
	metadataJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deals (
			id, group_jid, client_jid, side, state, base_rate, quoted_rate,
			locked_rate, locked_at, amount_brl, amount_usdt, ttl_expires_at,
			pricing_source, spread_mode, sell_spread, buy_spread,
			rule_id_used, rule_name, reprice_count, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err = r.db.ExecContext(ctx, query,
		d.ID, d.GroupJID, d.ClientJID, d.Side, d.State, d.BaseRate, d.QuotedRate,
		d.LockedRate, d.LockedAt, d.AmountBRL, d.AmountUSDT, d.TTLExpiresAt,
		d.PricingSource, d.SpreadMode, d.SellSpread, d.BuySpread,
		d.RuleIDUsed, d.RuleName, d.RepriceCount, metadataJSON, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrDealConflict
		}
		return err
	}
	return nil
}

// UpdateDeal performs the CAS update of §4.10: `UPDATE ... WHERE id=$1
// AND state=$2`. Zero rows affected means the row's state no longer
// matches expectedState, surfaced as apperr.ErrDealConflict so the engine
// re-reads and decides (typically an idempotent no-op).
func (r *DealRepository) UpdateDeal(ctx context.Context, d *models.Deal, expectedState string) error {
	metadataJSON, err := json.Marshal(d.Metadata)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE deals SET
			state = $1, quoted_rate = $2, locked_rate = $3, locked_at = $4,
			amount_brl = $5, amount_usdt = $6, ttl_expires_at = $7,
			reprice_count = $8, metadata = $9, updated_at = $10
		WHERE id = $11 AND state = $12`

	result, err := r.db.ExecContext(ctx, query,
		d.State, d.QuotedRate, d.LockedRate, d.LockedAt,
		d.AmountBRL, d.AmountUSDT, d.TTLExpiresAt,
		d.RepriceCount, metadataJSON, d.UpdatedAt,
		d.ID, expectedState,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.ErrDealConflict
	}
	return nil
}

// ArchiveDeal writes h to deal_history and removes the live deals row in
// one transaction.
func (r *DealRepository) ArchiveDeal(ctx context.Context, h *models.DealHistory) error {
	metadataJSON, err := json.Marshal(h.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO deal_history (
			id, group_jid, client_jid, side, state, base_rate, quoted_rate,
			locked_rate, locked_at, amount_brl, amount_usdt, ttl_expires_at,
			pricing_source, spread_mode, sell_spread, buy_spread,
			rule_id_used, rule_name, reprice_count, metadata, created_at, updated_at,
			final_state, completion_reason, archived_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		          $17, $18, $19, $20, $21, $22, $23, $24, $25)`

	_, err = tx.ExecContext(ctx, insert,
		h.ID, h.GroupJID, h.ClientJID, h.Side, h.State, h.BaseRate, h.QuotedRate,
		h.LockedRate, h.LockedAt, h.AmountBRL, h.AmountUSDT, h.TTLExpiresAt,
		h.PricingSource, h.SpreadMode, h.SellSpread, h.BuySpread,
		h.RuleIDUsed, h.RuleName, h.RepriceCount, metadataJSON, h.CreatedAt, h.UpdatedAt,
		h.FinalState, h.CompletionReason, h.ArchivedAt,
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM deals WHERE id = $1`, h.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// SweepExpired returns every non-terminal deal whose TTL had already
// elapsed at or before now.
func (r *DealRepository) SweepExpired(ctx context.Context, now time.Time) ([]*models.Deal, error) {
	query := `
		SELECT ` + dealColumns + `
		FROM deals
		WHERE state IN ('quoted', 'locked', 'computing') AND ttl_expires_at <= $1`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []*models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deals, nil
}

// ActiveDeals returns every non-terminal deal, for the engine's
// sweep/reprice watchers to re-arm on boot (§4.6, recovery).
func (r *DealRepository) ActiveDeals(ctx context.Context) ([]*models.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE state IN ('quoted', 'locked', 'computing')`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []*models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deals, nil
}

// DealHistoryRepository reads the terminal deal archive for the dashboard.
type DealHistoryRepository struct {
	db *sql.DB
}

func NewDealHistoryRepository(db *sql.DB) *DealHistoryRepository {
	return &DealHistoryRepository{db: db}
}

// ListByGroup returns the most recent archived deals for groupID, newest
// first, capped at limit.
func (r *DealHistoryRepository) ListByGroup(ctx context.Context, groupID string, limit int) ([]*models.DealHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + dealColumns + `, final_state, completion_reason, archived_at
		FROM deal_history
		WHERE group_jid = $1
		ORDER BY archived_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.DealHistory
	for rows.Next() {
		h := &models.DealHistory{}
		var metadataJSON []byte
		err := rows.Scan(
			&h.ID, &h.GroupJID, &h.ClientJID, &h.Side, &h.State, &h.BaseRate, &h.QuotedRate,
			&h.LockedRate, &h.LockedAt, &h.AmountBRL, &h.AmountUSDT, &h.TTLExpiresAt,
			&h.PricingSource, &h.SpreadMode, &h.SellSpread, &h.BuySpread,
			&h.RuleIDUsed, &h.RuleName, &h.RepriceCount, &metadataJSON, &h.CreatedAt, &h.UpdatedAt,
			&h.FinalState, &h.CompletionReason, &h.ArchivedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &h.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
