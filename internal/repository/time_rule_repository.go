package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// TimeRuleRepository persists per-group scheduled pricing overrides.
type TimeRuleRepository struct {
	db *sql.DB
}

func NewTimeRuleRepository(db *sql.DB) *TimeRuleRepository {
	return &TimeRuleRepository{db: db}
}

// LoadTimeRules implements the other half of internal/rule.Loader:
// every time rule row for groupID, active or not.
func (r *TimeRuleRepository) LoadTimeRules(ctx context.Context, groupID string) ([]*models.TimeRule, error) {
	query := `
		SELECT id, group_jid, name, pricing_source, spread_mode, sell_spread, buy_spread,
		       priority, active_window, is_system, is_active, created_at
		FROM rules
		WHERE group_jid = $1
		ORDER BY priority DESC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.TimeRule
	for rows.Next() {
		tr := &models.TimeRule{}
		var windowJSON []byte
		if err := rows.Scan(
			&tr.ID, &tr.GroupJID, &tr.Name, &tr.PricingSource, &tr.SpreadMode,
			&tr.SellSpread, &tr.BuySpread, &tr.Priority, &windowJSON,
			&tr.IsSystem, &tr.IsActive, &tr.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(windowJSON) > 0 {
			if err := json.Unmarshal(windowJSON, &tr.Window); err != nil {
				return nil, err
			}
		}
		rules = append(rules, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Create inserts a new time rule.
func (r *TimeRuleRepository) Create(ctx context.Context, tr *models.TimeRule) error {
	if msg := tr.Validate(); msg != "" {
		return apperr.New(apperr.KindValidation, msg)
	}
	windowJSON, err := json.Marshal(tr.Window)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rules (group_jid, name, pricing_source, spread_mode, sell_spread,
		                    buy_spread, priority, active_window, is_system, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		tr.GroupJID, tr.Name, tr.PricingSource, tr.SpreadMode, tr.SellSpread,
		tr.BuySpread, tr.Priority, windowJSON, tr.IsSystem, tr.IsActive, tr.CreatedAt,
	).Scan(&tr.ID)
}

// Update rewrites an existing time rule.
func (r *TimeRuleRepository) Update(ctx context.Context, tr *models.TimeRule) error {
	if msg := tr.Validate(); msg != "" {
		return apperr.New(apperr.KindValidation, msg)
	}
	windowJSON, err := json.Marshal(tr.Window)
	if err != nil {
		return err
	}

	query := `
		UPDATE rules SET
			name = $1, pricing_source = $2, spread_mode = $3, sell_spread = $4,
			buy_spread = $5, priority = $6, active_window = $7, is_active = $8
		WHERE id = $9`

	result, err := r.db.ExecContext(ctx, query,
		tr.Name, tr.PricingSource, tr.SpreadMode, tr.SellSpread,
		tr.BuySpread, tr.Priority, windowJSON, tr.IsActive, tr.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.ErrRuleNotFound
	}
	return nil
}

// Delete removes a time rule by id. System rules cannot be deleted, only
// disabled via Update (§6.2).
func (r *TimeRuleRepository) Delete(ctx context.Context, id int) error {
	var isSystem bool
	err := r.db.QueryRowContext(ctx, `SELECT is_system FROM rules WHERE id = $1`, id).Scan(&isSystem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrRuleNotFound
		}
		return err
	}
	if isSystem {
		return apperr.ErrSystemRuleProtect
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.ErrRuleNotFound
	}
	return nil
}
