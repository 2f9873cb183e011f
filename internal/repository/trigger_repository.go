package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// TriggerRepository persists per-group trigger definitions.
type TriggerRepository struct {
	db *sql.DB
}

func NewTriggerRepository(db *sql.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// LoadTriggers implements internal/trigger.Loader: every trigger row for
// groupID, active or not (the matcher itself filters on IsActive).
func (r *TriggerRepository) LoadTriggers(ctx context.Context, groupID string) ([]*models.Trigger, error) {
	query := `
		SELECT id, group_jid, trigger_phrase, pattern_type, action_type,
		       action_params, priority, is_active, scope, is_system, created_at
		FROM triggers
		WHERE group_jid = $1
		ORDER BY priority DESC`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*models.Trigger
	for rows.Next() {
		t := &models.Trigger{}
		var paramsJSON []byte
		if err := rows.Scan(
			&t.ID, &t.GroupJID, &t.Phrase, &t.PatternType, &t.ActionType,
			&paramsJSON, &t.Priority, &t.IsActive, &t.Scope, &t.IsSystem, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &t.ActionParams); err != nil {
				return nil, err
			}
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return triggers, nil
}

// Create inserts a new trigger, validating it first. A duplicate
// (group_jid, trigger_phrase) returns apperr.ErrTriggerDuplicate.
func (r *TriggerRepository) Create(ctx context.Context, t *models.Trigger) error {
	if msg := t.Validate(); msg != "" {
		return apperr.New(apperr.KindValidation, msg)
	}

	paramsJSON, err := json.Marshal(t.ActionParams)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO triggers (group_jid, trigger_phrase, pattern_type, action_type,
		                       action_params, priority, is_active, scope, is_system, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err = r.db.QueryRowContext(ctx, query,
		t.GroupJID, t.Phrase, t.PatternType, t.ActionType,
		paramsJSON, t.Priority, t.IsActive, t.Scope, t.IsSystem, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.ErrTriggerDuplicate
		}
		return err
	}
	return nil
}

// Update rewrites an existing trigger's mutable fields.
func (r *TriggerRepository) Update(ctx context.Context, t *models.Trigger) error {
	if msg := t.Validate(); msg != "" {
		return apperr.New(apperr.KindValidation, msg)
	}
	paramsJSON, err := json.Marshal(t.ActionParams)
	if err != nil {
		return err
	}

	query := `
		UPDATE triggers SET
			trigger_phrase = $1, pattern_type = $2, action_type = $3,
			action_params = $4, priority = $5, is_active = $6, scope = $7
		WHERE id = $8`

	result, err := r.db.ExecContext(ctx, query,
		t.Phrase, t.PatternType, t.ActionType, paramsJSON, t.Priority, t.IsActive, t.Scope, t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.ErrTriggerNotFound
	}
	return nil
}

// Delete removes a trigger by id. System triggers cannot be deleted, only
// disabled via Update (§6.2: DELETE on a system trigger is a 403 upstream;
// this layer refuses it unconditionally).
func (r *TriggerRepository) Delete(ctx context.Context, id int) error {
	var isSystem bool
	err := r.db.QueryRowContext(ctx, `SELECT is_system FROM triggers WHERE id = $1`, id).Scan(&isSystem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrTriggerNotFound
		}
		return err
	}
	if isSystem {
		return apperr.ErrSystemRuleProtect
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.ErrTriggerNotFound
	}
	return nil
}

// SeedSystemTriggers inserts the canonical trigger vocabulary for a newly
// discovered group, skipping any phrase already present.
func (r *TriggerRepository) SeedSystemTriggers(ctx context.Context, groupJID string) error {
	for _, t := range models.SystemTriggerSeeds(groupJID) {
		if err := r.Create(ctx, t); err != nil && !apperr.Is(err, apperr.KindConflict) {
			return err
		}
	}
	return nil
}
