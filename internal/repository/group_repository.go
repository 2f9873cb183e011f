package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// GroupRepository persists groups and their per-group configuration.
type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetByJID returns the group row for jid, or apperr.ErrGroupNotFound if no
// group has been discovered under that JID yet.
func (r *GroupRepository) GetByJID(ctx context.Context, jid string) (*models.Group, error) {
	query := `
		SELECT id, jid, name, is_control_group, mode, first_seen_at, last_activity_at, message_count
		FROM groups
		WHERE jid = $1`

	g := &models.Group{}
	err := r.db.QueryRowContext(ctx, query, jid).Scan(
		&g.ID, &g.JID, &g.Name, &g.IsControlGroup, &g.Mode,
		&g.FirstSeenAt, &g.LastActivityAt, &g.MessageCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrGroupNotFound
		}
		return nil, err
	}
	g.SetIsControlGroup(g.IsControlGroup)
	return g, nil
}

// ListGroups returns every discovered group, most recently active first,
// for the dashboard's group list (§6.2).
func (r *GroupRepository) ListGroups(ctx context.Context) ([]*models.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, jid, name, is_control_group, mode, first_seen_at, last_activity_at, message_count
		FROM groups
		ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g := &models.Group{}
		if err := rows.Scan(
			&g.ID, &g.JID, &g.Name, &g.IsControlGroup, &g.Mode,
			&g.FirstSeenAt, &g.LastActivityAt, &g.MessageCount,
		); err != nil {
			return nil, err
		}
		g.SetIsControlGroup(g.IsControlGroup)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Upsert inserts a newly-discovered group or updates its name/activity
// fields on an existing one, keyed on JID.
func (r *GroupRepository) Upsert(ctx context.Context, g *models.Group) error {
	query := `
		INSERT INTO groups (jid, name, is_control_group, mode, first_seen_at, last_activity_at, message_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (jid) DO UPDATE SET
			name = EXCLUDED.name,
			last_activity_at = EXCLUDED.last_activity_at,
			message_count = groups.message_count + 1
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		g.JID, g.Name, g.IsControlGroup, g.Mode, g.FirstSeenAt, g.LastActivityAt, g.MessageCount,
	).Scan(&g.ID)
}

// SetMode updates a group's operating mode (§3: learning/assisted/active/paused).
func (r *GroupRepository) SetMode(ctx context.Context, jid, mode string) error {
	if !models.ValidGroupMode(mode) {
		return apperr.New(apperr.KindValidation, "invalid group mode")
	}
	result, err := r.db.ExecContext(ctx, `UPDATE groups SET mode = $1 WHERE jid = $2`, mode, jid)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.ErrGroupNotFound
	}
	return nil
}

// LoadGroupConfig implements internal/rule.Loader. A group with no config
// row yet is not an error: the caller falls back to
// models.DefaultGroupConfig.
func (r *GroupRepository) LoadGroupConfig(ctx context.Context, groupID string) (*models.GroupConfig, error) {
	query := `
		SELECT group_jid, pricing_source, spread_mode, sell_spread, buy_spread,
		       quote_ttl_seconds, default_side, default_currency, language,
		       player_roles, volatility, created_at, updated_at, learning_started_at
		FROM group_config
		WHERE group_jid = $1`

	var playerRolesJSON, volatilityJSON []byte
	c := &models.GroupConfig{}
	err := r.db.QueryRowContext(ctx, query, groupID).Scan(
		&c.GroupJID, &c.PricingSource, &c.SpreadMode, &c.SellSpread, &c.BuySpread,
		&c.QuoteTTLSeconds, &c.DefaultSide, &c.DefaultCurrency, &c.Language,
		&playerRolesJSON, &volatilityJSON, &c.CreatedAt, &c.UpdatedAt, &c.LearningStartedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultGroupConfig(groupID), nil
		}
		return nil, err
	}
	if len(playerRolesJSON) > 0 {
		if err := json.Unmarshal(playerRolesJSON, &c.PlayerRoles); err != nil {
			return nil, err
		}
	}
	if len(volatilityJSON) > 0 {
		if err := json.Unmarshal(volatilityJSON, &c.Volatility); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SaveGroupConfig upserts a group's configuration, validating range/enum
// invariants before touching the database (§6.2 API boundary).
func (r *GroupRepository) SaveGroupConfig(ctx context.Context, c *models.GroupConfig) error {
	if msg := c.Validate(); msg != "" {
		return apperr.New(apperr.KindValidation, msg)
	}

	playerRolesJSON, err := json.Marshal(c.PlayerRoles)
	if err != nil {
		return err
	}
	volatilityJSON, err := json.Marshal(c.Volatility)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO group_config (
			group_jid, pricing_source, spread_mode, sell_spread, buy_spread,
			quote_ttl_seconds, default_side, default_currency, language,
			player_roles, volatility, created_at, updated_at, learning_started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (group_jid) DO UPDATE SET
			pricing_source = EXCLUDED.pricing_source,
			spread_mode = EXCLUDED.spread_mode,
			sell_spread = EXCLUDED.sell_spread,
			buy_spread = EXCLUDED.buy_spread,
			quote_ttl_seconds = EXCLUDED.quote_ttl_seconds,
			default_side = EXCLUDED.default_side,
			default_currency = EXCLUDED.default_currency,
			language = EXCLUDED.language,
			player_roles = EXCLUDED.player_roles,
			volatility = EXCLUDED.volatility,
			updated_at = EXCLUDED.updated_at,
			learning_started_at = EXCLUDED.learning_started_at`

	_, err = r.db.ExecContext(ctx, query,
		c.GroupJID, c.PricingSource, c.SpreadMode, c.SellSpread, c.BuySpread,
		c.QuoteTTLSeconds, c.DefaultSide, c.DefaultCurrency, c.Language,
		playerRolesJSON, volatilityJSON, c.CreatedAt, c.UpdatedAt, c.LearningStartedAt,
	)
	return err
}
