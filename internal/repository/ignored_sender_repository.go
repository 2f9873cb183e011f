package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"otcbot/internal/apperr"
	"otcbot/internal/models"
)

// IgnoredSenderRepository manages the per-group sender ignore list
// consulted by router.Context.IsSenderIgnored (§4.2). Adapted from the
// teacher's blacklist_repository.go: same CRUD shape (Create, GetAll,
// Exists, Delete), keyed on (group_jid, sender_jid) instead of a bare
// trading symbol.
type IgnoredSenderRepository struct {
	db *sql.DB
}

func NewIgnoredSenderRepository(db *sql.DB) *IgnoredSenderRepository {
	return &IgnoredSenderRepository{db: db}
}

// Create adds senderJID to groupJID's ignore list.
func (r *IgnoredSenderRepository) Create(ctx context.Context, entry *models.IgnoredSender) error {
	query := `
		INSERT INTO ignored_senders (group_jid, sender_jid, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	entry.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query, entry.GroupJID, entry.SenderJID, entry.Reason, entry.CreatedAt).
		Scan(&entry.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.KindConflict, "sender already ignored in this group")
		}
		return err
	}
	return nil
}

// GetAll returns every ignored sender for groupJID.
func (r *IgnoredSenderRepository) GetAll(ctx context.Context, groupJID string) ([]*models.IgnoredSender, error) {
	query := `
		SELECT id, group_jid, sender_jid, reason, created_at
		FROM ignored_senders
		WHERE group_jid = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, groupJID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.IgnoredSender
	for rows.Next() {
		e := &models.IgnoredSender{}
		if err := rows.Scan(&e.ID, &e.GroupJID, &e.SenderJID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Exists reports whether senderJID is on groupJID's ignore list — the
// check the dispatcher/handler makes before populating
// router.Context.IsSenderIgnored.
func (r *IgnoredSenderRepository) Exists(ctx context.Context, groupJID, senderJID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM ignored_senders WHERE group_jid = $1 AND sender_jid = $2)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, groupJID, senderJID).Scan(&exists)
	return exists, err
}

// Delete removes senderJID from groupJID's ignore list.
func (r *IgnoredSenderRepository) Delete(ctx context.Context, groupJID, senderJID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ignored_senders WHERE group_jid = $1 AND sender_jid = $2`,
		groupJID, senderJID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("repository: sender was not on the ignore list")
	}
	return nil
}
