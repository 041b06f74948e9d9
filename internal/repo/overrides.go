package repo

import (
	"context"
	"database/sql"

	"pactline/internal/domain"
)

const overrideCols = `id,reason,user_id,decision_id,task_id,status,created_at,expires_at`

func scanOverride(scan func(dest ...any) error) (domain.Override, error) {
	var o domain.Override
	var decisionID, taskID sql.NullString
	err := scan(&o.ID, &o.Reason, &o.UserID, &decisionID, &taskID, &o.Status, &o.CreatedAt, &o.ExpiresAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if decisionID.Valid {
		o.DecisionID = &decisionID.String
	}
	if taskID.Valid {
		o.TaskID = &taskID.String
	}
	return o, err
}

func (r Repo) InsertOverrideTx(ctx context.Context, tx *sql.Tx, o domain.Override) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO emergency_overrides(id,reason,user_id,decision_id,task_id,status,created_at,expires_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		o.ID, o.Reason, o.UserID, nullableStringPtr(o.DecisionID), nullableStringPtr(o.TaskID),
		o.Status, o.CreatedAt, o.ExpiresAt)
	return err
}

// CountRecentOverridesTx counts overrides the user created at or after the
// window start, regardless of whether they have since expired.
func (r Repo) CountRecentOverridesTx(ctx context.Context, tx *sql.Tx, userID, since string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emergency_overrides WHERE user_id=? AND created_at >= ?`, userID, since).Scan(&n)
	return n, err
}

// ListOverrides returns the user's most recent overrides, newest first.
func (r Repo) ListOverrides(ctx context.Context, userID string, limit int) ([]domain.Override, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+overrideCols+` FROM emergency_overrides WHERE user_id=? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Override
	for rows.Next() {
		o, err := scanOverride(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
