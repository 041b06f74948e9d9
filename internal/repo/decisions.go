package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pactline/internal/domain"
)

const decisionCols = `id,title,COALESCE(description,'') AS description,category,status,owner_id,created_by,role_id,child_id,discussion_ends_at,locked_at,created_at`

func scanDecision(scan func(dest ...any) error) (domain.Decision, error) {
	var d domain.Decision
	var roleID, childID, lockedAt sql.NullString
	err := scan(&d.ID, &d.Title, &d.Description, &d.Category, &d.Status, &d.OwnerID, &d.CreatedBy,
		&roleID, &childID, &d.DiscussionEndsAt, &lockedAt, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if roleID.Valid {
		d.RoleID = &roleID.String
	}
	if childID.Valid {
		d.ChildID = &childID.String
	}
	if lockedAt.Valid {
		d.LockedAt = &lockedAt.String
	}
	return d, err
}

func (r Repo) InsertDecisionTx(ctx context.Context, tx *sql.Tx, d domain.Decision) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO decisions(id,title,description,category,status,owner_id,created_by,role_id,child_id,discussion_ends_at,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Title, nullable(d.Description), d.Category, d.Status, d.OwnerID, d.CreatedBy,
		nullableStringPtr(d.RoleID), nullableStringPtr(d.ChildID), d.DiscussionEndsAt, d.CreatedAt)
	return err
}

func (r Repo) GetDecision(ctx context.Context, id string) (domain.Decision, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+decisionCols+` FROM decisions WHERE id=?`, id)
	return scanDecision(row.Scan)
}

func (r Repo) GetDecisionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Decision, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+decisionCols+` FROM decisions WHERE id=?`, id)
	return scanDecision(row.Scan)
}

type DecisionFilters struct {
	ViewerIDs []string // owner or creator must be among these
	Status    string
	Category  string
}

func (r Repo) ListDecisions(ctx context.Context, f DecisionFilters) ([]domain.Decision, error) {
	clauses := []string{"1=1"}
	var args []any
	if len(f.ViewerIDs) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.ViewerIDs)), ",")
		clauses = append(clauses, fmt.Sprintf("(owner_id IN (%s) OR created_by IN (%s))", ph, ph))
		for i := 0; i < 2; i++ {
			for _, id := range f.ViewerIDs {
				args = append(args, id)
			}
		}
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	query := `SELECT ` + decisionCols + ` FROM decisions WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// LockDecisionTx flips an active decision to locked. It reports whether a
// row was updated so callers can detect a concurrent lock.
func (r Repo) LockDecisionTx(ctx context.Context, tx *sql.Tx, id, lockedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE decisions SET status='locked', locked_at=? WHERE id=? AND status='active'`,
		lockedAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// OverriddenDecisionIDs returns the set of decision ids with an unexpired
// override at the given instant.
func (r Repo) OverriddenDecisionIDs(ctx context.Context, now string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT decision_id FROM emergency_overrides WHERE decision_id IS NOT NULL AND expires_at > ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res[id] = true
	}
	return res, rows.Err()
}
