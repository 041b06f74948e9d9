package repo

import (
	"context"
	"database/sql"
	"strings"

	"pactline/internal/domain"
)

// --- roles ---

const roleCols = `id,owner_id,name,COALESCE(description,'') AS description,is_locked,locked_at,locked_by,created_at`

func scanRole(scan func(dest ...any) error) (domain.Role, error) {
	var r domain.Role
	var lockedAt, lockedBy sql.NullString
	err := scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &r.IsLocked, &lockedAt, &lockedBy, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if lockedAt.Valid {
		r.LockedAt = &lockedAt.String
	}
	if lockedBy.Valid {
		r.LockedBy = &lockedBy.String
	}
	return r, err
}

func (r Repo) InsertRole(ctx context.Context, role domain.Role) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO roles(id,owner_id,name,description,is_locked,created_at) VALUES (?,?,?,?,?,?)`,
		role.ID, role.OwnerID, role.Name, nullable(role.Description), role.IsLocked, role.CreatedAt)
	return err
}

func (r Repo) GetRole(ctx context.Context, id string) (domain.Role, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+roleCols+` FROM roles WHERE id=?`, id)
	return scanRole(row.Scan)
}

func (r Repo) FindRoleByName(ctx context.Context, ownerID, name string) (domain.Role, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+roleCols+` FROM roles WHERE owner_id=? AND name=?`, ownerID, name)
	return scanRole(row.Scan)
}

func (r Repo) ListRoles(ctx context.Context, ownerIDs []string) ([]domain.Role, error) {
	ph := strings.TrimSuffix(strings.Repeat("?,", len(ownerIDs)), ",")
	args := make([]any, len(ownerIDs))
	for i, id := range ownerIDs {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+roleCols+` FROM roles WHERE owner_id IN (`+ph+`) ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func (r Repo) UpdateRole(ctx context.Context, id, name, description string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE roles SET name=?, description=? WHERE id=?`,
		name, nullable(description), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) LockRole(ctx context.Context, id, lockedAt, lockedBy string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE roles SET is_locked=1, locked_at=?, locked_by=? WHERE id=?`,
		lockedAt, lockedBy, id)
	return err
}

func (r Repo) DeleteRole(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM roles WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- children ---

const childCols = `id,name,parent1_id,parent2_id,birth_date,created_at`

func scanChild(scan func(dest ...any) error) (domain.Child, error) {
	var c domain.Child
	var parent2, birthDate sql.NullString
	err := scan(&c.ID, &c.Name, &c.Parent1ID, &parent2, &birthDate, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if parent2.Valid {
		c.Parent2ID = &parent2.String
	}
	if birthDate.Valid {
		c.BirthDate = &birthDate.String
	}
	return c, err
}

func (r Repo) InsertChild(ctx context.Context, c domain.Child) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO children(id,name,parent1_id,parent2_id,birth_date,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Name, c.Parent1ID, nullableStringPtr(c.Parent2ID), nullableStringPtr(c.BirthDate), c.CreatedAt)
	return err
}

func (r Repo) GetChild(ctx context.Context, id string) (domain.Child, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+childCols+` FROM children WHERE id=?`, id)
	return scanChild(row.Scan)
}

func (r Repo) ListChildren(ctx context.Context, parentID string) ([]domain.Child, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+childCols+` FROM children WHERE parent1_id=? OR parent2_id=? ORDER BY created_at DESC`,
		parentID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Child
	for rows.Next() {
		c, err := scanChild(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- tasks ---

const taskCols = `id,title,COALESCE(description,'') AS description,priority,status,assigned_to,created_by,role_id,due_date,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var roleID, dueDate sql.NullString
	err := scan(&t.ID, &t.Title, &t.Description, &t.Priority, &t.Status, &t.AssignedTo, &t.CreatedBy,
		&roleID, &dueDate, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if roleID.Valid {
		t.RoleID = &roleID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(id,title,description,priority,status,assigned_to,created_by,role_id,due_date,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Priority, t.Status, t.AssignedTo, t.CreatedBy,
		nullableStringPtr(t.RoleID), nullableStringPtr(t.DueDate), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	ViewerID   string // creator or assignee
	Status     string
	Priority   string
	AssignedTo string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ViewerID != "" {
		clauses = append(clauses, "(created_by=? OR assigned_to=?)")
		args = append(args, f.ViewerID, f.ViewerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	query := `SELECT ` + taskCols + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTaskStatus(ctx context.Context, id, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- ledger ---

func (r Repo) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO ledger_entries(id,description,category,amount,paid_by,created_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.Description, e.Category, e.Amount, e.PaidBy, e.CreatedAt)
	return err
}

func (r Repo) ListLedgerEntries(ctx context.Context, payerIDs []string, category string) ([]domain.LedgerEntry, error) {
	ph := strings.TrimSuffix(strings.Repeat("?,", len(payerIDs)), ",")
	clauses := []string{"paid_by IN (" + ph + ")"}
	var args []any
	for _, id := range payerIDs {
		args = append(args, id)
	}
	if category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, category)
	}
	query := `SELECT id,description,category,amount,paid_by,created_at FROM ledger_entries WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Description, &e.Category, &e.Amount, &e.PaidBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
