package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"pactline/internal/domain"
	"pactline/internal/repo"
)

// --- roles ---

type CreateRoleOptions struct {
	ActorID     string
	Name        string
	Description string
}

func (e *Engine) CreateRole(ctx context.Context, opts CreateRoleOptions) (domain.Role, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Role{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if _, err := e.Repo.FindRoleByName(ctx, opts.ActorID, name); err == nil {
		return domain.Role{}, &ConflictError{Resource: "role", Detail: "role name already used"}
	} else if err != repo.ErrNotFound {
		return domain.Role{}, err
	}
	role := domain.Role{
		ID:          uuid.NewString(),
		OwnerID:     opts.ActorID,
		Name:        name,
		Description: strings.TrimSpace(opts.Description),
		CreatedAt:   fmtTime(e.now()),
	}
	if err := e.Repo.InsertRole(ctx, role); err != nil {
		return domain.Role{}, err
	}
	return role, nil
}

func (e *Engine) ListRoles(ctx context.Context, actorID string) ([]domain.Role, error) {
	owners, err := e.Guard.CoupleIDs(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListRoles(ctx, owners)
}

// roleOfCouple loads a role and hides it unless it belongs to the
// caller's couple.
func (e *Engine) roleOfCouple(ctx context.Context, actorID, roleID string) (domain.Role, error) {
	role, err := e.Repo.GetRole(ctx, roleID)
	if err != nil {
		return domain.Role{}, err
	}
	ok, err := e.Guard.IsSelfOrPartner(ctx, actorID, role.OwnerID)
	if err != nil {
		return domain.Role{}, err
	}
	if !ok {
		return domain.Role{}, repo.ErrNotFound
	}
	return role, nil
}

type UpdateRoleOptions struct {
	ActorID     string
	RoleID      string
	Name        string
	Description string
}

func (e *Engine) UpdateRole(ctx context.Context, opts UpdateRoleOptions) (domain.Role, error) {
	role, err := e.roleOfCouple(ctx, opts.ActorID, opts.RoleID)
	if err != nil {
		return domain.Role{}, err
	}
	if role.IsLocked {
		return domain.Role{}, &ConflictError{Resource: "role", Detail: "locked roles cannot be changed"}
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Role{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if err := e.Repo.UpdateRole(ctx, role.ID, name, strings.TrimSpace(opts.Description)); err != nil {
		return domain.Role{}, err
	}
	return e.Repo.GetRole(ctx, role.ID)
}

type LockRoleOptions struct {
	ActorID string
	RoleID  string
}

// LockRole freezes a role definition permanently.
func (e *Engine) LockRole(ctx context.Context, opts LockRoleOptions) (domain.Role, error) {
	role, err := e.roleOfCouple(ctx, opts.ActorID, opts.RoleID)
	if err != nil {
		return domain.Role{}, err
	}
	if role.IsLocked {
		return domain.Role{}, &ConflictError{Resource: "role", Detail: "already locked"}
	}
	if err := e.Repo.LockRole(ctx, role.ID, fmtTime(e.now()), opts.ActorID); err != nil {
		return domain.Role{}, err
	}
	return e.Repo.GetRole(ctx, role.ID)
}

func (e *Engine) DeleteRole(ctx context.Context, actorID, roleID string) error {
	role, err := e.roleOfCouple(ctx, actorID, roleID)
	if err != nil {
		return err
	}
	if role.IsLocked {
		return &ConflictError{Resource: "role", Detail: "locked roles cannot be deleted"}
	}
	return e.Repo.DeleteRole(ctx, role.ID)
}

// --- children ---

type AddChildOptions struct {
	ActorID   string
	Name      string
	BirthDate string
}

// AddChild registers a child for the couple; the linked partner becomes
// the second parent automatically.
func (e *Engine) AddChild(ctx context.Context, opts AddChildOptions) (domain.Child, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Child{}, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	var birthDate *string
	if opts.BirthDate != "" {
		if _, err := parseTime(opts.BirthDate); err != nil {
			return domain.Child{}, &ValidationError{Field: "birth_date", Reason: "must be an RFC3339 timestamp"}
		}
		birthDate = &opts.BirthDate
	}
	partner, err := e.Guard.PartnerOf(ctx, opts.ActorID)
	if err != nil {
		return domain.Child{}, err
	}
	var parent2 *string
	if partner != "" {
		parent2 = &partner
	}
	c := domain.Child{
		ID:        uuid.NewString(),
		Name:      name,
		Parent1ID: opts.ActorID,
		Parent2ID: parent2,
		BirthDate: birthDate,
		CreatedAt: fmtTime(e.now()),
	}
	if err := e.Repo.InsertChild(ctx, c); err != nil {
		return domain.Child{}, err
	}
	return c, nil
}

func (e *Engine) ListChildren(ctx context.Context, actorID string) ([]domain.Child, error) {
	return e.Repo.ListChildren(ctx, actorID)
}

// --- tasks ---

type CreateTaskOptions struct {
	ActorID     string
	Title       string
	Description string
	Priority    string
	AssignedTo  string
	RoleID      string
	DueDate     string
}

func (e *Engine) CreateTask(ctx context.Context, opts CreateTaskOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	priority := opts.Priority
	if priority == "" {
		priority = "medium"
	}
	switch priority {
	case "low", "medium", "high":
	default:
		return domain.Task{}, &ValidationError{Field: "priority", Reason: "must be one of low, medium, high"}
	}
	assignee := opts.AssignedTo
	if assignee == "" {
		assignee = opts.ActorID
	}
	ok, err := e.Guard.IsSelfOrPartner(ctx, opts.ActorID, assignee)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, &ValidationError{Field: "assigned_to", Reason: "assignee must be you or your partner"}
	}
	var roleID *string
	if opts.RoleID != "" {
		role, err := e.roleOfCouple(ctx, opts.ActorID, opts.RoleID)
		if err != nil {
			return domain.Task{}, err
		}
		roleID = &role.ID
	}
	var dueDate *string
	if opts.DueDate != "" {
		if _, err := parseTime(opts.DueDate); err != nil {
			return domain.Task{}, &ValidationError{Field: "due_date", Reason: "must be an RFC3339 timestamp"}
		}
		dueDate = &opts.DueDate
	}
	now := fmtTime(e.now())
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		Priority:    priority,
		Status:      "pending",
		AssignedTo:  assignee,
		CreatedBy:   opts.ActorID,
		RoleID:      roleID,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e *Engine) GetTask(ctx context.Context, actorID, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if t.CreatedBy != actorID && t.AssignedTo != actorID {
		ok, err := e.Guard.IsSelfOrPartner(ctx, actorID, t.CreatedBy)
		if err != nil {
			return domain.Task{}, err
		}
		if !ok {
			return domain.Task{}, repo.ErrNotFound
		}
	}
	return t, nil
}

type ListTasksOptions struct {
	ActorID    string
	Status     string
	Priority   string
	AssignedTo string
}

func (e *Engine) ListTasks(ctx context.Context, opts ListTasksOptions) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, repo.TaskFilters{
		ViewerID:   opts.ActorID,
		Status:     opts.Status,
		Priority:   opts.Priority,
		AssignedTo: opts.AssignedTo,
	})
}

type UpdateTaskStatusOptions struct {
	ActorID string
	TaskID  string
	Status  string
}

func (e *Engine) UpdateTaskStatus(ctx context.Context, opts UpdateTaskStatusOptions) (domain.Task, error) {
	switch opts.Status {
	case "pending", "in_progress", "done":
	default:
		return domain.Task{}, &ValidationError{Field: "status", Reason: "must be one of pending, in_progress, done"}
	}
	t, err := e.GetTask(ctx, opts.ActorID, opts.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	updatedAt := fmtTime(e.now())
	if err := e.Repo.UpdateTaskStatus(ctx, t.ID, opts.Status, updatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Status = opts.Status
	t.UpdatedAt = updatedAt
	return t, nil
}

// --- ledger ---

type AddLedgerEntryOptions struct {
	ActorID     string
	Description string
	Category    string
	Amount      float64
	PaidBy      string
}

func (e *Engine) AddLedgerEntry(ctx context.Context, opts AddLedgerEntryOptions) (domain.LedgerEntry, error) {
	if strings.TrimSpace(opts.Description) == "" {
		return domain.LedgerEntry{}, &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if opts.Amount <= 0 {
		return domain.LedgerEntry{}, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	paidBy := opts.PaidBy
	if paidBy == "" {
		paidBy = opts.ActorID
	}
	ok, err := e.Guard.IsSelfOrPartner(ctx, opts.ActorID, paidBy)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if !ok {
		return domain.LedgerEntry{}, &ValidationError{Field: "paid_by", Reason: "payer must be you or your partner"}
	}
	entry := domain.LedgerEntry{
		ID:          uuid.NewString(),
		Description: strings.TrimSpace(opts.Description),
		Category:    opts.Category,
		Amount:      opts.Amount,
		PaidBy:      paidBy,
		CreatedAt:   fmtTime(e.now()),
	}
	if err := e.Repo.InsertLedgerEntry(ctx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

func (e *Engine) ListLedgerEntries(ctx context.Context, actorID, category string) ([]domain.LedgerEntry, error) {
	payers, err := e.Guard.CoupleIDs(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListLedgerEntries(ctx, payers, category)
}

// --- notifications ---

type ListNotificationsOptions struct {
	ActorID    string
	UnreadOnly bool
	Type       string
	Limit      int
}

func (e *Engine) ListNotifications(ctx context.Context, opts ListNotificationsOptions) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, repo.NotificationFilters{
		UserID:     opts.ActorID,
		UnreadOnly: opts.UnreadOnly,
		Type:       opts.Type,
		Limit:      opts.Limit,
	})
}

func (e *Engine) UnreadNotificationCount(ctx context.Context, actorID string) (int, error) {
	return e.Repo.CountUnreadNotifications(ctx, actorID)
}

func (e *Engine) MarkNotificationRead(ctx context.Context, actorID, id string) error {
	return e.Repo.MarkNotificationRead(ctx, id, actorID)
}

func (e *Engine) DeleteNotification(ctx context.Context, actorID, id string) error {
	return e.Repo.DeleteNotification(ctx, id, actorID)
}

// --- events ---

type ListEventsOptions struct {
	Limit      int
	Type       string
	EntityKind string
	EntityID   string
}

func (e *Engine) ListEvents(ctx context.Context, opts ListEventsOptions) ([]domain.Event, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.LatestEvents(ctx, limit, opts.Type, opts.EntityKind, opts.EntityID)
}
