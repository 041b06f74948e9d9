// Package engine implements the governance rules behind the API: decision
// discussion windows and locking, topic freeze escalation, and the
// rate-limited emergency override gate.
package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/engine/guard"
	"pactline/internal/events"
	"pactline/internal/notify"
	"pactline/internal/repo"
)

const (
	freezeThreshold     = 3
	autoFreezeHours     = 24
	cooldownHours       = 2
	overrideLimit       = 5
	overrideWindowHours = 24

	maxDiscussionHours = 168
	maxFreezeHours     = 168
	maxOverrideHours   = 24
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Guard  guard.Service
	Events events.Writer
	Notify notify.Writer
	Config config.Config

	// Now is swappable for tests; defaults to time.Now UTC.
	Now func() time.Time
}

func New(db *sql.DB, cfg config.Config) *Engine {
	r := repo.Repo{DB: db}
	return &Engine{
		DB:     db,
		Repo:   r,
		Guard:  guard.Service{Repo: r},
		Events: events.Writer{},
		Notify: notify.Writer{DB: db},
		Config: cfg,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// --- users ---

type CreateUserOptions struct {
	Email string
	Name  string
}

func (e *Engine) CreateUser(ctx context.Context, opts CreateUserOptions) (domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(opts.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, &ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, &ConflictError{Resource: "user", Detail: "email already registered"}
	} else if err != repo.ErrNotFound {
		return domain.User{}, err
	}
	u := domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      strings.TrimSpace(opts.Name),
		CreatedAt: fmtTime(e.now()),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e *Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e *Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

// --- partner linking ---

type InvitePartnerOptions struct {
	ActorID string
	Email   string
}

// InvitePartner issues an invite token to the user with the given email.
// The invitee redeems it with AcceptInvite to link the couple.
func (e *Engine) InvitePartner(ctx context.Context, opts InvitePartnerOptions) (string, error) {
	actor, err := e.Repo.GetUser(ctx, opts.ActorID)
	if err != nil {
		return "", err
	}
	if actor.PartnerID != nil {
		return "", &ConflictError{Resource: "partner", Detail: "already linked to a partner"}
	}
	email := strings.TrimSpace(strings.ToLower(opts.Email))
	invitee, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if invitee.ID == actor.ID {
		return "", &ValidationError{Field: "email", Reason: "cannot invite yourself"}
	}
	if invitee.PartnerID != nil {
		return "", &ConflictError{Resource: "partner", Detail: "invitee already linked to a partner"}
	}

	token := uuid.NewString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if err := e.Repo.SetInviteTx(ctx, tx, invitee.ID, token, actor.ID, fmtTime(e.now())); err != nil {
		return "", err
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "partner.invited",
		EntityKind: "user",
		EntityID:   invitee.ID,
		ActorID:    actor.ID,
	})
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return token, nil
}

type AcceptInviteOptions struct {
	ActorID string
	Token   string
}

// AcceptInvite redeems an invite token and links both users as partners.
func (e *Engine) AcceptInvite(ctx context.Context, opts AcceptInviteOptions) (domain.User, error) {
	actor, err := e.Repo.GetUser(ctx, opts.ActorID)
	if err != nil {
		return domain.User{}, err
	}
	if actor.PartnerID != nil {
		return domain.User{}, &ConflictError{Resource: "partner", Detail: "already linked to a partner"}
	}
	token, invitedBy, err := e.Repo.GetInvite(ctx, actor.ID)
	if err != nil {
		return domain.User{}, err
	}
	if token == "" || token != opts.Token {
		return domain.User{}, &ValidationError{Field: "token", Reason: "invalid or expired invite token"}
	}
	inviter, err := e.Repo.GetUser(ctx, invitedBy)
	if err != nil {
		return domain.User{}, err
	}
	if inviter.PartnerID != nil {
		return domain.User{}, &ConflictError{Resource: "partner", Detail: "inviter already linked to a partner"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.LinkPartnersTx(ctx, tx, actor.ID, inviter.ID); err != nil {
		return domain.User{}, err
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "partner.linked",
		EntityKind: "user",
		EntityID:   inviter.ID,
		ActorID:    actor.ID,
	})
	if err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, actor.ID)
}

// --- decisions ---

type CreateDecisionOptions struct {
	ActorID         string
	Title           string
	Description     string
	Category        string
	OwnerID         string
	RoleID          string
	ChildID         string
	DiscussionHours int // 0 means use the configured default
}

func (e *Engine) CreateDecision(ctx context.Context, opts CreateDecisionOptions) (domain.Decision, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Decision{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(opts.Category) == "" {
		return domain.Decision{}, &ValidationError{Field: "category", Reason: "must not be empty"}
	}
	ownerID := opts.OwnerID
	if ownerID == "" {
		ownerID = opts.ActorID
	}
	ok, err := e.Guard.IsSelfOrPartner(ctx, opts.ActorID, ownerID)
	if err != nil {
		return domain.Decision{}, err
	}
	if !ok {
		return domain.Decision{}, &ValidationError{Field: "owner_id", Reason: "owner must be you or your partner"}
	}

	hours := opts.DiscussionHours
	if hours == 0 {
		hours = e.Config.Defaults.DiscussionHours
	}
	if hours < 1 || hours > maxDiscussionHours {
		return domain.Decision{}, &ValidationError{Field: "discussion_hours", Reason: "must be between 1 and 168"}
	}

	var roleID *string
	if opts.RoleID != "" {
		role, err := e.Repo.GetRole(ctx, opts.RoleID)
		if err != nil {
			return domain.Decision{}, err
		}
		if role.OwnerID != ownerID {
			return domain.Decision{}, repo.ErrNotFound
		}
		roleID = &role.ID
	}
	var childID *string
	if opts.ChildID != "" {
		child, err := e.Repo.GetChild(ctx, opts.ChildID)
		if err != nil {
			return domain.Decision{}, err
		}
		ok, err := e.childOfCouple(ctx, child, opts.ActorID)
		if err != nil {
			return domain.Decision{}, err
		}
		if !ok {
			return domain.Decision{}, repo.ErrNotFound
		}
		childID = &child.ID
	}

	now := e.now()
	d := domain.Decision{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(opts.Title),
		Description:      strings.TrimSpace(opts.Description),
		Category:         opts.Category,
		Status:           "active",
		OwnerID:          ownerID,
		CreatedBy:        opts.ActorID,
		RoleID:           roleID,
		ChildID:          childID,
		DiscussionEndsAt: fmtTime(now.Add(time.Duration(hours) * time.Hour)),
		CreatedAt:        fmtTime(now),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Decision{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDecisionTx(ctx, tx, d); err != nil {
		return domain.Decision{}, err
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "decision.created",
		EntityKind: "decision",
		EntityID:   d.ID,
		ActorID:    opts.ActorID,
		Payload:    map[string]string{"title": d.Title, "discussion_ends_at": d.DiscussionEndsAt},
	})
	if err != nil {
		return domain.Decision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

func (e *Engine) childOfCouple(ctx context.Context, child domain.Child, userID string) (bool, error) {
	if child.Parent1ID == userID || (child.Parent2ID != nil && *child.Parent2ID == userID) {
		return true, nil
	}
	partner, err := e.Guard.PartnerOf(ctx, userID)
	if err != nil {
		return false, err
	}
	if partner == "" {
		return false, nil
	}
	return child.Parent1ID == partner || (child.Parent2ID != nil && *child.Parent2ID == partner), nil
}

// GetDecision returns a decision with its override overlay applied.
func (e *Engine) GetDecision(ctx context.Context, actorID, id string) (domain.Decision, error) {
	d, err := e.Repo.GetDecision(ctx, id)
	if err != nil {
		return domain.Decision{}, err
	}
	ok, err := e.canSeeDecision(ctx, actorID, d)
	if err != nil {
		return domain.Decision{}, err
	}
	if !ok {
		return domain.Decision{}, repo.ErrNotFound
	}
	overridden, err := e.Repo.OverriddenDecisionIDs(ctx, fmtTime(e.now()))
	if err != nil {
		return domain.Decision{}, err
	}
	d.Overridden = overridden[d.ID]
	return d, nil
}

func (e *Engine) canSeeDecision(ctx context.Context, actorID string, d domain.Decision) (bool, error) {
	if d.OwnerID == actorID || d.CreatedBy == actorID {
		return true, nil
	}
	partner, err := e.Guard.PartnerOf(ctx, actorID)
	if err != nil {
		return false, err
	}
	return partner != "" && (d.OwnerID == partner || d.CreatedBy == partner), nil
}

type ListDecisionsOptions struct {
	ActorID  string
	Status   string
	Category string
}

func (e *Engine) ListDecisions(ctx context.Context, opts ListDecisionsOptions) ([]domain.Decision, error) {
	viewers, err := e.Guard.CoupleIDs(ctx, opts.ActorID)
	if err != nil {
		return nil, err
	}
	list, err := e.Repo.ListDecisions(ctx, repo.DecisionFilters{
		ViewerIDs: viewers,
		Status:    opts.Status,
		Category:  opts.Category,
	})
	if err != nil {
		return nil, err
	}
	overridden, err := e.Repo.OverriddenDecisionIDs(ctx, fmtTime(e.now()))
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Overridden = overridden[list[i].ID]
	}
	return list, nil
}

type LockDecisionOptions struct {
	ActorID    string
	DecisionID string
}

// LockDecision finalizes a decision once its discussion window has closed.
// Locking at the exact close instant succeeds; a moment earlier does not.
// Only the decision's owner or creator may lock; a partner who is neither
// can read the decision but not finalize it.
func (e *Engine) LockDecision(ctx context.Context, opts LockDecisionOptions) (domain.Decision, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Decision{}, err
	}
	defer tx.Rollback()

	d, err := e.Repo.GetDecisionTx(ctx, tx, opts.DecisionID)
	if err != nil {
		return domain.Decision{}, err
	}
	if d.OwnerID != opts.ActorID && d.CreatedBy != opts.ActorID {
		return domain.Decision{}, repo.ErrNotFound
	}
	if d.Status == "locked" {
		return domain.Decision{}, &ConflictError{Resource: "decision", Detail: "already locked"}
	}
	endsAt, err := parseTime(d.DiscussionEndsAt)
	if err != nil {
		return domain.Decision{}, err
	}
	now := e.now()
	if now.Before(endsAt) {
		return domain.Decision{}, &TooEarlyError{LocksAt: d.DiscussionEndsAt}
	}

	lockedAt := fmtTime(now)
	updated, err := e.Repo.LockDecisionTx(ctx, tx, d.ID, lockedAt)
	if err != nil {
		return domain.Decision{}, err
	}
	if !updated {
		return domain.Decision{}, &ConflictError{Resource: "decision", Detail: "already locked"}
	}
	err = e.Events.Append(ctx, tx, events.Entry{
		Type:       "decision.locked",
		EntityKind: "decision",
		EntityID:   d.ID,
		ActorID:    opts.ActorID,
		Payload:    map[string]string{"locked_at": lockedAt},
	})
	if err != nil {
		return domain.Decision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Decision{}, err
	}
	d.Status = "locked"
	d.LockedAt = &lockedAt
	return d, nil
}
