package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/migrate"
	"pactline/internal/repo"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
	now    *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	clock := func() time.Time { return now }
	eng.Now = clock
	eng.Events.Now = clock
	eng.Notify.Now = clock
	return testEnv{Engine: eng, Ctx: context.Background(), now: &now}
}

func (env testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

func (env testEnv) user(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, engine.CreateUserOptions{Email: email})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func (env testEnv) couple(t *testing.T) (domain.User, domain.User) {
	t.Helper()
	a := env.user(t, "a@example.com")
	b := env.user(t, "b@example.com")
	token, err := env.Engine.InvitePartner(env.Ctx, engine.InvitePartnerOptions{ActorID: a.ID, Email: b.Email})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := env.Engine.AcceptInvite(env.Ctx, engine.AcceptInviteOptions{ActorID: b.ID, Token: token}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return a, b
}

func TestDecisionLockWindow(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID:         u.ID,
		Title:           "Move to Lyon",
		Category:        "housing",
		DiscussionHours: 24,
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}

	// Locking inside the window fails and reports when it becomes possible.
	_, err = env.Engine.LockDecision(env.Ctx, engine.LockDecisionOptions{ActorID: u.ID, DecisionID: d.ID})
	var te *engine.TooEarlyError
	if !errors.As(err, &te) {
		t.Fatalf("expected TooEarlyError, got %v", err)
	}
	if te.LocksAt != d.DiscussionEndsAt {
		t.Fatalf("locks_at = %s, want %s", te.LocksAt, d.DiscussionEndsAt)
	}

	env.advance(23 * time.Hour)
	if _, err := env.Engine.LockDecision(env.Ctx, engine.LockDecisionOptions{ActorID: u.ID, DecisionID: d.ID}); !errors.As(err, &te) {
		t.Fatalf("expected TooEarlyError at 23h, got %v", err)
	}

	// The exact close instant is lockable.
	env.advance(1 * time.Hour)
	locked, err := env.Engine.LockDecision(env.Ctx, engine.LockDecisionOptions{ActorID: u.ID, DecisionID: d.ID})
	if err != nil {
		t.Fatalf("lock at window close: %v", err)
	}
	if locked.Status != "locked" || locked.LockedAt == nil {
		t.Fatalf("decision not locked: %+v", locked)
	}

	_, err = env.Engine.LockDecision(env.Ctx, engine.LockDecisionOptions{ActorID: u.ID, DecisionID: d.ID})
	var ce *engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError on relock, got %v", err)
	}
}

func TestLockRestrictedToCreatorOrOwner(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.couple(t)
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID:  a.ID,
		Title:    "New car",
		Category: "money",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	env.advance(24 * time.Hour)

	// The partner can read the decision but, being neither creator nor
	// owner, cannot finalize it.
	if _, err := env.Engine.GetDecision(env.Ctx, b.ID, d.ID); err != nil {
		t.Fatalf("partner read: %v", err)
	}
	if _, err := env.Engine.LockDecision(env.Ctx, engine.LockDecisionOptions{ActorID: b.ID, DecisionID: d.ID}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for partner lock, got %v", err)
	}

	locked, err := env.Engine.LockDecision(env.Ctx, engine.LockDecisionOptions{ActorID: a.ID, DecisionID: d.ID})
	if err != nil {
		t.Fatalf("owner lock: %v", err)
	}
	if locked.Status != "locked" {
		t.Fatalf("status = %s, want locked", locked.Status)
	}
}

func TestDecisionOwnerMustBeSelfOrPartner(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.couple(t)
	stranger := env.user(t, "c@example.com")

	if _, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID:  a.ID,
		Title:    "School choice",
		Category: "education",
		OwnerID:  stranger.ID,
	}); err == nil {
		t.Fatalf("expected rejection for stranger owner")
	} else {
		var ve *engine.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	}

	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID:  a.ID,
		Title:    "School choice",
		Category: "education",
		OwnerID:  b.ID,
	})
	if err != nil {
		t.Fatalf("partner owner should be allowed: %v", err)
	}
	if d.OwnerID != b.ID || d.CreatedBy != a.ID {
		t.Fatalf("unexpected ownership: %+v", d)
	}
}

func TestDecisionHoursBounds(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	for _, hours := range []int{-1, 169} {
		if _, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
			ActorID:         u.ID,
			Title:           "x",
			Category:        "misc",
			DiscussionHours: hours,
		}); err == nil {
			t.Fatalf("expected rejection for %d hours", hours)
		}
	}
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID:  u.ID,
		Title:    "x",
		Category: "misc",
	})
	if err != nil {
		t.Fatalf("default hours: %v", err)
	}
	want := env.now.Add(24 * time.Hour).Format(time.RFC3339)
	if d.DiscussionEndsAt != want {
		t.Fatalf("discussion_ends_at = %s, want %s", d.DiscussionEndsAt, want)
	}
}

func TestTopicNameNormalization(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	topic, err := env.Engine.AddTopic(env.Ctx, engine.AddTopicOptions{ActorID: u.ID, Topic: "  Budget Talks "})
	if err != nil {
		t.Fatalf("add topic: %v", err)
	}
	if topic.Topic != "budget talks" {
		t.Fatalf("stored topic = %q, want normalized", topic.Topic)
	}
	_, err = env.Engine.AddTopic(env.Ctx, engine.AddTopicOptions{ActorID: u.ID, Topic: "BUDGET TALKS"})
	var ce *engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError on duplicate, got %v", err)
	}
}

func TestTopicFreezeEscalation(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	topic, err := env.Engine.AddTopic(env.Ctx, engine.AddTopicOptions{ActorID: u.ID, Topic: "chores"})
	if err != nil {
		t.Fatalf("add topic: %v", err)
	}

	for i := 1; i <= 2; i++ {
		got, err := env.Engine.RecordDiscussion(env.Ctx, engine.RecordDiscussionOptions{ActorID: u.ID, TopicID: topic.ID})
		if err != nil {
			t.Fatalf("discussion %d: %v", i, err)
		}
		if got.Status != "active" || got.DiscussionCount != i {
			t.Fatalf("discussion %d: %+v", i, got)
		}
	}

	// Third discussion crosses the threshold and freezes for a day.
	got, err := env.Engine.RecordDiscussion(env.Ctx, engine.RecordDiscussionOptions{ActorID: u.ID, TopicID: topic.ID})
	if err != nil {
		t.Fatalf("third discussion: %v", err)
	}
	if got.Status != "frozen" || got.DiscussionCount != 3 || got.FreezeUntil == nil {
		t.Fatalf("expected auto freeze: %+v", got)
	}
	wantUntil := env.now.Add(24 * time.Hour).Format(time.RFC3339)
	if *got.FreezeUntil != wantUntil {
		t.Fatalf("freeze_until = %s, want %s", *got.FreezeUntil, wantUntil)
	}

	// Frozen topics reject further discussion and name the unlock instant.
	_, err = env.Engine.RecordDiscussion(env.Ctx, engine.RecordDiscussionOptions{ActorID: u.ID, TopicID: topic.ID})
	var le *engine.LockedError
	if !errors.As(err, &le) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if le.Status != "frozen" || le.Until != wantUntil {
		t.Fatalf("locked error: %+v", le)
	}

	// The freeze expires lazily; the counter keeps climbing and refreezes.
	env.advance(24 * time.Hour)
	fresh, err := env.Engine.GetTopic(env.Ctx, topic.ID)
	if err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if fresh.Status != "active" || fresh.FreezeUntil != nil {
		t.Fatalf("expected lazy expiry to read active: %+v", fresh)
	}
	got, err = env.Engine.RecordDiscussion(env.Ctx, engine.RecordDiscussionOptions{ActorID: u.ID, TopicID: topic.ID})
	if err != nil {
		t.Fatalf("post-expiry discussion: %v", err)
	}
	if got.Status != "frozen" || got.DiscussionCount != 4 {
		t.Fatalf("expected refreeze at count 4: %+v", got)
	}
}

func TestTopicListingScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "a@example.com")
	b := env.user(t, "b@example.com")
	if _, err := env.Engine.AddTopic(env.Ctx, engine.AddTopicOptions{ActorID: a.ID, Topic: "our budget"}); err != nil {
		t.Fatalf("add topic: %v", err)
	}
	if _, err := env.Engine.AddTopic(env.Ctx, engine.AddTopicOptions{ActorID: b.ID, Topic: "their secret"}); err != nil {
		t.Fatalf("add topic: %v", err)
	}

	list, err := env.Engine.ListTopics(env.Ctx, engine.ListTopicsOptions{ActorID: a.ID})
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected only own topics, got %d", len(list))
	}
	if list[0].Topic != "our budget" {
		t.Fatalf("another user's topic leaked into listing: %+v", list[0])
	}
}

func TestTopicRemovalRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.couple(t)
	stranger := env.user(t, "c@example.com")
	topic, err := env.Engine.AddTopic(env.Ctx, engine.AddTopicOptions{ActorID: a.ID, Topic: "vacation plans"})
	if err != nil {
		t.Fatalf("add topic: %v", err)
	}

	if err := env.Engine.RemoveTopic(env.Ctx, engine.RemoveTopicOptions{ActorID: stranger.ID, TopicID: topic.ID}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}
	if _, err := env.Engine.GetTopic(env.Ctx, topic.ID); err != nil {
		t.Fatalf("topic should survive a stranger's delete: %v", err)
	}

	// The owner's partner may remove it.
	if err := env.Engine.RemoveTopic(env.Ctx, engine.RemoveTopicOptions{ActorID: b.ID, TopicID: topic.ID}); err != nil {
		t.Fatalf("partner remove: %v", err)
	}
	if _, err := env.Engine.GetTopic(env.Ctx, topic.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected topic gone, got %v", err)
	}
}

func TestTopicManualStatus(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	topic, err := env.Engine.AddTopic(env.Ctx, engine.AddTopicOptions{ActorID: u.ID, Topic: "in-laws"})
	if err != nil {
		t.Fatalf("add topic: %v", err)
	}

	got, err := env.Engine.SetTopicStatus(env.Ctx, engine.SetTopicStatusOptions{
		ActorID: u.ID, TopicID: topic.ID, Status: "cooldown",
	})
	if err != nil {
		t.Fatalf("cooldown: %v", err)
	}
	wantUntil := env.now.Add(2 * time.Hour).Format(time.RFC3339)
	if got.Status != "cooldown" || got.FreezeUntil == nil || *got.FreezeUntil != wantUntil {
		t.Fatalf("cooldown window: %+v", got)
	}

	got, err = env.Engine.SetTopicStatus(env.Ctx, engine.SetTopicStatusOptions{
		ActorID: u.ID, TopicID: topic.ID, Status: "frozen", FreezeHours: 48,
	})
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	wantUntil = env.now.Add(48 * time.Hour).Format(time.RFC3339)
	if got.Status != "frozen" || *got.FreezeUntil != wantUntil {
		t.Fatalf("freeze window: %+v", got)
	}

	got, err = env.Engine.SetTopicStatus(env.Ctx, engine.SetTopicStatusOptions{
		ActorID: u.ID, TopicID: topic.ID, Status: "active",
	})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got.Status != "active" || got.FreezeUntil != nil {
		t.Fatalf("activate should clear freeze: %+v", got)
	}

	if _, err := env.Engine.SetTopicStatus(env.Ctx, engine.SetTopicStatusOptions{
		ActorID: u.ID, TopicID: topic.ID, Status: "frozen", FreezeHours: 200,
	}); err == nil {
		t.Fatalf("expected rejection for 200 freeze hours")
	}
}

func TestOverrideRateLimit(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID: u.ID, Title: "vacation", Category: "travel",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
			ActorID:       u.ID,
			Reason:        fmt.Sprintf("emergency %d", i),
			DecisionID:    d.ID,
			DurationHours: 1,
		}); err != nil {
			t.Fatalf("override %d: %v", i, err)
		}
	}

	// All five have expired, but quota counts creations, not active rows.
	env.advance(6 * time.Hour)
	_, err = env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "one more", DecisionID: d.ID,
	})
	var re *engine.RateLimitError
	if !errors.As(err, &re) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if re.Limit != 5 {
		t.Fatalf("limit = %d, want 5", re.Limit)
	}

	// Once the trailing day has passed the quota frees up.
	env.advance(19 * time.Hour)
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "fresh window", DecisionID: d.ID,
	}); err != nil {
		t.Fatalf("override after window: %v", err)
	}
}

func TestOverrideTargetValidation(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	stranger := env.user(t, "c@example.com")
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID: stranger.ID, Title: "theirs", Category: "misc",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}

	var ve *engine.ValidationError
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "no target",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError without target, got %v", err)
	}
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "two targets", DecisionID: d.ID, TaskID: "t1",
	}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError with both targets, got %v", err)
	}

	// A stranger's decision reads as missing, not forbidden.
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "not mine", DecisionID: d.ID,
	}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOverridePartnerNotification(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.couple(t)
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID: a.ID, Title: "car repair", Category: "money",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: a.ID, Reason: "car broke down", DecisionID: d.ID,
	}); err != nil {
		t.Fatalf("override: %v", err)
	}

	list, err := env.Engine.ListNotifications(env.Ctx, engine.ListNotificationsOptions{ActorID: b.ID})
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(list))
	}
	if list[0].Title != "Emergency Override Activated" || list[0].Type != "emergency" {
		t.Fatalf("notification: %+v", list[0])
	}

	// An unlinked user's override succeeds silently.
	solo := env.user(t, "solo@example.com")
	ds, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID: solo.ID, Title: "solo", Category: "misc",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: solo.ID, Reason: "nobody to tell", DecisionID: ds.ID,
	}); err != nil {
		t.Fatalf("unlinked override: %v", err)
	}
}

func TestOverrideListPartition(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID: u.ID, Title: "x", Category: "misc",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "short", DecisionID: d.ID, DurationHours: 1,
	}); err != nil {
		t.Fatalf("short override: %v", err)
	}
	env.advance(30 * time.Minute)
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "long", DecisionID: d.ID, DurationHours: 12,
	}); err != nil {
		t.Fatalf("long override: %v", err)
	}

	env.advance(1 * time.Hour)
	list, err := env.Engine.ListOverrides(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(list.All) != 2 || len(list.ActiveNow) != 1 {
		t.Fatalf("partition: all=%d active=%d", len(list.All), len(list.ActiveNow))
	}
	if list.ActiveNow[0].Reason != "long" {
		t.Fatalf("active override: %+v", list.ActiveNow[0])
	}
	for _, o := range list.All {
		if o.Reason == "short" && o.Status != "expired" {
			t.Fatalf("expired overlay missing: %+v", o)
		}
	}
}

func TestDecisionOverriddenOverlay(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	d, err := env.Engine.CreateDecision(env.Ctx, engine.CreateDecisionOptions{
		ActorID: u.ID, Title: "x", Category: "misc",
	})
	if err != nil {
		t.Fatalf("create decision: %v", err)
	}
	if _, err := env.Engine.ActivateOverride(env.Ctx, engine.ActivateOverrideOptions{
		ActorID: u.ID, Reason: "urgent", DecisionID: d.ID, DurationHours: 2,
	}); err != nil {
		t.Fatalf("override: %v", err)
	}

	got, err := env.Engine.GetDecision(env.Ctx, u.ID, d.ID)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if !got.Overridden {
		t.Fatalf("expected overridden overlay")
	}

	env.advance(2 * time.Hour)
	got, err = env.Engine.GetDecision(env.Ctx, u.ID, d.ID)
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if got.Overridden {
		t.Fatalf("overlay should clear at expiry")
	}
}

func TestRoleLockIsOneWay(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "a@example.com")
	role, err := env.Engine.CreateRole(env.Ctx, engine.CreateRoleOptions{ActorID: u.ID, Name: "finances"})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := env.Engine.LockRole(env.Ctx, engine.LockRoleOptions{ActorID: u.ID, RoleID: role.ID}); err != nil {
		t.Fatalf("lock role: %v", err)
	}
	var ce *engine.ConflictError
	if _, err := env.Engine.UpdateRole(env.Ctx, engine.UpdateRoleOptions{
		ActorID: u.ID, RoleID: role.ID, Name: "money",
	}); !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError updating locked role, got %v", err)
	}
	if err := env.Engine.DeleteRole(env.Ctx, u.ID, role.ID); !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError deleting locked role, got %v", err)
	}
}

func TestPartnerLinking(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.couple(t)
	ua, err := env.Engine.GetUser(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	ub, err := env.Engine.GetUser(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("get b: %v", err)
	}
	if ua.PartnerID == nil || *ua.PartnerID != b.ID || ub.PartnerID == nil || *ub.PartnerID != a.ID {
		t.Fatalf("link incomplete: a=%+v b=%+v", ua, ub)
	}

	// Linked users cannot invite again.
	if _, err := env.Engine.InvitePartner(env.Ctx, engine.InvitePartnerOptions{
		ActorID: a.ID, Email: "c@example.com",
	}); err == nil {
		t.Fatalf("expected conflict inviting while linked")
	}
}
