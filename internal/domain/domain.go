package domain

type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name,omitempty"`
	PartnerID *string `json:"partner_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Role struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	IsLocked    bool    `json:"is_locked"`
	LockedAt    *string `json:"locked_at,omitempty" format:"date-time"`
	LockedBy    *string `json:"locked_by,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Child struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Parent1ID string  `json:"parent1_id"`
	Parent2ID *string `json:"parent2_id,omitempty"`
	BirthDate *string `json:"birth_date,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority" enum:"low,medium,high"`
	Status      string  `json:"status" enum:"pending,in_progress,done"`
	AssignedTo  string  `json:"assigned_to"`
	CreatedBy   string  `json:"created_by"`
	RoleID      *string `json:"role_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Decision struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Category         string  `json:"category"`
	Status           string  `json:"status" enum:"active,locked"`
	OwnerID          string  `json:"owner_id"`
	CreatedBy        string  `json:"created_by"`
	RoleID           *string `json:"role_id,omitempty"`
	ChildID          *string `json:"child_id,omitempty"`
	DiscussionEndsAt string  `json:"discussion_ends_at" format:"date-time"`
	LockedAt         *string `json:"locked_at,omitempty" format:"date-time"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	// Overridden is derived at read time from unexpired emergency
	// overrides; it is never persisted.
	Overridden bool `json:"overridden"`
}

// Topic is a governed conversation subject (communication control row).
// Status is the stored value; callers derive the effective status from
// FreezeUntil and the current time.
type Topic struct {
	ID              string  `json:"id"`
	Topic           string  `json:"topic"`
	Status          string  `json:"status" enum:"active,frozen,cooldown"`
	LastDiscussed   string  `json:"last_discussed" format:"date-time"`
	DiscussionCount int     `json:"discussion_count"`
	FreezeUntil     *string `json:"freeze_until,omitempty" format:"date-time"`
	UserID          *string `json:"user_id,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type Override struct {
	ID         string  `json:"id"`
	Reason     string  `json:"reason"`
	UserID     string  `json:"user_id"`
	DecisionID *string `json:"decision_id,omitempty"`
	TaskID     *string `json:"task_id,omitempty"`
	Status     string  `json:"status" enum:"active,expired"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	ExpiresAt  string  `json:"expires_at" format:"date-time"`
}

type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	DataJSON  string `json:"data_json,omitempty"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type LedgerEntry struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	PaidBy      string  `json:"paid_by"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
