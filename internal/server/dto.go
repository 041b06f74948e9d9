package server

// Request payloads

type CreateUserRequest struct {
	Email string `json:"email" format:"email"`
	Name  string `json:"name,omitempty"`
}

type InvitePartnerRequest struct {
	Email string `json:"email" format:"email"`
}

type AcceptInviteRequest struct {
	Token string `json:"token"`
}

type CreateDecisionRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category"`
	OwnerID         string `json:"owner_id,omitempty"`
	RoleID          string `json:"role_id,omitempty"`
	ChildID         string `json:"child_id,omitempty"`
	DiscussionHours int    `json:"discussion_hours,omitempty" minimum:"1" maximum:"168"`
}

type AddTopicRequest struct {
	Topic string `json:"topic"`
}

type SetTopicStatusRequest struct {
	Status      string `json:"status" enum:"active,frozen,cooldown"`
	FreezeHours int    `json:"freeze_hours,omitempty" minimum:"1" maximum:"168"`
}

type ActivateOverrideRequest struct {
	Reason        string `json:"reason"`
	DecisionID    string `json:"decision_id,omitempty"`
	TaskID        string `json:"task_id,omitempty"`
	DurationHours int    `json:"duration_hours,omitempty" minimum:"1" maximum:"24"`
}

type CreateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AddChildRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date,omitempty" format:"date-time"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty" enum:"low,medium,high"`
	AssignedTo  string `json:"assigned_to,omitempty"`
	RoleID      string `json:"role_id,omitempty"`
	DueDate     string `json:"due_date,omitempty" format:"date-time"`
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status" enum:"pending,in_progress,done"`
}

type AddLedgerEntryRequest struct {
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	Amount      float64 `json:"amount" exclusiveMinimum:"0"`
	PaidBy      string  `json:"paid_by,omitempty"`
}
