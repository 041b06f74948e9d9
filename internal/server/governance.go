package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"pactline/internal/domain"
	"pactline/internal/engine"
)

func registerUsers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		u, err := e.CreateUser(ctx, engine.CreateUserOptions{
			Email: input.Body.Email,
			Name:  input.Body.Name,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerPartner(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "invite-partner",
		Method:        http.MethodPost,
		Path:          "/partner/invite",
		Summary:       "Invite partner",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body InvitePartnerRequest `json:"body"`
	}) (*struct {
		Body struct {
			Token string `json:"token"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		token, err := e.InvitePartner(ctx, engine.InvitePartnerOptions{
			ActorID: userID,
			Email:   input.Body.Email,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Token string `json:"token"`
			} `json:"body"`
		}{}
		out.Body.Token = token
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-invite",
		Method:      http.MethodPost,
		Path:        "/partner/accept",
		Summary:     "Accept partner invite",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body AcceptInviteRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.AcceptInvite(ctx, engine.AcceptInviteOptions{
			ActorID: userID,
			Token:   input.Body.Token,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerDecisions(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-decision",
		Method:        http.MethodPost,
		Path:          "/decisions",
		Summary:       "Create decision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateDecisionRequest `json:"body"`
	}) (*struct {
		Body domain.Decision `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDecision(ctx, engine.CreateDecisionOptions{
			ActorID:         userID,
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			Category:        input.Body.Category,
			OwnerID:         input.Body.OwnerID,
			RoleID:          input.Body.RoleID,
			ChildID:         input.Body.ChildID,
			DiscussionHours: input.Body.DiscussionHours,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decision `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-decisions",
		Method:      http.MethodGet,
		Path:        "/decisions",
		Summary:     "List decisions",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"active,locked"`
		Category string `query:"category"`
	}) (*struct {
		Body []domain.Decision `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := e.ListDecisions(ctx, engine.ListDecisionsOptions{
			ActorID:  userID,
			Status:   input.Status,
			Category: input.Category,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Decision `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-decision",
		Method:      http.MethodGet,
		Path:        "/decisions/{decision_id}",
		Summary:     "Get decision",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
	}) (*struct {
		Body domain.Decision `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.GetDecision(ctx, userID, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decision `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lock-decision",
		Method:      http.MethodPost,
		Path:        "/decisions/{decision_id}/lock",
		Summary:     "Lock decision",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
	}) (*struct {
		Body domain.Decision `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.LockDecision(ctx, engine.LockDecisionOptions{
			ActorID:    userID,
			DecisionID: input.DecisionID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Decision `json:"body"`
		}{Body: d}, nil
	})
}

func registerTopics(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-topic",
		Method:        http.MethodPost,
		Path:          "/topics",
		Summary:       "Track topic",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body AddTopicRequest `json:"body"`
	}) (*struct {
		Body domain.Topic `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddTopic(ctx, engine.AddTopicOptions{
			ActorID: userID,
			Topic:   input.Body.Topic,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Topic `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-topics",
		Method:      http.MethodGet,
		Path:        "/topics",
		Summary:     "List topics",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,frozen,cooldown"`
	}) (*struct {
		Body []domain.Topic `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := e.ListTopics(ctx, engine.ListTopicsOptions{ActorID: userID, Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Topic `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-discussion",
		Method:      http.MethodPost,
		Path:        "/topics/{topic_id}/discussions",
		Summary:     "Record discussion",
		Errors:      []int{http.StatusNotFound, http.StatusLocked, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TopicID string `path:"topic_id"`
	}) (*struct {
		Body domain.Topic `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RecordDiscussion(ctx, engine.RecordDiscussionOptions{
			ActorID: userID,
			TopicID: input.TopicID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Topic `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-topic-status",
		Method:      http.MethodPut,
		Path:        "/topics/{topic_id}/status",
		Summary:     "Set topic status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TopicID string                `path:"topic_id"`
		Body    SetTopicStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Topic `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTopicStatus(ctx, engine.SetTopicStatusOptions{
			ActorID:     userID,
			TopicID:     input.TopicID,
			Status:      input.Body.Status,
			FreezeHours: input.Body.FreezeHours,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Topic `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-topic",
		Method:        http.MethodDelete,
		Path:          "/topics/{topic_id}",
		Summary:       "Remove topic",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		TopicID string `path:"topic_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := e.RemoveTopic(ctx, engine.RemoveTopicOptions{
			ActorID: userID,
			TopicID: input.TopicID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return nil, nil
	})
}

func registerOverrides(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "activate-override",
		Method:        http.MethodPost,
		Path:          "/overrides",
		Summary:       "Activate emergency override",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body ActivateOverrideRequest `json:"body"`
	}) (*struct {
		Body domain.Override `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.ActivateOverride(ctx, engine.ActivateOverrideOptions{
			ActorID:       userID,
			Reason:        input.Body.Reason,
			DecisionID:    input.Body.DecisionID,
			TaskID:        input.Body.TaskID,
			DurationHours: input.Body.DurationHours,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Override `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overrides",
		Method:      http.MethodGet,
		Path:        "/overrides",
		Summary:     "List recent overrides",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			All       []domain.Override `json:"all"`
			ActiveNow []domain.Override `json:"active_now"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := e.ListOverrides(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				All       []domain.Override `json:"all"`
				ActiveNow []domain.Override `json:"active_now"`
			} `json:"body"`
		}{}
		out.Body.All = list.All
		out.Body.ActiveNow = list.ActiveNow
		return out, nil
	})
}
