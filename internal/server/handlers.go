package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"roadwork/internal/consultation"
	"roadwork/internal/domain"
	"roadwork/internal/engine"
	"roadwork/internal/repo"
)

func registerNeeds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-need",
		Method:        http.MethodPost,
		Path:          "/needs",
		Summary:       "Create a need",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateNeedRequest `json:"body"`
	}) (*output[domain.Need], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		n, err := e.CreateNeed(ctx, engine.NeedCreateOptions{
			ID:              input.Body.ID,
			Name:            input.Body.Name,
			OrdererID:       input.Body.OrdererID,
			OrgUnit:         input.Body.OrgUnit,
			FinishEarlyTo:   input.Body.FinishEarlyTo,
			FinishOptimumTo: input.Body.FinishOptimumTo,
			FinishLateTo:    input.Body.FinishLateTo,
			ActorID:         userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-needs",
		Method:      http.MethodGet,
		Path:        "/needs",
		Summary:     "List needs",
	}, func(ctx context.Context, input *struct {
		Relation   string `query:"relation" enum:"requirement,nonassigned,assigned,registered"`
		ActivityID string `query:"activity_id"`
		OrgUnit    string `query:"org_unit"`
	}) (*output[NeedList], error) {
		needs, err := e.ListNeeds(ctx, repo.NeedFilter{
			Relation:   input.Relation,
			ActivityID: input.ActivityID,
			OrgUnit:    input.OrgUnit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(NeedList{Items: nonNil(needs)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-need",
		Method:      http.MethodGet,
		Path:        "/needs/{id}",
		Summary:     "Get a need",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[domain.Need], error) {
		n, err := e.GetNeed(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-need",
		Method:      http.MethodPut,
		Path:        "/needs/{id}",
		Summary:     "Update a need and its activity relation",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateNeedRequest `json:"body"`
	}) (*output[domain.Need], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		n, err := e.UpdateNeed(ctx, input.Body.need(input.ID), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "register-need",
		Method:      http.MethodPost,
		Path:        "/needs/{id}/register",
		Summary:     "Remove a need from its activity and mark it registered",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[domain.Need], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		n, err := e.RegisterNeed(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(n), nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Create an activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateActivityRequest `json:"body"`
	}) (*output[domain.Activity], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		b := input.Body
		a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{
			ID:                  b.ID,
			Name:                b.Name,
			StartOfConstruction: b.StartOfConstruction,
			EndOfConstruction:   b.EndOfConstruction,
			DateConsultEnd:      b.DateConsultEnd,
			DateReportEnd:       b.DateReportEnd,
			DateInfoEnd:         b.DateInfoEnd,
			IsPrivate:           b.IsPrivate,
			NeedIDs:             b.NeedIDs,
			PrimaryNeedID:       b.PrimaryNeedID,
			ActorID:             userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"review,inconsult,verified,reporting,coordinated,suspended"`
	}) (*output[ActivityList], error) {
		items, err := e.ListActivities(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ActivityList{Items: nonNil(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{id}",
		Summary:     "Get an activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[domain.Activity], error) {
		a, err := e.GetActivity(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-activity",
		Method:      http.MethodPatch,
		Path:        "/activities/{id}",
		Summary:     "Update construction window and phase deadlines",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID    string                `path:"id"`
		Force bool                  `query:"force"`
		Body  UpdateActivityRequest `json:"body"`
	}) (*output[domain.Activity], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		b := input.Body
		a, err := e.UpdateActivity(ctx, engine.ActivityUpdateOptions{
			ID:                  input.ID,
			Name:                b.Name,
			StartOfConstruction: b.StartOfConstruction,
			EndOfConstruction:   b.EndOfConstruction,
			DateConsultEnd:      b.DateConsultEnd,
			DateReportEnd:       b.DateReportEnd,
			DateInfoEnd:         b.DateInfoEnd,
			IsPrivate:           b.IsPrivate,
			IsEditingAllowed:    b.IsEditingAllowed,
			ActorID:             userID,
			Force:               input.Force,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-activity-status",
		Method:      http.MethodPatch,
		Path:        "/activities/{id}/status",
		Summary:     "Move an activity to another status",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID    string           `path:"id"`
		Force bool             `query:"force"`
		Body  SetStatusRequest `json:"body"`
	}) (*output[domain.Activity], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		a, err := e.UpdateActivityStatus(ctx, input.ID, input.Body.Status, userID, input.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activity-needs",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/needs",
		Summary:     "List the needs assigned to an activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[NeedList], error) {
		needs, err := e.ActivityNeeds(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(NeedList{Items: nonNil(needs)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity-board",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/board",
		Summary:     "Schedule markers, due date and status options of an activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*output[engine.Board], error) {
		b, err := e.Board(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		b.Needs = nonNil(b.Needs)
		return reply(b), nil
	})
}

func registerConsultations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-consultations",
		Method:      http.MethodGet,
		Path:        "/activities/{id}/consultations",
		Summary:     "List consultation inputs of a phase",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Phase string `query:"phase" enum:"review,inconsult,verified,reporting,coordinated,suspended"`
	}) (*output[consultation.View], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		view, err := e.Consultations(ctx, input.ID, input.Phase, userID)
		if err != nil {
			return nil, handleError(err)
		}
		view.Listed = nonNil(view.Listed)
		return reply(view), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-consultation",
		Method:      http.MethodPost,
		Path:        "/activities/{id}/consultations",
		Summary:     "Create or update the caller's feedback for the current phase",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body SubmitConsultationRequest `json:"body"`
	}) (*output[domain.ConsultationInput], error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		in, err := e.SubmitConsultation(ctx, input.ID, userID, input.Body.draft())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(in), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ActivityID string `query:"activity_id"`
		Type       string `query:"type"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*output[paginatedEvents], error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, limit+1, cursorID, input.ActivityID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})
}
