package server

import (
	"roadwork/internal/consultation"
	"roadwork/internal/domain"
)

// Request payloads

type CreateNeedRequest struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name" minLength:"1"`
	OrdererID       string `json:"orderer_id,omitempty"`
	OrgUnit         string `json:"org_unit,omitempty"`
	FinishEarlyTo   string `json:"finish_early_to" example:"2025-04-01"`
	FinishOptimumTo string `json:"finish_optimum_to" example:"2025-05-01"`
	FinishLateTo    string `json:"finish_late_to" example:"2025-06-01"`
}

// UpdateNeedRequest replaces the relation of a need. Name and dates are
// only changed when present.
type UpdateNeedRequest struct {
	Name                 string `json:"name,omitempty"`
	OrgUnit              string `json:"org_unit,omitempty"`
	FinishEarlyTo        string `json:"finish_early_to,omitempty"`
	FinishOptimumTo      string `json:"finish_optimum_to,omitempty"`
	FinishLateTo         string `json:"finish_late_to,omitempty"`
	IsPrimary            bool   `json:"is_primary,omitempty"`
	ActivityRelationType string `json:"activity_relation_type" enum:"requirement,nonassigned,assigned,registered"`
	ActivityID           string `json:"activity_id,omitempty"`
}

func (r UpdateNeedRequest) need(id string) domain.Need {
	return domain.Need{
		ID:                   id,
		Name:                 r.Name,
		OrgUnit:              r.OrgUnit,
		FinishEarlyTo:        r.FinishEarlyTo,
		FinishOptimumTo:      r.FinishOptimumTo,
		FinishLateTo:         r.FinishLateTo,
		IsPrimary:            r.IsPrimary,
		ActivityRelationType: domain.RelationType(r.ActivityRelationType),
		ActivityID:           r.ActivityID,
	}
}

type CreateActivityRequest struct {
	ID                  string   `json:"id,omitempty"`
	Name                string   `json:"name" minLength:"1"`
	StartOfConstruction *string  `json:"start_of_construction,omitempty"`
	EndOfConstruction   *string  `json:"end_of_construction,omitempty"`
	DateConsultEnd      *string  `json:"date_consult_end,omitempty"`
	DateReportEnd       *string  `json:"date_report_end,omitempty"`
	DateInfoEnd         *string  `json:"date_info_end,omitempty"`
	IsPrivate           bool     `json:"is_private,omitempty"`
	NeedIDs             []string `json:"need_ids,omitempty"`
	PrimaryNeedID       string   `json:"primary_need_id,omitempty"`
}

// UpdateActivityRequest leaves absent fields unchanged. An empty string
// clears a date.
type UpdateActivityRequest struct {
	Name                *string `json:"name,omitempty"`
	StartOfConstruction *string `json:"start_of_construction,omitempty"`
	EndOfConstruction   *string `json:"end_of_construction,omitempty"`
	DateConsultEnd      *string `json:"date_consult_end,omitempty"`
	DateReportEnd       *string `json:"date_report_end,omitempty"`
	DateInfoEnd         *string `json:"date_info_end,omitempty"`
	IsPrivate           *bool   `json:"is_private,omitempty"`
	IsEditingAllowed    *bool   `json:"is_editing_allowed,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"review,inconsult,verified,reporting,coordinated,suspended"`
}

type SubmitConsultationRequest struct {
	OrdererFeedback string `json:"orderer_feedback,omitempty"`
	ManagerFeedback string `json:"manager_feedback,omitempty"`
	Decline         bool   `json:"decline,omitempty"`
	Valuation       int    `json:"valuation,omitempty" minimum:"0"`
}

func (r SubmitConsultationRequest) draft() consultation.Draft {
	return consultation.Draft{
		OrdererFeedback: r.OrdererFeedback,
		ManagerFeedback: r.ManagerFeedback,
		Decline:         r.Decline,
		Valuation:       r.Valuation,
	}
}

// Responses

type NeedList struct {
	Items []domain.Need `json:"items"`
}

type ActivityList struct {
	Items []domain.Activity `json:"items"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
