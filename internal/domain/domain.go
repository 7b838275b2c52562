package domain

// RelationType describes how a need relates to an activity.
type RelationType string

const (
	RelationRequirement RelationType = "requirement"
	RelationNonAssigned RelationType = "nonassigned"
	RelationAssigned    RelationType = "assigned"
	RelationRegistered  RelationType = "registered"
)

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	OrgUnit   string `json:"org_unit,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Need is a desired construction window. Finish dates are ISO dates
// (2006-01-02) or RFC3339 timestamps.
type Need struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	OrdererID            string       `json:"orderer_id,omitempty"`
	OrgUnit              string       `json:"org_unit,omitempty"`
	FinishEarlyTo        string       `json:"finish_early_to"`
	FinishOptimumTo      string       `json:"finish_optimum_to"`
	FinishLateTo         string       `json:"finish_late_to"`
	IsPrimary            bool         `json:"is_primary"`
	ActivityRelationType RelationType `json:"activity_relation_type" enum:"requirement,nonassigned,assigned,registered"`
	ActivityID           string       `json:"activity_id"`
	CreatedAt            string       `json:"created_at" format:"date-time"`
	UpdatedAt            string       `json:"updated_at" format:"date-time"`
}

type Activity struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Status              string   `json:"status" enum:"review,inconsult,verified,reporting,coordinated,suspended"`
	StartOfConstruction *string  `json:"start_of_construction,omitempty"`
	EndOfConstruction   *string  `json:"end_of_construction,omitempty"`
	DateConsultEnd      *string  `json:"date_consult_end,omitempty"`
	DateReportEnd       *string  `json:"date_report_end,omitempty"`
	DateInfoEnd         *string  `json:"date_info_end,omitempty"`
	NeedIDs             []string `json:"need_ids,omitempty"`
	IsPrivate           bool     `json:"is_private"`
	IsEditingAllowed    bool     `json:"is_editing_allowed"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

// ConsultationInput is one user's feedback on an activity during a phase.
type ConsultationInput struct {
	ID              string `json:"id"`
	ActivityID      string `json:"activity_id"`
	InputBy         string `json:"input_by"`
	FeedbackPhase   string `json:"feedback_phase"`
	OrdererFeedback string `json:"orderer_feedback,omitempty"`
	ManagerFeedback string `json:"manager_feedback,omitempty"`
	Decline         bool   `json:"decline"`
	Valuation       int    `json:"valuation"`
	LastEdit        string `json:"last_edit" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ActivityID string `json:"activity_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
