package engine

import (
	"context"
	"database/sql"
	"strconv"

	"roadwork/internal/consultation"
	"roadwork/internal/domain"
	"roadwork/internal/events"
	"roadwork/internal/repo"
	"roadwork/internal/schedule"
	"roadwork/internal/workflow"
)

// Board is the schedule view of one activity.
type Board struct {
	Activity      domain.Activity        `json:"activity"`
	Needs         []schedule.NeedMarkers `json:"needs"`
	DueDate       schedule.DueDate       `json:"due_date"`
	StatusOptions []workflow.Option      `json:"status_options"`
}

// Board classifies every assigned need against the primary one, resolves
// the due date and lists which statuses may follow the current one.
func (e Engine) Board(ctx context.Context, activityID string) (Board, error) {
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return Board{}, err
	}
	needs, err := e.Repo.ListNeeds(ctx, repo.NeedFilter{ActivityID: activityID, Relation: string(domain.RelationAssigned)})
	if err != nil {
		return Board{}, err
	}
	markers := schedule.EvaluateActivity(a, needs)
	for _, m := range markers {
		if !m.Primary {
			e.Metrics.ObserveTimeFactor(strconv.Itoa(int(m.TimeFactor)))
		}
	}
	due := e.Config.DueDatePolicy().Resolve(a, e.now())
	e.Metrics.ObserveDueBand(string(due.Band))
	return Board{
		Activity:      a,
		Needs:         markers,
		DueDate:       due,
		StatusOptions: workflow.Options(workflow.Status(a.Status)),
	}, nil
}

// Consultations returns the inputs of phase (the current status when empty)
// and the caller's own input for the current status.
func (e Engine) Consultations(ctx context.Context, activityID, phase, userID string) (consultation.View, error) {
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return consultation.View{}, err
	}
	review := workflow.Status(a.Status)
	if phase != "" {
		st, ok := workflow.Parse(phase)
		if !ok || !workflow.IsActivityStatus(st) {
			return consultation.View{}, invalid("phase", "unknown phase %q", phase)
		}
		review = st
	}
	inputs, err := e.Repo.ListConsultationInputs(ctx, activityID)
	if err != nil {
		return consultation.View{}, err
	}
	return consultation.Load(inputs, review, workflow.Status(a.Status), userID), nil
}

// SubmitConsultation creates or updates the caller's input for the
// activity's current status.
func (e Engine) SubmitConsultation(ctx context.Context, activityID, userID string, d consultation.Draft) (domain.ConsultationInput, error) {
	var out domain.ConsultationInput
	err := e.withinTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		a, err := r.GetActivity(ctx, activityID)
		if err != nil {
			return err
		}
		tracker := consultation.Tracker{
			Store:  r,
			Phases: e.Config.FeedbackPhases(),
			NewID:  newID,
			Now:    e.stamp,
		}
		in, created, err := tracker.Submit(ctx, a, userID, d)
		if err != nil {
			return err
		}
		out = in
		typ := events.ConsultationUpdated
		if created {
			typ = events.ConsultationCreated
		}
		return e.Events.Append(ctx, tx, events.Record{
			Type: typ, ActivityID: activityID, EntityKind: "consultation", EntityID: in.ID, ActorID: userID,
			Payload: events.Payload{"phase": in.FeedbackPhase, "decline": in.Decline, "valuation": in.Valuation},
		})
	})
	if err != nil {
		return domain.ConsultationInput{}, err
	}
	return out, nil
}
