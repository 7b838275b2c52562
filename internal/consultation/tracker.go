// Package consultation keeps one editable feedback record per user and
// phase of an activity.
package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roadwork/internal/domain"
	"roadwork/internal/workflow"
)

var (
	ErrPhaseClosed  = errors.New("activity status does not accept feedback")
	ErrInvalidDraft = errors.New("invalid consultation input")
)

// View is what a user sees for an activity: every input of the reviewed
// phase, and their own input for the active phase if any.
type View struct {
	Listed []domain.ConsultationInput `json:"listed"`
	Own    *domain.ConsultationInput  `json:"own,omitempty"`
}

// Load filters inputs for display. Inputs from other phases stay stored but
// are not listed or editable.
func Load(inputs []domain.ConsultationInput, reviewPhase, activePhase workflow.Status, userID string) View {
	v := View{Listed: []domain.ConsultationInput{}}
	for _, in := range inputs {
		if in.FeedbackPhase == string(reviewPhase) {
			v.Listed = append(v.Listed, in)
		}
		if v.Own == nil && userID != "" && in.InputBy == userID && in.FeedbackPhase == string(activePhase) {
			own := in
			v.Own = &own
		}
	}
	return v
}

// SetDecline sets the decline flag. Declining zeroes the valuation and
// clears the orderer feedback.
func SetDecline(in *domain.ConsultationInput, decline bool) {
	in.Decline = decline
	if decline {
		in.Valuation = 0
		in.OrdererFeedback = ""
	}
}

// Phases is the set of activity statuses in which feedback is collected.
type Phases []workflow.Status

func (p Phases) Accepts(s workflow.Status) bool {
	for _, ph := range p {
		if ph == s {
			return true
		}
	}
	return false
}

// Store persists consultation inputs.
type Store interface {
	ListConsultationInputs(ctx context.Context, activityID string) ([]domain.ConsultationInput, error)
	InsertConsultationInput(ctx context.Context, in domain.ConsultationInput) error
	UpdateConsultationInput(ctx context.Context, in domain.ConsultationInput) error
}

// Draft is the editable part of an input.
type Draft struct {
	OrdererFeedback string
	ManagerFeedback string
	Decline         bool
	Valuation       int
}

// Tracker applies submissions against a Store.
type Tracker struct {
	Store  Store
	Phases Phases
	NewID  func() string
	Now    func() string
}

// Submit creates the user's input for the activity's current status, or
// updates it when one already exists. created reports which happened.
func (t Tracker) Submit(ctx context.Context, activity domain.Activity, userID string, d Draft) (in domain.ConsultationInput, created bool, err error) {
	phase := workflow.Status(activity.Status)
	if !t.Phases.Accepts(phase) {
		return in, false, fmt.Errorf("%w: %s", ErrPhaseClosed, phase)
	}
	if strings.TrimSpace(userID) == "" {
		return in, false, fmt.Errorf("%w: user is required", ErrInvalidDraft)
	}
	if d.Valuation < 0 {
		return in, false, fmt.Errorf("%w: valuation must not be negative", ErrInvalidDraft)
	}
	inputs, err := t.Store.ListConsultationInputs(ctx, activity.ID)
	if err != nil {
		return in, false, err
	}
	view := Load(inputs, phase, phase, userID)
	if view.Own != nil {
		in = *view.Own
	} else {
		in = domain.ConsultationInput{
			ID:            t.NewID(),
			ActivityID:    activity.ID,
			InputBy:       userID,
			FeedbackPhase: string(phase),
		}
		created = true
	}
	in.OrdererFeedback = d.OrdererFeedback
	in.ManagerFeedback = d.ManagerFeedback
	in.Valuation = d.Valuation
	SetDecline(&in, d.Decline)
	in.LastEdit = t.Now()

	if created {
		err = t.Store.InsertConsultationInput(ctx, in)
	} else {
		err = t.Store.UpdateConsultationInput(ctx, in)
	}
	if err != nil {
		return domain.ConsultationInput{}, false, err
	}
	return in, created, nil
}
