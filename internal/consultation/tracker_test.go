package consultation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwork/internal/domain"
	"roadwork/internal/workflow"
)

type memStore struct {
	inputs []domain.ConsultationInput
}

func (m *memStore) ListConsultationInputs(_ context.Context, activityID string) ([]domain.ConsultationInput, error) {
	var out []domain.ConsultationInput
	for _, in := range m.inputs {
		if in.ActivityID == activityID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (m *memStore) InsertConsultationInput(_ context.Context, in domain.ConsultationInput) error {
	m.inputs = append(m.inputs, in)
	return nil
}

func (m *memStore) UpdateConsultationInput(_ context.Context, in domain.ConsultationInput) error {
	for i := range m.inputs {
		if m.inputs[i].ID == in.ID {
			m.inputs[i] = in
			return nil
		}
	}
	return fmt.Errorf("missing %s", in.ID)
}

func tracker(store Store) Tracker {
	n := 0
	return Tracker{
		Store:  store,
		Phases: Phases{workflow.StatusInConsult, workflow.StatusReporting},
		NewID: func() string {
			n++
			return fmt.Sprintf("in-%d", n)
		},
		Now: func() string { return "2025-03-01T10:00:00Z" },
	}
}

func TestLoad(t *testing.T) {
	inputs := []domain.ConsultationInput{
		{ID: "1", InputBy: "u1", FeedbackPhase: "inconsult"},
		{ID: "2", InputBy: "u2", FeedbackPhase: "inconsult"},
		{ID: "3", InputBy: "u1", FeedbackPhase: "reporting"},
	}

	v := Load(inputs, workflow.StatusInConsult, workflow.StatusReporting, "u1")
	assert.Len(t, v.Listed, 2)
	require.NotNil(t, v.Own)
	assert.Equal(t, "3", v.Own.ID)

	v = Load(inputs, workflow.StatusReporting, workflow.StatusReporting, "u2")
	assert.Len(t, v.Listed, 1)
	assert.Nil(t, v.Own)
}

func TestSetDecline(t *testing.T) {
	in := domain.ConsultationInput{Valuation: 4, OrdererFeedback: "fine", ManagerFeedback: "ok"}
	SetDecline(&in, true)
	assert.True(t, in.Decline)
	assert.Equal(t, 0, in.Valuation)
	assert.Empty(t, in.OrdererFeedback)
	assert.Equal(t, "ok", in.ManagerFeedback)

	SetDecline(&in, false)
	assert.False(t, in.Decline)
}

func TestSubmitCreatesThenUpdates(t *testing.T) {
	store := &memStore{}
	tr := tracker(store)
	act := domain.Activity{ID: "act", Status: "inconsult"}

	in, created, err := tr.Submit(context.Background(), act, "u1", Draft{OrdererFeedback: "ok", Valuation: 3})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "inconsult", in.FeedbackPhase)

	in, created, err = tr.Submit(context.Background(), act, "u1", Draft{OrdererFeedback: "no", Decline: true, Valuation: 5})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "in-1", in.ID)
	assert.Equal(t, 0, in.Valuation)
	assert.Empty(t, in.OrdererFeedback)
	require.Len(t, store.inputs, 1)

	act.Status = "reporting"
	in, created, err = tr.Submit(context.Background(), act, "u1", Draft{Valuation: 2})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "in-2", in.ID)
	require.Len(t, store.inputs, 2)
	assert.Equal(t, "inconsult", store.inputs[0].FeedbackPhase)
}

func TestSubmitRejectsClosedPhase(t *testing.T) {
	tr := tracker(&memStore{})
	_, _, err := tr.Submit(context.Background(), domain.Activity{ID: "act", Status: "verified"}, "u1", Draft{})
	assert.ErrorIs(t, err, ErrPhaseClosed)
}
