package schedule

import (
	"time"

	"roadwork/internal/domain"
	"roadwork/internal/workflow"
)

// Band is the urgency of a due date.
type Band string

const (
	BandSafe    Band = "safe"
	BandNear    Band = "near"
	BandOverdue Band = "overdue"
)

const day = 24 * time.Hour

// DueDatePolicy holds the offsets used to resolve and band due dates.
type DueDatePolicy struct {
	SoftDeadline time.Duration
	NearWindow   time.Duration
	OverdueGrace time.Duration
}

// DefaultPolicy is seven days of soft deadline, amber three days before the
// due date, red one day after it.
func DefaultPolicy() DueDatePolicy {
	return DueDatePolicy{
		SoftDeadline: 7 * day,
		NearWindow:   3 * day,
		OverdueGrace: 1 * day,
	}
}

// DueDate is a resolved deadline. Soft is set when no phase field applied
// and the rolling deadline was used.
type DueDate struct {
	At   time.Time `json:"at"`
	Soft bool      `json:"soft"`
	Band Band      `json:"band"`
}

// Resolve returns the next deadline for activity a at now.
func (p DueDatePolicy) Resolve(a domain.Activity, now time.Time) DueDate {
	var field *string
	switch workflow.Status(a.Status) {
	case workflow.StatusInConsult, workflow.StatusVerified:
		field = a.DateConsultEnd
	case workflow.StatusReporting:
		field = a.DateReportEnd
	case workflow.StatusCoordinated:
		field = a.DateInfoEnd
	}
	if t, ok := ParseOptionalDate(field); ok {
		return DueDate{At: t, Band: p.Band(&t, now)}
	}
	soft := now.Add(p.SoftDeadline)
	return DueDate{At: soft, Soft: true, Band: p.Band(&soft, now)}
}

// Band buckets the time left until due. A nil due date is safe.
func (p DueDatePolicy) Band(due *time.Time, now time.Time) Band {
	if due == nil {
		return BandSafe
	}
	if !now.Before(due.Add(p.OverdueGrace)) {
		return BandOverdue
	}
	if !now.Before(due.Add(-p.NearWindow)) {
		return BandNear
	}
	return BandSafe
}
