package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"roadwork/internal/domain"
	"roadwork/internal/events"
	"roadwork/internal/logging"
	"roadwork/internal/repo"
	"roadwork/internal/workflow"
)

type ActivityCreateOptions struct {
	ID                  string
	Name                string
	StartOfConstruction *string
	EndOfConstruction   *string
	DateConsultEnd      *string
	DateReportEnd       *string
	DateInfoEnd         *string
	IsPrivate           bool
	NeedIDs             []string
	// PrimaryNeedID picks the primary among NeedIDs; the first one is used
	// when empty.
	PrimaryNeedID string
	ActorID       string
}

func (o ActivityCreateOptions) dates() map[string]*string {
	return map[string]*string{
		"start_of_construction": o.StartOfConstruction,
		"end_of_construction":   o.EndOfConstruction,
		"date_consult_end":      o.DateConsultEnd,
		"date_report_end":       o.DateReportEnd,
		"date_info_end":         o.DateInfoEnd,
	}
}

// CreateActivity stores a new activity in review and assigns the given
// needs to it.
func (e Engine) CreateActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Activity{}, invalid("name", "is required")
	}
	for field, v := range opts.dates() {
		if err := checkDate(field, v); err != nil {
			return domain.Activity{}, err
		}
	}
	primary := opts.PrimaryNeedID
	if primary == "" && len(opts.NeedIDs) > 0 {
		primary = opts.NeedIDs[0]
	}
	if primary != "" && !contains(opts.NeedIDs, primary) {
		return domain.Activity{}, invalid("primary_need_id", "%s is not among need_ids", primary)
	}

	now := e.stamp()
	a := domain.Activity{
		ID:                  opts.ID,
		Name:                opts.Name,
		Status:              string(workflow.StatusReview),
		StartOfConstruction: emptyToNil(opts.StartOfConstruction),
		EndOfConstruction:   emptyToNil(opts.EndOfConstruction),
		DateConsultEnd:      emptyToNil(opts.DateConsultEnd),
		DateReportEnd:       emptyToNil(opts.DateReportEnd),
		DateInfoEnd:         emptyToNil(opts.DateInfoEnd),
		IsPrivate:           opts.IsPrivate,
		IsEditingAllowed:    true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if a.ID == "" {
		a.ID = newID()
	}
	err := e.withinTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		if err := r.InsertActivity(ctx, a); err != nil {
			return wrap("insert activity", err)
		}
		if err := e.Events.Append(ctx, tx, events.Record{
			Type: events.ActivityCreated, ActivityID: a.ID, EntityKind: "activity", EntityID: a.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"name": a.Name, "status": a.Status, "need_ids": opts.NeedIDs},
		}); err != nil {
			return err
		}
		seen := map[string]bool{}
		for _, id := range opts.NeedIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			n, err := r.GetNeed(ctx, id)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return invalid("need_ids", "need %s does not exist", id)
				}
				return err
			}
			if n.ActivityRelationType == domain.RelationAssigned {
				return invalid("need_ids", "need %s is already assigned to activity %s", id, n.ActivityID)
			}
			from := n.ActivityRelationType
			n.ActivityRelationType = domain.RelationAssigned
			n.ActivityID = a.ID
			n.IsPrimary = id == primary
			n.UpdatedAt = now
			if err := r.UpdateNeed(ctx, n); err != nil {
				return wrap("assign need", err)
			}
			if err := e.Events.Append(ctx, tx, events.Record{
				Type: events.NeedAssigned, ActivityID: a.ID, EntityKind: "need", EntityID: id, ActorID: opts.ActorID,
				Payload: events.Payload{"from_relation": string(from), "to_relation": string(n.ActivityRelationType), "is_primary": n.IsPrimary},
			}); err != nil {
				return err
			}
			a.NeedIDs = append(a.NeedIDs, id)
		}
		return nil
	})
	if err != nil {
		return domain.Activity{}, err
	}
	e.log().Info("activity created", logging.String("activity_id", a.ID), logging.Int("needs", len(a.NeedIDs)))
	return e.Repo.GetActivity(ctx, a.ID)
}

func (e Engine) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return e.Repo.GetActivity(ctx, id)
}

func (e Engine) ListActivities(ctx context.Context, status string) ([]domain.Activity, error) {
	if status != "" {
		if st, ok := workflow.Parse(status); !ok || !workflow.IsActivityStatus(st) {
			return nil, invalid("status", "unknown activity status %q", status)
		}
	}
	return e.Repo.ListActivities(ctx, status)
}

// ActivityNeeds returns the needs assigned to an activity, primary first.
func (e Engine) ActivityNeeds(ctx context.Context, activityID string) ([]domain.Need, error) {
	if _, err := e.Repo.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return e.Repo.ListNeeds(ctx, repo.NeedFilter{ActivityID: activityID, Relation: string(domain.RelationAssigned)})
}

// ActivityUpdateOptions changes only the fields that are set. An empty
// string clears a date.
type ActivityUpdateOptions struct {
	ID                  string
	Name                *string
	StartOfConstruction *string
	EndOfConstruction   *string
	DateConsultEnd      *string
	DateReportEnd       *string
	DateInfoEnd         *string
	IsPrivate           *bool
	IsEditingAllowed    *bool
	ActorID             string
	Force               bool
}

func (e Engine) UpdateActivity(ctx context.Context, opts ActivityUpdateOptions) (domain.Activity, error) {
	dates := map[string]*string{
		"start_of_construction": opts.StartOfConstruction,
		"end_of_construction":   opts.EndOfConstruction,
		"date_consult_end":      opts.DateConsultEnd,
		"date_report_end":       opts.DateReportEnd,
		"date_info_end":         opts.DateInfoEnd,
	}
	for field, v := range dates {
		if err := checkDate(field, v); err != nil {
			return domain.Activity{}, err
		}
	}
	if opts.Name != nil && strings.TrimSpace(*opts.Name) == "" {
		return domain.Activity{}, invalid("name", "must not be empty")
	}

	var out domain.Activity
	err := e.withinTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		a, err := r.GetActivity(ctx, opts.ID)
		if err != nil {
			return err
		}
		changesContent := opts.Name != nil || opts.IsPrivate != nil
		for _, v := range dates {
			changesContent = changesContent || v != nil
		}
		if !a.IsEditingAllowed && changesContent && !opts.Force {
			return invalid("is_editing_allowed", "activity %s is locked for editing", a.ID)
		}
		changed := []string{}
		set := func(field string, dst **string, v *string) {
			if v == nil {
				return
			}
			*dst = emptyToNil(v)
			changed = append(changed, field)
		}
		if opts.Name != nil {
			a.Name = *opts.Name
			changed = append(changed, "name")
		}
		set("start_of_construction", &a.StartOfConstruction, opts.StartOfConstruction)
		set("end_of_construction", &a.EndOfConstruction, opts.EndOfConstruction)
		set("date_consult_end", &a.DateConsultEnd, opts.DateConsultEnd)
		set("date_report_end", &a.DateReportEnd, opts.DateReportEnd)
		set("date_info_end", &a.DateInfoEnd, opts.DateInfoEnd)
		if opts.IsPrivate != nil {
			a.IsPrivate = *opts.IsPrivate
			changed = append(changed, "is_private")
		}
		if opts.IsEditingAllowed != nil {
			a.IsEditingAllowed = *opts.IsEditingAllowed
			changed = append(changed, "is_editing_allowed")
		}
		if len(changed) == 0 {
			out = a
			return nil
		}
		a.UpdatedAt = e.stamp()
		if err := r.UpdateActivity(ctx, a); err != nil {
			return wrap("update activity", err)
		}
		out = a
		return e.Events.Append(ctx, tx, events.Record{
			Type: events.ActivityUpdated, ActivityID: a.ID, EntityKind: "activity", EntityID: a.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"fields": changed, "force": opts.Force},
		})
	})
	if err != nil {
		return domain.Activity{}, err
	}
	return out, nil
}

// UpdateActivityStatus moves an activity to status. Without force the
// workflow guard must allow the move.
func (e Engine) UpdateActivityStatus(ctx context.Context, id, status, actorID string, force bool) (domain.Activity, error) {
	next, ok := workflow.Parse(status)
	if !ok || !workflow.IsActivityStatus(next) {
		return domain.Activity{}, invalid("status", "unknown activity status %q", status)
	}
	var out domain.Activity
	var cur workflow.Status
	var bypassed bool
	err := e.withinTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		a, err := r.GetActivity(ctx, id)
		if err != nil {
			return err
		}
		cur = workflow.Status(a.Status)
		if err := workflow.EnsureTransition(cur, next); err != nil {
			if !force {
				e.Metrics.ObserveTransition(string(cur), string(next), false)
				e.log().Warn("status transition rejected",
					logging.String("activity_id", id),
					logging.String("from", string(cur)),
					logging.String("to", string(next)),
					logging.String("actor_id", actorID),
				)
				return err
			}
			bypassed = true
		}
		a.Status = string(next)
		a.UpdatedAt = e.stamp()
		if err := r.UpdateActivityStatus(ctx, id, a.Status, a.UpdatedAt); err != nil {
			return wrap("update status", err)
		}
		if err := e.Events.Append(ctx, tx, events.Record{
			Type: events.ActivityStatus, ActivityID: id, EntityKind: "activity", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"from": string(cur), "to": a.Status, "force": force},
		}); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Activity{}, err
	}
	e.Metrics.ObserveTransition(string(cur), out.Status, true)
	if bypassed {
		e.log().Warn("status transition forced past guard",
			logging.String("activity_id", id),
			logging.String("from", string(cur)),
			logging.String("to", out.Status),
			logging.String("actor_id", actorID),
		)
	}
	e.log().Info("status changed",
		logging.String("activity_id", id),
		logging.String("from", string(cur)),
		logging.String("to", out.Status),
		logging.Bool("force", force),
	)
	return out, nil
}

func (e Engine) ListEvents(ctx context.Context, limit int, cursor int64, activityID, evtType string) ([]domain.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, activityID, evtType)
}

func emptyToNil(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
