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
)

type NeedCreateOptions struct {
	ID              string
	Name            string
	OrdererID       string
	OrgUnit         string
	FinishEarlyTo   string
	FinishOptimumTo string
	FinishLateTo    string
	ActorID         string
}

// CreateNeed stores a standalone need in the requirement state.
func (e Engine) CreateNeed(ctx context.Context, opts NeedCreateOptions) (domain.Need, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Need{}, invalid("name", "is required")
	}
	for field, v := range map[string]string{
		"finish_early_to":   opts.FinishEarlyTo,
		"finish_optimum_to": opts.FinishOptimumTo,
		"finish_late_to":    opts.FinishLateTo,
	} {
		if err := requireDate(field, v); err != nil {
			return domain.Need{}, err
		}
	}
	now := e.stamp()
	n := domain.Need{
		ID:                   opts.ID,
		Name:                 opts.Name,
		OrdererID:            opts.OrdererID,
		OrgUnit:              opts.OrgUnit,
		FinishEarlyTo:        opts.FinishEarlyTo,
		FinishOptimumTo:      opts.FinishOptimumTo,
		FinishLateTo:         opts.FinishLateTo,
		ActivityRelationType: domain.RelationRequirement,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if n.ID == "" {
		n.ID = newID()
	}
	if n.OrdererID == "" {
		n.OrdererID = opts.ActorID
	}
	err := e.withinTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		if err := r.InsertNeed(ctx, n); err != nil {
			return wrap("insert need", err)
		}
		return e.Events.Append(ctx, tx, events.Record{
			Type: events.NeedCreated, EntityKind: "need", EntityID: n.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"name": n.Name, "org_unit": n.OrgUnit},
		})
	})
	if err != nil {
		return domain.Need{}, err
	}
	return n, nil
}

func (e Engine) GetNeed(ctx context.Context, id string) (domain.Need, error) {
	return e.Repo.GetNeed(ctx, id)
}

func (e Engine) ListNeeds(ctx context.Context, f repo.NeedFilter) ([]domain.Need, error) {
	if f.Relation != "" && !knownRelation(domain.RelationType(f.Relation)) {
		return nil, invalid("relation", "unknown relation %q", f.Relation)
	}
	return e.Repo.ListNeeds(ctx, f)
}

func knownRelation(r domain.RelationType) bool {
	switch r {
	case domain.RelationRequirement, domain.RelationNonAssigned, domain.RelationAssigned, domain.RelationRegistered:
		return true
	}
	return false
}

// UpdateNeed stores a changed need. It is the data-layer side of assign and
// unassign: an assigned need must name an existing activity, any other
// relation must have no activity, and each activity keeps at most one
// primary need.
func (e Engine) UpdateNeed(ctx context.Context, in domain.Need, actorID string) (domain.Need, error) {
	if in.ActivityRelationType == "" {
		return domain.Need{}, invalid("activity_relation_type", "is required")
	}
	if !knownRelation(in.ActivityRelationType) {
		return domain.Need{}, invalid("activity_relation_type", "unknown relation %q", in.ActivityRelationType)
	}
	in.ActivityID = strings.TrimSpace(in.ActivityID)
	if in.ActivityRelationType == domain.RelationAssigned && in.ActivityID == "" {
		return domain.Need{}, invalid("activity_id", "is required for an assigned need")
	}
	if in.ActivityRelationType != domain.RelationAssigned && in.ActivityID != "" {
		return domain.Need{}, invalid("activity_id", "must be empty for a %s need", in.ActivityRelationType)
	}
	for field, v := range map[string]string{
		"finish_early_to":   in.FinishEarlyTo,
		"finish_optimum_to": in.FinishOptimumTo,
		"finish_late_to":    in.FinishLateTo,
	} {
		if err := checkDate(field, &v); err != nil {
			return domain.Need{}, err
		}
	}

	var out domain.Need
	var evtType string
	err := e.withinTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		cur, err := r.GetNeed(ctx, in.ID)
		if err != nil {
			return err
		}
		next := cur
		if in.Name != "" {
			next.Name = in.Name
		}
		if in.OrgUnit != "" {
			next.OrgUnit = in.OrgUnit
		}
		if in.FinishEarlyTo != "" {
			next.FinishEarlyTo = in.FinishEarlyTo
		}
		if in.FinishOptimumTo != "" {
			next.FinishOptimumTo = in.FinishOptimumTo
		}
		if in.FinishLateTo != "" {
			next.FinishLateTo = in.FinishLateTo
		}
		next.ActivityRelationType = in.ActivityRelationType
		next.ActivityID = in.ActivityID
		next.IsPrimary = in.IsPrimary && next.ActivityRelationType == domain.RelationAssigned
		next.UpdatedAt = e.stamp()

		if next.ActivityRelationType == domain.RelationAssigned {
			if cur.ActivityRelationType == domain.RelationAssigned && cur.ActivityID != next.ActivityID {
				return invalid("activity_id", "need %s is assigned to activity %s; unassign it first", cur.ID, cur.ActivityID)
			}
			if _, err := r.GetActivity(ctx, next.ActivityID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return invalid("activity_id", "activity %s does not exist", next.ActivityID)
				}
				return err
			}
			if err := e.settlePrimary(ctx, r, &next); err != nil {
				return err
			}
		}
		if err := r.UpdateNeed(ctx, next); err != nil {
			return wrap("update need", err)
		}
		if cur.IsPrimary && cur.ActivityID != next.ActivityID {
			if err := e.promoteSuccessor(ctx, r, cur.ActivityID, next.UpdatedAt); err != nil {
				return err
			}
		}

		evtType = events.NeedUpdated
		activityID := next.ActivityID
		switch {
		case cur.ActivityRelationType != domain.RelationAssigned && next.ActivityRelationType == domain.RelationAssigned:
			evtType = events.NeedAssigned
		case cur.ActivityRelationType == domain.RelationAssigned && next.ActivityRelationType != domain.RelationAssigned:
			evtType = events.NeedUnassigned
			activityID = cur.ActivityID
		}
		out = next
		return e.Events.Append(ctx, tx, events.Record{
			Type: evtType, ActivityID: activityID, EntityKind: "need", EntityID: next.ID, ActorID: actorID,
			Payload: events.Payload{
				"from_relation": string(cur.ActivityRelationType),
				"to_relation":   string(next.ActivityRelationType),
				"is_primary":    next.IsPrimary,
			},
		})
	})
	if err != nil {
		e.Metrics.ObserveAssignment(assignmentOp(in.ActivityRelationType), false)
		return domain.Need{}, err
	}
	e.Metrics.ObserveAssignment(assignmentOp(out.ActivityRelationType), true)
	e.log().Info("need updated",
		logging.String("need_id", out.ID),
		logging.String("event", evtType),
		logging.String("activity_id", out.ActivityID),
		logging.String("actor_id", actorID),
	)
	return out, nil
}

func assignmentOp(rel domain.RelationType) string {
	if rel == domain.RelationAssigned {
		return "assign"
	}
	return "unassign"
}

// settlePrimary keeps one primary per activity: a need asking to be primary
// demotes the current one, and the first need of an activity without a
// primary is promoted.
func (e Engine) settlePrimary(ctx context.Context, r repo.Repo, n *domain.Need) error {
	currentID, err := r.PrimaryNeedID(ctx, n.ActivityID)
	if err != nil {
		return err
	}
	switch {
	case currentID == "" || currentID == n.ID:
		// the primary only changes hands when another need claims it
		n.IsPrimary = true
		return nil
	case n.IsPrimary:
		prev, err := r.GetNeed(ctx, currentID)
		if err != nil {
			return err
		}
		prev.IsPrimary = false
		prev.UpdatedAt = n.UpdatedAt
		return wrap("demote primary need", r.UpdateNeed(ctx, prev))
	}
	return nil
}

// promoteSuccessor makes the earliest remaining assigned need of activityID
// primary after its primary left.
func (e Engine) promoteSuccessor(ctx context.Context, r repo.Repo, activityID, now string) error {
	needs, err := r.ListNeeds(ctx, repo.NeedFilter{ActivityID: activityID, Relation: string(domain.RelationAssigned)})
	if err != nil {
		return err
	}
	if len(needs) == 0 || needs[0].IsPrimary {
		return nil
	}
	next := needs[0]
	next.IsPrimary = true
	next.UpdatedAt = now
	return wrap("promote primary need", r.UpdateNeed(ctx, next))
}

// RegisterNeed releases a need from its activity and marks it registered.
func (e Engine) RegisterNeed(ctx context.Context, id, actorID string) (domain.Need, error) {
	var out domain.Need
	err := e.withinTx(ctx, func(tx *sql.Tx, r repo.Repo) error {
		cur, err := r.GetNeed(ctx, id)
		if err != nil {
			return err
		}
		if cur.ActivityRelationType == domain.RelationRegistered {
			return invalid("activity_relation_type", "need %s is already registered", id)
		}
		out = cur
		out.ActivityRelationType = domain.RelationRegistered
		out.ActivityID = ""
		out.IsPrimary = false
		out.UpdatedAt = e.stamp()
		if err := r.UpdateNeed(ctx, out); err != nil {
			return wrap("register need", err)
		}
		if cur.IsPrimary && cur.ActivityID != "" {
			if err := e.promoteSuccessor(ctx, r, cur.ActivityID, out.UpdatedAt); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, events.Record{
			Type: events.NeedRegistered, ActivityID: cur.ActivityID, EntityKind: "need", EntityID: id, ActorID: actorID,
			Payload: events.Payload{"from_relation": string(cur.ActivityRelationType)},
		})
	})
	e.Metrics.ObserveAssignment("register", err == nil)
	if err != nil {
		return domain.Need{}, err
	}
	e.log().Info("need registered", logging.String("need_id", id), logging.String("actor_id", actorID))
	return out, nil
}

// Remote adapts the engine to the assignment coordinator for in-process use.
type Remote struct {
	Engine  Engine
	ActorID string
}

func (r Remote) UpdateNeed(ctx context.Context, n domain.Need) (domain.Need, error) {
	return r.Engine.UpdateNeed(ctx, n, r.ActorID)
}

func (r Remote) RegisterNeed(ctx context.Context, id string) (domain.Need, error) {
	return r.Engine.RegisterNeed(ctx, id, r.ActorID)
}
