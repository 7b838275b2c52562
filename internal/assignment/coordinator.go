package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roadwork/internal/domain"
	"roadwork/internal/logging"
	"roadwork/internal/metrics"
)

var (
	ErrNeedNotFound = errors.New("need not found")
	ErrInFlight     = errors.New("need has a pending change")
)

// Remote is the data layer that confirms assignment changes. UpdateNeed
// returns the stored record.
type Remote interface {
	UpdateNeed(ctx context.Context, need domain.Need) (domain.Need, error)
	RegisterNeed(ctx context.Context, id string) (domain.Need, error)
}

type Coordinator struct {
	Board   *Board
	Remote  Remote
	Timeout time.Duration
	Log     logging.Logger
	Metrics *metrics.Metrics
}

func NewCoordinator(board *Board, remote Remote, timeout time.Duration, log logging.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		Board:   board,
		Remote:  remote,
		Timeout: timeout,
		Log:     logging.OrNop(log).Named("assignment"),
		Metrics: m,
	}
}

// change is one optimistic operation. patch runs against the stored need
// before submission, submit talks to the data layer, and move places the
// confirmed need into its new collection.
type change struct {
	op     string
	needID string
	check  func(Slot) error
	patch  func(*domain.Need)
	submit func(ctx context.Context, need domain.Need) (domain.Need, error)
	move   func(c Collections, from Slot, confirmed domain.Need) Collections
}

// attempt runs ch. Any submit error, including a context deadline, restores
// the need's relation and activity id and is returned as is.
func (c *Coordinator) attempt(ctx context.Context, ch change) (domain.Need, error) {
	log := logging.OrNop(c.Log)
	before, after, from, err := c.Board.begin(ch.needID, ch.check, ch.patch)
	if err != nil {
		return domain.Need{}, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	confirmed, err := ch.submit(ctx, after)
	if err != nil {
		c.Board.rollback(before)
		c.Metrics.ObserveAssignment(ch.op, false)
		log.Warn("need change rolled back",
			logging.String("op", ch.op),
			logging.String("need_id", ch.needID),
			logging.Err(err),
		)
		return domain.Need{}, err
	}
	c.Board.commit(ch.needID, func(col Collections) Collections {
		return ch.move(col, from, confirmed)
	})
	c.Metrics.ObserveAssignment(ch.op, true)
	log.Debug("need change confirmed",
		logging.String("op", ch.op),
		logging.String("need_id", ch.needID),
		logging.String("relation", string(confirmed.ActivityRelationType)),
	)
	return confirmed, nil
}

// Assign attaches a non-assigned or registered need to activityID.
func (c *Coordinator) Assign(ctx context.Context, needID, activityID string) (domain.Need, error) {
	if activityID == "" {
		return domain.Need{}, errors.New("activity id is required")
	}
	return c.attempt(ctx, change{
		op:     "assign",
		needID: needID,
		check: func(s Slot) error {
			if s == SlotAssigned {
				return fmt.Errorf("need %s is already assigned", needID)
			}
			return nil
		},
		patch: func(n *domain.Need) {
			n.ActivityRelationType = domain.RelationAssigned
			n.ActivityID = activityID
		},
		submit: c.Remote.UpdateNeed,
		move: func(col Collections, from Slot, n domain.Need) Collections {
			return col.Move(from, SlotAssigned, n)
		},
	})
}

// Unassign releases an assigned need.
func (c *Coordinator) Unassign(ctx context.Context, needID string) (domain.Need, error) {
	return c.attempt(ctx, change{
		op:     "unassign",
		needID: needID,
		check:  requireAssigned(needID),
		patch: func(n *domain.Need) {
			n.ActivityRelationType = domain.RelationNonAssigned
			n.ActivityID = ""
		},
		submit: c.Remote.UpdateNeed,
		move: func(col Collections, _ Slot, n domain.Need) Collections {
			return col.Move(SlotAssigned, SlotNonAssigned, n)
		},
	})
}

// Register detaches an assigned need and records it as registered. Nothing
// changes locally until the data layer confirms.
func (c *Coordinator) Register(ctx context.Context, needID string) (domain.Need, error) {
	return c.attempt(ctx, change{
		op:     "register",
		needID: needID,
		check:  requireAssigned(needID),
		submit: func(ctx context.Context, n domain.Need) (domain.Need, error) {
			return c.Remote.RegisterNeed(ctx, n.ID)
		},
		move: func(col Collections, _ Slot, n domain.Need) Collections {
			return col.Move(SlotAssigned, SlotNonAssigned, n)
		},
	})
}

func requireAssigned(needID string) func(Slot) error {
	return func(s Slot) error {
		if s != SlotAssigned {
			return fmt.Errorf("need %s is not assigned", needID)
		}
		return nil
	}
}
