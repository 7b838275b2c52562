package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"roadwork/internal/config"
	"roadwork/internal/domain"
	"roadwork/internal/events"
	"roadwork/internal/logging"
	"roadwork/internal/metrics"
	"roadwork/internal/repo"
	"roadwork/internal/schedule"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Now     func() time.Time
	Log     logging.Logger
	Metrics *metrics.Metrics
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
		Log:    logging.NewNop(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() logging.Logger {
	return logging.OrNop(e.Log)
}

func newID() string {
	return uuid.NewString()
}

// withinTx runs fn in one transaction. fn gets a Repo bound to tx and a
// writer for events; the transaction is committed only if fn succeeds.
func (e Engine) withinTx(ctx context.Context, fn func(tx *sql.Tx, r repo.Repo) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx, e.Repo.Tx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureUser records a user seen through authentication.
func (e Engine) EnsureUser(ctx context.Context, id, name, orgUnit string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("user", "is required")
	}
	return e.Repo.UpsertUser(ctx, domain.User{ID: id, Name: name, OrgUnit: orgUnit, CreatedAt: e.stamp()})
}

// checkDate validates an optional date field. Empty means unset.
func checkDate(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, ok := schedule.ParseDate(*v); !ok {
		return invalid(field, "%q is not a date (want YYYY-MM-DD or RFC3339)", *v)
	}
	return nil
}

func requireDate(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "is required")
	}
	return checkDate(field, &v)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
