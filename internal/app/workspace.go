// Package app wires a workspace directory into a ready engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"roadwork/internal/config"
	"roadwork/internal/db"
	"roadwork/internal/engine"
	"roadwork/internal/logging"
	"roadwork/internal/metrics"
	"roadwork/internal/migrate"
)

// ErrAlreadyInitialized is returned by Init when roadwork.yml exists.
var ErrAlreadyInitialized = errors.New("workspace already initialized")

// Options override parts of the workspace config.
type Options struct {
	// LogLevel replaces log.level when set.
	LogLevel string
	// Logger replaces the logger built from the config.
	Logger logging.Logger
}

type Workspace struct {
	Dir     string
	Config  *config.Config
	DB      *sql.DB
	Engine  engine.Engine
	Log     logging.Logger
	Metrics *metrics.Metrics
}

// Open loads roadwork.yml, opens and migrates the database and builds the
// engine with its logger and metrics.
func Open(ctx context.Context, dir string, opts Options) (*Workspace, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	log := opts.Logger
	if log == nil {
		log, err = logging.New(cfg.Log)
		if err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	m := metrics.New()
	e := engine.New(conn, cfg)
	e.Log = log.Named("engine")
	e.Metrics = m
	log.Debug("workspace opened", logging.String("dir", db.Dir(dir)))
	return &Workspace{
		Dir:     dir,
		Config:  cfg,
		DB:      conn,
		Engine:  e,
		Log:     log,
		Metrics: m,
	}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Init writes the default roadwork.yml and creates the database. It
// returns the config path.
func Init(ctx context.Context, dir string, overwrite bool) (string, error) {
	p := config.Path(dir)
	if _, err := os.Stat(p); err == nil && !overwrite {
		return p, ErrAlreadyInitialized
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, []byte(config.DefaultYAML), 0o644); err != nil {
		return "", err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return "", fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}
