package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"roadwork/internal/app"
	"roadwork/internal/domain"
	"roadwork/internal/logging"
	"roadwork/internal/relay"
	"roadwork/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rw",
	Short: "Roadwork schedule and workflow CLI",
	Long: `Roadwork coordinates road construction activities with the needs that ask for them.
- Need: a request to build something, with an earliest, optimum and latest finish date.
- Activity: a planned construction job. Needs are assigned to it; the first one is the primary need.
- Board: every assigned need classified against the primary need and the construction window.
- Status: review -> inconsult -> verified -> reporting -> coordinated, with suspended as a sibling of coordinated.
- Consultation: per-user feedback collected while the activity is in a feedback phase.
- Event log: every change, view with 'rw log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ROADWORK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.Bool("json", false, "output JSON")
	pf.String("user", "local-user", "user identifier")
	pf.Bool("force", false, "skip workflow and lock guards")
	pf.String("server", "", "API base URL; need assignment commands run against it")
	pf.String("token", "", "bearer token for --server")
	pf.String("log-level", "", "override log.level")
	for _, name := range []string{"workspace", "json", "user", "force", "server", "token", "log-level"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(needCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(consultCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create roadwork.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.Init(cmd.Context(), viper.GetString("workspace"), overwrite)
			if errors.Is(err, app.ErrAlreadyInitialized) {
				return fmt.Errorf("%s exists; use --overwrite to replace it", p)
			}
			if err != nil {
				return err
			}
			fmt.Println("Initialized", p)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing roadwork.yml")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
				cfg := ws.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				secret := cfg.Server.JWTSecret
				if env := viper.GetString("jwt-secret"); env != "" {
					secret = env
				}
				if secret == "" && !cfg.Server.LegacyUserHeader {
					return fmt.Errorf("server.jwt_secret (or ROADWORK_JWT_SECRET) is required when the legacy user header is disabled")
				}
				log := ws.Log.Named("serve")
				handler, err := server.New(server.Config{
					Engine:   ws.Engine,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:             secret,
						AllowLegacyUserHeader: cfg.Server.LegacyUserHeader,
						Log:                   ws.Log.Named("auth"),
					},
					Metrics: ws.Metrics,
					Log:     ws.Log,
				})
				if err != nil {
					return err
				}

				if cfg.Relay.Enabled {
					w := relay.NewKafkaWriter(cfg.Relay)
					defer w.Close()
					d := relay.NewDispatcher(ws.Engine.Repo, w, cfg.Relay, ws.Log, ws.Metrics)
					go d.Run(ctx)
					log.Info("event relay started",
						logging.String("topic", cfg.Relay.Topic),
						logging.Any("brokers", cfg.Relay.Brokers))
				}

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info("serving roadwork API",
					logging.String("addr", addr),
					logging.String("base_path", basePath),
					logging.Bool("legacy_user_header", cfg.Server.LegacyUserHeader))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				log.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				secret := ws.Config.Server.JWTSecret
				if env := viper.GetString("jwt-secret"); env != "" {
					secret = env
				}
				tok, err := server.IssueToken(secret, viper.GetString("user"), ttl)
				if err != nil {
					return err
				}
				fmt.Println(tok)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var activityID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListEvents(ctx, n, 0, activityID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Activity", "Entity", "Actor"})
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ActivityID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"), app.Options{LogLevel: viper.GetString("log-level")})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printNeeds(needs []domain.Need) error {
	if viper.GetBool("json") {
		return printJSON(needs)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Relation", "Activity", "Primary", "Early", "Optimum", "Late"})
	for _, n := range needs {
		tw.AppendRow(table.Row{n.ID, n.Name, n.ActivityRelationType, n.ActivityID, mark(n.IsPrimary), n.FinishEarlyTo, n.FinishOptimumTo, n.FinishLateTo})
	}
	tw.Render()
	return nil
}

func printActivities(items []domain.Activity) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Start", "End", "Needs", "Editable"})
	for _, a := range items {
		tw.AppendRow(table.Row{a.ID, a.Name, a.Status, deref(a.StartOfConstruction), deref(a.EndOfConstruction), len(a.NeedIDs), mark(a.IsEditingAllowed)})
	}
	tw.Render()
	return nil
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// flagString returns the flag value when it was set on the command line.
func flagString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func flagBool(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetBool(name)
	return &v
}
