package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"roadwork/internal/app"
	"roadwork/internal/consultation"
	"roadwork/internal/domain"
	"roadwork/internal/engine"
	"roadwork/internal/schedule"
)

var dateFlags = []struct{ name, usage string }{
	{"start", "start of construction (YYYY-MM-DD)"},
	{"end", "end of construction"},
	{"consult-end", "end of the consultation phase"},
	{"report-end", "end of the reporting phase"},
	{"info-end", "end of the information phase"},
}

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Manage construction activities",
	}
	cmd.AddCommand(activityCreateCmd())
	cmd.AddCommand(activityListCmd())
	cmd.AddCommand(activityShowCmd())
	cmd.AddCommand(activityUpdateCmd())
	cmd.AddCommand(activityStatusCmd())
	cmd.AddCommand(activityBoardCmd())
	return cmd
}

func activityCreateCmd() *cobra.Command {
	var opts engine.ActivityCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an activity in review",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.StartOfConstruction = flagString(cmd, "start")
			opts.EndOfConstruction = flagString(cmd, "end")
			opts.DateConsultEnd = flagString(cmd, "consult-end")
			opts.DateReportEnd = flagString(cmd, "report-end")
			opts.DateInfoEnd = flagString(cmd, "info-end")
			opts.ActorID = viper.GetString("user")
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "activity id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "activity name")
	cmd.Flags().BoolVar(&opts.IsPrivate, "private", false, "hide from other org units")
	cmd.Flags().StringSliceVar(&opts.NeedIDs, "need", nil, "need id to assign (repeatable)")
	cmd.Flags().StringVar(&opts.PrimaryNeedID, "primary", "", "primary need id (default first --need)")
	for _, f := range dateFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func activityListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.ListActivities(ctx, status)
				if err != nil {
					return err
				}
				return printActivities(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <activity-id>",
		Short: "Show an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}

func activityUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <activity-id>",
		Short: "Change name, construction window or phase deadlines",
		Long:  "Only flags given on the command line change. An empty date clears it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ActivityUpdateOptions{
				ID:                  args[0],
				Name:                flagString(cmd, "name"),
				StartOfConstruction: flagString(cmd, "start"),
				EndOfConstruction:   flagString(cmd, "end"),
				DateConsultEnd:      flagString(cmd, "consult-end"),
				DateReportEnd:       flagString(cmd, "report-end"),
				DateInfoEnd:         flagString(cmd, "info-end"),
				IsPrivate:           flagBool(cmd, "private"),
				IsEditingAllowed:    flagBool(cmd, "editable"),
				ActorID:             viper.GetString("user"),
				Force:               viper.GetBool("force"),
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.UpdateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	cmd.Flags().String("name", "", "activity name")
	cmd.Flags().Bool("private", false, "hide from other org units")
	cmd.Flags().Bool("editable", true, "allow content edits")
	for _, f := range dateFlags {
		cmd.Flags().String(f.name, "", f.usage)
	}
	return cmd
}

func activityStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <activity-id> <status>",
		Short: "Move an activity to another status",
		Long:  "Only forward moves are allowed, plus switching between coordinated and suspended. --force skips the check.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.UpdateActivityStatus(ctx, args[0], args[1], viper.GetString("user"), viper.GetBool("force"))
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
}

func activityBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board <activity-id>",
		Short: "Show schedule markers, due date and next statuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				b, err := ws.Engine.Board(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				printBoard(b)
				return nil
			})
		},
	}
}

func printBoard(b engine.Board) {
	fmt.Printf("%s (%s) status=%s\n", b.Activity.Name, b.Activity.ID, b.Activity.Status)
	due := b.DueDate.At.Format(time.DateOnly)
	if b.DueDate.Soft {
		due += " (soft)"
	}
	fmt.Printf("due %s [%s]\n", due, b.DueDate.Band)

	tw := newTable()
	tw.AppendHeader(table.Row{"Need", "Name", "Primary", "Time factor", "Border", "Early", "Wish", "Latest"})
	for _, m := range b.Needs {
		tw.AppendRow(table.Row{m.NeedID, m.Name, mark(m.Primary), factor(m), mark(m.Border), mark(m.EarlyGreen), mark(m.WishGreen), latest(m)})
	}
	tw.Render()

	st := newTable()
	st.AppendHeader(table.Row{"Status", "Allowed", "Passed"})
	for _, o := range b.StatusOptions {
		st.AppendRow(table.Row{o.Status, mark(o.Enabled), mark(o.Passed)})
	}
	st.Render()
}

func factor(m schedule.NeedMarkers) string {
	if m.Primary {
		return ""
	}
	return fmt.Sprintf("%d %s", m.TimeFactor, m.TimeFactor)
}

func latest(m schedule.NeedMarkers) string {
	switch {
	case m.LatestRed:
		return "red"
	case m.LatestGreen:
		return "green"
	default:
		return ""
	}
}

func consultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consult",
		Short: "Consultation feedback on activities",
	}
	cmd.AddCommand(consultListCmd())
	cmd.AddCommand(consultSubmitCmd())
	return cmd
}

func consultListCmd() *cobra.Command {
	var phase string
	cmd := &cobra.Command{
		Use:   "list <activity-id>",
		Short: "List feedback of a phase (default: the current status)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				view, err := ws.Engine.Consultations(ctx, args[0], phase, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"By", "Phase", "Decline", "Valuation", "Orderer feedback", "Manager feedback", "Last edit"})
				for _, in := range view.Listed {
					tw.AppendRow(table.Row{in.InputBy, in.FeedbackPhase, mark(in.Decline), in.Valuation, in.OrdererFeedback, in.ManagerFeedback, in.LastEdit})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "feedback phase")
	return cmd
}

func consultSubmitCmd() *cobra.Command {
	var d consultation.Draft
	cmd := &cobra.Command{
		Use:   "submit <activity-id>",
		Short: "Create or update your feedback for the current phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				in, err := ws.Engine.SubmitConsultation(ctx, args[0], viper.GetString("user"), d)
				if err != nil {
					return err
				}
				return printJSON(in)
			})
		},
	}
	cmd.Flags().StringVar(&d.OrdererFeedback, "orderer-feedback", "", "feedback as orderer")
	cmd.Flags().StringVar(&d.ManagerFeedback, "manager-feedback", "", "feedback as manager")
	cmd.Flags().BoolVar(&d.Decline, "decline", false, "decline the activity (clears valuation and orderer feedback)")
	cmd.Flags().IntVar(&d.Valuation, "valuation", 0, "valuation")
	return cmd
}
