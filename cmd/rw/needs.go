package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"roadwork/internal/app"
	"roadwork/internal/assignment"
	"roadwork/internal/domain"
	"roadwork/internal/engine"
	"roadwork/internal/repo"
	roadworksdk "roadwork/sdk/go"
)

func needCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "need",
		Short: "Manage needs",
		Long:  "A need asks for construction within a finish window (earliest, optimum, latest).",
	}
	cmd.AddCommand(needCreateCmd())
	cmd.AddCommand(needListCmd())
	cmd.AddCommand(needShowCmd())
	cmd.AddCommand(needAssignCmd())
	cmd.AddCommand(needUnassignCmd())
	cmd.AddCommand(needRegisterCmd())
	return cmd
}

func needCreateCmd() *cobra.Command {
	var opts engine.NeedCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a need",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				opts.ActorID = viper.GetString("user")
				n, err := ws.Engine.CreateNeed(ctx, opts)
				if err != nil {
					return err
				}
				return printNeeds([]domain.Need{n})
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "need id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "need name")
	cmd.Flags().StringVar(&opts.OrdererID, "orderer", "", "orderer user id (defaults to --user)")
	cmd.Flags().StringVar(&opts.OrgUnit, "org-unit", "", "organisational unit")
	cmd.Flags().StringVar(&opts.FinishEarlyTo, "early", "", "earliest finish date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.FinishOptimumTo, "optimum", "", "optimum finish date")
	cmd.Flags().StringVar(&opts.FinishLateTo, "late", "", "latest finish date")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func needListCmd() *cobra.Command {
	var f repo.NeedFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				needs, err := ws.Engine.ListNeeds(ctx, f)
				if err != nil {
					return err
				}
				return printNeeds(needs)
			})
		},
	}
	cmd.Flags().StringVar(&f.Relation, "relation", "", "requirement|nonassigned|assigned|registered")
	cmd.Flags().StringVar(&f.ActivityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&f.OrgUnit, "org-unit", "", "organisational unit")
	return cmd
}

func needShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <need-id>",
		Short: "Show a need",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				n, err := ws.Engine.GetNeed(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(n)
			})
		},
	}
}

func needAssignCmd() *cobra.Command {
	var activityID string
	cmd := &cobra.Command{
		Use:   "assign <need-id>",
		Short: "Assign a need to an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *assignment.Coordinator) error {
				if err := c.Assign(ctx, args[0], activityID); err != nil {
					return err
				}
				return printBoardNeed(c, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&activityID, "activity", "", "activity id")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func needUnassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <need-id>",
		Short: "Remove a need from its activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *assignment.Coordinator) error {
				if err := c.Unassign(ctx, args[0]); err != nil {
					return err
				}
				return printBoardNeed(c, args[0])
			})
		},
	}
}

func needRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <need-id>",
		Short: "Remove a need from its activity and mark it registered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, c *assignment.Coordinator) error {
				if err := c.Register(ctx, args[0]); err != nil {
					return err
				}
				return printBoardNeed(c, args[0])
			})
		},
	}
}

func printBoardNeed(c *assignment.Coordinator, id string) error {
	n, _, ok := c.Board.Snapshot().Find(id)
	if !ok {
		return fmt.Errorf("need %s not on board", id)
	}
	return printNeeds([]domain.Need{n})
}

// withCoordinator loads every need onto a board and runs fn with a
// coordinator whose remote is the --server API or the local engine.
func withCoordinator(ctx context.Context, fn func(context.Context, *assignment.Coordinator) error) error {
	if base := viper.GetString("server"); base != "" {
		client := roadworksdk.New(base)
		client.BearerToken = viper.GetString("token")
		client.UserID = viper.GetString("user")
		needs, err := client.ListNeeds(ctx, "")
		if err != nil {
			return err
		}
		// local config only supplies the timeout and logger here
		return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
			c := assignment.NewCoordinator(assignment.NewBoard(needs), client, ws.Config.AssignmentTimeout(), ws.Log, ws.Metrics)
			return fn(ctx, c)
		})
	}
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		needs, err := ws.Engine.ListNeeds(ctx, repo.NeedFilter{})
		if err != nil {
			return err
		}
		remote := engine.Remote{Engine: ws.Engine, ActorID: viper.GetString("user")}
		c := assignment.NewCoordinator(assignment.NewBoard(needs), remote, ws.Config.AssignmentTimeout(), ws.Log, ws.Metrics)
		return fn(ctx, c)
	})
}
