package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/service"
)

var errProjectNotFound = errors.New("project not found")

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}

			filter := make([]model.ProjectStatus, 0, len(statuses))
			for _, s := range statuses {
				filter = append(filter, model.ProjectStatus(strings.TrimSpace(s)))
			}
			projects, err := st.ListProjects(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects")
				return nil
			}

			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{
					p.ID,
					string(p.Status),
					string(p.MusicalType),
					p.CreatedAt.Format("2006-01-02 15:04"),
					truncate(p.Idea, 48),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Type", "Created", "Idea"},
				rows,
				nil,
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list projects in these statuses")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of projects")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <projectId>",
		Short: "Show a project with its tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}

			project, err := st.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if project == nil {
				return fmt.Errorf("%w: %s", errProjectNotFound, args[0])
			}
			tracks, err := st.ListTracks(cmd.Context(), project.ID)
			if err != nil {
				return err
			}
			album, err := st.GetAlbumByProject(cmd.Context(), project.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project:  %s\n", project.ID)
			fmt.Fprintf(out, "Status:   %s\n", project.Status)
			fmt.Fprintf(out, "Type:     %s\n", project.MusicalType)
			if project.ErrorMessage != nil {
				fmt.Fprintf(out, "Error:    %s\n", *project.ErrorMessage)
			}
			if album != nil {
				fmt.Fprintf(out, "Album:    %s (share %s)\n", album.Title, album.ShareID)
				fmt.Fprintf(out, "Duration: %.0fs over %d tracks\n", album.TotalDurationSeconds, album.CompletedTracks)
			}

			if len(tracks) == 0 {
				fmt.Fprintln(out, "No tracks")
				return nil
			}
			rows := make([][]string, 0, len(tracks))
			for _, t := range tracks {
				rows = append(rows, []string{
					strconv.Itoa(t.TrackNumber),
					t.Title,
					string(t.Status),
					deref(t.ExternalTaskID),
					fmt.Sprintf("%.0f", t.DurationSeconds),
					strconv.Itoa(t.RetryCount),
					truncate(deref(t.ErrorMessage), 40),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Title", "Status", "Task", "Duration", "Retries", "Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newFinalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <projectId>",
		Short: "Run the finalization gate for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			opts, err := ctx.options()
			if err != nil {
				return err
			}

			finalized, err := service.NewFinalizer(st, nil, opts).MaybeFinalize(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			project, err := st.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if project == nil {
				return fmt.Errorf("%w: %s", errProjectNotFound, args[0])
			}
			if finalized {
				fmt.Fprintf(cmd.OutOrStdout(), "Project %s finalized\n", project.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project %s not finalized (status %s)\n", project.ID, project.Status)
			return nil
		},
	}
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <projectId>",
		Short: "Queue every unsubmitted track for background generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			opts, err := ctx.options()
			if err != nil {
				return err
			}
			enqueuer, err := ctx.taskEnqueuer()
			if err != nil {
				return err
			}

			result, err := service.NewBatchService(st, enqueuer, opts).EnqueueRemaining(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Enqueued: %s\n", joinInts(result.Enqueued))
			fmt.Fprintf(out, "Skipped:  %s\n", joinInts(result.Skipped))
			return nil
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func joinInts(values []int) string {
	if len(values) == 0 {
		return "none"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
