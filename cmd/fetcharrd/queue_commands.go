package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/release"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/service"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		movieID  int64
		year     int
		priority string
	)

	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: "Search the indexer and grab the best release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			item, winner, err := svc.SearchAndGrab(cmd.Context(), movieID, args[0], year, queue.ParsePriority(priority))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Grabbed %q (score %.1f) as item %d\n", winner.Candidate.Title, winner.Score, item.ID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&movieID, "movie-id", 0, "Library movie identifier to associate")
	cmd.Flags().IntVar(&year, "year", 0, "Release year to narrow the search")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Queue priority (low, normal, high, very_high)")
	return cmd
}

func newGrabCommand(ctx *commandContext) *cobra.Command {
	var (
		movieID  int64
		title    string
		priority string
	)

	cmd := &cobra.Command{
		Use:   "grab <download-url>",
		Short: "Enqueue a release by magnet link or torrent URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			candidate := release.Candidate{
				Title:       title,
				DownloadURL: args[0],
			}
			if candidate.Title == "" {
				candidate.Title = args[0]
			}

			item, err := svc.Grab(cmd.Context(), movieID, candidate, queue.ParsePriority(priority))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued item %d (%s priority)\n", item.ID, item.Priority)
			return nil
		},
	}

	cmd.Flags().Int64Var(&movieID, "movie-id", 0, "Library movie identifier to associate")
	cmd.Flags().StringVar(&title, "title", "", "Display title for the queue entry")
	cmd.Flags().StringVar(&priority, "priority", "normal", "Queue priority (low, normal, high, very_high)")
	return cmd
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return newItemCommand(ctx, "pause", "Pause an active download", func(cmd *cobra.Command, svc *service.QueueService, id int64) error {
		item, err := svc.Pause(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Paused item %d (%s)\n", item.ID, item.Title)
		return nil
	})
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return newItemCommand(ctx, "resume", "Resume a paused download", func(cmd *cobra.Command, svc *service.QueueService, id int64) error {
		item, err := svc.Resume(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Resumed item %d (%s)\n", item.ID, item.Title)
		return nil
	})
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return newItemCommand(ctx, "remove", "Remove an item and cancel its transfer", func(cmd *cobra.Command, svc *service.QueueService, id int64) error {
		item, err := svc.Remove(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed item %d (%s)\n", item.ID, item.Title)
		return nil
	})
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return newItemCommand(ctx, "retry", "Retry a failed download with a fresh attempt budget", func(cmd *cobra.Command, svc *service.QueueService, id int64) error {
		item, err := svc.Retry(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Item %d re-queued for retry (%s)\n", item.ID, item.Title)
		return nil
	})
}

func newItemCommand(ctx *commandContext, use, short string, run func(*cobra.Command, *service.QueueService, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse item id %q: %w", args[0], err)
			}

			svc, cleanup, openErr := openService(ctx)
			if openErr != nil {
				return openErr
			}
			defer cleanup()

			return run(cmd, svc, id)
		},
	}
}
