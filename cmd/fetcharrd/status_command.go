package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the download queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var statuses []queue.Status
			if statusFilter != "" {
				status, ok := queue.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				statuses = append(statuses, status)
			}

			items, err := svc.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			stats, err := svc.Statistics(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "Title", "Status", "Priority", "Progress", "Speed", "Attempts"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					fmt.Sprintf("%d", item.ID),
					item.Title,
					string(item.Status),
					item.Priority.String(),
					renderProgress(item),
					renderSpeed(item),
					fmt.Sprintf("%d/%d", item.AttemptCount, item.MaxAttempts),
				})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "Queue is empty.")
			} else {
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
			}
			fmt.Fprintf(out, "%d items: %d downloading, %d queued, %d retrying, %d failed; %d completed in the last day\n",
				stats.Total, stats.Downloading, stats.Queued, stats.Retrying, stats.Failed, stats.CompletedLastDay)
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status ("+strings.Join(statusNames(), ", ")+")")
	return cmd
}

func renderProgress(item *queue.Item) string {
	if item.TotalBytes <= 0 {
		return "-"
	}
	percent := float64(item.DownloadedBytes) / float64(item.TotalBytes) * 100
	return fmt.Sprintf("%s / %s (%.1f%%)",
		humanize.IBytes(uint64(item.DownloadedBytes)),
		humanize.IBytes(uint64(item.TotalBytes)),
		percent)
}

func renderSpeed(item *queue.Item) string {
	if item.Status != queue.StatusDownloading || item.SpeedBps <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(item.SpeedBps)) + "/s"
}

func statusNames() []string {
	all := queue.AllStatuses()
	names := make([]string, len(all))
	for i, status := range all {
		names[i] = string(status)
	}
	return names
}
