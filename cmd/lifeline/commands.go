package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mr1hm/go-lifeline/internal/models"
	"github.com/mr1hm/go-lifeline/internal/submission"
)

func newSendCmd(dev func() *device) *cobra.Command {
	return &cobra.Command{
		Use:   "send [message...]",
		Short: "Triage, locate and send an alert; an empty message sends HELP",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := dev()
			d.monitor.Check(cmd.Context())

			out := d.pipeline.SubmitAlert(cmd.Context(), strings.Join(args, " "))
			printOutcome(cmd.OutOrStdout(), out)
			if out.Status == submission.StatusRejected {
				return errors.New(out.Reason)
			}
			return nil
		},
	}
}

func newRetryCmd(dev func() *device) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Try once to deliver queued alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := dev()
			if !d.monitor.Check(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "server unreachable, alerts stay queued")
				return nil
			}

			report := d.pipeline.RetryPending(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d, remaining %d\n", len(report.Delivered), report.Remaining)
			return report.Err
		},
	}
}

func newPendingCmd(dev func() *device) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List alerts waiting to be delivered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := dev().pipeline.Pending(cmd.Context())
			if err != nil {
				return err
			}
			printPending(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func newWatchCmd(dev func() *device) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Monitor connectivity and deliver queued alerts on reconnect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := dev()
			ctx := cmd.Context()

			if err := d.registry.Prewarm(ctx); err != nil {
				slog.Warn("model prewarm failed", "error", err)
			}

			subID, changes := d.monitor.Subscribe()
			defer d.monitor.Unsubscribe(subID)

			d.monitor.Start(ctx)
			defer d.monitor.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), "watching connectivity, ctrl-c to stop")
			d.pipeline.Run(ctx, changes)
			return nil
		},
	}
}

func newTriageCmd(dev func() *device) *cobra.Command {
	return &cobra.Command{
		Use:   "triage [message...]",
		Short: "Classify a message locally without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			result := dev().combiner.Triage(cmd.Context(), strings.Join(args, " "))
			printTriage(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newCompleteCmd(dev func() *device) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <alert-id>",
		Short: "Mark one of your alerts as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := dev()
			if err := d.client.Complete(cmd.Context(), args[0], d.identity.SubjectID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alert %s completed\n", args[0])
			return nil
		},
	}
}

func printOutcome(w io.Writer, out submission.Outcome) {
	fmt.Fprintf(w, "status:   %s\n", out.Status)
	if out.AlertID != "" {
		fmt.Fprintf(w, "id:       %s\n", out.AlertID)
	}
	if out.Status != submission.StatusRejected {
		printTriage(w, out.Triage)
		fmt.Fprintf(w, "location: %s\n", formatLocation(out.Location))
	}
	if out.Reason != "" {
		fmt.Fprintf(w, "reason:   %s\n", out.Reason)
	}
	if out.RetryAfter > 0 {
		fmt.Fprintf(w, "retry in: %s\n", out.RetryAfter.Round(time.Second))
	}
}

func printTriage(w io.Writer, t models.TriageResult) {
	fmt.Fprintf(w, "category: %s\n", formatLabel(t.Category, t.CategoryConfidence))
	fmt.Fprintf(w, "urgency:  %s\n", formatLabel(t.Urgency, t.UrgencyConfidence))
}

func printPending(w io.Writer, items []models.PendingAlert) {
	if len(items) == 0 {
		fmt.Fprintln(w, "no pending alerts")
		return
	}
	for _, p := range items {
		fmt.Fprintf(w, "%s  %s  %s/%s  %q  (%s)\n",
			p.QueuedAt.Local().Format(time.DateTime), p.Alert.ClientID,
			p.Alert.Category, p.Alert.Urgency, p.Alert.Message, p.Reason)
	}
}

func formatLabel(label string, confidence *float64) string {
	if confidence == nil {
		return label
	}
	return fmt.Sprintf("%s (%.0f%%)", label, *confidence*100)
}

func formatLocation(l models.Location) string {
	if !l.Available() {
		return "unavailable"
	}
	return fmt.Sprintf("%.5f, %.5f (%s)", l.Coords.Latitude, l.Coords.Longitude, l.Source)
}
