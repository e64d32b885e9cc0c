package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newBackupCommand(e *env) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "backup [name]...",
		Short: "Write timestamped copies of collections to the backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("name collections to back up, or pass --all")
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			infos, err := a.BackupAll(cmd.Context(), args)
			w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTION\tDOCUMENTS\tSIZE\tPATH")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Collection, info.Documents, humanize.Bytes(uint64(info.Size)), info.Path)
			}
			if ferr := w.Flush(); ferr != nil {
				return ferr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "back up every collection")
	return cmd
}

func newReconcileCommand(e *env) *cobra.Command {
	var fix, purge bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check denormalized counters against live records",
		Long: `Recounts comment, reply and unread counters from the live records.
Without --fix mismatches are only reported; --purge also removes
conversations and messages every participant has deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			check, verb, summary := a.Reconciler.Check, "mismatch", "inconsistent"
			if fix {
				check, verb, summary = a.Reconciler.Reconcile, "repaired", "repaired"
			}
			violations, err := check(ctx)
			if err != nil {
				return err
			}
			for _, v := range violations {
				fmt.Fprintf(e.stdout, "%s %s/%s %s: stored=%d actual=%d\n", verb, v.Collection, v.ID, v.Field, v.Stored, v.Actual)
			}
			fmt.Fprintf(e.stdout, "%d counter(s) %s\n", len(violations), summary)

			if purge {
				res, err := a.Reconciler.PurgeDeleted(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.stdout, "purged %d conversation(s), %d message(s)\n", res.Conversations, res.Messages)
			}
			if !fix && len(violations) > 0 {
				return fmt.Errorf("%d inconsistent counter(s), rerun with --fix", len(violations))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "rewrite mismatched counters")
	cmd.Flags().BoolVar(&purge, "purge", false, "hard-remove fully deleted conversations and messages")
	return cmd
}

func newServeCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the maintenance scheduler and admin HTTP server until signalled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
}
