package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/damoang/angple-store/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newInitCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory and every known collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			created := 0
			for _, name := range domain.KnownCollections {
				if a.Store.Exists(name) {
					continue
				}
				// reading an absent collection creates it empty
				if _, err := a.Store.Read(cmd.Context(), name); err != nil {
					return err
				}
				created++
			}
			fmt.Fprintf(e.stdout, "initialized %s (%d collections created)\n", a.Store.Dir(), created)
			return nil
		},
	}
}

func newCollectionsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collections",
		Aliases: []string{"col"},
		Short:   "Inspect and manage collections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List collections with document counts and sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			stats, err := a.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDOCUMENTS\tSIZE\tMODIFIED")
			for _, st := range stats {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", st.Name, st.Documents, humanize.Bytes(uint64(st.Size)), humanize.Time(st.ModTime))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <name>...",
		Short: "Remove every document from the named collections",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := a.Store.Clear(cmd.Context(), name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(e.stdout, "cleared %s\n", name)
			}
			return nil
		},
	})

	var yes bool
	drop := &cobra.Command{
		Use:   "drop <name>...",
		Short: "Delete the named collection files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop %v without --yes", args)
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := a.Store.Delete(cmd.Context(), name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(e.stdout, "dropped %s\n", name)
			}
			return nil
		},
	}
	drop.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	cmd.AddCommand(drop)

	return cmd
}
