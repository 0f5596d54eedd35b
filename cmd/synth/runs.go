package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List journal runs, or show one run with its units",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, done, err := a.openJournal()
			if err != nil {
				return err
			}
			if j == nil {
				return errors.New("no journal configured (use --journal or SYNTH_JOURNAL)")
			}
			defer done()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := j.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			}

			runs, err := j.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tWORKFLOW\tSTATUS\tUNITS\tSTARTED\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.RunID, r.Workflow, r.Status, r.Units, r.StartedAt.Format(time.RFC3339), r.Source)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list (0 for all)")
	return cmd
}
