package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/thumbsup/internal/votes"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every counter cache from the vote ledger and repair drift.",
		Long: "Reconcile compares each registered counter column with the ledger and " +
			"repairs the rows that disagree. Run it when the ledger is quiet.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Flags(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			drifts, err := a.service.Synchronizer().Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return renderDrifts(cmd.OutOrStdout(), drifts)
		},
	}
}

func renderDrifts(w io.Writer, drifts []votes.CounterDriftError) error {
	if len(drifts) == 0 {
		_, err := fmt.Fprintln(w, "All counters are in sync.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Voteable", "Column", "Cached", "Actual", "Delta"})
	for _, d := range drifts {
		table.Append([]string{
			d.Ref.String(),
			d.Column,
			strconv.FormatInt(d.Cached, 10),
			strconv.FormatInt(d.Actual, 10),
			strconv.FormatInt(d.Delta(), 10),
		})
	}
	table.SetFooter([]string{"Repaired", "", "", "", strconv.Itoa(len(drifts))})
	table.Render()
	return nil
}
