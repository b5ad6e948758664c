package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

func readLedgerCmd(opts *globalOptions) *cobra.Command {
	var (
		asJSON bool
		entry  uint64
	)

	cmd := &cobra.Command{
		Use:   "read-ledger",
		Short: "Replay the ledger with company ids and sender addresses resolved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var entries []domain.ReconciledEntry
			if entry > 0 {
				e, err := a.Reconciler.ReadEntry(ctx, entry)
				if err != nil {
					return err
				}
				entries = []domain.ReconciledEntry{e}
			} else {
				entries, err = a.Reconciler.ReadLedger(ctx)
				if err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			return writeLedgerTable(cmd.OutOrStdout(), entries)
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	cmd.Flags().Uint64Var(&entry, "entry", 0, "read a single entry by id")
	return cmd
}

func writeLedgerTable(w io.Writer, entries []domain.ReconciledEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tFRAUD\tSENDER\tDATA HASH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.CompanyID, strconv.FormatBool(e.IsFraudulent), e.SenderAddress, e.DataHash)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d entries\n", len(entries))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
