package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/hasher"
)

func showRecordCmd(opts *globalOptions) *cobra.Command {
	var hash string

	cmd := &cobra.Command{
		Use:   "show-record [record-id]",
		Short: "Print the stored payload of a recorded transaction",
		Long: `Prints the local audit copy of a transaction, looked up by record id or,
with --hash, by the fingerprint found on the ledger. "verified" reports
whether the stored payload still hashes to that fingerprint.`,
		Example: `  fraudledger show-record 0b9e5c1e-3c1f-4a57-9a53-3f1f2a7d6f0e
  fraudledger show-record --hash 0x5f1c...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (hash != "") {
				return fmt.Errorf("give either a record id or --hash")
			}
			var fp domain.Fingerprint
			if hash != "" {
				var err error
				if fp, err = domain.ParseFingerprint(hash); err != nil {
					return fmt.Errorf("--hash: %w", err)
				}
			}

			ctx, a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var rec *domain.TransactionRecord
			if hash != "" {
				rec, err = a.Store.FindRecordByHash(ctx, fp)
			} else {
				rec, err = a.Store.GetRecord(ctx, args[0])
			}
			if err != nil {
				return err
			}

			view := rec.View()
			if view.Verified, err = hasher.Verify(rec); err != nil {
				a.Log.Warn().Err(err).Str("record_id", rec.RecordID).Msg("Stored record no longer hashes")
			}
			return writeJSON(cmd.OutOrStdout(), view)
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "look the record up by its 0x-prefixed fingerprint")
	return cmd
}
