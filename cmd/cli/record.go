package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

func recordCmd(opts *globalOptions) *cobra.Command {
	var (
		data string
		file string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record one transaction from a flat JSON object",
		Example: `  fraudledger record --data '{"companyId":"ACME","Amount":100,"isFraudulent":true}'
  fraudledger record --file txn.json
  cat txn.json | fraudledger record --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(cmd.InOrStdin(), data, file)
			if err != nil {
				return err
			}
			fields := domain.NewFields()
			if err := fields.UnmarshalJSON(raw); err != nil {
				return err
			}

			ctx, a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Start(ctx); err != nil {
				return err
			}

			receipt, err := a.Writer.RecordTransaction(ctx, domain.NewTransactionRecord(fields))
			if receipt != nil {
				if werr := writeJSON(cmd.OutOrStdout(), receipt); werr != nil {
					return werr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "transaction JSON")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the transaction JSON, - for stdin")
	return cmd
}

func readPayload(stdin io.Reader, data, file string) ([]byte, error) {
	switch {
	case data != "" && file != "":
		return nil, fmt.Errorf("use either --data or --file, not both")
	case data != "":
		return []byte(data), nil
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, fmt.Errorf("--data or --file is required")
	}
}
