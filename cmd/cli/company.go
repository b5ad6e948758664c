package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

func companyCmd(opts *globalOptions) *cobra.Command {
	var (
		asJSON bool
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "company [companyId]",
		Short: "Show a company's risk aggregate, or every aggregate with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("a company id or --all is required")
			}

			ctx, a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var aggs []*domain.CompanyAggregate
			if all {
				aggs, err = a.Store.ListCompanyAggregates(ctx)
			} else {
				var agg *domain.CompanyAggregate
				agg, err = a.Writer.GetCompanyAggregate(ctx, args[0])
				aggs = []*domain.CompanyAggregate{agg}
			}
			if err != nil {
				return err
			}

			if asJSON {
				if !all {
					return writeJSON(cmd.OutOrStdout(), aggs[0])
				}
				return writeJSON(cmd.OutOrStdout(), aggs)
			}
			for _, agg := range aggs {
				writeAggregate(cmd.OutOrStdout(), agg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "list every company")
	return cmd
}

func writeAggregate(w io.Writer, agg *domain.CompanyAggregate) {
	fmt.Fprintf(w, "Company:     %s\n", agg.CompanyID)
	fmt.Fprintf(w, "Total:       %d\n", agg.TotalTransactions)
	fmt.Fprintf(w, "Fraudulent:  %d\n", agg.FraudulentTransactions)
	fmt.Fprintf(w, "Risk score:  %.2f%%\n", agg.RiskScore)
	fmt.Fprintf(w, "Updated:     %s\n\n", agg.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
}
