package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/jobs"
)

func submissionsCmd(opts *globalOptions) *cobra.Command {
	var (
		status    string
		companyID string
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List ledger submission jobs",
		Long: `Lists submission jobs oldest first. Jobs with status "failed" mark
transactions whose aggregate was updated but which never reached the ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := jobs.ParseStatus(status)
			if err != nil {
				return err
			}

			ctx, a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Jobs.ListJobs(ctx, jobs.JobFilter{
				CompanyID: companyID,
				Status:    st,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			return writeJobsTable(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (pending, running, completed, failed, resolved)")
	cmd.Flags().StringVar(&companyID, "company", "", "filter by company id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum jobs to list")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")

	cmd.AddCommand(resolveCmd(opts))
	return cmd
}

func resolveCmd(opts *globalOptions) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "resolve <job-id>",
		Short: "Mark a failed submission as reconciled",
		Long: `Marks a failed submission job as resolved once the missing ledger entry
has been accounted for, for example after resubmitting the transaction.
The company aggregate is left as it is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := jobs.Resolve(ctx, a.Jobs, args[0], note)
			if err != nil {
				return err
			}
			a.Log.Info().Str("job_id", job.JobID).Str("company_id", job.CompanyID).Msg("Submission resolved")
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", job.JobID, job.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "note kept with the job error")
	return cmd
}

func writeJobsTable(w io.Writer, list []*jobs.SubmissionJob) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tCOMPANY\tSTATUS\tCREATED\tLEDGER INDEX\tERROR")
	for _, j := range list {
		index := "-"
		if j.LedgerIndex > 0 {
			index = fmt.Sprintf("%d", j.LedgerIndex)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.JobID, j.CompanyID, j.Status, j.CreatedAt.Format("2006-01-02 15:04:05"), index, j.Error)
	}
	return tw.Flush()
}
