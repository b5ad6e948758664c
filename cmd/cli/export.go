package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/export"
	"github.com/dvloznov/fraud-ledger/internal/gcs"
	"github.com/dvloznov/fraud-ledger/internal/gcsuploader"
)

func exportCmd(opts *globalOptions) *cobra.Command {
	var (
		bucket string
		prefix string
		object string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of the ledger, aggregates and failed submissions",
		Long: `Builds a JSON snapshot of the reconciled ledger, every company aggregate
and the failed submission jobs. With --out the snapshot is written to a local
file; otherwise it is uploaded to GCS under --bucket (default export.bucket).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if bucket == "" {
				bucket = a.Config.Export.Bucket
			}
			if prefix == "" {
				prefix = a.Config.Export.Prefix
			}

			var storage gcs.StorageService
			if out == "" {
				if bucket == "" {
					return fmt.Errorf("--bucket or export.bucket is required unless --out is given")
				}
				svc, err := gcsuploader.NewGCSStorageService(ctx)
				if err != nil {
					return err
				}
				defer svc.Close()
				storage = svc
			}

			exporter := export.NewExporter(a.Reconciler, a.Store, a.Jobs, storage, a.Log)

			if out != "" {
				snap, err := exporter.Build(ctx)
				if err != nil {
					return err
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := writeJSON(f, snap); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", out)
				return nil
			}

			uri, err := exporter.Export(ctx, bucket, prefix, object)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot uploaded to %s\n", uri)
			return nil
		},
	}

	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "GCS bucket (overrides export.bucket)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object prefix (overrides export.prefix)")
	cmd.Flags().StringVarP(&object, "object", "o", "", "object name; derived from the snapshot time when empty")
	cmd.Flags().StringVar(&out, "out", "", "write the snapshot to this local file instead of GCS")
	return cmd
}
