package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/infra/sqlite"
)

func migrateLocalCmd(opts *globalOptions) *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "migrate-local",
		Short: "Create or update the local sqlite schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("path") {
				dataDir = cfg.Store.SQLitePath
			}
			if dataDir == "" {
				return fmt.Errorf("an on-disk path is required; set --path or store.sqlitePath")
			}

			store, err := sqlite.Open(dataDir, log)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(); err != nil {
				return err
			}

			migrator := store.DB().Migrator()
			for _, model := range sqlite.MigrateModels {
				stmt := store.DB().Model(model).Statement
				if err := stmt.Parse(model); err != nil {
					return err
				}
				state := "ok"
				if !migrator.HasTable(model) {
					state = "missing"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", stmt.Schema.Table, state)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "path", "", "data directory (defaults to store.sqlitePath)")
	return cmd
}
