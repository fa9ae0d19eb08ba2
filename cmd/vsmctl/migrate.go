package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations to the shared schema and every tenant schema",
	Long: `Apply pending migrations to the shared schema and every tenant schema.

Tenant schemas are migrated one at a time, each in its own transaction.
Deactivated tenants are migrated too.

Example:
  vsmctl migrate
  vsmctl migrate --shared-only`,
	RunE: withEnv(false, func(cmd *cobra.Command, _ []string, e *env) error {
		ctx := cmd.Context()
		if err := database.MigrateShared(ctx, e.pool); err != nil {
			return fmt.Errorf("shared schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "shared schema up to date")
		if sharedOnly, _ := cmd.Flags().GetBool("shared-only"); sharedOnly {
			return nil
		}
		list, err := e.directory.List(ctx)
		if err != nil {
			return err
		}
		schemas := make([]string, len(list))
		for i, t := range list {
			schemas[i] = t.SchemaName
		}
		if err := tenancy.MigrateSchemas(ctx, e.router, schemas); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d tenant schemas up to date\n", len(schemas))
		return nil
	}),
}

func init() {
	migrateCmd.Flags().Bool("shared-only", false, "only migrate the shared schema")
	rootCmd.AddCommand(migrateCmd)
}
