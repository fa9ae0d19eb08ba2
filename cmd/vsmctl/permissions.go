package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/motorsales/vsms/internal/permissions"
	"github.com/motorsales/vsms/internal/tenancy"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Manage role permissions",
}

var permissionsSeedCmd = &cobra.Command{
	Use:   "seed [schema...]",
	Short: "Insert missing default role permissions",
	Long: `Insert the default role/module permission matrix. Cells that already
exist are left alone, so customised permissions survive. Without arguments
every tenant is seeded.`,
	RunE: withEnv(false, func(cmd *cobra.Command, args []string, e *env) error {
		ctx := cmd.Context()
		schemas := args
		if len(schemas) == 0 {
			list, err := e.directory.List(ctx)
			if err != nil {
				return err
			}
			for _, t := range list {
				schemas = append(schemas, t.SchemaName)
			}
		}
		for _, schema := range schemas {
			err := e.router.ScopeSchema(ctx, schema, func(ctx context.Context) error {
				db, err := tenancy.DB(ctx)
				if err != nil {
					return err
				}
				return permissions.Seed(ctx, db)
			})
			if err != nil {
				return fmt.Errorf("seed %s: %w", schema, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s\n", schema)
		}
		return nil
	}),
}

func init() {
	permissionsCmd.AddCommand(permissionsSeedCmd)
	rootCmd.AddCommand(permissionsCmd)
}
