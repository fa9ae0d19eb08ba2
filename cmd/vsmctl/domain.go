package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage the hostnames bound to a tenant",
}

var domainAddCmd = &cobra.Command{
	Use:   "add <schema|id> <host>",
	Short: "Bind another hostname to a tenant",
	Args:  cobra.ExactArgs(2),
	RunE: withEnv(true, func(cmd *cobra.Command, args []string, e *env) error {
		ctx := cmd.Context()
		t, err := resolveTenant(ctx, e.directory, args[0])
		if err != nil {
			return err
		}
		d, err := e.directory.AddDomain(ctx, t.ID, args[1], false)
		if err != nil {
			return err
		}
		if primary, _ := cmd.Flags().GetBool("primary"); primary {
			if err := e.directory.SetPrimaryDomain(ctx, t.ID, d.Domain); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now resolves to %s\n", d.Domain, t.SchemaName)
		return nil
	}),
}

var domainRemoveCmd = &cobra.Command{
	Use:   "remove <schema|id> <host>",
	Short: "Unbind a non-primary hostname",
	Args:  cobra.ExactArgs(2),
	RunE: withEnv(true, func(cmd *cobra.Command, args []string, e *env) error {
		t, err := resolveTenant(cmd.Context(), e.directory, args[0])
		if err != nil {
			return err
		}
		if err := e.directory.RemoveDomain(cmd.Context(), t.ID, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s from %s\n", args[1], t.SchemaName)
		return nil
	}),
}

func init() {
	domainAddCmd.Flags().Bool("primary", false, "make the new host the tenant's primary domain")
	domainCmd.AddCommand(domainAddCmd, domainRemoveCmd)
	rootCmd.AddCommand(domainCmd)
}
