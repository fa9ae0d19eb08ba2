package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/motorsales/vsms/internal/auth"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/utils"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <schema> <domain>",
	Short: "Create a tenant with its schema and primary domain",
	Long: `Create a tenant: the schema is created and migrated, the default
permission matrix is seeded and the domain is bound as primary.

Example:
  vsmctl tenant create acme acme.example.com --name "Acme Motors" \
    --admin-email admin@acme.example.com --admin-password 's3cret!'`,
	Args: cobra.ExactArgs(2),
	RunE: withEnv(true, func(cmd *cobra.Command, args []string, e *env) error {
		ctx := cmd.Context()
		f := cmd.Flags()
		name, _ := f.GetString("name")
		company, _ := f.GetString("company")
		email, _ := f.GetString("company-email")
		if name == "" {
			name = args[0]
		}
		t, err := e.directory.Register(ctx, tenancy.Registration{
			SchemaName:   args[0],
			Name:         name,
			Domain:       args[1],
			CompanyName:  company,
			CompanyEmail: email,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created tenant %s (%s) on %s\n", t.SchemaName, t.ID, t.PrimaryDomain())

		adminEmail, _ := f.GetString("admin-email")
		if adminEmail == "" {
			return nil
		}
		adminPassword, _ := f.GetString("admin-password")
		if len(adminPassword) < 8 {
			return fmt.Errorf("admin password must be at least 8 characters")
		}
		return e.router.Scope(ctx, t, func(ctx context.Context) error {
			hash, err := utils.NewPasswords(e.cfg.JWT.BcryptCost).Hash(adminPassword)
			if err != nil {
				return err
			}
			u, err := auth.NewRepository().Create(ctx, auth.CreateUserParams{
				Email:        strings.ToLower(adminEmail),
				PasswordHash: hash,
				FullName:     "Administrator",
				Role:         models.RoleAdmin,
			})
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s\n", u.Email)
			return nil
		})
	}),
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	Args:  cobra.NoArgs,
	RunE: withEnv(false, func(cmd *cobra.Command, _ []string, e *env) error {
		list, err := e.directory.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, t := range list {
			full, err := e.directory.Get(cmd.Context(), t.ID)
			if err == nil {
				t.Domains = full.Domains
			}
		}
		return printTenants(cmd.OutOrStdout(), list)
	}),
}

var tenantDeactivateCmd = &cobra.Command{
	Use:   "deactivate <schema|id>",
	Short: "Stop a tenant's domains from resolving; data is kept",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(true, func(cmd *cobra.Command, args []string, e *env) error {
		t, err := resolveTenant(cmd.Context(), e.directory, args[0])
		if err != nil {
			return err
		}
		if err := e.directory.Deactivate(cmd.Context(), t.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", t.SchemaName)
		return nil
	}),
}

var tenantActivateCmd = &cobra.Command{
	Use:   "activate <schema|id>",
	Short: "Make a deactivated tenant resolvable again",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(true, func(cmd *cobra.Command, args []string, e *env) error {
		t, err := resolveTenant(cmd.Context(), e.directory, args[0])
		if err != nil {
			return err
		}
		if err := e.directory.Activate(cmd.Context(), t.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", t.SchemaName)
		return nil
	}),
}

// tenantLookup is the part of the directory that resolveTenant needs.
type tenantLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySchema(ctx context.Context, schema string) (*models.Tenant, error)
}

// resolveTenant accepts either a tenant id or a schema name.
func resolveTenant(ctx context.Context, dir tenantLookup, ref string) (*models.Tenant, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return dir.Get(ctx, id)
	}
	return dir.GetBySchema(ctx, ref)
}

func printTenants(w io.Writer, list []*models.Tenant) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEMA\tNAME\tACTIVE\tDOMAINS\tID")
	for _, t := range list {
		hosts := make([]string, 0, len(t.Domains))
		for _, d := range t.Domains {
			h := d.Domain
			if d.IsPrimary {
				h += "*"
			}
			hosts = append(hosts, h)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", t.SchemaName, t.Name, t.IsActive, strings.Join(hosts, ","), t.ID)
	}
	return tw.Flush()
}

func init() {
	f := tenantCreateCmd.Flags()
	f.String("name", "", "display name (defaults to the schema name)")
	f.String("company", "", "company name shown on documents")
	f.String("company-email", "", "company contact email")
	f.String("admin-email", "", "create an admin user with this email")
	f.String("admin-password", "", "password for the admin user")

	tenantCmd.AddCommand(tenantCreateCmd, tenantListCmd, tenantDeactivateCmd, tenantActivateCmd)
	rootCmd.AddCommand(tenantCmd)
}
