package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
)

func TestDefaultAccess(t *testing.T) {
	tests := []struct {
		role   models.Role
		module models.Module
		want   models.AccessLevel
	}{
		{models.RoleAdmin, models.ModuleSettings, models.AccessFull},
		{models.RoleManager, models.ModuleAudit, models.AccessFull},
		{models.RoleSales, models.ModuleVehicles, models.AccessEdit},
		{models.RoleSales, models.ModulePayroll, models.AccessNone},
		{models.RoleAccountant, models.ModulePayments, models.AccessFull},
		{models.RoleAccountant, models.ModuleAuctions, models.AccessView},
		{models.RoleAuctioneer, models.ModuleVehicles, models.AccessView},
		{models.RoleStaff, models.ModuleDocuments, models.AccessView},
		{models.Role("ghost"), models.ModuleVehicles, models.AccessNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultAccess(tt.role, tt.module), "%s/%s", tt.role, tt.module)
	}
}

func TestDefaultMatrixCoversEveryCell(t *testing.T) {
	matrix := DefaultMatrix()
	assert.Len(t, matrix, len(models.AllRoles)*len(models.AllModules))
	seen := map[string]bool{}
	for _, p := range matrix {
		key := string(p.Role) + "/" + string(p.Module)
		assert.False(t, seen[key], "duplicate cell %s", key)
		seen[key] = true
		assert.True(t, p.AccessLevel.Valid())
	}
}

func TestAccessLevelOrdering(t *testing.T) {
	assert.True(t, models.AccessFull.Allows(models.AccessEdit))
	assert.True(t, models.AccessEdit.Allows(models.AccessView))
	assert.True(t, models.AccessView.Allows(models.AccessView))
	assert.False(t, models.AccessView.Allows(models.AccessEdit))
	assert.False(t, models.AccessNone.Allows(models.AccessView))
}

func TestSeedRunsInsideTenantScope(t *testing.T) {
	db := &tenancytest.Beginner{}
	router := tenancy.NewRouter(db, nil)

	err := router.ScopeSchema(context.Background(), "acme", func(ctx context.Context) error {
		conn, err := tenancy.DB(ctx)
		if err != nil {
			return err
		}
		return Seed(ctx, conn)
	})
	require.NoError(t, err)
	tx := db.Txs[0]
	require.Len(t, tx.Statements, 2)
	assert.Contains(t, tx.Statements[1], "INSERT INTO role_permissions")
	roles := tx.Args[1][0].([]string)
	assert.Len(t, roles, len(models.AllRoles)*len(models.AllModules))
	assert.True(t, tx.Committed)
}

func TestAdminAccessNeedsNoQuery(t *testing.T) {
	lvl, err := NewRepository().Access(context.Background(), models.RoleAdmin, models.ModuleAudit)
	require.NoError(t, err)
	assert.Equal(t, models.AccessFull, lvl)

	_, err = NewRepository().Access(context.Background(), models.RoleSales, models.ModuleAudit)
	assert.ErrorIs(t, err, tenancy.ErrNoTenantScope)
}
