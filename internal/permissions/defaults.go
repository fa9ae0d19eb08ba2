package permissions

import (
	"context"
	"fmt"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

var roleBaseline = map[models.Role]models.AccessLevel{
	models.RoleAdmin:      models.AccessFull,
	models.RoleManager:    models.AccessFull,
	models.RoleSales:      models.AccessEdit,
	models.RoleAccountant: models.AccessEdit,
	models.RoleAuctioneer: models.AccessEdit,
	models.RoleStaff:      models.AccessView,
}

var roleOverrides = map[models.Role]map[models.Module]models.AccessLevel{
	models.RoleSales: {
		models.ModulePayroll: models.AccessNone,
		models.ModuleAudit:   models.AccessNone,
	},
	models.RoleAccountant: {
		models.ModulePayments:      models.AccessFull,
		models.ModulePayroll:       models.AccessFull,
		models.ModuleExpenses:      models.AccessFull,
		models.ModuleReports:       models.AccessFull,
		models.ModuleRepossessions: models.AccessView,
		models.ModuleAuctions:      models.AccessView,
	},
	models.RoleAuctioneer: {
		models.ModuleAuctions:      models.AccessFull,
		models.ModuleRepossessions: models.AccessEdit,
		models.ModuleVehicles:      models.AccessView,
		models.ModulePayroll:       models.AccessNone,
	},
}

// DefaultAccess returns the access a role gets in a freshly provisioned tenant.
func DefaultAccess(role models.Role, module models.Module) models.AccessLevel {
	if lvl, ok := roleOverrides[role][module]; ok {
		return lvl
	}
	if lvl, ok := roleBaseline[role]; ok {
		return lvl
	}
	return models.AccessNone
}

// DefaultMatrix returns every (role, module) cell with its default access.
func DefaultMatrix() []models.RolePermission {
	out := make([]models.RolePermission, 0, len(models.AllRoles)*len(models.AllModules))
	for _, role := range models.AllRoles {
		for _, module := range models.AllModules {
			out = append(out, models.RolePermission{Role: role, Module: module, AccessLevel: DefaultAccess(role, module)})
		}
	}
	return out
}

// Seed inserts the default matrix, keeping cells that already exist. It is a tenancy.Seeder.
func Seed(ctx context.Context, db tenancy.DBTX) error {
	matrix := DefaultMatrix()
	roles := make([]string, len(matrix))
	modules := make([]string, len(matrix))
	levels := make([]string, len(matrix))
	for i, p := range matrix {
		roles[i], modules[i], levels[i] = string(p.Role), string(p.Module), string(p.AccessLevel)
	}
	const q = `INSERT INTO role_permissions (role, module_name, access_level)
		SELECT * FROM unnest($1::text[], $2::text[], $3::text[])
		ON CONFLICT (role, module_name) DO NOTHING`
	if _, err := db.Exec(ctx, q, roles, modules, levels); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	return nil
}
