package models

// Module is a functional area of the application that permissions are granted on.
type Module string

const (
	ModuleDashboard     Module = "dashboard"
	ModuleVehicles      Module = "vehicles"
	ModuleClients       Module = "clients"
	ModulePayments      Module = "payments"
	ModulePayroll       Module = "payroll"
	ModuleExpenses      Module = "expenses"
	ModuleRepossessions Module = "repossessions"
	ModuleAuctions      Module = "auctions"
	ModuleInsurance     Module = "insurance"
	ModuleNotifications Module = "notifications"
	ModuleDocuments     Module = "documents"
	ModuleReports       Module = "reports"
	ModuleAudit         Module = "audit"
	ModuleSettings      Module = "settings"
)

// AllModules lists every module.
var AllModules = []Module{
	ModuleDashboard, ModuleVehicles, ModuleClients, ModulePayments, ModulePayroll,
	ModuleExpenses, ModuleRepossessions, ModuleAuctions, ModuleInsurance,
	ModuleNotifications, ModuleDocuments, ModuleReports, ModuleAudit, ModuleSettings,
}

// Valid reports whether m is a known module.
func (m Module) Valid() bool {
	for _, known := range AllModules {
		if m == known {
			return true
		}
	}
	return false
}

// AccessLevel is ordered: none < view < edit < full.
type AccessLevel string

const (
	AccessNone AccessLevel = "none"
	AccessView AccessLevel = "view"
	AccessEdit AccessLevel = "edit"
	AccessFull AccessLevel = "full"
)

func (a AccessLevel) rank() int {
	switch a {
	case AccessView:
		return 1
	case AccessEdit:
		return 2
	case AccessFull:
		return 3
	default:
		return 0
	}
}

// Valid reports whether a is a known access level.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessNone, AccessView, AccessEdit, AccessFull:
		return true
	}
	return false
}

// Allows reports whether a grants at least required.
func (a AccessLevel) Allows(required AccessLevel) bool {
	return a.rank() >= required.rank()
}

// RolePermission is one cell of a tenant's role/module matrix.
type RolePermission struct {
	Role        Role        `json:"role"`
	Module      Module      `json:"module"`
	AccessLevel AccessLevel `json:"access_level"`
}
