package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a company with its own PostgreSQL schema. SchemaName never changes after creation.
type Tenant struct {
	ID                  uuid.UUID  `json:"id"`
	SchemaName          string     `json:"schema_name"`
	Name                string     `json:"name"`
	CompanyName         string     `json:"company_name"`
	CompanyEmail        string     `json:"company_email"`
	CompanyPhone        string     `json:"company_phone"`
	CompanyAddress      string     `json:"company_address"`
	PrimaryColor        string     `json:"primary_color"`
	SecondaryColor      string     `json:"secondary_color"`
	IsActive            bool       `json:"is_active"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Domains             []Domain   `json:"domains,omitempty"`
}

// Default theme colours for new tenants.
const (
	DefaultPrimaryColor   = "#3B82F6"
	DefaultSecondaryColor = "#10B981"
)

// Domain binds a hostname to exactly one tenant.
type Domain struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Domain    string    `json:"domain"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

// PrimaryDomain returns the tenant's primary hostname, or "" when domains were not loaded.
func (t *Tenant) PrimaryDomain() string {
	for _, d := range t.Domains {
		if d.IsPrimary {
			return d.Domain
		}
	}
	return ""
}
