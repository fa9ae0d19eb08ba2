package tenancy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
)

// Registration is the input of the administrative provisioning step.
type Registration struct {
	SchemaName          string     `json:"schema_name" validate:"required"`
	Name                string     `json:"name" validate:"required,max=255"`
	Domain              string     `json:"domain" validate:"required,hostname_rfc1123"`
	CompanyName         string     `json:"company_name" validate:"max=255"`
	CompanyEmail        string     `json:"company_email" validate:"omitempty,email"`
	CompanyPhone        string     `json:"company_phone" validate:"max=20"`
	CompanyAddress      string     `json:"company_address"`
	PrimaryColor        string     `json:"primary_color" validate:"omitempty,hexcolor,len=7"`
	SecondaryColor      string     `json:"secondary_color" validate:"omitempty,hexcolor,len=7"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date"`
}

// Directory maps hostnames to tenants and manages tenant lifecycle.
type Directory struct {
	store    Store
	cache    Cache
	prov     Provisioner
	validate *validator.Validate
	logger   *zap.Logger
}

// NewDirectory creates a tenant directory. cache may be nil.
func NewDirectory(store Store, cache Cache, prov Provisioner, logger *zap.Logger) *Directory {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, cache: cache, prov: prov, validate: validator.New(), logger: logger}
}

// Register validates reg, rejects a taken schema or domain, and creates the tenant with its
// primary domain and provisioned schema.
func (d *Directory) Register(ctx context.Context, reg Registration) (*models.Tenant, error) {
	reg.SchemaName = strings.TrimSpace(reg.SchemaName)
	host, err := NormalizeHost(reg.Domain)
	if err != nil {
		return nil, err
	}
	reg.Domain = host
	if err := ValidateSchema(reg.SchemaName); err != nil {
		return nil, err
	}
	if err := d.validate.Struct(reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistration, err)
	}

	taken, err := d.store.SchemaExists(ctx, reg.SchemaName)
	if err != nil {
		return nil, fmt.Errorf("check schema: %w", err)
	}
	if taken {
		return nil, ErrSchemaTaken
	}
	taken, err = d.store.DomainExists(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("check domain: %w", err)
	}
	if taken {
		return nil, ErrDomainTaken
	}

	t := &models.Tenant{
		SchemaName:          reg.SchemaName,
		Name:                reg.Name,
		CompanyName:         reg.CompanyName,
		CompanyEmail:        reg.CompanyEmail,
		CompanyPhone:        reg.CompanyPhone,
		CompanyAddress:      reg.CompanyAddress,
		PrimaryColor:        orDefault(reg.PrimaryColor, models.DefaultPrimaryColor),
		SecondaryColor:      orDefault(reg.SecondaryColor, models.DefaultSecondaryColor),
		IsActive:            true,
		SubscriptionEndDate: reg.SubscriptionEndDate,
	}
	if t.CompanyName == "" {
		t.CompanyName = t.Name
	}
	if err := d.store.CreateTenant(ctx, t, host, d.prov); err != nil {
		return nil, err
	}
	d.cache.Invalidate(ctx, host)
	d.logger.Info("tenant registered",
		zap.String("tenant_id", t.ID.String()),
		zap.String("schema", t.SchemaName),
		zap.String("domain", host),
	)
	return t, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Resolve maps a Host header value to an active tenant. Unknown, malformed or inactive hosts
// all yield ErrTenantNotFound.
func (d *Directory) Resolve(ctx context.Context, host string) (*models.Tenant, error) {
	h, err := NormalizeHost(host)
	if err != nil {
		return nil, ErrTenantNotFound
	}
	t, gen, ok := d.cache.Get(ctx, h)
	if !ok {
		t, err = d.store.TenantByHost(ctx, h)
		if err != nil {
			return nil, err
		}
		d.cache.Set(ctx, h, t, gen)
	}
	if !t.IsActive {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// Get returns a tenant with its domains.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := d.store.TenantByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Domains, err = d.store.Domains(ctx, id); err != nil {
		return nil, fmt.Errorf("load domains: %w", err)
	}
	return t, nil
}

// GetBySchema returns a tenant by schema name.
func (d *Directory) GetBySchema(ctx context.Context, schema string) (*models.Tenant, error) {
	return d.store.TenantBySchema(ctx, schema)
}

// List returns all tenants, active or not.
func (d *Directory) List(ctx context.Context) ([]*models.Tenant, error) {
	return d.store.ListTenants(ctx)
}

// ActiveSchemas returns the schema names of active tenants.
func (d *Directory) ActiveSchemas(ctx context.Context) ([]string, error) {
	list, err := d.store.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	var schemas []string
	for _, t := range list {
		if t.IsActive {
			schemas = append(schemas, t.SchemaName)
		}
	}
	return schemas, nil
}

// AddDomain binds another hostname to a tenant.
func (d *Directory) AddDomain(ctx context.Context, tenantID uuid.UUID, host string, primary bool) (*models.Domain, error) {
	h, err := NormalizeHost(host)
	if err != nil {
		return nil, err
	}
	if _, err := d.store.TenantByID(ctx, tenantID); err != nil {
		return nil, err
	}
	taken, err := d.store.DomainExists(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("check domain: %w", err)
	}
	if taken {
		return nil, ErrDomainTaken
	}
	dom, err := d.store.AddDomain(ctx, tenantID, h, primary)
	if err != nil {
		return nil, err
	}
	d.cache.Invalidate(ctx, h)
	return dom, nil
}

// SetPrimaryDomain promotes one of the tenant's domains to primary.
func (d *Directory) SetPrimaryDomain(ctx context.Context, tenantID uuid.UUID, host string) error {
	h, err := NormalizeHost(host)
	if err != nil {
		return err
	}
	if err := d.store.SetPrimary(ctx, tenantID, h); err != nil {
		return err
	}
	return d.invalidateTenant(ctx, tenantID)
}

// RemoveDomain unbinds a non-primary hostname.
func (d *Directory) RemoveDomain(ctx context.Context, tenantID uuid.UUID, host string) error {
	h, err := NormalizeHost(host)
	if err != nil {
		return err
	}
	if err := d.store.DeleteDomain(ctx, tenantID, h); err != nil {
		return err
	}
	d.cache.Invalidate(ctx, h)
	return nil
}

// Deactivate stops a tenant from resolving. Its schema and data are kept.
func (d *Directory) Deactivate(ctx context.Context, tenantID uuid.UUID) error {
	return d.setActive(ctx, tenantID, false)
}

// Activate makes a deactivated tenant resolvable again.
func (d *Directory) Activate(ctx context.Context, tenantID uuid.UUID) error {
	return d.setActive(ctx, tenantID, true)
}

func (d *Directory) setActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	if err := d.store.SetActive(ctx, tenantID, active); err != nil {
		return err
	}
	if err := d.invalidateTenant(ctx, tenantID); err != nil {
		return err
	}
	d.logger.Info("tenant activation changed", zap.String("tenant_id", tenantID.String()), zap.Bool("active", active))
	return nil
}

// invalidateTenant drops the cached resolution of every host bound to the tenant.
func (d *Directory) invalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	domains, err := d.store.Domains(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load domains: %w", err)
	}
	hosts := make([]string, len(domains))
	for i, dom := range domains {
		hosts[i] = dom.Domain
	}
	d.cache.Invalidate(ctx, hosts...)
	return nil
}
