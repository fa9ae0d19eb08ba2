// Package tenancytest provides an in-memory tenancy.Store for tests.
package tenancytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

// Store is an in-memory tenancy.Store. Provisioners are called with a nil transaction.
type Store struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*models.Tenant
	domains map[string]models.Domain
	// Lookups counts TenantByHost calls.
	Lookups int
}

var _ tenancy.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tenants: map[uuid.UUID]*models.Tenant{}, domains: map[string]models.Domain{}}
}

// Seed adds an active tenant with one primary domain and returns it.
func (s *Store) Seed(schema, host string) *models.Tenant {
	t := &models.Tenant{SchemaName: schema, Name: schema, IsActive: true}
	_ = s.CreateTenant(context.Background(), t, host, nil)
	return t
}

func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant, primaryDomain string, prov tenancy.Provisioner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if existing.SchemaName == t.SchemaName {
			return tenancy.ErrSchemaTaken
		}
	}
	if _, ok := s.domains[primaryDomain]; ok {
		return tenancy.ErrDomainTaken
	}
	if prov != nil {
		if err := prov.Provision(ctx, nil, t.SchemaName); err != nil {
			return err
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	d := models.Domain{ID: uuid.New(), TenantID: t.ID, Domain: primaryDomain, IsPrimary: true, CreatedAt: t.CreatedAt}
	t.Domains = []models.Domain{d}
	cp := *t
	cp.Domains = nil
	s.tenants[t.ID] = &cp
	s.domains[primaryDomain] = d
	return nil
}

func (s *Store) SchemaExists(_ context.Context, schema string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.SchemaName == schema {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DomainExists(_ context.Context, host string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.domains[host]
	return ok, nil
}

func (s *Store) TenantByHost(_ context.Context, host string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	d, ok := s.domains[host]
	if !ok {
		return nil, tenancy.ErrTenantNotFound
	}
	cp := *s.tenants[d.TenantID]
	return &cp, nil
}

func (s *Store) TenantByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, tenancy.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) TenantBySchema(_ context.Context, schema string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.SchemaName == schema {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tenancy.ErrTenantNotFound
}

func (s *Store) ListTenants(context.Context) ([]*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SchemaName < list[j].SchemaName })
	return list, nil
}

func (s *Store) Domains(_ context.Context, tenantID uuid.UUID) ([]models.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Domain
	for _, d := range s.domains {
		if d.TenantID == tenantID {
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsPrimary != list[j].IsPrimary {
			return list[i].IsPrimary
		}
		return list[i].Domain < list[j].Domain
	})
	return list, nil
}

func (s *Store) AddDomain(_ context.Context, tenantID uuid.UUID, host string, primary bool) (*models.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[host]; ok {
		return nil, tenancy.ErrDomainTaken
	}
	if primary {
		s.demoteLocked(tenantID)
	}
	d := models.Domain{ID: uuid.New(), TenantID: tenantID, Domain: host, IsPrimary: primary, CreatedAt: time.Now()}
	s.domains[host] = d
	return &d, nil
}

func (s *Store) demoteLocked(tenantID uuid.UUID) {
	for h, d := range s.domains {
		if d.TenantID == tenantID && d.IsPrimary {
			d.IsPrimary = false
			s.domains[h] = d
		}
	}
}

func (s *Store) SetPrimary(_ context.Context, tenantID uuid.UUID, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[host]
	if !ok || d.TenantID != tenantID {
		return tenancy.ErrDomainNotFound
	}
	s.demoteLocked(tenantID)
	d.IsPrimary = true
	s.domains[host] = d
	return nil
}

func (s *Store) DeleteDomain(_ context.Context, tenantID uuid.UUID, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[host]
	if !ok || d.TenantID != tenantID {
		return tenancy.ErrDomainNotFound
	}
	if d.IsPrimary {
		return tenancy.ErrPrimaryDomain
	}
	delete(s.domains, host)
	return nil
}

func (s *Store) SetActive(_ context.Context, tenantID uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return tenancy.ErrTenantNotFound
	}
	t.IsActive = active
	return nil
}
