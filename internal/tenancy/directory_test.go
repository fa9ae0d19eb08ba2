package tenancy_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/tenancy/tenancytest"
)

type recordingProvisioner struct{ schemas []string }

func (p *recordingProvisioner) Provision(_ context.Context, _ pgx.Tx, schema string) error {
	p.schemas = append(p.schemas, schema)
	return nil
}

type DirectorySuite struct {
	suite.Suite
	ctx   context.Context
	store *tenancytest.Store
	prov  *recordingProvisioner
	mr    *miniredis.Miniredis
	dir   *tenancy.Directory
}

func (s *DirectorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = tenancytest.NewStore()
	s.prov = &recordingProvisioner{}
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.dir = tenancy.NewDirectory(s.store, tenancy.NewRedisCache(client, time.Minute, nil), s.prov, nil)
}

func (s *DirectorySuite) register(schema, host string) *models.Tenant {
	t, err := s.dir.Register(s.ctx, tenancy.Registration{SchemaName: schema, Name: schema, Domain: host})
	s.Require().NoError(err)
	return t
}

func (s *DirectorySuite) TestRegisterProvisionsSchemaWithPrimaryDomain() {
	t := s.register("acme", "Acme.Example.com")

	s.Equal([]string{"acme"}, s.prov.schemas)
	s.Equal("acme.example.com", t.PrimaryDomain())
	s.Equal(models.DefaultPrimaryColor, t.PrimaryColor)
	s.True(t.IsActive)
}

func (s *DirectorySuite) TestRegisterRejectsDuplicateDomain() {
	s.register("acme", "acme.example.com")

	_, err := s.dir.Register(s.ctx, tenancy.Registration{SchemaName: "beta", Name: "Beta", Domain: "ACME.example.com"})
	s.ErrorIs(err, tenancy.ErrDomainTaken)
	s.Equal([]string{"acme"}, s.prov.schemas, "nothing provisioned for the rejected tenant")
}

func (s *DirectorySuite) TestRegisterRejectsDuplicateSchema() {
	s.register("acme", "acme.example.com")

	_, err := s.dir.Register(s.ctx, tenancy.Registration{SchemaName: "acme", Name: "Acme 2", Domain: "acme2.example.com"})
	s.ErrorIs(err, tenancy.ErrSchemaTaken)
}

func (s *DirectorySuite) TestRegisterValidatesInput() {
	_, err := s.dir.Register(s.ctx, tenancy.Registration{SchemaName: "public", Name: "x", Domain: "x.example.com"})
	s.ErrorIs(err, tenancy.ErrInvalidSchema)

	_, err = s.dir.Register(s.ctx, tenancy.Registration{SchemaName: "gamma", Name: "", Domain: "gamma.example.com"})
	s.ErrorIs(err, tenancy.ErrInvalidRegistration)

	_, err = s.dir.Register(s.ctx, tenancy.Registration{SchemaName: "gamma", Name: "Gamma", Domain: "gamma.example.com", CompanyEmail: "not-an-email"})
	s.ErrorIs(err, tenancy.ErrInvalidRegistration)

	_, err = s.dir.Register(s.ctx, tenancy.Registration{SchemaName: "gamma", Name: "Gamma", Domain: "-bad"})
	s.ErrorIs(err, tenancy.ErrInvalidHost)
}

func (s *DirectorySuite) TestResolveUsesCache() {
	s.register("acme", "acme.example.com")

	for i := 0; i < 3; i++ {
		t, err := s.dir.Resolve(s.ctx, "acme.example.com:8000")
		s.Require().NoError(err)
		s.Equal("acme", t.SchemaName)
	}
	s.Equal(1, s.store.Lookups)
	s.True(s.mr.Exists("vsms:tenant:host:acme.example.com"))
}

func (s *DirectorySuite) TestResolveUnknownHost() {
	_, err := s.dir.Resolve(s.ctx, "nobody.example.com")
	s.ErrorIs(err, tenancy.ErrTenantNotFound)
	_, err = s.dir.Resolve(s.ctx, "")
	s.ErrorIs(err, tenancy.ErrTenantNotFound)
}

func (s *DirectorySuite) TestDeactivateInvalidatesCache() {
	t := s.register("acme", "acme.example.com")
	_, err := s.dir.Resolve(s.ctx, "acme.example.com")
	s.Require().NoError(err)

	s.Require().NoError(s.dir.Deactivate(s.ctx, t.ID))
	_, err = s.dir.Resolve(s.ctx, "acme.example.com")
	s.ErrorIs(err, tenancy.ErrTenantNotFound)

	schemas, err := s.dir.ActiveSchemas(s.ctx)
	s.Require().NoError(err)
	s.Empty(schemas)

	s.Require().NoError(s.dir.Activate(s.ctx, t.ID))
	_, err = s.dir.Resolve(s.ctx, "acme.example.com")
	s.NoError(err)
}

func (s *DirectorySuite) TestLookupRacingInvalidationIsNotCached() {
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	cache := tenancy.NewRedisCache(client, time.Minute, nil)
	stale := &models.Tenant{SchemaName: "acme", IsActive: true}

	_, gen, ok := cache.Get(s.ctx, "acme.example.com")
	s.Require().False(ok)
	cache.Invalidate(s.ctx, "acme.example.com")
	cache.Set(s.ctx, "acme.example.com", stale, gen)
	s.False(s.mr.Exists("vsms:tenant:host:acme.example.com"))

	_, gen, _ = cache.Get(s.ctx, "acme.example.com")
	cache.Set(s.ctx, "acme.example.com", stale, gen)
	got, _, ok := cache.Get(s.ctx, "acme.example.com")
	s.Require().True(ok)
	s.Equal("acme", got.SchemaName)
}

func (s *DirectorySuite) TestSetPrimaryDomainInvalidatesCache() {
	t := s.register("acme", "acme.example.com")
	_, err := s.dir.AddDomain(s.ctx, t.ID, "sales.acme.co.ke", false)
	s.Require().NoError(err)

	_, err = s.dir.Resolve(s.ctx, "acme.example.com")
	s.Require().NoError(err)
	s.True(s.mr.Exists("vsms:tenant:host:acme.example.com"))

	s.Require().NoError(s.dir.SetPrimaryDomain(s.ctx, t.ID, "sales.acme.co.ke"))
	s.False(s.mr.Exists("vsms:tenant:host:acme.example.com"))

	_, err = s.dir.Resolve(s.ctx, "acme.example.com")
	s.Require().NoError(err)
	s.Equal(2, s.store.Lookups)
}

func (s *DirectorySuite) TestDomainLifecycle() {
	t := s.register("acme", "acme.example.com")
	other := s.register("beta", "beta.example.com")

	_, err := s.dir.AddDomain(s.ctx, other.ID, "acme.example.com", false)
	s.ErrorIs(err, tenancy.ErrDomainTaken)

	_, err = s.dir.AddDomain(s.ctx, t.ID, "sales.acme.co.ke", true)
	s.Require().NoError(err)

	got, err := s.dir.Get(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal("sales.acme.co.ke", got.PrimaryDomain())
	s.Len(got.Domains, 2)

	s.ErrorIs(s.dir.RemoveDomain(s.ctx, t.ID, "sales.acme.co.ke"), tenancy.ErrPrimaryDomain)
	s.Require().NoError(s.dir.SetPrimaryDomain(s.ctx, t.ID, "acme.example.com"))
	s.Require().NoError(s.dir.RemoveDomain(s.ctx, t.ID, "sales.acme.co.ke"))

	_, err = s.dir.Resolve(s.ctx, "sales.acme.co.ke")
	s.ErrorIs(err, tenancy.ErrTenantNotFound)
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func TestJobScoperSkipsInactiveTenants(t *testing.T) {
	store := tenancytest.NewStore()
	tn := store.Seed("acme", "acme.example.com")
	db := &tenancytest.Beginner{}
	scoper := tenancy.NewJobScoper(tenancy.NewDirectory(store, nil, nil, nil), tenancy.NewRouter(db, nil))

	ran := false
	require.NoError(t, scoper.Run(context.Background(), "acme", func(ctx context.Context) error {
		ran = tenancy.SchemaFrom(ctx) == "acme"
		return nil
	}))
	assert.True(t, ran)

	require.NoError(t, store.SetActive(context.Background(), tn.ID, false))
	err := scoper.Run(context.Background(), "acme", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, tenancy.ErrTenantNotFound)

	err = scoper.Run(context.Background(), "missing", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, tenancy.ErrTenantNotFound)
	assert.Equal(t, 1, db.Calls())
}
