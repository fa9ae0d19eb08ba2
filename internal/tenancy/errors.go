package tenancy

import "errors"

var (
	// ErrTenantNotFound is returned when no active tenant owns a host, id or schema.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrDomainNotFound is returned when a domain is not bound to the given tenant.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrDomainTaken is returned when a hostname is already bound to a tenant.
	ErrDomainTaken = errors.New("domain already registered")
	// ErrSchemaTaken is returned when a schema name is already in use.
	ErrSchemaTaken = errors.New("schema name already registered")
	// ErrPrimaryDomain is returned when removing a tenant's primary domain.
	ErrPrimaryDomain = errors.New("primary domain cannot be removed")
	// ErrInvalidHost is returned for hostnames that are not valid RFC 1123 names.
	ErrInvalidHost = errors.New("invalid host name")
	// ErrInvalidRegistration is returned when registration input fails validation.
	ErrInvalidRegistration = errors.New("invalid registration")
	// ErrInvalidSchema is returned for schema names outside the allowed pattern or reserved names.
	ErrInvalidSchema = errors.New("invalid schema name")
	// ErrNoTenantScope is returned by DB when called outside Router.Scope.
	ErrNoTenantScope = errors.New("no tenant scope in context")
	// ErrScopeConflict is returned when a scope for one tenant is opened inside another tenant's scope.
	ErrScopeConflict = errors.New("nested scope for a different tenant")
	// ErrStorageUnavailable wraps failures to obtain a database connection for a scope.
	ErrStorageUnavailable = errors.New("tenant storage unavailable")
)
