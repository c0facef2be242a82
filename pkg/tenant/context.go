package tenant

import (
	"context"
	"errors"
)

type contextKey string

const (
	tenantIDKey   contextKey = "tenantId"
	facilityIDKey contextKey = "facilityId"
)

// Defaults applied when a request carries no tenant headers
const (
	DefaultTenantID   = "DEFAULT_TENANT"
	DefaultFacilityID = "DEFAULT_FACILITY"
)

var (
	ErrMissingTenantContext = errors.New("tenant context is required")
	ErrMissingTenantID      = errors.New("tenantId is required")
)

// Context scopes every warehouse-core operation to a tenant and facility.
// It is passed explicitly through application calls and stamped on stored records.
type Context struct {
	TenantID   string `json:"tenantId" bson:"tenantId"`
	FacilityID string `json:"facilityId" bson:"facilityId"`
}

// New builds a Context, falling back to the defaults for empty values
func New(tenantID, facilityID string) Context {
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	if facilityID == "" {
		facilityID = DefaultFacilityID
	}
	return Context{TenantID: tenantID, FacilityID: facilityID}
}

// Validate checks the minimal scoping requirement
func (c Context) Validate() error {
	if c.TenantID == "" {
		return ErrMissingTenantID
	}
	return nil
}

// FromContext extracts a tenant Context placed on ctx by the HTTP middleware.
// Application code receives the value explicitly; this is only used at the edge.
func FromContext(ctx context.Context) (Context, error) {
	var tc Context
	if v, ok := ctx.Value(tenantIDKey).(string); ok {
		tc.TenantID = v
	}
	if v, ok := ctx.Value(facilityIDKey).(string); ok {
		tc.FacilityID = v
	}
	if tc.TenantID == "" && tc.FacilityID == "" {
		return Context{}, ErrMissingTenantContext
	}
	return tc, nil
}

// ToContext stores tc on ctx
func ToContext(ctx context.Context, tc Context) context.Context {
	if tc.TenantID != "" {
		ctx = context.WithValue(ctx, tenantIDKey, tc.TenantID)
	}
	if tc.FacilityID != "" {
		ctx = context.WithValue(ctx, facilityIDKey, tc.FacilityID)
	}
	return ctx
}
