package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// HTTP headers carrying the caller's scope and identity
const (
	HeaderWMSTenantID   = "X-WMS-Tenant-ID"
	HeaderWMSFacilityID = "X-WMS-Facility-ID"
	HeaderWMSUserID     = "X-WMS-User-ID"
)

const (
	contextKeyTenant = "tenantContext"
	contextKeyUserID = "userId"
)

// Tenant reads the tenant headers, applying defaults, and stores the result on
// both the gin and request contexts. Identity is taken from X-WMS-User-ID as-is;
// authenticating it is left to the gateway.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := tenant.New(c.GetHeader(HeaderWMSTenantID), c.GetHeader(HeaderWMSFacilityID))
		ctx := tenant.ToContext(c.Request.Context(), tc)
		if user := c.GetHeader(HeaderWMSUserID); user != "" {
			c.Set(contextKeyUserID, user)
			ctx = logging.ContextWithUserID(ctx, user)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKeyTenant, tc)
		c.Next()
	}
}

// TenantFrom returns the tenant context stored by Tenant, or the defaults
func TenantFrom(c *gin.Context) tenant.Context {
	if v, ok := c.Get(contextKeyTenant); ok {
		if tc, ok := v.(tenant.Context); ok {
			return tc
		}
	}
	return tenant.New("", "")
}

// UserFrom returns the caller's user id, or "" when the header was absent
func UserFrom(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}
