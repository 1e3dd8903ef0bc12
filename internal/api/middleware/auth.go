// internal/api/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"parknet-api-server/internal/auth"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Authenticate verifies the bearer token and stores the caller's Principal in
// the gin context. Websocket upgrades cannot set headers from a browser, so a
// ?token= query parameter is accepted as well.
func Authenticate(v *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format", "code": "unauthorized"})
				return
			}
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "code": "unauthorized"})
			return
		}

		principal, err := v.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "unauthorized"})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// Authorize lets the request through only if the authenticated role is one of allowedRoles.
func Authorize(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "unauthorized"})
			return
		}
		for _, role := range allowedRoles {
			if role == principal.Role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource", "code": "forbidden"})
	}
}

// PrincipalFrom returns the Principal set by Authenticate.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	if !ok || !p.IsAuthenticated {
		return auth.Principal{}, false
	}
	return p, true
}
