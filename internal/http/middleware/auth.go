// README: Bearer auth middleware; resolves the caller identity from a verified token.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"metro/internal/infra"
	"metro/internal/types"
)

const (
	ctxCallerUID  = "caller_uid"
	ctxCallerRole = "caller_role"
	ctxCallerName = "caller_name"
)

// Auth rejects requests without a valid bearer token.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if !authenticate(c, verifier, raw) {
			return
		}
		c.Next()
	}
}

// OptionalAuth resolves the caller when a token is sent and lets anonymous
// requests through. A token that fails verification is still rejected.
func OptionalAuth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		raw, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}
		if !authenticate(c, verifier, raw) {
			return
		}
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return raw, raw != ""
}

func authenticate(c *gin.Context, verifier infra.TokenVerifier, raw string) bool {
	token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
	if err != nil || token == nil || token.UID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return false
	}
	c.Set(ctxCallerUID, token.UID)
	c.Set(ctxCallerRole, normalizeRole(token.StringClaim("role")))
	c.Set(ctxCallerName, token.StringClaim("name"))
	return true
}

func normalizeRole(v string) string {
	switch types.Role(strings.ToLower(v)) {
	case types.RoleModerator:
		return string(types.RoleModerator)
	case types.RoleAdmin:
		return string(types.RoleAdmin)
	}
	return string(types.RoleUser)
}

// CallerUID returns the verified uid, or "" for anonymous requests.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxCallerUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxCallerRole)
}

// CallerActor is the identity passed to the trip core.
func CallerActor(c *gin.Context) types.Actor {
	uid := CallerUID(c)
	if uid == "" {
		return types.Actor{}
	}
	return types.Actor{
		UserID: types.ID(uid),
		Name:   c.GetString(ctxCallerName),
		Role:   types.Role(CallerRole(c)),
	}
}
