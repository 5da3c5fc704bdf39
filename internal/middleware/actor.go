// actor.go resolves the actor identity that audit entries are attributed to.
package middleware

import (
	"strings"

	"github.com/contact-vault/contact-vault/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	// ActorKey is the gin.Context key under which the resolved actor name is stored.
	ActorKey = "actor"

	// AnonymousActorName is recorded when no identity can be established.
	// Matches models.AnonymousActor.
	AnonymousActorName = "Unknown"
)

// ActorMiddleware returns a Gin handler that resolves the caller's identity
// from a Bearer token and stores it in the context under ActorKey.
//
// Identity is optional: requests without a token, or with a token that fails
// verification, are NOT rejected — their mutations are simply attributed to
// AnonymousActorName in the audit trail. Access control, when needed, is the
// job of separate middleware; this one only answers "who should the audit
// trail blame".
func ActorMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := AnonymousActorName

		authHeader := c.GetHeader("Authorization")
		if jwtSecret != "" && strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token != "" {
				if name, err := auth.ParseActor(token, jwtSecret); err == nil && name != "" {
					actor = name
				}
			}
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

// ActorFromContext returns the actor name resolved by ActorMiddleware, or
// AnonymousActorName when the middleware did not run.
func ActorFromContext(c *gin.Context) string {
	if actor, exists := c.Get(ActorKey); exists {
		if name, ok := actor.(string); ok && name != "" {
			return name
		}
	}
	return AnonymousActorName
}
