package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hyodream/api/logging"
	"hyodream/api/utils"
)

// Context keys set by the auth middlewares.
const (
	CtxUserID    = "user_id"
	CtxUserEmail = "user_email"
	CtxActorID   = "actor_id"
)

const (
	jwtCookie     = "jwt_token"
	SessionHeader = "X-Session-Id"
)

type TokenValidator interface {
	Validate(tokenString string) (*utils.Claims, error)
}

func tokenFromRequest(c *gin.Context) string {
	if tokenString, err := c.Cookie(jwtCookie); err == nil && tokenString != "" {
		return tokenString
	}
	tokenString := c.GetHeader("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
}

func setUser(c *gin.Context, claims *utils.Claims) {
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxUserEmail, claims.Email)
	c.Set(CtxActorID, utils.ActorForUser(claims.UserID))
}

func AuthRequired(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}
		claims, err := v.Validate(tokenString)
		if err != nil {
			logging.Logger().Debug().Err(err).Msg("rejected jwt")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}
		setUser(c, claims)
		c.Next()
	}
}

// OptionalAuth resolves the actor for interest scoring: the JWT user when a
// valid token is present, else the anonymous X-Session-Id. An invalid token
// is treated as anonymous rather than rejected.
func OptionalAuth(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := tokenFromRequest(c); tokenString != "" {
			if claims, err := v.Validate(tokenString); err == nil {
				setUser(c, claims)
				c.Next()
				return
			}
		}
		if actor := utils.ActorForSession(c.GetHeader(SessionHeader)); actor != "" {
			c.Set(CtxActorID, actor)
		}
		c.Next()
	}
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// ActorID returns the resolved actor or "".
func ActorID(c *gin.Context) string {
	return c.GetString(CtxActorID)
}
