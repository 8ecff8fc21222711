package middleware

import (
	"strings"

	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middlewares
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// AuthMiddleware accepts any valid bearer token and stores its user ID
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, secret)
		if !ok {
			return
		}
		utils.LogDebug("User %d authenticated", claims.UserID)
		c.Next()
	}
}

// AdminAuthMiddleware accepts only tokens carrying the admin role
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, secret)
		if !ok {
			return
		}
		if claims.Role != utils.RoleAdmin {
			utils.LogError("Non-admin user attempted admin access: %d", claims.UserID)
			c.Abort()
			utils.Forbidden(c, utils.ErrForbidden)
			return
		}
		utils.LogDebug("Admin access granted for user %d", claims.UserID)
		c.Next()
	}
}

func authenticate(c *gin.Context, secret string) (*utils.TokenClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		utils.LogError("Missing Authorization header")
		c.Abort()
		utils.Unauthorized(c, utils.ErrUnauthorized)
		return nil, false
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		utils.LogError("Invalid Bearer token format")
		c.Abort()
		utils.Unauthorized(c, utils.ErrUnauthorized)
		return nil, false
	}

	claims, err := utils.ParseToken(secret, tokenString)
	if err != nil {
		utils.LogError("Invalid token: %v", err)
		c.Abort()
		utils.Unauthorized(c, utils.ErrUnauthorized)
		return nil, false
	}

	c.Set(UserIDKey, claims.UserID)
	c.Set(RoleKey, claims.Role)
	return claims, true
}
