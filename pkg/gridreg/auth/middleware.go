package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middlewares.
const (
	ContextKeyUserID     = "user_id"
	ContextKeyEmail      = "email"
	ContextKeySystemRole = "system_role"
)

// AuthMiddleware requires a valid session JWT and stores the caller's
// identity in the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := ValidateToken(parts[1])
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "Token has expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeySystemRole, claims.SystemRole)
		c.Next()
	}
}

// RequireAdmin gates a route on the admin system role. Must run after an
// auth middleware that populated the context.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextKeySystemRole)
		if !exists {
			abortUnauthorized(c, "Authentication required")
			return
		}
		if role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
	c.Abort()
}

// GetUserID reads the authenticated user's ID from the request context.
func GetUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetEmail reads the authenticated user's email from the request context.
func GetEmail(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyEmail)
	if !exists {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

// GetSystemRole reads the authenticated user's role from the request context.
func GetSystemRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeySystemRole)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
