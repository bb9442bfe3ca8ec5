// Package apikeys issues and validates long-lived keys for automation
// clients. Solver drivers and batch import jobs hold a key instead of a
// login session.
package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/auth"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
)

const (
	// KeyLength is the raw key size in bytes; keys render as 2x hex chars.
	KeyLength = 32
	// KeyPrefixLength is how much of the key is kept in clear for listing.
	KeyPrefixLength = 8
)

// Handler serves API key management for the logged-in user.
type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// APIKeyResponse lists a key without its secret material.
type APIKeyResponse struct {
	ID          uint       `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Description string     `json:"description"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type CreateAPIKeyRequest struct {
	Description string `json:"description"`
}

// CreateAPIKeyResponse carries the full key. It is shown exactly once.
type CreateAPIKeyResponse struct {
	ID          uint      `json:"id"`
	Key         string    `json:"key"`
	KeyPrefix   string    `json:"key_prefix"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func newRawKey() (string, error) {
	buf := make([]byte, KeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashAPIKey is what gets persisted; the clear key never touches the database.
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Create mints a key for the authenticated user.
// @Summary Create an API key
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Description is optional; an empty body is fine
		req.Description = ""
	}

	key, err := newRawKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
		return
	}

	record := models.APIKey{
		UserID:      userID,
		KeyHash:     hashAPIKey(key),
		KeyPrefix:   key[:KeyPrefixLength],
		Description: req.Description,
	}
	if err := h.db.Create(&record).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create API key"})
		return
	}

	c.JSON(http.StatusCreated, CreateAPIKeyResponse{
		ID:          record.ID,
		Key:         key,
		KeyPrefix:   record.KeyPrefix,
		Description: record.Description,
		CreatedAt:   record.CreatedAt,
	})
}

// List returns the authenticated user's keys, newest first.
// @Summary List API keys
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var records []models.APIKey
	if err := h.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&records).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch API keys"})
		return
	}

	out := make([]APIKeyResponse, len(records))
	for i, rec := range records {
		out[i] = APIKeyResponse{
			ID:          rec.ID,
			KeyPrefix:   rec.KeyPrefix,
			Description: rec.Description,
			LastUsedAt:  rec.LastUsedAt,
			CreatedAt:   rec.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, out)
}

// Delete revokes one of the authenticated user's keys.
// @Summary Delete an API key
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	keyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid API key ID"})
		return
	}

	var record models.APIKey
	if err := h.db.Where("id = ? AND user_id = ?", keyID, userID).First(&record).Error; err != nil {
		// Someone else's key reads as not found, never as forbidden
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}
	if err := h.db.Delete(&record).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete API key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

// RegisterRoutes registers API key routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/api-keys", h.Create)
	rg.GET("/api-keys", h.List)
	rg.DELETE("/api-keys/:id", h.Delete)
}

// ValidateAPIKey looks up a presented key by its hash.
func ValidateAPIKey(db *gorm.DB, key string) (*models.APIKey, error) {
	var record models.APIKey
	if err := db.Where("key_hash = ?", hashAPIKey(key)).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateLastUsed stamps a key's last use. Best effort.
func UpdateLastUsed(db *gorm.DB, apiKeyID uint) {
	db.Model(&models.APIKey{}).Where("id = ?", apiKeyID).Update("last_used_at", time.Now())
}

// CombinedAuthMiddleware accepts either a session JWT or an API key in the
// Authorization header. JWTs contain dots; raw keys are plain hex, so the
// two never collide.
func CombinedAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Abort()
			return
		}

		if strings.Contains(token, ".") {
			claims, err := auth.ValidateToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				c.Abort()
				return
			}
			c.Set(auth.ContextKeyUserID, claims.UserID)
			c.Set(auth.ContextKeyEmail, claims.Email)
			c.Set(auth.ContextKeySystemRole, claims.SystemRole)
			c.Next()
			return
		}

		record, err := ValidateAPIKey(db, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}
		go UpdateLastUsed(db, record.ID)

		var user models.User
		if err := db.First(&user, record.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			c.Abort()
			return
		}
		c.Set(auth.ContextKeyUserID, record.UserID)
		c.Set(auth.ContextKeyEmail, user.Email)
		c.Set(auth.ContextKeySystemRole, string(user.SystemRole))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
		return "", false
	}
	return parts[1], true
}
