package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/networks"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/registry"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// Handler handles admin requests: user management, system stats and the
// registry maintenance passes that must run after out-of-band element table
// mutation.
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID           uint   `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	SystemRole   string `json:"system_role"`
	CreatedAt    string `json:"created_at"`
	NetworkCount int64  `json:"network_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	SystemRole *string `json:"system_role"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers    int64 `json:"total_users"`
	TotalNetworks int64 `json:"total_networks"`
	TotalTables   int64 `json:"total_tables"`
	TotalElements int64 `json:"total_elements"`
	TotalGroups   int64 `json:"total_groups"`
	AdminUsers    int64 `json:"admin_users"`
	ActiveAPIKeys int64 `json:"active_api_keys"`
}

// AuditResponse reports one maintenance run over a network's group table
type AuditResponse struct {
	NetworkID  uint                  `json:"network_id"`
	Normalized int                   `json:"normalized"`
	Notices    []registry.Diagnostic `json:"notices"`
}

// ListUsers returns all users (admin only)
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User
	query := h.db.Order("created_at DESC")
	if search := c.Query("search"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, u := range users {
		var networkCount int64
		h.db.Model(&models.Network{}).Where("created_by_id = ?", u.ID).Count(&networkCount)
		responses[i] = UserResponse{
			ID:           u.ID,
			Email:        u.Email,
			Name:         u.Name,
			SystemRole:   string(u.SystemRole),
			CreatedAt:    u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			NetworkCount: networkCount,
		}
	}
	c.JSON(http.StatusOK, responses)
}

// UpdateUser updates a user's name or system role (admin only)
func (h *Handler) UpdateUser(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("uid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.SystemRole != nil {
		role := models.SystemRole(*req.SystemRole)
		if role != models.SystemRoleAdmin && role != models.SystemRoleUser {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		user.SystemRole = role
	}

	if err := h.db.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated"})
}

// GetStats returns system statistics (admin only)
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse
	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.Network{}).Count(&stats.TotalNetworks)
	h.db.Model(&models.TableSchema{}).Count(&stats.TotalTables)
	h.db.Model(&models.ElementRow{}).Count(&stats.TotalElements)
	h.db.Raw("SELECT COUNT(*) FROM (SELECT DISTINCT network_id, group_id FROM group_entries)").Scan(&stats.TotalGroups)
	h.db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	h.db.Model(&models.APIKey{}).Count(&stats.ActiveAPIKeys)
	c.JSON(http.StatusOK, stats)
}

// Audit runs the consistency repair passes over one network's group table:
// normalize first so malformed member payloads become proper lists, then
// prune entries that no longer resolve against the element tables.
func (h *Handler) Audit(c *gin.Context) {
	network, ok := networks.FromParam(c, h.db)
	if !ok {
		return
	}

	auditor := registry.NewAuditor(h.db, store.New(h.db, network.ID), network.ID)
	normalized, err := auditor.Normalize()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	notices, err := auditor.PruneDangling()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if notices == nil {
		notices = []registry.Diagnostic{}
	}
	c.JSON(http.StatusOK, AuditResponse{
		NetworkID:  network.ID,
		Normalized: normalized,
		Notices:    notices,
	})
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users", h.ListUsers)
	rg.PUT("/users/:uid", h.UpdateUser)
	rg.GET("/stats", h.GetStats)
	rg.POST("/networks/:id/audit", h.Audit)
}
