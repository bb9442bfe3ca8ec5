package networks

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/auth"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// Handler handles network-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new networks handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateNetworkRequest represents the request to create a network
type CreateNetworkRequest struct {
	Name      string  `json:"name" binding:"required,min=1,max=100"`
	Slug      string  `json:"slug" binding:"required,min=1,max=50"`
	Frequency float64 `json:"frequency"`
}

// UpdateNetworkRequest represents the request to update a network
type UpdateNetworkRequest struct {
	Name string `json:"name" binding:"omitempty,min=1,max=100"`
}

// NetworkResponse represents a network in API responses
type NetworkResponse struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Frequency float64 `json:"frequency"`
	CreatedAt string  `json:"created_at"`
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// validateSlug checks if a network slug is valid and available
func (h *Handler) validateSlug(slug string, excludeID uint) error {
	if slug == "" {
		return &ValidationError{"Slug is required"}
	}

	// Check format (lowercase alphanumeric with hyphens, no leading/trailing hyphens)
	if !slugRegex.MatchString(slug) {
		return &ValidationError{"Slug must contain only lowercase letters, numbers, and hyphens (no leading/trailing hyphens)"}
	}

	// Check reserved slugs
	reserved := []string{"api", "health", "admin", "login", "register", "auth"}
	for _, r := range reserved {
		if strings.EqualFold(slug, r) {
			return &ValidationError{"This slug is reserved"}
		}
	}

	// Check uniqueness
	var existing models.Network
	query := h.db.Where("slug = ?", slug)
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.First(&existing).Error; err == nil {
		return &ValidationError{"This slug is already taken"}
	}

	return nil
}

func toResponse(n models.Network) NetworkResponse {
	return NetworkResponse{
		ID:        n.ID,
		Name:      n.Name,
		Slug:      n.Slug,
		Frequency: n.Frequency,
		CreatedAt: n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// List returns all networks
// @Summary List networks
// @Description Get all simulation networks
// @Tags networks
// @Produce json
// @Success 200 {array} NetworkResponse
// @Security BearerAuth
// @Router /networks [get]
func (h *Handler) List(c *gin.Context) {
	var nets []models.Network
	if err := h.db.Order("id").Find(&nets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch networks"})
		return
	}

	responses := make([]NetworkResponse, len(nets))
	for i, n := range nets {
		responses[i] = toResponse(n)
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a new network
// @Summary Create a network
// @Description Create a new simulation network
// @Tags networks
// @Accept json
// @Produce json
// @Param request body CreateNetworkRequest true "Network details"
// @Success 201 {object} NetworkResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /networks [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.validateSlug(req.Slug, 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	freq := req.Frequency
	if freq == 0 {
		freq = 50
	}

	network := models.Network{
		Name:        req.Name,
		Slug:        req.Slug,
		Frequency:   freq,
		CreatedByID: userID,
	}
	if err := h.db.Create(&network).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create network"})
		return
	}

	c.JSON(http.StatusCreated, toResponse(network))
}

// Get returns a specific network
// @Summary Get a network
// @Description Get details of a specific network
// @Tags networks
// @Produce json
// @Param id path int true "Network ID"
// @Success 200 {object} NetworkResponse
// @Failure 404 {object} map[string]string "Network not found"
// @Security BearerAuth
// @Router /networks/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	network, ok := FromParam(c, h.db)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toResponse(*network))
}

// Update updates a network's name
// @Summary Update a network
// @Description Update a network's name
// @Tags networks
// @Accept json
// @Produce json
// @Param id path int true "Network ID"
// @Param request body UpdateNetworkRequest true "Updated network details"
// @Success 200 {object} NetworkResponse
// @Security BearerAuth
// @Router /networks/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	network, ok := FromParam(c, h.db)
	if !ok {
		return
	}

	var req UpdateNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		network.Name = req.Name
	}
	if err := h.db.Save(network).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update network"})
		return
	}

	c.JSON(http.StatusOK, toResponse(*network))
}

// Delete deletes a network and everything it owns
// @Summary Delete a network
// @Description Delete a network with its element tables and groups
// @Tags networks
// @Produce json
// @Param id path int true "Network ID"
// @Success 200 {object} map[string]string "Network deleted"
// @Security BearerAuth
// @Router /networks/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	network, ok := FromParam(c, h.db)
	if !ok {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("network_id = ?", network.ID).Delete(&models.GroupEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("network_id = ?", network.ID).Delete(&models.ElementRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("network_id = ?", network.ID).Delete(&models.TableSchema{}).Error; err != nil {
			return err
		}
		return tx.Delete(network).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete network"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Network deleted"})
}

// FromParam loads the network addressed by the :id route parameter, writing
// the error response itself when the id is bad or unknown.
func FromParam(c *gin.Context, db *gorm.DB) (*models.Network, bool) {
	networkID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid network ID"})
		return nil, false
	}

	var network models.Network
	if err := db.First(&network, networkID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Network not found"})
		return nil, false
	}
	return &network, true
}

// RegisterRoutes registers network routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
