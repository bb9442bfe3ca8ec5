package groups

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/networks"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/registry"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// Handler handles group registry requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// GroupEntryInput is one (element type, members) pair of a create request
type GroupEntryInput struct {
	ElementType     string  `json:"element_type" binding:"required"`
	Members         []any   `json:"members"`
	ReferenceColumn *string `json:"reference_column"`
}

// CreateGroupRequest represents the request to create a group. Either the
// parallel entries form or the mapping form must be supplied, not both.
type CreateGroupRequest struct {
	Name          string            `json:"name" binding:"required"`
	Entries       []GroupEntryInput `json:"entries"`
	MembersByType map[string][]any  `json:"members_by_type"`
	RefColumns    map[string]string `json:"reference_columns"`
	GroupID       *uint             `json:"group_id"`
}

// GroupEntryResponse represents one group entry in API responses
type GroupEntryResponse struct {
	ElementType     string  `json:"element_type"`
	Members         []any   `json:"members"`
	ReferenceColumn *string `json:"reference_column"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	GroupID uint                 `json:"group_id"`
	Name    string               `json:"name"`
	Entries []GroupEntryResponse `json:"entries"`
	Counts  map[string]int       `json:"counts,omitempty"`
}

// regFor loads the network addressed by the route and builds its registry.
func (h *Handler) regFor(c *gin.Context) (*registry.Registry, *store.SQLStore, bool) {
	network, ok := networks.FromParam(c, h.db)
	if !ok {
		return nil, nil, false
	}
	st := store.New(h.db, network.ID)
	return registry.New(h.db, st, network.ID), st, true
}

func groupIDParam(c *gin.Context) (uint, bool) {
	gid, err := strconv.ParseUint(c.Param("gid"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return 0, false
	}
	return uint(gid), true
}

// writeRegistryError maps registry errors to HTTP responses
func writeRegistryError(c *gin.Context, err error) {
	var unknown *registry.UnknownGroupError
	var cnf *store.ColumnNotFoundError
	switch {
	case errors.As(err, &unknown):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &cnf):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrLengthMismatch),
		errors.Is(err, registry.ErrDuplicateType),
		errors.Is(err, registry.ErrNoElementTypes),
		errors.Is(err, registry.ErrBadIndexMember):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrGroupIDTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// List returns all groups of the network
// @Summary List groups
// @Description Get all groups defined on the network
// @Tags groups
// @Produce json
// @Success 200 {array} registry.GroupInfo
// @Security BearerAuth
// @Router /networks/{id}/groups [get]
func (h *Handler) List(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}

	infos, err := reg.Groups()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}
	c.JSON(http.StatusOK, infos)
}

// Create creates a new group
// @Summary Create a group
// @Description Create a group from (element type, members) pairs
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /networks/{id}/groups [post]
func (h *Handler) Create(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Entries) == 0 && len(req.MembersByType) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either entries or members_by_type is required"})
		return
	}
	if len(req.Entries) > 0 && len(req.MembersByType) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entries and members_by_type are mutually exclusive"})
		return
	}

	var groupID uint
	var err error
	if len(req.MembersByType) > 0 {
		groupID, err = reg.CreateGroupFromMap(req.MembersByType, req.Name, req.RefColumns, req.GroupID)
	} else {
		types := make([]string, len(req.Entries))
		members := make([][]any, len(req.Entries))
		refCols := make([]*string, len(req.Entries))
		for i, e := range req.Entries {
			types[i] = e.ElementType
			members[i] = e.Members
			refCols[i] = e.ReferenceColumn
		}
		groupID, err = reg.CreateGroup(types, members, req.Name, refCols, req.GroupID)
	}
	if err != nil {
		writeRegistryError(c, err)
		return
	}

	resp, err := h.buildGroupResponse(reg, groupID)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get returns a specific group with its entries and resolved counts
// @Summary Get a group
// @Description Get a group's entries and live member counts
// @Tags groups
// @Produce json
// @Param gid path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /networks/{id}/groups/{gid} [get]
func (h *Handler) Get(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	resp, err := h.buildGroupResponse(reg, groupID)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete drops a group and all its entries
// @Summary Delete a group
// @Description Drop a group; its element rows are untouched
// @Tags groups
// @Produce json
// @Param gid path int true "Group ID"
// @Success 200 {object} map[string]string "Group deleted"
// @Security BearerAuth
// @Router /networks/{id}/groups/{gid} [delete]
func (h *Handler) Delete(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	if err := reg.DropGroup(groupID); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

func (h *Handler) buildGroupResponse(reg *registry.Registry, groupID uint) (*GroupResponse, error) {
	entries, err := reg.Entries(groupID)
	if err != nil {
		return nil, err
	}
	counts, err := reg.CountMembers(groupID)
	if err != nil {
		return nil, err
	}
	resp := GroupResponse{
		GroupID: groupID,
		Name:    entries[0].Name,
		Counts:  counts,
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toEntryResponse(e))
	}
	return &resp, nil
}

func toEntryResponse(e models.GroupEntry) GroupEntryResponse {
	return GroupEntryResponse{
		ElementType:     e.ElementType,
		Members:         e.Members,
		ReferenceColumn: e.ReferenceColumn,
	}
}

// RegisterRoutes registers group routes under a network scope
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/groups", h.List)
	rg.POST("/:id/groups", h.Create)
	rg.GET("/:id/groups/:gid", h.Get)
	rg.DELETE("/:id/groups/:gid", h.Delete)
}
