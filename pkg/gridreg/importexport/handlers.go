package importexport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/networks"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/registry"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// Handler handles group table import/export requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new import/export handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// ExportedEntry is one group entry in the export format
type ExportedEntry struct {
	ElementType     string  `json:"element_type"`
	Members         []any   `json:"members"`
	ReferenceColumn *string `json:"reference_column,omitempty"`
}

// ExportedGroup is one group in the export format
type ExportedGroup struct {
	GroupID uint            `json:"group_id"`
	Name    string          `json:"name"`
	Entries []ExportedEntry `json:"entries"`
}

// Snapshot is a full export of one network's group table
type Snapshot struct {
	SnapshotID string          `json:"snapshot_id"`
	Network    string          `json:"network"`
	ExportedAt time.Time       `json:"exported_at"`
	Groups     []ExportedGroup `json:"groups"`
}

// ImportRequest carries groups to import into a network
type ImportRequest struct {
	Groups []ExportedGroup `json:"groups" binding:"required"`
	// KeepIDs preserves exported group ids; imports collide instead of
	// renumbering when an id is taken.
	KeepIDs bool `json:"keep_ids"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Export dumps the network's group table as a snapshot
func (h *Handler) Export(c *gin.Context) {
	network, ok := networks.FromParam(c, h.db)
	if !ok {
		return
	}

	snapshot, err := BuildSnapshot(h.db, network.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export groups"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// Import creates groups from an exported snapshot, best effort per group
func (h *Handler) Import(c *gin.Context) {
	network, ok := networks.FromParam(c, h.db)
	if !ok {
		return
	}

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg := registry.New(h.db, store.New(h.db, network.ID), network.ID)
	result := ImportResult{}
	for _, group := range req.Groups {
		types := make([]string, len(group.Entries))
		members := make([][]any, len(group.Entries))
		refCols := make([]*string, len(group.Entries))
		for i, e := range group.Entries {
			types[i] = e.ElementType
			members[i] = e.Members
			refCols[i] = e.ReferenceColumn
		}

		var explicitID *uint
		if req.KeepIDs {
			id := group.GroupID
			explicitID = &id
		}

		if _, err := reg.CreateGroup(types, members, group.Name, refCols, explicitID); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("group %q: %v", group.Name, err))
			continue
		}
		result.Imported++
	}

	c.JSON(http.StatusOK, result)
}

// RegisterRoutes registers import/export routes under a network scope
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/groups-export", h.Export)
	rg.POST("/:id/groups-import", h.Import)
}
