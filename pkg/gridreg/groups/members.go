package groups

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/registry"
)

// MemberChangeRequest appends or drops members of one element type. A
// reference_column means the incoming descriptors are values of that column;
// otherwise they are element ids. The registry translates when the entry is
// stored in a different mode.
type MemberChangeRequest struct {
	ElementType     string  `json:"element_type" binding:"required"`
	Members         []any   `json:"members" binding:"required"`
	ReferenceColumn *string `json:"reference_column"`
	Dedupe          bool    `json:"dedupe"`
}

// ResolveResponse carries a resolution result with its diagnostics
type ResolveResponse struct {
	ElementType string                `json:"element_type"`
	EIDs        []int64               `json:"eids"`
	Diagnostics []registry.Diagnostic `json:"diagnostics,omitempty"`
}

// SetReferenceColumnRequest rewrites entries to attribute addressing. An
// empty column resets them to index addressing.
type SetReferenceColumnRequest struct {
	Column       string   `json:"column"`
	ElementTypes []string `json:"element_types"`
}

// SetValueRequest broadcasts a value into a column across the group
type SetValueRequest struct {
	Column       string   `json:"column" binding:"required"`
	Value        any      `json:"value"`
	ElementTypes []string `json:"element_types"`
}

// InServiceRequest toggles the group's service status
type InServiceRequest struct {
	InService    *bool    `json:"in_service" binding:"required"`
	ElementTypes []string `json:"element_types"`
}

// OutcomeResponse is one element type's result within a broadcast
type OutcomeResponse struct {
	ElementType string `json:"element_type"`
	Rows        int    `json:"rows"`
	Error       string `json:"error,omitempty"`
}

// PowerResponse is a signed result-field sum with its diagnostics
type PowerResponse struct {
	Field       string                `json:"field"`
	Sum         float64               `json:"sum"`
	Diagnostics []registry.Diagnostic `json:"diagnostics,omitempty"`
}

func incomingMode(refColumn *string) registry.RefMode {
	if refColumn == nil || *refColumn == "" {
		return registry.ByIndex
	}
	return registry.ByColumn(*refColumn)
}

func toOutcomes(outcomes []registry.TypeOutcome) []OutcomeResponse {
	out := make([]OutcomeResponse, len(outcomes))
	for i, o := range outcomes {
		out[i] = OutcomeResponse{ElementType: o.ElementType, Rows: o.Rows, Error: o.ErrString()}
	}
	return out
}

// AppendMembers adds members to a group's entry, creating the entry when the
// group has none for the element type
func (h *Handler) AppendMembers(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	var req MemberChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := reg.AppendMembers(groupID, req.ElementType, req.Members, incomingMode(req.ReferenceColumn), req.Dedupe)
	if err != nil {
		writeRegistryError(c, err)
		return
	}

	resp, err := h.buildGroupResponse(reg, groupID)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DropMembers removes members from a group's entry; an emptied entry is
// deleted and a group losing its last entry disappears
func (h *Handler) DropMembers(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	var req MemberChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := reg.DropMembers(groupID, req.ElementType, req.Members, incomingMode(req.ReferenceColumn))
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Members dropped"})
}

// Resolve returns the element ids a group currently addresses in one type
func (h *Handler) Resolve(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	elementType := c.Param("type")
	eids, diags, err := reg.ResolveMembers(groupID, elementType)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResolveResponse{ElementType: elementType, EIDs: eids, Diagnostics: diags})
}

// Counts returns live member counts per element type
func (h *Handler) Counts(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	counts, err := reg.CountMembers(groupID)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// SetReferenceColumn switches the group's entries between index and
// attribute addressing
func (h *Handler) SetReferenceColumn(c *gin.Context) {
	reg, _, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	var req SetReferenceColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := reg.SetReferenceColumn(groupID, req.Column, req.ElementTypes...); err != nil {
		writeRegistryError(c, err)
		return
	}

	resp, err := h.buildGroupResponse(reg, groupID)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SetValue broadcasts an attribute value across the group's resolved
// members, best effort per element type
func (h *Handler) SetValue(c *gin.Context) {
	reg, st, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	var req SetValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agg := registry.NewAggregator(reg, st)
	outcomes, err := agg.SetValue(groupID, req.Value, req.Column, req.ElementTypes...)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOutcomes(outcomes))
}

// SetInService toggles service status across the group, opening attached
// switches and clearing stale results on the way out of service
func (h *Handler) SetInService(c *gin.Context) {
	reg, st, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	var req InServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agg := registry.NewAggregator(reg, st)
	outcomes, err := agg.SetInService(groupID, *req.InService, req.ElementTypes...)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOutcomes(outcomes))
}

// Power sums a result field across the group under the net-consumption sign
// convention
func (h *Handler) Power(c *gin.Context) {
	reg, st, ok := h.regFor(c)
	if !ok {
		return
	}
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	field := c.DefaultQuery("field", "p_mw")
	agg := registry.NewAggregator(reg, st)
	sum, diags, err := agg.SumResultField(groupID, field, nil)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, PowerResponse{Field: field, Sum: sum, Diagnostics: diags})
}

// RegisterMemberRoutes registers member and aggregate routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/groups/:gid/members", h.AppendMembers)
	rg.POST("/:id/groups/:gid/members/drop", h.DropMembers)
	rg.GET("/:id/groups/:gid/types/:type/resolve", h.Resolve)
	rg.GET("/:id/groups/:gid/counts", h.Counts)
	rg.PUT("/:id/groups/:gid/reference-column", h.SetReferenceColumn)
	rg.POST("/:id/groups/:gid/set-value", h.SetValue)
	rg.POST("/:id/groups/:gid/in-service", h.SetInService)
	rg.GET("/:id/groups/:gid/power", h.Power)
}
