package elements

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/networks"
	"github.com/powerflow-tools/gridreg/pkg/gridreg/store"
)

// Handler handles element table requests. This surface stands in for the
// external tooling that owns the element tables: network builders, importers
// and the solver all mutate element rows without going through the group
// registry, which is what makes the auditor necessary.
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new elements handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateTableRequest declares an element table
type CreateTableRequest struct {
	ElementType  string   `json:"element_type" binding:"required"`
	Columns      []string `json:"columns" binding:"required"`
	ResultFields []string `json:"result_fields"`
}

// InsertRowRequest adds one element row
type InsertRowRequest struct {
	EID   *int64         `json:"eid" binding:"required"`
	Attrs map[string]any `json:"attrs"`
}

// SetAttrRequest writes one attribute value
type SetAttrRequest struct {
	Value any `json:"value"`
}

// SetResultsRequest writes result fields; null values mark a field undefined
type SetResultsRequest struct {
	Values map[string]*float64 `json:"values" binding:"required"`
}

// RowResponse represents an element row in API responses
type RowResponse struct {
	EID     int64               `json:"eid"`
	Attrs   map[string]any      `json:"attrs"`
	Results map[string]*float64 `json:"results"`
}

func (h *Handler) storeFor(c *gin.Context) (*store.SQLStore, bool) {
	network, ok := networks.FromParam(c, h.db)
	if !ok {
		return nil, false
	}
	return store.New(h.db, network.ID), true
}

// CreateTable declares a new element table on the network
func (h *Handler) CreateTable(c *gin.Context) {
	st, ok := h.storeFor(c)
	if !ok {
		return
	}

	var req CreateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ts, err := st.CreateTable(req.ElementType, req.Columns, req.ResultFields)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ts)
}

// ListTables lists the network's element tables
func (h *Handler) ListTables(c *gin.Context) {
	st, ok := h.storeFor(c)
	if !ok {
		return
	}

	tables, err := st.Tables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tables"})
		return
	}
	c.JSON(http.StatusOK, tables)
}

// InsertRow adds an element row to a table
func (h *Handler) InsertRow(c *gin.Context) {
	st, ok := h.storeFor(c)
	if !ok {
		return
	}

	var req InsertRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row, err := st.InsertRow(c.Param("type"), *req.EID, req.Attrs)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toRowResponse(*row))
}

// ListRows lists a table's element rows
func (h *Handler) ListRows(c *gin.Context) {
	st, ok := h.storeFor(c)
	if !ok {
		return
	}

	rows, err := st.Rows(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rows"})
		return
	}
	responses := make([]RowResponse, len(rows))
	for i, r := range rows {
		responses[i] = toRowResponse(r)
	}
	c.JSON(http.StatusOK, responses)
}

// DeleteRow removes an element row. Group members pointing at it become
// dangling until an audit pass runs, exactly like an out-of-band delete.
func (h *Handler) DeleteRow(c *gin.Context) {
	st, ok := h.storeFor(c)
	if !ok {
		return
	}

	eid, err := strconv.ParseInt(c.Param("eid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid element ID"})
		return
	}

	if err := st.DeleteRow(c.Param("type"), eid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Element not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete element"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Element deleted"})
}

// SetAttr writes one attribute of one element
func (h *Handler) SetAttr(c *gin.Context) {
	st, ok := h.storeFor(c)
	if !ok {
		return
	}

	eid, err := strconv.ParseInt(c.Param("eid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid element ID"})
		return
	}

	var req SetAttrRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := st.SetColumnValue(c.Param("type"), eid, c.Param("column"), req.Value); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Attribute updated"})
}

// SetResults writes result fields of one element. The solver calls this
// after a run; a null value marks the field undefined.
func (h *Handler) SetResults(c *gin.Context) {
	st, ok := h.storeFor(c)
	if !ok {
		return
	}

	eid, err := strconv.ParseInt(c.Param("eid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid element ID"})
		return
	}

	var req SetResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for field, value := range req.Values {
		if err := st.SetResult(c.Param("type"), eid, field, value); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Results updated"})
}

func toRowResponse(r models.ElementRow) RowResponse {
	return RowResponse{EID: r.EID, Attrs: r.Attrs, Results: r.Results}
}

func statusFor(err error) int {
	var (
		tnf *store.TableNotFoundError
		cnf *store.ColumnNotFoundError
		rex *store.RowExistsError
	)
	switch {
	case errors.As(err, &tnf):
		return http.StatusNotFound
	case errors.As(err, &cnf):
		return http.StatusBadRequest
	case errors.As(err, &rex):
		return http.StatusConflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RegisterRoutes registers element table routes under a network scope
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/tables", h.CreateTable)
	rg.GET("/:id/tables", h.ListTables)
	rg.POST("/:id/tables/:type/rows", h.InsertRow)
	rg.GET("/:id/tables/:type/rows", h.ListRows)
	rg.DELETE("/:id/tables/:type/rows/:eid", h.DeleteRow)
	rg.PUT("/:id/tables/:type/rows/:eid/attrs/:column", h.SetAttr)
	rg.PUT("/:id/tables/:type/rows/:eid/results", h.SetResults)
}
