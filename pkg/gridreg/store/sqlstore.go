package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
)

// SQLStore is the gorm-backed entity store, bound to one network.
type SQLStore struct {
	db        *gorm.DB
	networkID uint
}

// New returns a store over the given network's element tables.
func New(db *gorm.DB, networkID uint) *SQLStore {
	return &SQLStore{db: db, networkID: networkID}
}

// NetworkID returns the network this store is bound to.
func (s *SQLStore) NetworkID() uint {
	return s.networkID
}

func (s *SQLStore) schema(elementType string) (*models.TableSchema, bool) {
	var ts models.TableSchema
	err := s.db.Where("network_id = ? AND element_type = ?", s.networkID, elementType).First(&ts).Error
	if err != nil {
		return nil, false
	}
	return &ts, true
}

// HasTable reports whether the element type is declared for this network.
func (s *SQLStore) HasTable(elementType string) bool {
	_, ok := s.schema(elementType)
	return ok
}

// Exists reports whether the element id currently has a row.
func (s *SQLStore) Exists(elementType string, eid int64) bool {
	var count int64
	s.db.Model(&models.ElementRow{}).
		Where("network_id = ? AND element_type = ? AND eid = ?", s.networkID, elementType, eid).
		Count(&count)
	return count > 0
}

// HasColumn reports whether the column is declared on the type's schema.
func (s *SQLStore) HasColumn(elementType, column string) bool {
	ts, ok := s.schema(elementType)
	if !ok {
		return false
	}
	return ts.Columns.Contains(column)
}

// GetColumn returns column values keyed by element id. Missing tables and
// undeclared columns both yield an empty map.
func (s *SQLStore) GetColumn(elementType, column string) map[int64]any {
	out := map[int64]any{}
	if !s.HasColumn(elementType, column) {
		return out
	}
	var rows []models.ElementRow
	if err := s.db.Where("network_id = ? AND element_type = ?", s.networkID, elementType).
		Order("eid").Find(&rows).Error; err != nil {
		return out
	}
	for _, r := range rows {
		if v, ok := r.Attrs[column]; ok {
			out[r.EID] = v
		}
	}
	return out
}

// GetAttr reads one attribute of one element.
func (s *SQLStore) GetAttr(elementType string, eid int64, column string) (any, bool) {
	var row models.ElementRow
	err := s.db.Where("network_id = ? AND element_type = ? AND eid = ?", s.networkID, elementType, eid).
		First(&row).Error
	if err != nil {
		return nil, false
	}
	v, ok := row.Attrs[column]
	return v, ok
}

// SetColumnValue writes one attribute of one element. The column must be
// declared on the table's schema.
func (s *SQLStore) SetColumnValue(elementType string, eid int64, column string, value any) error {
	ts, ok := s.schema(elementType)
	if !ok {
		return &TableNotFoundError{ElementType: elementType}
	}
	if !ts.Columns.Contains(column) {
		return &ColumnNotFoundError{ElementType: elementType, Column: column}
	}
	var row models.ElementRow
	err := s.db.Where("network_id = ? AND element_type = ? AND eid = ?", s.networkID, elementType, eid).
		First(&row).Error
	if err != nil {
		return err
	}
	if row.Attrs == nil {
		row.Attrs = models.AttrMap{}
	}
	row.Attrs[column] = value
	return s.db.Model(&row).Update("attrs", row.Attrs).Error
}

// GetResultField reads a computed result field. ok is false for missing
// elements, undeclared fields, and undefined (null) values.
func (s *SQLStore) GetResultField(elementType string, eid int64, field string) (float64, bool) {
	var row models.ElementRow
	err := s.db.Where("network_id = ? AND element_type = ? AND eid = ?", s.networkID, elementType, eid).
		First(&row).Error
	if err != nil {
		return 0, false
	}
	v, ok := row.Results[field]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// CreateTable declares an element table for this network.
func (s *SQLStore) CreateTable(elementType string, columns, resultFields []string) (*models.TableSchema, error) {
	if _, exists := s.schema(elementType); exists {
		return nil, errors.New("element table already exists")
	}
	ts := models.TableSchema{
		NetworkID:    s.networkID,
		ElementType:  elementType,
		Columns:      models.StringList(columns),
		ResultFields: models.StringList(resultFields),
	}
	if err := s.db.Create(&ts).Error; err != nil {
		return nil, err
	}
	return &ts, nil
}

// Tables lists the declared element tables.
func (s *SQLStore) Tables() ([]models.TableSchema, error) {
	var tables []models.TableSchema
	err := s.db.Where("network_id = ?", s.networkID).Order("element_type").Find(&tables).Error
	return tables, err
}

// InsertRow adds an element. Attribute keys outside the declared columns are
// rejected so the schema stays authoritative.
func (s *SQLStore) InsertRow(elementType string, eid int64, attrs map[string]any) (*models.ElementRow, error) {
	ts, ok := s.schema(elementType)
	if !ok {
		return nil, &TableNotFoundError{ElementType: elementType}
	}
	for col := range attrs {
		if !ts.Columns.Contains(col) {
			return nil, &ColumnNotFoundError{ElementType: elementType, Column: col}
		}
	}
	if s.Exists(elementType, eid) {
		return nil, &RowExistsError{ElementType: elementType, EID: eid}
	}
	row := models.ElementRow{
		NetworkID:   s.networkID,
		ElementType: elementType,
		EID:         eid,
		Attrs:       models.AttrMap(attrs),
		Results:     models.ResultMap{},
	}
	if row.Attrs == nil {
		row.Attrs = models.AttrMap{}
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteRow removes an element. Dangling group members left behind are the
// auditor's problem, matching how out-of-band table edits behave.
func (s *SQLStore) DeleteRow(elementType string, eid int64) error {
	res := s.db.Where("network_id = ? AND element_type = ? AND eid = ?", s.networkID, elementType, eid).
		Delete(&models.ElementRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Rows lists the element rows of one table, ordered by element id.
func (s *SQLStore) Rows(elementType string) ([]models.ElementRow, error) {
	var rows []models.ElementRow
	err := s.db.Where("network_id = ? AND element_type = ?", s.networkID, elementType).
		Order("eid").Find(&rows).Error
	return rows, err
}

// EIDs lists the element ids of one table in storage order.
func (s *SQLStore) EIDs(elementType string) ([]int64, error) {
	var ids []int64
	err := s.db.Model(&models.ElementRow{}).
		Where("network_id = ? AND element_type = ?", s.networkID, elementType).
		Order("eid").Pluck("eid", &ids).Error
	return ids, err
}

// SetResult writes one result field of one element. A nil value marks the
// field undefined, which readers see as a missing value.
func (s *SQLStore) SetResult(elementType string, eid int64, field string, value *float64) error {
	var row models.ElementRow
	err := s.db.Where("network_id = ? AND element_type = ? AND eid = ?", s.networkID, elementType, eid).
		First(&row).Error
	if err != nil {
		return err
	}
	if row.Results == nil {
		row.Results = models.ResultMap{}
	}
	row.Results[field] = value
	return s.db.Model(&row).Update("results", row.Results).Error
}

// ClearResults marks every result field of an element undefined. Used when an
// element drops out of service and its last computed values must not be
// readable as if they were still fresh.
func (s *SQLStore) ClearResults(elementType string, eid int64) error {
	var row models.ElementRow
	err := s.db.Where("network_id = ? AND element_type = ? AND eid = ?", s.networkID, elementType, eid).
		First(&row).Error
	if err != nil {
		return err
	}
	cleared := models.ResultMap{}
	for field := range row.Results {
		cleared[field] = nil
	}
	return s.db.Model(&row).Update("results", cleared).Error
}
