package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
)

func newTestStore(t *testing.T) (*gorm.DB, *SQLStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	net := models.Network{Name: "Test Grid", Slug: "test-grid"}
	require.NoError(t, db.Create(&net).Error)
	return db, New(db, net.ID)
}

func TestCreateTable(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.CreateTable("bus", []string{"name", "vn_kv"}, []string{"vm_pu"})
	require.NoError(t, err)
	assert.True(t, st.HasTable("bus"))
	assert.True(t, st.HasColumn("bus", "name"))
	assert.False(t, st.HasColumn("bus", "vm_pu"))

	_, err = st.CreateTable("bus", []string{"name"}, nil)
	assert.Error(t, err)
}

func TestInsertRowValidation(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.InsertRow("bus", 0, nil)
	var tnf *TableNotFoundError
	require.ErrorAs(t, err, &tnf)

	_, err = st.CreateTable("bus", []string{"name"}, nil)
	require.NoError(t, err)

	_, err = st.InsertRow("bus", 0, map[string]any{"voltage": 110.0})
	var cnf *ColumnNotFoundError
	require.ErrorAs(t, err, &cnf)
	assert.Equal(t, "voltage", cnf.Column)

	_, err = st.InsertRow("bus", 0, map[string]any{"name": "Bus 0"})
	require.NoError(t, err)
	assert.True(t, st.Exists("bus", 0))

	_, err = st.InsertRow("bus", 0, map[string]any{"name": "Again"})
	var exists *RowExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, int64(0), exists.EID)
}

func TestGetColumnMissingYieldsEmpty(t *testing.T) {
	_, st := newTestStore(t)

	values := st.GetColumn("trafo", "name")
	assert.NotNil(t, values)
	assert.Empty(t, values)

	_, err := st.CreateTable("bus", []string{"name"}, nil)
	require.NoError(t, err)
	assert.Empty(t, st.GetColumn("bus", "voltage"))
}

func TestGetColumnSkipsRowsWithoutValue(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.CreateTable("bus", []string{"name"}, nil)
	require.NoError(t, err)
	_, err = st.InsertRow("bus", 0, map[string]any{"name": "Bus 0"})
	require.NoError(t, err)
	_, err = st.InsertRow("bus", 1, nil)
	require.NoError(t, err)

	values := st.GetColumn("bus", "name")
	assert.Equal(t, map[int64]any{0: "Bus 0"}, values)
}

func TestSetColumnValue(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.CreateTable("load", []string{"name", "p_mw"}, nil)
	require.NoError(t, err)
	_, err = st.InsertRow("load", 3, map[string]any{"name": "Load 3"})
	require.NoError(t, err)

	require.NoError(t, st.SetColumnValue("load", 3, "p_mw", 1.5))
	v, ok := st.GetAttr("load", 3, "p_mw")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	err = st.SetColumnValue("load", 3, "q_mvar", 0.2)
	var cnf *ColumnNotFoundError
	assert.ErrorAs(t, err, &cnf)

	err = st.SetColumnValue("trafo", 0, "name", "x")
	var tnf *TableNotFoundError
	assert.ErrorAs(t, err, &tnf)
}

func TestResultLifecycle(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.CreateTable("load", []string{"name"}, []string{"p_mw", "q_mvar"})
	require.NoError(t, err)
	_, err = st.InsertRow("load", 0, map[string]any{"name": "Load 0"})
	require.NoError(t, err)

	// Fresh rows have no results.
	_, ok := st.GetResultField("load", 0, "p_mw")
	assert.False(t, ok)

	v := 1.25
	require.NoError(t, st.SetResult("load", 0, "p_mw", &v))
	got, ok := st.GetResultField("load", 0, "p_mw")
	require.True(t, ok)
	assert.Equal(t, 1.25, got)

	// A nil write marks the field undefined again.
	require.NoError(t, st.SetResult("load", 0, "p_mw", nil))
	_, ok = st.GetResultField("load", 0, "p_mw")
	assert.False(t, ok)
}

func TestClearResults(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.CreateTable("load", []string{"name"}, []string{"p_mw", "q_mvar"})
	require.NoError(t, err)
	_, err = st.InsertRow("load", 0, nil)
	require.NoError(t, err)

	p, q := 1.0, 0.5
	require.NoError(t, st.SetResult("load", 0, "p_mw", &p))
	require.NoError(t, st.SetResult("load", 0, "q_mvar", &q))
	require.NoError(t, st.ClearResults("load", 0))

	_, ok := st.GetResultField("load", 0, "p_mw")
	assert.False(t, ok)
	_, ok = st.GetResultField("load", 0, "q_mvar")
	assert.False(t, ok)
}

func TestDeleteRow(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.CreateTable("bus", []string{"name"}, nil)
	require.NoError(t, err)
	_, err = st.InsertRow("bus", 4, nil)
	require.NoError(t, err)

	require.NoError(t, st.DeleteRow("bus", 4))
	assert.False(t, st.Exists("bus", 4))
	assert.ErrorIs(t, st.DeleteRow("bus", 4), gorm.ErrRecordNotFound)
}

func TestEIDsOrdered(t *testing.T) {
	_, st := newTestStore(t)

	_, err := st.CreateTable("bus", []string{"name"}, nil)
	require.NoError(t, err)
	for _, eid := range []int64{5, 1, 3} {
		_, err = st.InsertRow("bus", eid, nil)
		require.NoError(t, err)
	}

	ids, err := st.EIDs("bus")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5}, ids)
}

func TestStoresAreScopedToNetwork(t *testing.T) {
	db, st := newTestStore(t)

	other := models.Network{Name: "Other Grid", Slug: "other-grid"}
	require.NoError(t, db.Create(&other).Error)
	otherStore := New(db, other.ID)

	_, err := st.CreateTable("bus", []string{"name"}, nil)
	require.NoError(t, err)
	_, err = st.InsertRow("bus", 0, map[string]any{"name": "Bus 0"})
	require.NoError(t, err)

	assert.False(t, otherStore.HasTable("bus"))
	assert.False(t, otherStore.Exists("bus", 0))
	assert.Empty(t, otherStore.GetColumn("bus", "name"))
}
