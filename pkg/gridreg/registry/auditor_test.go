package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerflow-tools/gridreg/pkg/gridreg/models"
)

func TestPruneDanglingShrinksEntry(t *testing.T) {
	db, st, reg := newTestRegistry(t)
	auditor := NewAuditor(db, st, st.NetworkID())

	gid := mustCreate(t, reg, "feeder", map[string][]any{"load": {int64(5), int64(6)}}, nil)
	require.NoError(t, st.DeleteRow("load", 6))

	notices, err := auditor.PruneDangling()
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, DiagShrunkEntry, notices[0].Kind)
	assert.Equal(t, gid, notices[0].GroupID)
	assert.Equal(t, "load", notices[0].ElementType)

	eids, _, err := reg.ResolveMembers(gid, "load")
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, eids)

	entries, err := reg.Entries(gid)
	require.NoError(t, err)
	assert.Equal(t, models.MemberList{int64(5)}, entries[0].Members)
}

func TestPruneDanglingRemovesDeadEntry(t *testing.T) {
	db, st, reg := newTestRegistry(t)
	auditor := NewAuditor(db, st, st.NetworkID())

	gid := mustCreate(t, reg, "shrinking", map[string][]any{"load": {int64(6)}, "bus": {int64(1)}}, nil)
	require.NoError(t, st.DeleteRow("load", 6))

	notices, err := auditor.PruneDangling()
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, DiagDanglingEntry, notices[0].Kind)

	entries, err := reg.Entries(gid)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bus", entries[0].ElementType)

	// Losing the last entry removes the group itself.
	require.NoError(t, st.DeleteRow("bus", 1))
	notices, err = auditor.PruneDangling()
	require.NoError(t, err)
	require.Len(t, notices, 1)

	_, err = reg.Entries(gid)
	var unknown *UnknownGroupError
	assert.ErrorAs(t, err, &unknown)
}

func TestPruneDanglingByColumn(t *testing.T) {
	db, st, reg := newTestRegistry(t)
	auditor := NewAuditor(db, st, st.NetworkID())

	gid := mustCreate(t, reg, "named",
		map[string][]any{"bus": {"Bus 3", "Bus 4"}},
		map[string]string{"bus": "name"})
	require.NoError(t, st.DeleteRow("bus", 4))

	notices, err := auditor.PruneDangling()
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, DiagShrunkEntry, notices[0].Kind)

	entries, err := reg.Entries(gid)
	require.NoError(t, err)
	assert.Equal(t, models.MemberList{"Bus 3"}, entries[0].Members)
}

func TestPruneDanglingIsIdempotent(t *testing.T) {
	db, st, reg := newTestRegistry(t)
	auditor := NewAuditor(db, st, st.NetworkID())

	mustCreate(t, reg, "feeder", map[string][]any{"load": {int64(5), int64(6)}}, nil)
	require.NoError(t, st.DeleteRow("load", 6))

	notices, err := auditor.PruneDangling()
	require.NoError(t, err)
	require.Len(t, notices, 1)

	notices, err = auditor.PruneDangling()
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestPruneDanglingLeavesHealthyGroupsAlone(t *testing.T) {
	db, st, reg := newTestRegistry(t)
	auditor := NewAuditor(db, st, st.NetworkID())

	gid := mustCreate(t, reg, "healthy", map[string][]any{"load": {int64(0), int64(1)}}, nil)

	notices, err := auditor.PruneDangling()
	require.NoError(t, err)
	assert.Empty(t, notices)

	entries, err := reg.Entries(gid)
	require.NoError(t, err)
	assert.Equal(t, models.MemberList{int64(0), int64(1)}, entries[0].Members)
}

func TestNormalizeRepairsScalarMembers(t *testing.T) {
	db, st, reg := newTestRegistry(t)
	auditor := NewAuditor(db, st, st.NetworkID())

	gid := mustCreate(t, reg, "corrupted", map[string][]any{"load": {int64(5)}}, nil)
	// Simulate an out-of-band writer storing a bare scalar instead of an array.
	require.NoError(t, db.Exec(
		"UPDATE group_entries SET members = ? WHERE network_id = ? AND group_id = ?",
		"5", st.NetworkID(), gid).Error)

	repaired, err := auditor.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	var raw string
	require.NoError(t, db.Raw(
		"SELECT members FROM group_entries WHERE network_id = ? AND group_id = ?",
		st.NetworkID(), gid).Scan(&raw).Error)
	assert.Equal(t, "[5]", raw)

	// The repaired entry still resolves in order.
	eids, _, err := reg.ResolveMembers(gid, "load")
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, eids)

	repaired, err = auditor.Normalize()
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestNormalizeRepairsScalarColumnValue(t *testing.T) {
	db, st, reg := newTestRegistry(t)
	auditor := NewAuditor(db, st, st.NetworkID())

	gid := mustCreate(t, reg, "corrupted",
		map[string][]any{"bus": {"Bus 2"}},
		map[string]string{"bus": "name"})
	require.NoError(t, db.Exec(
		"UPDATE group_entries SET members = ? WHERE network_id = ? AND group_id = ?",
		`"Bus 2"`, st.NetworkID(), gid).Error)

	repaired, err := auditor.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	entries, err := reg.Entries(gid)
	require.NoError(t, err)
	assert.Equal(t, models.MemberList{"Bus 2"}, entries[0].Members)
}
