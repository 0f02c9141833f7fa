package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/record"
)

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	tbl := record.New()

	require.NoError(t, tbl.Insert(&record.Record{Name: "a"}))
	require.NoError(t, tbl.Insert(&record.Record{Name: "b"}))

	a, ok := tbl.GetByRef("a")
	require.True(t, ok)
	b, ok := tbl.GetByRef("b")
	require.True(t, ok)

	assert.Equal(t, 0, a.ID)
	assert.Equal(t, 1, b.ID)
}

func TestInsertRejectsDuplicateName(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Insert(&record.Record{Name: "a"}))

	err := tbl.Insert(&record.Record{Name: "a"})
	assert.ErrorIs(t, err, record.ErrNameTaken)
	assert.Equal(t, 1, tbl.Len())
}

func TestRestoreRejectsDuplicateID(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Restore(&record.Record{ID: 5, Name: "a"}))

	err := tbl.Restore(&record.Record{ID: 5, Name: "b"})
	assert.ErrorIs(t, err, record.ErrIDTaken)
}

func TestGetByRefIDTakesPriorityOverName(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Restore(&record.Record{ID: 1, Name: "1"}))
	require.NoError(t, tbl.Restore(&record.Record{ID: 2, Name: "other"}))

	// "1" parses as an id; id 1 exists, so it wins over any record literally
	// named "1" having a different id (there isn't one here, but the lookup
	// must not fall through to name matching once the id resolves).
	rec, ok := tbl.GetByRef("1")
	require.True(t, ok)
	assert.Equal(t, 1, rec.ID)
}

func TestGetByRefFallsBackToName(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Insert(&record.Record{Name: "web"}))

	rec, ok := tbl.GetByRef("web")
	require.True(t, ok)
	assert.Equal(t, "web", rec.Name)
}

func TestRenameAtomicOnConflict(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Insert(&record.Record{Name: "a"}))
	require.NoError(t, tbl.Insert(&record.Record{Name: "b"}))

	b, _ := tbl.GetByRef("b")
	err := tbl.Rename(b, "a")
	assert.ErrorIs(t, err, record.ErrNameTaken)

	_, aStillThere := tbl.GetByRef("a")
	_, bStillThere := tbl.GetByRef("b")
	assert.True(t, aStillThere)
	assert.True(t, bStillThere)
}

func TestRenameUpdatesBothIndexes(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Insert(&record.Record{Name: "a"}))
	a, _ := tbl.GetByRef("a")

	require.NoError(t, tbl.Rename(a, "renamed"))

	_, oldGone := tbl.GetByRef("a")
	found, newThere := tbl.GetByRef("renamed")
	assert.False(t, oldGone)
	assert.True(t, newThere)
	assert.Equal(t, a.ID, found.ID)
}

func TestRemoveInvalidatesLookup(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Insert(&record.Record{Name: "a"}))

	assert.True(t, tbl.Remove("a"))
	_, ok := tbl.GetByRef("a")
	assert.False(t, ok)
	assert.False(t, tbl.Remove("a"))
}

func TestIterIsInsertionOrder(t *testing.T) {
	tbl := record.New()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, tbl.Insert(&record.Record{Name: name}))
	}

	var names []string
	for _, rec := range tbl.Iter() {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestResetRequiresEmptyTable(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Insert(&record.Record{Name: "a"}))

	assert.Error(t, tbl.Reset())

	tbl.Remove("a")
	assert.NoError(t, tbl.Reset())
	assert.Equal(t, 0, tbl.NextID())
}

func TestIDsNeverReusedWithinLifetime(t *testing.T) {
	tbl := record.New()
	require.NoError(t, tbl.Insert(&record.Record{Name: "a"}))
	tbl.Remove("a")
	require.NoError(t, tbl.Insert(&record.Record{Name: "b"}))

	b, _ := tbl.GetByRef("b")
	assert.Equal(t, 1, b.ID, "id 0 must not be reissued after removal")
}

func TestCloneIsIndependent(t *testing.T) {
	rec := &record.Record{Name: "a", Env: map[string]string{"K": "V"}, Watch: &record.Watch{Enabled: true, Path: "/tmp"}}
	cp := rec.Clone()
	cp.Env["K"] = "changed"
	cp.Watch.Path = "/other"

	assert.Equal(t, "V", rec.Env["K"])
	assert.Equal(t, "/tmp", rec.Watch.Path)
}

func TestParseMaxMemory(t *testing.T) {
	n, err := record.ParseMaxMemory("")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	n, err = record.ParseMaxMemory("512M")
	require.NoError(t, err)
	assert.Greater(t, n, uint64(0))

	bigger, err := record.ParseMaxMemory("2G")
	require.NoError(t, err)
	assert.Greater(t, bigger, n, "2G must parse larger than 512M")

	_, err = record.ParseMaxMemory("not-a-size")
	assert.Error(t, err)
}
