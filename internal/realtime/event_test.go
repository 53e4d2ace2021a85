package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProgressUpdate(t *testing.T) {
	payload := `{"table":"program_progress","type":"UPDATE",
		"old":{"id":"p1","person_id":"a","stage_base":"Semillas","module":2,"day":"domingo","week":0},
		"new":{"id":"p1","person_id":"a","stage_base":"Semillas","module":3,"day":"domingo","week":0,"archived_at":null}}`

	ev, err := Decode([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, KindUpdate, ev.Kind)
	assert.False(t, ev.At.IsZero())

	before, after, err := ev.Progress()
	require.NoError(t, err)
	require.NotNil(t, before)
	require.NotNil(t, after)
	assert.Equal(t, 2, before.Placement().Module)
	assert.Equal(t, 3, after.Placement().Module)
	assert.False(t, after.Placement().Removed)
}

func TestDecodeInsertHasNoPreviousImage(t *testing.T) {
	ev, err := Decode([]byte(`{"table":"program_progress","type":"INSERT","new":{"id":"p2","stage_base":"Restauración","module":null,"day":"sabado"}}`))
	require.NoError(t, err)

	before, after, err := ev.Progress()
	require.NoError(t, err)
	assert.Nil(t, before)
	require.NotNil(t, after)
	assert.Equal(t, 0, after.Placement().Module)
}

func TestArchivedRowIsRemoved(t *testing.T) {
	archived := "2026-01-01T00:00:00Z"
	row := ProgressRow{ID: "p1", StageBase: "Semillas", ArchivedAt: &archived}
	assert.True(t, row.Placement().Removed)
}

func TestDecodeRejectsIncompletePayload(t *testing.T) {
	_, err := Decode([]byte(`{"type":"INSERT"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestProgressOnOtherTable(t *testing.T) {
	ev := Event{Table: TableAttendance, Kind: KindInsert}
	_, _, err := ev.Progress()
	assert.ErrorIs(t, err, ErrNotProgress)
}

func TestPersonEvent(t *testing.T) {
	ev, err := Decode([]byte(`{"table":"people","type":"UPDATE","new":{"id":"a","full_name":"Ana Ruiz","phone":"555","cedula":null}}`))
	require.NoError(t, err)
	row, removed, err := ev.Person()
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, "Ana Ruiz", row.FullName)
	require.NotNil(t, row.Phone)
	assert.Nil(t, row.Cedula)

	ev, err = Decode([]byte(`{"table":"people","type":"DELETE","old":{"id":"a","full_name":"Ana Ruiz"}}`))
	require.NoError(t, err)
	row, removed, err = ev.Person()
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, "a", row.ID)

	_, _, err = Event{Table: TableProgress, Kind: KindUpdate}.Person()
	assert.ErrorIs(t, err, ErrNotPerson)
}
