package stream

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlab/explog/internal/clock"
	"github.com/quietlab/explog/internal/meta"
	"github.com/quietlab/explog/internal/store"
	"github.com/quietlab/explog/internal/testutil"
)

type fixture struct {
	db      *store.DB
	reg     *meta.Registry
	streams *Registry
	session int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := meta.NewRegistry(db)
	require.NoError(t, reg.InitStage(time.Now()))

	clk := testutil.NewSteppedClock(time.Unix(1700000000, 0), time.Millisecond)
	streams, err := NewRegistry(db, reg, clk)
	require.NoError(t, err)

	pathID, err := db.Insert(`INSERT INTO meta (mtype, name) VALUES ('PATH', '/')`)
	require.NoError(t, err)
	session, err := db.Insert(
		`INSERT INTO session (start_time, path) VALUES (?, ?)`, 1700000000.0, pathID,
	)
	require.NoError(t, err)

	return &fixture{db: db, reg: reg, streams: streams, session: session}
}

func TestAppend_RoundTrip(t *testing.T) {
	f := newFixture(t)

	_, err := f.streams.Create("mouse", meta.Attrs{Description: "cursor samples"})
	require.NoError(t, err)

	rowID, err := f.streams.Append("mouse", f.session, Record{
		Data: map[string]any{"x": 0, "y": 10},
		Tag:  "probe",
	})
	require.NoError(t, err)

	row, err := f.streams.Get(rowID)
	require.NoError(t, err)
	assert.Equal(t, f.session, row.Session)
	assert.True(t, row.Valid)
	assert.Equal(t, "probe", row.Tag)
	assert.JSONEq(t, `{"x":0,"y":10}`, string(row.JSON))
	assert.Zero(t, row.BinaryID)

	// Later appends never carry earlier timestamps.
	nextID, err := f.streams.Append("mouse", f.session, Record{Data: map[string]any{"x": 1, "y": 11}})
	require.NoError(t, err)
	next, err := f.streams.Get(nextID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, next.Time, row.Time)
}

func TestAppend_AutoRegistersOnce(t *testing.T) {
	f := newFixture(t)

	// No Create: the first append registers a blank entry, later appends
	// reuse it.
	_, err := f.streams.Append("surprise", f.session, Record{Data: 1})
	require.NoError(t, err)
	_, err = f.streams.Append("surprise", f.session, Record{Data: 2})
	require.NoError(t, err)

	var n int
	require.NoError(t, f.db.QueryRow(
		`SELECT COUNT(*) FROM meta WHERE mtype = 'STREAM' AND name = 'surprise'`,
	).Scan(&n))
	assert.Equal(t, 1, n)

	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM log`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestAppend_NonNFCNameHitsCache(t *testing.T) {
	f := newFixture(t)

	composed := "café"
	decomposed := "café"
	id, err := f.streams.Create(composed, meta.Attrs{})
	require.NoError(t, err)

	// The decomposed spelling addresses the same stream through the cache;
	// no second catalog entry, no non-canonical cache key.
	_, err = f.streams.Append(decomposed, f.session, Record{Data: 1})
	require.NoError(t, err)

	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM meta WHERE mtype = 'STREAM'`).Scan(&n))
	assert.Equal(t, 1, n)

	assert.Len(t, f.streams.ids, 1)
	assert.Equal(t, id, f.streams.ids[composed])

	row, err := f.streams.Get(mustLastLog(t, f.db))
	require.NoError(t, err)
	assert.Equal(t, id, row.StreamID)
}

func mustLastLog(t *testing.T, db *store.DB) int64 {
	t.Helper()
	var id int64
	require.NoError(t, db.QueryRow(`SELECT MAX(id) FROM log`).Scan(&id))
	return id
}

func TestCreate_DuplicatePolicy(t *testing.T) {
	f := newFixture(t)

	attrs := meta.Attrs{Description: "cursor samples", Data: map[string]any{"hz": 120}}
	id1, err := f.streams.Create("mouse", attrs)
	require.NoError(t, err)

	// Identical re-registration is a no-op.
	id2, err := f.streams.Create("mouse", attrs)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Conflicting metadata is refused.
	_, err = f.streams.Create("mouse", meta.Attrs{Description: "something else"})
	require.Error(t, err)
	assert.True(t, meta.IsConfiguration(err))
}

func TestCreate_GeneratesView(t *testing.T) {
	f := newFixture(t)

	_, err := f.streams.Create("mouse", meta.Attrs{})
	require.NoError(t, err)
	_, err = f.streams.Append("mouse", f.session, Record{Data: map[string]any{"x": 1}})
	require.NoError(t, err)

	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM "mouse"`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestAppend_SerializationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.streams.Create("bad", meta.Attrs{})
	require.NoError(t, err)

	before := logCount(t, f.db)
	_, err = f.streams.Append("bad", f.session, Record{Data: make(chan int)})
	require.Error(t, err)
	assert.True(t, IsSerialization(err))
	assert.Equal(t, before, logCount(t, f.db), "failed append inserts nothing")
}

func TestAppend_SchemaValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.streams.Create("mouse", meta.Attrs{
		Schema: `{x: int, y: int}`,
	})
	require.NoError(t, err)

	_, err = f.streams.Append("mouse", f.session, Record{
		Data: map[string]any{"x": 3, "y": 4},
	})
	assert.NoError(t, err, "conforming payload accepted")

	before := logCount(t, f.db)
	_, err = f.streams.Append("mouse", f.session, Record{
		Data: map[string]any{"x": "not an int", "y": 4},
	})
	require.Error(t, err)
	assert.True(t, IsSchema(err))
	assert.Equal(t, before, logCount(t, f.db))
}

func TestCreate_RejectsBadSchema(t *testing.T) {
	f := newFixture(t)

	_, err := f.streams.Create("broken", meta.Attrs{Schema: `{x: int`})
	require.Error(t, err)
	assert.True(t, meta.IsConfiguration(err))
}

func TestSchemas_SurviveReload(t *testing.T) {
	f := newFixture(t)

	_, err := f.streams.Create("mouse", meta.Attrs{Schema: `{x: int}`})
	require.NoError(t, err)

	// A new registry over the same store recompiles the persisted schema.
	clk := testutil.NewSteppedClock(time.Unix(1700000100, 0), time.Millisecond)
	reloaded, err := NewRegistry(f.db, f.reg, clk)
	require.NoError(t, err)

	_, err = reloaded.Append("mouse", f.session, Record{Data: map[string]any{"x": "bad"}})
	require.Error(t, err)
	assert.True(t, IsSchema(err))
}

func TestAppend_BinaryRoundTrip(t *testing.T) {
	f := newFixture(t)

	blob := []byte{0x00, 0x01, 0xFF, 0xFE}
	rowID, err := f.streams.Append("frames", f.session, Record{Binary: blob})
	require.NoError(t, err)

	row, err := f.streams.Get(rowID)
	require.NoError(t, err)
	require.NotZero(t, row.BinaryID)

	got, err := f.streams.Binary(row.BinaryID)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestSetValid_FlipsFlag(t *testing.T) {
	f := newFixture(t)

	rowID, err := f.streams.Append("mouse", f.session, Record{Data: 1})
	require.NoError(t, err)

	require.NoError(t, f.streams.SetValid(rowID, false))
	row, err := f.streams.Get(rowID)
	require.NoError(t, err)
	assert.False(t, row.Valid)

	require.NoError(t, f.streams.SetValid(rowID, true))
	row, err = f.streams.Get(rowID)
	require.NoError(t, err)
	assert.True(t, row.Valid)
}

func TestAppend_InvalidAtWrite(t *testing.T) {
	f := newFixture(t)

	rowID, err := f.streams.Append("mouse", f.session, Record{Data: 1, Invalid: true})
	require.NoError(t, err)

	row, err := f.streams.Get(rowID)
	require.NoError(t, err)
	assert.False(t, row.Valid)
}

func logCount(t *testing.T, db *store.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM log`).Scan(&n))
	return n
}

func BenchmarkAppend(b *testing.B) {
	db, err := store.Open(filepath.Join(b.TempDir(), "bench.db"), time.Second)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	reg := meta.NewRegistry(db)
	if err := reg.InitStage(time.Now()); err != nil {
		b.Fatal(err)
	}
	streams, err := NewRegistry(db, reg, clock.System{})
	if err != nil {
		b.Fatal(err)
	}
	pathID, err := db.Insert(`INSERT INTO meta (mtype, name) VALUES ('PATH', '/')`)
	if err != nil {
		b.Fatal(err)
	}
	session, err := db.Insert(
		`INSERT INTO session (start_time, path) VALUES (?, ?)`, 1700000000.0, pathID,
	)
	if err != nil {
		b.Fatal(err)
	}
	if _, err := streams.Create("bench", meta.Attrs{}); err != nil {
		b.Fatal(err)
	}

	payload := map[string]any{"x": 12, "y": 34}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := streams.Append("bench", session, Record{Data: payload}); err != nil {
			b.Fatal(err)
		}
	}
}
