package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietlab/explog"
	"github.com/quietlab/explog/internal/testutil"
)

// newFixtureStore builds a small closed store: one experiment with one
// condition, one repetition, and five mouse samples.
func newFixtureStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.db")

	clk := testutil.NewSteppedClock(time.Unix(1700000000, 0), time.Second)
	l, err := explog.Open(path, explog.WithClock(clk), explog.WithExperimenter("kw"))
	require.NoError(t, err)

	_, err = l.Create(explog.Stream, "mouse", explog.WithDescription("cursor samples"))
	require.NoError(t, err)

	_, err = l.Enter("Experiment")
	require.NoError(t, err)
	_, err = l.Enter("ConditionA")
	require.NoError(t, err)
	_, err = l.Enter("")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = l.Record("mouse", map[string]any{"x": i, "y": i * 2})
		require.NoError(t, err)
	}
	require.NoError(t, l.Leave())
	require.NoError(t, l.Leave())
	require.NoError(t, l.Leave())
	require.NoError(t, l.Close())
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRenderSessionTree_Golden(t *testing.T) {
	nodes := []SessionNode{
		{Path: "/", Instances: 1},
		{Path: "/Experiment", Instances: 2},
		{Path: "/Experiment/ConditionA", Instances: 2},
		{Path: "/Experiment/ConditionA/0", Instances: 1},
		{Path: "/Experiment/ConditionA/1", Instances: 1},
		{Path: "/Experiment/ConditionB", Instances: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSessionTree(&buf, nodes))

	g := goldie.New(t)
	g.Assert(t, "session_tree", buf.Bytes())
}

func TestInfoCommand_JSON(t *testing.T) {
	path := newFixtureStore(t)

	out, err := runCommand(t, "info", "--db", path, "--format", "json")
	require.NoError(t, err)

	var result InfoResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "init", result.Stage)
	assert.Equal(t, 4, result.Sessions, "root, experiment, condition, repetition")
	assert.Equal(t, 5, result.LogRows)
	assert.Equal(t, 0, result.DirtyExits)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, "kw", result.Runs[0].Experimenter)
	assert.NotNil(t, result.Runs[0].End, "run was closed cleanly")
	assert.NotEmpty(t, result.Dataset["dataset_id"])
}

func TestSessionsCommand_Text(t *testing.T) {
	path := newFixtureStore(t)

	out, err := runCommand(t, "sessions", "--db", path)
	require.NoError(t, err)
	assert.Equal(t,
		"/ [1]\n"+
			"  Experiment [1]\n"+
			"    ConditionA [1]\n"+
			"      0 [1]\n",
		out)
}

func TestStreamsCommand_JSON(t *testing.T) {
	path := newFixtureStore(t)

	out, err := runCommand(t, "streams", "--db", path, "--format", "json")
	require.NoError(t, err)

	var result StreamsResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Streams, 1)
	assert.Equal(t, "mouse", result.Streams[0].Name)
	assert.Equal(t, "cursor samples", result.Streams[0].Description)
	assert.Equal(t, 5, result.Streams[0].Rows)
	assert.False(t, result.Streams[0].HasSchema)
}

func TestTailCommand_CountAndOrder(t *testing.T) {
	path := newFixtureStore(t)

	out, err := runCommand(t, "tail", "mouse", "--db", path, "--format", "json", "-n", "3")
	require.NoError(t, err)

	var result TailResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "mouse", result.Stream)
	require.Len(t, result.Rows, 3)
	// The last three rows, oldest first.
	assert.JSONEq(t, `{"x":2,"y":4}`, string(result.Rows[0].Data))
	assert.JSONEq(t, `{"x":4,"y":8}`, string(result.Rows[2].Data))
	assert.Less(t, result.Rows[0].ID, result.Rows[2].ID)
}

func TestTailCommand_UnknownStream(t *testing.T) {
	path := newFixtureStore(t)

	_, err := runCommand(t, "tail", "nonexistent", "--db", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRootCommand_RequiresDatabase(t *testing.T) {
	_, err := runCommand(t, "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db is required")
}

func TestRootCommand_RejectsBadFormat(t *testing.T) {
	_, err := runCommand(t, "info", "--db", "x.db", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
