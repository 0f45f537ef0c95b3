package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lumen/internal/store"
)

// seedProject creates a project database with one four-head bar.
func seedProject(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.PutFixture(ctx, store.Fixture{
		ID: "bar-1", Name: "Bar", FixturePath: "f/bar.json", ModeName: "4head",
		PosX: 2, PosY: 0, PosZ: 3,
	}))
	require.NoError(t, s.PutFixtureHeads(ctx, "bar-1", "4head", []store.HeadOffset{
		{HeadIndex: 0, X: -300},
		{HeadIndex: 1, X: -100},
		{HeadIndex: 2, X: 100},
		{HeadIndex: 3, X: 300},
	}))
	return path
}

const dimmerGraphDoc = `{
  "nodes": [
    {"id": "sel", "typeId": "select", "params": {"selected_ids": "[\"bar-1\"]"}},
    {"id": "dim", "typeId": "scalar", "params": {"value": 0.5}},
    {"id": "apply", "typeId": "apply_dimmer", "params": {}}
  ],
  "edges": [
    {"id": "e1", "fromNode": "sel", "fromPort": "out", "toNode": "apply", "toPort": "selection"},
    {"id": "e2", "fromNode": "dim", "fromPort": "out", "toNode": "apply", "toPort": "signal"}
  ]
}`

func TestRunCommandAnimatesSelection(t *testing.T) {
	db := seedProject(t)
	graphPath := writeGraph(t, dimmerGraphDoc)

	out, _, err := execute(t, "--format", "json", "run", "--db", db, "--end", "4", graphPath)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)

	require.Len(t, resp.Data.Layers.Primitives, 4)
	first := resp.Data.Layers.Primitives[0]
	assert.Equal(t, "bar-1:0", first.PrimitiveID)
	require.NotNil(t, first.Dimmer)
	require.Len(t, first.Dimmer.Samples, 2)
	assert.Equal(t, []float32{0.5}, first.Dimmer.Samples[0].Values)
	assert.Equal(t, float32(4), first.Dimmer.Samples[1].Time)

	require.Len(t, resp.Data.Result.Timings, 3)
}

func TestRunCommandTextSummary(t *testing.T) {
	db := seedProject(t)
	graphPath := writeGraph(t, dimmerGraphDoc)

	out, _, err := execute(t, "run", "--db", db, graphPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Run complete")
	assert.Contains(t, out, "bar-1:0")
	assert.Contains(t, out, "dimmer(2)")
}

func TestRunCommandArgOverride(t *testing.T) {
	db := seedProject(t)
	graphPath := writeGraph(t, `{
  "nodes": [
    {"id": "args", "typeId": "pattern_args", "params": {}},
    {"id": "view", "typeId": "view_signal", "params": {}}
  ],
  "edges": [
    {"id": "e1", "fromNode": "args", "fromPort": "level", "toNode": "view", "toPort": "in"}
  ],
  "args": [
    {"id": "level", "name": "Level", "argType": "Scalar", "defaultValue": 1}
  ]
}`)

	out, _, err := execute(t, "--format", "json", "run",
		"--db", db, "--visualize", "--arg", "level=0.25", graphPath)
	require.NoError(t, err)

	var resp struct {
		Data RunOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	view, ok := resp.Data.Result.Views["view"]
	require.True(t, ok)
	assert.Equal(t, []float32{0.25}, view.Data)
}

func TestRunCommandConfigFile(t *testing.T) {
	db := seedProject(t)
	cfgPath := writeConfig(t, "database: "+db+"\n")
	graphPath := writeGraph(t, dimmerGraphDoc)

	_, _, err := execute(t, "run", "--config", cfgPath, graphPath)
	require.NoError(t, err)
}

func TestRunCommandRequiresDatabase(t *testing.T) {
	graphPath := writeGraph(t, dimmerGraphDoc)

	_, _, err := execute(t, "run", graphPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no database")
}

func TestRunCommandRejectsEmptyWindow(t *testing.T) {
	db := seedProject(t)
	graphPath := writeGraph(t, dimmerGraphDoc)

	_, _, err := execute(t, "run", "--db", db, "--start", "4", "--end", "4", graphPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandRejectsBadArgFlag(t *testing.T) {
	db := seedProject(t)
	graphPath := writeGraph(t, dimmerGraphDoc)

	_, _, err := execute(t, "run", "--db", db, "--arg", "tint", graphPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected id=JSON")

	_, _, err = execute(t, "run", "--db", db, "--arg", "tint={r:", graphPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestRunCommandRejectsInvalidGraph(t *testing.T) {
	db := seedProject(t)
	graphPath := writeGraph(t, `{"nodes": "not a list"}`)

	_, _, err := execute(t, "run", "--db", db, graphPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
