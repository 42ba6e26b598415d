package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRun(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(t, testOptions("run-trace"), "run", "--db", w.db, w.path("transit.yaml"))
	require.NoError(t, err)

	out, err := execute(t, testOptions(""), "trace", "--db", w.db, "run-trace")
	require.NoError(t, err)
	assert.Contains(t, out, "Run: run-trace")
	assert.Contains(t, out, "Pipeline: transit")
	assert.Contains(t, out, "=== Timeline ===")
	assert.Contains(t, out, "Engines: geometry=planar-test projection=affine-test")
	assert.Contains(t, out, "3 succeeded")

	out, err = execute(t, testOptions(""), "trace", "--db", w.db, "--format", "json", "run-trace")
	require.NoError(t, err)
	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "run-trace", resp.Data.RunID)
	require.NotEmpty(t, resp.Data.Timeline)
	last := resp.Data.Timeline[len(resp.Data.Timeline)-1]
	assert.Equal(t, "task", last.Kind)
	assert.Equal(t, "catchment", last.Node)
	assert.Equal(t, "succeeded", last.Outcome)
}

func TestTraceListAndBlocked(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(t, testOptions("run-a"), "run", "--db", w.db, w.path("transit.yaml"))
	require.NoError(t, err)
	_, err = execute(t, testOptions("run-b"), "run", "--db", w.db, w.path("mixed.yaml"))
	require.Error(t, err)

	out, err := execute(t, testOptions(""), "trace", "--db", w.db)
	require.NoError(t, err)
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "run-b")

	out, err = execute(t, testOptions(""), "trace", "--db", w.db, "--pipeline", "mixed")
	require.NoError(t, err)
	assert.NotContains(t, out, "run-a")
	assert.Contains(t, out, "run-b")

	out, err = execute(t, testOptions(""), "trace", "--db", w.db, "--blocked")
	require.NoError(t, err)
	assert.Contains(t, out, "run-b")
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "assign")
	assert.NotContains(t, out, "run-a")
}

func TestTraceYAML(t *testing.T) {
	w := newWorkspace(t)
	_, err := execute(t, testOptions("run-yaml"), "run", "--db", w.db, w.path("transit.yaml"))
	require.NoError(t, err)

	out, err := execute(t, testOptions(""), "trace", "--db", w.db, "--yaml", "run-yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "run_id: run-yaml")
}

func TestTraceErrors(t *testing.T) {
	w := newWorkspace(t)

	_, err := execute(t, testOptions(""), "trace", "--db", w.db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")

	_, err = execute(t, testOptions("run-x"), "run", "--db", w.db, w.path("transit.yaml"))
	require.NoError(t, err)
	_, err = execute(t, testOptions(""), "trace", "--db", w.db, "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, testOptions(""), "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01927c1e...1b2c3d4e", truncateID("01927c1e-7d1c-7c3e-9f00-1b2c3d4e"))
}
