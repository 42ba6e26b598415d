package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodes(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", base, ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad manifest"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "blocked", base)), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}

	wrapped := WrapExitError(ExitCommandError, "failed to load manifest", base)
	assert.Equal(t, "failed to load manifest: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, base)
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"run_id": "run-1"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"run_id": "run-1"}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"stops": "EPSG:4326", "districts": "EPSG:32610"}
	require.NoError(t, formatter.Error("CRS_MISMATCH", "inputs have different CRSs", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CRS_MISMATCH", resp.Error.Code)
	assert.Equal(t, "inputs have different CRSs", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(VersionInfo{Version: "1.2.3", SchemaVersion: "1"}))
	assert.Contains(t, buf.String(), "geosafe 1.2.3")

	buf.Reset()
	require.NoError(t, formatter.Error("UNSAFE_UNITS", "buffer in degrees", map[string]string{"crs": "EPSG:4326"}))
	assert.Contains(t, buf.String(), "Error [UNSAFE_UNITS]: buffer in degrees")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("UNSAFE_UNITS", "buffer in degrees", map[string]string{"crs": "EPSG:4326"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tt.verbose}

			formatter.VerboseLog("loading %s", "stops.geojson")

			assert.Empty(t, out.String(), "diagnostics never corrupt JSON output")
			if tt.wantLog {
				assert.Contains(t, diag.String(), "loading stops.geojson")
			} else {
				assert.Empty(t, diag.String())
			}
		})
	}
}
