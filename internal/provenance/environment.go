package provenance

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/roach88/geosafe/internal/ir"
)

// Environment describes where a run executed.
type Environment struct {
	ToolVersion      string `json:"tool_version"`
	GoVersion        string `json:"go_version"`
	OS               string `json:"os"`
	Arch             string `json:"arch"`
	Hostname         string `json:"hostname,omitempty"`
	GeometryEngine   string `json:"geometry_engine,omitempty"`
	ProjectionEngine string `json:"projection_engine,omitempty"`
	Module           string `json:"module,omitempty"`
}

// CaptureEnvironment records the current process environment and the
// names of the engines in use.
func CaptureEnvironment(geometryEngine, projectionEngine string) Environment {
	env := Environment{
		ToolVersion:      ir.ToolVersion,
		GoVersion:        runtime.Version(),
		OS:               runtime.GOOS,
		Arch:             runtime.GOARCH,
		GeometryEngine:   geometryEngine,
		ProjectionEngine: projectionEngine,
	}
	if h, err := os.Hostname(); err == nil {
		env.Hostname = h
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		env.Module = info.Main.Path + "@" + info.Main.Version
	}
	return env
}
