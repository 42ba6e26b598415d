package ir

// Version constants for the provenance schema and the toolkit.
const (
	// SchemaVersion is the provenance document schema version.
	SchemaVersion = "1"

	// ToolVersion is the geosafe version.
	ToolVersion = "0.1.0"
)
