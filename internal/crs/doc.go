// Package crs resolves coordinate reference system identifiers to their
// metadata and defines the projection engine boundary.
//
// Resolution goes through a Registry that caches each Reference for the
// lifetime of the process. The package-level registry is configured with
// Init and cleared with Reset; tests typically build their own Registry.
package crs
