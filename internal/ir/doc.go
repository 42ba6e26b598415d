// Package ir provides the core data model shared by every geosafe package.
//
// It contains geometries, datasets, records and the decision records that the
// guard, the validator and the safe operations append to provenance. ir
// imports nothing internal; all other internal packages import ir.
//
// Key design constraints:
//   - Geometries are plain coordinate trees; the geometry kernel lives behind
//     an interface elsewhere
//   - Datasets are values: operations return new datasets, never mutate inputs
//   - All JSON tags use snake_case
//   - Hashes are SHA-256 over RFC 8785 canonical JSON with domain separation
package ir
