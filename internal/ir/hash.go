package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainDataset    = "geosafe/dataset/v1"
	DomainProvenance = "geosafe/provenance/v1"
	DomainParams     = "geosafe/params/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes already-canonical bytes under a domain.
func HashCanonical(domain string, canonical []byte) string {
	return hashWithDomain(domain, canonical)
}

// fingerprintRecord is the identity-bearing part of a record.
// Validity and notes are excluded: they describe processing, not content.
type fingerprintRecord struct {
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// DatasetFingerprint computes the content hash of a dataset: its CRS and
// the geometry and attributes of every record in order. Names and source
// paths do not contribute, so the same data loaded from two files
// fingerprints identically.
func DatasetFingerprint(ds Dataset) (string, error) {
	recs := make([]fingerprintRecord, len(ds.Records))
	for i, r := range ds.Records {
		props := r.Properties
		if props == nil {
			props = map[string]any{}
		}
		recs[i] = fingerprintRecord{Geometry: r.Geometry, Properties: props}
	}
	canonical, err := MarshalCanonical(struct {
		CRS     string              `json:"crs"`
		Records []fingerprintRecord `json:"records"`
	}{ds.CRS, recs})
	if err != nil {
		return "", fmt.Errorf("DatasetFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainDataset, canonical), nil
}

// ParamsHash computes a stable hash of operation parameters.
func ParamsHash(params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	canonical, err := MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("ParamsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainParams, canonical), nil
}

// MustDatasetFingerprint is like DatasetFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDatasetFingerprint(ds Dataset) string {
	fp, err := DatasetFingerprint(ds)
	if err != nil {
		panic(err)
	}
	return fp
}
