package safeops

import "github.com/roach88/geosafe/internal/ir"

// attributeClashes returns the attribute names used by both datasets.
// Clashes are decided per dataset, not per record, so every output record
// of one operation uses the same attribute names.
func attributeClashes(a, b ir.Dataset) map[string]bool {
	left := map[string]bool{}
	for _, r := range a.Records {
		for k := range r.Properties {
			left[k] = true
		}
	}
	clash := map[string]bool{}
	for _, r := range b.Records {
		for k := range r.Properties {
			if left[k] {
				clash[k] = true
			}
		}
	}
	return clash
}

// renameProperties copies props, appending suffix to clashing names.
func renameProperties(props map[string]any, clash map[string]bool, suffix string) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if clash[k] {
			k += suffix
		}
		out[k] = v
	}
	return out
}

// mergeProperties combines two attribute maps, suffixing clashing names on
// each side.
func mergeProperties(left, right map[string]any, clash map[string]bool, leftSuffix, rightSuffix string) map[string]any {
	if left == nil && right == nil {
		return nil
	}
	out := renameProperties(left, clash, leftSuffix)
	if out == nil {
		out = make(map[string]any, len(right))
	}
	for k, v := range renameProperties(right, clash, rightSuffix) {
		out[k] = v
	}
	return out
}
