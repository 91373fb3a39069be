package merger

import (
	"encoding/json"

	"video-docs-go/internal/types"
)

const (
	sectionsKey = "sections"
	keywordsKey = "keywords"
)

// Merge combines per-chunk extraction results into one. Results must already be in
// chunk order. A single result is returned unchanged; for several, the sections
// arrays are concatenated, keywords are unioned by exact match in first-seen order
// and every other top-level field comes from the first result.
func Merge(results []types.Content) types.Content {
	switch len(results) {
	case 0:
		return types.Content{}
	case 1:
		return results[0]
	}

	out := results[0].Clone()
	if out == nil {
		out = types.Content{}
	}
	delete(out, sectionsKey)
	delete(out, keywordsKey)

	var (
		sections, keywords       []any
		haveSections, haveKwords bool
		seen                     = map[string]bool{}
	)
	for _, r := range results {
		if v, ok := r[sectionsKey]; ok {
			haveSections = true
			sections = append(sections, list(v)...)
		}
		if v, ok := r[keywordsKey]; ok {
			haveKwords = true
			for _, k := range list(v) {
				key := identity(k)
				if seen[key] {
					continue
				}
				seen[key] = true
				keywords = append(keywords, k)
			}
		}
	}
	if haveSections {
		out[sectionsKey] = nonNil(sections)
	}
	if haveKwords {
		out[keywordsKey] = nonNil(keywords)
	}
	return out
}

func list(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func nonNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

// identity is the exact-match key of a keyword. Strings compare as themselves;
// anything else by its JSON encoding.
func identity(v any) string {
	if s, ok := v.(string); ok {
		return "s:" + s
	}
	b, _ := json.Marshal(v)
	return "j:" + string(b)
}
