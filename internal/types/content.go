package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Content is extracted content as decoded JSON. Its shape is whatever the job's
// schema declares, so it is kept untyped; Document gives a typed view of the
// fields the exporters understand.
type Content map[string]any

// Clone deep-copies nested objects and arrays.
func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	return Content(cloneValue(map[string]any(c)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case Content:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Document reads the tutorial fields out of c. Values of an unexpected type are
// rendered as text rather than dropped; unknown fields are ignored.
func (c Content) Document() Document {
	d := Document{
		Title:        text(c["title"]),
		Summary:      text(c["summary"]),
		Difficulty:   text(c["difficulty"]),
		TimeEstimate: text(c["timeEstimate"]),
		Keywords:     texts(c["keywords"]),
	}
	for _, item := range items(c["materials"]) {
		if m, ok := item.(map[string]any); ok {
			d.Materials = append(d.Materials, Material{Name: text(m["name"]), Quantity: text(m["quantity"]), Notes: text(m["notes"])})
			continue
		}
		if name := text(item); name != "" {
			d.Materials = append(d.Materials, Material{Name: name})
		}
	}
	for _, item := range items(c["sections"]) {
		m, ok := item.(map[string]any)
		if !ok {
			d.Sections = append(d.Sections, Section{Content: text(item)})
			continue
		}
		sec := Section{Title: text(m["title"]), Content: text(m["content"])}
		for _, st := range items(m["steps"]) {
			sm, ok := st.(map[string]any)
			if !ok {
				sec.Steps = append(sec.Steps, Step{Description: text(st)})
				continue
			}
			sec.Steps = append(sec.Steps, Step{
				Title:       text(sm["title"]),
				Description: text(sm["description"]),
				Details:     text(sm["details"]),
				Duration:    text(sm["duration"]),
				Materials:   texts(sm["materials"]),
			})
		}
		d.Sections = append(d.Sections, sec)
	}
	return d
}

// items treats a scalar as a one-element list.
func items(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func texts(v any) []string {
	var out []string
	for _, item := range items(v) {
		if s := text(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		return strings.Join(texts(t), ", ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
