package schema

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"video-docs-go/internal/types"
)

// Violation is one schema non-conformance.
type Violation struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Reason
	}
	return v.Path + ": " + v.Reason
}

// ValidationError carries every violation found in one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

// Validate checks content against s. On failure it returns a *types.Error of kind
// validation_error wrapping a *ValidationError with all violations.
func Validate(content types.Content, s *Schema) error {
	if s == nil {
		return nil
	}
	var value any
	if content != nil {
		value = map[string]any(content)
	}
	violations := ValidateValue(value, s)
	if len(violations) == 0 {
		return nil
	}
	verr := &ValidationError{Violations: violations}
	return &types.Error{Kind: types.KindValidation, Message: verr.Error(), Err: verr}
}

// ValidateValue walks a decoded JSON value and collects violations.
func ValidateValue(value any, s *Schema) []Violation {
	var out []Violation
	walk("", value, s, &out)
	return out
}

func walk(path string, value any, s *Schema, out *[]Violation) {
	if s == nil {
		return
	}
	add := func(reason string) {
		*out = append(*out, Violation{Path: path, Reason: reason})
	}

	if s.Type != "" && !typeMatches(s.Type, value) {
		add(fmt.Sprintf("expected %s, got %s", s.Type, typeName(value)))
		return
	}

	if len(s.Enum) > 0 {
		str, _ := value.(string)
		if !contains(s.Enum, str) {
			add(fmt.Sprintf("value %q is not one of [%s]", str, strings.Join(s.Enum, " ")))
		}
	}

	switch v := value.(type) {
	case map[string]any:
		for _, name := range s.Required {
			if isMissing(v[name]) {
				*out = append(*out, Violation{Path: join(path, name), Reason: "required field missing"})
			}
		}
		names := make([]string, 0, len(s.Properties))
		for name := range s.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child, ok := v[name]
			if !ok || child == nil {
				continue
			}
			walk(join(path, name), child, s.Properties[name], out)
		}
	case []any:
		for i, item := range v {
			walk(fmt.Sprintf("%s[%d]", path, i), item, s.Items, out)
		}
	}
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

func typeMatches(want string, v any) bool {
	switch want {
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case "boolean":
		_, ok := v.(bool)
		return ok
	default:
		return true
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
