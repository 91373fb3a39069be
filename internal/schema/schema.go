// Package schema holds the output schema descriptor and validates documents against it.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Schema is the subset of JSON Schema the pipeline understands.
type Schema struct {
	Type        string             `json:"type,omitempty" yaml:"type,omitempty"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Required    []string           `json:"required,omitempty" yaml:"required,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// JSON renders the schema for embedding in prompts.
func (s *Schema) JSON() string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Parse decodes a JSON schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if s.Type == "" && len(s.Properties) == 0 {
		return nil, fmt.Errorf("parse schema: empty schema")
	}
	return &s, nil
}

// Load reads a JSON schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(data)
}

func str(desc string) *Schema {
	return &Schema{Type: "string", Description: desc}
}

func strList(desc string) *Schema {
	return &Schema{Type: "array", Description: desc, Items: &Schema{Type: "string"}}
}

// Default returns the tutorial document schema used when the caller supplies none.
func Default() *Schema {
	step := &Schema{
		Type:     "object",
		Required: []string{"description", "details"},
		Properties: map[string]*Schema{
			"description": str("Step description"),
			"details":     str("Detailed explanation of the step"),
			"duration":    str("Estimated time for this step (optional)"),
			"materials":   strList("Required materials or tools (optional)"),
		},
	}
	section := &Schema{
		Type:     "object",
		Required: []string{"title", "content", "steps"},
		Properties: map[string]*Schema{
			"title":   str("Section title"),
			"content": str("Section overview"),
			"steps":   {Type: "array", Items: step},
		},
	}
	return &Schema{
		Type:     "object",
		Required: []string{"title", "summary", "sections"},
		Properties: map[string]*Schema{
			"title":    str("The title of the tutorial"),
			"summary":  str("A brief overview of what the tutorial covers"),
			"sections": {Type: "array", Items: section},
			"difficulty": {
				Type:        "string",
				Enum:        []string{"beginner", "intermediate", "advanced"},
				Description: "The difficulty level of the tutorial",
			},
			"keywords": strList("Relevant keywords for searchability"),
		},
	}
}
