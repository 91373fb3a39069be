package types

// Document is the typed view of Content used by the exporters.
type Document struct {
	Title        string     `json:"title,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Sections     []Section  `json:"sections"`
	Difficulty   string     `json:"difficulty,omitempty"`
	Keywords     []string   `json:"keywords"`
	Materials    []Material `json:"materials,omitempty"`
	TimeEstimate string     `json:"timeEstimate,omitempty"`
}

type Section struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Steps   []Step `json:"steps"`
}

type Step struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Details     string   `json:"details,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Materials   []string `json:"materials,omitempty"`
}

type Material struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Notes    string `json:"notes,omitempty"`
}
