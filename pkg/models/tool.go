package models

// Capability is a named behavior a tool offers (e.g., "service_restart").
type Capability struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// PatternFeatures is the raw feature vector attached to an invocation
// pattern, consumed by the Stage AB hybrid scorer.
type PatternFeatures struct {
	TimeMS       int     `json:"time_ms" yaml:"time_ms"`
	Cost         float64 `json:"cost" yaml:"cost"`
	Accuracy     float64 `json:"accuracy" yaml:"accuracy"`
	Completeness float64 `json:"completeness" yaml:"completeness"`
	Complexity   float64 `json:"complexity" yaml:"complexity"`
	Limitations  string  `json:"limitations,omitempty" yaml:"limitations,omitempty"`
}

// Pattern is a specific invocation shape of a tool.
type Pattern struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Features    PatternFeatures `json:"features" yaml:"features"`
	// InputSchema constrains the inputs Stage C may materialize for steps
	// using this pattern. Keys are input names; values are short type hints.
	InputSchema map[string]string `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
}

// IntentTag maps an (category, action) intent pair to this tool.
type IntentTag struct {
	Category string `json:"category" yaml:"category"`
	Action   string `json:"action" yaml:"action"`
}

// ToolProfile is the catalog entity describing one tool. Profiles are
// loaded once at startup and are read-only afterwards; a replacement index
// is swapped atomically on reload.
type ToolProfile struct {
	ToolName    string       `json:"tool_name" yaml:"tool_name"`
	Platform    string       `json:"platform" yaml:"platform"`
	Category    string       `json:"category" yaml:"category"`
	Description string       `json:"description" yaml:"description"`
	Capabilities []Capability `json:"capabilities" yaml:"capabilities"`
	Patterns    []Pattern    `json:"patterns" yaml:"patterns"`
	IntentTags  []IntentTag  `json:"intent_tags,omitempty" yaml:"intent_tags,omitempty"`
	// Destructive marks tools whose capabilities mutate infrastructure
	// (restart, delete, deploy). Drives risk clamping and approval rules.
	Destructive bool `json:"destructive,omitempty" yaml:"destructive,omitempty"`
}

// HasCapability reports whether the profile advertises the named capability.
func (p *ToolProfile) HasCapability(name string) bool {
	for _, c := range p.Capabilities {
		if c.Name == name {
			return true
		}
	}
	return false
}

// BestPattern returns the pattern with the highest accuracy, or nil when
// the profile has none. Used when Stage AB selects a tool without naming
// a specific pattern.
func (p *ToolProfile) BestPattern() *Pattern {
	if len(p.Patterns) == 0 {
		return nil
	}
	best := &p.Patterns[0]
	for i := range p.Patterns[1:] {
		if p.Patterns[i+1].Features.Accuracy > best.Features.Accuracy {
			best = &p.Patterns[i+1]
		}
	}
	return best
}

// PatternByName returns the named pattern, if present.
func (p *ToolProfile) PatternByName(name string) (*Pattern, bool) {
	for i := range p.Patterns {
		if p.Patterns[i].Name == name {
			return &p.Patterns[i], true
		}
	}
	return nil, false
}
