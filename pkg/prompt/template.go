// Package prompt provides the centralized prompt builder for all pipeline
// stages. Prompts are composed from fixed templates with named slots;
// dynamic data (asset context, tool listings, conversation history) only
// enters through a declared slot, never by ad-hoc concatenation.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var slotPattern = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Template is a prompt template with named slots of the form {{slot}}.
// Immutable after parse; Render fails on missing or unknown slots so a
// template change cannot silently drop data.
type Template struct {
	name  string
	text  string
	slots map[string]struct{}
}

// MustParse parses a template, panicking on a slotless dynamic template
// name collision. Template tables are package constants, so failures are
// programming errors caught at init.
func MustParse(name, text string) *Template {
	t := &Template{
		name:  name,
		text:  text,
		slots: make(map[string]struct{}),
	}
	for _, match := range slotPattern.FindAllStringSubmatch(text, -1) {
		t.slots[match[1]] = struct{}{}
	}
	return t
}

// Name returns the template's identifier.
func (t *Template) Name() string { return t.name }

// Render substitutes every slot with its value. Every declared slot must
// be provided and every provided value must correspond to a slot.
func (t *Template) Render(values map[string]string) (string, error) {
	for slot := range t.slots {
		if _, ok := values[slot]; !ok {
			return "", fmt.Errorf("template %s: missing value for slot %q", t.name, slot)
		}
	}
	for key := range values {
		if _, ok := t.slots[key]; !ok {
			return "", fmt.Errorf("template %s: value for unknown slot %q", t.name, key)
		}
	}

	out := slotPattern.ReplaceAllStringFunc(t.text, func(match string) string {
		slot := strings.Trim(match, "{}")
		return values[slot]
	})
	return out, nil
}
