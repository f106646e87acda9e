package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// AgentEntry is one worker agent as written in the file.
type AgentEntry struct {
	Name        string         `yaml:"-"`
	Type        string         `yaml:"type"`
	Description string         `yaml:"description"`
	Keywords    []string       `yaml:"keywords"`
	Enabled     *bool          `yaml:"enabled"`
	Config      map[string]any `yaml:"config"`
}

// IsEnabled reports the effective enabled flag; omitted means enabled.
func (a AgentEntry) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Agents preserves the order agents appear in the file. Routing rules are
// evaluated in this order.
type Agents []AgentEntry

// UnmarshalYAML decodes a name-keyed mapping without losing key order.
func (a *Agents) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*a = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: agents must be a mapping of name to agent", node.Line)
	}

	out := make(Agents, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var entry AgentEntry
		if err := valueNode.Decode(&entry); err != nil {
			return fmt.Errorf("agent %q: %w", keyNode.Value, err)
		}
		entry.Name = keyNode.Value
		out = append(out, entry)
	}
	*a = out
	return nil
}

// Get returns the entry named name.
func (a Agents) Get(name string) (AgentEntry, bool) {
	for _, entry := range a {
		if entry.Name == name {
			return entry, true
		}
	}
	return AgentEntry{}, false
}
