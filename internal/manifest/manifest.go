// Package manifest parses and validates the declarative pipeline graph
// document (§4.7).
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/rapidaai/runtime/internal/errs"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only manifest version string this runtime
// accepts. Unknown versions are rejected rather than best-effort parsed,
// per §6.
const SupportedVersion = "v1"

// RuntimeHint places a node: auto-selected, in-process, or out-of-process
// via the IPC fabric.
type RuntimeHint string

const (
	RuntimeAuto    RuntimeHint = "Auto"
	RuntimeRust    RuntimeHint = "Rust"
	RuntimeForeign RuntimeHint = "Foreign"
)

// ErrorPolicy selects how the executor reacts to a node task error (§4.1).
type ErrorPolicy string

const (
	PolicyFatal ErrorPolicy = "fatal"
	PolicyRetry ErrorPolicy = "retry"
	PolicySkip  ErrorPolicy = "skip"
)

// Node describes one manifest node.
type Node struct {
	ID          string         `yaml:"id" json:"id"`
	NodeType    string         `yaml:"node_type" json:"node_type"`
	Params      map[string]any `yaml:"params" json:"params"`
	IsStreaming bool           `yaml:"is_streaming" json:"is_streaming"`
	RuntimeHint RuntimeHint    `yaml:"runtime_hint" json:"runtime_hint"`
	InputTypes  []string       `yaml:"input_types" json:"input_types"`
	OutputTypes []string       `yaml:"output_types" json:"output_types"`
	ErrorPolicy ErrorPolicy    `yaml:"error_policy" json:"error_policy"`
}

// Connection describes one manifest edge.
type Connection struct {
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	Port     string `yaml:"port,omitempty" json:"port,omitempty"`
	StreamID string `yaml:"stream_id,omitempty" json:"stream_id,omitempty"`
}

// Manifest is the parsed graph document (§4.7).
type Manifest struct {
	Version     string            `yaml:"version" json:"version"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata"`
	Nodes       []Node            `yaml:"nodes" json:"nodes"`
	Connections []Connection      `yaml:"connections" json:"connections"`
}

// ParseYAML parses a manifest document in YAML form.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrap(errs.Config, "", err)
	}
	return &m, nil
}

// ParseJSON parses a manifest document in JSON form.
func ParseJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrap(errs.Config, "", err)
	}
	return &m, nil
}

// ValidationError collects every structural finding from Validate so a
// caller gets one structured error listing all of them (§7).
type ValidationError struct {
	Findings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest validation failed with %d finding(s): %v", len(e.Findings), e.Findings)
}

// StructuralCheck validates identity and connection integrity that does
// not require the node registry: version, unique node IDs, and that every
// connection references declared nodes. Schema-aware checks (unknown node
// types, parameter shape) live in the registry package, which composes
// this with type lookups.
func StructuralCheck(m *Manifest) error {
	var findings []string

	if m.Version != SupportedVersion {
		findings = append(findings, fmt.Sprintf("unsupported manifest version %q (expected %q)", m.Version, SupportedVersion))
	}

	seen := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		if n.ID == "" {
			findings = append(findings, "node with empty id")
			continue
		}
		if seen[n.ID] {
			findings = append(findings, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		seen[n.ID] = true
	}

	for i, c := range m.Connections {
		if !seen[c.From] {
			findings = append(findings, fmt.Sprintf("connection[%d]: source node %q not found", i, c.From))
		}
		if !seen[c.To] {
			findings = append(findings, fmt.Sprintf("connection[%d]: destination node %q not found", i, c.To))
		}
	}

	if len(findings) > 0 {
		return &ValidationError{Findings: findings}
	}
	return nil
}

// NodeByID returns the node with the given id, or ok=false.
func (m *Manifest) NodeByID(id string) (Node, bool) {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// ConnectionsFrom returns every connection whose source is nodeID, in
// manifest order.
func (m *Manifest) ConnectionsFrom(nodeID string) []Connection {
	var out []Connection
	for _, c := range m.Connections {
		if c.From == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsTo returns every connection whose destination is nodeID, in
// manifest order.
func (m *Manifest) ConnectionsTo(nodeID string) []Connection {
	var out []Connection
	for _, c := range m.Connections {
		if c.To == nodeID {
			out = append(out, c)
		}
	}
	return out
}
