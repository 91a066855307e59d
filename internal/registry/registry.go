// Package registry holds the process-global node-type registry and
// schema used to validate manifests and instantiate node instances
// (§4.6).
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/rapidaai/runtime/internal/errs"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/pkg/commons"
)

// Node is the contract every node instance honors (§3 "Node instance",
// §4.1). A node may emit zero, one, or many output frames per input
// (streaming/multi-output); the executor pushes each as produced.
type Node interface {
	// Initialize may block (model loading, buffer allocation). A failure
	// here aborts session creation.
	Initialize(ctx context.Context) error
	// Process handles one input frame, returning zero or more outputs.
	Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error)
	// Close releases resources. Called once, after the node's input edge
	// is closed and any drain has run.
	Close() error
}

// MultiInputNode is implemented by nodes that declare is_multi_input in
// their schema; they receive a keyed mapping synchronized on arrival
// order rather than a single frame (§4.1).
type MultiInputNode interface {
	Node
	ProcessMulti(ctx context.Context, ins map[string]frame.Frame) ([]frame.Frame, error)
}

// ControlAware nodes declare supports_control = true and want to observe
// control frames forked to every downstream (§3, §4.1).
type ControlAware interface {
	HandleControl(ctx context.Context, c frame.Frame) ([]frame.Frame, error)
}

// Drainer nodes have in-flight state to flush when the session closes
// (§4.1 "Session.close()").
type Drainer interface {
	Drain(ctx context.Context) ([]frame.Frame, error)
}

// EventSink is implemented by nodes that publish named lifecycle events
// (§6's JSON lifecycle events — drift_alert, freeze, health,
// cancel_speculation) to the session's observer channel alongside their
// ordinary frame output. The session calls SetEventEmitter once, right
// after instantiating the node, before Initialize runs.
type EventSink interface {
	SetEventEmitter(emit func(eventType string, data map[string]any))
}

// LatencyClass is a coarse scheduling hint surfaced by a node's schema.
type LatencyClass string

const (
	LatencyRealtime LatencyClass = "realtime"
	LatencyNear     LatencyClass = "near-realtime"
	LatencyBatch    LatencyClass = "batch"
)

// Schema declares a node type's contract for manifest validation, static
// binding generation, and runtime instantiation (§4.6).
type Schema struct {
	Accepts  []frame.Variant
	Produces []frame.Variant

	SupportsStreaming bool
	MultiOutput       bool
	MultiInput        bool
	SupportsControl   bool
	Parallelizable    bool
	LatencyClass      LatencyClass

	// ValidateParams checks a manifest node's params document against
	// this type's expected shape. A nil func accepts any params.
	ValidateParams func(params map[string]any) error
}

func (s Schema) acceptsVariant(v frame.Variant) bool {
	if len(s.Accepts) == 0 {
		return true // nodes with no declared input types accept anything (e.g. source nodes)
	}
	for _, a := range s.Accepts {
		if a == v {
			return true
		}
	}
	return false
}

// Factory builds one node instance for one session. It is called once per
// (session, node_id) pair.
type Factory func(nodeID string, params map[string]any, logger commons.Logger) (Node, error)

type entry struct {
	factory Factory
	schema  Schema
}

// Registry is the process-global node-type → {factory, schema} mapping.
// It is immutable after registration completes (cmd/runtime-node
// registers its node types at startup, not in package init()), then
// read-only for the life of the process, matching §5's
// "process-global, immutable after initialization" resource policy.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var global = &Registry{entries: make(map[string]entry)}

// Global returns the process-wide registry, analogous to the IPC fabric's
// ChannelRegistry::global() singleton (§4.3) but for node types rather
// than channels.
func Global() *Registry { return global }

// New returns an independent registry, useful for tests that want
// isolation from Global().
func New() *Registry { return &Registry{entries: make(map[string]entry)} }

// Register adds a node type. Re-registering the same name is an error —
// unlike IPC channels, node types are not expected to be opened
// concurrently by independent subsystems.
func (r *Registry) Register(nodeType string, factory Factory, schema Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[nodeType]; exists {
		return errs.Newf(errs.Config, "node type %q already registered", nodeType)
	}
	r.entries[nodeType] = entry{factory: factory, schema: schema}
	return nil
}

// MustRegister panics on registration failure; used for startup
// registration, where a duplicate name is a programming error.
func (r *Registry) MustRegister(nodeType string, factory Factory, schema Schema) {
	if err := r.Register(nodeType, factory, schema); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for nodeType.
func (r *Registry) Lookup(nodeType string) (Factory, Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[nodeType]
	return e.factory, e.schema, ok
}

// Instantiate builds a node instance for the given manifest node.
func (r *Registry) Instantiate(n manifest.Node, logger commons.Logger) (Node, error) {
	factory, _, ok := r.Lookup(n.NodeType)
	if !ok {
		return nil, errs.Newf(errs.Config, "unknown node type %q for node %q", n.NodeType, n.ID)
	}
	node, err := factory(n.ID, n.Params, logger)
	if err != nil {
		return nil, errs.Wrap(errs.Config, n.ID, err)
	}
	return node, nil
}

// ValidateManifest runs §4.6's manifest validation: structural checks
// (§4.7, delegated to the manifest package) plus schema-aware checks —
// every referenced node type is known and every params document
// satisfies its type's schema. All findings are collected into one
// structured error rather than failing on the first (§7).
func (r *Registry) ValidateManifest(m *manifest.Manifest) error {
	var findings []string

	if err := manifest.StructuralCheck(m); err != nil {
		if ve, ok := err.(*manifest.ValidationError); ok {
			findings = append(findings, ve.Findings...)
		} else {
			findings = append(findings, err.Error())
		}
	}

	for _, n := range m.Nodes {
		_, schema, ok := r.Lookup(n.NodeType)
		if !ok {
			findings = append(findings, fmt.Sprintf("node %q: unknown node type %q", n.ID, n.NodeType))
			continue
		}
		if schema.ValidateParams != nil {
			if err := schema.ValidateParams(n.Params); err != nil {
				findings = append(findings, fmt.Sprintf("node %q: invalid params: %v", n.ID, err))
			}
		}
	}

	for i, c := range m.Connections {
		srcNode, srcOK := m.NodeByID(c.From)
		dstNode, dstOK := m.NodeByID(c.To)
		if !srcOK || !dstOK {
			continue // already reported by the structural check
		}
		_, dstSchema, dstKnown := r.Lookup(dstNode.NodeType)
		_, _, srcKnown := r.Lookup(srcNode.NodeType)
		if !srcKnown || !dstKnown {
			continue
		}
		if dstSchema.MultiInput {
			continue // multi-input nodes tolerate any upstream combination
		}
		if len(m.ConnectionsTo(c.To)) > 1 {
			findings = append(findings, fmt.Sprintf(
				"connection[%d]: destination %q receives multiple inbound edges but does not declare is_multi_input",
				i, c.To))
		}
	}

	if len(findings) > 0 {
		return &manifest.ValidationError{Findings: findings}
	}
	return nil
}

// Accepts reports whether nodeType's schema accepts variant v.
func (r *Registry) Accepts(nodeType string, v frame.Variant) bool {
	_, schema, ok := r.Lookup(nodeType)
	if !ok {
		return false
	}
	return schema.acceptsVariant(v)
}
