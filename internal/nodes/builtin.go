// Package nodes provides small, dependency-free node implementations used
// as pipeline building blocks and as executor test fixtures: a
// passthrough, a stream-id router, and a node that fails on demand.
package nodes

import (
	"context"

	"github.com/rapidaai/runtime/internal/errs"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"
)

// Passthrough forwards every input frame unchanged. Useful as a graph's
// identity node and as a minimal fixture in tests.
type Passthrough struct{}

func (Passthrough) Initialize(ctx context.Context) error { return nil }
func (Passthrough) Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error) {
	return []frame.Frame{in}, nil
}
func (Passthrough) Close() error { return nil }

// NewPassthrough is a registry.Factory for Passthrough.
func NewPassthrough(nodeID string, params map[string]any, logger commons.Logger) (registry.Node, error) {
	return Passthrough{}, nil
}

// PassthroughSchema declares Passthrough's (absence of) constraints.
func PassthroughSchema() registry.Schema {
	return registry.Schema{SupportsStreaming: true, LatencyClass: registry.LatencyRealtime}
}

// StreamFilter drops any frame whose StreamID does not match the
// configured stream_id param.
type StreamFilter struct {
	streamID string
}

func (f *StreamFilter) Initialize(ctx context.Context) error { return nil }
func (f *StreamFilter) Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error) {
	if in.StreamID != f.streamID {
		return nil, nil
	}
	return []frame.Frame{in}, nil
}
func (f *StreamFilter) Close() error { return nil }

// NewStreamFilter is a registry.Factory for StreamFilter.
func NewStreamFilter(nodeID string, params map[string]any, logger commons.Logger) (registry.Node, error) {
	id, _ := params["stream_id"].(string)
	return &StreamFilter{streamID: id}, nil
}

// StreamFilterSchema declares StreamFilter's params contract.
func StreamFilterSchema() registry.Schema {
	return registry.Schema{
		SupportsStreaming: true,
		LatencyClass:      registry.LatencyRealtime,
		ValidateParams: func(params map[string]any) error {
			if _, ok := params["stream_id"].(string); !ok {
				return errs.New(errs.Config, "stream_filter requires a string stream_id param")
			}
			return nil
		},
	}
}

// FailingNode fails its first fail_count Process calls and then passes
// frames through; it exists for error-policy tests (fatal/retry/skip).
type FailingNode struct {
	failuresLeft int
}

func (n *FailingNode) Initialize(ctx context.Context) error { return nil }
func (n *FailingNode) Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error) {
	if n.failuresLeft > 0 {
		n.failuresLeft--
		return nil, errs.New(errs.Execution, "failing node: synthetic failure")
	}
	return []frame.Frame{in}, nil
}
func (n *FailingNode) Close() error { return nil }

// NewFailingNode is a registry.Factory for FailingNode. The
// fail_count param controls how many Process calls fail before it starts
// succeeding, letting tests exercise the retry policy's recovery path.
func NewFailingNode(nodeID string, params map[string]any, logger commons.Logger) (registry.Node, error) {
	count := 0
	if v, ok := params["fail_count"].(int); ok {
		count = v
	}
	return &FailingNode{failuresLeft: count}, nil
}

// FailingNodeSchema declares FailingNode's (absence of) constraints.
func FailingNodeSchema() registry.Schema {
	return registry.Schema{SupportsStreaming: true}
}

// Joiner is a minimal multi-input node: each call emits one Text frame
// joining the ids of the upstreams present in the merged input (in map
// iteration order, so not a fixed order), exercising the keyed merge
// contract (§4.1). The upstream frames' values are not included.
type Joiner struct{}

func (Joiner) Initialize(ctx context.Context) error { return nil }
func (Joiner) Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error) {
	return []frame.Frame{in}, nil
}
func (Joiner) ProcessMulti(ctx context.Context, ins map[string]frame.Frame) ([]frame.Frame, error) {
	return []frame.Frame{{Variant: frame.VariantText, Text: joinedKeys(ins)}}, nil
}
func (Joiner) Close() error { return nil }

func joinedKeys(ins map[string]frame.Frame) string {
	out := ""
	for k := range ins {
		if out != "" {
			out += ","
		}
		out += k
	}
	return out
}

// NewJoiner is a registry.Factory for Joiner.
func NewJoiner(nodeID string, params map[string]any, logger commons.Logger) (registry.Node, error) {
	return Joiner{}, nil
}

// JoinerSchema declares Joiner's multi-input contract.
func JoinerSchema() registry.Schema {
	return registry.Schema{MultiInput: true, SupportsStreaming: true}
}
