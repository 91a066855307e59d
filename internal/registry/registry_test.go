package registry

import (
	"context"
	"testing"

	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNode struct{}

func (stubNode) Initialize(ctx context.Context) error { return nil }
func (stubNode) Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error) {
	return []frame.Frame{in}, nil
}
func (stubNode) Close() error { return nil }

func stubFactory(id string, params map[string]any, logger commons.Logger) (Node, error) {
	return stubNode{}, nil
}

func TestRegister_DuplicateRejected(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", stubFactory, Schema{}))
	err := r.Register("echo", stubFactory, Schema{})
	assert.Error(t, err)
}

func TestInstantiate_UnknownType(t *testing.T) {
	r := New()
	_, err := r.Instantiate(manifest.Node{ID: "n1", NodeType: "missing"}, commons.NewTestLogger())
	assert.Error(t, err)
}

func TestValidateManifest_UnknownNodeType(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", stubFactory, Schema{}))

	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes:   []manifest.Node{{ID: "a", NodeType: "does-not-exist"}},
	}
	err := r.ValidateManifest(m)
	require.Error(t, err)
	ve := err.(*manifest.ValidationError)
	assert.Len(t, ve.Findings, 1)
}

func TestValidateManifest_ParamValidation(t *testing.T) {
	r := New()
	schema := Schema{
		ValidateParams: func(params map[string]any) error {
			if _, ok := params["required_key"]; !ok {
				return assert.AnError
			}
			return nil
		},
	}
	require.NoError(t, r.Register("typed", stubFactory, schema))

	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes:   []manifest.Node{{ID: "a", NodeType: "typed", Params: map[string]any{}}},
	}
	err := r.ValidateManifest(m)
	assert.Error(t, err)

	m.Nodes[0].Params = map[string]any{"required_key": 1}
	assert.NoError(t, r.ValidateManifest(m))
}

func TestValidateManifest_MultiInputRequiresDeclaration(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("src", stubFactory, Schema{}))
	require.NoError(t, r.Register("sink", stubFactory, Schema{MultiInput: false}))

	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "a", NodeType: "src"},
			{ID: "b", NodeType: "src"},
			{ID: "c", NodeType: "sink"},
		},
		Connections: []manifest.Connection{
			{From: "a", To: "c"},
			{From: "b", To: "c"},
		},
	}
	err := r.ValidateManifest(m)
	assert.Error(t, err)
}

func TestAccepts_NoDeclaredTypesAcceptsAnything(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("any", stubFactory, Schema{}))
	assert.True(t, r.Accepts("any", frame.VariantAudio))
	assert.False(t, r.Accepts("missing", frame.VariantAudio))
}
