package executor

import (
	"context"
	"testing"
	"time"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/internal/nodes"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Register("passthrough", nodes.NewPassthrough, nodes.PassthroughSchema()))
	require.NoError(t, r.Register("stream_filter", nodes.NewStreamFilter, nodes.StreamFilterSchema()))
	require.NoError(t, r.Register("failing", nodes.NewFailingNode, nodes.FailingNodeSchema()))
	require.NoError(t, r.Register("joiner", nodes.NewJoiner, nodes.JoinerSchema()))
	return r
}

func testNowUs() uint64 { return 0 }

func mustAudioFrame(t *testing.T, streamID string, v float32) frame.Frame {
	t.Helper()
	f, err := frame.NewAudio(streamID, 16000, 1, []float32{v})
	require.NoError(t, err)
	return f
}

func TestSession_LinearPipelinePassesFrameThrough(t *testing.T) {
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "in", NodeType: "passthrough", IsStreaming: true},
			{ID: "out", NodeType: "passthrough", IsStreaming: true},
		},
		Connections: []manifest.Connection{{From: "in", To: "out"}},
	}
	s, err := NewSession("s1", m, testRegistry(t), config.Default().Executor, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateStreaming, s.State())

	require.NoError(t, s.SendInput(context.Background(), "in", mustAudioFrame(t, "a", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.RecvOutput(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", out.StreamID)

	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, StateClosed, s.State())
}

func TestSession_FanOutClonesToEachBranch(t *testing.T) {
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "in", NodeType: "passthrough"},
			{ID: "branch_a", NodeType: "passthrough"},
			{ID: "branch_b", NodeType: "passthrough"},
		},
		Connections: []manifest.Connection{
			{From: "in", To: "branch_a"},
			{From: "in", To: "branch_b"},
		},
	}
	s, err := NewSession("s2", m, testRegistry(t), config.Default().Executor, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.SendInput(context.Background(), "in", mustAudioFrame(t, "a", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		out, err := s.RecvOutput(ctx)
		require.NoError(t, err)
		seen[out.StreamID] = true
		require.Equal(t, float32(1), out.Audio.Samples[0])
	}
	require.True(t, seen["a"])
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_MultiInputFanInMerge(t *testing.T) {
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "a", NodeType: "passthrough"},
			{ID: "b", NodeType: "passthrough"},
			{ID: "join", NodeType: "joiner"},
		},
		Connections: []manifest.Connection{
			{From: "a", To: "join"},
			{From: "b", To: "join"},
		},
	}
	s, err := NewSession("s3", m, testRegistry(t), config.Default().Executor, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.SendInput(context.Background(), "a", mustAudioFrame(t, "a", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.RecvOutput(ctx)
	require.NoError(t, err)
	require.Equal(t, frame.VariantText, out.Variant)
	require.Equal(t, "a", out.Text)
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_ControlFrameForksToAllDownstream(t *testing.T) {
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "in", NodeType: "passthrough"},
			{ID: "branch_a", NodeType: "passthrough"},
			{ID: "branch_b", NodeType: "passthrough"},
		},
		Connections: []manifest.Connection{
			{From: "in", To: "branch_a"},
			{From: "in", To: "branch_b"},
		},
	}
	s, err := NewSession("s4", m, testRegistry(t), config.Default().Executor, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	ctrl, err := frame.NewBatchHint("sess", 1000, 5)
	require.NoError(t, err)
	require.NoError(t, s.SendInput(context.Background(), "in", ctrl))

	// Terminal nodes have no outgoing edges, so the forked control frame is
	// absorbed there; asserting no panic/deadlock and a clean close is the
	// end-to-end signal that forking traversed the whole fan-out.
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_SkipPolicySwallowsErrors(t *testing.T) {
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "in", NodeType: "failing", ErrorPolicy: manifest.PolicySkip,
				Params: map[string]any{"fail_count": 100}},
		},
	}
	s, err := NewSession("s5", m, testRegistry(t), config.Default().Executor, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.SendInput(context.Background(), "in", mustAudioFrame(t, "a", 1)))

	// No output should ever arrive since every attempt fails and skip
	// swallows it; closing promptly proves the node task did not abort.
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_RetryPolicyRecoversWithinMaxAttempts(t *testing.T) {
	cfg := config.Default().Executor
	cfg.RetryBaseDelayMs = 1
	cfg.RetryMaxDelayMs = 5
	cfg.RetryMaxAttempts = 5
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "in", NodeType: "failing", ErrorPolicy: manifest.PolicyRetry,
				Params: map[string]any{"fail_count": 2}},
		},
	}
	s, err := NewSession("s6", m, testRegistry(t), cfg, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.SendInput(context.Background(), "in", mustAudioFrame(t, "a", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.RecvOutput(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", out.StreamID)
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_FatalPolicyAbortsSession(t *testing.T) {
	cfg := config.Default().Executor
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "in", NodeType: "failing", ErrorPolicy: manifest.PolicyFatal,
				Params: map[string]any{"fail_count": 100}},
		},
	}
	s, err := NewSession("s7", m, testRegistry(t), cfg, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.SendInput(context.Background(), "in", mustAudioFrame(t, "a", 1)))

	err = s.Close(context.Background())
	require.Error(t, err)
}

func TestSession_StateTransitionsAreForwardOnly(t *testing.T) {
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes:   []manifest.Node{{ID: "in", NodeType: "passthrough"}},
	}
	s, err := NewSession("s8", m, testRegistry(t), config.Default().Executor, commons.NewTestLogger(), testNowUs)
	require.NoError(t, err)
	require.Equal(t, StateCreated, s.State())
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateStreaming, s.State())
	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, StateClosed, s.State())

	// Closed cannot transition anywhere.
	require.Error(t, s.transition(StateStreaming))
}
