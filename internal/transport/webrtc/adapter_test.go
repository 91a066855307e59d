package webrtc

import (
	"context"
	"testing"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/executor"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/internal/nodes"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"

	"github.com/stretchr/testify/require"
)

func TestPCMRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1, 0.25}
	bytes := floatsToPCMBytes(samples)
	back := pcmBytesToFloat32(bytes)
	require.Len(t, back, len(samples))
	for i, s := range samples {
		require.InDelta(t, s, back[i], 0.001)
	}
}

func TestSampleDuration(t *testing.T) {
	require.Equal(t, uint32(16000), uint32(SampleRate))
	d := sampleDuration(160, 1, 16000) // 160 mono samples at 16kHz = 10ms
	require.Equal(t, int64(10_000_000), d.Nanoseconds())
}

func testSession(t *testing.T) *executor.Session {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register("passthrough", nodes.NewPassthrough, nodes.PassthroughSchema()))
	m := &manifest.Manifest{
		Version: manifest.SupportedVersion,
		Nodes: []manifest.Node{
			{ID: "in", NodeType: "passthrough", IsStreaming: true},
			{ID: "out", NodeType: "passthrough", IsStreaming: true},
		},
		Connections: []manifest.Connection{{From: "in", To: "out"}},
	}
	clock := uint64(0)
	nowUs := func() uint64 { clock++; return clock }
	sess, err := executor.NewSession("webrtc-test", m, reg, config.Default().Executor, commons.NewTestLogger(), nowUs)
	require.NoError(t, err)
	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(func() { sess.Close(context.Background()) })
	return sess
}

func TestAdapter_NewRegistersCodecAndLocalTrack(t *testing.T) {
	sess := testSession(t)
	clock := uint64(0)
	nowUs := func() uint64 { clock++; return clock }

	a, err := New(context.Background(), DefaultConfig(), sess, "in", nowUs, commons.NewTestLogger())
	require.NoError(t, err)
	require.NotNil(t, a.PeerConnection())

	offer, err := a.PeerConnection().CreateOffer(nil)
	require.NoError(t, err)
	require.Contains(t, offer.SDP, "audio")

	require.NoError(t, a.Close())
}
