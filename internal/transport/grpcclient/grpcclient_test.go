package grpcclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/nodes"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func dialBufconn(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	return cc
}

func testServer(t *testing.T) (*grpc.Server, *bufconn.Listener) {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer()
	RegisterHealth(s, "")

	reg := registry.New()
	require.NoError(t, reg.Register("passthrough", nodes.NewPassthrough, nodes.PassthroughSchema()))
	clock := uint64(0)
	nowUs := func() uint64 { clock++; return clock }
	RegisterPipelineServer(s, NewPipelineServer(reg, config.Default().Executor, commons.NewTestLogger(), nowUs))

	go s.Serve(lis)
	t.Cleanup(s.Stop)
	return s, lis
}

func TestHealth_CheckReportsServing(t *testing.T) {
	_, lis := testServer(t)
	cc := dialBufconn(t, lis)
	defer cc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	serving, err := CheckHealth(ctx, cc, "")
	require.NoError(t, err)
	require.True(t, serving)
}

const testManifestYAML = `
version: v1
nodes:
  - id: in
    node_type: passthrough
    is_streaming: true
  - id: out
    node_type: passthrough
    is_streaming: true
connections:
  - from: in
    to: out
`

func TestPipelineClient_ExecuteUnary(t *testing.T) {
	_, lis := testServer(t)
	cc := dialBufconn(t, lis)
	defer cc.Close()

	client := NewPipelineClient(cc)
	in, err := frame.NewAudio("s1", 16000, 1, []float32{0.1, 0.2})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := client.ExecuteUnary(ctx, testManifestYAML, "in", in)
	require.NoError(t, err)
	require.Equal(t, frame.VariantAudio, out.Variant)
	require.Equal(t, in.Audio.Frames, out.Audio.Frames)
}

func TestPipelineClient_StreamSession(t *testing.T) {
	_, lis := testServer(t)
	cc := dialBufconn(t, lis)
	defer cc.Close()

	client := NewPipelineClient(cc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := client.OpenStreamSession(ctx, testManifestYAML)
	require.NoError(t, err)

	in, err := frame.NewAudio("s1", 16000, 1, []float32{0.5})
	require.NoError(t, err)
	require.NoError(t, sess.SendFrame("in", in))

	out, err := sess.RecvFrame()
	require.NoError(t, err)
	require.Equal(t, frame.VariantAudio, out.Variant)

	require.NoError(t, sess.Close())
}
