package grpcclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rapidaai/runtime/internal/frame"

	"google.golang.org/grpc"
)

// PipelineClient is a thin client for the hand-authored Pipeline gRPC
// service, mirroring the teacher's pattern of wrapping a generated stub
// client behind a small typed facade
// (pkg/clients/integration/integration_client.go).
type PipelineClient struct {
	cc *grpc.ClientConn
}

// NewPipelineClient wraps an already-dialed connection (see DialInsecure).
func NewPipelineClient(cc *grpc.ClientConn) *PipelineClient {
	return &PipelineClient{cc: cc}
}

// ExecuteUnary runs manifest once against a single input frame delivered
// to nodeID and returns the first frame the session ever produces.
func (c *PipelineClient) ExecuteUnary(ctx context.Context, manifestYAML, nodeID string, in frame.Frame) (frame.Frame, error) {
	inBytes, err := frame.ToBytes(in)
	if err != nil {
		return frame.Frame{}, err
	}
	reqPayload, err := json.Marshal(wireMessage{Kind: wireKindFrame, ManifestYAML: manifestYAML, NodeID: nodeID, FrameBytes: inBytes})
	if err != nil {
		return frame.Frame{}, err
	}

	req := &RawFrame{Data: reqPayload}
	reply := new(RawFrame)
	if err := c.cc.Invoke(ctx, methodExecuteUnary, req, reply, grpc.CallContentSubtype(rawCodec{}.Name())); err != nil {
		return frame.Frame{}, err
	}

	var wm wireMessage
	if err := json.Unmarshal(reply.Data, &wm); err != nil {
		return frame.Frame{}, fmt.Errorf("grpcclient: decoding ExecuteUnary reply: %w", err)
	}
	return frame.FromBytes(wm.FrameBytes)
}

// StreamSession is a live CreateStreamSession call: SendFrame delivers
// input, RecvFrame blocks for the next output, and Close ends the call.
type StreamSession struct {
	stream grpc.ClientStream
}

var createStreamClientDesc = grpc.StreamDesc{
	StreamName:    "CreateStreamSession",
	ServerStreams: true,
	ClientStreams: true,
}

// OpenStreamSession opens a long-lived session running manifestYAML and
// returns a handle for exchanging frames with it.
func (c *PipelineClient) OpenStreamSession(ctx context.Context, manifestYAML string) (*StreamSession, error) {
	stream, err := c.cc.NewStream(ctx, &createStreamClientDesc, methodCreateStream, grpc.CallContentSubtype(rawCodec{}.Name()))
	if err != nil {
		return nil, err
	}
	openPayload, err := json.Marshal(wireMessage{Kind: wireKindOpen, ManifestYAML: manifestYAML})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&RawFrame{Data: openPayload}); err != nil {
		return nil, err
	}
	return &StreamSession{stream: stream}, nil
}

// SendFrame delivers f to nodeID within the open session.
func (s *StreamSession) SendFrame(nodeID string, f frame.Frame) error {
	fb, err := frame.ToBytes(f)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(wireMessage{Kind: wireKindFrame, NodeID: nodeID, FrameBytes: fb})
	if err != nil {
		return err
	}
	return s.stream.SendMsg(&RawFrame{Data: payload})
}

// RecvFrame blocks for the next output frame the session produces.
func (s *StreamSession) RecvFrame() (frame.Frame, error) {
	msg := new(RawFrame)
	if err := s.stream.RecvMsg(msg); err != nil {
		return frame.Frame{}, err
	}
	var wm wireMessage
	if err := json.Unmarshal(msg.Data, &wm); err != nil {
		return frame.Frame{}, fmt.Errorf("grpcclient: decoding stream frame: %w", err)
	}
	return frame.FromBytes(wm.FrameBytes)
}

// Close half-closes the send direction; the server finishes draining
// output and the stream ends once it observes EOF.
func (s *StreamSession) Close() error {
	return s.stream.CloseSend()
}
