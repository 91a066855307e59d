package grpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/executor"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

const (
	pipelineServiceName = "runtime.Pipeline"
	methodExecuteUnary  = "/" + pipelineServiceName + "/ExecuteUnary"
	methodCreateStream  = "/" + pipelineServiceName + "/CreateStreamSession"
)

// wireMessageKind distinguishes the streaming RPC's two message shapes:
// the session-opening manifest and ordinary data frames. The unary RPC
// only ever uses "frame" (its manifest travels alongside the frame in the
// same message since there is exactly one round trip).
type wireMessageKind string

const (
	wireKindOpen  wireMessageKind = "open"
	wireKindFrame wireMessageKind = "frame"
)

// wireMessage is the JSON envelope carried as RawFrame.Data. FrameBytes,
// when present, is §4.3's frame.ToBytes/FromBytes wire format — this
// envelope exists only to multiplex "open a session" against "here is a
// frame" over the same RawFrame message type, not to re-encode frame
// payloads a second time.
type wireMessage struct {
	Kind         wireMessageKind `json:"kind"`
	ManifestYAML string          `json:"manifest_yaml,omitempty"`
	NodeID       string          `json:"node_id,omitempty"`
	FrameBytes   []byte          `json:"frame_bytes,omitempty"`
}

// PipelineServer implements §6's gRPC pipeline transport: execute_unary
// (one manifest, one input frame, one output frame, ephemeral session)
// and create_stream_session (a long-lived bidi-streamed session).
type PipelineServer struct {
	reg    *registry.Registry
	execCfg config.ExecutorConfig
	logger commons.Logger
	nowUs  func() uint64
}

// NewPipelineServer builds a PipelineServer bound to reg for node
// instantiation and execCfg for every session it creates.
func NewPipelineServer(reg *registry.Registry, execCfg config.ExecutorConfig, logger commons.Logger, nowUs func() uint64) *PipelineServer {
	return &PipelineServer{reg: reg, execCfg: execCfg, logger: logger, nowUs: nowUs}
}

// RegisterPipelineServer attaches srv's hand-authored ServiceDesc to s,
// the way protoc-gen-go-grpc's generated RegisterXxxServer does for a
// proto-defined service.
func RegisterPipelineServer(s *grpc.Server, srv *PipelineServer) {
	s.RegisterService(&pipelineServiceDesc, srv)
}

var pipelineServiceDesc = grpc.ServiceDesc{
	ServiceName: pipelineServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteUnary", Handler: executeUnaryHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "CreateStreamSession",
			Handler:       createStreamSessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "runtime/pipeline.proto (hand-authored, no .proto source)",
}

func executeUnaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RawFrame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return (srv.(*PipelineServer)).executeUnary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExecuteUnary}
	handler := func(ctx context.Context, req any) (any, error) {
		return (srv.(*PipelineServer)).executeUnary(ctx, req.(*RawFrame))
	}
	return interceptor(ctx, in, info, handler)
}

func (p *PipelineServer) executeUnary(ctx context.Context, in *RawFrame) (*RawFrame, error) {
	var wm wireMessage
	if err := json.Unmarshal(in.Data, &wm); err != nil {
		return nil, fmt.Errorf("grpcclient: decoding ExecuteUnary request: %w", err)
	}
	m, err := manifest.ParseYAML([]byte(wm.ManifestYAML))
	if err != nil {
		return nil, err
	}
	inFrame, err := frame.FromBytes(wm.FrameBytes)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: decoding input frame: %w", err)
	}

	sess, err := executor.NewSession(uuid.NewString(), m, p.reg, p.execCfg, p.logger, p.nowUs)
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	defer sess.Close(ctx)

	if err := sess.SendInput(ctx, wm.NodeID, inFrame); err != nil {
		return nil, err
	}
	out, err := sess.RecvOutput(ctx)
	if err != nil {
		return nil, err
	}
	outBytes, err := frame.ToBytes(out)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(wireMessage{Kind: wireKindFrame, FrameBytes: outBytes})
	if err != nil {
		return nil, err
	}
	return &RawFrame{Data: payload}, nil
}

func createStreamSessionHandler(srv any, stream grpc.ServerStream) error {
	return (srv.(*PipelineServer)).createStreamSession(stream)
}

func (p *PipelineServer) createStreamSession(stream grpc.ServerStream) error {
	ctx := stream.Context()

	first := new(RawFrame)
	if err := stream.RecvMsg(first); err != nil {
		return err
	}
	var open wireMessage
	if err := json.Unmarshal(first.Data, &open); err != nil {
		return fmt.Errorf("grpcclient: decoding session-open message: %w", err)
	}
	if open.Kind != wireKindOpen {
		return fmt.Errorf("grpcclient: first CreateStreamSession message must be %q, got %q", wireKindOpen, open.Kind)
	}
	m, err := manifest.ParseYAML([]byte(open.ManifestYAML))
	if err != nil {
		return err
	}

	sess, err := executor.NewSession(uuid.NewString(), m, p.reg, p.execCfg, p.logger, p.nowUs)
	if err != nil {
		return err
	}
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Close(ctx)

	outErrCh := make(chan error, 1)
	go func() {
		for {
			out, err := sess.RecvOutput(ctx)
			if err != nil {
				outErrCh <- nil // session output exhausted, or ctx done — not a stream error
				return
			}
			outBytes, err := frame.ToBytes(out)
			if err != nil {
				p.logger.Warnw("grpcclient: failed to encode output frame", "error", err)
				continue
			}
			payload, err := json.Marshal(wireMessage{Kind: wireKindFrame, FrameBytes: outBytes})
			if err != nil {
				p.logger.Warnw("grpcclient: failed to encode output envelope", "error", err)
				continue
			}
			if err := stream.SendMsg(&RawFrame{Data: payload}); err != nil {
				outErrCh <- err
				return
			}
		}
	}()

	for {
		msg := new(RawFrame)
		err := stream.RecvMsg(msg)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		var wm wireMessage
		if err := json.Unmarshal(msg.Data, &wm); err != nil {
			p.logger.Warnw("grpcclient: dropping malformed stream message", "error", err)
			continue
		}
		if wm.Kind != wireKindFrame {
			continue
		}
		inFrame, err := frame.FromBytes(wm.FrameBytes)
		if err != nil {
			p.logger.Warnw("grpcclient: dropping undecodable input frame", "error", err)
			continue
		}
		if err := sess.SendInput(ctx, wm.NodeID, inFrame); err != nil {
			p.logger.Warnw("grpcclient: SendInput failed", "error", err)
		}
	}

	return <-outErrCh
}
