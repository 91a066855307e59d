package grpcclient

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName identifies the raw passthrough codec registered below.
const codecName = "rawframe"

// RawFrame is the only message type the pipeline gRPC service ever
// marshals: an opaque byte payload. The bytes themselves are §4.3's
// frame.ToBytes/FromBytes wire format (wrapped, for the streaming RPC,
// in the small JSON envelope in pipeline.go that distinguishes a
// session-open request from a data frame) — there is deliberately no
// second, parallel protobuf schema for pipeline data.
type RawFrame struct {
	Data []byte
}

// rawCodec implements google.golang.org/grpc/encoding.Codec by copying
// bytes straight through, bypassing protobuf entirely. Registered under
// its own content-subtype name so only RPCs that opt in via
// grpc.CallContentSubtype use it; every other gRPC service in the process
// keeps using the default proto codec.
type rawCodec struct{}

func (rawCodec) Name() string { return codecName }

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*RawFrame)
	if !ok {
		return nil, fmt.Errorf("grpcclient: rawCodec cannot marshal %T, want *RawFrame", v)
	}
	return f.Data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*RawFrame)
	if !ok {
		return fmt.Errorf("grpcclient: rawCodec cannot unmarshal into %T, want *RawFrame", v)
	}
	f.Data = append([]byte(nil), data...)
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}
