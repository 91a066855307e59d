// Package frame implements RuntimeData, the tagged union every edge of the
// pipeline graph carries (§2, §3). A frame is a value type: cloning for
// fan-out duplicates payload bytes so sibling consumers never alias.
package frame

// Variant tags the payload carried by a RuntimeData value.
type Variant uint8

const (
	VariantAudio Variant = iota + 1
	VariantVideo
	VariantTensor
	VariantNumpy
	VariantJSON
	VariantText
	VariantBinary
	VariantFile
	VariantControl
)

func (v Variant) String() string {
	switch v {
	case VariantAudio:
		return "Audio"
	case VariantVideo:
		return "Video"
	case VariantTensor:
		return "Tensor"
	case VariantNumpy:
		return "Numpy"
	case VariantJSON:
		return "Json"
	case VariantText:
		return "Text"
	case VariantBinary:
		return "Binary"
	case VariantFile:
		return "File"
	case VariantControl:
		return "ControlMessage"
	default:
		return "Unknown"
	}
}

// Audio is PCM-style sample data. samples is interleaved per-channel;
// len(Samples) must equal Frames*Channels.
type Audio struct {
	SampleRate uint32
	Channels   uint32
	Frames     uint64
	Samples    []float32
}

// PixelFormat enumerates the pixel layouts a Video frame may carry. Values
// are bit-exact with the wire table in §6.
type PixelFormat uint8

const (
	PixelFormatI420 PixelFormat = iota
	PixelFormatNV12
	PixelFormatRGBA
	PixelFormatBGRA
)

// Codec enumerates the compression format of Video.PixelData. CodecRaw
// means PixelData is uncompressed pixels in Format.
type Codec uint8

const (
	CodecRaw Codec = iota
	CodecH264
	CodecVP8
	CodecVP9
	CodecAV1
)

// Video carries one coded or raw video frame.
type Video struct {
	Codec        Codec
	Format       PixelFormat
	Width        uint32
	Height       uint32
	IsKeyframe   bool
	FrameNumber  uint64
	TimestampUs  uint64
	PixelData    []byte
}

// Tensor is an opaque n-dimensional array with a declared shape and dtype
// string (e.g. "f32", "i64"), used to move ML inference payloads between
// nodes without committing the core to a tensor library.
type Tensor struct {
	Shape []uint64
	DType string
	Data  []byte
}

// Numpy carries a serialized numpy payload (.npy bytes) for FFI-facing
// nodes that speak numpy's own wire format directly.
type Numpy struct {
	Data []byte
}

// File references payload that lives outside the frame itself (a path on a
// shared filesystem, or a handle the transport resolved). Zero-valued
// numeric fields deserialize back to "unset" per §6.
type File struct {
	Path     string
	Filename string
	MimeType string
	Size     uint64 // 0 means unset
	Offset   uint64 // 0 means unset
	Length   uint64 // 0 means unset
}

// ControlKind enumerates ControlMessage variants (§3).
type ControlKind uint8

const (
	ControlCancelSpeculation ControlKind = iota
	ControlBatchHint
	ControlDeadlineWarning
)

// Control is a ControlMessage: second-class data that forks to every
// downstream regardless of stream_id filters (§4.1, §9).
type Control struct {
	Kind            ControlKind
	SessionID       string
	TimestampUs     uint64
	TargetSegmentID string // optional, empty means unset

	// CancelSpeculation fields.
	FromTimestampUs uint64
	ToTimestampUs   uint64

	// BatchHint fields.
	SuggestedBatchSize int

	// DeadlineWarning fields.
	DeadlineUs uint64

	// Metadata is an extensible JSON-compatible bag, carried opaquely.
	Metadata map[string]any
}

// Frame is the tagged union RuntimeData. Exactly one payload field is
// meaningful per Variant value.
type Frame struct {
	Variant Variant

	StreamID     string // optional; empty means unset
	TimestampUs  uint64 // optional media time; 0 means unset unless explicitly set
	HasTimestamp bool
	ArrivalTsUs  uint64 // wall clock, stamped once at ingest; 0 means unset
	HasArrival   bool

	Audio   *Audio
	Video   *Video
	Tensor  *Tensor
	Numpy   *Numpy
	JSON    map[string]any
	Text    string
	Binary  []byte
	File    *File
	Control *Control
}

// Clone duplicates f, copying payload bytes so fan-out consumers never
// alias a publisher's backing array (§3, §9).
func (f Frame) Clone() Frame {
	out := f
	if f.Audio != nil {
		a := *f.Audio
		a.Samples = append([]float32(nil), f.Audio.Samples...)
		out.Audio = &a
	}
	if f.Video != nil {
		v := *f.Video
		v.PixelData = append([]byte(nil), f.Video.PixelData...)
		out.Video = &v
	}
	if f.Tensor != nil {
		t := *f.Tensor
		t.Shape = append([]uint64(nil), f.Tensor.Shape...)
		t.Data = append([]byte(nil), f.Tensor.Data...)
		out.Tensor = &t
	}
	if f.Numpy != nil {
		n := *f.Numpy
		n.Data = append([]byte(nil), f.Numpy.Data...)
		out.Numpy = &n
	}
	if f.JSON != nil {
		m := make(map[string]any, len(f.JSON))
		for k, v := range f.JSON {
			m[k] = v
		}
		out.JSON = m
	}
	if f.Binary != nil {
		out.Binary = append([]byte(nil), f.Binary...)
	}
	if f.File != nil {
		file := *f.File
		out.File = &file
	}
	if f.Control != nil {
		c := *f.Control
		if f.Control.Metadata != nil {
			m := make(map[string]any, len(f.Control.Metadata))
			for k, v := range f.Control.Metadata {
				m[k] = v
			}
			c.Metadata = m
		}
		out.Control = &c
	}
	return out
}

// NewAudio builds an Audio frame, validating the samples/frames/channels
// invariant from §3.
func NewAudio(streamID string, sampleRate, channels uint32, samples []float32) (Frame, error) {
	if channels == 0 {
		return Frame{}, errInvalidAudio("channels must be > 0")
	}
	if len(samples)%int(channels) != 0 {
		return Frame{}, errInvalidAudio("samples length must be a multiple of channels")
	}
	frames := uint64(len(samples) / int(channels))
	return Frame{
		Variant:  VariantAudio,
		StreamID: streamID,
		Audio: &Audio{
			SampleRate: sampleRate,
			Channels:   channels,
			Frames:     frames,
			Samples:    samples,
		},
	}, nil
}

type audioErr string

func (e audioErr) Error() string { return string(e) }

func errInvalidAudio(msg string) error { return audioErr("invalid audio frame: " + msg) }
