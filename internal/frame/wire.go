package frame

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rapidaai/runtime/internal/errs"
)

// Wire tags, fixed independently of Variant's iota order so the byte
// format stays stable even if Variant gains members (§4.3).
const (
	wireTagAudio   uint8 = 1
	wireTagVideo   uint8 = 2
	wireTagTensor  uint8 = 3
	wireTagNumpy   uint8 = 4
	wireTagControl uint8 = 5
	wireTagJSON    uint8 = 6
	wireTagText    uint8 = 7
	wireTagBinary  uint8 = 8
	wireTagFile    uint8 = 9
)

func tagForVariant(v Variant) (uint8, error) {
	switch v {
	case VariantAudio:
		return wireTagAudio, nil
	case VariantVideo:
		return wireTagVideo, nil
	case VariantTensor:
		return wireTagTensor, nil
	case VariantNumpy:
		return wireTagNumpy, nil
	case VariantControl:
		return wireTagControl, nil
	case VariantJSON:
		return wireTagJSON, nil
	case VariantText:
		return wireTagText, nil
	case VariantBinary:
		return wireTagBinary, nil
	case VariantFile:
		return wireTagFile, nil
	default:
		return 0, errs.Newf(errs.Transport, "unknown frame variant %d", v)
	}
}

func variantForTag(tag uint8) (Variant, error) {
	switch tag {
	case wireTagAudio:
		return VariantAudio, nil
	case wireTagVideo:
		return VariantVideo, nil
	case wireTagTensor:
		return VariantTensor, nil
	case wireTagNumpy:
		return VariantNumpy, nil
	case wireTagControl:
		return VariantControl, nil
	case wireTagJSON:
		return VariantJSON, nil
	case wireTagText:
		return VariantText, nil
	case wireTagBinary:
		return VariantBinary, nil
	case wireTagFile:
		return VariantFile, nil
	default:
		return 0, errs.Newf(errs.Transport, "unknown wire tag %d", tag)
	}
}

// envelope fields common to every frame, written after the type tag.
type envelope struct {
	hasStreamID bool
	streamID    string
	hasTs       bool
	ts          uint64
	hasArrival  bool
	arrival     uint64
}

const (
	flagStreamID byte = 1 << 0
	flagTs       byte = 1 << 1
	flagArrival  byte = 1 << 2
)

func (f Frame) envelope() envelope {
	return envelope{
		hasStreamID: f.StreamID != "",
		streamID:    f.StreamID,
		hasTs:       f.HasTimestamp,
		ts:          f.TimestampUs,
		hasArrival:  f.HasArrival,
		arrival:     f.ArrivalTsUs,
	}
}

func writeEnvelope(buf *[]byte, e envelope) {
	var flags byte
	if e.hasStreamID {
		flags |= flagStreamID
	}
	if e.hasTs {
		flags |= flagTs
	}
	if e.hasArrival {
		flags |= flagArrival
	}
	*buf = append(*buf, flags)
	if e.hasStreamID {
		writeString(buf, e.streamID)
	}
	if e.hasTs {
		*buf = binary.LittleEndian.AppendUint64(*buf, e.ts)
	}
	if e.hasArrival {
		*buf = binary.LittleEndian.AppendUint64(*buf, e.arrival)
	}
}

func readEnvelope(b []byte) (envelope, []byte, error) {
	if len(b) < 1 {
		return envelope{}, nil, errs.New(errs.Transport, "truncated envelope")
	}
	flags := b[0]
	b = b[1:]
	var e envelope
	var err error
	if flags&flagStreamID != 0 {
		e.hasStreamID = true
		e.streamID, b, err = readString(b)
		if err != nil {
			return envelope{}, nil, err
		}
	}
	if flags&flagTs != 0 {
		if len(b) < 8 {
			return envelope{}, nil, errs.New(errs.Transport, "truncated timestamp")
		}
		e.hasTs = true
		e.ts = binary.LittleEndian.Uint64(b)
		b = b[8:]
	}
	if flags&flagArrival != 0 {
		if len(b) < 8 {
			return envelope{}, nil, errs.New(errs.Transport, "truncated arrival timestamp")
		}
		e.hasArrival = true
		e.arrival = binary.LittleEndian.Uint64(b)
		b = b[8:]
	}
	return e, b, nil
}

func writeString(buf *[]byte, s string) {
	*buf = binary.LittleEndian.AppendUint32(*buf, uint32(len(s)))
	*buf = append(*buf, s...)
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errs.New(errs.Transport, "truncated string length")
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, errs.New(errs.Transport, "truncated string body")
	}
	return string(b[:n]), b[n:], nil
}

func writeBytes(buf *[]byte, p []byte) {
	*buf = binary.LittleEndian.AppendUint32(*buf, uint32(len(p)))
	*buf = append(*buf, p...)
}

func readBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errs.New(errs.Transport, "truncated bytes length")
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return nil, nil, errs.New(errs.Transport, "truncated bytes body")
	}
	out := append([]byte(nil), b[:n]...)
	return out, b[n:], nil
}

// ToBytes serializes f to the wire format described in §4.3:
// [1 byte type tag][envelope][variant-specific body].
func ToBytes(f Frame) ([]byte, error) {
	tag, err := tagForVariant(f.Variant)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, tag)
	writeEnvelope(&buf, f.envelope())

	switch f.Variant {
	case VariantAudio:
		a := f.Audio
		if a == nil {
			return nil, errs.New(errs.Transport, "Audio frame missing payload")
		}
		buf = binary.LittleEndian.AppendUint32(buf, a.SampleRate)
		buf = binary.LittleEndian.AppendUint32(buf, a.Channels)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(a.Samples)))
		for _, s := range a.Samples {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(s))
		}
	case VariantVideo:
		v := f.Video
		if v == nil {
			return nil, errs.New(errs.Transport, "Video frame missing payload")
		}
		buf = append(buf, byte(v.Codec), byte(v.Format))
		buf = binary.LittleEndian.AppendUint32(buf, v.Width)
		buf = binary.LittleEndian.AppendUint32(buf, v.Height)
		if v.IsKeyframe {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.LittleEndian.AppendUint64(buf, v.FrameNumber)
		buf = binary.LittleEndian.AppendUint64(buf, v.TimestampUs)
		writeBytes(&buf, v.PixelData)
	case VariantTensor:
		t := f.Tensor
		if t == nil {
			return nil, errs.New(errs.Transport, "Tensor frame missing payload")
		}
		writeString(&buf, t.DType)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Shape)))
		for _, d := range t.Shape {
			buf = binary.LittleEndian.AppendUint64(buf, d)
		}
		writeBytes(&buf, t.Data)
	case VariantNumpy:
		n := f.Numpy
		if n == nil {
			return nil, errs.New(errs.Transport, "Numpy frame missing payload")
		}
		writeBytes(&buf, n.Data)
	case VariantJSON:
		body, err := json.Marshal(f.JSON)
		if err != nil {
			return nil, errs.Wrap(errs.Transport, "", err)
		}
		writeBytes(&buf, body)
	case VariantText:
		writeString(&buf, f.Text)
	case VariantBinary:
		writeBytes(&buf, f.Binary)
	case VariantFile:
		file := f.File
		if file == nil {
			return nil, errs.New(errs.Transport, "File frame missing payload")
		}
		writeString(&buf, file.Path)
		writeString(&buf, file.Filename)
		writeString(&buf, file.MimeType)
		buf = binary.LittleEndian.AppendUint64(buf, file.Size)
		buf = binary.LittleEndian.AppendUint64(buf, file.Offset)
		buf = binary.LittleEndian.AppendUint64(buf, file.Length)
	case VariantControl:
		c := f.Control
		if c == nil {
			return nil, errs.New(errs.Transport, "Control frame missing payload")
		}
		body, err := json.Marshal(controlWire{
			Kind:               uint8(c.Kind),
			SessionID:          c.SessionID,
			TimestampUs:        c.TimestampUs,
			TargetSegmentID:    c.TargetSegmentID,
			FromTimestampUs:    c.FromTimestampUs,
			ToTimestampUs:      c.ToTimestampUs,
			SuggestedBatchSize: c.SuggestedBatchSize,
			DeadlineUs:         c.DeadlineUs,
			Metadata:           c.Metadata,
		})
		if err != nil {
			return nil, errs.Wrap(errs.Transport, "", err)
		}
		writeBytes(&buf, body)
	}
	return buf, nil
}

type controlWire struct {
	Kind               uint8          `json:"kind"`
	SessionID          string         `json:"session_id"`
	TimestampUs        uint64         `json:"timestamp_us"`
	TargetSegmentID    string         `json:"target_segment_id,omitempty"`
	FromTimestampUs    uint64         `json:"from_timestamp_us,omitempty"`
	ToTimestampUs      uint64         `json:"to_timestamp_us,omitempty"`
	SuggestedBatchSize int            `json:"suggested_batch_size,omitempty"`
	DeadlineUs         uint64         `json:"deadline_us,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// FromBytes deserializes the wire format produced by ToBytes. Round-trips
// with ToBytes for every structurally-present field (§8): unset optional
// numeric fields deserialize back to unset, empty optional strings
// deserialize back to unset.
func FromBytes(b []byte) (Frame, error) {
	if len(b) < 1 {
		return Frame{}, errs.New(errs.Transport, "empty frame payload")
	}
	variant, err := variantForTag(b[0])
	if err != nil {
		return Frame{}, err
	}
	b = b[1:]

	env, b, err := readEnvelope(b)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{
		Variant:      variant,
		StreamID:     env.streamID,
		HasTimestamp: env.hasTs,
		TimestampUs:  env.ts,
		HasArrival:   env.hasArrival,
		ArrivalTsUs:  env.arrival,
	}

	switch variant {
	case VariantAudio:
		if len(b) < 16 {
			return Frame{}, errs.New(errs.Transport, "truncated audio header")
		}
		sr := binary.LittleEndian.Uint32(b)
		ch := binary.LittleEndian.Uint32(b[4:])
		n := binary.LittleEndian.Uint64(b[8:])
		b = b[16:]
		if uint64(len(b)) < n*4 {
			return Frame{}, errs.New(errs.Transport, "truncated audio samples")
		}
		samples := make([]float32, n)
		for i := range samples {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
		f.Audio = &Audio{SampleRate: sr, Channels: ch, Frames: n / uint64(maxu32(ch, 1)), Samples: samples}
	case VariantVideo:
		if len(b) < 27 {
			return Frame{}, errs.New(errs.Transport, "truncated video header")
		}
		codec := Codec(b[0])
		format := PixelFormat(b[1])
		width := binary.LittleEndian.Uint32(b[2:])
		height := binary.LittleEndian.Uint32(b[6:])
		keyframe := b[10] != 0
		frameNum := binary.LittleEndian.Uint64(b[11:])
		ts := binary.LittleEndian.Uint64(b[19:])
		b = b[27:]
		px, _, err := readBytes(b)
		if err != nil {
			return Frame{}, err
		}
		f.Video = &Video{
			Codec: codec, Format: format, Width: width, Height: height,
			IsKeyframe: keyframe, FrameNumber: frameNum, TimestampUs: ts, PixelData: px,
		}
	case VariantTensor:
		dtype, rest, err := readString(b)
		if err != nil {
			return Frame{}, err
		}
		if len(rest) < 4 {
			return Frame{}, errs.New(errs.Transport, "truncated tensor shape length")
		}
		rank := binary.LittleEndian.Uint32(rest)
		rest = rest[4:]
		shape := make([]uint64, rank)
		for i := range shape {
			if len(rest) < 8 {
				return Frame{}, errs.New(errs.Transport, "truncated tensor shape")
			}
			shape[i] = binary.LittleEndian.Uint64(rest)
			rest = rest[8:]
		}
		data, _, err := readBytes(rest)
		if err != nil {
			return Frame{}, err
		}
		f.Tensor = &Tensor{Shape: shape, DType: dtype, Data: data}
	case VariantNumpy:
		data, _, err := readBytes(b)
		if err != nil {
			return Frame{}, err
		}
		f.Numpy = &Numpy{Data: data}
	case VariantJSON:
		body, _, err := readBytes(b)
		if err != nil {
			return Frame{}, err
		}
		var m map[string]any
		if len(body) > 0 {
			if err := json.Unmarshal(body, &m); err != nil {
				return Frame{}, errs.Wrap(errs.Transport, "", err)
			}
		}
		f.JSON = m
	case VariantText:
		s, _, err := readString(b)
		if err != nil {
			return Frame{}, err
		}
		f.Text = s
	case VariantBinary:
		data, _, err := readBytes(b)
		if err != nil {
			return Frame{}, err
		}
		f.Binary = data
	case VariantFile:
		path, rest, err := readString(b)
		if err != nil {
			return Frame{}, err
		}
		filename, rest, err := readString(rest)
		if err != nil {
			return Frame{}, err
		}
		mime, rest, err := readString(rest)
		if err != nil {
			return Frame{}, err
		}
		if len(rest) < 24 {
			return Frame{}, errs.New(errs.Transport, "truncated file numeric fields")
		}
		size := binary.LittleEndian.Uint64(rest)
		offset := binary.LittleEndian.Uint64(rest[8:])
		length := binary.LittleEndian.Uint64(rest[16:])
		f.File = &File{Path: path, Filename: filename, MimeType: mime, Size: size, Offset: offset, Length: length}
	case VariantControl:
		body, _, err := readBytes(b)
		if err != nil {
			return Frame{}, err
		}
		var w controlWire
		if err := json.Unmarshal(body, &w); err != nil {
			return Frame{}, errs.Wrap(errs.Transport, "", err)
		}
		f.Control = &Control{
			Kind:               ControlKind(w.Kind),
			SessionID:          w.SessionID,
			TimestampUs:        w.TimestampUs,
			TargetSegmentID:    w.TargetSegmentID,
			FromTimestampUs:    w.FromTimestampUs,
			ToTimestampUs:      w.ToTimestampUs,
			SuggestedBatchSize: w.SuggestedBatchSize,
			DeadlineUs:         w.DeadlineUs,
			Metadata:           w.Metadata,
		}
	default:
		return Frame{}, fmt.Errorf("unhandled variant %v", variant)
	}
	return f, nil
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
