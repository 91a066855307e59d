package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBytesFromBytes_RoundTrip(t *testing.T) {
	audio, err := NewAudio("a", 16000, 1, []float32{0.1, 0.2, 0.3})
	require.NoError(t, err)

	cases := []Frame{
		audio,
		{
			Variant: VariantVideo,
			Video: &Video{
				Codec: CodecH264, Format: PixelFormatI420,
				Width: 640, Height: 480, IsKeyframe: true,
				FrameNumber: 7, TimestampUs: 1234, PixelData: []byte{1, 2, 3, 4},
			},
		},
		{
			Variant: VariantTensor,
			Tensor:  &Tensor{Shape: []uint64{1, 3, 224, 224}, DType: "f32", Data: []byte{9, 9, 9}},
		},
		{Variant: VariantNumpy, Numpy: &Numpy{Data: []byte{1, 2, 3}}},
		{Variant: VariantJSON, JSON: map[string]any{"hello": "world"}},
		{Variant: VariantText, Text: "hi there"},
		{Variant: VariantBinary, Binary: []byte{0xde, 0xad, 0xbe, 0xef}},
		{
			Variant: VariantFile,
			File:    &File{Path: "/tmp/x.wav", Filename: "x.wav", MimeType: "audio/wav", Size: 100, Offset: 0, Length: 0},
		},
	}

	for _, f := range cases {
		b, err := ToBytes(f)
		require.NoError(t, err)
		got, err := FromBytes(b)
		require.NoError(t, err)
		assert.Equal(t, f.Variant, got.Variant)

		switch f.Variant {
		case VariantAudio:
			assert.Equal(t, f.Audio.Samples, got.Audio.Samples)
			assert.Equal(t, f.Audio.SampleRate, got.Audio.SampleRate)
		case VariantVideo:
			assert.Equal(t, f.Video, got.Video)
		case VariantTensor:
			assert.Equal(t, f.Tensor, got.Tensor)
		case VariantNumpy:
			assert.Equal(t, f.Numpy, got.Numpy)
		case VariantJSON:
			assert.Equal(t, f.JSON, got.JSON)
		case VariantText:
			assert.Equal(t, f.Text, got.Text)
		case VariantBinary:
			assert.Equal(t, f.Binary, got.Binary)
		case VariantFile:
			assert.Equal(t, f.File, got.File)
		}
	}
}

func TestFromBytes_UnsetOptionalFieldsRoundTrip(t *testing.T) {
	f := Frame{Variant: VariantText, Text: ""}
	b, err := ToBytes(f)
	require.NoError(t, err)
	got, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, "", got.Text)
	assert.False(t, got.HasTimestamp)
	assert.False(t, got.HasArrival)
	assert.Equal(t, "", got.StreamID)

	file := &File{Path: "/a", Size: 0, Offset: 0, Length: 0}
	ff := Frame{Variant: VariantFile, File: file}
	b, err = ToBytes(ff)
	require.NoError(t, err)
	got, err = FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.File.Size)
	assert.Equal(t, uint64(0), got.File.Offset)
	assert.Equal(t, uint64(0), got.File.Length)
}

func TestToBytesFromBytes_EnvelopePreserved(t *testing.T) {
	f := Frame{
		Variant:      VariantText,
		Text:         "x",
		StreamID:     "abc-123",
		HasTimestamp: true,
		TimestampUs:  42,
		HasArrival:   true,
		ArrivalTsUs:  99,
	}
	b, err := ToBytes(f)
	require.NoError(t, err)
	got, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, f.StreamID, got.StreamID)
	assert.Equal(t, f.TimestampUs, got.TimestampUs)
	assert.Equal(t, f.ArrivalTsUs, got.ArrivalTsUs)
}

func TestClone_DoesNotAliasPayload(t *testing.T) {
	f, err := NewAudio("s", 16000, 1, []float32{1, 2, 3})
	require.NoError(t, err)
	c := f.Clone()
	c.Audio.Samples[0] = 999
	assert.Equal(t, float32(1), f.Audio.Samples[0], "clone must not alias original backing array")
}

func TestFromBytes_RejectsEmptyAndUnknownTag(t *testing.T) {
	_, err := FromBytes(nil)
	assert.Error(t, err)

	_, err = FromBytes([]byte{200})
	assert.Error(t, err)
}
