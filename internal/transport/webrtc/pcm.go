package webrtc

import (
	"encoding/binary"
	"time"
)

// pcmBytesToFloat32 decodes a little-endian 16-bit linear-PCM RTP payload
// into the float32 samples frame.Audio carries.
func pcmBytesToFloat32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// floatsToPCMBytes is pcmBytesToFloat32's inverse, used to re-packetize
// output Audio frames onto the local track.
func floatsToPCMBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(s*32767)))
	}
	return out
}

func sampleDuration(numSamples int, channels, sampleRate uint32) time.Duration {
	if channels == 0 || sampleRate == 0 {
		return 0
	}
	frames := numSamples / int(channels)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
