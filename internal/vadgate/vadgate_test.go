package vadgate

import (
	"context"
	"errors"
	"testing"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDecider replays one decision (or error) per Decide call in order.
// The last entry repeats once exhausted, so tests can append a tail of
// "keep silent" or "keep erroring" frames without enumerating every call.
type scriptedDecider struct {
	calls int
	plan  []decision
}

type decision struct {
	isSpeech bool
	err      error
}

func (d *scriptedDecider) Decide(ctx context.Context, f frame.Frame) (bool, error) {
	i := d.calls
	if i >= len(d.plan) {
		i = len(d.plan) - 1
	}
	d.calls++
	return d.plan[i].isSpeech, d.plan[i].err
}

func testCfg() config.VADGateConfig {
	return config.Default().VADGate
}

func audioFrame(tsUs uint64, sampleRate uint32, frames uint64) frame.Frame {
	return frame.Frame{
		Variant:      frame.VariantAudio,
		TimestampUs:  tsUs,
		HasTimestamp: true,
		Audio: &frame.Audio{
			SampleRate: sampleRate,
			Channels:   1,
			Frames:     frames,
			Samples:    make([]float32, frames),
		},
	}
}

func newTestGate(decider Decider, cfg config.VADGateConfig) *Gate {
	clock := uint64(0)
	nowUs := func() uint64 { clock += 1000; return clock }
	return New("vad-1", "session-1", decider, cfg, nowUs, commons.NewTestLogger())
}

func TestGate_SilenceStaysIdle(t *testing.T) {
	d := &scriptedDecider{plan: []decision{{isSpeech: false}}}
	g := newTestGate(d, testCfg())

	for i := uint64(0); i < 5; i++ {
		out, err := g.Process(context.Background(), audioFrame(i*20000, 16000, 320))
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Equal(t, Idle, g.State())
	}
}

func TestGate_SpeechStartsSpeculationAndReplaysLookback(t *testing.T) {
	cfg := testCfg()
	d := &scriptedDecider{plan: []decision{{isSpeech: false}, {isSpeech: false}, {isSpeech: true}}}
	g := newTestGate(d, cfg)

	// Two silent frames build up lookback, the third (speech) should start
	// speculation and replay the buffered silence ahead of itself.
	_, err := g.Process(context.Background(), audioFrame(0, 16000, 320))
	require.NoError(t, err)
	_, err = g.Process(context.Background(), audioFrame(20000, 16000, 320))
	require.NoError(t, err)

	out, err := g.Process(context.Background(), audioFrame(40000, 16000, 320))
	require.NoError(t, err)
	assert.Equal(t, Speculating, g.State())
	assert.Len(t, out, 3, "lookback frames plus the triggering frame should all be forwarded")
}

func TestGate_SustainedSpeechCommits(t *testing.T) {
	cfg := testCfg()
	cfg.MinSpeechDurationMs = 40 // two 20ms frames commits
	d := &scriptedDecider{plan: []decision{{isSpeech: true}}}
	g := newTestGate(d, cfg)

	_, err := g.Process(context.Background(), audioFrame(0, 16000, 320)) // 20ms, starts speculation
	require.NoError(t, err)
	assert.Equal(t, Speculating, g.State())

	out, err := g.Process(context.Background(), audioFrame(20000, 16000, 320)) // 20ms more -> 40ms total
	require.NoError(t, err)
	assert.Equal(t, Committed, g.State())
	assert.Len(t, out, 1)
}

func TestGate_ShortSpeechThenSilenceCancels(t *testing.T) {
	cfg := testCfg()
	cfg.MinSpeechDurationMs = 1000  // speech alone never reaches commit
	cfg.MinSilenceDurationMs = 40   // two silent 20ms frames debounce to cancel
	d := &scriptedDecider{plan: []decision{{isSpeech: true}, {isSpeech: false}, {isSpeech: false}}}
	g := newTestGate(d, cfg)

	_, err := g.Process(context.Background(), audioFrame(0, 16000, 320)) // starts speculation
	require.NoError(t, err)
	assert.Equal(t, Speculating, g.State())

	out, err := g.Process(context.Background(), audioFrame(20000, 16000, 320)) // 20ms silence
	require.NoError(t, err)
	assert.Equal(t, Speculating, g.State())
	assert.Len(t, out, 1)

	out, err = g.Process(context.Background(), audioFrame(40000, 16000, 320)) // 40ms silence -> cancel
	require.NoError(t, err)
	assert.Equal(t, Cancelled, g.State())
	require.Len(t, out, 2, "last audio frame plus a CancelSpeculation control frame")
	assert.Equal(t, frame.VariantControl, out[1].Variant)
	require.NotNil(t, out[1].Control)
	assert.Equal(t, frame.ControlCancelSpeculation, out[1].Control.Kind)
	assert.Nil(t, out[1].Control.Metadata, "an ordinary silence cancel carries no diagnostic metadata")
}

func TestGate_CommittedSpeechReturnsToIdleAfterSilence(t *testing.T) {
	cfg := testCfg()
	cfg.MinSpeechDurationMs = 20
	cfg.MinSilenceDurationMs = 40
	d := &scriptedDecider{plan: []decision{{isSpeech: true}, {isSpeech: false}, {isSpeech: false}, {isSpeech: false}}}
	g := newTestGate(d, cfg)

	_, err := g.Process(context.Background(), audioFrame(0, 16000, 320)) // commits immediately
	require.NoError(t, err)
	assert.Equal(t, Committed, g.State())

	_, err = g.Process(context.Background(), audioFrame(20000, 16000, 320)) // 20ms silence
	require.NoError(t, err)
	assert.Equal(t, Committed, g.State())

	_, err = g.Process(context.Background(), audioFrame(40000, 16000, 320)) // 40ms silence -> back to idle
	require.NoError(t, err)
	assert.Equal(t, Idle, g.State())
}

func TestGate_VADErrorTimesOutToCancelledWithDiagnostic(t *testing.T) {
	cfg := testCfg()
	cfg.VADDecisionTimeoutMs = 50
	decideErr := errors.New("vad backend unavailable")
	d := &scriptedDecider{plan: []decision{{isSpeech: true}, {err: decideErr}}}
	g := newTestGate(d, cfg)

	_, err := g.Process(context.Background(), audioFrame(0, 16000, 320)) // starts speculation
	require.NoError(t, err)
	assert.Equal(t, Speculating, g.State())

	// Errors before the timeout elapses: segment stays Speculating, no
	// frames are forced out beyond the input itself.
	out, err := g.Process(context.Background(), audioFrame(20000, 16000, 320)) // 20ms elapsed
	require.NoError(t, err)
	assert.Equal(t, Speculating, g.State())
	assert.Len(t, out, 1)

	// 60ms elapsed since segment start (>= 50ms timeout): falls back to
	// Cancelled with a diagnostic rather than guessing Committed.
	out, err = g.Process(context.Background(), audioFrame(60000, 16000, 320))
	require.NoError(t, err)
	assert.Equal(t, Cancelled, g.State())
	require.Len(t, out, 2)
	assert.Equal(t, frame.VariantControl, out[1].Variant)
	require.NotNil(t, out[1].Control)
	assert.Equal(t, frame.ControlCancelSpeculation, out[1].Control.Kind)
	require.NotNil(t, out[1].Control.Metadata)
	assert.Equal(t, "vad_decision_timeout", out[1].Control.Metadata["reason"])
	assert.Equal(t, decideErr.Error(), out[1].Control.Metadata["error"])
}

func TestGate_CancelledSegmentCanRestartOnNextSpeech(t *testing.T) {
	cfg := testCfg()
	cfg.MinSpeechDurationMs = 1000
	cfg.MinSilenceDurationMs = 20
	d := &scriptedDecider{plan: []decision{
		{isSpeech: true},  // start speculation
		{isSpeech: false}, // 20ms silence -> cancel
		{isSpeech: true},  // next frame starts a fresh segment
	}}
	g := newTestGate(d, cfg)

	_, err := g.Process(context.Background(), audioFrame(0, 16000, 320))
	require.NoError(t, err)
	_, err = g.Process(context.Background(), audioFrame(20000, 16000, 320))
	require.NoError(t, err)
	assert.Equal(t, Cancelled, g.State())

	out, err := g.Process(context.Background(), audioFrame(40000, 16000, 320))
	require.NoError(t, err)
	assert.Equal(t, Speculating, g.State())
	assert.NotEmpty(t, out)
}

func TestGate_NonAudioFramePassesThroughUntouched(t *testing.T) {
	d := &scriptedDecider{plan: []decision{{isSpeech: false}}}
	g := newTestGate(d, testCfg())

	text := frame.Frame{Variant: frame.VariantText, Text: "hello"}
	out, err := g.Process(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, Idle, g.State())
}
