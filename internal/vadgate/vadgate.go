// Package vadgate implements the speculative voice-activity gate (§4.2):
// a node that starts forwarding audio the moment a VAD decision looks
// like speech, replays a lookback buffer so the true onset is never
// lost, and retracts the guess with a CancelSpeculation control frame if
// debounce later proves it was noise.
package vadgate

import (
	"context"
	"sync"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/errs"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"
	"github.com/google/uuid"
)

// SegmentState is the per-stream speculative segment state machine of
// §4.2: Idle → Speculating → Committed or Cancelled, then back to Idle.
type SegmentState int

const (
	Idle SegmentState = iota
	Speculating
	Committed
	Cancelled
)

func (s SegmentState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Speculating:
		return "Speculating"
	case Committed:
		return "Committed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Decider abstracts the underlying voice-activity model. The gate itself
// is model-agnostic — concrete VAD engines are pool-of-node-implementation
// concerns outside this package's scope (mirrors the boundary-detector /
// engine split the local-silero VAD server uses).
type Decider interface {
	Decide(ctx context.Context, f frame.Frame) (isSpeech bool, err error)
}

type bufferedFrame struct {
	f        frame.Frame
	durMs    float64
	tsUs     uint64
	hasTs    bool
}

// Gate is one speculative VAD gate instance, one per audio stream.
type Gate struct {
	id        string
	sessionID string
	decider   Decider
	cfg       config.VADGateConfig
	nowUs     func() uint64
	logger    commons.Logger

	mu    sync.Mutex
	state SegmentState

	lookback     []bufferedFrame
	lookbackMs   float64
	speechMs     float64
	silenceMs    float64
	noDecisionMs float64

	segmentID      string
	segmentStartUs uint64
	lastFrameTsUs  uint64

	emit func(eventType string, data map[string]any)
}

// cancelSpeculationEvent is §6's named lifecycle event type for a
// retracted speculative segment; kept as a literal here (rather than an
// executor.EventCancelSpeculation import) since registry.EventSink is
// the only contract between this package and the session that observes it.
const cancelSpeculationEvent = "cancel_speculation"

// SetEventEmitter implements registry.EventSink. The session calls this
// once, right after instantiating the gate, before Initialize runs.
func (g *Gate) SetEventEmitter(emit func(eventType string, data map[string]any)) {
	g.mu.Lock()
	g.emit = emit
	g.mu.Unlock()
}

// New builds a Gate bound to one decider and one logical stream.
func New(nodeID, sessionID string, decider Decider, cfg config.VADGateConfig, nowUs func() uint64, logger commons.Logger) *Gate {
	return &Gate{id: nodeID, sessionID: sessionID, decider: decider, cfg: cfg, nowUs: nowUs, logger: logger}
}

// NewFactory returns a registry.Factory that builds a Gate from manifest
// params {"session_id": string}, wired to decider.
func NewFactory(decider Decider, cfg config.VADGateConfig, nowUs func() uint64) registry.Factory {
	return func(nodeID string, params map[string]any, logger commons.Logger) (registry.Node, error) {
		sessionID, _ := params["session_id"].(string)
		return New(nodeID, sessionID, decider, cfg, nowUs, logger), nil
	}
}

// Schema declares the gate's node contract: accepts/produces audio, and
// supports control (it emits CancelSpeculation, though it does not react
// to inbound control).
func Schema() registry.Schema {
	return registry.Schema{
		Accepts:           []frame.Variant{frame.VariantAudio},
		Produces:          []frame.Variant{frame.VariantAudio, frame.VariantControl},
		SupportsStreaming: true,
		MultiOutput:       true,
		SupportsControl:   true,
		LatencyClass:      registry.LatencyRealtime,
	}
}

func (g *Gate) Initialize(ctx context.Context) error { return nil }
func (g *Gate) Close() error                         { return nil }

func audioDurationMs(a *frame.Audio) float64 {
	if a == nil || a.SampleRate == 0 {
		return 0
	}
	return float64(a.Frames) * 1000.0 / float64(a.SampleRate)
}

// Process ingests one frame. Non-audio frames pass through untouched;
// audio frames drive the speculative segment state machine, which may
// emit zero or more audio frames plus, at most once per cancelled
// segment, a CancelSpeculation control frame.
func (g *Gate) Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error) {
	if in.Variant != frame.VariantAudio || in.Audio == nil {
		return []frame.Frame{in}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	durMs := audioDurationMs(in.Audio)
	tsUs := in.TimestampUs
	hasTs := in.HasTimestamp
	if !hasTs {
		tsUs = g.nowUs()
	}
	g.lastFrameTsUs = tsUs

	isSpeech, decideErr := g.decider.Decide(ctx, in)

	switch g.state {
	case Idle, Cancelled:
		// A Cancelled segment is over; the next frame is evaluated exactly
		// like Idle. The Cancelled value itself stays observable via
		// State() only for the duration between this call and the last.
		g.state = Idle
		g.pushLookback(in, durMs, tsUs, hasTs)
		if decideErr != nil {
			return nil, nil // no decision, nothing to speculate on yet
		}
		if !isSpeech {
			return nil, nil
		}
		return g.startSpeculation(tsUs, durMs)

	case Speculating:
		return g.continueSpeculation(ctx, in, durMs, tsUs, isSpeech, decideErr)

	case Committed:
		return g.continueCommitted(in, durMs, isSpeech, decideErr), nil

	default:
		return nil, errs.Newf(errs.InvalidState, "vad gate %q in unknown state", g.id)
	}
}

func (g *Gate) pushLookback(f frame.Frame, durMs float64, tsUs uint64, hasTs bool) {
	g.lookback = append(g.lookback, bufferedFrame{f: f, durMs: durMs, tsUs: tsUs, hasTs: hasTs})
	g.lookbackMs += durMs
	for g.lookbackMs > float64(g.cfg.LookbackMs) && len(g.lookback) > 1 {
		g.lookbackMs -= g.lookback[0].durMs
		g.lookback = g.lookback[1:]
	}
}

func (g *Gate) startSpeculation(tsUs uint64, durMs float64) ([]frame.Frame, error) {
	g.state = Speculating
	g.segmentID = uuid.NewString()
	if len(g.lookback) > 0 && g.lookback[0].hasTs {
		g.segmentStartUs = g.lookback[0].tsUs
	} else {
		g.segmentStartUs = tsUs
	}
	// The triggering frame is itself speech and counts toward commit.
	g.speechMs = durMs
	if g.speechMs >= float64(g.cfg.MinSpeechDurationMs) {
		g.state = Committed
	}
	g.silenceMs = 0
	g.noDecisionMs = 0

	out := make([]frame.Frame, 0, len(g.lookback)+1)
	for _, bf := range g.lookback {
		out = append(out, bf.f)
	}
	g.lookback = nil
	g.lookbackMs = 0
	return out, nil
}

func (g *Gate) continueSpeculation(ctx context.Context, in frame.Frame, durMs float64, tsUs uint64, isSpeech bool, decideErr error) ([]frame.Frame, error) {
	out := []frame.Frame{in}

	switch {
	case decideErr != nil:
		// §4.2/§9 open question: a VAD error is "no decision" — the
		// segment stays Speculating until VADDecisionTimeoutMs elapses
		// since segment start, then falls back to Cancelled with a
		// diagnostic rather than guessing speech.
		g.noDecisionMs += durMs
		elapsedUs := tsUs - g.segmentStartUs
		if elapsedUs/1000 >= uint64(g.cfg.VADDecisionTimeoutMs) {
			return g.cancelSpeculationDiagnostic(ctx, in, decideErr)
		}
		return out, nil

	case isSpeech:
		g.speechMs += durMs
		g.silenceMs = 0
		if g.speechMs >= float64(g.cfg.MinSpeechDurationMs) {
			g.state = Committed
		}
		return out, nil

	default:
		g.silenceMs += durMs
		if g.state == Committed {
			if g.silenceMs >= float64(g.cfg.MinSilenceDurationMs) {
				g.state = Idle
			}
			return out, nil
		}
		if g.silenceMs >= float64(g.cfg.MinSilenceDurationMs) {
			return g.cancelSpeculation(ctx, in)
		}
		return out, nil
	}
}

// continueCommitted forwards audio for a committed segment and returns to
// Idle once MinSilenceDurationMs of consecutive silence is seen. A VAD
// error counts as neither speech nor silence.
func (g *Gate) continueCommitted(in frame.Frame, durMs float64, isSpeech bool, decideErr error) []frame.Frame {
	switch {
	case decideErr != nil:
	case isSpeech:
		g.silenceMs = 0
	default:
		g.silenceMs += durMs
		if g.silenceMs >= float64(g.cfg.MinSilenceDurationMs) {
			g.state = Idle
		}
	}
	return []frame.Frame{in}
}

// cancelSpeculation retracts a segment that debounce proved was not real
// speech. State lands on Cancelled (not Idle directly) so the outcome is
// observable; the Idle branch of Process treats Cancelled the same as
// Idle, so the next speech-looking frame starts a fresh segment.
func (g *Gate) cancelSpeculation(ctx context.Context, last frame.Frame) ([]frame.Frame, error) {
	ctrl, err := frame.NewCancelSpeculation(g.sessionID, g.nowUs(), g.segmentStartUs, g.lastFrameTsUs, g.segmentID)
	if err != nil {
		g.logger.Warnw("vad gate: failed to build CancelSpeculation", "node_id", g.id, "error", err)
		g.state = Cancelled
		return nil, nil
	}
	g.state = Cancelled
	g.emitCancelSpeculation("silence_debounced")
	return []frame.Frame{last, ctrl}, nil
}

// emitCancelSpeculation publishes the gate's cancel_speculation lifecycle
// event, if an emitter has been wired. Called with g.mu already held.
func (g *Gate) emitCancelSpeculation(reason string) {
	if g.emit == nil {
		return
	}
	g.emit(cancelSpeculationEvent, map[string]any{
		"node_id":    g.id,
		"segment_id": g.segmentID,
		"reason":     reason,
	})
}

// cancelSpeculationDiagnostic cancels a segment whose VAD never reached a
// confirm/deny decision before the timeout, attaching the decider's last
// error as diagnostic metadata so downstream observers can distinguish
// this from an ordinary silence-debounced cancel.
func (g *Gate) cancelSpeculationDiagnostic(ctx context.Context, last frame.Frame, decideErr error) ([]frame.Frame, error) {
	ctrl, err := frame.NewCancelSpeculation(g.sessionID, g.nowUs(), g.segmentStartUs, g.lastFrameTsUs, g.segmentID)
	if err != nil {
		g.logger.Warnw("vad gate: failed to build diagnostic CancelSpeculation", "node_id", g.id, "error", err)
		g.state = Cancelled
		return nil, nil
	}
	ctrl.Control.Metadata = map[string]any{
		"reason": "vad_decision_timeout",
		"error":  decideErr.Error(),
	}
	g.state = Cancelled
	g.emitCancelSpeculation("vad_decision_timeout")
	return []frame.Frame{last, ctrl}, nil
}

// State returns the gate's current segment state (test/observability use).
func (g *Gate) State() SegmentState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
