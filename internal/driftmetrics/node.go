package driftmetrics

import (
	"context"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"
)

// driftEvent* are §6's named lifecycle event types this node publishes;
// kept as literals (rather than importing internal/executor) since
// registry.EventSink is the only contract between this package and the
// session that observes it.
const (
	driftEventAlert  = "drift_alert"
	driftEventFreeze = "freeze"
	driftEventHealth = "health"
)

// ThresholdsFromConfig converts a manifest/process-level DriftConfig
// (milliseconds, per §4.4's operator-facing units) into the accumulator's
// Thresholds (microseconds internally), keeping DefaultThresholds' health
// score weighting since the config surface does not expose it.
func ThresholdsFromConfig(cfg config.DriftConfig) Thresholds {
	t := DefaultThresholds()
	t.SlopeThresholdMsPerS = cfg.SlopeThresholdMsPerS
	t.AVSkewThresholdUs = cfg.AVSkewThresholdMs * 1000
	t.FreezeThresholdUs = cfg.FreezeThresholdMs * 1000
	t.CadenceCVThreshold = cfg.CadenceCVThreshold
	t.SamplesToRaise = cfg.SamplesToRaise
	t.SamplesToClear = cfg.SamplesToClear
	t.EMAAlpha = cfg.EMAAlpha
	return t
}

// Node wraps a per-stream DriftMetrics accumulator as a pipeline node
// (§4.4): it passes every frame through unchanged while feeding Audio/Video
// timestamps into the accumulator and publishing drift_alert/freeze/health
// lifecycle events on alert transitions, mirroring the original source's
// timing-drift node sitting inline in the media graph rather than off to
// the side as a pure sidecar.
type Node struct {
	id     string
	nowUs  func() uint64
	logger commons.Logger

	metrics *DriftMetrics
	emit    func(eventType string, data map[string]any)

	wasSlope   bool
	wasSkew    bool
	wasCadence bool
	wasFrozen  bool
}

// NewNode builds a drift-metrics Node for one stream.
func NewNode(nodeID string, thresholds Thresholds, nowUs func() uint64, logger commons.Logger) *Node {
	return &Node{id: nodeID, nowUs: nowUs, logger: logger, metrics: New(nodeID, thresholds)}
}

// NewFactory returns a registry.Factory that builds a drift Node per
// manifest node instantiation, seeded from cfg.
func NewFactory(cfg config.DriftConfig, nowUs func() uint64) registry.Factory {
	return func(nodeID string, params map[string]any, logger commons.Logger) (registry.Node, error) {
		return NewNode(nodeID, ThresholdsFromConfig(cfg), nowUs, logger), nil
	}
}

// Schema declares the drift node's contract: it accepts and forwards
// audio/video untouched, and publishes lifecycle events rather than
// control frames.
func Schema() registry.Schema {
	return registry.Schema{
		Accepts:           []frame.Variant{frame.VariantAudio, frame.VariantVideo},
		Produces:          []frame.Variant{frame.VariantAudio, frame.VariantVideo},
		SupportsStreaming: true,
		LatencyClass:      registry.LatencyRealtime,
	}
}

func (n *Node) Initialize(ctx context.Context) error { return nil }
func (n *Node) Close() error                         { return nil }

// SetEventEmitter implements registry.EventSink.
func (n *Node) SetEventEmitter(emit func(eventType string, data map[string]any)) {
	n.emit = emit
}

// Process feeds the accumulator from the frame's media/arrival timestamps
// (stamping arrival with nowUs when the transport left it unset) and
// forwards the frame unchanged, emitting any alert-transition events.
func (n *Node) Process(ctx context.Context, in frame.Frame) ([]frame.Frame, error) {
	if in.HasTimestamp {
		arrivalUs := in.ArrivalTsUs
		if !in.HasArrival {
			arrivalUs = n.nowUs()
		}
		switch in.Variant {
		case frame.VariantAudio, frame.VariantVideo:
			n.metrics.RecordSample(in.TimestampUs, arrivalUs)
		}
	}

	n.metrics.CheckFreeze(n.nowUs())
	n.publishTransitions()

	return []frame.Frame{in}, nil
}

// publishTransitions emits drift_alert/freeze for any alert whose active
// state flipped since the last call, and an unconditional health event —
// the original source's drift node streams health on every sample rather
// than only on threshold crossings, since it is a continuous score rather
// than a boolean.
func (n *Node) publishTransitions() {
	if n.emit == nil {
		return
	}

	n.publishAlert(AlertSlope, "slope", &n.wasSlope)
	n.publishAlert(AlertAVSkew, "av_skew", &n.wasSkew)
	n.publishAlert(AlertCadenceCV, "cadence_cv", &n.wasCadence)

	frozen := n.metrics.AlertActive(AlertFreeze)
	if frozen != n.wasFrozen {
		n.wasFrozen = frozen
		n.emit(driftEventFreeze, map[string]any{"node_id": n.id, "active": frozen})
	}

	n.emit(driftEventHealth, map[string]any{"node_id": n.id, "score": n.metrics.HealthScore()})
}

func (n *Node) publishAlert(kind AlertKind, name string, was *bool) {
	active := n.metrics.AlertActive(kind)
	if active == *was {
		return
	}
	*was = active
	n.emit(driftEventAlert, map[string]any{"node_id": n.id, "kind": name, "active": active})
}
