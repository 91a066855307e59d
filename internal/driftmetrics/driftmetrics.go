// Package driftmetrics implements the per-stream drift accumulator of
// §4.4: EMA slope, lead, A/V skew, freeze detection, cadence
// coefficient-of-variation, and a normalized [0,1] health score, all with
// raise/clear hysteresis on alerts.
package driftmetrics

import "math"

// AlertKind enumerates the alert bits tracked with hysteresis.
type AlertKind int

const (
	AlertSlope AlertKind = iota
	AlertAVSkew
	AlertFreeze
	AlertCadenceCV
	numAlertKinds
)

// Thresholds configures both the raw trigger levels and the hysteresis
// window. Defaults mirror the original source's timing-drift node and
// health-score weighting (§9 open-questions note, SPEC_FULL §4).
type Thresholds struct {
	SlopeThresholdMsPerS float64
	AVSkewThresholdUs    int64
	FreezeThresholdUs    int64
	CadenceCVThreshold   float64

	SamplesToRaise int
	SamplesToClear int
	EMAAlpha       float64

	// Health score weights; must not need to sum to 1 but conventionally do.
	WeightSlope   float64
	WeightSkew    float64
	WeightFreeze  float64
	WeightCadence float64
}

// DefaultThresholds matches §4.4/§4.5 defaults and the original source's
// health-score weighting (slope 0.4, skew 0.3, freeze 0.2, cadence 0.1).
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlopeThresholdMsPerS: 5.0,
		AVSkewThresholdUs:    80_000,
		FreezeThresholdUs:    500_000,
		CadenceCVThreshold:   0.3,
		SamplesToRaise:       3,
		SamplesToClear:       5,
		EMAAlpha:             0.1,
		WeightSlope:          0.4,
		WeightSkew:           0.3,
		WeightFreeze:         0.2,
		WeightCadence:        0.1,
	}
}

type hysteresis struct {
	active          bool
	consecutiveOver int
	consecutiveOK   int
}

// observe feeds one over/under-threshold sample and returns the alert's
// resulting active state, per §4.4's raise-after-N / clear-after-M rule.
func (h *hysteresis) observe(over bool, raiseAfter, clearAfter int) bool {
	if over {
		h.consecutiveOver++
		h.consecutiveOK = 0
		if !h.active && h.consecutiveOver >= raiseAfter {
			h.active = true
		}
	} else {
		h.consecutiveOK++
		h.consecutiveOver = 0
		if h.active && h.consecutiveOK >= clearAfter {
			h.active = false
		}
	}
	return h.active
}

// ringStats tracks a bounded window of inter-arrival intervals for
// cadence coefficient-of-variation, following the original's
// VecDeque<JitterSample> approach.
type ringStats struct {
	window []float64
	cap    int
	next   int
	filled int
}

func newRingStats(capacity int) *ringStats {
	return &ringStats{window: make([]float64, capacity), cap: capacity}
}

func (r *ringStats) push(v float64) {
	r.window[r.next] = v
	r.next = (r.next + 1) % r.cap
	if r.filled < r.cap {
		r.filled++
	}
}

func (r *ringStats) coefficientOfVariation() float64 {
	if r.filled < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < r.filled; i++ {
		sum += r.window[i]
	}
	mean := sum / float64(r.filled)
	if mean == 0 {
		return 0
	}
	var variance float64
	for i := 0; i < r.filled; i++ {
		d := r.window[i] - mean
		variance += d * d
	}
	variance /= float64(r.filled)
	return math.Sqrt(variance) / mean
}

// DriftMetrics is the per-stream accumulator of §3/§4.4.
type DriftMetrics struct {
	streamID   string
	thresholds Thresholds

	hasLastArrival bool
	lastArrivalUs  uint64
	lastMediaUs    uint64
	hasLead        bool
	currentLeadUs  int64
	slopeEMA       float64
	hasSlope       bool

	lastSkewUs     int64
	hasSkew        bool
	freezeDuration int64
	frozen         bool

	cadence *ringStats

	alerts [numAlertKinds]hysteresis
}

// New creates a DriftMetrics accumulator for one stream.
func New(streamID string, thresholds Thresholds) *DriftMetrics {
	return &DriftMetrics{
		streamID:   streamID,
		thresholds: thresholds,
		cadence:    newRingStats(100),
	}
}

// RecordSample ingests one (media_ts_us, arrival_ts_us) pair (§3, §4.4).
// Lead is arrival-media; slope is an EMA of d(lead)/d(wall) between
// consecutive samples.
func (d *DriftMetrics) RecordSample(mediaTsUs, arrivalTsUs uint64) {
	lead := int64(arrivalTsUs) - int64(mediaTsUs)

	if d.hasLastArrival {
		wallDeltaUs := int64(arrivalTsUs) - int64(d.lastArrivalUs)
		if wallDeltaUs > 0 {
			d.cadence.push(float64(wallDeltaUs))
			if d.hasLead {
				leadDeltaMs := float64(lead-d.currentLeadUs) / 1000.0
				wallDeltaS := float64(wallDeltaUs) / 1_000_000.0
				instSlope := leadDeltaMs / wallDeltaS
				if d.hasSlope {
					a := d.thresholds.EMAAlpha
					d.slopeEMA = a*instSlope + (1-a)*d.slopeEMA
				} else {
					d.slopeEMA = instSlope
					d.hasSlope = true
				}
			}
		}
	}

	d.currentLeadUs = lead
	d.hasLead = true
	d.lastArrivalUs = arrivalTsUs
	d.lastMediaUs = mediaTsUs
	d.hasLastArrival = true

	d.alerts[AlertSlope].observe(math.Abs(d.slopeEMA) > d.thresholds.SlopeThresholdMsPerS,
		d.thresholds.SamplesToRaise, d.thresholds.SamplesToClear)
	d.alerts[AlertCadenceCV].observe(d.cadence.coefficientOfVariation() > d.thresholds.CadenceCVThreshold,
		d.thresholds.SamplesToRaise, d.thresholds.SamplesToClear)
}

// RecordSkewSample ingests a paired audio/video arrival skew (microseconds,
// signed; caller computes audioArrival-videoArrival).
func (d *DriftMetrics) RecordSkewSample(skewUs int64) {
	d.lastSkewUs = skewUs
	d.hasSkew = true
	d.alerts[AlertAVSkew].observe(absInt64(skewUs) > d.thresholds.AVSkewThresholdUs,
		d.thresholds.SamplesToRaise, d.thresholds.SamplesToClear)
}

// CheckFreeze evaluates freeze detection against the caller's current
// wall clock (nowUs), per §4.4: now − last_arrival > freeze_threshold.
func (d *DriftMetrics) CheckFreeze(nowUs uint64) bool {
	if !d.hasLastArrival {
		return false
	}
	gap := int64(nowUs) - int64(d.lastArrivalUs)
	if gap > d.freezeDuration {
		d.freezeDuration = gap
	} else if gap <= 0 {
		d.freezeDuration = 0
	}
	frozen := gap > d.thresholds.FreezeThresholdUs
	d.frozen = frozen
	d.alerts[AlertFreeze].observe(frozen, d.thresholds.SamplesToRaise, d.thresholds.SamplesToClear)
	return frozen
}

// CurrentLeadUs returns the most recent lead sample.
func (d *DriftMetrics) CurrentLeadUs() (int64, bool) { return d.currentLeadUs, d.hasLead }

// CurrentSlopeMsPerS returns the EMA slope in ms of drift per wall-clock second.
func (d *DriftMetrics) CurrentSlopeMsPerS() float64 { return d.slopeEMA }

// CadenceCV returns the coefficient of variation of inter-arrival intervals.
func (d *DriftMetrics) CadenceCV() float64 { return d.cadence.coefficientOfVariation() }

// AVSkewUs returns the last recorded A/V skew sample.
func (d *DriftMetrics) AVSkewUs() (int64, bool) { return d.lastSkewUs, d.hasSkew }

// AlertActive reports whether the given alert is currently raised.
func (d *DriftMetrics) AlertActive(kind AlertKind) bool { return d.alerts[kind].active }

// HealthScore computes the weighted [0,1] aggregate of §4.4: 1.0 minus
// normalized contributions from |slope|, |A/V skew|, freeze presence, and
// cadence CV, clamped to [0,1].
func (d *DriftMetrics) HealthScore() float64 {
	t := d.thresholds
	slopeContrib := clamp01(math.Abs(d.slopeEMA) / (t.SlopeThresholdMsPerS * 2))
	skewContrib := clamp01(float64(absInt64(d.lastSkewUs)) / float64(t.AVSkewThresholdUs*2))
	var freezeContrib float64
	if d.frozen {
		freezeContrib = 1.0
	}
	cadenceContrib := clamp01(d.cadence.coefficientOfVariation() / (t.CadenceCVThreshold * 2))

	score := 1.0 - (t.WeightSlope*slopeContrib + t.WeightSkew*skewContrib +
		t.WeightFreeze*freezeContrib + t.WeightCadence*cadenceContrib)
	return clamp01(score)
}

// Reset clears all accumulated state (§3: "reset allowed for test/session
// boundary").
func (d *DriftMetrics) Reset() {
	thresholds := d.thresholds
	streamID := d.streamID
	*d = DriftMetrics{streamID: streamID, thresholds: thresholds, cadence: newRingStats(100)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
