package latencymetrics

import (
	"strings"
	"testing"
)

func fixedClock(startUs int64) func() int64 {
	us := startUs
	return func() int64 { return us }
}

func TestRecordStageLatencyUs_PercentilesReflectSamples(t *testing.T) {
	r := NewRegistry(fixedClock(0))
	for i := 0; i < 100; i++ {
		r.RecordStageLatencyUs("asr", 1000)
	}
	r.RecordStageLatencyUs("asr", 50000)

	p50 := r.stage("asr").Percentile("1m", 0.5)
	if p50 < 900 || p50 > 1100 {
		t.Fatalf("expected p50 near 1000us, got %d", p50)
	}
	if count := r.stage("asr").Count("1m"); count != 101 {
		t.Fatalf("expected 101 samples recorded, got %d", count)
	}
}

func TestRotatingHistogram_ClampsOutOfRangeValues(t *testing.T) {
	r := NewRegistry(fixedClock(0))
	r.RecordStageLatencyUs("vad", 10_000_000) // far above 1s max
	r.RecordStageLatencyUs("vad", -5)          // below 1us min
	if count := r.stage("vad").Count("1m"); count != 2 {
		t.Fatalf("expected both out-of-range samples still recorded (clamped), got %d", count)
	}
}

func TestBatchSizeEMA_ConvergesTowardObservations(t *testing.T) {
	r := NewRegistry(fixedClock(0))
	for i := 0; i < 50; i++ {
		r.RecordBatchSize(10)
	}
	if ema := r.BatchSizeEMA(); ema < 9.5 || ema > 10.5 {
		t.Fatalf("expected EMA to converge near 10, got %f", ema)
	}
}

func TestSpeculationAcceptanceRate(t *testing.T) {
	r := NewRegistry(fixedClock(0))
	for i := 0; i < 3; i++ {
		r.RecordSpeculationOutcome(true)
	}
	r.RecordSpeculationOutcome(false)
	if rate := r.SpeculationAcceptanceRate(); rate != 0.75 {
		t.Fatalf("expected 0.75 acceptance rate, got %f", rate)
	}
}

func TestExportPrometheus_ContainsExpectedMetricFamilies(t *testing.T) {
	r := NewRegistry(fixedClock(0))
	r.RecordStageLatencyUs("asr", 2000)
	r.SetQueueDepth("input_to_asr", 5)
	r.RecordBatchSize(4)
	r.RecordSpeculationOutcome(true)
	r.RecordInput()

	out := r.ExportPrometheus()
	for _, want := range []string{
		"runtime_stage_latency_microseconds",
		"runtime_queue_depth{edge=\"input_to_asr\"} 5",
		"runtime_batch_size_ema",
		"runtime_speculation_acceptance_rate",
		"runtime_total_inputs_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected exported text to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRotatingHistogram_RotatesAfterWindowElapses(t *testing.T) {
	clockUs := int64(0)
	clock := func() int64 { return clockUs }
	r := NewRegistry(clock)
	r.RecordStageLatencyUs("asr", 1000)
	if count := r.stage("asr").Count("1m"); count != 1 {
		t.Fatalf("expected 1 sample before rotation, got %d", count)
	}
	clockUs += (61 * 1_000_000) // advance 61s, past the 1m window
	r.RecordStageLatencyUs("asr", 2000)
	if count := r.stage("asr").Count("1m"); count != 1 {
		t.Fatalf("expected window to reset to 1 sample after rotation, got %d", count)
	}
}
