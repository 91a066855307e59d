package vadgate

import (
	"context"

	"github.com/rapidaai/runtime/internal/frame"
)

// EnergyDecider is a minimal, dependency-free Decider: it classifies a
// frame as speech when its RMS amplitude exceeds a fixed threshold. Real
// deployments are expected to swap in a model-backed Decider (a concrete
// VAD engine is a node-pool concern outside this package); this
// implementation exists so the gate is usable out of the box and so its
// behavior is exercised end to end without any external dependency.
type EnergyDecider struct {
	Threshold float32
}

// NewEnergyDecider returns an EnergyDecider with a conservative default
// threshold tuned for normalized ([-1, 1]) float32 samples.
func NewEnergyDecider() *EnergyDecider {
	return &EnergyDecider{Threshold: 0.02}
}

func (d *EnergyDecider) Decide(ctx context.Context, f frame.Frame) (bool, error) {
	if f.Audio == nil || len(f.Audio.Samples) == 0 {
		return false, nil
	}
	var sumSq float64
	for _, s := range f.Audio.Samples {
		sumSq += float64(s) * float64(s)
	}
	rms := sumSq / float64(len(f.Audio.Samples))
	threshold := float64(d.Threshold) * float64(d.Threshold)
	return rms >= threshold, nil
}
