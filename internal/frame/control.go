package frame

import (
	"github.com/rapidaai/runtime/internal/errs"
)

// MaxControlAgeUs is the staleness threshold from §3/§8: a control message
// older than this at the consumer is dropped and warned about rather than
// acted on.
const MaxControlAgeUs = 1000 * 1000

// NewCancelSpeculation builds a CancelSpeculation control frame.
func NewCancelSpeculation(sessionID string, nowUs, from, to uint64, targetSegmentID string) (Frame, error) {
	c := &Control{
		Kind:            ControlCancelSpeculation,
		SessionID:       sessionID,
		TimestampUs:     nowUs,
		TargetSegmentID: targetSegmentID,
		FromTimestampUs: from,
		ToTimestampUs:   to,
	}
	if err := ValidateControl(c, nowUs); err != nil {
		return Frame{}, err
	}
	return Frame{Variant: VariantControl, Control: c}, nil
}

// NewBatchHint builds a BatchHint control frame.
func NewBatchHint(sessionID string, nowUs uint64, size int) (Frame, error) {
	c := &Control{Kind: ControlBatchHint, SessionID: sessionID, TimestampUs: nowUs, SuggestedBatchSize: size}
	if err := ValidateControl(c, nowUs); err != nil {
		return Frame{}, err
	}
	return Frame{Variant: VariantControl, Control: c}, nil
}

// NewDeadlineWarning builds a DeadlineWarning control frame.
func NewDeadlineWarning(sessionID string, nowUs, deadlineUs uint64) (Frame, error) {
	c := &Control{Kind: ControlDeadlineWarning, SessionID: sessionID, TimestampUs: nowUs, DeadlineUs: deadlineUs}
	if err := ValidateControl(c, nowUs); err != nil {
		return Frame{}, err
	}
	return Frame{Variant: VariantControl, Control: c}, nil
}

// ValidateControl enforces §3/§8's control message invariants:
//   - CancelSpeculation.from < to
//   - BatchHint.size ∈ [1,100]
//   - age at consumer (nowUs - c.TimestampUs) < 1000ms
//
// nowUs is the caller's current wall clock, passed in rather than sampled
// internally so the check is deterministic in tests.
func ValidateControl(c *Control, nowUs uint64) error {
	if nowUs >= c.TimestampUs {
		age := nowUs - c.TimestampUs
		if age >= MaxControlAgeUs {
			return errs.Newf(errs.Config, "control message is %dus old (>= %dus threshold)", age, MaxControlAgeUs)
		}
	}
	switch c.Kind {
	case ControlCancelSpeculation:
		if c.FromTimestampUs >= c.ToTimestampUs {
			return errs.Newf(errs.Config, "CancelSpeculation: from (%d) must be < to (%d)", c.FromTimestampUs, c.ToTimestampUs)
		}
	case ControlBatchHint:
		if c.SuggestedBatchSize < 1 || c.SuggestedBatchSize > 100 {
			return errs.Newf(errs.Config, "BatchHint.size must be in [1,100], got %d", c.SuggestedBatchSize)
		}
	case ControlDeadlineWarning:
		// advisory only, no further constraints.
	}
	return nil
}
