package frame

import (
	"testing"

	"github.com/rapidaai/runtime/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestValidateControl_CancelSpeculationOrdering(t *testing.T) {
	_, err := NewCancelSpeculation("s1", 1000, 200, 100, "")
	assert.Error(t, err, "from >= to must be rejected")
	assert.True(t, errs.Is(err, errs.Config))

	f, err := NewCancelSpeculation("s1", 1000, 40000, 200000, "")
	assert.NoError(t, err)
	assert.Equal(t, ControlCancelSpeculation, f.Control.Kind)
}

func TestValidateControl_BatchHintRange(t *testing.T) {
	_, err := NewBatchHint("s1", 1000, 0)
	assert.Error(t, err)

	_, err = NewBatchHint("s1", 1000, 101)
	assert.Error(t, err)

	f, err := NewBatchHint("s1", 1000, 50)
	assert.NoError(t, err)
	assert.Equal(t, 50, f.Control.SuggestedBatchSize)
}

func TestValidateControl_StaleMessageRejected(t *testing.T) {
	c := &Control{Kind: ControlDeadlineWarning, TimestampUs: 0}
	err := ValidateControl(c, MaxControlAgeUs+1)
	assert.Error(t, err)

	err = ValidateControl(c, MaxControlAgeUs-1)
	assert.NoError(t, err)
}
