package executor

import (
	"context"
	"math"
	"time"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/errs"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/manifest"
)

// backoffDelay computes the delay before retry attempt n (1-indexed),
// matching the original source's retry constants: base delay, doubling
// factor, capped at a maximum (§5, SPEC_FULL supplemented features).
func backoffDelay(cfg config.ExecutorConfig, attempt int) time.Duration {
	ms := float64(cfg.RetryBaseDelayMs) * math.Pow(cfg.RetryBackoffFactor, float64(attempt-1))
	if ms > float64(cfg.RetryMaxDelayMs) {
		ms = float64(cfg.RetryMaxDelayMs)
	}
	return time.Duration(ms) * time.Millisecond
}

// runWithPolicy executes fn under the node's declared error policy
// (§4.1): fatal errors propagate immediately, retry errors are retried
// with exponential backoff up to RetryMaxAttempts before becoming fatal,
// and skip errors are swallowed without being logged, producing no output
// for that input.
func runWithPolicy(ctx context.Context, cfg config.ExecutorConfig, policy manifest.ErrorPolicy,
	onRetry func(attempt int, err error), fn func() ([]frame.Frame, error)) ([]frame.Frame, error) {

	switch policy {
	case manifest.PolicySkip:
		out, err := fn()
		if err != nil {
			return nil, nil
		}
		return out, nil

	case manifest.PolicyRetry:
		var lastErr error
		for attempt := 1; attempt <= cfg.RetryMaxAttempts; attempt++ {
			out, err := fn()
			if err == nil {
				return out, nil
			}
			lastErr = err
			if onRetry != nil {
				onRetry(attempt, err)
			}
			if attempt == cfg.RetryMaxAttempts {
				break
			}
			select {
			case <-time.After(backoffDelay(cfg, attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, errs.Wrap(errs.Execution, "", lastErr)

	default: // manifest.PolicyFatal and the unset-policy default
		return fn()
	}
}
