package executor

import (
	"context"
	"sync"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/errs"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"
)

// nodeRuntime is one running instance of a manifest node (§4.1).
type nodeRuntime struct {
	id          string
	node        registry.Node
	errorPolicy manifest.ErrorPolicy
	multiInput  bool

	incoming []*edge
	outgoing []*edge
	terminal bool

	cfg    config.ExecutorConfig
	logger commons.Logger

	outputQueue *edge
}

type inboundItem struct {
	source    string
	f         frame.Frame
	isControl bool
}

// run drives this node's task loop for the life of the session: fan-in
// from every incoming edge, process each frame under the node's error
// policy, fan-out (cloning for every branch past the first) to every
// outgoing edge or to the session's shared output queue if this node is
// terminal, and finally drain and close on EOF (§4.1).
func (n *nodeRuntime) run(ctx context.Context, stop <-chan struct{}) error {
	inbox := make(chan inboundItem, 1)
	var wg sync.WaitGroup

	// closeOutgoing runs exactly once, on every exit path (normal drain or
	// a fatal error returned mid-loop), so a failing upstream node always
	// closes its output edges — otherwise a downstream node's forwarders
	// block on a queue that is never closed and never drained (§5:
	// "downstream, the failing node's output queue closes").
	defer n.closeOutgoing()

	forward := func(e *edge) {
		defer wg.Done()
		for {
			select {
			case f, ok := <-e.dataCh:
				if !ok {
					return
				}
				select {
				case inbox <- inboundItem{source: e.from, f: f}:
				case <-stop:
					return
				}
			case f, ok := <-e.controlCh:
				if !ok {
					return
				}
				select {
				case inbox <- inboundItem{source: e.from, f: f, isControl: true}:
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}
	// One forwarder per incoming edge keeps per-edge ordering (an edge's
	// own FIFO is never interleaved with its own control traffic in a way
	// that reorders within that edge) while still fanning multiple
	// upstreams into a single processing loop.
	for _, in := range n.incoming {
		wg.Add(1)
		go forward(in)
	}
	go func() {
		wg.Wait()
		close(inbox)
	}()

	latest := make(map[string]frame.Frame, len(n.incoming))

	for item := range inbox {
		if item.isControl {
			if err := n.handleControl(ctx, stop, item); err != nil {
				return err
			}
			continue
		}

		var outs []frame.Frame
		var err error
		if n.multiInput {
			latest[item.source] = item.f
			snapshot := make(map[string]frame.Frame, len(latest))
			for k, v := range latest {
				snapshot[k] = v
			}
			mi, ok := n.node.(registry.MultiInputNode)
			if !ok {
				return errs.Newf(errs.Config, "node %q declared multi-input but does not implement ProcessMulti", n.id)
			}
			outs, err = runWithPolicy(ctx, n.cfg, n.errorPolicy, n.logRetry, func() ([]frame.Frame, error) {
				return mi.ProcessMulti(ctx, snapshot)
			})
		} else {
			outs, err = runWithPolicy(ctx, n.cfg, n.errorPolicy, n.logRetry, func() ([]frame.Frame, error) {
				return n.node.Process(ctx, item.f)
			})
		}
		if err != nil {
			return errs.Wrap(errs.Execution, n.id, err)
		}
		if !n.fanOutData(stop, outs) {
			return nil // session is shutting down
		}
	}

	if drainer, ok := n.node.(registry.Drainer); ok {
		outs, err := drainer.Drain(ctx)
		if err != nil {
			n.logger.Warnw("node drain failed", "node_id", n.id, "error", err)
		} else {
			n.fanOutData(stop, outs)
		}
	}

	if err := n.node.Close(); err != nil {
		n.logger.Warnw("node close failed", "node_id", n.id, "error", err)
	}
	return nil
}

// closeOutgoing closes every outgoing edge exactly once per run, whichever
// exit path run takes (normal drain, shutdown, or a fatal node error).
func (n *nodeRuntime) closeOutgoing() {
	for _, out := range n.outgoing {
		out.closeForWrite()
	}
}

func (n *nodeRuntime) logRetry(attempt int, err error) {
	n.logger.Warnw("node task retrying after error", "node_id", n.id, "attempt", attempt, "error", err)
}

func (n *nodeRuntime) handleControl(ctx context.Context, stop <-chan struct{}, item inboundItem) error {
	if aware, ok := n.node.(registry.ControlAware); ok {
		outs, err := aware.HandleControl(ctx, item.f)
		if err != nil {
			n.logger.Warnw("node control handler failed", "node_id", n.id, "error", err)
		} else {
			n.fanOutData(stop, outs)
		}
	}
	// The control frame itself always forks to every downstream edge,
	// independent of whether this node consumed it (§3, §4.1).
	for _, out := range n.outgoing {
		clone := item.f.Clone()
		out.sendControl(clone)
	}
	return nil
}

// fanOutData delivers outs to every outgoing edge whose stream_id filter
// matches (§4.1; unset filter passes everything), cloning for branches
// past the first to avoid aliasing, or to the session output queue if
// this node is terminal. Returns false if shutdown interrupted delivery.
func (n *nodeRuntime) fanOutData(stop <-chan struct{}, outs []frame.Frame) bool {
	for _, f := range outs {
		if n.terminal || len(n.outgoing) == 0 {
			if n.outputQueue != nil && !n.outputQueue.sendData(stop, f) {
				return false
			}
			continue
		}
		first := true
		for _, out := range n.outgoing {
			if !out.matchesStream(f.StreamID) {
				continue
			}
			toSend := f
			if !first {
				toSend = f.Clone()
			}
			first = false
			if !out.sendData(stop, toSend) {
				return false
			}
		}
	}
	return true
}
