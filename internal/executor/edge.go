package executor

import "github.com/rapidaai/runtime/internal/frame"

// edge is one bounded connection between two node tasks (§4.1). Data
// frames flow through a fixed-capacity channel subject to back-pressure;
// control frames flow through a separate, generously buffered channel
// that a sender never blocks on, matching §3/§4.1's "control messages fork
// to all downstream edges, bypassing filters and back-pressure." Only the
// upstream node task ever writes to or closes an edge's channels, so
// close-while-sending races do not arise.
type edge struct {
	from, to, port string

	// streamFilter is the manifest connection's optional stream_id
	// filter (§4.1): empty matches every frame. Control frames bypass
	// this filter entirely — they fork to every downstream regardless.
	streamFilter string

	dataCh    chan frame.Frame
	controlCh chan frame.Frame
}

// controlChannelCapacity is generous relative to typical data-edge
// capacity (§5 default 32) since control traffic is low-volume and must
// never be dropped under ordinary load; it is sized, not unbounded, so a
// pathological producer cannot exhaust memory.
const controlChannelCapacity = 256

func newEdge(from, to, port, streamFilter string, capacity int) *edge {
	return &edge{
		from:         from,
		to:           to,
		port:         port,
		streamFilter: streamFilter,
		dataCh:       make(chan frame.Frame, capacity),
		controlCh:    make(chan frame.Frame, controlChannelCapacity),
	}
}

// matchesStream reports whether a data frame with the given stream_id
// should be forwarded on this edge. An unset filter passes everything.
func (e *edge) matchesStream(streamID string) bool {
	return e.streamFilter == "" || e.streamFilter == streamID
}

// sendData enqueues a data frame, blocking under back-pressure until
// space frees or stop fires (session shutdown / fatal abort).
func (e *edge) sendData(stop <-chan struct{}, f frame.Frame) bool {
	select {
	case e.dataCh <- f:
		return true
	case <-stop:
		return false
	}
}

// sendControl enqueues a control frame without participating in the data
// edge's back-pressure. A full control buffer means something downstream
// has stalled hard; the frame is dropped rather than blocking the forking
// node indefinitely.
func (e *edge) sendControl(f frame.Frame) bool {
	select {
	case e.controlCh <- f:
		return true
	default:
		return false
	}
}

// closeForWrite closes both channels, signaling EOF to the downstream
// consumer once it drains any frames already buffered.
func (e *edge) closeForWrite() {
	close(e.dataCh)
	close(e.controlCh)
}
