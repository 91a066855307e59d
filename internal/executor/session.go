// Package executor runs a validated manifest as a live graph of node
// tasks: bounded edges with back-pressure, fan-out clone semantics,
// multi-input keyed merge, control-message forking, per-node error
// policies, and a forward-only session lifecycle (§4.1).
package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/rapidaai/runtime/internal/config"
	"github.com/rapidaai/runtime/internal/errs"
	"github.com/rapidaai/runtime/internal/frame"
	"github.com/rapidaai/runtime/internal/manifest"
	"github.com/rapidaai/runtime/internal/registry"
	"github.com/rapidaai/runtime/pkg/commons"
	"golang.org/x/sync/errgroup"
)

// Session is one running instance of a manifest graph.
type Session struct {
	id     string
	logger commons.Logger
	cfg    config.ExecutorConfig
	nowUs  func() uint64

	mu         sync.Mutex
	state      State
	fatalCause error

	nodes       map[string]*nodeRuntime
	entryEdges  map[string]*edge
	outputQueue *edge

	group      *errgroup.Group
	groupCtx   context.Context
	terminalWG sync.WaitGroup
	fatalOnce  sync.Once
	doneC      chan struct{}

	listenersMu sync.Mutex
	listeners   []chan LifecycleEvent
}

// NewSession validates the manifest against reg and instantiates every
// node and edge, but does not start any node task — call Start for that
// (§4.1's Created state).
func NewSession(id string, m *manifest.Manifest, reg *registry.Registry, cfg config.ExecutorConfig,
	logger commons.Logger, nowUs func() uint64) (*Session, error) {

	if err := reg.ValidateManifest(m); err != nil {
		return nil, err
	}

	incoming := make(map[string][]*edge, len(m.Nodes))
	outgoing := make(map[string][]*edge, len(m.Nodes))
	for _, c := range m.Connections {
		e := newEdge(c.From, c.To, c.Port, c.StreamID, cfg.EdgeQueueCapacity)
		outgoing[c.From] = append(outgoing[c.From], e)
		incoming[c.To] = append(incoming[c.To], e)
	}

	entryEdges := make(map[string]*edge)
	outputQueue := newEdge("__output__", "__session__", "", "", cfg.EdgeQueueCapacity)

	s := &Session{
		id:          id,
		logger:      logger,
		cfg:         cfg,
		nowUs:       nowUs,
		state:       StateCreated,
		nodes:       make(map[string]*nodeRuntime, len(m.Nodes)),
		entryEdges:  entryEdges,
		outputQueue: outputQueue,
	}

	for _, mn := range m.Nodes {
		if len(incoming[mn.ID]) == 0 {
			entry := newEdge("__input__", mn.ID, "", "", cfg.EdgeQueueCapacity)
			entryEdges[mn.ID] = entry
			incoming[mn.ID] = append(incoming[mn.ID], entry)
		}

		node, err := reg.Instantiate(mn, logger)
		if err != nil {
			return nil, err
		}
		if sink, ok := node.(registry.EventSink); ok {
			sink.SetEventEmitter(s.emit)
		}
		_, schema, _ := reg.Lookup(mn.NodeType)

		policy := mn.ErrorPolicy
		if policy == "" {
			policy = manifest.PolicyFatal
		}

		terminal := len(outgoing[mn.ID]) == 0
		s.nodes[mn.ID] = &nodeRuntime{
			id:          mn.ID,
			node:        node,
			errorPolicy: policy,
			multiInput:  schema.MultiInput,
			incoming:    incoming[mn.ID],
			outgoing:    outgoing[mn.ID],
			terminal:    terminal,
			cfg:         cfg,
			logger:      logger,
			outputQueue: outputQueue,
		}
	}

	return s, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(next State) error {
	s.mu.Lock()
	if !s.state.canTransition(next) {
		prev := s.state
		s.mu.Unlock()
		return errs.Newf(errs.InvalidState, "session %q cannot transition %s -> %s", s.id, prev, next)
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.broadcast(LifecycleEvent{
		Type:      EventStateTransition,
		SessionID: s.id,
		AtUs:      s.nowUs(),
		Data:      map[string]any{"from": prev.String(), "to": next.String()},
	})
	return nil
}

// Subscribe returns a channel of lifecycle events for this session.
func (s *Session) Subscribe() <-chan LifecycleEvent {
	ch := make(chan LifecycleEvent, 16)
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenersMu.Unlock()
	return ch
}

func (s *Session) broadcast(ev LifecycleEvent) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// emit broadcasts a named lifecycle event (§6). It is handed to node
// instances that implement registry.EventSink (the speculative gate's
// cancel_speculation, the drift accumulator's drift_alert/freeze/health)
// so they can publish alongside their ordinary frame output.
func (s *Session) emit(eventType string, data map[string]any) {
	s.broadcast(LifecycleEvent{Type: eventType, SessionID: s.id, AtUs: s.nowUs(), Data: data})
}

// recordFatal captures the first fatal node error, forces the session
// into Closed (§4.1: "from any non-terminal state a fatal error moves
// directly to Closed with cause"), and broadcasts stream_ended with the
// failure's reason. Runs at most once per session, synchronously inside
// the erroring node's own task goroutine — before the errgroup cancels
// groupCtx — so any observer that sees the session's output close due to
// the resulting cascade is guaranteed to already see fatalCause set.
func (s *Session) recordFatal(err error) {
	s.fatalOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.fatalCause = err
		s.state = StateClosed
		s.mu.Unlock()

		if prev != StateClosed {
			s.broadcast(LifecycleEvent{
				Type:      EventStateTransition,
				SessionID: s.id,
				AtUs:      s.nowUs(),
				Data:      map[string]any{"from": prev.String(), "to": StateClosed.String()},
			})
		}
		s.emit(EventStreamEnded, map[string]any{"reason": "error: " + causeMessage(err)})
	})
}

// causeMessage unwraps to the innermost taxonomy error's message, so a
// session's reported reason reads as the node's own failure text rather
// than a stack of repeated "Kind: ..." wrapping prefixes.
func causeMessage(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return causeMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// Start initializes every node (concurrently) and, on success, launches
// the node task graph (§4.1: Created → Connecting → Streaming).
func (s *Session) Start(ctx context.Context) error {
	if err := s.transition(StateConnecting); err != nil {
		return err
	}

	initGroup, initCtx := errgroup.WithContext(ctx)
	for _, nr := range s.nodes {
		nr := nr
		initGroup.Go(func() error { return nr.node.Initialize(initCtx) })
	}
	if err := initGroup.Wait(); err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return errs.Wrap(errs.Execution, "", err)
	}

	if err := s.transition(StateStreaming); err != nil {
		return err
	}
	s.emit(EventStreamStarted, nil)

	group, groupCtx := errgroup.WithContext(ctx)
	s.group = group
	s.groupCtx = groupCtx
	s.doneC = make(chan struct{})

	for _, t := range s.nodes {
		if t.terminal {
			s.terminalWG.Add(1)
		}
	}
	go func() {
		s.terminalWG.Wait()
		s.outputQueue.closeForWrite()
	}()

	for _, nr := range s.nodes {
		nr := nr
		group.Go(func() error {
			err := nr.run(groupCtx, groupCtx.Done())
			if err != nil {
				s.recordFatal(err)
			}
			if nr.terminal {
				s.terminalWG.Done()
			}
			return err
		})
	}
	go func() {
		s.group.Wait()
		close(s.doneC)
	}()

	return nil
}

// SendInput delivers a frame to a designated entry node (one with no
// incoming manifest connections).
func (s *Session) SendInput(ctx context.Context, nodeID string, f frame.Frame) error {
	if s.State() != StateStreaming {
		return errs.Newf(errs.InvalidState, "session %q is not streaming", s.id)
	}
	e, ok := s.entryEdges[nodeID]
	if !ok {
		return errs.Newf(errs.InvalidState, "node %q is not an entry node", nodeID)
	}
	var stop <-chan struct{}
	if s.groupCtx != nil {
		stop = s.groupCtx.Done()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if f.Variant == frame.VariantControl {
		if !e.sendControl(f) {
			return errs.New(errs.Resource, "control queue full on entry edge")
		}
		return nil
	}
	if !e.sendData(stop, f) {
		return errs.New(errs.InvalidState, "session closed while sending input")
	}
	return nil
}

// RecvOutput blocks until a frame is available from a terminal node, the
// session's output is exhausted (all terminal nodes drained and closed),
// or ctx is cancelled.
func (s *Session) RecvOutput(ctx context.Context) (frame.Frame, error) {
	select {
	case f, ok := <-s.outputQueue.dataCh:
		if !ok {
			s.mu.Lock()
			cause := s.fatalCause
			s.mu.Unlock()
			if cause != nil {
				return frame.Frame{}, cause
			}
			return frame.Frame{}, errs.New(errs.NotFound, "session output exhausted")
		}
		return f, nil
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// TryRecvOutput is RecvOutput's non-blocking variant.
func (s *Session) TryRecvOutput() (frame.Frame, bool) {
	select {
	case f, ok := <-s.outputQueue.dataCh:
		return f, ok
	default:
		return frame.Frame{}, false
	}
}

// Close transitions the session to Closed, closing every entry edge so
// EOF cascades through the graph, then waits for every node task to
// drain and exit before returning (§4.1).
func (s *Session) Close(ctx context.Context) error {
	// A concurrent fatal error (recordFatal) may have already forced the
	// session to Closed, in which case transition legitimately refuses the
	// Closed -> Closed move; that is not itself an error worth reporting,
	// the fatal cause returned below is.
	if err := s.transition(StateClosed); err != nil && s.State() != StateClosed {
		return err
	} else if err == nil {
		s.emit(EventStreamEnded, map[string]any{"reason": "closed"})
	}
	for _, e := range s.entryEdges {
		e.closeForWrite()
	}
	if s.group == nil || s.doneC == nil {
		return nil
	}
	select {
	case <-s.doneC:
		s.mu.Lock()
		cause := s.fatalCause
		s.mu.Unlock()
		if cause != nil {
			return cause
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
