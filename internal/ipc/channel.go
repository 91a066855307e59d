// Package ipc implements the cross-process shared-memory pub/sub fabric
// (§4.3): a process-global channel registry, fixed-capacity ring-buffer
// channels backed by mmap'd regions, and publisher/subscriber ports. Each
// channel runs one goroutine pinned to its own OS thread, and every port
// of that channel goes through it; ports get no thread of their own.
package ipc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/rapidaai/runtime/internal/errs"
	"github.com/rapidaai/runtime/internal/frame"
)

// BackpressurePolicy selects what a Channel does when its ring is full
// relative to its slowest active subscriber (§4.3).
type BackpressurePolicy int

const (
	// Block makes Publish fail with a Resource error once CapacitySlots
	// frames are unread by the slowest subscriber; Publish does not wait
	// for that subscriber to advance.
	Block BackpressurePolicy = iota
	// DropOldest overwrites the oldest unread slot; lagging subscribers
	// observe a lag error on their next Recv.
	DropOldest
)

const slotLengthPrefixBytes = 4

// ChannelConfig mirrors §4.3/§5's IPC defaults (internal/config.IPCConfig).
type ChannelConfig struct {
	InitialSliceBytes int
	MaxSliceBytes     int
	CapacitySlots     int
	HistorySize       int
	Policy            BackpressurePolicy
	ShmDir            string
	MaxPublishers     int
	MaxSubscribers    int
}

// DefaultChannelConfig returns this package's own defaults. They are not
// taken from internal/config: HistorySize is 8 here but 0 in config's IPC
// defaults, and CapacitySlots has no config counterpart.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		InitialSliceBytes: 512 * 1024,
		MaxSliceBytes:     1024 * 1024,
		CapacitySlots:     64,
		HistorySize:       8,
		Policy:            Block,
		ShmDir:            os.TempDir(),
		MaxPublishers:     10,
		MaxSubscribers:    10,
	}
}

type publishRequest struct {
	payload []byte
	done    chan error
}

type recvRequest struct {
	seq  uint64
	done chan recvResult
}

type recvResult struct {
	payload []byte
	lagged  bool
	err     error
}

// Channel is one named shared-memory pub/sub topic.
type Channel struct {
	name   string
	cfg    ChannelConfig
	region *shmRegion
	slot   int // current per-slot capacity in bytes, including length prefix

	writeSeq uint64

	subsMu         sync.Mutex
	subs           map[string]*subscriberState
	publisherCount int

	publishC chan publishRequest
	recvC    chan recvRequest
	closeC   chan struct{}
	closed   bool
	wg       sync.WaitGroup
}

type subscriberState struct {
	nextSeq uint64
	wake    chan struct{}
}

// ChannelRegistry is the process-global map of named channels, analogous
// to the node registry's process-wide instance (§4.3, §4.6).
type ChannelRegistry struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

var global = &ChannelRegistry{channels: make(map[string]*Channel)}

// Global returns the process-wide channel registry.
func Global() *ChannelRegistry { return global }

// New returns an independent registry, for test isolation.
func New() *ChannelRegistry { return &ChannelRegistry{channels: make(map[string]*Channel)} }

// CreateChannel creates (or returns the existing) named channel.
func (r *ChannelRegistry) CreateChannel(name string, cfg ChannelConfig) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[name]; ok {
		return ch, nil
	}
	ch, err := newChannel(name, cfg)
	if err != nil {
		return nil, err
	}
	r.channels[name] = ch
	return ch, nil
}

// Lookup returns the named channel if it has been created.
func (r *ChannelRegistry) Lookup(name string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// CloseAll closes every channel and removes it from the registry.
func (r *ChannelRegistry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, ch := range r.channels {
		if err := ch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.channels, name)
	}
	return firstErr
}

func newChannel(name string, cfg ChannelConfig) (*Channel, error) {
	if cfg.CapacitySlots <= 0 {
		return nil, errs.New(errs.Config, "ipc channel capacity must be positive")
	}
	slot := cfg.InitialSliceBytes
	path := filepath.Join(cfg.ShmDir, fmt.Sprintf("runtime-ipc-%s-%s.shm", name, uuid.NewString()))
	region, err := createShmRegion(path, slot*cfg.CapacitySlots)
	if err != nil {
		return nil, err
	}

	ch := &Channel{
		name:     name,
		cfg:      cfg,
		region:   region,
		slot:     slot,
		subs:     make(map[string]*subscriberState),
		publishC: make(chan publishRequest),
		recvC:    make(chan recvRequest),
		closeC:   make(chan struct{}),
	}
	ch.wg.Add(1)
	go ch.ioLoop()
	return ch, nil
}

// ioLoop is the channel's dedicated port: the sole goroutine that reads or
// writes region bytes, pinned to one OS thread for its lifetime so the
// underlying mapping is never touched concurrently from different
// schedulable threads (§4.3's "handles are not movable between threads"
// constraint, applied here as single-writer discipline rather than Go's
// equivalent of Rust's !Send, which has no direct analogue).
func (c *Channel) ioLoop() {
	defer c.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-c.closeC:
			return
		case req := <-c.publishC:
			req.done <- c.doPublish(req.payload)
		case req := <-c.recvC:
			c.doRecv(req)
		}
	}
}

func (c *Channel) slowestSubscriberSeq() uint64 {
	min := c.writeSeq
	for _, s := range c.subs {
		if s.nextSeq < min {
			min = s.nextSeq
		}
	}
	return min
}

func (c *Channel) doPublish(payload []byte) error {
	needed := len(payload) + slotLengthPrefixBytes
	for needed > c.slot {
		if c.slot >= c.cfg.MaxSliceBytes {
			return errs.New(errs.Resource, "ipc frame exceeds max_slice_bytes")
		}
		newSlot := c.slot * 2
		if newSlot > c.cfg.MaxSliceBytes {
			newSlot = c.cfg.MaxSliceBytes
		}
		if err := c.region.grow(newSlot * c.cfg.CapacitySlots); err != nil {
			return err
		}
		c.slot = newSlot
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if c.cfg.Policy == Block {
		if c.writeSeq-c.slowestSubscriberSeq() >= uint64(c.cfg.CapacitySlots) {
			return errs.New(errs.Resource, "ipc channel full; slowest subscriber has not advanced")
		}
	}

	slotIdx := int(c.writeSeq % uint64(c.cfg.CapacitySlots))
	offset := slotIdx * c.slot
	writeLength(c.region.data[offset:], uint32(len(payload)))
	copy(c.region.data[offset+slotLengthPrefixBytes:], payload)
	c.writeSeq++

	for _, s := range c.subs {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (c *Channel) doRecv(req recvRequest) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	oldestAvailable := uint64(0)
	if c.writeSeq > uint64(c.cfg.CapacitySlots) {
		oldestAvailable = c.writeSeq - uint64(c.cfg.CapacitySlots)
	}
	if req.seq < oldestAvailable {
		req.done <- recvResult{lagged: true, err: errs.New(errs.Resource, "ipc subscriber lagged; slot overwritten")}
		return
	}
	if req.seq >= c.writeSeq {
		req.done <- recvResult{err: errNoData}
		return
	}

	slotIdx := int(req.seq % uint64(c.cfg.CapacitySlots))
	offset := slotIdx * c.slot
	length := readLength(c.region.data[offset:])
	payload := make([]byte, length)
	copy(payload, c.region.data[offset+slotLengthPrefixBytes:offset+slotLengthPrefixBytes+int(length)])
	req.done <- recvResult{payload: payload}
}

var errNoData = errs.New(errs.InvalidState, "ipc no data available at sequence")

func writeLength(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func readLength(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Publisher is a write port onto a Channel. Its writes run on the
// channel's single pinned OS thread, which it shares with every other
// port of that channel. Obtaining one counts against max_publishers;
// releasing it with Close frees that slot.
type Publisher struct {
	channel *Channel
}

// OpenPublisher reserves a publisher slot on the channel.
func (c *Channel) OpenPublisher() (*Publisher, error) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.publisherCount >= c.cfg.MaxPublishers {
		return nil, errs.New(errs.Resource, "ipc channel has reached max_publishers")
	}
	c.publisherCount++
	return &Publisher{channel: c}, nil
}

// Publish serializes and writes one frame (§4.3).
func (p *Publisher) Publish(ctx context.Context, f frame.Frame) error {
	return p.channel.Publish(ctx, f)
}

// Close releases this publisher's slot.
func (p *Publisher) Close() {
	p.channel.subsMu.Lock()
	p.channel.publisherCount--
	p.channel.subsMu.Unlock()
}

// Publish serializes and writes one frame (§4.3). It always goes through
// the channel's dedicated io loop.
func (c *Channel) Publish(ctx context.Context, f frame.Frame) error {
	payload, err := frame.ToBytes(f)
	if err != nil {
		return errs.Wrap(errs.Transport, "", err)
	}
	req := publishRequest{payload: payload, done: make(chan error, 1)}
	select {
	case c.publishC <- req:
	case <-c.closeC:
		return errs.New(errs.InvalidState, "ipc channel closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscription is a per-subscriber read cursor over a Channel, replaying
// the last HistorySize frames before switching to live delivery (§4.3).
type Subscription struct {
	id      string
	channel *Channel
	state   *subscriberState
}

// Subscribe opens a new subscription. Ordering is strict FIFO per
// subscriber (§4.3).
func (c *Channel) Subscribe() (*Subscription, error) {
	c.subsMu.Lock()
	if len(c.subs) >= c.cfg.MaxSubscribers {
		c.subsMu.Unlock()
		return nil, errs.New(errs.Resource, "ipc channel has reached max_subscribers")
	}
	start := uint64(0)
	if c.writeSeq > uint64(c.cfg.HistorySize) {
		start = c.writeSeq - uint64(c.cfg.HistorySize)
	}
	oldestAvailable := uint64(0)
	if c.writeSeq > uint64(c.cfg.CapacitySlots) {
		oldestAvailable = c.writeSeq - uint64(c.cfg.CapacitySlots)
	}
	if start < oldestAvailable {
		start = oldestAvailable
	}
	id := uuid.NewString()
	state := &subscriberState{nextSeq: start, wake: make(chan struct{}, 1)}
	c.subs[id] = state
	c.subsMu.Unlock()
	return &Subscription{id: id, channel: c, state: state}, nil
}

// Recv blocks until the next frame is available, the subscriber has
// lagged past the ring's retained window, or ctx is cancelled.
func (s *Subscription) Recv(ctx context.Context) (frame.Frame, error) {
	for {
		req := recvRequest{seq: s.state.nextSeq, done: make(chan recvResult, 1)}
		select {
		case s.channel.recvC <- req:
		case <-s.channel.closeC:
			return frame.Frame{}, errs.New(errs.InvalidState, "ipc channel closed")
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		}

		var res recvResult
		select {
		case res = <-req.done:
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		}

		switch {
		case res.lagged:
			s.advanceToOldest()
			return frame.Frame{}, res.err
		case res.err == errNoData:
			select {
			case <-s.state.wake:
				continue
			case <-s.channel.closeC:
				return frame.Frame{}, errs.New(errs.InvalidState, "ipc channel closed")
			case <-ctx.Done():
				return frame.Frame{}, ctx.Err()
			}
		case res.err != nil:
			return frame.Frame{}, res.err
		default:
			f, err := frame.FromBytes(res.payload)
			if err != nil {
				return frame.Frame{}, errs.Wrap(errs.Transport, "", err)
			}
			s.channel.subsMu.Lock()
			s.state.nextSeq++
			s.channel.subsMu.Unlock()
			return f, nil
		}
	}
}

func (s *Subscription) advanceToOldest() {
	s.channel.subsMu.Lock()
	defer s.channel.subsMu.Unlock()
	oldest := uint64(0)
	if s.channel.writeSeq > uint64(s.channel.cfg.CapacitySlots) {
		oldest = s.channel.writeSeq - uint64(s.channel.cfg.CapacitySlots)
	}
	s.state.nextSeq = oldest
}

// Close releases the subscription, allowing the channel to reclaim ring
// space that was held back on its account.
func (s *Subscription) Close() {
	s.channel.subsMu.Lock()
	delete(s.channel.subs, s.id)
	s.channel.subsMu.Unlock()
}

// Close tears down the channel's io loop and unmaps its shared-memory
// region.
func (c *Channel) Close() error {
	c.subsMu.Lock()
	if c.closed {
		c.subsMu.Unlock()
		return nil
	}
	c.closed = true
	c.subsMu.Unlock()

	close(c.closeC)
	c.wg.Wait()
	return c.region.close()
}
