// Package dummy is an in-process backend used by the tests. Cycles are driven by hand with RunCycle or by an internal clock, so
// a test controls exactly when the "realtime" callback fires and what the
// graph reports.
package dummy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wineasio/wineasio-go/pkg/backend"
)

const maxFrames = 8192

// Backend is a fake audio graph. Its zero value is not usable; create one
// with New.
type Backend struct {
	SampleRate uint32
	BufferSize uint32
	Sources    []string
	Sinks      []string

	// OpenErr, when set, makes every Open attempt fail with it.
	OpenErr error

	// ActivateErr, when set, makes Activate fail on opened clients.
	ActivateErr error

	// FailRegister lists short port names whose registration fails.
	FailRegister map[string]bool

	mu     sync.Mutex
	client *Client
}

// New creates a fake graph with the given clock and physical ports.
func New(sampleRate, bufferSize uint32, sources, sinks []string) *Backend {
	return &Backend{
		SampleRate: sampleRate,
		BufferSize: bufferSize,
		Sources:    sources,
		Sinks:      sinks,
	}
}

// Open opens a client against the fake graph. It matches backend.OpenFunc.
func (b *Backend) Open(name string, opts backend.Options) (backend.Client, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// The graph owns the cycle length; the preferred-size hint only
	// matters to device backends, so it is ignored here.
	c := &Client{
		backend:    b,
		name:       name,
		sampleRate: b.SampleRate,
		bufferSize: b.BufferSize,
		ports:      make(map[string]*Port),
	}
	b.client = c
	return c, nil
}

// Client returns the most recently opened client, for test assertions.
func (b *Backend) Client() *Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Client is one fake backend connection.
type Client struct {
	backend *Backend
	name    string

	mu         sync.Mutex
	sampleRate uint32
	bufferSize uint32
	active     bool
	closed     bool
	ports      map[string]*Port

	// Connections records every Connect call as "src -> dst".
	Connections []string

	processCb    backend.ProcessFunc
	bufferSizeCb func(nframes uint32)
	sampleRateCb func(rate uint32)
	latencyCb    func(mode backend.LatencyMode)

	clockStop chan struct{}
	clockDone chan struct{}
}

// Name returns the assigned client name.
func (c *Client) Name() string { return c.name }

// SampleRate returns the fake graph rate.
func (c *Client) SampleRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.sampleRate)
}

// BufferSize returns the fake cycle length.
func (c *Client) BufferSize() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bufferSize
}

// SetBufferSize adopts the requested cycle length as-is.
func (c *Client) SetBufferSize(nframes uint32) error {
	if nframes == 0 || nframes > maxFrames {
		return fmt.Errorf("dummy: buffer size %d out of range", nframes)
	}
	c.mu.Lock()
	c.bufferSize = nframes
	c.mu.Unlock()
	return nil
}

// RegisterPort adds a fake port backed by a private sample buffer.
func (c *Client) RegisterPort(name string, typ backend.PortType, dir backend.Direction) (backend.Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend.FailRegister[name] {
		return nil, fmt.Errorf("dummy: port %q registration refused", name)
	}
	if _, ok := c.ports[name]; ok {
		return nil, fmt.Errorf("dummy: port %q already registered", name)
	}

	p := &Port{
		client: c,
		short:  name,
		typ:    typ,
		dir:    dir,
	}
	if typ == backend.Audio {
		p.samples = make([]float32, maxFrames)
	}
	c.ports[name] = p
	return p, nil
}

// UnregisterPort removes a port.
func (c *Client) UnregisterPort(p backend.Port) error {
	dp, ok := p.(*Port)
	if !ok {
		return errors.New("dummy: foreign port")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ports, dp.short)
	return nil
}

// Port returns a registered port by short name, for test assertions.
func (c *Client) Port(name string) *Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports[name]
}

// PhysicalSources lists the fake hardware capture ports.
func (c *Client) PhysicalSources() []string { return c.backend.Sources }

// PhysicalSinks lists the fake hardware playback ports.
func (c *Client) PhysicalSinks() []string { return c.backend.Sinks }

// Connect records the connection.
func (c *Client) Connect(src, dst string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Connections = append(c.Connections, src+" -> "+dst)
	return nil
}

// SetProcessCallback installs the cycle callback.
func (c *Client) SetProcessCallback(fn backend.ProcessFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processCb = fn
}

// SetBufferSizeCallback installs the cycle-length change callback.
func (c *Client) SetBufferSizeCallback(fn func(nframes uint32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bufferSizeCb = fn
}

// SetSampleRateCallback installs the rate change callback.
func (c *Client) SetSampleRateCallback(fn func(rate uint32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sampleRateCb = fn
}

// SetLatencyCallback installs the latency change callback.
func (c *Client) SetLatencyCallback(fn func(mode backend.LatencyMode)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencyCb = fn
}

// Activate starts callback delivery.
func (c *Client) Activate() error {
	if c.backend.ActivateErr != nil {
		return c.backend.ActivateErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	return nil
}

// Deactivate stops callback delivery.
func (c *Client) Deactivate() error {
	c.StopClock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	return nil
}

// Close tears the client down.
func (c *Client) Close() error {
	c.Deactivate()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.ports = make(map[string]*Port)
	return nil
}

// Closed reports whether Close has run, for teardown assertions.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RunCycle fires one process callback with nframes, the way the real
// backend's realtime thread would.
func (c *Client) RunCycle(nframes uint32) {
	c.mu.Lock()
	fn := c.processCb
	active := c.active
	for _, p := range c.ports {
		if p.typ == backend.MIDI {
			p.deliverPending()
		}
	}
	c.mu.Unlock()

	if active && fn != nil {
		fn(nframes)
	}
}

// StartClock delivers cycles of the current buffer size every interval
// until StopClock.
func (c *Client) StartClock(interval time.Duration) {
	c.mu.Lock()
	if c.clockStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.clockStop = stop
	c.clockDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.RunCycle(c.BufferSize())
			}
		}
	}()
}

// StopClock halts the cycle clock and waits for it to drain.
func (c *Client) StopClock() {
	c.mu.Lock()
	stop, done := c.clockStop, c.clockDone
	c.clockStop, c.clockDone = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// ChangeSampleRate moves the fake clock and fires the rate callback.
func (c *Client) ChangeSampleRate(rate uint32) {
	c.mu.Lock()
	c.sampleRate = rate
	fn := c.sampleRateCb
	c.mu.Unlock()
	if fn != nil {
		fn(rate)
	}
}

// ChangeBufferSize moves the cycle length and fires the change callback.
func (c *Client) ChangeBufferSize(nframes uint32) {
	c.mu.Lock()
	c.bufferSize = nframes
	fn := c.bufferSizeCb
	c.mu.Unlock()
	if fn != nil {
		fn(nframes)
	}
}

// ChangeLatency fires the latency callback.
func (c *Client) ChangeLatency(mode backend.LatencyMode) {
	c.mu.Lock()
	fn := c.latencyCb
	c.mu.Unlock()
	if fn != nil {
		fn(mode)
	}
}

// Port is one fake backend port.
type Port struct {
	client *Client
	short  string
	typ    backend.PortType
	dir    backend.Direction

	samples []float32

	// Latency values reported by LatencyRange.
	LatencyMin, LatencyMax uint32

	midiMu  sync.Mutex
	pending []backend.MIDIEvent
	current []backend.MIDIEvent

	// Written collects events emitted through WriteMIDIEvent.
	Written []backend.MIDIEvent
}

// Name returns the fully qualified port name.
func (p *Port) Name() string { return p.client.name + ":" + p.short }

// AudioBuffer returns the port's buffer for the cycle.
func (p *Port) AudioBuffer(nframes uint32) []float32 {
	if p.samples == nil || nframes > maxFrames {
		return nil
	}
	return p.samples[:nframes]
}

// LatencyRange returns the configured fake latency.
func (p *Port) LatencyRange(mode backend.LatencyMode) (min, max uint32) {
	return p.LatencyMin, p.LatencyMax
}

// InjectMIDI queues events for delivery on the next cycle.
func (p *Port) InjectMIDI(events ...backend.MIDIEvent) {
	p.midiMu.Lock()
	defer p.midiMu.Unlock()
	p.pending = append(p.pending, events...)
}

func (p *Port) deliverPending() {
	p.midiMu.Lock()
	defer p.midiMu.Unlock()
	p.current = p.pending
	p.pending = nil
}

// MIDIEvents returns the events delivered for this cycle.
func (p *Port) MIDIEvents(nframes uint32) []backend.MIDIEvent {
	p.midiMu.Lock()
	defer p.midiMu.Unlock()
	return p.current
}

// ClearMIDIBuffer empties the cycle's output buffer.
func (p *Port) ClearMIDIBuffer() {
	p.midiMu.Lock()
	defer p.midiMu.Unlock()
	p.current = nil
}

// WriteMIDIEvent records an emitted event.
func (p *Port) WriteMIDIEvent(time uint32, data []byte) error {
	p.midiMu.Lock()
	defer p.midiMu.Unlock()
	d := make([]byte, len(data))
	copy(d, data)
	p.Written = append(p.Written, backend.MIDIEvent{Time: time, Data: d})
	return nil
}
