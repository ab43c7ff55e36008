// Package portaudio backs the backend contract with a sound device via
// PortAudio. It exists for hosts running without a graph server: ports map
// onto the default duplex device's channels, and the stream callback
// stands in for the graph's realtime thread.
//
// PortAudio has no patchbay and no live rate or cycle-length changes, so
// Connect is a no-op and the change callbacks never fire.
package portaudio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/wineasio/wineasio-go/pkg/backend"
)

const defaultBufferSize = 1024

// Open connects to the default duplex device. It matches backend.OpenFunc.
func Open(name string, opts backend.Options) (backend.Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}

	c := &Client{
		name:       name,
		bufferSize: defaultBufferSize,
		sampleRate: 48000,
	}
	if opts.PreferredBufferSize != 0 {
		c.bufferSize = opts.PreferredBufferSize
	}

	if dev, err := portaudio.DefaultOutputDevice(); err == nil {
		c.sampleRate = dev.DefaultSampleRate
		c.maxOut = dev.MaxOutputChannels
	}
	if dev, err := portaudio.DefaultInputDevice(); err == nil {
		c.maxIn = dev.MaxInputChannels
	}
	if c.maxIn == 0 && c.maxOut == 0 {
		_ = portaudio.Terminate()
		return nil, backend.ErrNotRunning
	}
	return c, nil
}

// Client is one open PortAudio duplex stream.
type Client struct {
	name       string
	sampleRate float64
	bufferSize uint32
	maxIn      int
	maxOut     int

	mu        sync.Mutex
	stream    *portaudio.Stream
	inPorts   []*Port
	outPorts  []*Port
	processCb backend.ProcessFunc
	closed    bool

	inputLatency  uint32
	outputLatency uint32
}

// Name returns the client name.
func (c *Client) Name() string { return c.name }

// SampleRate returns the device sample rate.
func (c *Client) SampleRate() float64 { return c.sampleRate }

// BufferSize returns the stream cycle length.
func (c *Client) BufferSize() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bufferSize
}

// SetBufferSize changes the cycle length of the next stream start. The
// running stream keeps its length.
func (c *Client) SetBufferSize(nframes uint32) error {
	if nframes == 0 {
		return errors.New("portaudio: zero buffer size")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return errors.New("portaudio: stream already open")
	}
	c.bufferSize = nframes
	return nil
}

// RegisterPort maps a port onto the next free device channel. MIDI ports
// are accepted but carry no events.
func (c *Client) RegisterPort(name string, typ backend.PortType, dir backend.Direction) (backend.Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil, errors.New("portaudio: cannot register ports while active")
	}

	p := &Port{client: c, short: name, typ: typ, dir: dir}
	if typ == backend.Audio {
		p.silence = make([]float32, c.bufferSize)
		p.cycle = p.silence
		if dir == backend.In {
			c.inPorts = append(c.inPorts, p)
		} else {
			c.outPorts = append(c.outPorts, p)
		}
	}
	return p, nil
}

// UnregisterPort removes an audio port from its channel list.
func (c *Client) UnregisterPort(p backend.Port) error {
	pp, ok := p.(*Port)
	if !ok {
		return errors.New("portaudio: foreign port")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inPorts = removePort(c.inPorts, pp)
	c.outPorts = removePort(c.outPorts, pp)
	return nil
}

func removePort(ports []*Port, p *Port) []*Port {
	for i, q := range ports {
		if q == p {
			return append(ports[:i], ports[i+1:]...)
		}
	}
	return ports
}

// PhysicalSources names the device capture channels.
func (c *Client) PhysicalSources() []string {
	return channelNames("system:capture_", c.maxIn)
}

// PhysicalSinks names the device playback channels.
func (c *Client) PhysicalSinks() []string {
	return channelNames("system:playback_", c.maxOut)
}

func channelNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return names
}

// Connect is a no-op: device channels are hard-wired.
func (c *Client) Connect(src, dst string) error { return nil }

// SetProcessCallback installs the cycle callback.
func (c *Client) SetProcessCallback(fn backend.ProcessFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processCb = fn
}

// SetBufferSizeCallback is accepted but never fires.
func (c *Client) SetBufferSizeCallback(fn func(nframes uint32)) {}

// SetSampleRateCallback is accepted but never fires.
func (c *Client) SetSampleRateCallback(fn func(rate uint32)) {}

// SetLatencyCallback is accepted but never fires.
func (c *Client) SetLatencyCallback(fn func(mode backend.LatencyMode)) {}

// Activate opens and starts the duplex stream.
func (c *Client) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	numIn := len(c.inPorts)
	if numIn > c.maxIn {
		numIn = c.maxIn
	}
	numOut := len(c.outPorts)
	if numOut > c.maxOut {
		numOut = c.maxOut
	}

	stream, err := portaudio.OpenDefaultStream(numIn, numOut, c.sampleRate,
		int(c.bufferSize), c.streamCallback)
	if err != nil {
		return fmt.Errorf("portaudio: opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: starting stream: %w", err)
	}
	c.stream = stream

	if info := stream.Info(); info != nil {
		c.inputLatency = framesFor(info.InputLatency, c.sampleRate)
		c.outputLatency = framesFor(info.OutputLatency, c.sampleRate)
	}
	return nil
}

func framesFor(d time.Duration, rate float64) uint32 {
	return uint32(d.Seconds() * rate)
}

// streamCallback is the PortAudio realtime callback: it points the port
// buffers at the device channel slices for the cycle, hands control to the
// registered process callback, and lets PortAudio consume what the
// callback wrote into the output slices.
func (c *Client) streamCallback(in, out [][]float32) {
	nframes := uint32(0)
	if len(out) > 0 {
		nframes = uint32(len(out[0]))
	} else if len(in) > 0 {
		nframes = uint32(len(in[0]))
	}
	if nframes == 0 {
		return
	}

	for i, p := range c.inPorts {
		if i < len(in) {
			p.cycle = in[i]
		} else {
			p.cycle = p.silence
		}
	}
	for i, p := range c.outPorts {
		if i < len(out) {
			p.cycle = out[i]
		} else {
			p.cycle = p.silence
		}
	}

	if fn := c.processCb; fn != nil {
		fn(nframes)
	}
}

// Deactivate stops the stream.
func (c *Client) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	err := c.stream.Stop()
	if cerr := c.stream.Close(); err == nil {
		err = cerr
	}
	c.stream = nil
	return err
}

// Close tears down the stream and the PortAudio runtime.
func (c *Client) Close() error {
	err := c.Deactivate()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		if terr := portaudio.Terminate(); err == nil {
			err = terr
		}
	}
	return err
}

// Port is one device channel.
type Port struct {
	client *Client
	short  string
	typ    backend.PortType
	dir    backend.Direction

	silence []float32
	cycle   []float32
}

// Name returns the fully qualified port name.
func (p *Port) Name() string { return p.client.name + ":" + p.short }

// AudioBuffer returns the device channel slice for the current cycle.
func (p *Port) AudioBuffer(nframes uint32) []float32 {
	buf := p.cycle
	if uint32(len(buf)) < nframes {
		return nil
	}
	return buf[:nframes]
}

// LatencyRange reports the stream latency on both edges.
func (p *Port) LatencyRange(mode backend.LatencyMode) (min, max uint32) {
	if mode == backend.CaptureLatency {
		return p.client.inputLatency, p.client.inputLatency
	}
	return p.client.outputLatency, p.client.outputLatency
}

// MIDIEvents reports no events: the device backend has no MIDI transport.
func (p *Port) MIDIEvents(nframes uint32) []backend.MIDIEvent { return nil }

// ClearMIDIBuffer is a no-op.
func (p *Port) ClearMIDIBuffer() {}

// WriteMIDIEvent discards the event.
func (p *Port) WriteMIDIEvent(time uint32, data []byte) error { return nil }
