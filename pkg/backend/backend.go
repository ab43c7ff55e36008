// Package backend defines the contract of the Unix-side audio server the
// driver bridges to: a connection-oriented client that owns the sample
// clock and delivers a realtime process callback every buffer period.
//
// The surface is the subset of a JACK-style API the native session needs:
// named mono float ports, physical-port discovery for autoconnect, and the
// process/buffer-size/sample-rate/latency callback set.
package backend

import "errors"

// Direction of a port relative to the client: In ports receive samples
// from the graph, Out ports feed samples into it.
type Direction int

const (
	In Direction = iota
	Out
)

// PortType distinguishes audio from raw MIDI ports.
type PortType int

const (
	Audio PortType = iota
	MIDI
)

// LatencyMode selects which edge of the graph a latency query describes.
type LatencyMode int

const (
	CaptureLatency LatencyMode = iota
	PlaybackLatency
)

// MIDIEvent is one raw event read from a MIDI port buffer.
type MIDIEvent struct {
	Time uint32
	Data []byte
}

// Port is one registered client port. Buffer accessors are only valid
// inside the process callback of the cycle they were requested for.
type Port interface {
	// Name returns the fully qualified port name ("client:port").
	Name() string

	// AudioBuffer returns the port's sample buffer for the current cycle.
	AudioBuffer(nframes uint32) []float32

	// LatencyRange returns the min/max latency of the port in frames.
	LatencyRange(mode LatencyMode) (min, max uint32)

	// MIDIEvents returns the events present on a MIDI In port this cycle.
	MIDIEvents(nframes uint32) []MIDIEvent

	// ClearMIDIBuffer empties a MIDI Out port buffer for the cycle.
	ClearMIDIBuffer()

	// WriteMIDIEvent appends one event to a MIDI Out port buffer.
	WriteMIDIEvent(time uint32, data []byte) error
}

// ProcessFunc is the realtime callback. It runs on the backend's thread
// with hard realtime discipline: no allocation, no blocking, no logging.
type ProcessFunc func(nframes uint32)

// Client is one open connection to the backend.
type Client interface {
	// Name returns the name the backend actually assigned.
	Name() string

	// SampleRate returns the graph sample rate in Hz.
	SampleRate() float64

	// BufferSize returns the current cycle length in frames.
	BufferSize() uint32

	// SetBufferSize asks the backend to adopt a new cycle length. The
	// backend is free to refuse; callers must re-read BufferSize.
	SetBufferSize(nframes uint32) error

	// RegisterPort adds a port. The short name must be unique per client.
	RegisterPort(name string, typ PortType, dir Direction) (Port, error)

	// UnregisterPort removes a port.
	UnregisterPort(p Port) error

	// PhysicalSources lists the hardware ports that can feed In ports.
	PhysicalSources() []string

	// PhysicalSinks lists the hardware ports Out ports can feed.
	PhysicalSinks() []string

	// Connect wires src to dst by fully qualified name.
	Connect(src, dst string) error

	// SetProcessCallback installs the realtime callback. Must be called
	// before Activate.
	SetProcessCallback(fn ProcessFunc)

	// SetBufferSizeCallback installs the cycle-length change callback.
	SetBufferSizeCallback(fn func(nframes uint32))

	// SetSampleRateCallback installs the rate change callback.
	SetSampleRateCallback(fn func(rate uint32))

	// SetLatencyCallback installs the latency change callback.
	SetLatencyCallback(fn func(mode LatencyMode))

	// Activate starts callback delivery.
	Activate() error

	// Deactivate stops callback delivery.
	Deactivate() error

	// Close tears the client down. Ports die with it.
	Close() error
}

// Options controls how a client is opened.
type Options struct {
	// NoStartServer refuses to spawn a backend server that is not
	// already running.
	NoStartServer bool

	// PreferredBufferSize is a hint for drivers that let the client pick
	// the cycle length. Zero means driver default.
	PreferredBufferSize uint32
}

// OpenFunc opens a client against one concrete backend.
type OpenFunc func(name string, opts Options) (Client, error)

// ErrNotRunning is returned by OpenFunc when the backend server is not
// available and Options.NoStartServer is set.
var ErrNotRunning = errors.New("backend: server not running")
