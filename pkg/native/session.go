// Package native is the Unix-side service module: it owns the backend
// client, the per-session state machine and the realtime process callback,
// and exposes one handler per transport operation.
package native

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/wineasio/wineasio-go/pkg/asio"
	"github.com/wineasio/wineasio-go/pkg/backend"
	"github.com/wineasio/wineasio-go/pkg/midi"
	"github.com/wineasio/wineasio-go/pkg/transport"
)

// Session states.
const (
	Loaded int32 = iota
	Initialised
	Prepared
	Running
)

// channel is one audio channel registered with the backend. The two buffer
// addresses are guest-owned memory; they are only dereferenced inside the
// process callback.
type channel struct {
	port    backend.Port
	name    string
	active  bool
	buffers [2]uint64
}

// midiChannel couples a backend MIDI port with its event ring.
type midiChannel struct {
	port backend.Port
	name string
	ring midi.Ring
}

// Session is the native half of one driver instance.
type Session struct {
	client     backend.Client
	clientName string

	sampleRate atomic.Uint64 // float64 bits; backend thread writes on rate change
	bufferSize atomic.Int32

	numInputs  int32
	numOutputs int32
	inputs     [asio.MaxChannels]channel
	outputs    [asio.MaxChannels]channel

	inputLatency  int32
	outputLatency int32

	state atomic.Int32

	// Realtime-thread state. phase is owned by the process callback;
	// position and time are published for the position query.
	phase          int32
	samplePosition atomic.Int64
	systemTime     atomic.Int64

	// Notification mailbox, single-writer (process callback) and
	// single-reader (get_callback handler). mu protects only these
	// fields and is held for a handful of loads and stores.
	mu                sync.Mutex
	switchPending     bool
	pendingPhase      int32
	notePosition      int64
	noteTime          int64
	sampleRateChanged bool
	newSampleRate     float64
	resetRequest      bool
	latencyChanged    bool

	// Config snapshot.
	autoconnect      bool
	fixedBufsize     bool
	preferredBufsize int32

	physicalSources []string
	physicalSinks   []string

	midiEnabled bool
	midiIn      midiChannel
	midiOut     midiChannel

	// Cycle statistics, plain atomics so the realtime thread can bump
	// them without instrumentation overhead.
	cycles       atomic.Uint64
	silentCycles atomic.Uint64
}

// State returns the current lifecycle state.
func (s *Session) State() int32 { return s.state.Load() }

// SampleRate returns the cached backend rate.
func (s *Session) SampleRate() float64 {
	return math.Float64frombits(s.sampleRate.Load())
}

func (s *Session) setSampleRate(rate float64) {
	s.sampleRate.Store(math.Float64bits(rate))
}

// BufferSize returns the cached backend cycle length.
func (s *Session) BufferSize() int32 { return s.bufferSize.Load() }

// Cycles returns the number of process callbacks delivered since init.
func (s *Session) Cycles() uint64 { return s.cycles.Load() }

// SilentCycles returns how many of those ran outside the Running state.
func (s *Session) SilentCycles() uint64 { return s.silentCycles.Load() }

// MIDIDropped returns the events lost to ring overflow per direction.
func (s *Session) MIDIDropped() (in, out uint64) {
	return s.midiIn.ring.Dropped(), s.midiOut.ring.Dropped()
}

// channelFor resolves a direction/index pair, nil when out of range.
func (s *Session) channelFor(isInput bool, index int32) *channel {
	if isInput {
		if index < 0 || index >= s.numInputs {
			return nil
		}
		return &s.inputs[index]
	}
	if index < 0 || index >= s.numOutputs {
		return nil
	}
	return &s.outputs[index]
}

// Session registry. Handles are opaque 64-bit values; zero is reserved.
var (
	sessionsMu sync.RWMutex
	sessions   = make(map[transport.Handle]*Session)
	nextHandle uint64
)

func registerSession(s *Session) transport.Handle {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	nextHandle++
	h := transport.Handle(nextHandle)
	sessions[h] = s
	return h
}

func unregisterSession(h transport.Handle) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	delete(sessions, h)
}

func sessionFor(h transport.Handle) *Session {
	sessionsMu.RLock()
	defer sessionsMu.RUnlock()
	return sessions[h]
}

// SessionFor exposes registry lookup to tests.
func SessionFor(h transport.Handle) *Session { return sessionFor(h) }
