package native

import (
	"time"
	"unsafe"

	"github.com/wineasio/wineasio-go/pkg/backend"
	"github.com/wineasio/wineasio-go/pkg/midi"
)

// monotonicBase anchors system-time stamps to a monotonic clock.
var monotonicBase = time.Now()

func monotonicNanos() int64 {
	return time.Since(monotonicBase).Nanoseconds()
}

// guestBuffer reinterprets a guest-owned buffer address as a sample slice.
// Valid only inside the process callback: the address was allocated by the
// guest driver object and stays pinned for as long as the channel is
// active.
func guestBuffer(addr uint64, nframes uint32) []float32 {
	if addr == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(uintptr(addr))), int(nframes))
}

// process is the backend's realtime callback. Hard realtime discipline:
// no allocation, no logging, no transport calls, and the only lock is the
// short mailbox critical section.
func (s *Session) process(nframes uint32) {
	s.cycles.Add(1)

	if s.midiEnabled {
		s.processMIDI(nframes)
	}

	if s.state.Load() != Running {
		s.silentCycles.Add(1)
		for i := int32(0); i < s.numOutputs; i++ {
			port := s.outputs[i].port
			if port == nil {
				continue
			}
			buf := port.AudioBuffer(nframes)
			for j := range buf {
				buf[j] = 0
			}
		}
		return
	}

	phase := s.phase

	for i := int32(0); i < s.numInputs; i++ {
		ch := &s.inputs[i]
		if !ch.active || ch.port == nil {
			continue
		}
		src := ch.port.AudioBuffer(nframes)
		dst := guestBuffer(ch.buffers[phase], nframes)
		if src != nil && dst != nil {
			copy(dst, src)
		}
	}

	for i := int32(0); i < s.numOutputs; i++ {
		ch := &s.outputs[i]
		if !ch.active || ch.port == nil {
			continue
		}
		dst := ch.port.AudioBuffer(nframes)
		src := guestBuffer(ch.buffers[phase], nframes)
		if src != nil && dst != nil {
			copy(dst, src)
		}
	}

	pos := s.samplePosition.Add(int64(nframes))
	now := monotonicNanos()
	s.systemTime.Store(now)

	s.mu.Lock()
	s.switchPending = true
	s.pendingPhase = phase
	s.notePosition = pos
	s.noteTime = now
	s.mu.Unlock()

	s.phase = 1 - phase
}

// processMIDI drains the backend MIDI input into the input ring and flushes
// the output ring onto the backend MIDI output port.
func (s *Session) processMIDI(nframes uint32) {
	if in := s.midiIn.port; in != nil {
		for _, ev := range in.MIDIEvents(nframes) {
			s.midiIn.ring.Push(ev.Data, ev.Time)
		}
	}

	if out := s.midiOut.port; out != nil {
		out.ClearMIDIBuffer()
		var ev midi.Event
		for s.midiOut.ring.Pop(&ev) {
			_ = out.WriteMIDIEvent(ev.Time%nframes, ev.Data[:ev.Size])
		}
	}
}

// onBufferSizeChange caches the new cycle length and asks the host to
// reset via the notification mailbox.
func (s *Session) onBufferSizeChange(nframes uint32) {
	s.bufferSize.Store(int32(nframes))

	s.mu.Lock()
	s.resetRequest = true
	s.mu.Unlock()
}

// onSampleRateChange caches the new rate and flags the change.
func (s *Session) onSampleRateChange(rate uint32) {
	s.setSampleRate(float64(rate))

	s.mu.Lock()
	s.sampleRateChanged = true
	s.newSampleRate = float64(rate)
	s.mu.Unlock()
}

// onLatencyChange flags the change; the guest re-queries latencies.
func (s *Session) onLatencyChange(mode backend.LatencyMode) {
	s.mu.Lock()
	s.latencyChanged = true
	s.mu.Unlock()
}
