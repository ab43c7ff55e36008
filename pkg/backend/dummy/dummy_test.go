package dummy

import (
	"errors"
	"testing"
	"time"

	"github.com/wineasio/wineasio-go/pkg/backend"
)

func openClient(t *testing.T) *Client {
	t.Helper()
	b := New(48000, 256, []string{"cap_1"}, []string{"play_1"})
	c, err := b.Open("test", backend.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c.(*Client)
}

func TestOpenReportsGraphClock(t *testing.T) {
	c := openClient(t)
	if c.SampleRate() != 48000 {
		t.Errorf("SampleRate = %f", c.SampleRate())
	}
	if c.BufferSize() != 256 {
		t.Errorf("BufferSize = %d", c.BufferSize())
	}
}

func TestOpenError(t *testing.T) {
	b := New(48000, 256, nil, nil)
	b.OpenErr = backend.ErrNotRunning
	if _, err := b.Open("x", backend.Options{}); !errors.Is(err, backend.ErrNotRunning) {
		t.Fatalf("err = %v", err)
	}
}

func TestRegisterPortFailureInjection(t *testing.T) {
	b := New(48000, 256, nil, nil)
	b.FailRegister = map[string]bool{"in_2": true}
	c, _ := b.Open("test", backend.Options{})

	if _, err := c.RegisterPort("in_1", backend.Audio, backend.In); err != nil {
		t.Fatalf("in_1: %v", err)
	}
	if _, err := c.RegisterPort("in_2", backend.Audio, backend.In); err == nil {
		t.Fatal("in_2 registration should have failed")
	}
}

func TestCycleDelivery(t *testing.T) {
	c := openClient(t)
	port, _ := c.RegisterPort("out_1", backend.Audio, backend.Out)

	var got uint32
	c.SetProcessCallback(func(nframes uint32) {
		got = nframes
		buf := port.AudioBuffer(nframes)
		for i := range buf {
			buf[i] = 0.5
		}
	})

	// Callbacks do not fire before activation.
	c.RunCycle(256)
	if got != 0 {
		t.Fatal("callback fired before Activate")
	}

	if err := c.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	c.RunCycle(256)
	if got != 256 {
		t.Fatalf("nframes = %d", got)
	}
	if buf := port.AudioBuffer(256); buf[0] != 0.5 {
		t.Fatalf("port buffer not written: %f", buf[0])
	}
}

func TestClock(t *testing.T) {
	c := openClient(t)
	cycles := make(chan uint32, 64)
	c.SetProcessCallback(func(nframes uint32) {
		select {
		case cycles <- nframes:
		default:
		}
	})
	if err := c.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	c.StartClock(time.Millisecond)
	defer c.StopClock()

	select {
	case n := <-cycles:
		if n != 256 {
			t.Fatalf("cycle of %d frames", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no cycle delivered")
	}
}

func TestChangeInjection(t *testing.T) {
	c := openClient(t)

	var rate uint32
	var size uint32
	var latency bool
	c.SetSampleRateCallback(func(r uint32) { rate = r })
	c.SetBufferSizeCallback(func(n uint32) { size = n })
	c.SetLatencyCallback(func(backend.LatencyMode) { latency = true })

	c.ChangeSampleRate(44100)
	c.ChangeBufferSize(512)
	c.ChangeLatency(backend.PlaybackLatency)

	if rate != 44100 || c.SampleRate() != 44100 {
		t.Errorf("rate = %d / %f", rate, c.SampleRate())
	}
	if size != 512 || c.BufferSize() != 512 {
		t.Errorf("size = %d / %d", size, c.BufferSize())
	}
	if !latency {
		t.Error("latency callback not fired")
	}
}

func TestMIDIInjectionAndCapture(t *testing.T) {
	c := openClient(t)
	in, _ := c.RegisterPort("midi_in", backend.MIDI, backend.In)
	out, _ := c.RegisterPort("midi_out", backend.MIDI, backend.Out)
	inPort := in.(*Port)
	outPort := out.(*Port)

	var seen []backend.MIDIEvent
	c.SetProcessCallback(func(nframes uint32) {
		seen = append(seen, in.MIDIEvents(nframes)...)
		out.ClearMIDIBuffer()
		_ = out.WriteMIDIEvent(3, []byte{0xf8})
	})
	if err := c.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	inPort.InjectMIDI(backend.MIDIEvent{Time: 1, Data: []byte{0x90, 0x40, 0x7f}})
	c.RunCycle(256)

	if len(seen) != 1 || seen[0].Data[0] != 0x90 {
		t.Fatalf("seen = %v", seen)
	}
	if len(outPort.Written) != 1 || outPort.Written[0].Data[0] != 0xf8 {
		t.Fatalf("written = %v", outPort.Written)
	}
}

func TestConnectionsRecorded(t *testing.T) {
	c := openClient(t)
	_ = c.Connect("cap_1", "test:in_1")
	if len(c.Connections) != 1 || c.Connections[0] != "cap_1 -> test:in_1" {
		t.Fatalf("connections = %v", c.Connections)
	}
}

func TestCloseMarksClient(t *testing.T) {
	c := openClient(t)
	if c.Closed() {
		t.Fatal("closed before Close")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.Closed() {
		t.Fatal("not closed after Close")
	}
}
