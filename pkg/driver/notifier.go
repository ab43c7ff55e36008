package driver

import (
	"time"

	"github.com/wineasio/wineasio-go/pkg/asio"
	"github.com/wineasio/wineasio-go/pkg/dlog"
	"github.com/wineasio/wineasio-go/pkg/transport"
)

// pollInterval is the notifier's sleep between polls. The backend
// publishes at most one buffer switch per cycle, so 1 ms keeps wake
// latency well under the shortest realistic cycle.
const pollInterval = time.Millisecond

// joinTimeout bounds how long Stop and Release wait for the notifier to
// drain; a thread that misses the deadline is abandoned.
const joinTimeout = 5 * time.Second

// notifier is the guest-side poll loop that drains the native session's
// notification mailbox and invokes the host callbacks. All non-priming
// buffer switches are delivered on this thread.
type notifier struct {
	d    *Driver
	stop chan struct{}
	done chan struct{}
}

func startNotifier(d *Driver) *notifier {
	n := &notifier{
		d:    d,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

// stopAndJoin signals the loop and waits up to joinTimeout.
func (n *notifier) stopAndJoin() {
	select {
	case <-n.stop:
	default:
		close(n.stop)
	}

	select {
	case <-n.done:
	case <-time.After(joinTimeout):
		dlog.Errorf("notifier thread did not exit within %s, abandoning", joinTimeout)
	}
}

func (n *notifier) run() {
	defer close(n.done)

	dlog.Tracef("notifier thread started")

	for {
		select {
		case <-n.stop:
			dlog.Tracef("notifier thread stopped")
			return
		default:
		}

		n.poll()

		select {
		case <-n.stop:
			dlog.Tracef("notifier thread stopped")
			return
		case <-time.After(pollInterval):
		}
	}
}

// poll performs one get_callback round trip and dispatches whatever the
// snapshot carries. Polled ~1 kHz: no logging on the common paths.
func (n *notifier) poll() {
	d := n.d

	d.mu.Lock()
	handle := d.handle
	cbs := d.callbacks
	timeInfo := d.timeInfo
	d.mu.Unlock()

	if handle == 0 {
		return
	}

	params := transport.GetCallbackParams{Handle: handle}
	if err := transport.Call(transport.OpGetCallback, &params); err != nil {
		return
	}
	if params.Result != asio.OK || cbs == nil {
		return
	}

	if params.SampleRateChanged {
		d.mu.Lock()
		d.sampleRate = params.NewSampleRate
		d.mu.Unlock()
		if cbs.SampleRateDidChange != nil {
			cbs.SampleRateDidChange(params.NewSampleRate)
		}
	}

	if params.ResetRequest && cbs.Message != nil {
		cbs.Message(asio.SelectorSupported, asio.ResetRequest, nil, nil)
		cbs.Message(asio.ResetRequest, 0, nil, nil)
	}

	if params.LatencyChanged && cbs.Message != nil {
		cbs.Message(asio.SelectorSupported, asio.LatenciesChanged, nil, nil)
		cbs.Message(asio.LatenciesChanged, 0, nil, nil)
	}

	if params.BufferSwitchReady {
		if timeInfo && cbs.BufferSwitchTimeInfo != nil {
			d.mu.Lock()
			d.hostTime = params.TimeInfo
			ti := d.hostTime
			d.mu.Unlock()
			cbs.BufferSwitchTimeInfo(&ti, params.Phase, params.DirectProcess)
		} else if cbs.BufferSwitch != nil {
			cbs.BufferSwitch(params.Phase, params.DirectProcess)
		}
	}
}
