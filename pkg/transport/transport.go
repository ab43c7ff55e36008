// Package transport carries typed parameter blocks between the guest-side
// driver object and the native-side service module. A call is synchronous:
// the caller blocks until the handler has mutated the block and returned.
//
// The dispatcher is process-wide. It is installed once when the native
// module loads and removed when it unloads; the driver object uses it by
// reference. Calls must never be made from the backend's realtime thread.
package transport

import (
	"errors"
	"sync"
)

// Op identifies one cross-world operation. The values are the wire
// ordering of the native function table and must not be reordered.
type Op uint32

const (
	OpInit Op = iota
	OpExit
	OpStart
	OpStop
	OpGetChannels
	OpGetLatencies
	OpGetBufferSize
	OpCanSampleRate
	OpGetSampleRate
	OpSetSampleRate
	OpGetChannelInfo
	OpCreateBuffers
	OpDisposeBuffers
	OpOutputReady
	OpGetSamplePosition
	OpGetCallback
	OpCallbackDone
	OpControlPanel
	OpFuture

	OpCount
)

// String returns the wire name of the operation.
func (op Op) String() string {
	names := [OpCount]string{
		"init", "exit", "start", "stop",
		"get_channels", "get_latencies", "get_buffer_size",
		"can_sample_rate", "get_sample_rate", "set_sample_rate",
		"get_channel_info", "create_buffers", "dispose_buffers",
		"output_ready", "get_sample_position", "get_callback",
		"callback_done", "control_panel", "future",
	}
	if op < OpCount {
		return names[op]
	}
	return "unknown"
}

// HandlerFunc services one operation. The concrete type behind params is
// fixed per op (see params.go); handlers report domain errors through the
// block's Result field, never through a Go error.
type HandlerFunc func(params any)

// ErrUnavailable is returned by Call when the native side is not present.
var ErrUnavailable = errors.New("transport: native side unavailable")

var (
	mu       sync.RWMutex
	handlers [OpCount]HandlerFunc
	present  bool
)

// Install registers the native function table. Installing replaces any
// previous table.
func Install(table [OpCount]HandlerFunc) {
	mu.Lock()
	defer mu.Unlock()
	handlers = table
	present = true
}

// Uninstall removes the native function table. Subsequent calls fail with
// ErrUnavailable.
func Uninstall() {
	mu.Lock()
	defer mu.Unlock()
	handlers = [OpCount]HandlerFunc{}
	present = false
}

// Installed reports whether a native function table is present.
func Installed() bool {
	mu.RLock()
	defer mu.RUnlock()
	return present
}

// Call routes params to the handler for op and blocks until it returns.
// The only transport-level failure is an absent native side; everything
// else is carried inside the parameter block.
func Call(op Op, params any) error {
	mu.RLock()
	h := HandlerFunc(nil)
	if present && op < OpCount {
		h = handlers[op]
	}
	mu.RUnlock()

	if h == nil {
		return ErrUnavailable
	}
	h(params)
	return nil
}
