package transport

import (
	"github.com/wineasio/wineasio-go/pkg/asio"
	"github.com/wineasio/wineasio-go/pkg/config"
)

// Handle names a native session. Zero is never a valid handle.
type Handle uint64

// Parameter blocks, one per Op. Integer fields are fixed-width and
// little-endian representable; addresses that cross the pointer-width
// boundary travel as uint64 and are reinterpreted only on the native side.

// InitParams carries the configuration snapshot down and the session
// identity back up.
type InitParams struct {
	Config         config.Config
	Result         asio.Status
	Handle         Handle
	InputChannels  int32
	OutputChannels int32
	SampleRate     float64
}

// HandleParams is the shared shape of the operations that carry nothing
// but the session handle: exit, start, stop, dispose_buffers,
// output_ready, callback_done and control_panel.
type HandleParams struct {
	Handle Handle
	Result asio.Status
}

type GetChannelsParams struct {
	Handle     Handle
	Result     asio.Status
	NumInputs  int32
	NumOutputs int32
}

type GetLatenciesParams struct {
	Handle        Handle
	Result        asio.Status
	InputLatency  int32
	OutputLatency int32
}

type GetBufferSizeParams struct {
	Handle        Handle
	Result        asio.Status
	MinSize       int32
	MaxSize       int32
	PreferredSize int32
	Granularity   int32
}

// SampleRateParams serves can_sample_rate, get_sample_rate and
// set_sample_rate; the rate field is an input for can_sample_rate and
// set_sample_rate and an output for get_sample_rate.
type SampleRateParams struct {
	Handle     Handle
	SampleRate float64
	Result     asio.Status
}

type GetChannelInfoParams struct {
	Handle Handle
	Info   asio.ChannelInfo
	Result asio.Status
}

type CreateBuffersParams struct {
	Handle      Handle
	BufferSize  int32
	BufferInfos []asio.BufferInfo
	Result      asio.Status
}

type GetSamplePositionParams struct {
	Handle         Handle
	Result         asio.Status
	SamplePosition int64
	SystemTime     int64
}

// GetCallbackParams is the notification snapshot polled by the guest
// notifier thread. Reading it clears every flag in the native session.
type GetCallbackParams struct {
	Handle            Handle
	Result            asio.Status
	BufferSwitchReady bool
	Phase             int32
	DirectProcess     bool
	TimeInfo          asio.TimeInfo
	SampleRateChanged bool
	NewSampleRate     float64
	ResetRequest      bool
	LatencyChanged    bool
}

type FutureParams struct {
	Handle   Handle
	Selector int32
	Opt      uint64
	Result   asio.Status
}
