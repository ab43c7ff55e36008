// Package driver implements the host-facing ASIO driver object: a
// reference-counted instance that services the host ABI from cached state
// or by marshalling a parameter block through the transport to the native
// session. It owns the guest-addressable audio buffers and the notifier
// thread that drives the host's audio callback.
package driver

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/wineasio/wineasio-go/pkg/asio"
	"github.com/wineasio/wineasio-go/pkg/config"
	"github.com/wineasio/wineasio-go/pkg/dlog"
	"github.com/wineasio/wineasio-go/pkg/transport"
)

// Driver is one ASIO driver instance. Hosts obtain it through
// CreateInstance (the class-factory path) and drive it exclusively through
// the ABI methods below.
type Driver struct {
	refs atomic.Int32
	id   uintptr

	// mu guards the session fields against concurrent ABI calls. It is
	// never held while a host callback runs.
	mu          sync.Mutex
	handle      transport.Handle
	callbacks   *asio.Callbacks
	timeInfo    bool
	canTimeCode bool

	numInputs  int32
	numOutputs int32
	sampleRate float64
	bufferSize int32

	// block is the single allocation backing every channel's double
	// buffer. The native session holds raw addresses into it, so the
	// driver keeps the reference until the buffers are replaced or the
	// object dies.
	block []float32

	hostTime asio.TimeInfo
	notifier *notifier

	cfg config.Config
}

// Live-instance registry, keyed the way the class factory hands objects
// out. Lets tests assert that Release(0) really retired the object.
var (
	instancesMu sync.Mutex
	instances   = make(map[uintptr]*Driver)
	nextID      uintptr
)

// CreateInstance builds a driver object with one reference held by the
// caller.
func CreateInstance() *Driver {
	d := &Driver{}
	d.refs.Store(1)

	instancesMu.Lock()
	nextID++
	d.id = nextID
	instances[d.id] = d
	instancesMu.Unlock()

	return d
}

// LiveInstances returns the number of undestroyed driver objects.
func LiveInstances() int {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	return len(instances)
}

// QueryInterface returns the object itself for the two well-known
// identity tokens and reports false for anything else.
func (d *Driver) QueryInterface(iid [16]byte) (*Driver, bool) {
	if iid == asio.IIDIUnknown || iid == asio.CLSIDWineASIO {
		d.AddRef()
		return d, true
	}
	return nil, false
}

// AddRef increments the reference count and returns the new count.
func (d *Driver) AddRef() int32 {
	return d.refs.Add(1)
}

// Release decrements the reference count, destroying the object when it
// reaches zero. Returns the new count.
func (d *Driver) Release() int32 {
	refs := d.refs.Add(-1)
	if refs != 0 {
		return refs
	}

	d.mu.Lock()
	n := d.notifier
	d.notifier = nil
	handle := d.handle
	d.handle = 0
	d.callbacks = nil
	d.mu.Unlock()

	if n != nil {
		n.stopAndJoin()
	}
	if handle != 0 {
		params := transport.HandleParams{Handle: handle}
		if err := transport.Call(transport.OpExit, &params); err != nil {
			dlog.Errorf("session exit: %v", err)
		}
	}

	// The native session no longer holds the buffer addresses.
	d.mu.Lock()
	d.block = nil
	d.mu.Unlock()

	instancesMu.Lock()
	delete(instances, d.id)
	instancesMu.Unlock()

	return 0
}

// Init brings the session up against the backend. Per the ABI it returns
// 1 on success and 0 on failure; a second Init on a live object fails.
func (d *Driver) Init(hostHandle uintptr) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		return 0
	}

	d.cfg = config.Load()

	params := transport.InitParams{Config: d.cfg}
	if err := transport.Call(transport.OpInit, &params); err != nil {
		dlog.Errorf("session init: %v", err)
		return 0
	}
	if params.Result != asio.OK {
		dlog.Warnf("session init failed: %s", params.Result)
		return 0
	}

	d.handle = params.Handle
	d.numInputs = params.InputChannels
	d.numOutputs = params.OutputChannels
	d.sampleRate = params.SampleRate

	dlog.Tracef("initialized: handle=%d inputs=%d outputs=%d rate=%f",
		d.handle, d.numInputs, d.numOutputs, d.sampleRate)
	return 1
}

// GetDriverName returns the constant driver name.
func (d *Driver) GetDriverName() string { return asio.DriverName }

// GetDriverVersion returns the driver version.
func (d *Driver) GetDriverVersion() int32 { return asio.DriverVersion }

// GetErrorMessage returns the fixed error text; the ABI has no per-error
// message channel.
func (d *Driver) GetErrorMessage() string { return "No error" }

// Start begins streaming: the native session flips to Running, the
// notifier thread spins up, and the first buffer switch is delivered on
// the calling thread ("priming", part of the host ABI).
func (d *Driver) Start() asio.Status {
	d.mu.Lock()

	params := transport.HandleParams{Handle: d.handle}
	if err := transport.Call(transport.OpStart, &params); err != nil {
		d.mu.Unlock()
		return asio.NotPresent
	}
	if params.Result != asio.OK {
		d.mu.Unlock()
		dlog.Warnf("start failed: %s", params.Result)
		return params.Result
	}

	if d.notifier == nil {
		d.notifier = startNotifier(d)
	}

	cbs := d.callbacks
	timeInfo := d.timeInfo
	d.hostTime = asio.TimeInfo{
		Speed:      1.0,
		SampleRate: d.sampleRate,
		Flags:      asio.TimeInfoFlags,
	}
	ti := d.hostTime
	d.mu.Unlock()

	if cbs != nil {
		if timeInfo && cbs.BufferSwitchTimeInfo != nil {
			cbs.BufferSwitchTimeInfo(&ti, 0, true)
		} else if cbs.BufferSwitch != nil {
			cbs.BufferSwitch(0, true)
		}
	}

	return asio.OK
}

// Stop ends streaming: the notifier is signalled and joined (up to five
// seconds), then the native session drops back to Prepared.
func (d *Driver) Stop() asio.Status {
	d.mu.Lock()
	n := d.notifier
	d.notifier = nil
	handle := d.handle
	d.mu.Unlock()

	if n != nil {
		n.stopAndJoin()
	}

	params := transport.HandleParams{Handle: handle}
	if err := transport.Call(transport.OpStop, &params); err != nil {
		return asio.NotPresent
	}
	return params.Result
}

// GetChannels reports the configured channel counts.
func (d *Driver) GetChannels(numInputs, numOutputs *int32) asio.Status {
	if numInputs == nil || numOutputs == nil {
		return asio.InvalidParameter
	}

	params := transport.GetChannelsParams{Handle: d.sessionHandle()}
	if err := transport.Call(transport.OpGetChannels, &params); err != nil {
		return asio.NotPresent
	}

	*numInputs = params.NumInputs
	*numOutputs = params.NumOutputs
	return params.Result
}

// GetLatencies reports the backend's input and output latency in samples.
func (d *Driver) GetLatencies(inputLatency, outputLatency *int32) asio.Status {
	if inputLatency == nil || outputLatency == nil {
		return asio.InvalidParameter
	}

	params := transport.GetLatenciesParams{Handle: d.sessionHandle()}
	if err := transport.Call(transport.OpGetLatencies, &params); err != nil {
		return asio.NotPresent
	}

	*inputLatency = params.InputLatency
	*outputLatency = params.OutputLatency
	return params.Result
}

// GetBufferSize reports the supported cycle lengths.
func (d *Driver) GetBufferSize(minSize, maxSize, preferredSize, granularity *int32) asio.Status {
	params := transport.GetBufferSizeParams{Handle: d.sessionHandle()}
	if err := transport.Call(transport.OpGetBufferSize, &params); err != nil {
		return asio.NotPresent
	}

	if minSize != nil {
		*minSize = params.MinSize
	}
	if maxSize != nil {
		*maxSize = params.MaxSize
	}
	if preferredSize != nil {
		*preferredSize = params.PreferredSize
	}
	if granularity != nil {
		*granularity = params.Granularity
	}
	return params.Result
}

// CanSampleRate reports whether the backend's clock runs at the rate.
func (d *Driver) CanSampleRate(rate float64) asio.Status {
	params := transport.SampleRateParams{Handle: d.sessionHandle(), SampleRate: rate}
	if err := transport.Call(transport.OpCanSampleRate, &params); err != nil {
		return asio.NotPresent
	}
	return params.Result
}

// GetSampleRate reports the backend's current rate.
func (d *Driver) GetSampleRate(rate *float64) asio.Status {
	if rate == nil {
		return asio.InvalidParameter
	}

	params := transport.SampleRateParams{Handle: d.sessionHandle()}
	if err := transport.Call(transport.OpGetSampleRate, &params); err != nil {
		return asio.NotPresent
	}

	*rate = params.SampleRate
	d.mu.Lock()
	d.sampleRate = params.SampleRate
	d.mu.Unlock()
	return params.Result
}

// SetSampleRate accepts the current rate as a no-op and refuses any other:
// the backend owns the clock.
func (d *Driver) SetSampleRate(rate float64) asio.Status {
	params := transport.SampleRateParams{Handle: d.sessionHandle(), SampleRate: rate}
	if err := transport.Call(transport.OpSetSampleRate, &params); err != nil {
		return asio.NotPresent
	}

	if params.Result == asio.OK {
		d.mu.Lock()
		d.sampleRate = rate
		d.mu.Unlock()
	}
	return params.Result
}

// GetClockSources reports zero user-selectable sources: the backend is the
// single implicit clock, so the clocks array is left untouched.
func (d *Driver) GetClockSources(clocks []asio.ClockSource, numSources *int32) asio.Status {
	if numSources != nil {
		*numSources = 0
	}
	return asio.OK
}

// SetClockSource accepts any reference; there is only the one clock.
func (d *Driver) SetClockSource(reference int32) asio.Status {
	return asio.OK
}

// GetSamplePosition reports the frames streamed since Start and the
// matching monotonic timestamp. Hot path: no logging.
func (d *Driver) GetSamplePosition(samplePosition, systemTime *int64) asio.Status {
	if samplePosition == nil || systemTime == nil {
		return asio.InvalidParameter
	}

	params := transport.GetSamplePositionParams{Handle: d.sessionHandle()}
	if err := transport.Call(transport.OpGetSamplePosition, &params); err != nil {
		return asio.NotPresent
	}

	*samplePosition = params.SamplePosition
	*systemTime = params.SystemTime
	return params.Result
}

// GetChannelInfo fills in the channel's name, activity and sample type.
// Hot path: no logging.
func (d *Driver) GetChannelInfo(info *asio.ChannelInfo) asio.Status {
	if info == nil {
		return asio.InvalidParameter
	}

	params := transport.GetChannelInfoParams{Handle: d.sessionHandle()}
	params.Info.Channel = info.Channel
	params.Info.IsInput = info.IsInput
	if err := transport.Call(transport.OpGetChannelInfo, &params); err != nil {
		return asio.NotPresent
	}

	info.IsActive = params.Info.IsActive
	info.Group = params.Info.Group
	info.SampleType = params.Info.SampleType
	info.Name = params.Info.Name
	return params.Result
}

// CreateBuffers allocates the double buffers in guest-owned memory, hands
// the addresses to the native session and installs the host callbacks.
func (d *Driver) CreateBuffers(infos []asio.BufferInfo, numChannels, bufferSize int32, callbacks *asio.Callbacks) asio.Status {
	if infos == nil || callbacks == nil || numChannels <= 0 || bufferSize <= 0 {
		return asio.InvalidParameter
	}
	if int(numChannels) > len(infos) {
		return asio.InvalidParameter
	}

	// Ask the host which callback flavours it speaks. The probe runs
	// before mu is taken: the host may call back into the driver.
	timeInfo := false
	canTimeCode := false
	if callbacks.Message != nil {
		if callbacks.Message(asio.SelectorSupported, asio.SupportsTimeInfo, nil, nil) == 1 {
			timeInfo = true
		}
		if callbacks.Message(asio.SelectorSupported, asio.SupportsTimeCode, nil, nil) == 1 {
			canTimeCode = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.callbacks = callbacks
	d.bufferSize = bufferSize
	d.timeInfo = timeInfo
	d.canTimeCode = canTimeCode
	dlog.Tracef("time_info_mode=%v can_time_code=%v", d.timeInfo, d.canTimeCode)

	// One zeroed region holds both phases of every channel; the previous
	// block (if any) dies with this reassignment.
	block := make([]float32, 2*int(numChannels)*int(bufferSize))
	d.block = block

	for i := int32(0); i < numChannels; i++ {
		for phase := int32(0); phase < 2; phase++ {
			off := (2*i + phase) * bufferSize
			infos[i].Buffers[phase] = uint64(uintptr(unsafe.Pointer(&block[off])))
		}
	}

	params := transport.CreateBuffersParams{
		Handle:      d.handle,
		BufferSize:  bufferSize,
		BufferInfos: infos[:numChannels],
	}
	if err := transport.Call(transport.OpCreateBuffers, &params); err != nil {
		d.block = nil
		return asio.NotPresent
	}
	if params.Result != asio.OK {
		d.block = nil
		for i := int32(0); i < numChannels; i++ {
			infos[i].Buffers = [2]uint64{}
		}
		return params.Result
	}

	return asio.OK
}

// DisposeBuffers detaches the buffer set from the native session and drops
// the host callbacks. The buffer block itself stays alive until the next
// CreateBuffers or the object's release — the host may not touch the
// buffers after this returns, but the native side only forgets the
// addresses inside the transport call.
func (d *Driver) DisposeBuffers() asio.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	params := transport.HandleParams{Handle: d.handle}
	if err := transport.Call(transport.OpDisposeBuffers, &params); err != nil {
		return asio.NotPresent
	}

	d.callbacks = nil
	return params.Result
}

// ControlPanel launches the external settings tool.
func (d *Driver) ControlPanel() asio.Status {
	params := transport.HandleParams{Handle: d.sessionHandle()}
	if err := transport.Call(transport.OpControlPanel, &params); err != nil {
		return asio.NotPresent
	}
	return params.Result
}

// Future dispatches an extension selector.
func (d *Driver) Future(selector int32, opt unsafe.Pointer) asio.Status {
	params := transport.FutureParams{
		Handle:   d.sessionHandle(),
		Selector: selector,
		Opt:      uint64(uintptr(opt)),
	}
	if err := transport.Call(transport.OpFuture, &params); err != nil {
		return asio.NotPresent
	}
	return params.Result
}

// OutputReady reports that the early-output optimization is not available.
func (d *Driver) OutputReady() asio.Status {
	params := transport.HandleParams{Handle: d.sessionHandle()}
	if err := transport.Call(transport.OpOutputReady, &params); err != nil {
		return asio.NotPresent
	}
	return params.Result
}

func (d *Driver) sessionHandle() transport.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}
