package native

import (
	"fmt"
	"os/exec"

	"github.com/wineasio/wineasio-go/pkg/asio"
	"github.com/wineasio/wineasio-go/pkg/backend"
	"github.com/wineasio/wineasio-go/pkg/dlog"
	"github.com/wineasio/wineasio-go/pkg/transport"
)

// Install wires the native handler table into the process-wide transport,
// opening sessions against the given backend. Called once at module load.
func Install(open backend.OpenFunc) {
	m := &module{open: open}
	transport.Install([transport.OpCount]transport.HandlerFunc{
		transport.OpInit:              m.handleInit,
		transport.OpExit:              m.handleExit,
		transport.OpStart:             m.handleStart,
		transport.OpStop:              m.handleStop,
		transport.OpGetChannels:       m.handleGetChannels,
		transport.OpGetLatencies:      m.handleGetLatencies,
		transport.OpGetBufferSize:     m.handleGetBufferSize,
		transport.OpCanSampleRate:     m.handleCanSampleRate,
		transport.OpGetSampleRate:     m.handleGetSampleRate,
		transport.OpSetSampleRate:     m.handleSetSampleRate,
		transport.OpGetChannelInfo:    m.handleGetChannelInfo,
		transport.OpCreateBuffers:     m.handleCreateBuffers,
		transport.OpDisposeBuffers:    m.handleDisposeBuffers,
		transport.OpOutputReady:       m.handleOutputReady,
		transport.OpGetSamplePosition: m.handleGetSamplePosition,
		transport.OpGetCallback:       m.handleGetCallback,
		transport.OpCallbackDone:      m.handleCallbackDone,
		transport.OpControlPanel:      m.handleControlPanel,
		transport.OpFuture:            m.handleFuture,
	})
}

// Uninstall removes the handler table at module unload.
func Uninstall() {
	transport.Uninstall()
}

type module struct {
	open backend.OpenFunc
}

func (m *module) handleInit(args any) {
	params := args.(*transport.InitParams)

	cfg := params.Config
	cfg.Normalize()

	client, err := m.open(cfg.ClientName, backend.Options{
		NoStartServer:       true,
		PreferredBufferSize: uint32(cfg.PreferredBufsize),
	})
	if err != nil {
		dlog.Errorf("could not open backend client %q: %v", cfg.ClientName, err)
		params.Result = asio.NotPresent
		return
	}

	s := &Session{
		client:           client,
		clientName:       client.Name(),
		numInputs:        cfg.NumInputs,
		numOutputs:       cfg.NumOutputs,
		autoconnect:      cfg.Autoconnect,
		fixedBufsize:     cfg.FixedBufsize,
		preferredBufsize: cfg.PreferredBufsize,
	}
	s.setSampleRate(client.SampleRate())
	s.bufferSize.Store(int32(client.BufferSize()))

	// Register the audio ports. A channel whose registration fails stays
	// inactive; referencing it later reports invalid parameter.
	for i := int32(0); i < s.numInputs; i++ {
		name := fmt.Sprintf("in_%d", i+1)
		s.inputs[i].name = name
		port, err := client.RegisterPort(name, backend.Audio, backend.In)
		if err != nil {
			dlog.Warnf("input port %s: %v", name, err)
			continue
		}
		s.inputs[i].port = port
	}
	for i := int32(0); i < s.numOutputs; i++ {
		name := fmt.Sprintf("out_%d", i+1)
		s.outputs[i].name = name
		port, err := client.RegisterPort(name, backend.Audio, backend.Out)
		if err != nil {
			dlog.Warnf("output port %s: %v", name, err)
			continue
		}
		s.outputs[i].port = port
	}

	// MIDI ports are optional; the bridge runs without them.
	s.midiIn.name = "midi_in"
	s.midiOut.name = "midi_out"
	inPort, inErr := client.RegisterPort(s.midiIn.name, backend.MIDI, backend.In)
	outPort, outErr := client.RegisterPort(s.midiOut.name, backend.MIDI, backend.Out)
	if inErr == nil && outErr == nil {
		s.midiIn.port = inPort
		s.midiOut.port = outPort
		s.midiEnabled = true
	} else {
		dlog.Warnf("MIDI ports unavailable: in=%v out=%v", inErr, outErr)
	}

	s.physicalSources = client.PhysicalSources()
	s.physicalSinks = client.PhysicalSinks()

	client.SetProcessCallback(s.process)
	client.SetBufferSizeCallback(s.onBufferSizeChange)
	client.SetSampleRateCallback(s.onSampleRateChange)
	client.SetLatencyCallback(s.onLatencyChange)

	if err := client.Activate(); err != nil {
		dlog.Errorf("could not activate backend client: %v", err)
		_ = client.Close()
		params.Result = asio.HWMalfunction
		return
	}

	if s.autoconnect {
		for i := int32(0); i < s.numInputs && int(i) < len(s.physicalSources); i++ {
			if s.inputs[i].port == nil {
				continue
			}
			_ = client.Connect(s.physicalSources[i], s.inputs[i].port.Name())
		}
		for i := int32(0); i < s.numOutputs && int(i) < len(s.physicalSinks); i++ {
			if s.outputs[i].port == nil {
				continue
			}
			_ = client.Connect(s.outputs[i].port.Name(), s.physicalSinks[i])
		}
	}

	s.state.Store(Initialised)

	params.Handle = registerSession(s)
	params.InputChannels = s.numInputs
	params.OutputChannels = s.numOutputs
	params.SampleRate = s.SampleRate()
	params.Result = asio.OK

	dlog.Infof("initialized: %d in, %d out, %.0f Hz, %d samples",
		s.numInputs, s.numOutputs, s.SampleRate(), s.BufferSize())
}

func (m *module) handleExit(args any) {
	params := args.(*transport.HandleParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	dlog.Tracef("shutting down session")

	s.state.Store(Loaded)

	if s.client != nil {
		_ = s.client.Deactivate()
		for i := int32(0); i < s.numInputs; i++ {
			if s.inputs[i].port != nil {
				_ = s.client.UnregisterPort(s.inputs[i].port)
			}
		}
		for i := int32(0); i < s.numOutputs; i++ {
			if s.outputs[i].port != nil {
				_ = s.client.UnregisterPort(s.outputs[i].port)
			}
		}
		if s.midiIn.port != nil {
			_ = s.client.UnregisterPort(s.midiIn.port)
		}
		if s.midiOut.port != nil {
			_ = s.client.UnregisterPort(s.midiOut.port)
		}
		_ = s.client.Close()
	}

	unregisterSession(params.Handle)
	params.Result = asio.OK
}

func (m *module) handleStart(args any) {
	params := args.(*transport.HandleParams)
	s := sessionFor(params.Handle)
	if s == nil || s.State() != Prepared {
		params.Result = asio.InvalidMode
		return
	}

	s.phase = 0
	s.samplePosition.Store(0)
	s.systemTime.Store(monotonicNanos())

	s.mu.Lock()
	s.switchPending = false
	s.pendingPhase = 0
	s.notePosition = 0
	s.noteTime = s.systemTime.Load()
	s.mu.Unlock()

	s.state.Store(Running)
	params.Result = asio.OK

	dlog.Tracef("session started")
}

func (m *module) handleStop(args any) {
	params := args.(*transport.HandleParams)
	s := sessionFor(params.Handle)
	if s == nil || s.State() != Running {
		params.Result = asio.InvalidMode
		return
	}

	s.state.Store(Prepared)
	params.Result = asio.OK

	dlog.Tracef("session stopped")
}

func (m *module) handleGetChannels(args any) {
	params := args.(*transport.GetChannelsParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	params.NumInputs = s.numInputs
	params.NumOutputs = s.numOutputs
	params.Result = asio.OK
}

func (m *module) handleGetLatencies(args any) {
	params := args.(*transport.GetLatenciesParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	bufSize := s.BufferSize()
	s.inputLatency = bufSize
	s.outputLatency = bufSize * 2

	if s.numInputs > 0 && s.inputs[0].port != nil {
		if _, max := s.inputs[0].port.LatencyRange(backend.CaptureLatency); max > 0 {
			s.inputLatency = int32(max)
		}
	}
	if s.numOutputs > 0 && s.outputs[0].port != nil {
		if _, max := s.outputs[0].port.LatencyRange(backend.PlaybackLatency); max > 0 {
			s.outputLatency = int32(max)
		}
	}

	params.InputLatency = s.inputLatency
	params.OutputLatency = s.outputLatency
	params.Result = asio.OK
}

func (m *module) handleGetBufferSize(args any) {
	params := args.(*transport.GetBufferSizeParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	if s.fixedBufsize {
		size := s.BufferSize()
		params.MinSize = size
		params.MaxSize = size
		params.PreferredSize = size
		params.Granularity = 0
	} else {
		params.MinSize = 16
		params.MaxSize = 8192
		params.PreferredSize = s.preferredBufsize
		params.Granularity = 1
	}
	params.Result = asio.OK
}

func (m *module) handleCanSampleRate(args any) {
	params := args.(*transport.SampleRateParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	// The backend owns the clock; only its current rate is supported.
	if int64(params.SampleRate) == int64(s.SampleRate()) {
		params.Result = asio.OK
	} else {
		params.Result = asio.NoClock
	}
}

func (m *module) handleGetSampleRate(args any) {
	params := args.(*transport.SampleRateParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	params.SampleRate = s.SampleRate()
	params.Result = asio.OK
}

func (m *module) handleSetSampleRate(args any) {
	params := args.(*transport.SampleRateParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	if int64(params.SampleRate) == int64(s.SampleRate()) {
		params.Result = asio.OK
	} else {
		params.Result = asio.NoClock
	}
}

// handleGetChannelInfo is on the host's hot path and must not log.
func (m *module) handleGetChannelInfo(args any) {
	params := args.(*transport.GetChannelInfoParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	ch := s.channelFor(params.Info.IsInput, params.Info.Channel)
	if ch == nil {
		params.Result = asio.InvalidParameter
		return
	}

	params.Info.IsActive = ch.active
	params.Info.Group = 0
	params.Info.SampleType = asio.Float32LSB
	name := ch.name
	if len(name) > 31 {
		name = name[:31]
	}
	params.Info.Name = name
	params.Result = asio.OK
}

func (m *module) handleCreateBuffers(args any) {
	params := args.(*transport.CreateBuffersParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	state := s.State()
	if state != Initialised && state != Prepared {
		params.Result = asio.InvalidMode
		return
	}
	if len(params.BufferInfos) == 0 {
		params.Result = asio.InvalidParameter
		return
	}

	// Adopt the requested cycle length when the backend allows it.
	if params.BufferSize != s.BufferSize() && !s.fixedBufsize {
		if err := s.client.SetBufferSize(uint32(params.BufferSize)); err != nil {
			dlog.Warnf("backend kept buffer size %d: %v", s.BufferSize(), err)
		}
		s.bufferSize.Store(int32(s.client.BufferSize()))
	}

	// Validate the whole set before touching any channel so a bad index
	// leaves no partial state behind.
	for _, info := range params.BufferInfos {
		ch := s.channelFor(info.IsInput, info.Channel)
		if ch == nil || ch.port == nil {
			params.Result = asio.InvalidParameter
			return
		}
	}

	// Re-registering replaces the previous buffer set wholesale.
	for i := int32(0); i < s.numInputs; i++ {
		s.inputs[i].active = false
		s.inputs[i].buffers = [2]uint64{}
	}
	for i := int32(0); i < s.numOutputs; i++ {
		s.outputs[i].active = false
		s.outputs[i].buffers = [2]uint64{}
	}

	for _, info := range params.BufferInfos {
		ch := s.channelFor(info.IsInput, info.Channel)
		ch.buffers = info.Buffers
		ch.active = true
	}

	s.state.Store(Prepared)
	params.Result = asio.OK

	dlog.Tracef("buffers created: %d channels, %d samples",
		len(params.BufferInfos), s.BufferSize())
}

func (m *module) handleDisposeBuffers(args any) {
	params := args.(*transport.HandleParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	// Dropping out of Running first makes the process callback fall back
	// to silence before the channel table is cleared.
	if s.State() == Running {
		s.state.Store(Prepared)
	}

	for i := int32(0); i < s.numInputs; i++ {
		s.inputs[i].active = false
		s.inputs[i].buffers = [2]uint64{}
	}
	for i := int32(0); i < s.numOutputs; i++ {
		s.outputs[i].active = false
		s.outputs[i].buffers = [2]uint64{}
	}

	s.state.Store(Initialised)
	params.Result = asio.OK

	dlog.Tracef("buffers disposed")
}

func (m *module) handleOutputReady(args any) {
	params := args.(*transport.HandleParams)

	// The backend drives the timing; the early-write optimization does
	// not apply.
	params.Result = asio.NotPresent
}

// handleGetSamplePosition is on the host's hot path and must not log.
func (m *module) handleGetSamplePosition(args any) {
	params := args.(*transport.GetSamplePositionParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	params.SamplePosition = s.samplePosition.Load()
	params.SystemTime = s.systemTime.Load()
	params.Result = asio.OK
}

// handleGetCallback snapshots and clears the notification mailbox. Polled
// around 1 kHz, so it must not log.
func (m *module) handleGetCallback(args any) {
	params := args.(*transport.GetCallbackParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	s.mu.Lock()

	params.BufferSwitchReady = s.switchPending
	params.Phase = s.pendingPhase
	params.DirectProcess = true

	params.TimeInfo.Speed = 1.0
	params.TimeInfo.SystemTime = s.noteTime
	params.TimeInfo.SamplePosition = s.notePosition
	params.TimeInfo.SampleRate = s.SampleRate()
	params.TimeInfo.Flags = asio.TimeInfoFlags

	params.SampleRateChanged = s.sampleRateChanged
	params.NewSampleRate = s.newSampleRate
	params.ResetRequest = s.resetRequest
	params.LatencyChanged = s.latencyChanged

	s.switchPending = false
	s.sampleRateChanged = false
	s.resetRequest = false
	s.latencyChanged = false

	s.mu.Unlock()

	params.Result = asio.OK
}

func (m *module) handleCallbackDone(args any) {
	params := args.(*transport.HandleParams)

	// The notifier processes callbacks synchronously; nothing to settle.
	params.Result = asio.OK
}

// controlPanelPaths are the fallback locations when the settings tool is
// not on PATH.
var controlPanelPaths = []string{
	"/usr/bin/wineasio-settings",
	"/usr/local/bin/wineasio-settings",
}

func (m *module) handleControlPanel(args any) {
	params := args.(*transport.HandleParams)

	dlog.Tracef("control panel requested, launching wineasio-settings")

	candidates := make([]string, 0, len(controlPanelPaths)+1)
	if path, err := exec.LookPath("wineasio-settings"); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, controlPanelPaths...)

	for _, path := range candidates {
		cmd := exec.Command(path)
		if err := cmd.Start(); err != nil {
			continue
		}
		// Detach: the settings tool outlives the session.
		go func() { _ = cmd.Wait() }()
		params.Result = asio.OK
		return
	}

	dlog.Warnf("could not launch wineasio-settings")
	params.Result = asio.NotPresent
}

func (m *module) handleFuture(args any) {
	params := args.(*transport.FutureParams)
	s := sessionFor(params.Handle)
	if s == nil {
		params.Result = asio.InvalidParameter
		return
	}

	switch params.Selector {
	case asio.CanTimeInfo, asio.CanTimeCode,
		asio.EnableTimeCodeRead, asio.DisableTimeCodeRead:
		params.Result = asio.Success
	default:
		params.Result = asio.NotPresent
	}
}
