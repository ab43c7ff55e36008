package native

import (
	"testing"

	"github.com/wineasio/wineasio-go/pkg/asio"
	"github.com/wineasio/wineasio-go/pkg/backend/dummy"
	"github.com/wineasio/wineasio-go/pkg/config"
	"github.com/wineasio/wineasio-go/pkg/transport"
)

func testConfig() config.Config {
	return config.Config{
		NumInputs:        16,
		NumOutputs:       16,
		PreferredBufsize: 1024,
		Autoconnect:      true,
		ClientName:       "WineASIO",
	}
}

func newGraph() *dummy.Backend {
	return dummy.New(48000, 256,
		[]string{"system:capture_1", "system:capture_2"},
		[]string{"system:playback_1", "system:playback_2"})
}

// initSession installs the module over a fresh dummy graph and opens a
// session, returning the handle and the graph for injection.
func initSession(t *testing.T, graph *dummy.Backend) transport.Handle {
	t.Helper()
	Install(graph.Open)
	t.Cleanup(Uninstall)

	params := transport.InitParams{Config: testConfig()}
	if err := transport.Call(transport.OpInit, &params); err != nil {
		t.Fatalf("init transport: %v", err)
	}
	if params.Result != asio.OK {
		t.Fatalf("init result: %s", params.Result)
	}

	t.Cleanup(func() {
		exit := transport.HandleParams{Handle: params.Handle}
		_ = transport.Call(transport.OpExit, &exit)
	})
	return params.Handle
}

func callHandle(t *testing.T, op transport.Op, h transport.Handle) asio.Status {
	t.Helper()
	params := transport.HandleParams{Handle: h}
	if err := transport.Call(op, &params); err != nil {
		t.Fatalf("%s: %v", op, err)
	}
	return params.Result
}

// prepare pushes a session into Prepared with two channels per direction
// backed by block, which must hold 2*2*2*bufSize samples.
func prepare(t *testing.T, h transport.Handle, block []float32, bufSize int32) []asio.BufferInfo {
	t.Helper()
	infos := []asio.BufferInfo{
		{IsInput: true, Channel: 0},
		{IsInput: true, Channel: 1},
		{IsInput: false, Channel: 0},
		{IsInput: false, Channel: 1},
	}
	for i := range infos {
		for phase := 0; phase < 2; phase++ {
			infos[i].Buffers[phase] = blockAddr(block, (2*i+phase)*int(bufSize))
		}
	}
	params := transport.CreateBuffersParams{Handle: h, BufferSize: bufSize, BufferInfos: infos}
	if err := transport.Call(transport.OpCreateBuffers, &params); err != nil {
		t.Fatalf("create buffers: %v", err)
	}
	if params.Result != asio.OK {
		t.Fatalf("create buffers: %s", params.Result)
	}
	return infos
}

func TestInitReportsGraphState(t *testing.T) {
	graph := newGraph()
	Install(graph.Open)
	t.Cleanup(Uninstall)

	params := transport.InitParams{Config: testConfig()}
	if err := transport.Call(transport.OpInit, &params); err != nil {
		t.Fatalf("init: %v", err)
	}
	if params.Result != asio.OK {
		t.Fatalf("result = %s", params.Result)
	}
	if params.Handle == 0 {
		t.Fatal("zero handle")
	}
	if params.InputChannels != 16 || params.OutputChannels != 16 {
		t.Errorf("channels = %d/%d", params.InputChannels, params.OutputChannels)
	}
	if params.SampleRate != 48000 {
		t.Errorf("rate = %f", params.SampleRate)
	}

	s := SessionFor(params.Handle)
	if s == nil || s.State() != Initialised {
		t.Fatal("session not Initialised")
	}

	// Autoconnect wired the first channels to the physical ports.
	client := graph.Client()
	if len(client.Connections) != 4 {
		t.Errorf("connections = %v", client.Connections)
	}

	exit := transport.HandleParams{Handle: params.Handle}
	_ = transport.Call(transport.OpExit, &exit)
}

func TestInitBackendUnavailable(t *testing.T) {
	graph := newGraph()
	graph.OpenErr = asioBackendDown{}
	Install(graph.Open)
	t.Cleanup(Uninstall)

	params := transport.InitParams{Config: testConfig()}
	_ = transport.Call(transport.OpInit, &params)
	if params.Result != asio.NotPresent {
		t.Fatalf("result = %s", params.Result)
	}
}

type asioBackendDown struct{}

func (asioBackendDown) Error() string { return "backend down" }

func TestInitActivateFailure(t *testing.T) {
	graph := newGraph()
	graph.ActivateErr = asioBackendDown{}
	Install(graph.Open)
	t.Cleanup(Uninstall)

	params := transport.InitParams{Config: testConfig()}
	_ = transport.Call(transport.OpInit, &params)
	if params.Result != asio.HWMalfunction {
		t.Fatalf("result = %s", params.Result)
	}
	if graph.Client() == nil || !graph.Client().Closed() {
		t.Fatal("client not torn down after activate failure")
	}
}

func TestStateMachine(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)
	block := make([]float32, 2*4*256)

	// Initialised: start and stop are invalid.
	if st := callHandle(t, transport.OpStart, h); st != asio.InvalidMode {
		t.Fatalf("start from Initialised = %s", st)
	}
	if st := callHandle(t, transport.OpStop, h); st != asio.InvalidMode {
		t.Fatalf("stop from Initialised = %s", st)
	}

	prepare(t, h, block, 256)
	s := SessionFor(h)
	if s.State() != Prepared {
		t.Fatalf("state after create buffers = %d", s.State())
	}

	// Prepared: stop is invalid, start works.
	if st := callHandle(t, transport.OpStop, h); st != asio.InvalidMode {
		t.Fatalf("stop from Prepared = %s", st)
	}
	if st := callHandle(t, transport.OpStart, h); st != asio.OK {
		t.Fatalf("start from Prepared = %s", st)
	}
	if s.State() != Running {
		t.Fatalf("state after start = %d", s.State())
	}

	// Running: a second start is invalid.
	if st := callHandle(t, transport.OpStart, h); st != asio.InvalidMode {
		t.Fatalf("second start = %s", st)
	}

	if st := callHandle(t, transport.OpStop, h); st != asio.OK {
		t.Fatalf("stop from Running = %s", st)
	}
	if s.State() != Prepared {
		t.Fatalf("state after stop = %d", s.State())
	}

	// Dispose from Prepared drops to Initialised.
	if st := callHandle(t, transport.OpDisposeBuffers, h); st != asio.OK {
		t.Fatalf("dispose = %s", st)
	}
	if s.State() != Initialised {
		t.Fatalf("state after dispose = %d", s.State())
	}
}

func TestDisposeWhileRunning(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)
	block := make([]float32, 2*4*256)
	prepare(t, h, block, 256)

	if st := callHandle(t, transport.OpStart, h); st != asio.OK {
		t.Fatalf("start = %s", st)
	}
	if st := callHandle(t, transport.OpDisposeBuffers, h); st != asio.OK {
		t.Fatalf("dispose = %s", st)
	}
	if s := SessionFor(h); s.State() != Initialised {
		t.Fatalf("state = %d", s.State())
	}
}

func TestCreateBuffersValidation(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)

	// No channels at all.
	empty := transport.CreateBuffersParams{Handle: h, BufferSize: 256}
	_ = transport.Call(transport.OpCreateBuffers, &empty)
	if empty.Result != asio.InvalidParameter {
		t.Fatalf("empty set = %s", empty.Result)
	}

	// Out-of-range channel leaves no partial state behind.
	infos := []asio.BufferInfo{
		{IsInput: true, Channel: 0, Buffers: [2]uint64{1, 2}},
		{IsInput: true, Channel: 999, Buffers: [2]uint64{3, 4}},
	}
	params := transport.CreateBuffersParams{Handle: h, BufferSize: 256, BufferInfos: infos}
	_ = transport.Call(transport.OpCreateBuffers, &params)
	if params.Result != asio.InvalidParameter {
		t.Fatalf("out of range = %s", params.Result)
	}

	s := SessionFor(h)
	if s.State() != Initialised {
		t.Fatalf("state = %d", s.State())
	}
	info := transport.GetChannelInfoParams{Handle: h}
	info.Info.IsInput = true
	info.Info.Channel = 0
	_ = transport.Call(transport.OpGetChannelInfo, &info)
	if info.Info.IsActive {
		t.Fatal("channel 0 left active after failed create")
	}
}

func TestCreateBuffersRejectedWhileRunning(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)
	block := make([]float32, 2*4*256)
	prepare(t, h, block, 256)
	if st := callHandle(t, transport.OpStart, h); st != asio.OK {
		t.Fatalf("start = %s", st)
	}

	params := transport.CreateBuffersParams{
		Handle:     h,
		BufferSize: 256,
		BufferInfos: []asio.BufferInfo{
			{IsInput: true, Channel: 0, Buffers: [2]uint64{blockAddr(block, 0), blockAddr(block, 256)}},
		},
	}
	_ = transport.Call(transport.OpCreateBuffers, &params)
	if params.Result != asio.InvalidMode {
		t.Fatalf("create while Running = %s", params.Result)
	}
}

func TestRecreateReplacesBufferSet(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)
	block := make([]float32, 2*4*256)
	prepare(t, h, block, 256)

	// A second registration with a single channel deactivates the rest.
	params := transport.CreateBuffersParams{
		Handle:     h,
		BufferSize: 256,
		BufferInfos: []asio.BufferInfo{
			{IsInput: false, Channel: 1, Buffers: [2]uint64{blockAddr(block, 0), blockAddr(block, 256)}},
		},
	}
	_ = transport.Call(transport.OpCreateBuffers, &params)
	if params.Result != asio.OK {
		t.Fatalf("recreate = %s", params.Result)
	}

	s := SessionFor(h)
	if !s.outputs[1].active {
		t.Fatal("output 1 not active")
	}
	if s.inputs[0].active || s.inputs[1].active || s.outputs[0].active {
		t.Fatal("stale channels still active after recreate")
	}
}

func TestQueries(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)

	ch := transport.GetChannelsParams{Handle: h}
	_ = transport.Call(transport.OpGetChannels, &ch)
	if ch.Result != asio.OK || ch.NumInputs != 16 || ch.NumOutputs != 16 {
		t.Errorf("channels = %s %d/%d", ch.Result, ch.NumInputs, ch.NumOutputs)
	}

	bs := transport.GetBufferSizeParams{Handle: h}
	_ = transport.Call(transport.OpGetBufferSize, &bs)
	if bs.MinSize != 16 || bs.MaxSize != 8192 || bs.PreferredSize != 1024 || bs.Granularity != 1 {
		t.Errorf("buffer size = %d/%d/%d/%d", bs.MinSize, bs.MaxSize, bs.PreferredSize, bs.Granularity)
	}

	lat := transport.GetLatenciesParams{Handle: h}
	_ = transport.Call(transport.OpGetLatencies, &lat)
	if lat.Result != asio.OK || lat.InputLatency != 256 || lat.OutputLatency != 512 {
		t.Errorf("latencies = %s %d/%d", lat.Result, lat.InputLatency, lat.OutputLatency)
	}

	sr := transport.SampleRateParams{Handle: h}
	_ = transport.Call(transport.OpGetSampleRate, &sr)
	if sr.Result != asio.OK || sr.SampleRate != 48000 {
		t.Errorf("rate = %s %f", sr.Result, sr.SampleRate)
	}
}

func TestFixedBufferSize(t *testing.T) {
	graph := newGraph()
	Install(graph.Open)
	t.Cleanup(Uninstall)

	cfg := testConfig()
	cfg.FixedBufsize = true
	params := transport.InitParams{Config: cfg}
	_ = transport.Call(transport.OpInit, &params)
	if params.Result != asio.OK {
		t.Fatalf("init = %s", params.Result)
	}
	t.Cleanup(func() {
		exit := transport.HandleParams{Handle: params.Handle}
		_ = transport.Call(transport.OpExit, &exit)
	})

	bs := transport.GetBufferSizeParams{Handle: params.Handle}
	_ = transport.Call(transport.OpGetBufferSize, &bs)
	if bs.MinSize != 256 || bs.MaxSize != 256 || bs.PreferredSize != 256 || bs.Granularity != 0 {
		t.Errorf("fixed buffer size = %d/%d/%d/%d", bs.MinSize, bs.MaxSize, bs.PreferredSize, bs.Granularity)
	}
}

func TestSampleRateHandlers(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)

	can := transport.SampleRateParams{Handle: h, SampleRate: 48000}
	_ = transport.Call(transport.OpCanSampleRate, &can)
	if can.Result != asio.OK {
		t.Errorf("can 48000 = %s", can.Result)
	}

	can = transport.SampleRateParams{Handle: h, SampleRate: 96000}
	_ = transport.Call(transport.OpCanSampleRate, &can)
	if can.Result != asio.NoClock {
		t.Errorf("can 96000 = %s", can.Result)
	}

	set := transport.SampleRateParams{Handle: h, SampleRate: 96000}
	_ = transport.Call(transport.OpSetSampleRate, &set)
	if set.Result != asio.NoClock {
		t.Errorf("set 96000 = %s", set.Result)
	}

	set = transport.SampleRateParams{Handle: h, SampleRate: 48000}
	_ = transport.Call(transport.OpSetSampleRate, &set)
	if set.Result != asio.OK {
		t.Errorf("set 48000 = %s", set.Result)
	}
}

func TestChannelInfo(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)

	params := transport.GetChannelInfoParams{Handle: h}
	params.Info.IsInput = true
	params.Info.Channel = 2
	_ = transport.Call(transport.OpGetChannelInfo, &params)
	if params.Result != asio.OK {
		t.Fatalf("result = %s", params.Result)
	}
	if params.Info.Name != "in_3" {
		t.Errorf("name = %q", params.Info.Name)
	}
	if params.Info.SampleType != asio.Float32LSB {
		t.Errorf("sample type = %d", params.Info.SampleType)
	}
	if params.Info.IsActive {
		t.Error("inactive channel reported active")
	}

	params = transport.GetChannelInfoParams{Handle: h}
	params.Info.Channel = 200
	_ = transport.Call(transport.OpGetChannelInfo, &params)
	if params.Result != asio.InvalidParameter {
		t.Errorf("out of range = %s", params.Result)
	}
}

func TestFutureSelectors(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)

	tests := []struct {
		selector int32
		want     asio.Status
	}{
		{asio.CanTimeInfo, asio.Success},
		{asio.CanTimeCode, asio.Success},
		{asio.EnableTimeCodeRead, asio.Success},
		{asio.DisableTimeCodeRead, asio.Success},
		{asio.CanInputMonitor, asio.NotPresent},
		{asio.CanTransport, asio.NotPresent},
		{asio.CanInputGain, asio.NotPresent},
		{asio.CanInputMeter, asio.NotPresent},
		{asio.CanOutputGain, asio.NotPresent},
		{asio.CanOutputMeter, asio.NotPresent},
		{asio.CanReportOverload, asio.NotPresent},
		{12345, asio.NotPresent},
	}
	for _, tt := range tests {
		params := transport.FutureParams{Handle: h, Selector: tt.selector}
		_ = transport.Call(transport.OpFuture, &params)
		if params.Result != tt.want {
			t.Errorf("future(%d) = %s, want %s", tt.selector, params.Result, tt.want)
		}
	}
}

func TestOutputReadyNotPresent(t *testing.T) {
	graph := newGraph()
	h := initSession(t, graph)
	if st := callHandle(t, transport.OpOutputReady, h); st != asio.NotPresent {
		t.Fatalf("output ready = %s", st)
	}
}

func TestExitClosesClient(t *testing.T) {
	graph := newGraph()
	Install(graph.Open)
	t.Cleanup(Uninstall)

	params := transport.InitParams{Config: testConfig()}
	_ = transport.Call(transport.OpInit, &params)
	if params.Result != asio.OK {
		t.Fatalf("init = %s", params.Result)
	}

	exit := transport.HandleParams{Handle: params.Handle}
	_ = transport.Call(transport.OpExit, &exit)
	if exit.Result != asio.OK {
		t.Fatalf("exit = %s", exit.Result)
	}
	if !graph.Client().Closed() {
		t.Fatal("backend client not closed")
	}
	if SessionFor(params.Handle) != nil {
		t.Fatal("session still registered after exit")
	}

	// The handle is dead: further operations report invalid parameter.
	ch := transport.GetChannelsParams{Handle: params.Handle}
	_ = transport.Call(transport.OpGetChannels, &ch)
	if ch.Result != asio.InvalidParameter {
		t.Fatalf("post-exit query = %s", ch.Result)
	}
}
