// Package asio defines the host-facing ASIO driver vocabulary: status
// codes, parameter structures, host callbacks and the well-known selectors.
package asio

import "unsafe"

// Status is the result code returned by every driver operation.
type Status int32

// Status codes matching the ASIO SDK.
const (
	OK               Status = 0
	Success          Status = 0x3f4847a0
	NotPresent       Status = -1000
	HWMalfunction    Status = -999
	InvalidParameter Status = -998
	InvalidMode      Status = -997
	SPNotAdvancing   Status = -996
	NoClock          Status = -995
	NoMemory         Status = -994
)

// String returns the SDK name of the status code.
func (s Status) String() string {
	switch s {
	case OK:
		return "ASE_OK"
	case Success:
		return "ASE_SUCCESS"
	case NotPresent:
		return "ASE_NotPresent"
	case HWMalfunction:
		return "ASE_HWMalfunction"
	case InvalidParameter:
		return "ASE_InvalidParameter"
	case InvalidMode:
		return "ASE_InvalidMode"
	case SPNotAdvancing:
		return "ASE_SPNotAdvancing"
	case NoClock:
		return "ASE_NoClock"
	case NoMemory:
		return "ASE_NoMemory"
	default:
		return "ASE_Unknown"
	}
}

// SampleType identifies the sample format of a channel. The driver only
// ever reports Float32LSB; the full enumeration is kept for hosts that
// compare against other formats.
type SampleType int32

// Sample types matching the ASIO SDK.
const (
	Int16MSB   SampleType = 0
	Int24MSB   SampleType = 1
	Int32MSB   SampleType = 2
	Float32MSB SampleType = 3
	Float64MSB SampleType = 4
	Int16LSB   SampleType = 16
	Int24LSB   SampleType = 17
	Int32LSB   SampleType = 18
	Float32LSB SampleType = 19
	Float64LSB SampleType = 20
)

// MaxChannels is the per-direction channel cap.
const MaxChannels = 128

// DriverName is the constant name reported to hosts.
const DriverName = "WineASIO"

// DriverVersion is the version reported by GetDriverVersion (1.3).
const DriverVersion = 13

// TimeInfo carries the transport snapshot handed to the host's time-info
// buffer switch. SystemTime is monotonic nanoseconds.
type TimeInfo struct {
	Speed          float64
	SystemTime     int64
	SamplePosition int64
	SampleRate     float64
	Flags          uint32
}

// TimeInfoFlags is the valid-field mask published with every buffer switch:
// system time, sample position and sample rate are valid.
const TimeInfoFlags = 0x7

// BufferInfo describes one channel's double buffer. The host fills
// IsInput/Channel; CreateBuffers fills Buffers with the two phase
// addresses. Addresses are carried as 64-bit values so the same struct
// crosses the guest/native boundary unchanged.
type BufferInfo struct {
	IsInput bool
	Channel int32
	Buffers [2]uint64
}

// ChannelInfo describes one channel. The host fills Channel/IsInput; the
// driver fills the rest. Name is at most 31 bytes.
type ChannelInfo struct {
	Channel    int32
	IsInput    bool
	IsActive   bool
	Group      int32
	SampleType SampleType
	Name       string
}

// ClockSource describes one selectable clock. The driver exposes none:
// the backend is the single implicit clock.
type ClockSource struct {
	Index             int32
	AssociatedChannel int32
	AssociatedGroup   int32
	IsCurrentSource   bool
	Name              string
}

// Callbacks is the set of host entry points installed at CreateBuffers.
// Message mirrors the ABI's asioMessage: the pointer arguments are unused
// by every selector this driver sends and arrive nil.
type Callbacks struct {
	BufferSwitch         func(phase int32, directProcess bool)
	SampleRateDidChange  func(rate float64)
	Message              func(selector, value int32, message unsafe.Pointer, opt *float64) int32
	BufferSwitchTimeInfo func(ti *TimeInfo, phase int32, directProcess bool) *TimeInfo
}

// Message selectors.
const (
	SelectorSupported = 1
	ResetRequest      = 3
	LatenciesChanged  = 6
	SupportsTimeInfo  = 14
	SupportsTimeCode  = 15
)

// Future selectors.
const (
	EnableTimeCodeRead  = 1
	DisableTimeCodeRead = 2
	SetInputMonitor     = 3
	Transport           = 4
	SetInputGain        = 5
	GetInputMeter       = 6
	SetOutputGain       = 7
	GetOutputMeter      = 8
	CanInputMonitor     = 9
	CanTimeInfo         = 10
	CanTimeCode         = 11
	CanTransport        = 12
	CanInputGain        = 13
	CanInputMeter       = 14
	CanOutputGain       = 15
	CanOutputMeter      = 16
	OptionalOne         = 17

	SetIoFormat              = 0x23111961
	GetIoFormat              = 0x23111983
	CanDoIoFormat            = 0x23112004
	CanReportOverload        = 0x24042012
	GetInternalBufferSamples = 0x25042012
	SupportsInputResampling  = 0x26092017
)

// Interface IDs
var (
	IIDIUnknown = [16]byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xC0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x46,
	}
	// {48D0C522-BFCC-45cc-8B84-17F25F33E6E8}
	CLSIDWineASIO = [16]byte{
		0x22, 0xC5, 0xD0, 0x48, 0xCC, 0xBF, 0xCC, 0x45,
		0x8B, 0x84, 0x17, 0xF2, 0x5F, 0x33, 0xE6, 0xE8,
	}
)
