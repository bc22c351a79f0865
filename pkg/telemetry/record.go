package telemetry

import (
	"time"
)

// Modality identifies which telemetry kind a record carries. The pipeline
// reasons about the two kinds independently until fusion.
type Modality string

const (
	ModalityNetwork Modality = "Network"
	ModalityProcess Modality = "Process"
)

// UnknownDevice is the sentinel device identity used when an event arrives
// without a key. Events are never rejected for a missing identity.
const UnknownDevice = "unknown"

// Record is one telemetry observation, decoded once at the bus boundary into
// a concrete variant. Records are immutable after construction and live only
// for the processing of a single event.
type Record interface {
	Modality() Modality
	Device() string
	Timestamp() time.Time
}

// NetworkRecord is one observed network connection.
type NetworkRecord struct {
	Protocol string  `json:"protocol"`
	SrcIP    string  `json:"src_ip"`
	DestIP   string  `json:"dest_ip"`
	SrcPort  float64 `json:"src_port"`
	DestPort float64 `json:"dest_port"`

	DeviceName string    `json:"-"`
	At         time.Time `json:"-"`
}

func (r NetworkRecord) Modality() Modality   { return ModalityNetwork }
func (r NetworkRecord) Device() string       { return r.DeviceName }
func (r NetworkRecord) Timestamp() time.Time { return r.At }

// ProcessRecord is one process-activity sample. Wire field names follow the
// collector's measurement schema (csw, threadnum, numrunning).
type ProcessRecord struct {
	ProcessID        float64 `json:"process_id"`
	ProcessName      string  `json:"process_name"`
	Path             string  `json:"path"`
	VirtualSize      float64 `json:"virtual_size"`
	ResidentSize     float64 `json:"resident_size"`
	Priority         float64 `json:"priority"`
	SyscallsUnix     float64 `json:"syscalls_unix"`
	SyscallsMach     float64 `json:"syscalls_mach"`
	Faults           float64 `json:"faults"`
	Pageins          float64 `json:"pageins"`
	CowFaults        float64 `json:"cow_faults"`
	MessagesSent     float64 `json:"messages_sent"`
	MessagesReceived float64 `json:"messages_received"`
	ContextSwitches  float64 `json:"csw"`
	ThreadCount      float64 `json:"threadnum"`
	RunningCount     float64 `json:"numrunning"`

	DeviceName string    `json:"-"`
	At         time.Time `json:"-"`
}

func (r ProcessRecord) Modality() Modality   { return ModalityProcess }
func (r ProcessRecord) Device() string       { return r.DeviceName }
func (r ProcessRecord) Timestamp() time.Time { return r.At }
