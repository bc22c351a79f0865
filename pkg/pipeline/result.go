package pipeline

import (
	"hivewatch/pkg/telemetry"
)

// State is one step of the per-event state machine. Every event starts at
// StateReceived; StateEmitted and StateSuppressed are the terminal states of
// a fully processed event, and a drop records the last state reached.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateNormalized State = "normalized"
	StateScored     State = "scored"
	StateDecided    State = "decided"
	StateEmitted    State = "emitted"
	StateSuppressed State = "suppressed"
)

// Result is the outcome of processing one event. Failures surface here as a
// dropped result with a reason instead of an error crossing the loop
// boundary, so the consuming loop's control flow stays explicit: there is no
// event-level retry, only drop-and-continue.
type Result struct {
	State    State
	Dropped  bool
	Reason   string // decode | unknown_payload | normalize | score | publish
	Err      error
	Device   string
	Modality telemetry.Modality
	Score    float64
	Alert    *AlertEvent
}

// AlertEvent is the outbound alert payload. Ownership passes to the bus on
// publish; the pipeline keeps no reference afterwards.
type AlertEvent struct {
	Device       string             `json:"device"`
	Timestamp    string             `json:"timestamp"` // RFC3339 UTC
	AnomalyScore float64            `json:"anomaly_score"`
	DataType     telemetry.Modality `json:"data_type"`
}
