package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnknownPayload marks an event whose payload matches neither Network nor
// Process. The listener drops such events and keeps consuming.
var ErrUnknownPayload = errors.New("payload matches neither Network nor Process")

// envelope is the inbound wire shape: a header with the capture timestamp and
// a payload keyed by modality name.
type envelope struct {
	Header struct {
		Timestamp float64 `json:"timestamp"`
	} `json:"header"`
	Payload map[string]json.RawMessage `json:"payload"`
}

// Decode turns a raw event value into a typed Record. The device identity
// comes from the message key; an empty key falls back to UnknownDevice.
// Numeric fields absent from the payload decode to zero: that is the
// pipeline's explicit missing-value policy, applied here so every downstream
// consumer sees the same filled record.
func Decode(device string, value []byte) (Record, error) {
	if device == "" {
		device = UnknownDevice
	}

	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	at := epochToTime(env.Header.Timestamp)

	if raw, ok := env.Payload[string(ModalityNetwork)]; ok {
		var rec NetworkRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode network payload: %w", err)
		}
		rec.DeviceName = device
		rec.At = at
		return rec, nil
	}

	if raw, ok := env.Payload[string(ModalityProcess)]; ok {
		var rec ProcessRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode process payload: %w", err)
		}
		rec.DeviceName = device
		rec.At = at
		return rec, nil
	}

	return nil, ErrUnknownPayload
}

func epochToTime(sec float64) time.Time {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}
