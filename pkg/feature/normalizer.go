package feature

import (
	"errors"
	"fmt"
	"hash/fnv"

	"hivewatch/pkg/scaling"
	"hivewatch/pkg/telemetry"
)

// ErrSchemaMismatch marks a record missing a feature the fitted schema
// requires, with no fill policy covering it. Structural, never retried.
var ErrSchemaMismatch = errors.New("record does not match fitted feature schema")

// ErrUnknownModality marks a record variant the normalizer has no schema for.
var ErrUnknownModality = errors.New("unknown telemetry modality")

// hashRange bounds identifier hashes so high-cardinality strings land in the
// same numeric domain the scaler was fitted on.
const hashRange = 100_000_000

// Vector is a fixed-length ordered feature vector for one record, tagged
// with the modality that produced it. Its length equals the encoder's
// expected input length for that modality.
type Vector struct {
	Modality telemetry.Modality
	Values   []float64
}

// HashIdentifier maps a high-cardinality identifier (IP address, process
// name, file path) to a stable numeric code: FNV-1a reduced modulo a fixed
// range. The same string always yields the same value, across processes and
// across the training/inference boundary.
func HashIdentifier(s string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum64() % hashRange)
}

// Normalize converts a record into the fixed-length scaled vector the
// modality's encoder expects. Deterministic and side-effect-free: the same
// record and parameters always produce the same vector.
//
// The steps run in a fixed order (categorical encoding, identifier hashing,
// zero fill, reordering to the fitted feature order, then center/scale)
// because training visited features the same way and the vectors must stay
// bit-compatible.
func Normalize(rec telemetry.Record, params *scaling.Params) (Vector, error) {
	if params == nil {
		return Vector{}, fmt.Errorf("%w: no parameters for modality", scaling.ErrInvalidScalerParameters)
	}

	raw, err := rawFeatures(rec, params)
	if err != nil {
		return Vector{}, err
	}

	values := make([]float64, len(params.FeatureNames))
	for i, name := range params.FeatureNames {
		v, ok := raw[name]
		if !ok {
			return Vector{}, fmt.Errorf("%w: %s record has no feature %q", ErrSchemaMismatch, rec.Modality(), name)
		}
		values[i] = (v - params.Center[i]) / params.Scale[i]
	}

	return Vector{Modality: rec.Modality(), Values: values}, nil
}

// rawFeatures produces the unscaled numeric feature map for a record.
// Absent or null fields arrive already zero-filled by the decode step, so
// every schema feature is present here; a name the schema asks for that this
// map lacks means real schema drift, surfaced as ErrSchemaMismatch above.
func rawFeatures(rec telemetry.Record, params *scaling.Params) (map[string]float64, error) {
	switch r := rec.(type) {
	case telemetry.NetworkRecord:
		return map[string]float64{
			"protocol":  params.CategoryCode("protocol", r.Protocol),
			"src_ip":    HashIdentifier(r.SrcIP),
			"dest_ip":   HashIdentifier(r.DestIP),
			"src_port":  r.SrcPort,
			"dest_port": r.DestPort,
		}, nil
	case telemetry.ProcessRecord:
		return map[string]float64{
			"process_id":        r.ProcessID,
			"virtual_size":      r.VirtualSize,
			"resident_size":     r.ResidentSize,
			"priority":          r.Priority,
			"syscalls_unix":     r.SyscallsUnix,
			"syscalls_mach":     r.SyscallsMach,
			"faults":            r.Faults,
			"pageins":           r.Pageins,
			"cow_faults":        r.CowFaults,
			"messages_sent":     r.MessagesSent,
			"messages_received": r.MessagesReceived,
			"csw":               r.ContextSwitches,
			"threadnum":         r.ThreadCount,
			"numrunning":        r.RunningCount,
			"process_name":      HashIdentifier(r.ProcessName),
			"path":              HashIdentifier(r.Path),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownModality, rec)
	}
}
