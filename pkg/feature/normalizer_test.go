package feature

import (
	"errors"
	"math"
	"testing"
	"time"

	"hivewatch/pkg/scaling"
	"hivewatch/pkg/telemetry"
)

func networkParams() *scaling.Params {
	return &scaling.Params{
		Modality:     telemetry.ModalityNetwork,
		Version:      "v1",
		FeatureNames: []string{"protocol", "src_ip", "dest_ip", "src_port", "dest_port"},
		Center:       []float64{1, 50_000_000, 50_000_000, 30_000, 30_000},
		Scale:        []float64{0.5, 25_000_000, 25_000_000, 15_000, 15_000},
		Categories:   map[string]map[string]float64{"protocol": {"TCP": 0, "UDP": 1, "ICMP": 2}},
	}
}

func processParams() *scaling.Params {
	names := append([]string(nil), ProcessFeatureNames...)
	center := make([]float64, len(names))
	scale := make([]float64, len(names))
	for i := range scale {
		center[i] = 10
		scale[i] = 2
	}
	return &scaling.Params{
		Modality:     telemetry.ModalityProcess,
		Version:      "v1",
		FeatureNames: names,
		Center:       center,
		Scale:        scale,
	}
}

func TestHashIdentifier_Deterministic(t *testing.T) {
	a := HashIdentifier("10.0.0.5")
	b := HashIdentifier("10.0.0.5")
	if a != b {
		t.Fatalf("hash not deterministic: %v != %v", a, b)
	}
	if a < 0 || a >= 100_000_000 {
		t.Fatalf("hash out of range: %v", a)
	}
	if HashIdentifier("10.0.0.5") == HashIdentifier("10.0.0.6") {
		t.Error("distinct identifiers should rarely collide in a 1e8 range")
	}
}

func TestNormalize_NetworkVector(t *testing.T) {
	params := networkParams()
	rec := telemetry.NetworkRecord{
		Protocol:   "TCP",
		SrcIP:      "10.0.0.5",
		DestIP:     "10.0.0.9",
		SrcPort:    443,
		DestPort:   51000,
		DeviceName: "honeypot-1",
		At:         time.Unix(1700000000, 0).UTC(),
	}

	vec, err := Normalize(rec, params)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if vec.Modality != telemetry.ModalityNetwork {
		t.Errorf("modality = %q, want Network", vec.Modality)
	}
	if len(vec.Values) != 5 {
		t.Fatalf("vector length = %d, want 5", len(vec.Values))
	}

	raw := []float64{0, HashIdentifier("10.0.0.5"), HashIdentifier("10.0.0.9"), 443, 51000}
	for i := range raw {
		want := (raw[i] - params.Center[i]) / params.Scale[i]
		if math.Abs(vec.Values[i]-want) > 1e-12 {
			t.Errorf("values[%d] = %v, want %v (%s)", i, vec.Values[i], want, params.FeatureNames[i])
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	params := networkParams()
	rec := telemetry.NetworkRecord{Protocol: "UDP", SrcIP: "a", DestIP: "b", SrcPort: 1, DestPort: 2}
	v1, err := Normalize(rec, params)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	v2, err := Normalize(rec, params)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	for i := range v1.Values {
		if v1.Values[i] != v2.Values[i] {
			t.Fatalf("values[%d] differ across runs: %v != %v", i, v1.Values[i], v2.Values[i])
		}
	}
}

func TestNormalize_MissingOptionalFieldsFillZero(t *testing.T) {
	// A process record with most fields absent (zero) must normalize, not
	// fail with a schema mismatch.
	rec := telemetry.ProcessRecord{ProcessID: 7, ProcessName: "sshd"}
	params := processParams()

	vec, err := Normalize(rec, params)
	if err != nil {
		t.Fatalf("Normalize failed on sparse record: %v", err)
	}
	if len(vec.Values) != len(ProcessFeatureNames) {
		t.Fatalf("vector length = %d, want %d", len(vec.Values), len(ProcessFeatureNames))
	}
	// virtual_size is absent: raw 0 scaled by (0-10)/2.
	if vec.Values[1] != -5 {
		t.Errorf("absent field scaled = %v, want -5", vec.Values[1])
	}
}

func TestNormalize_UnseenProtocolFallback(t *testing.T) {
	params := networkParams()
	rec := telemetry.NetworkRecord{Protocol: "SCTP", SrcIP: "a", DestIP: "b"}
	vec, err := Normalize(rec, params)
	if err != nil {
		t.Fatalf("unseen protocol must not fail: %v", err)
	}
	// Fallback code is len(table) = 3, scaled by fitted params.
	want := (3 - params.Center[0]) / params.Scale[0]
	if vec.Values[0] != want {
		t.Errorf("fallback protocol value = %v, want %v", vec.Values[0], want)
	}
}

func TestNormalize_SchemaMismatch(t *testing.T) {
	params := networkParams()
	params.FeatureNames = append([]string(nil), params.FeatureNames...)
	params.FeatureNames[4] = "ttl" // fitted schema drifted ahead of the record shape
	rec := telemetry.NetworkRecord{Protocol: "TCP"}
	_, err := Normalize(rec, params)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

type bogusRecord struct{}

func (bogusRecord) Modality() telemetry.Modality { return "Disk" }
func (bogusRecord) Device() string               { return "dev" }
func (bogusRecord) Timestamp() time.Time         { return time.Time{} }

func TestNormalize_UnknownModality(t *testing.T) {
	_, err := Normalize(bogusRecord{}, networkParams())
	if !errors.Is(err, ErrUnknownModality) {
		t.Fatalf("expected ErrUnknownModality, got %v", err)
	}
}

func TestNormalize_NilParams(t *testing.T) {
	_, err := Normalize(telemetry.NetworkRecord{}, nil)
	if !errors.Is(err, scaling.ErrInvalidScalerParameters) {
		t.Fatalf("expected ErrInvalidScalerParameters, got %v", err)
	}
}
