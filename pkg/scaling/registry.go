package scaling

import (
	"fmt"
	"math"

	"hivewatch/pkg/telemetry"
)

// Registry is the immutable set of normalization parameters for both
// modalities, tied together by a shared version token. It is built once at
// startup (or swapped whole on reload) and shared lock-free across workers.
type Registry struct {
	Version string
	Network *Params
	Process *Params
}

// NewRegistry validates both parameter sets and their version agreement.
// Parameters fitted against different training runs must never be mixed.
func NewRegistry(network, process *Params) (*Registry, error) {
	if network == nil || process == nil {
		return nil, fmt.Errorf("%w: missing modality parameters", ErrInvalidScalerParameters)
	}
	if err := network.Validate(); err != nil {
		return nil, err
	}
	if err := process.Validate(); err != nil {
		return nil, err
	}
	if network.Modality != telemetry.ModalityNetwork {
		return nil, fmt.Errorf("%w: network slot holds %q parameters", ErrInvalidScalerParameters, network.Modality)
	}
	if process.Modality != telemetry.ModalityProcess {
		return nil, fmt.Errorf("%w: process slot holds %q parameters", ErrInvalidScalerParameters, process.Modality)
	}
	if network.Version != process.Version {
		return nil, fmt.Errorf("%w: version skew network=%q process=%q",
			ErrInvalidScalerParameters, network.Version, process.Version)
	}
	return &Registry{Version: network.Version, Network: network, Process: process}, nil
}

// ForModality returns the parameters for one modality, nil if unknown.
func (r *Registry) ForModality(m telemetry.Modality) *Params {
	switch m {
	case telemetry.ModalityNetwork:
		return r.Network
	case telemetry.ModalityProcess:
		return r.Process
	default:
		return nil
	}
}

// Fit computes center/scale parameters from a batch of raw feature rows, one
// row per record, columns aligned with featureNames. Center is the mean and
// scale the population standard deviation; a constant column gets unit scale
// so the transform stays defined, matching the training job's scaler.
func Fit(modality telemetry.Modality, version string, featureNames []string, rows [][]float64, categories map[string]map[string]float64) (*Params, error) {
	n := len(featureNames)
	if n == 0 {
		return nil, fmt.Errorf("%w: no features to fit", ErrInvalidScalerParameters)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to fit %s parameters", ErrInvalidScalerParameters, modality)
	}
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrInvalidScalerParameters, i, len(row), n)
		}
	}

	center := make([]float64, n)
	scale := make([]float64, n)
	for _, row := range rows {
		for j, v := range row {
			center[j] += v
		}
	}
	for j := range center {
		center[j] /= float64(len(rows))
	}
	for _, row := range rows {
		for j, v := range row {
			d := v - center[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(len(rows)))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}

	p := &Params{
		Modality:     modality,
		Version:      version,
		FeatureNames: append([]string(nil), featureNames...),
		Center:       center,
		Scale:        scale,
		Categories:   categories,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// FitCategories builds a stable label->code table from observed labels,
// assigning codes in first-seen order. The fallback code for unseen labels
// is len(table), reserved implicitly.
func FitCategories(labels []string) map[string]float64 {
	table := make(map[string]float64)
	next := 0.0
	for _, l := range labels {
		if _, ok := table[l]; !ok {
			table[l] = next
			next++
		}
	}
	return table
}
