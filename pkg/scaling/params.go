package scaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"hivewatch/pkg/telemetry"
)

// ErrInvalidScalerParameters marks a parameter set that fails its load-time
// invariants. The process must refuse to start rather than score with it.
var ErrInvalidScalerParameters = errors.New("invalid scaler parameters")

// Params holds the fitted normalization parameters for one modality: the
// exact feature order seen at training time and the parallel center/scale
// arrays. Read-only after load; never mutated by inference.
type Params struct {
	Modality     telemetry.Modality `json:"modality"`
	Version      string             `json:"version"`
	FeatureNames []string           `json:"feature_names"`
	Center       []float64          `json:"center"`
	Scale        []float64          `json:"scale"`

	// Categories maps a categorical field to its fitted label->code table,
	// e.g. protocol labels. Reused unchanged at inference time.
	Categories map[string]map[string]float64 `json:"categories,omitempty"`
}

// Validate checks the structural invariants. A zero scale entry would mean a
// division by zero on every event, so it is rejected here, at load time.
func (p *Params) Validate() error {
	if p.Modality != telemetry.ModalityNetwork && p.Modality != telemetry.ModalityProcess {
		return fmt.Errorf("%w: unrecognized modality %q", ErrInvalidScalerParameters, p.Modality)
	}
	if p.Version == "" {
		return fmt.Errorf("%w: missing version token", ErrInvalidScalerParameters)
	}
	if len(p.FeatureNames) == 0 {
		return fmt.Errorf("%w: empty feature list", ErrInvalidScalerParameters)
	}
	if len(p.Center) != len(p.FeatureNames) || len(p.Scale) != len(p.FeatureNames) {
		return fmt.Errorf("%w: feature_names=%d center=%d scale=%d",
			ErrInvalidScalerParameters, len(p.FeatureNames), len(p.Center), len(p.Scale))
	}
	for i, s := range p.Scale {
		if s == 0 {
			return fmt.Errorf("%w: zero scale for feature %q", ErrInvalidScalerParameters, p.FeatureNames[i])
		}
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: non-finite scale for feature %q", ErrInvalidScalerParameters, p.FeatureNames[i])
		}
	}
	return nil
}

// Len returns the number of fitted features.
func (p *Params) Len() int { return len(p.FeatureNames) }

// CategoryCode resolves a categorical label to its fitted code. An unseen
// label maps to the deterministic fallback code one past the fitted table,
// never an error: live traffic may always contain labels training never saw.
func (p *Params) CategoryCode(field, label string) float64 {
	table := p.Categories[field]
	if code, ok := table[label]; ok {
		return code
	}
	return float64(len(table))
}

// Load reads and validates a parameter file written by the fit path.
func Load(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler parameters %s: %w", path, err)
	}
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidScalerParameters, path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

// Save writes the parameter file consumed by Load.
func (p *Params) Save(path string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scaler parameters: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write scaler parameters %s: %w", path, err)
	}
	return nil
}
