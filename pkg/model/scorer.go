package model

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"hivewatch/pkg/feature"
	"hivewatch/pkg/structlog"
	"hivewatch/pkg/telemetry"
)

var scorerDimensionMismatch = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "hivewatch",
		Subsystem: "scorer",
		Name:      "dimension_mismatch_total",
		Help:      "Latent vectors whose length disagreed with the fusion head's expectation.",
	},
)

func init() {
	// Safe register; ignore duplicate registration in case of multiple imports
	_ = prometheus.Register(scorerDimensionMismatch)
}

// Scorer runs one modality's encoder plus the fusion head to produce an
// anomaly score for a single feature vector.
//
// The fusion head always takes both latent vectors, but a live event carries
// exactly one modality. The absent modality is substituted with an all-zero
// latent of the exact expected length. This is a known approximation carried
// over from training, where the fusion head only ever saw one real modality
// at a time in this mode; do not replace the zero placeholder (for example
// with a mean latent) without retraining the fusion head alongside.
type Scorer struct {
	bundle *Bundle
	log    *structlog.Logger
}

// NewScorer wraps a validated bundle.
func NewScorer(b *Bundle, log *structlog.Logger) *Scorer {
	return &Scorer{bundle: b, log: log}
}

// Score returns the anomaly score in [0,1] for one feature vector. It never
// thresholds; deciding what is an alert belongs to the listener.
func (s *Scorer) Score(vec feature.Vector) (float64, error) {
	var latentNetwork, latentProcess []float64

	switch vec.Modality {
	case telemetry.ModalityNetwork:
		lat, err := s.bundle.NetworkEncoder.Infer(vec.Values)
		if err != nil {
			return 0, fmt.Errorf("network encoder: %w", err)
		}
		latentNetwork = lat
		latentProcess = make([]float64, s.bundle.Fusion.ProcessDim)
	case telemetry.ModalityProcess:
		lat, err := s.bundle.ProcessEncoder.Infer(vec.Values)
		if err != nil {
			return 0, fmt.Errorf("process encoder: %w", err)
		}
		latentProcess = lat
		latentNetwork = make([]float64, s.bundle.Fusion.NetworkDim)
	default:
		return 0, fmt.Errorf("%w: %q", feature.ErrUnknownModality, vec.Modality)
	}

	latentNetwork = s.adaptLatent(latentNetwork, s.bundle.Fusion.NetworkDim, telemetry.ModalityNetwork)
	latentProcess = s.adaptLatent(latentProcess, s.bundle.Fusion.ProcessDim, telemetry.ModalityProcess)

	// Fusion inputs are network-first regardless of which side is real.
	score, err := s.bundle.Fusion.Infer(latentNetwork, latentProcess)
	if err != nil {
		return 0, fmt.Errorf("fusion: %w", err)
	}
	return score, nil
}

// adaptLatent is a compatibility shim for version skew between independently
// versioned encoder and fusion artifacts: a too-long latent is truncated, a
// too-short one zero-padded, and either case is logged and counted so the
// skew never passes silently. Truncation is the shim's original contract;
// zero padding the short side is a deliberate extension of it, using the same
// zero value the placeholder latent carries and never fabricated data. Bundle
// validation should make this unreachable; the shim exists to be deleted once
// artifact versioning is airtight.
func (s *Scorer) adaptLatent(latent []float64, want int, m telemetry.Modality) []float64 {
	if len(latent) == want {
		return latent
	}
	scorerDimensionMismatch.Inc()
	s.log.Warn("latent dimension mismatch, adapting", structlog.Fields{
		"modality": string(m),
		"got":      len(latent),
		"want":     want,
		"bundle":   s.bundle.Version,
	})
	if len(latent) > want {
		return latent[:want]
	}
	padded := make([]float64, want)
	copy(padded, latent)
	return padded
}
