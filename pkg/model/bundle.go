package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"hivewatch/pkg/scaling"
)

// Manifest ties one training run's artifacts together: the scaler files, the
// two encoders, and the fusion head, all stamped with the same version token.
type Manifest struct {
	Version        string `json:"version"`
	NetworkScaler  string `json:"network_scaler"`
	ProcessScaler  string `json:"process_scaler"`
	NetworkEncoder string `json:"network_encoder"`
	ProcessEncoder string `json:"process_encoder"`
	Fusion         string `json:"fusion"`
}

// FusionHead combines the two latent vectors into one anomaly score. Inputs
// are always ordered network-first, process-second.
type FusionHead struct {
	Version    string  `json:"version"`
	NetworkDim int     `json:"network_dim"`
	ProcessDim int     `json:"process_dim"`
	Net        Network `json:"net"`
}

// Validate checks the fusion head's dimensional invariants: it must accept
// the concatenation of both latent vectors and emit a single sigmoid scalar,
// which is what keeps every score inside [0,1].
func (f *FusionHead) Validate() error {
	if f.NetworkDim <= 0 || f.ProcessDim <= 0 {
		return fmt.Errorf("%w: fusion latent dims %d/%d", ErrInvalidModel, f.NetworkDim, f.ProcessDim)
	}
	if err := f.Net.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	if f.Net.InputDim != f.NetworkDim+f.ProcessDim {
		return fmt.Errorf("%w: fusion input %d != network %d + process %d",
			ErrInvalidModel, f.Net.InputDim, f.NetworkDim, f.ProcessDim)
	}
	if f.Net.OutputDim() != 1 {
		return fmt.Errorf("%w: fusion output dim %d, want 1", ErrInvalidModel, f.Net.OutputDim())
	}
	last := f.Net.Layers[len(f.Net.Layers)-1]
	if last.Activation != "sigmoid" {
		return fmt.Errorf("%w: fusion final activation %q, want sigmoid", ErrInvalidModel, last.Activation)
	}
	return nil
}

// Infer scores one pair of latent vectors.
func (f *FusionHead) Infer(latentNetwork, latentProcess []float64) (float64, error) {
	in := make([]float64, 0, len(latentNetwork)+len(latentProcess))
	in = append(in, latentNetwork...)
	in = append(in, latentProcess...)
	out, err := f.Net.Infer(in)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Bundle is the full inference artifact set loaded once at startup: scaling
// registry, both encoders, fusion head. Immutable after load; reload swaps a
// whole new Bundle, never a piece of one.
type Bundle struct {
	Version        string
	Scaling        *scaling.Registry
	NetworkEncoder *Network
	ProcessEncoder *Network
	Fusion         *FusionHead
}

// LoadBundle reads the manifest in dir and every artifact it references,
// then cross-validates versions and dimensions. Any failure here is fatal
// for startup: running with a partially valid bundle is worse than not
// running at all.
func LoadBundle(dir string) (*Bundle, error) {
	var m Manifest
	if err := readJSON(filepath.Join(dir, "manifest.json"), &m); err != nil {
		return nil, err
	}
	if m.Version == "" {
		return nil, fmt.Errorf("%w: manifest missing version", ErrInvalidModel)
	}

	netParams, err := scaling.Load(filepath.Join(dir, m.NetworkScaler))
	if err != nil {
		return nil, err
	}
	procParams, err := scaling.Load(filepath.Join(dir, m.ProcessScaler))
	if err != nil {
		return nil, err
	}
	reg, err := scaling.NewRegistry(netParams, procParams)
	if err != nil {
		return nil, err
	}
	if reg.Version != m.Version {
		return nil, fmt.Errorf("%w: scaler version %q != manifest %q", scaling.ErrInvalidScalerParameters, reg.Version, m.Version)
	}

	var netEnc, procEnc Network
	if err := readJSON(filepath.Join(dir, m.NetworkEncoder), &netEnc); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, m.ProcessEncoder), &procEnc); err != nil {
		return nil, err
	}
	var fusion FusionHead
	if err := readJSON(filepath.Join(dir, m.Fusion), &fusion); err != nil {
		return nil, err
	}

	b := &Bundle{
		Version:        m.Version,
		Scaling:        reg,
		NetworkEncoder: &netEnc,
		ProcessEncoder: &procEnc,
		Fusion:         &fusion,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate cross-checks every artifact in the bundle against the others.
func (b *Bundle) Validate() error {
	if err := b.NetworkEncoder.Validate(); err != nil {
		return fmt.Errorf("network encoder: %w", err)
	}
	if err := b.ProcessEncoder.Validate(); err != nil {
		return fmt.Errorf("process encoder: %w", err)
	}
	if err := b.Fusion.Validate(); err != nil {
		return err
	}
	for _, v := range []string{b.NetworkEncoder.Version, b.ProcessEncoder.Version, b.Fusion.Version} {
		if v != b.Version {
			return fmt.Errorf("%w: artifact version %q != bundle %q", ErrInvalidModel, v, b.Version)
		}
	}
	if b.NetworkEncoder.InputDim != b.Scaling.Network.Len() {
		return fmt.Errorf("%w: network encoder input %d != fitted features %d",
			ErrInvalidModel, b.NetworkEncoder.InputDim, b.Scaling.Network.Len())
	}
	if b.ProcessEncoder.InputDim != b.Scaling.Process.Len() {
		return fmt.Errorf("%w: process encoder input %d != fitted features %d",
			ErrInvalidModel, b.ProcessEncoder.InputDim, b.Scaling.Process.Len())
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidModel, path, err)
	}
	return nil
}
