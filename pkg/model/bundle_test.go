package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hivewatch/pkg/feature"
	"hivewatch/pkg/scaling"
	"hivewatch/pkg/telemetry"
)

// fixture holds one coherent artifact set that can be mutated per test
// before being written to a temp dir.
type fixture struct {
	manifest   Manifest
	netScaler  *scaling.Params
	procScaler *scaling.Params
	netEnc     *Network
	procEnc    *Network
	fusion     *FusionHead
}

func onesRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = 1
	}
	return row
}

func unitParams(m telemetry.Modality, names []string) *scaling.Params {
	return &scaling.Params{
		Modality:     m,
		Version:      "v1",
		FeatureNames: append([]string(nil), names...),
		Center:       make([]float64, len(names)),
		Scale:        onesRow(len(names)),
	}
}

// pickLayer emits `units` outputs that each copy one input through relu.
func pickLayer(in, units int) Layer {
	w := make([][]float64, units)
	for u := range w {
		w[u] = make([]float64, in)
		w[u][u] = 1
	}
	return Layer{Weights: w, Bias: make([]float64, units), Activation: "relu"}
}

func defaultFixture() *fixture {
	// Fusion weights ignore the network half so a zero network latent and a
	// real one score identically in the placeholder tests.
	fusionWeights := [][]float64{{0, 0, 1, 1, 1}}
	return &fixture{
		manifest: Manifest{
			Version:        "v1",
			NetworkScaler:  "scaler_network.json",
			ProcessScaler:  "scaler_process.json",
			NetworkEncoder: "encoder_network.json",
			ProcessEncoder: "encoder_process.json",
			Fusion:         "fusion.json",
		},
		netScaler:  unitParams(telemetry.ModalityNetwork, feature.NetworkFeatureNames),
		procScaler: unitParams(telemetry.ModalityProcess, feature.ProcessFeatureNames),
		netEnc: &Network{
			Version:  "v1",
			InputDim: len(feature.NetworkFeatureNames),
			Layers:   []Layer{pickLayer(len(feature.NetworkFeatureNames), 2)},
		},
		procEnc: &Network{
			Version:  "v1",
			InputDim: len(feature.ProcessFeatureNames),
			Layers:   []Layer{pickLayer(len(feature.ProcessFeatureNames), 3)},
		},
		fusion: &FusionHead{
			Version:    "v1",
			NetworkDim: 2,
			ProcessDim: 3,
			Net: Network{
				Version:  "v1",
				InputDim: 5,
				Layers:   []Layer{{Weights: fusionWeights, Bias: []float64{0}, Activation: "sigmoid"}},
			},
		},
	}
}

func (f *fixture) write(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "manifest.json"), f.manifest)
	writeJSON(t, filepath.Join(dir, f.manifest.NetworkScaler), f.netScaler)
	writeJSON(t, filepath.Join(dir, f.manifest.ProcessScaler), f.procScaler)
	writeJSON(t, filepath.Join(dir, f.manifest.NetworkEncoder), f.netEnc)
	writeJSON(t, filepath.Join(dir, f.manifest.ProcessEncoder), f.procEnc)
	writeJSON(t, filepath.Join(dir, f.manifest.Fusion), f.fusion)
	return dir
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestLoadBundle_OK(t *testing.T) {
	dir := defaultFixture().write(t)
	b, err := LoadBundle(dir)
	require.NoError(t, err)
	assert.Equal(t, "v1", b.Version)
	assert.Equal(t, "v1", b.Scaling.Version)
	assert.Equal(t, 2, b.NetworkEncoder.OutputDim())
	assert.Equal(t, 3, b.ProcessEncoder.OutputDim())
	assert.Equal(t, 1, b.Fusion.Net.OutputDim())
}

func TestLoadBundle_MissingManifest(t *testing.T) {
	_, err := LoadBundle(t.TempDir())
	require.Error(t, err)
}

func TestLoadBundle_ManifestWithoutVersion(t *testing.T) {
	f := defaultFixture()
	f.manifest.Version = ""
	_, err := LoadBundle(f.write(t))
	require.ErrorIs(t, err, ErrInvalidModel)
}

func TestLoadBundle_ArtifactVersionMismatch(t *testing.T) {
	f := defaultFixture()
	f.netEnc.Version = "v2"
	_, err := LoadBundle(f.write(t))
	require.ErrorIs(t, err, ErrInvalidModel)
}

func TestLoadBundle_ScalerVersionSkew(t *testing.T) {
	f := defaultFixture()
	f.procScaler.Version = "v2"
	_, err := LoadBundle(f.write(t))
	require.ErrorIs(t, err, scaling.ErrInvalidScalerParameters)
}

func TestLoadBundle_ZeroScaleScalerRejected(t *testing.T) {
	f := defaultFixture()
	f.netScaler.Scale[2] = 0
	_, err := LoadBundle(f.write(t))
	require.ErrorIs(t, err, scaling.ErrInvalidScalerParameters)
}

func TestLoadBundle_EncoderScalerDimMismatch(t *testing.T) {
	f := defaultFixture()
	f.netEnc.InputDim = 4
	f.netEnc.Layers = []Layer{pickLayer(4, 2)}
	_, err := LoadBundle(f.write(t))
	require.ErrorIs(t, err, ErrInvalidModel)
}

func TestLoadBundle_FusionFinalActivationMustBeSigmoid(t *testing.T) {
	f := defaultFixture()
	f.fusion.Net.Layers[0].Activation = "linear"
	_, err := LoadBundle(f.write(t))
	require.ErrorIs(t, err, ErrInvalidModel)
}

func TestLoadBundle_FusionInputMustMatchLatentDims(t *testing.T) {
	f := defaultFixture()
	f.fusion.ProcessDim = 4
	_, err := LoadBundle(f.write(t))
	require.ErrorIs(t, err, ErrInvalidModel)
}

func TestNetwork_InferForwardPass(t *testing.T) {
	n := &Network{
		Version:  "v1",
		InputDim: 2,
		Layers: []Layer{
			{Weights: [][]float64{{1, -1}, {2, 0}}, Bias: []float64{0, 1}, Activation: "relu"},
			{Weights: [][]float64{{1, 1}}, Bias: []float64{0}, Activation: "linear"},
		},
	}
	require.NoError(t, n.Validate())
	out, err := n.Infer([]float64{3, 5})
	require.NoError(t, err)
	// Layer 1: relu(3-5)=0, relu(6+1)=7. Layer 2: 0+7.
	require.Len(t, out, 1)
	assert.Equal(t, 7.0, out[0])
}

func TestNetwork_InferWrongInputLength(t *testing.T) {
	n := &Network{Version: "v1", InputDim: 3, Layers: []Layer{pickLayer(3, 1)}}
	_, err := n.Infer([]float64{1})
	require.ErrorIs(t, err, ErrInference)
}

func TestNetwork_ValidateDimensionChain(t *testing.T) {
	n := &Network{
		Version:  "v1",
		InputDim: 2,
		Layers: []Layer{
			pickLayer(2, 2),
			pickLayer(3, 1), // expects 3 inputs, previous layer emits 2
		},
	}
	require.ErrorIs(t, n.Validate(), ErrInvalidModel)
}
