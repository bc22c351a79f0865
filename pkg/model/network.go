package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidModel marks a model artifact that fails load-time validation.
var ErrInvalidModel = errors.New("invalid model artifact")

// ErrInference marks a failure while running a loaded model on one input.
// Event-local: the offending event is dropped, the pipeline keeps going.
var ErrInference = errors.New("inference failed")

// Layer is one dense layer: out = activation(W*in + b), with weights
// exported offline (batch normalization folded into W and b).
type Layer struct {
	Weights    [][]float64 `json:"weights"` // [out][in]
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"` // relu | sigmoid | linear
}

// Network is a feedforward stack loaded from an artifact file. Read-only
// after load and safe for concurrent Infer calls.
type Network struct {
	Version  string  `json:"version"`
	InputDim int     `json:"input_dim"`
	Layers   []Layer `json:"layers"`
}

// Validate checks that the layer dimensions chain correctly.
func (n *Network) Validate() error {
	if n.InputDim <= 0 {
		return fmt.Errorf("%w: input_dim %d", ErrInvalidModel, n.InputDim)
	}
	if len(n.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidModel)
	}
	in := n.InputDim
	for i, l := range n.Layers {
		if len(l.Weights) == 0 {
			return fmt.Errorf("%w: layer %d has no weights", ErrInvalidModel, i)
		}
		for _, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("%w: layer %d expects %d inputs, weight row has %d", ErrInvalidModel, i, in, len(row))
			}
		}
		if len(l.Bias) != len(l.Weights) {
			return fmt.Errorf("%w: layer %d bias %d != units %d", ErrInvalidModel, i, len(l.Bias), len(l.Weights))
		}
		switch l.Activation {
		case "relu", "sigmoid", "linear":
		default:
			return fmt.Errorf("%w: layer %d unknown activation %q", ErrInvalidModel, i, l.Activation)
		}
		in = len(l.Weights)
	}
	return nil
}

// OutputDim returns the length of the vector Infer produces.
func (n *Network) OutputDim() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return len(n.Layers[len(n.Layers)-1].Weights)
}

// Infer runs the forward pass for one input vector.
func (n *Network) Infer(in []float64) ([]float64, error) {
	if len(in) != n.InputDim {
		return nil, fmt.Errorf("%w: input length %d, want %d", ErrInference, len(in), n.InputDim)
	}
	cur := in
	for i, l := range n.Layers {
		next := make([]float64, len(l.Weights))
		for u, row := range l.Weights {
			sum := l.Bias[u]
			for j, w := range row {
				sum += w * cur[j]
			}
			next[u] = activate(l.Activation, sum)
		}
		for _, v := range next {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite output at layer %d", ErrInference, i)
			}
		}
		cur = next
	}
	return cur, nil
}

func activate(name string, v float64) float64 {
	switch name {
	case "relu":
		if v < 0 {
			return 0
		}
		return v
	case "sigmoid":
		return 1 / (1 + math.Exp(-v))
	default:
		return v
	}
}
