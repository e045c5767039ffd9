// Package activations provides the pointwise activation functions used by the layers.
package activations

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Kind selects an activation function. The set is closed.
type Kind uint8

const (
	Identity Kind = iota
	Sigmoid
	ReLU

	numKinds
)

type funcs struct {
	name string
	// activate computes f(x)
	activate func(x float64) float64
	// fromOutput computes f'(x) given y = f(x)
	fromOutput func(y float64) float64
}

var table = [numKinds]funcs{
	Identity: {
		name:       "identity",
		activate:   func(x float64) float64 { return x },
		fromOutput: func(float64) float64 { return 1 },
	},
	Sigmoid: {
		name:     "sigmoid",
		activate: sigmoid,
		// sigma' = sigma * (1 - sigma)
		fromOutput: func(y float64) float64 { return y * (1 - y) },
	},
	ReLU: {
		name:       "relu",
		activate:   relu,
		fromOutput: reluDeriv,
	},
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// ReLU output is positive exactly where its input was.
func reluDeriv(y float64) float64 {
	if y > 0 {
		return 1
	}
	return 0
}

// Valid reports whether k names a known activation.
func (k Kind) Valid() bool {
	return k < numKinds
}

// Activate computes f(x).
func (k Kind) Activate(x float64) float64 {
	return table[k].activate(x)
}

// DerivativeFromOutput computes f'(x) from the post-activation value y = f(x).
// This holds for the kinds defined here; a new kind whose derivative cannot be
// recovered from its output needs the pre-activation value instead.
func (k Kind) DerivativeFromOutput(y float64) float64 {
	return table[k].fromOutput(y)
}

// ActivateInPlace applies f to every element of x.
func (k Kind) ActivateInPlace(x []float64) {
	f := table[k].activate
	for i, v := range x {
		x[i] = f(v)
	}
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return table[k].name
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("activations: unknown kind %d", uint8(k))
	}
	return []byte(table[k].name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a case-insensitive activation name.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k := Kind(0); k < numKinds; k++ {
		if table[k].name == n {
			return k, nil
		}
	}
	return 0, fmt.Errorf("activations: unknown activation %q", name)
}

// Softmax normalises x in place into a probability distribution.
// The maximum is subtracted before exponentiation, which leaves the result
// unchanged but keeps exp from overflowing.
func Softmax(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}
	maxVal := floats.Max(x)

	sum := 0.0
	for i := range x {
		x[i] = math.Exp(x[i] - maxVal)
		sum += x[i]
	}
	floats.Scale(1/sum, x)
	return x
}
