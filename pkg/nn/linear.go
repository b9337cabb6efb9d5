// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/dynexport/pkg/core/tensors"
	"github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/gomlx/gopjrt/dtypes"
)

// Linear is a Module performing a linear transformation followed by an optional activation:
// activation(x @ weight^T + bias).
//
// Weight has shape [out_features, in_features]. Bias is optional (nil means no bias).
type Linear struct {
	Weight, Bias *tensors.Tensor
	Activation   Activation
}

// NewLinear creates a Linear with weights and bias uniformly initialized in ±1/sqrt(inFeatures),
// deterministically from seed.
func NewLinear(inFeatures, outFeatures int, seed uint64) *Linear {
	rng := rand.New(rand.NewPCG(seed, 0x5eed))
	limit := 1 / math.Sqrt(float64(inFeatures))
	uniform := func(n int) []float64 {
		values := make([]float64, n)
		for ii := range values {
			values[ii] = (2*rng.Float64() - 1) * limit
		}
		return values
	}
	return &Linear{
		Weight: tensors.FromFlat(dtypes.Float32, uniform(outFeatures*inFeatures), outFeatures, inFeatures),
		Bias:   tensors.FromFlat(dtypes.Float32, uniform(outFeatures), outFeatures),
	}
}

// WithActivation sets the activation applied after the linear transformation.
func (l *Linear) WithActivation(activation Activation) *Linear {
	l.Activation = activation
	return l
}

// Apply the layer to x. During an export the weight and bias are read as graph attributes.
func (l *Linear) Apply(x dynamo.Value) dynamo.Value {
	weight := dynamo.Parameter(x, "weight", l.Weight)
	bias := dynamo.None()
	if l.Bias != nil {
		bias = dynamo.Parameter(x, "bias", l.Bias)
	}
	return l.Activation.Apply(dynamo.Linear(x, weight, bias))
}

// Forward implements dynamo.Module: it takes one tensor.
func (l *Linear) Forward(inputs ...*dynamo.Tree) *dynamo.Tree {
	return dynamo.Leaf(l.Apply(singleInput("Linear", inputs)))
}
