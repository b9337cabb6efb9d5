// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"strings"

	"github.com/gomlx/dynexport/pkg/dynamo"
	"github.com/pkg/errors"
)

// Activation is an enum of the supported activation functions.
type Activation int

const (
	ActivationNone Activation = iota
	ActivationRelu
	ActivationSin
	ActivationCos
)

var activationNames = []string{"none", "relu", "sin", "cos"}

// String implements fmt.Stringer.
func (a Activation) String() string {
	if int(a) < 0 || int(a) >= len(activationNames) {
		return "unknown"
	}
	return activationNames[a]
}

// ActivationFromName converts a name (case-insensitive) like "relu" to the activation type.
func ActivationFromName(name string) (Activation, error) {
	name = strings.ToLower(name)
	for ii, activationName := range activationNames {
		if name == activationName {
			return Activation(ii), nil
		}
	}
	return ActivationNone, errors.Errorf("unknown activation %q, valid values are %q", name, activationNames)
}

// Apply the activation to x.
func (a Activation) Apply(x dynamo.Value) dynamo.Value {
	switch a {
	case ActivationNone:
		return x
	case ActivationRelu:
		return dynamo.Relu(x)
	case ActivationSin:
		return dynamo.Sin(x)
	case ActivationCos:
		return dynamo.Cos(x)
	}
	panic(errors.Errorf("nn: unsupported activation %d", int(a)))
}

// Activations is a Module applying a sequence of activations.
type Activations []Activation

// Forward implements dynamo.Module: it takes one tensor.
func (as Activations) Forward(inputs ...*dynamo.Tree) *dynamo.Tree {
	x := singleInput("Activations", inputs)
	for _, a := range as {
		x = a.Apply(x)
	}
	return dynamo.Leaf(x)
}

// singleInput returns the value of the only input of a module, which must be a leaf.
func singleInput(module string, inputs []*dynamo.Tree) dynamo.Value {
	if len(inputs) != 1 || inputs[0] == nil || !inputs[0].IsLeaf() {
		panic(errors.Errorf("nn.%s takes a single value as input, got %d inputs", module, len(inputs)))
	}
	return inputs[0].Value()
}
