// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"fmt"

	"github.com/gomlx/dynexport/pkg/dynamo"
)

// Sequential is a Module calling its sub-modules in order, each on the output of the previous one.
// Each sub-module is called with dynamo.CallModule under its name.
type Sequential struct {
	names   []string
	modules []dynamo.Module
}

// NewSequential returns an empty Sequential: populate it with Add.
func NewSequential() *Sequential {
	return &Sequential{}
}

// Add appends a sub-module. If name is empty, its index is used.
func (s *Sequential) Add(name string, module dynamo.Module) *Sequential {
	if name == "" {
		name = fmt.Sprint(len(s.modules))
	}
	s.names = append(s.names, name)
	s.modules = append(s.modules, module)
	return s
}

// Len returns the number of sub-modules.
func (s *Sequential) Len() int { return len(s.modules) }

// Forward implements dynamo.Module.
func (s *Sequential) Forward(inputs ...*dynamo.Tree) *dynamo.Tree {
	for ii, module := range s.modules {
		out := dynamo.CallModule(s.names[ii], module, inputs...)
		inputs = []*dynamo.Tree{out}
	}
	if len(inputs) == 1 {
		return inputs[0]
	}
	return dynamo.Tuple(inputs...)
}
