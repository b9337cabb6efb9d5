// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// RelOp enumerates the comparison relations.
type RelOp int

const (
	LT RelOp = iota
	LE
	GT
	GE
	EQ
	NE
)

var relSymbols = []string{"<", "<=", ">", ">=", "==", "!="}

// String implements fmt.Stringer.
func (op RelOp) String() string { return relSymbols[op] }

// Negate returns the relation that holds when op doesn't.
func (op RelOp) Negate() RelOp {
	switch op {
	case LT:
		return GE
	case LE:
		return GT
	case GT:
		return LE
	case GE:
		return LT
	case EQ:
		return NE
	}
	return EQ
}

// Apply evaluates the relation on two integers.
func (op RelOp) Apply(a, b int) bool {
	switch op {
	case LT:
		return a < b
	case LE:
		return a <= b
	case GT:
		return a > b
	case GE:
		return a >= b
	case EQ:
		return a == b
	case NE:
		return a != b
	}
	exceptions.Panicf("invalid RelOp %d", op)
	return false
}

// Relation is a comparison between two expressions.
type Relation struct {
	Op   RelOp
	X, Y Expr
}

// Negate returns the complementary relation.
func (r Relation) Negate() Relation { return Relation{Op: r.Op.Negate(), X: r.X, Y: r.Y} }

// String renders the relation with the symbols' short names.
func (r Relation) String() string { return fmt.Sprintf("%s %s %s", r.X, r.Op, r.Y) }

// SourceString renders the relation with the symbols' sources, e.g. "x.size()[0] <= 10".
func (r Relation) SourceString() string {
	return fmt.Sprintf("%s %s %s", r.X.SourceString(), r.Op, r.Y.SourceString())
}

// Eval evaluates the relation with the given bindings.
func (r Relation) Eval(binding func(s *Symbol) int) bool {
	return r.Op.Apply(r.X.Eval(binding), r.Y.Eval(binding))
}

// ShapeEnv owns the symbols of one trace, and records the relations that the trace depends on.
//
// It is not safe for concurrent use: one ShapeEnv belongs to one export.
type ShapeEnv struct {
	symbols []*Symbol

	// OnGuard is called with every relation the trace took a decision on (the relation that held).
	OnGuard func(r Relation)
}

// NewShapeEnv creates an empty ShapeEnv.
func NewShapeEnv() *ShapeEnv {
	return &ShapeEnv{}
}

// CreateSymbol returns the expression for a dynamic dimension read from source, with the example value hint.
//
// Dimensions 0 and 1 are specialized to constants: they commonly change the semantics of operations
// (broadcasting, empty loops), so they can't be treated as generic sizes.
func (env *ShapeEnv) CreateSymbol(source string, hint int) Expr {
	if hint < 0 {
		exceptions.Panicf("invalid negative dimension %d for %q", hint, source)
	}
	if hint <= 1 {
		return Const(hint)
	}
	s := &Symbol{Name: fmt.Sprintf("s%d", len(env.symbols)), Source: source, Hint: hint}
	env.symbols = append(env.symbols, s)
	return Sym(s)
}

// Symbols returns the symbols created so far.
func (env *ShapeEnv) Symbols() []*Symbol { return env.symbols }

// Evaluate decides the relation using the symbols' hints, and reports the relation that holds
// (r or its negation) to OnGuard. Relations between constants are decided without a guard.
func (env *ShapeEnv) Evaluate(r Relation) bool {
	result := r.Eval(func(s *Symbol) int { return s.Hint })
	if r.X.IsConst() && r.Y.IsConst() {
		return result
	}
	holding := r
	if !result {
		holding = r.Negate()
	}
	if env.OnGuard != nil {
		env.OnGuard(holding)
	}
	return result
}

// Specialize returns the hint value of e, recording the guard "e == hint" if e is not constant.
func (env *ShapeEnv) Specialize(e Expr) int {
	if e.IsConst() {
		return e.ConstValue()
	}
	v := e.Hint()
	env.Evaluate(Relation{Op: EQ, X: e, Y: Const(v)})
	return v
}
