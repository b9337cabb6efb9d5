// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package symbolic implements the small integer algebra used for dynamic dimensions: expressions
// over symbols (one per dynamic input dimension), relations between them, and the ShapeEnv that
// creates symbols and evaluates relations against the example ("hint") values, recording guards.
package symbolic

import (
	"fmt"
	"strconv"

	"github.com/gomlx/exceptions"
)

// ExprOp enumerates the expression node types.
type ExprOp int

const (
	OpConst ExprOp = iota
	OpSymbol
	OpAdd
	OpSub
	OpMul
	OpFloorDiv
)

// Expr is an immutable integer expression.
type Expr struct {
	op    ExprOp
	value int // OpConst only.
	sym   *Symbol
	x, y  *Expr
}

// Symbol is a dynamic dimension, created by ShapeEnv.CreateSymbol.
type Symbol struct {
	// Name is the short name, e.g. "s0".
	Name string

	// Source is how the value is read from the inputs, e.g. "x.size()[0]". Guards are rendered with it.
	Source string

	// Hint is the example value observed during tracing.
	Hint int
}

// Const returns a constant expression.
func Const(v int) Expr { return Expr{op: OpConst, value: v} }

// Sym returns the expression for a symbol.
func Sym(s *Symbol) Expr { return Expr{op: OpSymbol, sym: s} }

func binary(op ExprOp, x, y Expr) Expr {
	if x.IsConst() && y.IsConst() {
		return Const(applyOp(op, x.value, y.value))
	}
	return Expr{op: op, x: &x, y: &y}
}

func applyOp(op ExprOp, a, b int) int {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpFloorDiv:
		if b == 0 {
			exceptions.Panicf("division by zero in symbolic expression")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return q
	}
	exceptions.Panicf("invalid ExprOp %d", op)
	return 0
}

// Add returns x + y, folding constants.
func Add(x, y Expr) Expr { return binary(OpAdd, x, y) }

// Sub returns x - y, folding constants.
func Sub(x, y Expr) Expr { return binary(OpSub, x, y) }

// Mul returns x * y, folding constants.
func Mul(x, y Expr) Expr { return binary(OpMul, x, y) }

// FloorDiv returns x // y, folding constants.
func FloorDiv(x, y Expr) Expr { return binary(OpFloorDiv, x, y) }

// IsConst returns whether the expression is a constant.
func (e Expr) IsConst() bool { return e.op == OpConst }

// ConstValue returns the value of a constant expression, and panics otherwise.
func (e Expr) ConstValue() int {
	if !e.IsConst() {
		exceptions.Panicf("expression %s is not constant", e)
	}
	return e.value
}

// Hint evaluates the expression with every symbol bound to its hint.
func (e Expr) Hint() int {
	return e.Eval(func(s *Symbol) int { return s.Hint })
}

// Eval evaluates the expression with the given symbol bindings.
func (e Expr) Eval(binding func(s *Symbol) int) int {
	switch e.op {
	case OpConst:
		return e.value
	case OpSymbol:
		return binding(e.sym)
	}
	return applyOp(e.op, e.x.Eval(binding), e.y.Eval(binding))
}

// Symbols returns the symbols used by the expression, in order of appearance, without repetition.
func (e Expr) Symbols() []*Symbol {
	var syms []*Symbol
	seen := make(map[*Symbol]bool)
	var walk func(e Expr)
	walk = func(e Expr) {
		switch e.op {
		case OpConst:
		case OpSymbol:
			if !seen[e.sym] {
				seen[e.sym] = true
				syms = append(syms, e.sym)
			}
		default:
			walk(*e.x)
			walk(*e.y)
		}
	}
	walk(e)
	return syms
}

var opSymbols = map[ExprOp]string{OpAdd: "+", OpSub: "-", OpMul: "*", OpFloorDiv: "//"}

func precedence(op ExprOp) int {
	switch op {
	case OpAdd, OpSub:
		return 1
	case OpMul, OpFloorDiv:
		return 2
	}
	return 3
}

func (e Expr) render(nameFn func(s *Symbol) string) string {
	switch e.op {
	case OpConst:
		return strconv.Itoa(e.value)
	case OpSymbol:
		return nameFn(e.sym)
	}
	left := e.x.render(nameFn)
	if precedence(e.x.op) < precedence(e.op) {
		left = "(" + left + ")"
	}
	right := e.y.render(nameFn)
	if precedence(e.y.op) <= precedence(e.op) && e.y.op != OpConst && e.y.op != OpSymbol {
		right = "(" + right + ")"
	}
	return fmt.Sprintf("%s %s %s", left, opSymbols[e.op], right)
}

// String renders the expression with the symbols' short names, e.g. "s0 - 2".
func (e Expr) String() string {
	return e.render(func(s *Symbol) string { return s.Name })
}

// SourceString renders the expression with the symbols' sources, e.g. "x.size()[0] - 2".
func (e Expr) SourceString() string {
	return e.render(func(s *Symbol) string { return s.Source })
}
