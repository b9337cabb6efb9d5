// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sets holds a read-mostly set of comparable values, used for fixed membership tables
// such as the operators whose output shape follows the broadcast of their inputs.
package sets

// Set of values of type T.
type Set[T comparable] map[T]struct{}

// MakeWith returns a Set holding the given elements. Repeated elements are stored once.
func MakeWith[T comparable](elements ...T) Set[T] {
	s := make(Set[T], len(elements))
	for _, element := range elements {
		s[element] = struct{}{}
	}
	return s
}

// Has returns whether element is in s. A nil Set has no elements.
func (s Set[T]) Has(element T) bool {
	_, found := s[element]
	return found
}
