// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package ir provides the tensor-expression intermediate representation
// exchanged with the code generator.  The compile pipeline treats these
// expressions as opaque handles, except that it constructs index-summed
// contractions over them when applying subspace basis transformations.
package ir

import (
	"fmt"
	"strings"
)

// Index is a summation index with a fixed extent.  Indices have pointer
// identity: two indices with the same extent are nonetheless distinct
// summation variables.
type Index struct {
	// Name used when rendering the index.
	name string
	// Extent of the index.
	extent uint
}

// NewIndex constructs a fresh index with the given extent.
func NewIndex(name string, extent uint) *Index {
	return &Index{name, extent}
}

// Extent returns the extent of this index.
func (p *Index) Extent() uint {
	return p.extent
}

func (p *Index) String() string {
	return p.name
}

// MultiIndex is an ordered tuple of indices.
type MultiIndex []*Index

// Concat returns the concatenation of two multi-indices.
func (p MultiIndex) Concat(other MultiIndex) MultiIndex {
	combined := make(MultiIndex, 0, len(p)+len(other))
	combined = append(combined, p...)
	combined = append(combined, other...)
	//
	return combined
}

// Extents returns the extents of the indices in this multi-index.
func (p MultiIndex) Extents() []uint {
	extents := make([]uint, len(p))
	for i, idx := range p {
		extents[i] = idx.extent
	}
	//
	return extents
}

// FreshLike constructs a fresh multi-index with the same extents as this one.
func (p MultiIndex) FreshLike(prefix string) MultiIndex {
	fresh := make(MultiIndex, len(p))
	for i, idx := range p {
		fresh[i] = NewIndex(fmt.Sprintf("%s%d", prefix, i), idx.extent)
	}
	//
	return fresh
}

func (p MultiIndex) String() string {
	names := make([]string, len(p))
	for i, idx := range p {
		names[i] = idx.name
	}
	//
	return strings.Join(names, ",")
}

// ============================================================================
// Expressions
// ============================================================================

// Expr is a node of the tensor-expression graph.
type Expr interface {
	fmt.Stringer
}

// Literal is a scalar constant.
type Literal struct {
	Value float64
}

// Variable is a named tensor of a given shape.
type Variable struct {
	Name  string
	Shape []uint
}

// Indexed selects a scalar entry of a tensor expression.
type Indexed struct {
	Base    Expr
	Indices MultiIndex
}

// Call applies a generator intrinsic (e.g. a pullback or gradient) to its
// arguments.
type Call struct {
	Name string
	Args []Expr
}

// Product multiplies two scalar expressions.
type Product struct {
	Left  Expr
	Right Expr
}

// Sum adds two scalar expressions.
type Sum struct {
	Left  Expr
	Right Expr
}

// IndexSum sums its body over the full extent of the given indices.
type IndexSum struct {
	Body    Expr
	Indices MultiIndex
}

// NewLiteral constructs a scalar constant.
func NewLiteral(value float64) Expr { return &Literal{value} }

// NewVariable constructs a named tensor of the given shape.
func NewVariable(name string, shape ...uint) Expr { return &Variable{name, shape} }

// NewIndexed selects an entry of a tensor expression.
func NewIndexed(base Expr, indices MultiIndex) Expr { return &Indexed{base, indices} }

// NewCall applies a generator intrinsic to the given arguments.
func NewCall(name string, args ...Expr) Expr { return &Call{name, args} }

// NewProduct multiplies two scalar expressions.
func NewProduct(left, right Expr) Expr { return &Product{left, right} }

// NewSum adds two scalar expressions.
func NewSum(left, right Expr) Expr { return &Sum{left, right} }

// NewIndexSum sums an expression over the given indices.  Summing over an
// empty multi-index is the identity.
func NewIndexSum(body Expr, indices MultiIndex) Expr {
	if len(indices) == 0 {
		return body
	}
	//
	return &IndexSum{body, indices}
}

// ============================================================================
// Rendering
// ============================================================================

func (p *Literal) String() string {
	return fmt.Sprintf("%g", p.Value)
}

func (p *Variable) String() string {
	return p.Name
}

func (p *Indexed) String() string {
	return fmt.Sprintf("%s[%s]", p.Base, p.Indices)
}

func (p *Call) String() string {
	args := make([]string, len(p.Args))
	for i, arg := range p.Args {
		args[i] = arg.String()
	}
	//
	return fmt.Sprintf("%s(%s)", p.Name, strings.Join(args, ","))
}

func (p *Product) String() string {
	return fmt.Sprintf("(%s * %s)", p.Left, p.Right)
}

func (p *Sum) String() string {
	return fmt.Sprintf("(%s + %s)", p.Left, p.Right)
}

func (p *IndexSum) String() string {
	return fmt.Sprintf("sum{%s}(%s)", p.Indices, p.Body)
}
