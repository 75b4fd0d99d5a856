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
package form

import (
	"fmt"
	"strings"

	"github.com/tessella/tessella/pkg/util"
)

// Argument is a placeholder (test or trial function) in a form, not yet bound
// to data.  Number 0 is the test function, number 1 the trial function.
type Argument struct {
	// Space the argument ranges over.
	Space *Space
	// Number of the argument (0 = test, 1 = trial).
	Number uint
}

// NewArgument constructs an argument over the given space.
func NewArgument(space *Space, number uint) *Argument {
	return &Argument{space, number}
}

// Coefficient is a named data field appearing in a form (a known function
// value).
type Coefficient struct {
	// Name of the coefficient.
	Name string
	// Space the coefficient lives in.
	Space *Space
}

// NewCoefficient constructs a coefficient over the given space.
func NewCoefficient(name string, space *Space) *Coefficient {
	return &Coefficient{name, space}
}

// Subspace is a coefficient-like object representing a reduced-basis or
// transfer-operator space.  It carries its own basis-transformation tensor,
// which the compile pipeline contracts against any argument or coefficient
// projected through it.
type Subspace struct {
	// Name of the subspace.
	Name string
	// Space the subspace is carved out of.
	Space *Space
	// Part selects a single block when the parent space is mixed.
	Part util.Option[uint]
}

// NewSubspace constructs a subspace of the given space.
func NewSubspace(name string, space *Space) *Subspace {
	return &Subspace{name, space, util.None[uint]()}
}

// NewSubspacePart constructs a subspace restricted to one block of a mixed
// space.
func NewSubspacePart(name string, space *Space, part uint) *Subspace {
	return &Subspace{name, space, util.Some(part)}
}

// Element returns the element of the (possibly block-restricted) subspace.
func (p *Subspace) Element() Element {
	if part, ok := p.Part.Get(); ok {
		return p.Space.Elem.Sub[part]
	}
	//
	return p.Space.Elem
}

// Signature returns a structural fingerprint of this subspace.
func (p *Subspace) Signature() string {
	return fmt.Sprintf("%s:%s:%s", p.Name, p.Space.Signature(), p.Part.String())
}

// ============================================================================
// Expressions
// ============================================================================

// Expr is a node in the immutable expression tree of a form integrand.
type Expr interface {
	// sig writes the structural fingerprint of this node.
	sig(builder *strings.Builder)
	// substitute applies an argument replacement map, returning a (possibly
	// shared) replacement tree.
	substitute(mapping map[*Argument]Expr) Expr
	// children returns the operand expressions of this node.
	children() []Expr
}

// Literal is a scalar constant.
type Literal struct {
	Value float64
}

// ArgRef references an argument, optionally restricted to one block of a
// mixed space.
type ArgRef struct {
	Arg *Argument
	// Part selects one block of a mixed space (empty = whole space).
	Part util.Option[uint]
}

// CoeffRef references a coefficient, optionally restricted to one scalar
// sub-component of a mixed coefficient.
type CoeffRef struct {
	Coeff *Coefficient
	// Part selects one component of a mixed coefficient (empty = whole).
	Part util.Option[uint]
}

// Projected marks its operand as living in a reduced subspace: the compile
// pipeline contracts the lowered operand against the subspace's
// basis-transformation tensor.
type Projected struct {
	Operand  Expr
	Subspace *Subspace
}

// Grad is the spatial gradient of its operand.
type Grad struct {
	Operand Expr
}

// Neg negates its operand.
type Neg struct {
	Operand Expr
}

// Inner is the inner product of two operands.
type Inner struct {
	Left  Expr
	Right Expr
}

// Product multiplies two operands.
type Product struct {
	Left  Expr
	Right Expr
}

// Sum adds one or more terms.
type Sum struct {
	Terms []Expr
}

// ============================================================================
// Constructors
// ============================================================================

// NewLiteral constructs a scalar constant.
func NewLiteral(value float64) Expr { return &Literal{value} }

// Ref references the whole of an argument.
func Ref(arg *Argument) Expr { return &ArgRef{arg, util.None[uint]()} }

// RefPart references one block of an argument over a mixed space.
func RefPart(arg *Argument, part uint) Expr { return &ArgRef{arg, util.Some(part)} }

// Coeff references the whole of a coefficient.
func Coeff(c *Coefficient) Expr { return &CoeffRef{c, util.None[uint]()} }

// CoeffPart references one component of a mixed coefficient.
func CoeffPart(c *Coefficient, part uint) Expr { return &CoeffRef{c, util.Some(part)} }

// Project marks an expression as living in a reduced subspace.
func Project(operand Expr, subspace *Subspace) Expr { return &Projected{operand, subspace} }

// GradOf constructs the spatial gradient of an expression.
func GradOf(operand Expr) Expr { return &Grad{operand} }

// Negate constructs the negation of an expression.
func Negate(operand Expr) Expr { return &Neg{operand} }

// InnerOf constructs the inner product of two expressions.
func InnerOf(left, right Expr) Expr { return &Inner{left, right} }

// Mul constructs the product of two expressions.
func Mul(left, right Expr) Expr { return &Product{left, right} }

// Add constructs the sum of one or more expressions.
func Add(terms ...Expr) Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	//
	return &Sum{terms}
}

// ============================================================================
// Structural signatures
// ============================================================================

func (p *Literal) sig(b *strings.Builder) {
	fmt.Fprintf(b, "lit(%g)", p.Value)
}

func (p *ArgRef) sig(b *strings.Builder) {
	fmt.Fprintf(b, "arg(%d,%s,%s)", p.Arg.Number, p.Part.String(), p.Arg.Space.Signature())
}

func (p *CoeffRef) sig(b *strings.Builder) {
	fmt.Fprintf(b, "w(%s,%s,%s)", p.Coeff.Name, p.Part.String(), p.Coeff.Space.Signature())
}

func (p *Projected) sig(b *strings.Builder) {
	fmt.Fprintf(b, "proj[%s](", p.Subspace.Signature())
	p.Operand.sig(b)
	b.WriteString(")")
}

func (p *Grad) sig(b *strings.Builder) {
	b.WriteString("grad(")
	p.Operand.sig(b)
	b.WriteString(")")
}

func (p *Neg) sig(b *strings.Builder) {
	b.WriteString("neg(")
	p.Operand.sig(b)
	b.WriteString(")")
}

func (p *Inner) sig(b *strings.Builder) {
	b.WriteString("inner(")
	p.Left.sig(b)
	b.WriteString(",")
	p.Right.sig(b)
	b.WriteString(")")
}

func (p *Product) sig(b *strings.Builder) {
	b.WriteString("mul(")
	p.Left.sig(b)
	b.WriteString(",")
	p.Right.sig(b)
	b.WriteString(")")
}

func (p *Sum) sig(b *strings.Builder) {
	b.WriteString("add(")
	//
	for i, term := range p.Terms {
		if i != 0 {
			b.WriteString(",")
		}
		//
		term.sig(b)
	}
	//
	b.WriteString(")")
}

// ============================================================================
// Substitution
// ============================================================================

func (p *Literal) substitute(map[*Argument]Expr) Expr { return p }

func (p *ArgRef) substitute(mapping map[*Argument]Expr) Expr {
	replacement, ok := mapping[p.Arg]
	if !ok {
		return p
	}
	// A block-restricted reference to a replaced argument keeps its block.
	if ref, ok := replacement.(*ArgRef); ok && p.Part.HasValue() {
		return &ArgRef{ref.Arg, p.Part}
	}
	//
	return replacement
}

func (p *CoeffRef) substitute(map[*Argument]Expr) Expr { return p }

func (p *Projected) substitute(mapping map[*Argument]Expr) Expr {
	return &Projected{p.Operand.substitute(mapping), p.Subspace}
}

func (p *Grad) substitute(mapping map[*Argument]Expr) Expr {
	return &Grad{p.Operand.substitute(mapping)}
}

func (p *Neg) substitute(mapping map[*Argument]Expr) Expr {
	return &Neg{p.Operand.substitute(mapping)}
}

func (p *Inner) substitute(mapping map[*Argument]Expr) Expr {
	return &Inner{p.Left.substitute(mapping), p.Right.substitute(mapping)}
}

func (p *Product) substitute(mapping map[*Argument]Expr) Expr {
	return &Product{p.Left.substitute(mapping), p.Right.substitute(mapping)}
}

func (p *Sum) substitute(mapping map[*Argument]Expr) Expr {
	terms := make([]Expr, len(p.Terms))
	for i, term := range p.Terms {
		terms[i] = term.substitute(mapping)
	}
	//
	return &Sum{terms}
}

// ============================================================================
// Traversal
// ============================================================================

func (p *Literal) children() []Expr   { return nil }
func (p *ArgRef) children() []Expr    { return nil }
func (p *CoeffRef) children() []Expr  { return nil }
func (p *Projected) children() []Expr { return []Expr{p.Operand} }
func (p *Grad) children() []Expr      { return []Expr{p.Operand} }
func (p *Neg) children() []Expr       { return []Expr{p.Operand} }
func (p *Inner) children() []Expr     { return []Expr{p.Left, p.Right} }
func (p *Product) children() []Expr   { return []Expr{p.Left, p.Right} }
func (p *Sum) children() []Expr       { return p.Terms }

// Walk visits every node of an expression tree in pre-order.
func Walk(expr Expr, visit func(Expr)) {
	visit(expr)
	//
	for _, child := range expr.children() {
		Walk(child, visit)
	}
}
