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
package gen

import (
	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/ir"
	"github.com/tessella/tessella/pkg/util"
)

// Builder is the kernel-builder capability interface offered by a lowering
// backend for one integral batch.  The compile pipeline drives it in a fixed
// order: register external data, lower each integrand, stash the results and
// finally construct the kernel.
type Builder interface {
	// ArgumentMultiIndices returns one multi-index per form argument.
	ArgumentMultiIndices() []ir.MultiIndex
	// DummyMultiIndices returns, parallel to ArgumentMultiIndices, the
	// multi-indices used in place of the real ones for any argument slot
	// whose block is evaluated through a subspace transform.
	DummyMultiIndices() []ir.MultiIndex
	// RegisterExternalData registers the bases of external (subspace) data
	// with the generator, returning their lowered representations.
	RegisterExternalData(elements []form.Element) []ir.Expr
	// CreateElement constructs a basis from a finite-element description.
	CreateElement(element form.Element) *Basis
	// CompileIntegrand lowers an integrand expression given the multi-indices
	// to use for each argument slot (and, beyond those, for each projected
	// coefficient in order of appearance).
	CompileIntegrand(integrand form.Expr, params Parameters, indices []ir.MultiIndex) ([]ir.Expr, error)
	// CoefficientExpr returns the lowered representation of a coefficient, or
	// of one component of a mixed coefficient.
	CoefficientExpr(c *form.Coefficient, part util.Option[uint]) (ir.Expr, error)
	// TransformMatrix returns the basis-transformation tensor of a subspace,
	// given the subspace's registered external data.
	TransformMatrix(subspace *form.Subspace, data ir.Expr) ir.Expr
	// ConstructIntegrals turns lowered expressions into accumulable
	// representations under the given parameters.
	ConstructIntegrals(exprs []ir.Expr, params Parameters) []ir.Expr
	// StashIntegrals accumulates representations into the batch state.
	StashIntegrals(reps []ir.Expr, params Parameters)
	// ConstructKernel finalises the batch into a named kernel.  A batch which
	// produced no executable work yields a nil kernel and no error.
	ConstructKernel(name string, externalNumbers []uint, externalParts [][]uint) (*Kernel, error)
	// ScalarType returns the scalar type the backend generates code for.
	ScalarType() string
}

// BuilderFactory constructs a builder for one integral batch.
type BuilderFactory func(batch *IntegralBatch, scalarType string, diagonal bool) Builder

// Interface is a tagged builder variant.  The name identifies the backend in
// cache keys, so two variants generating different code must carry different
// names.
type Interface struct {
	// Name of the backend.
	Name string
	// New constructs a builder for one integral batch.
	New BuilderFactory
}

// Coffee is the legacy AST-based lowering backend.
var Coffee = &Interface{"coffee", newCoffeeBuilder}

// Loopy is the polyhedral lowering backend, the default.
var Loopy = &Interface{"loopy", newLoopyBuilder}

// Basis is the lowered form of a finite element, exposing the multi-index
// ranging over its local basis functions.
type Basis struct {
	element form.Element
	indices ir.MultiIndex
}

// Indices returns the multi-index ranging over the basis functions of this
// element.
func (p *Basis) Indices() ir.MultiIndex {
	return p.indices
}

// Element returns the finite-element description this basis was built from.
func (p *Basis) Element() form.Element {
	return p.element
}
