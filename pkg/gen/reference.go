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
	"fmt"
	"sort"
	"strings"

	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/ir"
	"github.com/tessella/tessella/pkg/util"
)

// kernelBuilder is the reference lowering backend.  It implements the Builder
// capability interface over the in-memory tensor representation, which is
// sufficient to drive the compile pipeline end-to-end.  The coffee and loopy
// variants differ only in the code they emit; both share this lowering core.
type kernelBuilder struct {
	backend    string
	batch      *IntegralBatch
	scalarType string
	diagonal   bool
	// One multi-index per form argument, plus dummy counterparts used for
	// subspace-transformed argument slots.
	argIndices   []ir.MultiIndex
	dummyIndices []ir.MultiIndex
	// Accumulated batch state.
	stash []ir.Expr
	// Local numbers of coefficients read so far.
	used map[uint]bool
	// Set once a gradient is lowered; gradients require orientation data for
	// pullback on embedded manifolds.
	oriented bool
	// Counter for fresh basis names.
	fresh uint
}

func newCoffeeBuilder(batch *IntegralBatch, scalarType string, diagonal bool) Builder {
	return newKernelBuilder("coffee", batch, scalarType, diagonal)
}

func newLoopyBuilder(batch *IntegralBatch, scalarType string, diagonal bool) Builder {
	return newKernelBuilder("loopy", batch, scalarType, diagonal)
}

func newKernelBuilder(backend string, batch *IntegralBatch, scalarType string, diagonal bool) Builder {
	var (
		nargs        = len(batch.Arguments)
		argIndices   = make([]ir.MultiIndex, nargs)
		dummyIndices = make([]ir.MultiIndex, nargs)
	)
	//
	for n, arg := range batch.Arguments {
		extent := arg.Space.Elem.NumBasisFunctions()
		argIndices[n] = ir.MultiIndex{ir.NewIndex(fmt.Sprintf("j%d", n), extent)}
		dummyIndices[n] = argIndices[n].FreshLike(fmt.Sprintf("jd%d_", n))
	}
	//
	return &kernelBuilder{
		backend:      backend,
		batch:        batch,
		scalarType:   scalarType,
		diagonal:     diagonal,
		argIndices:   argIndices,
		dummyIndices: dummyIndices,
		used:         make(map[uint]bool),
	}
}

// ArgumentMultiIndices returns one multi-index per form argument.
func (p *kernelBuilder) ArgumentMultiIndices() []ir.MultiIndex {
	return p.argIndices
}

// DummyMultiIndices returns the dummy counterparts of the argument
// multi-indices.
func (p *kernelBuilder) DummyMultiIndices() []ir.MultiIndex {
	return p.dummyIndices
}

// RegisterExternalData registers subspace bases, returning one lowered tensor
// per element.
func (p *kernelBuilder) RegisterExternalData(elements []form.Element) []ir.Expr {
	exprs := make([]ir.Expr, len(elements))
	//
	for i, element := range elements {
		n := element.NumBasisFunctions()
		exprs[i] = ir.NewVariable(fmt.Sprintf("ext%d", i), n, n)
	}
	//
	return exprs
}

// CreateElement constructs a basis from a finite-element description.
func (p *kernelBuilder) CreateElement(element form.Element) *Basis {
	index := ir.NewIndex(fmt.Sprintf("e%d", p.fresh), element.NumBasisFunctions())
	p.fresh++
	//
	return &Basis{element, ir.MultiIndex{index}}
}

// CompileIntegrand lowers an integrand into tensor-expression form.
func (p *kernelBuilder) CompileIntegrand(integrand form.Expr, params Parameters,
	indices []ir.MultiIndex) ([]ir.Expr, error) {
	var projected uint
	//
	expr, err := p.lower(integrand, indices, &projected)
	if err != nil {
		return nil, err
	}
	//
	return []ir.Expr{expr}, nil
}

func (p *kernelBuilder) lower(e form.Expr, indices []ir.MultiIndex, projected *uint) (ir.Expr, error) {
	switch e := e.(type) {
	case *form.Literal:
		return ir.NewLiteral(e.Value), nil
	case *form.ArgRef:
		n := e.Arg.Number
		//
		if int(n) >= len(indices) {
			return nil, fmt.Errorf("argument %d has no multi-index", n)
		}
		//
		basis := ir.NewVariable(fmt.Sprintf("phi%d", n), e.Arg.Space.Elem.NumBasisFunctions())
		//
		return ir.NewIndexed(basis, indices[n]), nil
	case *form.CoeffRef:
		return p.CoefficientExpr(e.Coeff, e.Part)
	case *form.Projected:
		return p.lowerProjected(e, indices, projected)
	case *form.Grad:
		operand, err := p.lower(e.Operand, indices, projected)
		if err != nil {
			return nil, err
		}
		// Gradient pullback needs cell orientations on embedded manifolds.
		p.oriented = true
		//
		return ir.NewCall("grad", operand), nil
	case *form.Neg:
		operand, err := p.lower(e.Operand, indices, projected)
		if err != nil {
			return nil, err
		}
		//
		return ir.NewProduct(ir.NewLiteral(-1), operand), nil
	case *form.Inner:
		left, err := p.lower(e.Left, indices, projected)
		if err != nil {
			return nil, err
		}
		//
		right, err := p.lower(e.Right, indices, projected)
		if err != nil {
			return nil, err
		}
		//
		return ir.NewCall("inner", left, right), nil
	case *form.Product:
		left, err := p.lower(e.Left, indices, projected)
		if err != nil {
			return nil, err
		}
		//
		right, err := p.lower(e.Right, indices, projected)
		if err != nil {
			return nil, err
		}
		//
		return ir.NewProduct(left, right), nil
	case *form.Sum:
		var sum ir.Expr
		//
		for _, term := range e.Terms {
			lowered, err := p.lower(term, indices, projected)
			if err != nil {
				return nil, err
			}
			//
			if sum == nil {
				sum = lowered
			} else {
				sum = ir.NewSum(sum, lowered)
			}
		}
		//
		if sum == nil {
			sum = ir.NewLiteral(0)
		}
		//
		return sum, nil
	default:
		return nil, fmt.Errorf("cannot lower expression of type %T", e)
	}
}

// lowerProjected handles subspace-projected operands.  A projected argument
// lowers as the argument itself (the driver contracts it against the
// transform tensor using the dummy index it installed for that slot).  A
// projected coefficient lowers as an external basis over the next extra
// multi-index; the driver contracts the coefficient data back in.
func (p *kernelBuilder) lowerProjected(e *form.Projected, indices []ir.MultiIndex,
	projected *uint) (ir.Expr, error) {
	switch operand := e.Operand.(type) {
	case *form.ArgRef:
		return p.lower(operand, indices, projected)
	case *form.CoeffRef:
		slot := len(p.argIndices) + int(*projected)
		*projected++
		//
		if slot >= len(indices) {
			return nil, fmt.Errorf("no multi-index for projected coefficient \"%s\"", operand.Coeff.Name)
		}
		// Mark the coefficient as read; its data enters through the driver's
		// contraction rather than directly here.
		if _, err := p.CoefficientExpr(operand.Coeff, operand.Part); err != nil {
			return nil, err
		}
		//
		basis := ir.NewVariable(fmt.Sprintf("ext_phi%d", slot-len(p.argIndices)),
			e.Subspace.Element().NumBasisFunctions())
		//
		return ir.NewIndexed(basis, indices[slot]), nil
	default:
		return nil, fmt.Errorf("cannot project expression of type %T through subspace \"%s\"",
			e.Operand, e.Subspace.Name)
	}
}

// CoefficientExpr returns the lowered representation of a coefficient, or of
// one component of a mixed coefficient.
func (p *kernelBuilder) CoefficientExpr(c *form.Coefficient, part util.Option[uint]) (ir.Expr, error) {
	number, ok := p.batch.LocalNumber(c)
	if !ok {
		return nil, fmt.Errorf("coefficient \"%s\" does not belong to this form", c.Name)
	}
	//
	p.used[number] = true
	//
	if component, ok := part.Get(); ok {
		if !c.Space.IsMixed() {
			return nil, fmt.Errorf("coefficient \"%s\" is not mixed but component %d requested", c.Name, component)
		}
		//
		element := c.Space.Elem.Sub[component]
		//
		return ir.NewVariable(fmt.Sprintf("w%d_%d", number, component), element.NumBasisFunctions()), nil
	}
	//
	return ir.NewVariable(fmt.Sprintf("w%d", number), c.Space.Elem.NumBasisFunctions()), nil
}

// TransformMatrix returns the basis-transformation tensor of a subspace.
func (p *kernelBuilder) TransformMatrix(subspace *form.Subspace, data ir.Expr) ir.Expr {
	return ir.NewCall(fmt.Sprintf("transform_%s", subspace.Name), data)
}

// ConstructIntegrals turns lowered expressions into accumulable
// representations, discarding trivially zero ones.
func (p *kernelBuilder) ConstructIntegrals(exprs []ir.Expr, params Parameters) []ir.Expr {
	var reps []ir.Expr
	//
	for _, expr := range exprs {
		if literal, ok := expr.(*ir.Literal); ok && literal.Value == 0 {
			continue
		}
		//
		reps = append(reps, expr)
	}
	//
	return reps
}

// StashIntegrals accumulates representations into the batch state.
func (p *kernelBuilder) StashIntegrals(reps []ir.Expr, params Parameters) {
	p.stash = append(p.stash, reps...)
}

// ConstructKernel finalises the batch into a named kernel, or nil if the
// batch produced no executable work.
func (p *kernelBuilder) ConstructKernel(name string, externalNumbers []uint,
	externalParts [][]uint) (*Kernel, error) {
	if len(p.stash) == 0 {
		return nil, nil
	}
	//
	coefficients := make([]uint, 0, len(p.used))
	for number := range p.used {
		coefficients = append(coefficients, number)
	}
	//
	sort.Slice(coefficients, func(i, j int) bool { return coefficients[i] < coefficients[j] })
	//
	var code strings.Builder
	fmt.Fprintf(&code, "// %s kernel (%s)\n", p.backend, p.scalarType)
	fmt.Fprintf(&code, "void %s(%s *A) {\n", name, p.scalarType)
	//
	for _, rep := range p.stash {
		fmt.Fprintf(&code, "  A[0] += %s;\n", rep)
	}
	//
	code.WriteString("}\n")
	//
	return &Kernel{
		Name:                name,
		Backend:             p.backend,
		IntegralType:        p.batch.Type,
		Subdomain:           p.batch.Subdomain,
		DomainNumber:        p.batch.DomainNumber,
		Oriented:            p.oriented,
		CoefficientNumbers:  coefficients,
		ExternalDataNumbers: externalNumbers,
		ExternalDataParts:   externalParts,
		NeedsCellSizes:      false,
		Code:                code.String(),
	}, nil
}

// ScalarType returns the scalar type the backend generates code for.
func (p *kernelBuilder) ScalarType() string {
	return p.scalarType
}
