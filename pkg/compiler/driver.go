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
package compiler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/gen"
	"github.com/tessella/tessella/pkg/ir"
	"github.com/tessella/tessella/pkg/util"
)

// compileLocalForm lowers one (sub-)form into kernels, one per integral
// batch.  Errors from the code generator propagate unmodified; callers must
// only publish cache entries when the whole form succeeded.
func compileLocalForm(f *form.Form, prefix string, params gen.Parameters, iface *gen.Interface,
	coffee bool, diagonal bool) ([]*gen.Kernel, error) {
	start := time.Now()
	// An unset interface at this point is a configuration error.
	if iface == nil || iface.New == nil {
		return nil, fmt.Errorf("no kernel builder interface selected")
	}
	//
	formData, err := gen.ComputeFormData(f, isComplex(params))
	if err != nil {
		return nil, err
	}
	//
	log.Debugf("compute_form_data finished in %g seconds", time.Since(start).Seconds())
	//
	var kernels []*gen.Kernel
	//
	for _, batch := range formData.Batches {
		kernel, err := compileBatch(batch, f, prefix, params, iface, coffee, diagonal)
		if err != nil {
			return nil, err
		}
		// A batch with no executable work yields no kernel.
		if kernel != nil {
			kernels = append(kernels, kernel)
		}
	}
	//
	log.Debugf("kernel generation for \"%s\" finished in %g seconds", prefix, time.Since(start).Seconds())
	//
	return kernels, nil
}

// compileBatch lowers one integral batch into a single kernel (or nil when
// the batch produces no executable work).
func compileBatch(batch *gen.IntegralBatch, f *form.Form, prefix string, params gen.Parameters,
	iface *gen.Interface, coffee bool, diagonal bool) (*gen.Kernel, error) {
	var (
		start   = time.Now()
		builder = iface.New(batch, scalarTypeOf(params, coffee), diagonal)
		//
		argIndices   = builder.ArgumentMultiIndices()
		dummyIndices = builder.DummyMultiIndices()
		nargs        = len(argIndices)
	)
	// Collect the distinct subspaces referenced anywhere in the batch and
	// assign each a stable local number.
	subspaces, numbers, parts := subspaceNumbersAndParts(batchSubspaces(batch), f.Subspaces())
	// Lower each active subspace's basis.
	elements := make([]form.Element, len(subspaces))
	for i, subspace := range subspaces {
		elements[i] = subspace.Element()
	}
	//
	var (
		lowered      = builder.RegisterExternalData(elements)
		subspaceExpr = make(map[*form.Subspace]ir.Expr, len(subspaces))
	)
	//
	for i, subspace := range subspaces {
		subspaceExpr[subspace] = lowered[i]
	}
	//
	for _, integral := range batch.Integrals {
		if err := compileIntegral(integral, builder, params, nargs,
			argIndices, dummyIndices, subspaceExpr); err != nil {
			return nil, err
		}
	}
	// Negative subdomain markers must not leak into identifiers.
	name := fmt.Sprintf("%s_%s_integral_%s", prefix, batch.Type, batch.Subdomain)
	name = strings.ReplaceAll(name, "-", "_")
	//
	kernel, err := builder.ConstructKernel(name, numbers, parts)
	if err != nil {
		return nil, err
	}
	//
	log.Debugf("compile_integral finished in %g seconds", time.Since(start).Seconds())
	//
	return kernel, nil
}

// compileIntegral lowers one integral into the batch state, applying subspace
// basis transformations where argument slots or coefficients live in reduced
// subspaces.
func compileIntegral(integral form.Integral, builder gen.Builder, params gen.Parameters,
	nargs int, argIndices []ir.MultiIndex, dummyIndices []ir.MultiIndex,
	subspaceExpr map[*form.Subspace]ir.Expr) error {
	// Integral metadata overrides batch-wide parameters.
	iparams := params.Copy()
	for k, v := range integral.Metadata {
		iparams[k] = v
	}
	//
	var (
		argSubspaces = argumentSubspaces(integral, nargs)
		projected    = projectedCoefficients(integral)
		indices      = make([]ir.MultiIndex, 0, nargs+len(projected))
	)
	// Argument slots evaluated through a subspace use the dummy index; the
	// transform contraction below sums it back out.
	for n := 0; n < nargs; n++ {
		if argSubspaces[n] != nil {
			indices = append(indices, dummyIndices[n])
		} else {
			indices = append(indices, argIndices[n])
		}
	}
	// One extra multi-index per projected coefficient, in occurrence order.
	extra := make([]ir.MultiIndex, len(projected))
	for k, pc := range projected {
		extra[k] = builder.CreateElement(pc.subspace.Element()).Indices()
		indices = append(indices, extra[k])
	}
	//
	expressions, err := builder.CompileIntegrand(integral.Integrand, iparams, indices)
	if err != nil {
		return err
	}
	// Contract subspace-transformed argument slots: multiply by the transform
	// tensor and sum out the dummy index.
	for n := 0; n < nargs; n++ {
		subspace := argSubspaces[n]
		if subspace == nil {
			continue
		}
		//
		matrix := builder.TransformMatrix(subspace, subspaceExpr[subspace])
		//
		for i, e := range expressions {
			product := ir.NewProduct(ir.NewIndexed(matrix, argIndices[n].Concat(dummyIndices[n])), e)
			expressions[i] = ir.NewIndexSum(product, dummyIndices[n])
		}
	}
	// Contract projected coefficients: collapse the subspace's internal index
	// against the transform tensor, then against the coefficient data.
	for k, pc := range projected {
		coefficient, err := builder.CoefficientExpr(pc.coefficient, pc.part)
		if err != nil {
			return err
		}
		//
		var (
			matrix = builder.TransformMatrix(pc.subspace, subspaceExpr[pc.subspace])
			iCoeff = extra[k].FreshLike(fmt.Sprintf("c%d_", k))
		)
		//
		for i, e := range expressions {
			e = ir.NewIndexSum(ir.NewProduct(ir.NewIndexed(matrix, iCoeff.Concat(extra[k])), e), extra[k])
			expressions[i] = ir.NewIndexSum(ir.NewProduct(ir.NewIndexed(coefficient, iCoeff), e), iCoeff)
		}
	}
	//
	builder.StashIntegrals(builder.ConstructIntegrals(expressions, iparams), iparams)
	//
	return nil
}

// projectedCoefficient is one occurrence of a coefficient projected through a
// subspace within an integrand.
type projectedCoefficient struct {
	subspace    *form.Subspace
	coefficient *form.Coefficient
	part        util.Option[uint]
}

// argumentSubspaces returns, per argument slot, the subspace that slot is
// evaluated through (nil when unrestricted).
func argumentSubspaces(integral form.Integral, nargs int) []*form.Subspace {
	subspaces := make([]*form.Subspace, nargs)
	//
	form.Walk(integral.Integrand, func(e form.Expr) {
		if projected, ok := e.(*form.Projected); ok {
			if ref, ok := projected.Operand.(*form.ArgRef); ok && int(ref.Arg.Number) < nargs {
				subspaces[ref.Arg.Number] = projected.Subspace
			}
		}
	})
	//
	return subspaces
}

// projectedCoefficients returns the projected-coefficient occurrences of an
// integrand in traversal order, matching the order the builder assigns extra
// multi-indices during lowering.
func projectedCoefficients(integral form.Integral) []projectedCoefficient {
	var occurrences []projectedCoefficient
	//
	form.Walk(integral.Integrand, func(e form.Expr) {
		if projected, ok := e.(*form.Projected); ok {
			if ref, ok := projected.Operand.(*form.CoeffRef); ok {
				occurrences = append(occurrences,
					projectedCoefficient{projected.Subspace, ref.Coeff, ref.Part})
			}
		}
	})
	//
	return occurrences
}

// batchSubspaces collects the distinct subspaces referenced anywhere in a
// batch, in first-occurrence order.
func batchSubspaces(batch *gen.IntegralBatch) []*form.Subspace {
	var (
		seen      = make(map[*form.Subspace]bool)
		subspaces []*form.Subspace
	)
	//
	for _, integral := range batch.Integrals {
		form.Walk(integral.Integrand, func(e form.Expr) {
			if projected, ok := e.(*form.Projected); ok && !seen[projected.Subspace] {
				seen[projected.Subspace] = true
				subspaces = append(subspaces, projected.Subspace)
			}
		})
	}
	//
	return subspaces
}

// subspaceNumbersAndParts orders the used subspaces by their local number
// within the compiled form, returning the ordered subspaces, their numbers
// and, per subspace, the sub-components used when its parent space is mixed.
func subspaceNumbersAndParts(used []*form.Subspace, all []*form.Subspace) ([]*form.Subspace, []uint, [][]uint) {
	local := make(map[*form.Subspace]uint, len(all))
	for i, subspace := range all {
		local[subspace] = uint(i)
	}
	//
	ordered := append([]*form.Subspace{}, used...)
	sort.Slice(ordered, func(i, j int) bool { return local[ordered[i]] < local[ordered[j]] })
	//
	var (
		numbers = make([]uint, len(ordered))
		parts   = make([][]uint, len(ordered))
	)
	//
	for i, subspace := range ordered {
		numbers[i] = local[subspace]
		//
		if part, ok := subspace.Part.Get(); ok {
			parts[i] = []uint{part}
		}
	}
	//
	return ordered, numbers, parts
}
