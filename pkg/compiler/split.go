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

	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/util"
)

// SplitForm is a sub-form produced by splitting a composite form over mixed
// spaces, tagged with the index tuple locating it in the block structure of
// the original form.  An empty option in a slot means the corresponding
// argument is not block-restricted.
type SplitForm struct {
	// Indices locates this sub-form in the block structure.
	Indices []util.Option[uint]
	// Form is the restricted sub-form.
	Form *form.Form
	// CoefficientParts records, per mixed coefficient, which scalar
	// sub-components participate in this sub-form.
	CoefficientParts map[*form.Coefficient][]uint
}

// Split decomposes a form over possibly-mixed function spaces into one
// sub-form per (row, col) block with nonzero contribution, skipping
// algebraically empty blocks.  Under diagonal assembly the two arguments are
// treated as coincident and one sub-form is produced per diagonal block.
func Split(f *form.Form, diagonal bool) ([]SplitForm, error) {
	args := f.Arguments()
	// The form layer enforces the argument count; re-check here since the
	// splitter is also usable standalone.
	if len(args) > 2 {
		return nil, fmt.Errorf("cannot split form with %d arguments", len(args))
	}
	//
	if diagonal {
		return splitDiagonal(f)
	}
	// Enumerate block choices per argument: one choice per block of a mixed
	// space, or the single unrestricted choice otherwise.
	choices := make([][]util.Option[uint], len(args))
	//
	for i, arg := range args {
		if arg.Space.IsMixed() {
			for b := uint(0); b < arg.Space.NumBlocks(); b++ {
				choices[i] = append(choices[i], util.Some(b))
			}
		} else {
			choices[i] = []util.Option[uint]{util.None[uint]()}
		}
	}
	//
	var (
		splits  []SplitForm
		failure error
	)
	//
	forEachCombination(choices, func(indices []util.Option[uint]) {
		if failure != nil {
			return
		}
		//
		sub, ok, err := restrictForm(f, indices)
		//
		if err != nil {
			failure = err
		} else if ok {
			splits = append(splits, SplitForm{indices, sub, coefficientParts(sub)})
		}
	})
	//
	if failure != nil {
		return nil, failure
	}
	//
	return splits, nil
}

// splitDiagonal produces one sub-form per diagonal block, treating test and
// trial arguments as coincident.
func splitDiagonal(f *form.Form) ([]SplitForm, error) {
	args := f.Arguments()
	//
	if len(args) != 2 {
		return nil, fmt.Errorf("diagonal assembly requires a bilinear form, got %d argument(s)", len(args))
	}
	//
	rows, cols := args[0].Space.NumBlocks(), args[1].Space.NumBlocks()
	if rows != cols {
		return nil, fmt.Errorf("diagonal assembly requires coincident block structure (%d vs %d blocks)", rows, cols)
	}
	//
	if !args[0].Space.IsMixed() {
		sub, ok, err := restrictForm(f, []util.Option[uint]{util.None[uint](), util.None[uint]()})
		//
		if err != nil {
			return nil, err
		} else if ok {
			return []SplitForm{{[]util.Option[uint]{util.None[uint]()}, sub, coefficientParts(sub)}}, nil
		}
		//
		return nil, nil
	}
	//
	var splits []SplitForm
	//
	for b := uint(0); b < rows; b++ {
		indices := []util.Option[uint]{util.Some(b), util.Some(b)}
		//
		sub, ok, err := restrictForm(f, indices)
		//
		if err != nil {
			return nil, err
		} else if ok {
			splits = append(splits, SplitForm{[]util.Option[uint]{util.Some(b)}, sub, coefficientParts(sub)})
		}
	}
	//
	return splits, nil
}

// forEachCombination invokes the callback for each element of the cartesian
// product of the given per-slot choices, in row-major order.
func forEachCombination(choices [][]util.Option[uint], apply func([]util.Option[uint])) {
	indices := make([]util.Option[uint], len(choices))
	//
	var recurse func(slot int)
	//
	recurse = func(slot int) {
		if slot == len(choices) {
			apply(append([]util.Option[uint]{}, indices...))
			return
		}
		//
		for _, choice := range choices[slot] {
			indices[slot] = choice
			recurse(slot + 1)
		}
	}
	//
	recurse(0)
}

// restrictForm restricts every integral of a form to the given block
// assignment, dropping integrals whose integrand vanishes.  Returns false if
// the whole block is algebraically empty, and an error if the surviving terms
// form a malformed sub-form (e.g. a block retaining only the trial function of
// a form which mixes bilinear and trial-only terms).
func restrictForm(f *form.Form, indices []util.Option[uint]) (*form.Form, bool, error) {
	var integrals []form.Integral
	//
	for _, integral := range f.Integrals() {
		if restricted, ok := restrict(integral.Integrand, indices); ok {
			integral.Integrand = restricted
			integrals = append(integrals, integral)
		}
	}
	//
	if len(integrals) == 0 {
		return nil, false, nil
	}
	//
	sub, err := form.NewForm(integrals...)
	if err != nil {
		return nil, false, fmt.Errorf("cannot restrict form to block (%v): %v", indices, err)
	}
	//
	return sub, true, nil
}

// restrict evaluates an expression under a block assignment, returning false
// when the expression is algebraically zero in that block.
func restrict(e form.Expr, indices []util.Option[uint]) (form.Expr, bool) {
	switch e := e.(type) {
	case *form.Literal, *form.CoeffRef:
		return e, true
	case *form.ArgRef:
		part, restricted := e.Part.Get()
		if !restricted {
			// A whole-space reference participates in every block.
			return e, true
		}
		//
		if int(e.Arg.Number) >= len(indices) {
			return nil, false
		}
		//
		if want, ok := indices[e.Arg.Number].Get(); ok && want == part {
			return e, true
		}
		//
		return nil, false
	case *form.Projected:
		operand, ok := restrict(e.Operand, indices)
		if !ok {
			return nil, false
		} else if operand == e.Operand {
			return e, true
		}
		//
		return form.Project(operand, e.Subspace), true
	case *form.Grad:
		operand, ok := restrict(e.Operand, indices)
		if !ok {
			return nil, false
		} else if operand == e.Operand {
			return e, true
		}
		//
		return form.GradOf(operand), true
	case *form.Neg:
		operand, ok := restrict(e.Operand, indices)
		if !ok {
			return nil, false
		} else if operand == e.Operand {
			return e, true
		}
		//
		return form.Negate(operand), true
	case *form.Inner:
		return restrictBinary(e, e.Left, e.Right, indices, func(l, r form.Expr) form.Expr {
			return form.InnerOf(l, r)
		})
	case *form.Product:
		return restrictBinary(e, e.Left, e.Right, indices, func(l, r form.Expr) form.Expr {
			return form.Mul(l, r)
		})
	case *form.Sum:
		var terms []form.Expr
		//
		for _, term := range e.Terms {
			if restricted, ok := restrict(term, indices); ok {
				terms = append(terms, restricted)
			}
		}
		//
		switch len(terms) {
		case 0:
			return nil, false
		case 1:
			return terms[0], true
		default:
			return form.Add(terms...), true
		}
	default:
		panic(fmt.Sprintf("cannot restrict expression of type %T", e))
	}
}

// restrictBinary restricts both operands of a multiplicative node; the node
// vanishes if either operand does.
func restrictBinary(original form.Expr, left, right form.Expr, indices []util.Option[uint],
	rebuild func(l, r form.Expr) form.Expr) (form.Expr, bool) {
	l, lok := restrict(left, indices)
	if !lok {
		return nil, false
	}
	//
	r, rok := restrict(right, indices)
	if !rok {
		return nil, false
	}
	// Share the original node when nothing changed underneath.
	if l == left && r == right {
		return original, true
	}
	//
	return rebuild(l, r), true
}

// coefficientParts records, for each mixed coefficient of a form, the sorted
// set of scalar sub-components its integrands reference.
func coefficientParts(f *form.Form) map[*form.Coefficient][]uint {
	seen := make(map[*form.Coefficient]map[uint]bool)
	//
	for _, integral := range f.Integrals() {
		form.Walk(integral.Integrand, func(e form.Expr) {
			ref, ok := e.(*form.CoeffRef)
			if !ok || !ref.Coeff.Space.IsMixed() {
				return
			}
			//
			if part, ok := ref.Part.Get(); ok {
				if seen[ref.Coeff] == nil {
					seen[ref.Coeff] = make(map[uint]bool)
				}
				//
				seen[ref.Coeff][part] = true
			}
		})
	}
	//
	parts := make(map[*form.Coefficient][]uint, len(seen))
	//
	for coeff, set := range seen {
		ordered := make([]uint, 0, len(set))
		for part := range set {
			ordered = append(ordered, part)
		}
		//
		sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
		parts[coeff] = ordered
	}
	//
	return parts
}
