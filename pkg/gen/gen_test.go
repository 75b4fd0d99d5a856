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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/util"
)

func TestComputeFormDataBatching(t *testing.T) {
	var (
		domain = form.NewDomain("mesh")
		space  = form.NewSpace("P1", form.Element{Family: "Lagrange", Degree: 1}, domain)
		v      = form.NewArgument(space, 0)
	)
	// Two cell integrals over the same subdomain batch together; the facet
	// integral forms its own batch.
	f, err := form.NewForm(
		form.NewIntegral(form.Cell, form.Everywhere, form.Ref(v)),
		form.NewIntegral(form.ExteriorFacet, form.Everywhere, form.Ref(v)),
		form.NewIntegral(form.Cell, form.Everywhere, form.Mul(form.NewLiteral(2), form.Ref(v))),
	)
	require.NoError(t, err)
	//
	data, err := ComputeFormData(f, false)
	require.NoError(t, err)
	//
	require.Len(t, data.Batches, 2)
	assert.Equal(t, form.Cell, data.Batches[0].Type)
	assert.Len(t, data.Batches[0].Integrals, 2)
	assert.Equal(t, form.ExteriorFacet, data.Batches[1].Type)
	assert.Len(t, data.Batches[1].Integrals, 1)
	//
	assert.False(t, data.ComplexMode)
}

func TestComputeFormDataSubdomains(t *testing.T) {
	var (
		domain = form.NewDomain("mesh")
		space  = form.NewSpace("P1", form.Element{Family: "Lagrange", Degree: 1}, domain)
		v      = form.NewArgument(space, 0)
	)
	// Distinct subdomains never share a batch, even for one integral type.
	f, err := form.NewForm(
		form.NewIntegral(form.Cell, "1", form.Ref(v)),
		form.NewIntegral(form.Cell, "2", form.Ref(v)),
	)
	require.NoError(t, err)
	//
	data, err := ComputeFormData(f, false)
	require.NoError(t, err)
	//
	require.Len(t, data.Batches, 2)
	assert.Equal(t, form.Subdomain("1"), data.Batches[0].Subdomain)
	assert.Equal(t, form.Subdomain("2"), data.Batches[1].Subdomain)
}

func TestBuilderConstructKernel(t *testing.T) {
	var (
		domain = form.NewDomain("mesh")
		space  = form.NewSpace("P1", form.Element{Family: "Lagrange", Degree: 1}, domain)
		v      = form.NewArgument(space, 0)
		u      = form.NewArgument(space, 1)
		g      = form.NewCoefficient("g", space)
	)
	//
	integrand := form.Mul(form.Coeff(g), form.InnerOf(form.GradOf(form.Ref(u)), form.GradOf(form.Ref(v))))
	//
	f, err := form.NewForm(form.NewIntegral(form.Cell, form.Everywhere, integrand))
	require.NoError(t, err)
	//
	data, err := ComputeFormData(f, false)
	require.NoError(t, err)
	require.Len(t, data.Batches, 1)
	//
	builder := Loopy.New(data.Batches[0], "double", false)
	require.Len(t, builder.ArgumentMultiIndices(), 2)
	//
	exprs, err := builder.CompileIntegrand(integrand, nil, builder.ArgumentMultiIndices())
	require.NoError(t, err)
	//
	builder.StashIntegrals(builder.ConstructIntegrals(exprs, nil), nil)
	//
	kernel, err := builder.ConstructKernel("laplace_cell_integral_otherwise", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, kernel)
	//
	assert.Equal(t, "laplace_cell_integral_otherwise", kernel.Name)
	assert.Equal(t, "loopy", kernel.Backend)
	assert.Equal(t, form.Cell, kernel.IntegralType)
	// Gradients require orientation data.
	assert.True(t, kernel.Oriented)
	// The sole coefficient is read, under its local number.
	assert.Equal(t, []uint{0}, kernel.CoefficientNumbers)
	assert.True(t, strings.Contains(kernel.Code, "laplace_cell_integral_otherwise"))
	assert.Equal(t, "double", builder.ScalarType())
}

func TestBuilderEmptyBatch(t *testing.T) {
	var (
		domain = form.NewDomain("mesh")
		space  = form.NewSpace("P1", form.Element{Family: "Lagrange", Degree: 1}, domain)
		v      = form.NewArgument(space, 0)
	)
	//
	f, err := form.NewForm(form.NewIntegral(form.Cell, form.Everywhere, form.Ref(v)))
	require.NoError(t, err)
	//
	data, err := ComputeFormData(f, false)
	require.NoError(t, err)
	// Nothing stashed, so no kernel materialises.
	builder := Coffee.New(data.Batches[0], "double", false)
	//
	kernel, err := builder.ConstructKernel("noop", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, kernel)
}

func TestBuilderZeroIntegrandsDiscarded(t *testing.T) {
	var (
		domain = form.NewDomain("mesh")
		space  = form.NewSpace("P1", form.Element{Family: "Lagrange", Degree: 1}, domain)
		v      = form.NewArgument(space, 0)
	)
	//
	f, err := form.NewForm(form.NewIntegral(form.Cell, form.Everywhere, form.Ref(v)))
	require.NoError(t, err)
	//
	data, err := ComputeFormData(f, false)
	require.NoError(t, err)
	//
	var (
		builder = Loopy.New(data.Batches[0], "double", false)
		zero    = form.NewLiteral(0)
	)
	//
	exprs, err := builder.CompileIntegrand(zero, nil, builder.ArgumentMultiIndices())
	require.NoError(t, err)
	// A trivially zero representation contributes no work.
	assert.Empty(t, builder.ConstructIntegrals(exprs, nil))
}

func TestCoefficientExprComponents(t *testing.T) {
	var (
		domain = form.NewDomain("mesh")
		p1     = form.Element{Family: "Lagrange", Degree: 1}
		mixed  = form.NewSpace("W", form.Element{Sub: []form.Element{p1, p1}}, domain)
		space  = form.NewSpace("P1", p1, domain)
		v      = form.NewArgument(space, 0)
		w      = form.NewCoefficient("w", mixed)
		plain  = form.NewCoefficient("p", space)
	)
	//
	f, err := form.NewForm(form.NewIntegral(form.Cell, form.Everywhere, form.Add(
		form.Mul(form.CoeffPart(w, 1), form.Ref(v)),
		form.Mul(form.Coeff(plain), form.Ref(v)),
	)))
	require.NoError(t, err)
	//
	data, err := ComputeFormData(f, false)
	require.NoError(t, err)
	//
	builder := Loopy.New(data.Batches[0], "double", false)
	// A component of a mixed coefficient lowers fine.
	_, err = builder.CoefficientExpr(w, util.Some(uint(1)))
	require.NoError(t, err)
	// A component request against a plain coefficient is an error.
	_, err = builder.CoefficientExpr(plain, util.Some(uint(0)))
	assert.Error(t, err)
	// A coefficient foreign to the form cannot be lowered at all.
	_, err = builder.CoefficientExpr(form.NewCoefficient("q", space), util.None[uint]())
	assert.Error(t, err)
}
