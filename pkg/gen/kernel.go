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
)

// Kernel is a compiled integration kernel as returned by a lowering backend.
// The pipeline treats the generated code as opaque; everything else is
// metadata consumed by downstream assembly.
type Kernel struct {
	// Name of the generated kernel function.
	Name string
	// Backend which generated the kernel.
	Backend string
	// IntegralType the kernel integrates over.
	IntegralType form.IntegralType
	// Subdomain the kernel is restricted to.
	Subdomain form.Subdomain
	// DomainNumber of the mesh the kernel ranges over.
	DomainNumber uint
	// Oriented indicates the kernel requires cell orientation data (for
	// pulling gradients back to reference elements on embedded manifolds).
	Oriented bool
	// CoefficientNumbers lists, in ascending order, the local numbers of the
	// coefficients the kernel reads.
	CoefficientNumbers []uint
	// ExternalDataNumbers lists the local numbers of the subspaces whose
	// transform tensors the kernel reads.
	ExternalDataNumbers []uint
	// ExternalDataParts lists, parallel to ExternalDataNumbers, the
	// sub-components used of each mixed subspace (nil when not mixed).
	ExternalDataParts [][]uint
	// NeedsCellSizes indicates the kernel reads cell size data.
	NeedsCellSizes bool
	// Code is the generated kernel source.
	Code string
}
