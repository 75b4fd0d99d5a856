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
	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/gen"
	"github.com/tessella/tessella/pkg/util"
)

// KernelInfo is the record produced per compiled integration kernel, with
// coefficient and subspace references renumbered to the global numbering of
// the original (unsplit) form.  This is the unit consumed by downstream
// assembly code.
type KernelInfo struct {
	// Kernel is the compiled kernel object.
	Kernel *gen.Kernel
	// IntegralType the kernel integrates over.
	IntegralType form.IntegralType
	// Oriented indicates the kernel requires cell orientation data.
	Oriented bool
	// Subdomain the kernel is restricted to.
	Subdomain form.Subdomain
	// DomainNumber of the mesh the kernel ranges over.
	DomainNumber uint
	// CoefficientMap lists, ordered by local number, the global numbers of
	// the coefficients the kernel reads.
	CoefficientMap []uint
	// SubspaceMap lists, ordered by local number, the global numbers of the
	// subspaces the kernel reads.
	SubspaceMap []uint
	// SubspaceParts lists, parallel to SubspaceMap, the sub-components used
	// of each mixed subspace (nil when not mixed).
	SubspaceParts [][]uint
	// NeedsCellFacets indicates the kernel reads cell-facet data.
	NeedsCellFacets bool
	// PassLayerArg indicates the kernel takes a layer argument (extruded
	// meshes).
	PassLayerArg bool
	// NeedsCellSizes indicates the kernel reads cell size data.
	NeedsCellSizes bool
	// RequiresZeroedOutput indicates the output tensor must be zeroed before
	// the kernel accumulates into it.
	RequiresZeroedOutput bool
}

// SplitKernel pairs a compiled kernel record with the index tuple of the
// sub-form it came from.
type SplitKernel struct {
	// Indices locates the originating sub-form in the block structure of the
	// compiled form.
	Indices []util.Option[uint]
	// Kinfo is the compiled kernel record.
	Kinfo KernelInfo
}

// assembleKernelInfos renumbers each kernel's local coefficient and subspace
// references to the global numbering and wraps it as a KernelInfo.
func assembleKernelInfos(kernels []*gen.Kernel, numberMap []uint, subspaceMap []uint) []KernelInfo {
	kinfos := make([]KernelInfo, len(kernels))
	//
	for i, kernel := range kernels {
		coefficients := make([]uint, len(kernel.CoefficientNumbers))
		for j, local := range kernel.CoefficientNumbers {
			coefficients[j] = numberMap[local]
		}
		//
		subspaces := make([]uint, len(kernel.ExternalDataNumbers))
		for j, local := range kernel.ExternalDataNumbers {
			subspaces[j] = subspaceMap[local]
		}
		//
		kinfos[i] = KernelInfo{
			Kernel:               kernel,
			IntegralType:         kernel.IntegralType,
			Oriented:             kernel.Oriented,
			Subdomain:            kernel.Subdomain,
			DomainNumber:         kernel.DomainNumber,
			CoefficientMap:       coefficients,
			SubspaceMap:          subspaces,
			SubspaceParts:        kernel.ExternalDataParts,
			NeedsCellFacets:      false,
			PassLayerArg:         false,
			NeedsCellSizes:       kernel.NeedsCellSizes,
			RequiresZeroedOutput: true,
		}
	}
	//
	return kinfos
}
