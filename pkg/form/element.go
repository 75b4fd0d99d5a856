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

	"github.com/tessella/tessella/pkg/comm"
)

// RealFamily is the family of the space of space-wide constants.  Arguments
// over this family are never passed to the code generator; the compile
// pipeline substitutes them away beforehand.
const RealFamily = "Real"

// Element describes the finite-element basis of a function space.  An element
// with sub-elements is mixed, and spaces built over it have one block per
// sub-element.
type Element struct {
	// Basis family (e.g. "Lagrange", "Real").
	Family string
	// Polynomial degree of the basis.
	Degree uint
	// Sub-elements for a mixed element (empty otherwise).
	Sub []Element
}

// IsMixed reports whether this element is a mixed (product) element.
func (p Element) IsMixed() bool {
	return len(p.Sub) > 0
}

// NumBlocks returns the number of blocks induced by this element: one for a
// plain element, one per sub-element for a mixed element.
func (p Element) NumBlocks() uint {
	if p.IsMixed() {
		return uint(len(p.Sub))
	}
	//
	return 1
}

// NumBasisFunctions returns the dimension of the local basis.  For mixed
// elements this is the sum over sub-elements.
func (p Element) NumBasisFunctions() uint {
	if p.IsMixed() {
		var n uint
		for _, sub := range p.Sub {
			n += sub.NumBasisFunctions()
		}
		//
		return n
	}
	//
	return p.Degree + 1
}

// Signature returns a structural fingerprint of this element.  Two elements
// with equal signatures induce identical bases.
func (p Element) Signature() string {
	if p.IsMixed() {
		var parts []string
		for _, sub := range p.Sub {
			parts = append(parts, sub.Signature())
		}
		//
		return fmt.Sprintf("Mixed[%s]", strings.Join(parts, ","))
	}
	//
	return fmt.Sprintf("%s(%d)", p.Family, p.Degree)
}

// Domain identifies the mesh a function space is defined over, along with the
// communicator of the processes which jointly own that mesh.
type Domain struct {
	// Name of the domain.
	Name string
	// Comm is the communicator of the owning process group.
	Comm comm.Communicator
}

// NewDomain constructs a domain owned by the default (world) communicator.
func NewDomain(name string) *Domain {
	return &Domain{name, comm.World}
}

// NewDomainOn constructs a domain owned by the given communicator.
func NewDomainOn(name string, c comm.Communicator) *Domain {
	return &Domain{name, c}
}

// Space is a function space over a domain.  Spaces built over mixed elements
// have a block structure; arguments and coefficients over such spaces can be
// restricted to individual blocks.
type Space struct {
	// Name of the space.
	Name string
	// Element describing the basis of the space.
	Elem Element
	// Domain the space is defined over.
	Domain *Domain
}

// NewSpace constructs a function space over the given domain.
func NewSpace(name string, elem Element, domain *Domain) *Space {
	return &Space{name, elem, domain}
}

// IsMixed reports whether this space has a block structure.
func (p *Space) IsMixed() bool {
	return p.Elem.IsMixed()
}

// IsReal reports whether this is the space of space-wide constants.
func (p *Space) IsReal() bool {
	return p.Elem.Family == RealFamily
}

// NumBlocks returns the number of blocks of this space.
func (p *Space) NumBlocks() uint {
	return p.Elem.NumBlocks()
}

// Signature returns a structural fingerprint of this space.
func (p *Space) Signature() string {
	return fmt.Sprintf("%s:%s", p.Name, p.Elem.Signature())
}
