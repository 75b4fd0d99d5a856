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
	"sort"
	"strings"
	"sync"
)

// IntegralType identifies the kind of mesh entity an integral ranges over.
type IntegralType string

// The integral types understood by the compile pipeline.
const (
	// Cell integrals range over mesh cells.
	Cell IntegralType = "cell"
	// ExteriorFacet integrals range over boundary facets.
	ExteriorFacet IntegralType = "exterior_facet"
	// InteriorFacet integrals range over interior facets.
	InteriorFacet IntegralType = "interior_facet"
	// Point integrals range over mesh vertices.
	Point IntegralType = "vertex"
)

// Subdomain identifies the subset of mesh entities an integral ranges over.
// Numeric identifiers select marked subsets; Everywhere selects all entities
// not claimed by a numbered subdomain.
type Subdomain string

// Everywhere is the default subdomain.
const Everywhere Subdomain = "otherwise"

// Integral is one summand of a form: an integrand expression together with
// the measure it is integrated against.
type Integral struct {
	// Type of mesh entity integrated over.
	Type IntegralType
	// Subdomain restriction.
	Subdomain Subdomain
	// Integrand expression.
	Integrand Expr
	// Metadata holds per-integral compiler parameter overrides.  These win
	// over batch-wide parameters during lowering.
	Metadata map[string]any
	// Domain the integral ranges over.
	Domain *Domain
}

// NewIntegral constructs an integral over the given measure, inferring its
// domain from the first space referenced by the integrand.
func NewIntegral(typ IntegralType, subdomain Subdomain, integrand Expr) Integral {
	return Integral{typ, subdomain, integrand, nil, inferDomain(integrand)}
}

// NewIntegralOn constructs an integral over an explicit domain.
func NewIntegralOn(typ IntegralType, subdomain Subdomain, integrand Expr, domain *Domain) Integral {
	return Integral{typ, subdomain, integrand, nil, domain}
}

// WithMetadata returns a copy of this integral carrying the given compiler
// parameter overrides.
func (p Integral) WithMetadata(metadata map[string]any) Integral {
	p.Metadata = metadata
	return p
}

func inferDomain(integrand Expr) *Domain {
	var domain *Domain
	//
	Walk(integrand, func(e Expr) {
		if domain != nil {
			return
		}
		//
		switch e := e.(type) {
		case *ArgRef:
			domain = e.Arg.Space.Domain
		case *CoeffRef:
			domain = e.Coeff.Space.Domain
		case *Projected:
			domain = e.Subspace.Space.Domain
		}
	})
	//
	return domain
}

// ============================================================================
// Form
// ============================================================================

// Form is an immutable symbolic representation of an integral sum over a
// domain, parameterised by arguments and coefficients.  Structural equality
// of forms is captured by Signature, which is a pure function of the
// expression tree content rather than object identity.
type Form struct {
	integrals []Integral
	// Derived, fixed at construction.
	arguments    []*Argument
	coefficients []*Coefficient
	subspaces    []*Subspace
	domains      []*Domain
	// Memoised compilation results, keyed by a parameter snapshot.
	memoMutex sync.Mutex
	memo      map[string]any
}

// NewForm constructs a form from the given integrals.  A form whose argument
// count is not 0, 1 or 2 is a configuration error.
func NewForm(integrals ...Integral) (*Form, error) {
	if len(integrals) == 0 {
		return nil, fmt.Errorf("form has no integrals")
	}
	//
	f := &Form{integrals: integrals, memo: make(map[string]any)}
	//
	f.collect()
	// Sanity check argument structure
	if len(f.arguments) > 2 {
		return nil, fmt.Errorf("form has %d arguments, expected at most 2", len(f.arguments))
	}
	//
	for i, arg := range f.arguments {
		if arg.Number != uint(i) {
			return nil, fmt.Errorf("malformed form: argument numbers %v are not contiguous from 0",
				argumentNumbers(f.arguments))
		}
	}
	//
	return f, nil
}

func argumentNumbers(args []*Argument) []uint {
	numbers := make([]uint, len(args))
	for i, arg := range args {
		numbers[i] = arg.Number
	}
	//
	return numbers
}

// collect walks every integrand once, recording arguments, coefficients,
// subspaces and domains in deterministic (first occurrence) order.
func (p *Form) collect() {
	var (
		seenArgs   = make(map[*Argument]bool)
		seenCoeffs = make(map[*Coefficient]bool)
		seenSubs   = make(map[*Subspace]bool)
		seenDoms   = make(map[*Domain]bool)
	)
	//
	for _, integral := range p.integrals {
		if integral.Domain != nil && !seenDoms[integral.Domain] {
			seenDoms[integral.Domain] = true
			p.domains = append(p.domains, integral.Domain)
		}
		//
		Walk(integral.Integrand, func(e Expr) {
			switch e := e.(type) {
			case *ArgRef:
				if !seenArgs[e.Arg] {
					seenArgs[e.Arg] = true
					p.arguments = append(p.arguments, e.Arg)
				}
			case *CoeffRef:
				if !seenCoeffs[e.Coeff] {
					seenCoeffs[e.Coeff] = true
					p.coefficients = append(p.coefficients, e.Coeff)
				}
			case *Projected:
				if !seenSubs[e.Subspace] {
					seenSubs[e.Subspace] = true
					p.subspaces = append(p.subspaces, e.Subspace)
				}
			}
		})
	}
	// Arguments sort by number; everything else keeps occurrence order.
	sort.Slice(p.arguments, func(i, j int) bool {
		return p.arguments[i].Number < p.arguments[j].Number
	})
}

// Integrals returns the integrals of this form.
func (p *Form) Integrals() []Integral {
	return p.integrals
}

// Arguments returns the arguments of this form, ordered by argument number.
func (p *Form) Arguments() []*Argument {
	return p.arguments
}

// Coefficients returns the coefficients of this form in deterministic
// (first occurrence) order.  A coefficient's position in this slice is its
// global coefficient number.
func (p *Form) Coefficients() []*Coefficient {
	return p.coefficients
}

// Subspaces returns the subspaces referenced by this form in deterministic
// (first occurrence) order.  A subspace's position in this slice is its
// global subspace number.
func (p *Form) Subspaces() []*Subspace {
	return p.subspaces
}

// Domains returns the domains this form integrates over, in first-occurrence
// order.
func (p *Form) Domains() []*Domain {
	return p.domains
}

// Signature returns the structural fingerprint of this form.  Two forms with
// equal signatures lower to identical code under identical compiler
// parameters, regardless of how or where their expression trees were built.
func (p *Form) Signature() string {
	var b strings.Builder
	//
	for _, integral := range p.integrals {
		fmt.Fprintf(&b, "%s#%s", integral.Type, integral.Subdomain)
		// Metadata participates, since it overrides compiler parameters.
		if len(integral.Metadata) > 0 {
			keys := make([]string, 0, len(integral.Metadata))
			for k := range integral.Metadata {
				keys = append(keys, k)
			}
			//
			sort.Strings(keys)
			//
			b.WriteString("<")
			for i, k := range keys {
				if i != 0 {
					b.WriteString(",")
				}
				//
				fmt.Fprintf(&b, "%s=%v", k, integral.Metadata[k])
			}
			b.WriteString(">")
		}
		//
		b.WriteString("{")
		integral.Integrand.sig(&b)
		b.WriteString("}")
	}
	//
	return b.String()
}

// Replace produces a new form in which every reference to an argument in the
// mapping is substituted by the mapped expression.  Block restrictions on
// references survive substitution by another argument.
func (p *Form) Replace(mapping map[*Argument]Expr) (*Form, error) {
	integrals := make([]Integral, len(p.integrals))
	//
	for i, integral := range p.integrals {
		integral.Integrand = integral.Integrand.substitute(mapping)
		integrals[i] = integral
	}
	//
	return NewForm(integrals...)
}

// ============================================================================
// Compilation memo
// ============================================================================

// Memo returns a previously stashed compilation result for the given
// snapshot key, if any.
func (p *Form) Memo(key string) (any, bool) {
	p.memoMutex.Lock()
	defer p.memoMutex.Unlock()
	//
	value, ok := p.memo[key]
	//
	return value, ok
}

// StashMemo records a compilation result against the given snapshot key,
// returning the stashed value.  If a value is already present it wins, so
// concurrent compilations of the same form converge on one result object.
func (p *Form) StashMemo(key string, value any) any {
	p.memoMutex.Lock()
	defer p.memoMutex.Unlock()
	//
	if existing, ok := p.memo[key]; ok {
		return existing
	}
	//
	p.memo[key] = value
	//
	return value
}
