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

// Package gen defines the contract between the compile pipeline and the
// external code generator: per-form analysis data, the kernel builder
// capability interface, and the compiled kernel record.  A reference
// in-memory backend is included so the pipeline can be driven without an
// external toolchain.
package gen

import (
	"fmt"

	"github.com/tessella/tessella/pkg/form"
)

// Parameters holds compiler parameters as a loosely typed key/value map.
// Values must render deterministically via fmt, since parameter snapshots
// participate in cache keys.
type Parameters map[string]any

// Copy returns a shallow copy of the parameter map.
func (p Parameters) Copy() Parameters {
	clone := make(Parameters, len(p))
	for k, v := range p {
		clone[k] = v
	}
	//
	return clone
}

// IntegralBatch is the set of integrals of a form sharing the same integral
// type and subdomain, compiled together into one kernel.
type IntegralBatch struct {
	// Type of mesh entity integrated over.
	Type form.IntegralType
	// Subdomain restriction shared by the batch.
	Subdomain form.Subdomain
	// DomainNumber is the position of the batch's domain in the form's
	// domain list.
	DomainNumber uint
	// Integrals making up the batch, in form order.
	Integrals []form.Integral
	// Arguments of the owning form, ordered by argument number.
	Arguments []*form.Argument
	// Coefficients of the owning form; a coefficient's position here is its
	// local coefficient number as seen by the generator.
	Coefficients []*form.Coefficient
}

// LocalNumber returns the local number of a coefficient within this batch's
// owning form.
func (p *IntegralBatch) LocalNumber(c *form.Coefficient) (uint, bool) {
	for i, candidate := range p.Coefficients {
		if candidate == c {
			return uint(i), true
		}
	}
	//
	return 0, false
}

// FormData is the per-form analysis record produced ahead of lowering: the
// coefficient replacement map and the integrals grouped into batches.
type FormData struct {
	// ComplexMode indicates complex scalar arithmetic.
	ComplexMode bool
	// Replacements maps original coefficients to the ones the generator sees.
	Replacements map[*form.Coefficient]*form.Coefficient
	// Batches of integrals, grouped by (integral type, subdomain).
	Batches []*IntegralBatch
}

// ComputeFormData analyses a form ahead of lowering, grouping its integrals
// by (integral type, subdomain id) in first-occurrence order.
func ComputeFormData(f *form.Form, complexMode bool) (*FormData, error) {
	var (
		batches []*IntegralBatch
		order   = make(map[string]*IntegralBatch)
		domains = make(map[*form.Domain]uint)
	)
	//
	for i, domain := range f.Domains() {
		domains[domain] = uint(i)
	}
	//
	for _, integral := range f.Integrals() {
		key := fmt.Sprintf("%s#%s", integral.Type, integral.Subdomain)
		//
		batch, ok := order[key]
		if !ok {
			batch = &IntegralBatch{
				Type:         integral.Type,
				Subdomain:    integral.Subdomain,
				DomainNumber: domains[integral.Domain],
				Arguments:    f.Arguments(),
				Coefficients: f.Coefficients(),
			}
			order[key] = batch
			batches = append(batches, batch)
		}
		//
		batch.Integrals = append(batch.Integrals, integral)
	}
	// The generator sees coefficients unrenamed; the replacement map is
	// nonetheless part of the contract, since external backends rename.
	replacements := make(map[*form.Coefficient]*form.Coefficient, len(f.Coefficients()))
	for _, c := range f.Coefficients() {
		replacements[c] = c
	}
	//
	return &FormData{complexMode, replacements, batches}, nil
}
