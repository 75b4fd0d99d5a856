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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tessella/tessella/pkg/comm"
	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/gen"
	"github.com/tessella/tessella/pkg/util"
)

// DeriveKey computes the structural fingerprint identifying one compiled
// kernel set, along with the identifier of the process group which must agree
// on its compilation.  The digest hashes, in fixed field order, every input
// which can change the generated code; the group identifier partitions the
// in-memory cache (so distinct communicators compiling the same form never
// contend on one collective) but does not feed the digest.
func DeriveKey(f *form.Form, name string, params gen.Parameters, coefficientMap []uint,
	subspaceMap []uint, iface *gen.Interface, coffee bool, indices []util.Option[uint],
	diagonal bool) (string, string) {
	var b strings.Builder
	// Field order is fixed; any change here invalidates every existing cache.
	b.WriteString(f.Signature())
	b.WriteString(name)
	b.WriteString(sortedItems(DefaultOptParameters()))
	b.WriteString(sortedItems(params))
	fmt.Fprintf(&b, "%v", coefficientMap)
	fmt.Fprintf(&b, "%v", subspaceMap)
	b.WriteString(iface.Name)
	fmt.Fprintf(&b, "%t", coffee)
	//
	for _, index := range indices {
		b.WriteString(index.String())
	}
	//
	fmt.Fprintf(&b, "%t", diagonal)
	//
	digest := sha256.Sum256([]byte(b.String()))
	//
	return hex.EncodeToString(digest[:]), groupOf(f).ID()
}

// groupOf returns the communicator owning a form, via its first domain.
func groupOf(f *form.Form) comm.Communicator {
	if domains := f.Domains(); len(domains) > 0 && domains[0].Comm != nil {
		return domains[0].Comm
	}
	//
	return comm.World
}
