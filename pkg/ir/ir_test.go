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
package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiIndex(t *testing.T) {
	var (
		i = NewIndex("i", 3)
		j = NewIndex("j", 4)
		m = MultiIndex{i}.Concat(MultiIndex{j})
	)
	//
	assert.Equal(t, []uint{3, 4}, m.Extents())
	assert.Equal(t, "i,j", m.String())
	// Fresh copies share extents but never indices.
	fresh := m.FreshLike("d")
	assert.Equal(t, m.Extents(), fresh.Extents())
	assert.NotSame(t, m[0], fresh[0])
	assert.Equal(t, "d0,d1", fresh.String())
}

func TestIndexSumIdentity(t *testing.T) {
	body := NewVariable("x")
	// Summing over no indices is the identity.
	assert.Same(t, body, NewIndexSum(body, nil))
	assert.IsType(t, &IndexSum{}, NewIndexSum(body, MultiIndex{NewIndex("i", 2)}))
}

func TestRendering(t *testing.T) {
	var (
		i = NewIndex("i", 3)
		a = NewIndexed(NewVariable("A", 3), MultiIndex{i})
		e = NewIndexSum(NewProduct(a, NewCall("grad", NewLiteral(2))), MultiIndex{i})
	)
	//
	assert.Equal(t, "sum{i}((A[i] * grad(2)))", e.String())
}
