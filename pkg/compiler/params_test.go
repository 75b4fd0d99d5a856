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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessella/tessella/pkg/gen"
)

func TestMergeParameters(t *testing.T) {
	merged := mergeParameters(gen.Parameters{"mode": "vanilla", "extra": 1})
	// Overrides win, defaults survive.
	assert.Equal(t, "vanilla", merged["mode"])
	assert.Equal(t, 1, merged["extra"])
	assert.Equal(t, "double", merged["scalar_type"])
	// The defaults themselves are never mutated.
	assert.Equal(t, "spectral", DefaultParameters()["mode"])
}

func TestSortedItemsDeterministic(t *testing.T) {
	a := sortedItems(gen.Parameters{"b": 2, "a": 1, "c": "x"})
	b := sortedItems(gen.Parameters{"c": "x", "a": 1, "b": 2})
	//
	assert.Equal(t, a, b)
	assert.Equal(t, "a=1;b=2;c=x;", a)
}

func TestIsComplex(t *testing.T) {
	assert.False(t, isComplex(gen.Parameters{"scalar_type": "double"}))
	assert.True(t, isComplex(gen.Parameters{"scalar_type": "double complex"}))
}

func TestScalarTypeOf(t *testing.T) {
	params := gen.Parameters{"scalar_type": "double", "scalar_type_c": "float"}
	//
	assert.Equal(t, "double", scalarTypeOf(params, false))
	assert.Equal(t, "float", scalarTypeOf(params, true))
}

func TestLoadParameters(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("mode: vanilla\nprecision: 8\n"), 0o644))
	//
	params, err := LoadParameters(filename)
	require.NoError(t, err)
	//
	assert.Equal(t, "vanilla", params["mode"])
	assert.Equal(t, 8, params["precision"])
}

func TestLoadParametersMissingFile(t *testing.T) {
	_, err := LoadParameters(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBundleRoundTrip(t *testing.T) {
	kinfos := testKinfos("bundled")
	//
	data, err := encodeBundle(kinfos)
	require.NoError(t, err)
	//
	decoded, err := decodeBundle(data)
	require.NoError(t, err)
	assert.Equal(t, kinfos, decoded)
	// Tampering with the identifier is detected.
	data[0] ^= 0xff
	_, err = decodeBundle(data)
	assert.Error(t, err)
}
