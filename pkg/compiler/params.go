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
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tessella/tessella/pkg/gen"
)

// DefaultParameters returns the form-compiler parameter defaults.  User
// parameters are merged over these; the merged snapshot participates in
// cache keys.
func DefaultParameters() gen.Parameters {
	return gen.Parameters{
		"scalar_type":       "double",
		"scalar_type_c":     "double",
		"mode":              "spectral",
		"quadrature_rule":   "auto",
		"quadrature_degree": "auto",
		"precision":         16,
	}
}

// DefaultOptParameters returns the backend-specific optimisation defaults.
// These do not feed the lowering itself but participate in every cache key,
// since changing them changes the generated code.
func DefaultOptParameters() gen.Parameters {
	return gen.Parameters{
		"optlevel":  "Ov",
		"align_pad": true,
		"licm":      false,
	}
}

// mergeParameters merges user parameters over the defaults.
func mergeParameters(user gen.Parameters) gen.Parameters {
	merged := DefaultParameters()
	//
	for k, v := range user {
		merged[k] = v
	}
	//
	return merged
}

// SortedItems renders a parameter map as "key=value" items in key order,
// independent of map construction order.
func SortedItems(params gen.Parameters) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	//
	sort.Strings(keys)
	//
	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	//
	return items
}

// sortedItems renders a parameter map as one deterministic string, as used
// within cache keys.
func sortedItems(params gen.Parameters) string {
	return strings.Join(SortedItems(params), ";") + ";"
}

// isComplex determines whether the given parameters select complex scalar
// arithmetic.
func isComplex(params gen.Parameters) bool {
	scalarType, _ := params["scalar_type"].(string)
	return strings.Contains(scalarType, "complex")
}

// scalarTypeOf extracts the scalar type the backend should generate code
// for.  The coffee backend takes the C-flavoured spelling.
func scalarTypeOf(params gen.Parameters, coffee bool) string {
	key := "scalar_type"
	if coffee {
		key = "scalar_type_c"
	}
	//
	return fmt.Sprintf("%v", params[key])
}

// LoadParameters reads form-compiler parameters from a YAML file.
func LoadParameters(path string) (gen.Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading parameter file %s", path)
	}
	//
	var params gen.Parameters
	//
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, errors.Wrapf(err, "malformed parameter file %s", path)
	}
	//
	return params, nil
}
