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

// Package compiler turns symbolic variational forms into compiled numerical
// integration kernels, backed by a persistent multi-process-safe cache keyed
// on each form's structural identity.  Composite forms over mixed spaces are
// decomposed into independently compiled sub-kernels with correctly
// renumbered coefficient and subspace references.
package compiler

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/tessella/tessella/pkg/comm"
	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/gen"
	"github.com/tessella/tessella/pkg/util"
)

// CompileOptions configures one compilation request.  The zero value is not
// meaningful; start from DefaultCompileOptions.
type CompileOptions struct {
	// Parameters are user overrides merged over the compiler defaults.
	Parameters gen.Parameters
	// Split controls whether composite forms over mixed spaces are
	// decomposed into per-block sub-forms.
	Split bool
	// Interface selects the kernel builder variant (nil picks coffee or
	// loopy according to the Coffee flag).
	Interface *gen.Interface
	// Coffee selects the legacy backend when no explicit interface is given.
	Coffee bool
	// Diagonal requests extraction of the operator diagonal as a vector.
	Diagonal bool
	// Cache is the kernel cache to compile through (nil picks the
	// process-wide default).
	Cache *KernelCache
}

// DefaultCompileOptions returns the default compilation options: split mixed
// forms, loopy backend, process-wide cache.
func DefaultCompileOptions() *CompileOptions {
	return &CompileOptions{Split: true}
}

// The process-wide kernel cache, constructed once on first use and shared by
// every compilation that does not inject its own.
var (
	defaultCacheOnce sync.Once
	defaultCache     *KernelCache
)

// DefaultKernelCache returns the process-wide kernel cache.
func DefaultKernelCache() *KernelCache {
	defaultCacheOnce.Do(func() {
		defaultCache = NewKernelCache(DefaultCacheDir())
	})
	//
	return defaultCache
}

// ClearCache drops the process-wide kernel cache, on disk and in memory.
// Callers must serialise this with any in-flight compilation.
func ClearCache(g comm.Communicator) error {
	return DefaultKernelCache().Clear(g)
}

// CompileForm compiles a form into a flat sequence of split kernels, one per
// compiled integral batch of each nonzero block.  Results are memoised on the
// form itself, so repeated calls with identical options are free after the
// first.
func CompileForm(f *form.Form, name string, opts *CompileOptions) ([]SplitKernel, error) {
	if f == nil {
		return nil, fmt.Errorf("unable to compile: not a form")
	}
	//
	if opts == nil {
		opts = DefaultCompileOptions()
	}
	//
	iface, err := resolveInterface(opts)
	if err != nil {
		return nil, err
	}
	//
	var (
		params = mergeParameters(opts.Parameters)
		cache  = opts.Cache
	)
	//
	if cache == nil {
		cache = DefaultKernelCache()
	}
	// Check the form-level memo before doing any work.
	memoKey := fmt.Sprintf("%s|%s|%s|%t|%t",
		sortedItems(DefaultOptParameters()), name, sortedItems(params), opts.Split, opts.Diagonal)
	//
	if cached, ok := f.Memo(memoKey); ok {
		return cached.([]SplitKernel), nil
	}
	//
	splits, err := splitForCompile(f, opts)
	if err != nil {
		return nil, err
	}
	// Global coefficient/subspace numbering of the unsplit form.
	var (
		globalCoefficients = make(map[*form.Coefficient]uint)
		globalSubspaces    = make(map[*form.Subspace]uint)
	)
	//
	for i, c := range f.Coefficients() {
		globalCoefficients[c] = uint(i)
	}
	//
	for i, s := range f.Subspaces() {
		globalSubspaces[s] = uint(i)
	}
	//
	var (
		group   = groupOf(f)
		kernels []SplitKernel
	)
	//
	for _, split := range splits {
		sub, err := realMangle(split.Form)
		if err != nil {
			return nil, err
		}
		// Local-to-global renumbering for this sub-form.
		numberMap := make([]uint, len(sub.Coefficients()))
		for n, c := range sub.Coefficients() {
			numberMap[n] = globalCoefficients[c]
		}
		//
		subspaceMap := make([]uint, len(sub.Subspaces()))
		for n, s := range sub.Subspaces() {
			subspaceMap[n] = globalSubspaces[s]
		}
		//
		prefix := name
		for _, index := range split.Indices {
			if value, ok := index.Get(); ok {
				prefix += strconv.FormatUint(uint64(value), 10)
			}
		}
		//
		digest, _ := DeriveKey(sub, prefix, params, numberMap, subspaceMap,
			iface, opts.Coffee, split.Indices, opts.Diagonal)
		//
		kinfos, err := cache.Fetch(group, digest, func() ([]KernelInfo, error) {
			compiled, err := compileLocalForm(sub, prefix, params, iface, opts.Coffee, opts.Diagonal)
			if err != nil {
				return nil, err
			}
			//
			return assembleKernelInfos(compiled, numberMap, subspaceMap), nil
		})
		//
		if err != nil {
			return nil, err
		}
		//
		for _, kinfo := range kinfos {
			kernels = append(kernels, SplitKernel{split.Indices, kinfo})
		}
	}
	// First stash wins, so concurrent compilations converge on one slice.
	return f.StashMemo(memoKey, kernels).([]SplitKernel), nil
}

// splitForCompile decomposes the form per the options: block splitting,
// diagonal extraction, or a single unrestricted pseudo-split.
func splitForCompile(f *form.Form, opts *CompileOptions) ([]SplitForm, error) {
	if opts.Split {
		return Split(f, opts.Diagonal)
	}
	//
	nargs := len(f.Arguments())
	//
	if opts.Diagonal {
		if nargs != 2 {
			return nil, fmt.Errorf("diagonal assembly requires a bilinear form, got %d argument(s)", nargs)
		}
		//
		nargs = 1
	}
	//
	indices := make([]util.Option[uint], nargs)
	for i := range indices {
		indices[i] = util.None[uint]()
	}
	//
	return []SplitForm{{indices, f, coefficientParts(f)}}, nil
}

// resolveInterface picks the kernel builder variant for this request.  An
// explicit but malformed interface is a configuration error.
func resolveInterface(opts *CompileOptions) (*gen.Interface, error) {
	if opts.Interface != nil {
		if opts.Interface.New == nil || opts.Interface.Name == "" {
			return nil, fmt.Errorf("inconsistent kernel builder interface")
		}
		//
		return opts.Interface, nil
	}
	//
	if opts.Coffee {
		return gen.Coffee, nil
	}
	//
	return gen.Loopy, nil
}

// realMangle replaces any argument in the space of space-wide constants with
// the literal 1 before lowering, since the code generator cannot handle
// Real-typed arguments.  When only the test argument is Real, the trial
// argument takes over the test role so the generator sees a consistent unary
// form.
func realMangle(f *form.Form) (*form.Form, error) {
	var (
		args    = f.Arguments()
		reals   = make([]bool, len(args))
		anyReal = false
	)
	//
	for i, arg := range args {
		reals[i] = arg.Space.IsReal()
		anyReal = anyReal || reals[i]
	}
	//
	if !anyReal {
		return f, nil
	}
	//
	replacements := make(map[*form.Argument]form.Expr)
	//
	for i, arg := range args {
		if reals[i] {
			replacements[arg] = form.NewLiteral(1)
		}
	}
	// Test-Real with non-Real trial: promote the trial function to a test
	// function.
	if len(args) == 2 && reals[0] && !reals[1] {
		replacements[args[1]] = form.Ref(form.NewArgument(args[1].Space, 0))
	}
	//
	return f.Replace(replacements)
}
