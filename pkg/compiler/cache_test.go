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
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessella/tessella/pkg/comm"
	"github.com/tessella/tessella/pkg/form"
	"github.com/tessella/tessella/pkg/gen"
)

// testDigest stands in for a sha256 hex digest.
var testDigest = strings.Repeat("ab", 32)

func testKinfos(name string) []KernelInfo {
	return []KernelInfo{{
		Kernel: &gen.Kernel{
			Name:         name,
			Backend:      "loopy",
			IntegralType: form.Cell,
			Subdomain:    form.Everywhere,
			Code:         "void " + name + "(double *A) {}\n",
		},
		IntegralType:         form.Cell,
		Subdomain:            form.Everywhere,
		CoefficientMap:       []uint{0},
		RequiresZeroedOutput: true,
	}}
}

func TestCacheLookupMiss(t *testing.T) {
	cache := NewKernelCache(t.TempDir())
	//
	_, err := cache.Lookup(comm.World, testDigest)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheStoreLookup(t *testing.T) {
	var (
		dir    = t.TempDir()
		cache  = NewKernelCache(dir)
		kinfos = testKinfos("stored")
	)
	//
	require.NoError(t, cache.Store(comm.World, testDigest, kinfos))
	// Same instance hits the in-memory tier.
	found, err := cache.Lookup(comm.World, testDigest)
	require.NoError(t, err)
	assert.Equal(t, kinfos, found)
	// A fresh instance over the same directory hits the on-disk tier, which
	// exercises the full serialisation round trip.
	found, err = NewKernelCache(dir).Lookup(comm.World, testDigest)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(kinfos, found))
	// Entries are sharded by digest prefix.
	_, err = os.Stat(filepath.Join(dir, testDigest[:2], testDigest[2:]))
	assert.NoError(t, err)
}

func TestCacheCorruptEntries(t *testing.T) {
	var (
		dir   = t.TempDir()
		shard = filepath.Join(dir, testDigest[:2])
	)
	//
	require.NoError(t, os.MkdirAll(shard, 0o755))
	// Not even gzip.
	require.NoError(t, os.WriteFile(filepath.Join(shard, testDigest[2:]), []byte("garbage"), 0o644))
	//
	_, err := NewKernelCache(dir).Lookup(comm.World, testDigest)
	assert.ErrorIs(t, err, ErrCacheMiss)
	// Valid gzip, but not a kernel bundle.
	file, err := os.Create(filepath.Join(shard, testDigest[2:]))
	require.NoError(t, err)
	//
	writer := gzip.NewWriter(file)
	_, err = writer.Write([]byte("still garbage"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())
	//
	_, err = NewKernelCache(dir).Lookup(comm.World, testDigest)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheFetchCompilesOnce(t *testing.T) {
	const waiters = 8
	//
	var (
		cache    = NewKernelCache(t.TempDir())
		compiles int32
		wg       sync.WaitGroup
	)
	//
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		//
		go func() {
			defer wg.Done()
			//
			kinfos, err := cache.Fetch(comm.World, testDigest, func() ([]KernelInfo, error) {
				atomic.AddInt32(&compiles, 1)
				return testKinfos("once"), nil
			})
			//
			assert.NoError(t, err)
			assert.Len(t, kinfos, 1)
		}()
	}
	//
	wg.Wait()
	//
	assert.Equal(t, int32(1), atomic.LoadInt32(&compiles))
}

func TestCacheFetchErrorNotPublished(t *testing.T) {
	var (
		cache  = NewKernelCache(t.TempDir())
		failed = errors.New("generator exploded")
	)
	//
	_, err := cache.Fetch(comm.World, testDigest, func() ([]KernelInfo, error) {
		return nil, failed
	})
	require.ErrorIs(t, err, failed)
	// Nothing was published, so the next fetch compiles for real.
	kinfos, err := cache.Fetch(comm.World, testDigest, func() ([]KernelInfo, error) {
		return testKinfos("retry"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "retry", kinfos[0].Kernel.Name)
}

func TestCacheClear(t *testing.T) {
	var (
		dir   = t.TempDir()
		cache = NewKernelCache(dir)
	)
	//
	require.NoError(t, cache.Store(comm.World, testDigest, testKinfos("doomed")))
	require.NoError(t, cache.Clear(comm.World))
	//
	_, err := cache.Lookup(comm.World, testDigest)
	assert.ErrorIs(t, err, ErrCacheMiss)
	// The cache root survives, empty.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestCacheCollectiveFetch drives the collective protocol across an
// in-process group of three ranks, each owning its own cache instance over a
// shared directory (as separate processes would).
func TestCacheCollectiveFetch(t *testing.T) {
	const size = 3
	//
	var (
		dir      = t.TempDir()
		members  = comm.NewLocalGroup("pool", size)
		compiles int32
		results  [size][]KernelInfo
		wg       sync.WaitGroup
	)
	// Round one: a cold cache. Every rank compiles (compilation is
	// deterministic, so ranks compile redundantly rather than ship kernels
	// around), and only the root publishes.
	for i, member := range members {
		wg.Add(1)
		//
		go func(rank int, c comm.Communicator) {
			defer wg.Done()
			//
			kinfos, err := NewKernelCache(dir).Fetch(c, testDigest, func() ([]KernelInfo, error) {
				atomic.AddInt32(&compiles, 1)
				return testKinfos("collective"), nil
			})
			//
			assert.NoError(t, err)
			results[rank] = kinfos
		}(i, member)
	}
	//
	wg.Wait()
	//
	assert.Equal(t, int32(size), atomic.LoadInt32(&compiles))
	//
	for rank := 1; rank < size; rank++ {
		assert.Equal(t, results[0], results[rank], "rank %d diverged", rank)
	}
	// Round two: fresh instances over the warm directory. The root reads the
	// entry and broadcasts it, so nobody compiles.
	for _, member := range members {
		wg.Add(1)
		//
		go func(c comm.Communicator) {
			defer wg.Done()
			//
			kinfos, err := NewKernelCache(dir).Fetch(c, testDigest, func() ([]KernelInfo, error) {
				atomic.AddInt32(&compiles, 1)
				return nil, errors.New("must not recompile")
			})
			//
			assert.NoError(t, err)
			assert.Equal(t, results[0], kinfos)
		}(member)
	}
	//
	wg.Wait()
	//
	assert.Equal(t, int32(size), atomic.LoadInt32(&compiles))
}

func TestDefaultCacheDirOverride(t *testing.T) {
	t.Setenv(CacheDirEnvVar, "/nonstandard/kernels")
	assert.Equal(t, "/nonstandard/kernels", DefaultCacheDir())
	//
	t.Setenv(CacheDirEnvVar, "")
	assert.Contains(t, DefaultCacheDir(), "tessella-kernel-cache-uid")
}

func TestCacheFailedPublishLeavesNoTempFile(t *testing.T) {
	var (
		dir   = t.TempDir()
		shard = filepath.Join(dir, testDigest[:2])
	)
	// Blocking the target path with a directory makes the final rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(shard, testDigest[2:]), 0o755))
	//
	err := NewKernelCache(dir).Store(comm.World, testDigest, testKinfos("blocked"))
	require.Error(t, err)
	// The temporary file must not be stranded in the shard directory.
	entries, err := os.ReadDir(shard)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testDigest[2:], entries[0].Name())
}
