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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/tessella/tessella/pkg/comm"
)

// ErrCacheMiss signals that a digest is absent from both cache tiers.  It is
// not a failure: it is the normal trigger for compilation.
var ErrCacheMiss = pkgerrors.New("kernel cache miss")

// CacheDirEnvVar overrides the on-disk cache root when set.
const CacheDirEnvVar = "TESSELLA_KERNEL_CACHE_DIR"

// DefaultCacheDir returns the on-disk cache root: the environment override if
// set, otherwise a per-user directory under the system temp directory.
func DefaultCacheDir() string {
	if dir := os.Getenv(CacheDirEnvVar); dir != "" {
		return dir
	}
	//
	return filepath.Join(os.TempDir(), fmt.Sprintf("tessella-kernel-cache-uid%d", os.Getuid()))
}

// KernelCache is a two-tier content-addressed cache mapping a digest to a set
// of compiled kernel records.  The in-memory tier is process-local and never
// evicted except by Clear; the on-disk tier is shared by every process group
// system-wide, sharded by the first two digest characters.
//
// Lookup, Store, Fetch and Clear are collective over the communicator they
// are given: every member of the group must enter them in lockstep with the
// same digest.  Members of one group passing different digests to the same
// collective call is undefined behaviour.  One cache instance serves exactly
// one process (rank); ranks never share an instance.
type KernelCache struct {
	// Root directory of the on-disk tier.
	dir string
	// Guards the in-memory table.
	mutex sync.Mutex
	// In-memory tier, keyed by digest and group identifier.  The group
	// participates so that distinct communicators compiling the same form
	// never alias one another's entries.
	table map[string][]KernelInfo
	// Deduplicates concurrent in-process compilations of one digest.
	flight singleflight.Group
}

// NewKernelCache constructs a kernel cache rooted at the given directory.
// One instance is expected per process, constructed at startup and injected
// into the compile pipeline.
func NewKernelCache(dir string) *KernelCache {
	return &KernelCache{dir: dir, table: make(map[string][]KernelInfo)}
}

// Dir returns the root directory of the on-disk tier.
func (p *KernelCache) Dir() string {
	return p.dir
}

func (p *KernelCache) memoryKey(g comm.Communicator, digest string) string {
	return digest + ":" + g.ID()
}

// Lookup is the collective cache read: the in-memory table is consulted
// first; on miss, the group root reads the sharded on-disk entry and
// broadcasts the raw bytes (or an absence signal) to the whole group, so
// every member observes the same outcome.  A corrupted or unreadable entry is
// treated as absence.
func (p *KernelCache) Lookup(g comm.Communicator, digest string) ([]KernelInfo, error) {
	key := p.memoryKey(g, digest)
	//
	p.mutex.Lock()
	kernels, ok := p.table[key]
	p.mutex.Unlock()
	//
	if ok {
		log.Debugf("kernel cache hit (memory) for %s", digest)
		return kernels, nil
	}
	//
	var raw []byte
	//
	if g.Rank() == 0 {
		raw = p.readShard(digest)
	}
	//
	raw = g.Broadcast(0, raw)
	//
	if raw == nil {
		return nil, ErrCacheMiss
	}
	//
	kernels, err := decodeBundle(raw)
	if err != nil {
		// Corruption falls back to fresh compilation.
		log.Debugf("discarding corrupted cache entry for %s: %v", digest, err)
		return nil, ErrCacheMiss
	}
	//
	log.Debugf("kernel cache hit (disk) for %s", digest)
	//
	p.mutex.Lock()
	p.table[key] = kernels
	p.mutex.Unlock()
	//
	return kernels, nil
}

// readShard reads and decompresses the on-disk entry for a digest, returning
// nil on absence or corruption.  Only the group root calls this.
func (p *KernelCache) readShard(digest string) []byte {
	file, err := os.Open(filepath.Join(p.dir, digest[:2], digest[2:]))
	if err != nil {
		return nil
	}
	//
	defer file.Close()
	//
	reader, err := gzip.NewReader(file)
	if err != nil {
		return nil
	}
	//
	defer reader.Close()
	//
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil
	}
	//
	return data
}

// Store is the collective publish: every member installs the kernels into its
// in-memory table, the group root atomically publishes the serialised bundle
// (write to a temporary file in the shard directory, then rename into place),
// and a group-wide barrier ensures no member proceeds before the artifact is
// durable.  Concurrent writers racing on one key are harmless since the key
// fully determines the content.
func (p *KernelCache) Store(g comm.Communicator, digest string, kernels []KernelInfo) error {
	p.mutex.Lock()
	p.table[p.memoryKey(g, digest)] = kernels
	p.mutex.Unlock()
	//
	var err error
	//
	if g.Rank() == 0 {
		err = p.writeShard(digest, kernels)
	}
	// Everyone waits for the publish, even if it failed on the root; skipping
	// the barrier on error would desynchronise the group.
	g.Barrier()
	//
	return err
}

// writeShard atomically publishes a bundle under its sharded path.  Only the
// group root calls this.
func (p *KernelCache) writeShard(digest string, kernels []KernelInfo) error {
	data, err := encodeBundle(kernels)
	if err != nil {
		return err
	}
	//
	shard := filepath.Join(p.dir, digest[:2])
	// Racing processes may create the shard concurrently; that is fine.
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return pkgerrors.Wrapf(err, "creating cache shard %s", shard)
	}
	//
	tempname := filepath.Join(shard, fmt.Sprintf("%s_p%d.tmp", digest[2:], os.Getpid()))
	//
	file, err := os.Create(tempname)
	if err != nil {
		return pkgerrors.Wrapf(err, "creating cache entry %s", tempname)
	}
	//
	writer := gzip.NewWriter(file)
	//
	if _, err := writer.Write(data); err != nil {
		file.Close()
		os.Remove(tempname)
		//
		return pkgerrors.Wrapf(err, "writing cache entry %s", tempname)
	}
	//
	if err := writer.Close(); err != nil {
		file.Close()
		os.Remove(tempname)
		//
		return pkgerrors.Wrapf(err, "compressing cache entry %s", tempname)
	}
	//
	if err := file.Close(); err != nil {
		os.Remove(tempname)
		return pkgerrors.Wrapf(err, "closing cache entry %s", tempname)
	}
	//
	if err := os.Rename(tempname, filepath.Join(shard, digest[2:])); err != nil {
		// Failed publishes must not strand the temporary file in the shard.
		os.Remove(tempname)
		//
		return pkgerrors.Wrapf(err, "publishing cache entry for %s", digest)
	}
	//
	log.Debugf("published kernel cache entry for %s", digest)
	//
	return nil
}

// Fetch performs the full collective lookup/compile/publish sequence for a
// digest, guaranteeing at most one compilation per digest per group per cache
// lifetime (concurrent in-process requests are deduplicated, and the
// publish-barrier prevents any member re-triggering a redundant compile).
// The compile callback runs only on a miss; its error propagates unchanged
// and nothing is published on failure.
func (p *KernelCache) Fetch(g comm.Communicator, digest string,
	compile func() ([]KernelInfo, error)) ([]KernelInfo, error) {
	value, err, _ := p.flight.Do(p.memoryKey(g, digest), func() (any, error) {
		kernels, err := p.Lookup(g, digest)
		//
		if err == nil {
			return kernels, nil
		} else if err != ErrCacheMiss {
			return nil, err
		}
		//
		log.Debugf("kernel cache miss for %s", digest)
		//
		if kernels, err = compile(); err != nil {
			return nil, err
		}
		//
		if err := p.Store(g, digest, kernels); err != nil {
			return nil, err
		}
		//
		return kernels, nil
	})
	//
	if err != nil {
		return nil, err
	}
	//
	return value.([]KernelInfo), nil
}

// Clear drops the entire on-disk store (the group root removes and recreates
// the cache root) and invalidates every in-memory entry of this instance.
// In-flight readers observe no consistency guarantees during a clear; callers
// must serialise clears with compilation.
func (p *KernelCache) Clear(g comm.Communicator) error {
	p.mutex.Lock()
	p.table = make(map[string][]KernelInfo)
	p.mutex.Unlock()
	//
	if g.Rank() != 0 {
		return nil
	}
	//
	if err := os.RemoveAll(p.dir); err != nil {
		return pkgerrors.Wrapf(err, "clearing kernel cache %s", p.dir)
	}
	//
	return pkgerrors.Wrapf(os.MkdirAll(p.dir, 0o755), "recreating kernel cache %s", p.dir)
}
