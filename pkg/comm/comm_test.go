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
package comm

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelf(t *testing.T) {
	c := NewSelf("solo")
	//
	assert.Equal(t, uint(0), c.Rank())
	assert.Equal(t, uint(1), c.Size())
	assert.Equal(t, "solo", c.ID())
	assert.Equal(t, []byte("data"), c.Broadcast(0, []byte("data")))
	assert.Nil(t, c.Broadcast(0, nil))
	// Must not block.
	c.Barrier()
}

func TestLocalGroupBroadcast(t *testing.T) {
	const size = 4
	//
	var (
		members = NewLocalGroup("bcast", size)
		results = make([][]byte, size)
		wg      sync.WaitGroup
	)
	//
	for i, member := range members {
		wg.Add(1)
		//
		go func(rank int, c Communicator) {
			defer wg.Done()
			//
			var payload []byte
			if c.Rank() == 0 {
				payload = []byte("hello")
			}
			//
			results[rank] = c.Broadcast(0, payload)
		}(i, member)
	}
	//
	wg.Wait()
	//
	for rank := 0; rank < size; rank++ {
		assert.Equal(t, []byte("hello"), results[rank], "rank %d", rank)
	}
}

func TestLocalGroupBroadcastNil(t *testing.T) {
	var (
		members = NewLocalGroup("absent", 2)
		wg      sync.WaitGroup
		result  []byte
	)
	//
	wg.Add(2)
	//
	go func() {
		defer wg.Done()
		members[0].Broadcast(0, nil)
	}()
	//
	go func() {
		defer wg.Done()
		result = members[1].Broadcast(0, nil)
	}()
	//
	wg.Wait()
	// A nil broadcast signals absence and must arrive as nil.
	assert.Nil(t, result)
}

func TestLocalGroupBarrier(t *testing.T) {
	const size = 3
	//
	var (
		members = NewLocalGroup("barrier", size)
		arrived int32
		seen    = make([]int32, size)
		wg      sync.WaitGroup
	)
	//
	for i, member := range members {
		wg.Add(1)
		//
		go func(rank int, c Communicator) {
			defer wg.Done()
			//
			atomic.AddInt32(&arrived, 1)
			c.Barrier()
			// After the barrier every member must have arrived.
			seen[rank] = atomic.LoadInt32(&arrived)
		}(i, member)
	}
	//
	wg.Wait()
	//
	for rank := 0; rank < size; rank++ {
		assert.Equal(t, int32(size), seen[rank], "rank %d", rank)
	}
}

func TestLocalGroupMetadata(t *testing.T) {
	members := NewLocalGroup("meta", 3)
	require.Len(t, members, 3)
	//
	for i, member := range members {
		assert.Equal(t, uint(i), member.Rank())
		assert.Equal(t, uint(3), member.Size())
		assert.Equal(t, "meta", member.ID())
	}
}
