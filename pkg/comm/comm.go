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

// Communicator abstracts a fixed-size group of cooperating processes.  All
// cross-process coordination in the kernel cache goes through the two
// collective operations below, which every member of the group must enter for
// a given exchange.  Entering a collective with divergent arguments across the
// group is undefined behaviour.
type Communicator interface {
	// Rank returns the position of the calling process within the group.
	// Rank 0 is the designated root and is the only member permitted to touch
	// shared filesystem state.
	Rank() uint
	// Size returns the number of processes in the group.
	Size() uint
	// ID returns a stable identifier for the group.  Distinct groups compiling
	// the same form must have distinct identifiers, otherwise their collective
	// calls can interleave and deadlock.
	ID() string
	// Broadcast distributes data from the given root to every member of the
	// group.  All members receive the root's data (which may be nil, signalling
	// absence); the data argument of non-root members is ignored.
	Broadcast(root uint, data []byte) []byte
	// Barrier blocks until every member of the group has entered it.
	Barrier()
}

// Self is the trivial communicator: a group of exactly one process.  Its
// collectives are no-ops, making it the natural default for serial runs.
type Self struct {
	name string
}

// NewSelf constructs a singleton communicator with the given group name.
func NewSelf(name string) *Self {
	return &Self{name}
}

// Rank of the sole member, which is always the root.
func (p *Self) Rank() uint {
	return 0
}

// Size of a singleton group is always one.
func (p *Self) Size() uint {
	return 1
}

// ID returns the group name.
func (p *Self) ID() string {
	return p.name
}

// Broadcast within a singleton group simply returns the root's data.
func (p *Self) Broadcast(root uint, data []byte) []byte {
	if root != 0 {
		panic("invalid root for singleton communicator")
	}
	//
	return data
}

// Barrier within a singleton group is a no-op.
func (p *Self) Barrier() {
	// nothing to wait for
}

// World is the default communicator used when a domain is constructed without
// an explicit one.
var World Communicator = NewSelf("world")
