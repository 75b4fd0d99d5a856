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
	"fmt"
	"sync"
)

// localGroup provides the state shared between the members of an in-process
// communicator group.  Members are expected to run on separate goroutines,
// each standing in for one process of a cooperating group.  This exists so
// that the collective lookup/publish protocol of the kernel cache can be
// exercised without an actual multi-process launcher.
type localGroup struct {
	name string
	size uint
	// One broadcast mailbox per member.  The root posts a copy of its payload
	// into every other member's mailbox.
	mailboxes []chan []byte
	// Barrier state (classic generation-counted barrier).
	mutex      sync.Mutex
	condition  *sync.Cond
	waiting    uint
	generation uint
}

// LocalMember is one member of an in-process communicator group.
type LocalMember struct {
	group *localGroup
	rank  uint
}

// NewLocalGroup constructs an in-process communicator group of the given size,
// returning one communicator per member.  Each returned communicator must be
// driven from its own goroutine.
func NewLocalGroup(name string, size uint) []Communicator {
	if size == 0 {
		panic("empty communicator group")
	}
	//
	group := &localGroup{name: name, size: size}
	group.condition = sync.NewCond(&group.mutex)
	group.mailboxes = make([]chan []byte, size)
	//
	for i := range group.mailboxes {
		group.mailboxes[i] = make(chan []byte, 1)
	}
	//
	members := make([]Communicator, size)
	for i := uint(0); i < size; i++ {
		members[i] = &LocalMember{group, i}
	}
	//
	return members
}

// Rank of this member within its group.
func (p *LocalMember) Rank() uint {
	return p.rank
}

// Size of the group this member belongs to.
func (p *LocalMember) Size() uint {
	return p.group.size
}

// ID returns the group name, which is shared by all members.
func (p *LocalMember) ID() string {
	return p.group.name
}

// Broadcast distributes the root's payload to every member.  The root posts
// into each mailbox and returns immediately; other members block on their own
// mailbox.
func (p *LocalMember) Broadcast(root uint, data []byte) []byte {
	if root >= p.group.size {
		panic(fmt.Sprintf("invalid broadcast root %d (group size %d)", root, p.group.size))
	}
	//
	if p.rank == root {
		for r := uint(0); r < p.group.size; r++ {
			if r != root {
				p.group.mailboxes[r] <- data
			}
		}
		//
		return data
	}
	//
	return <-p.group.mailboxes[p.rank]
}

// Barrier blocks until every member of the group has entered it.
func (p *LocalMember) Barrier() {
	g := p.group
	g.mutex.Lock()
	defer g.mutex.Unlock()
	//
	generation := g.generation
	g.waiting++
	//
	if g.waiting == g.size {
		// Last member in releases everybody.
		g.waiting = 0
		g.generation++
		g.condition.Broadcast()

		return
	}
	// Wait for the generation to roll over.
	for generation == g.generation {
		g.condition.Wait()
	}
}
