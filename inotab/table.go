// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inotab

import (
	"fmt"
	"sync"
)

// Table is the iget/iput/new_inode surface NamespaceOps depends on. Mutation
// of a fetched inode's fields is only safe while the caller holds the
// returned lookup reference; Put releases it.
//
// LOCKS_EXCLUDED(mu) on every exported method: Table takes its own lock for
// the duration of each call and never holds it across a caller callback.
type Table interface {
	// Get returns the inode for number, incrementing its lookup count. The
	// caller must call Put exactly once for every successful Get.
	Get(number uint32) (*Inode, error)

	// Put decrements ino's lookup count. Once the count reaches zero and the
	// inode has FlagFakeInode set or has Nlink == 0, the table forgets the
	// in-memory copy; orphan-list membership is not consulted. There is
	// nothing further for the caller to do.
	Put(ino *Inode)

	// New mints a persistent inode at a fresh number with an initial lookup
	// count of one.
	New(kind Kind) (*Inode, error)

	// Delete permanently removes number from the table. The caller must hold
	// the only outstanding reference (lookup count must be exactly one,
	// acquired by the caller's own prior Get or New).
	Delete(number uint32) error
}

// MemTable is an in-memory Table, sufficient to back mkfs'd volumes and unit
// tests without a real on-disk inode bitmap allocator.
type MemTable struct {
	mu      sync.Mutex
	inodes  map[uint32]*Inode
	lookups map[uint32]uint32
	next    uint32
}

func NewMemTable() *MemTable {
	return &MemTable{
		inodes:  make(map[uint32]*Inode),
		lookups: make(map[uint32]uint32),
		next:    1,
	}
}

func (t *MemTable) Get(number uint32) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.inodes[number]
	if !ok {
		return nil, fmt.Errorf("inotab: inode %d not found", number)
	}
	t.lookups[number]++
	return in, nil
}

func (t *MemTable) Put(ino *Inode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := ino.Number
	if t.lookups[n] == 0 {
		return
	}
	t.lookups[n]--
	if t.lookups[n] > 0 {
		return
	}
	delete(t.lookups, n)

	cur, ok := t.inodes[n]
	if !ok {
		return
	}
	if cur.Flags.Has(FlagFakeInode) || cur.Nlink == 0 {
		delete(t.inodes, n)
	}
}

func (t *MemTable) New(kind Kind) (*Inode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.next
	t.next++

	in := &Inode{Number: n, Kind: kind, Nlink: 0, Generation: 1}
	t.inodes[n] = in
	t.lookups[n] = 1
	return in, nil
}

func (t *MemTable) Delete(number uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lookups[number] > 1 {
		return fmt.Errorf("inotab: inode %d has %d outstanding lookups", number, t.lookups[number])
	}
	delete(t.inodes, number)
	delete(t.lookups, number)
	return nil
}

// LookupCount reports the current reference count for number, for tests and
// invariant assertions only.
func (t *MemTable) LookupCount(number uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookups[number]
}
