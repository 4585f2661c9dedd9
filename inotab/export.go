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

import "sort"

// Export returns a deep copy of every inode plus the next allocation
// number, for volume-manifest persistence. FakeInodes never appear here:
// they are VFS-only and are dropped by Put before a table is exported.
func (t *MemTable) Export() (inodes []Inode, next uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, in := range t.inodes {
		if in.Flags.Has(FlagFakeInode) {
			continue
		}
		inodes = append(inodes, *in.Clone())
	}
	sort.Slice(inodes, func(i, j int) bool { return inodes[i].Number < inodes[j].Number })
	return inodes, t.next
}

// Restore replaces the table's contents with a previously exported set.
// Every restored inode starts with a zero lookup count.
func (t *MemTable) Restore(inodes []Inode, next uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inodes = make(map[uint32]*Inode, len(inodes))
	t.lookups = make(map[uint32]uint32)
	for i := range inodes {
		in := inodes[i].Clone()
		t.inodes[in.Number] = in
	}
	t.next = next
}
