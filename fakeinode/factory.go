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

// Package fakeinode mints ephemeral, read-only VFS-level inodes that
// project a historical inode version, numbered from a reserved high range
// disjoint from persistent inode numbers.
package fakeinode

import (
	"sync/atomic"

	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/xattr"
)

// counter is the process-wide, monotonically decreasing FakeInode number
// source starting at math.MaxUint32. It is an atomic so concurrent lookups
// that each mint a FakeInode never collide.
var counter atomic.Uint32

func init() {
	counter.Store(^uint32(0))
}

// nextNumber returns the next FakeInode number. The decrement and read are
// a single atomic operation so two concurrent mints never share a number.
func nextNumber() uint32 {
	return counter.Add(^uint32(0)) // atomic decrement by one
}

// Factory mints FakeInodes, cloning ACL/xattr state through xattr.Store.
type Factory struct {
	attrs xattr.Store
}

func New(attrs xattr.Store) *Factory {
	return &Factory{attrs: attrs}
}

// Project returns a VFS-only inode projecting backing at requestedEpoch:
// it clones mode/ids/sizes/times/block map/flags/ACL/generation, forces
// UNCHANGEABLE|UNVERSIONABLE|FAKEINODE|IMMUTABLE, sets EpochNumber to
// requestedEpoch and NextInode to 0, and releases one reference on backing
// (the caller's).
//
// table is used only to release backing's lookup reference; the returned
// FakeInode is never registered in table since it has no on-disk presence.
func (f *Factory) Project(table inotab.Table, backing *inotab.Inode, requestedEpoch uint32) *inotab.Inode {
	fake := backing.Clone()
	fake.Number = nextNumber()
	fake.Backing = backing.Number
	if backing.Backing != 0 {
		fake.Backing = backing.Backing
	}
	fake.Flags |= inotab.FlagUnchangeable | inotab.FlagUnversionable | inotab.FlagFakeInode | inotab.FlagImmutable
	fake.EpochNumber = requestedEpoch
	fake.NextInode = 0
	fake.Generation = backing.Generation

	f.attrs.CloneDefaults(backing.Number, fake.Number)

	table.Put(backing)
	return fake
}

// ProjectListing returns a directory FakeInode for a version-listing
// lookup (a bare trailing flux token). NextInode is sourced from the
// parent directory inode's own chain head, not from the projected inode
// itself; see DESIGN.md's Open Question ledger for why this asymmetry is
// kept.
func (f *Factory) ProjectListing(table inotab.Table, backing *inotab.Inode, parentDir *inotab.Inode, systemEpoch uint32) *inotab.Inode {
	fake := f.Project(table, backing, systemEpoch)
	fake.NextInode = parentDir.NextInode // DESIGN.md Open Question 2: intentional.
	return fake
}

// IsFakeRange reports whether number falls in the reserved high range
// FakeInode numbers are drawn from, i.e. it is not (and never will be) a
// persistent on-disk inode number.
func IsFakeRange(number uint32) bool {
	return number > 0xF0000000
}
