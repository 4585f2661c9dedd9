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

// Package inotab is the "new_inode"/"iget"/"iput" inode-table collaborator
// the namespace layer allocates and resolves inodes through: the narrow
// surface the directory code needs, plus an in-memory implementation.
package inotab

import "time"

// Flags are the on-disk inode flags the directory and versioning code
// consult.
type Flags uint32

const (
	// FlagUnchangeable marks an inode as a past version: no mutation may
	// target it directly, only through a newer head in its version chain.
	FlagUnchangeable Flags = 1 << iota
	// FlagUnversionable suppresses dup_inode cloning entirely.
	FlagUnversionable
	// FlagFakeInode marks a VFS-only projection with no on-disk presence.
	FlagFakeInode
	// FlagImmutable is forced onto every FakeInode.
	FlagImmutable
	// FlagIndex marks a directory inode as backed by a HashedDirIndex rather
	// than a LinearDir.
	FlagIndex
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Kind discriminates the inode's operation table: callers dispatch on it
// where a kernel filesystem would install a per-type operations vector.
type Kind uint8

const (
	KindRegular Kind = iota
	KindDirectory
	KindSymlink
	KindCharDevice
	KindBlockDevice
	KindFIFO
	KindSocket
)

// Inode is the in-memory inode. Directory entries refer to inodes only by
// 32-bit number; this struct never holds a pointer back to a directory
// record, so the version chain stays a flat list of numbers.
type Inode struct {
	Number uint32
	Kind   Kind

	Mode  uint32
	UID   uint32
	GID   uint32
	Size  int64
	Nlink uint32

	Atime, Mtime, Ctime time.Time

	Flags Flags

	// DirectBlocks and IndirectBlocks are opaque to the core; they are
	// whatever the out-of-scope block allocator hands back. The core never
	// interprets them beyond copying them whole during dup_inode.
	DirectBlocks   [12]uint32
	IndirectBlocks []uint32

	// CowBitmap tracks which blocks of this inode are still shared with an
	// older version in its chain; dup_inode moves it whole onto the clone.
	CowBitmap []byte

	// EpochNumber is the epoch this inode version was created in.
	EpochNumber uint32

	// NextInode is the older version in this inode's chain, 0 if none.
	NextInode uint32

	// NextOrphan links this inode into the superblock's orphan list, 0 if
	// not orphaned.
	NextOrphan uint32

	// Backing is the persistent inode whose block map a FakeInode projects,
	// 0 for real inodes. Directory reads against a projection are served
	// from the backing inode's blocks.
	Backing uint32

	// Generation is reported to the kernel with each entry. MemTable sets it
	// to 1 when it mints an inode and never reuses a freed number, and
	// dup_inode copies it unchanged, so nothing in this module bumps it.
	Generation uint32

	// Target is the symlink target, only meaningful for KindSymlink.
	Target string

	// Rdev is the device number, only meaningful for KindCharDevice and
	// KindBlockDevice (the mknod major/minor pair, packed the usual way).
	Rdev uint32
}

// Clone returns a deep copy of in, suitable as the starting point for
// dup_inode's new persistent inode.
func (in *Inode) Clone() *Inode {
	out := *in
	out.IndirectBlocks = append([]uint32(nil), in.IndirectBlocks...)
	out.CowBitmap = append([]byte(nil), in.CowBitmap...)
	return &out
}

// IsDir reports whether this inode is a directory, for callers that only
// have the inotab package in scope.
func (in *Inode) IsDir() bool { return in.Kind == KindDirectory }
