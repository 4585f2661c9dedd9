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

// Package blockio is the "bread"/"append"/buffer-cache collaborator the
// directory engines read and extend blocks through: the narrow interface
// the directory code is written against, plus an in-memory fake and a real
// file-backed device.
package blockio

import (
	"context"
	"fmt"
)

// Buffer is a pinned, blocksize-aligned reference to one block. Callers must
// call Release when done; Device implementations may use this to drive
// reference counting in a real buffer cache.
type Buffer interface {
	// Bytes returns the block's contents. Mutations are only durable once
	// MarkDirty and Release have both been called.
	Bytes() []byte

	// MarkDirty records that Bytes() was mutated and must be written back.
	MarkDirty()

	// Release gives up this pinned reference.
	Release()
}

// Device is the host-provided block device backing one inode's data
// blocks, standing in for bread()/append() and the buffer cache behind
// them.
type Device interface {
	// BlockSize returns the fixed block size of this device.
	BlockSize() int

	// BRead returns the buffer for the given block of the given inode,
	// creating a zero-filled block if create is true and the block does not
	// yet exist.
	BRead(ctx context.Context, ino uint64, block uint32, create bool) (Buffer, error)

	// Append allocates a new block at the end of the given inode's data and
	// returns it pinned and ready to write, extending the inode's size by one
	// block.
	Append(ctx context.Context, ino uint64) (block uint32, buf Buffer, err error)

	// NumBlocks reports how many blocks the given inode currently occupies.
	NumBlocks(ino uint64) uint32
}

// ErrNoSpace is returned by Append when the device-level allocator (out of
// scope for the core) has exhausted its budget.
type ErrNoSpace struct{ Ino uint64 }

func (e *ErrNoSpace) Error() string {
	return fmt.Sprintf("blockio: no space to extend inode %d", e.Ino)
}

// ErrIO wraps an underlying read/write failure.
type ErrIO struct {
	Ino   uint64
	Block uint32
	Err   error
}

func (e *ErrIO) Error() string {
	return fmt.Sprintf("blockio: I/O error on inode %d block %d: %v", e.Ino, e.Block, e.Err)
}

func (e *ErrIO) Unwrap() error { return e.Err }
