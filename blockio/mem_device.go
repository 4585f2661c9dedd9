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

package blockio

import (
	"context"
	"sync"
)

// MemDevice is an in-memory fake Device, used by tests. It never fails
// allocation unless LimitBlocks is set.
type MemDevice struct {
	blockSize int

	mu          sync.Mutex
	blocks      map[uint64][][]byte
	LimitBlocks int // 0 means unlimited
}

// NewMemDevice returns an empty in-memory block device with the given block
// size.
func NewMemDevice(blockSize int) *MemDevice {
	return &MemDevice{
		blockSize: blockSize,
		blocks:    make(map[uint64][][]byte),
	}
}

func (d *MemDevice) BlockSize() int { return d.blockSize }

func (d *MemDevice) NumBlocks(ino uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.blocks[ino]))
}

func (d *MemDevice) BRead(_ context.Context, ino uint64, block uint32, create bool) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	blocks := d.blocks[ino]
	for uint32(len(blocks)) <= block {
		if !create {
			return nil, &ErrIO{Ino: ino, Block: block, Err: errBlockNotFound}
		}
		blocks = append(blocks, make([]byte, d.blockSize))
	}
	d.blocks[ino] = blocks

	return &memBuffer{data: blocks[block]}, nil
}

func (d *MemDevice) Append(_ context.Context, ino uint64) (uint32, Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	blocks := d.blocks[ino]
	if d.LimitBlocks > 0 && len(blocks) >= d.LimitBlocks {
		return 0, nil, &ErrNoSpace{Ino: ino}
	}

	block := uint32(len(blocks))
	buf := make([]byte, d.blockSize)
	d.blocks[ino] = append(blocks, buf)

	return block, &memBuffer{data: buf}, nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errBlockNotFound = errString("block does not exist")

// memBuffer is a Buffer over a slice shared with MemDevice's backing store;
// since the slice is already the canonical storage, MarkDirty and Release
// are no-ops.
type memBuffer struct {
	data []byte
}

func (b *memBuffer) Bytes() []byte { return b.data }
func (b *memBuffer) MarkDirty()    {}
func (b *memBuffer) Release()      {}
