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
	"fmt"
	"os"
	"sync"
)

// FileDevice maps each inode's block range onto a single flat backing file,
// blocks laid out per-inode in a simple directory-of-extents table kept in
// memory. It is the "real" Device used by the mkfs/fsck/mount commands when
// not pointed at an in-memory volume.
type FileDevice struct {
	f         *os.File
	blockSize int

	mu     sync.Mutex
	extent map[uint64][]int64 // ino -> ordered list of byte offsets, one per block
	next   int64               // next free byte offset at which to append
}

// NewFileDevice opens (or creates) a flat backing file for block storage.
func NewFileDevice(path string, blockSize int) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockio: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockio: stat %s: %w", path, err)
	}

	return &FileDevice{
		f:         f,
		blockSize: blockSize,
		extent:    make(map[uint64][]int64),
		next:      fi.Size(),
	}, nil
}

func (d *FileDevice) Close() error { return d.f.Close() }

func (d *FileDevice) BlockSize() int { return d.blockSize }

func (d *FileDevice) NumBlocks(ino uint64) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.extent[ino]))
}

func (d *FileDevice) BRead(ctx context.Context, ino uint64, block uint32, create bool) (Buffer, error) {
	d.mu.Lock()
	offs := d.extent[ino]
	for uint32(len(offs)) <= block {
		if !create {
			d.mu.Unlock()
			return nil, &ErrIO{Ino: ino, Block: block, Err: errBlockNotFound}
		}
		offs = append(offs, d.allocLocked())
	}
	d.extent[ino] = offs
	off := offs[block]
	d.mu.Unlock()

	buf := make([]byte, d.blockSize)
	if err := preadFull(d.f, buf, off); err != nil {
		return nil, &ErrIO{Ino: ino, Block: block, Err: err}
	}

	return &fileBuffer{dev: d, ino: ino, block: block, off: off, data: buf}, nil
}

func (d *FileDevice) Append(ctx context.Context, ino uint64) (uint32, Buffer, error) {
	d.mu.Lock()
	off := d.allocLocked()
	d.extent[ino] = append(d.extent[ino], off)
	block := uint32(len(d.extent[ino]) - 1)
	d.mu.Unlock()

	data := make([]byte, d.blockSize)
	return block, &fileBuffer{dev: d, ino: ino, block: block, off: off, data: data}, nil
}

// allocLocked reserves the next blocksize-aligned byte range. d.mu must be
// held.
func (d *FileDevice) allocLocked() int64 {
	off := d.next
	d.next += int64(d.blockSize)
	return off
}

type fileBuffer struct {
	dev   *FileDevice
	ino   uint64
	block uint32
	off   int64
	data  []byte
	dirty bool
}

func (b *fileBuffer) Bytes() []byte { return b.data }
func (b *fileBuffer) MarkDirty()    { b.dirty = true }

func (b *fileBuffer) Release() {
	if !b.dirty {
		return
	}
	_ = pwriteFull(b.dev.f, b.data, b.off)
	b.dirty = false
}
