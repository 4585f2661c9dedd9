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

// Package lineardir implements the fallback, unindexed directory used
// while the directory inode does not carry the INDEX flag. Lookup is a
// circular scan from a cached per-directory hint, with batched readahead
// so a cold lookup does not pay for sequential single-block reads.
package lineardir

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/internal/workerqueue"
)

// ErrNoSpace is returned by Insert when the single linear block is full;
// the caller should attempt linear-to-indexed promotion if the feature is
// enabled, or fail with blockio's NO_SPACE otherwise.
var ErrNoSpace = dirleaf.ErrNoSpace

// Dir is a LinearDir bound to one directory inode.
type Dir struct {
	dev blockio.Device
	ino uint64

	// raSize bounds how many blocks are read ahead per scan pass.
	raSize int

	mu   sync.Mutex
	hint uint32 // GUARDED_BY(mu): dir_start_lookup, the block to resume scanning from
}

// New returns a LinearDir over the given directory inode's blocks.
func New(dev blockio.Device, ino uint64, raSize int) *Dir {
	if raSize < 1 {
		raSize = 1
	}
	return &Dir{dev: dev, ino: ino, raSize: raSize}
}

// Init formats block 0 as a single empty leaf with synthetic "." and ".."
// entries, the state a freshly created directory's single block starts in.
func (d *Dir) Init(ctx context.Context, selfIno, parentIno uint32, birthEpoch uint32) error {
	buf, err := d.dev.BRead(ctx, d.ino, 0, true)
	if err != nil {
		return err
	}
	defer buf.Release()

	leaf := dirleaf.New(buf.Bytes())
	leaf.Init()
	if err := leaf.Insert(".", selfIno, dirleaf.FTDir, birthEpoch); err != nil {
		return err
	}
	if err := leaf.Insert("..", parentIno, dirleaf.FTDir, birthEpoch); err != nil {
		return err
	}
	buf.MarkDirty()
	return nil
}

// scanBlock scans a single block for name in scope for epoch.
func (d *Dir) scanBlock(ctx context.Context, block uint32, name string, epoch uint32) (*dirleaf.Entry, error) {
	buf, err := d.dev.BRead(ctx, d.ino, block, false)
	if err != nil {
		return nil, err
	}
	defer buf.Release()
	return dirleaf.New(buf.Bytes()).Scan(name, epoch)
}

// Lookup scans the directory for name in scope for epoch, starting from the
// cached hint block and wrapping circularly. "." and ".." always
// short-circuit to block 0 without consulting the hint.
func (d *Dir) Lookup(ctx context.Context, name string, epoch uint32) (*dirleaf.Entry, uint32, error) {
	if name == "." || name == ".." {
		e, err := d.scanBlock(ctx, 0, name, epoch)
		return e, 0, err
	}

	total := d.dev.NumBlocks(d.ino)
	if total == 0 {
		return nil, 0, dirleaf.ErrNotFound
	}

	d.mu.Lock()
	start := d.hint % total
	d.mu.Unlock()

	block, entry, err := d.scanFrom(ctx, start, total, name, epoch)
	if errors.Is(err, dirleaf.ErrNotFound) {
		// If the directory grew while we were scanning (an insert landed past
		// the original total), sweep the newly appended tail once.
		if grown := d.dev.NumBlocks(d.ino); grown > total {
			block, entry, err = d.scanRange(ctx, total, grown, name, epoch)
		}
	}
	if err != nil {
		return nil, 0, err
	}

	d.updateHint(block)
	return entry, block, nil
}

func (d *Dir) updateHint(block uint32) {
	d.mu.Lock()
	d.hint = block
	d.mu.Unlock()
}

// scanFrom performs the circular scan: [start, total) then [0, start),
// issuing readahead in raSize batches ahead of the block actually being
// consumed.
func (d *Dir) scanFrom(ctx context.Context, start, total uint32, name string, epoch uint32) (uint32, *dirleaf.Entry, error) {
	order := make([]uint32, 0, total)
	for i := uint32(0); i < total; i++ {
		order = append(order, (start+i)%total)
	}
	return d.scanOrder(ctx, order, name, epoch)
}

func (d *Dir) scanRange(ctx context.Context, from, to uint32, name string, epoch uint32) (uint32, *dirleaf.Entry, error) {
	order := make([]uint32, 0, to-from)
	for b := from; b < to; b++ {
		order = append(order, b)
	}
	return d.scanOrder(ctx, order, name, epoch)
}

// scanOrder walks order, a sequence of block numbers, issuing readahead
// raSize blocks at a time and waiting for each batch before scanning it.
func (d *Dir) scanOrder(ctx context.Context, order []uint32, name string, epoch uint32) (uint32, *dirleaf.Entry, error) {
	for i := 0; i < len(order); i += d.raSize {
		batch := order[i:min(i+d.raSize, len(order))]
		bufs := make([]blockio.Buffer, len(batch))

		jobs := make([]func(context.Context) error, len(batch))
		for j, block := range batch {
			j, block := j, block
			jobs[j] = func(ctx context.Context) error {
				buf, err := d.dev.BRead(ctx, d.ino, block, false)
				if err != nil {
					return err
				}
				bufs[j] = buf
				return nil
			}
		}
		if err := workerqueue.Run(ctx, d.raSize, jobs); err != nil {
			releaseAll(bufs)
			return 0, nil, err
		}

		for j, block := range batch {
			leaf := dirleaf.New(bufs[j].Bytes())
			e, err := leaf.Scan(name, epoch)
			bufs[j].Release()
			if err == nil {
				return block, e, nil
			}
			if !errors.Is(err, dirleaf.ErrNotFound) {
				return 0, nil, err
			}
		}
	}
	return 0, nil, dirleaf.ErrNotFound
}

func releaseAll(bufs []blockio.Buffer) {
	for _, b := range bufs {
		if b != nil {
			b.Release()
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Insert adds a new entry to the single linear block. It fails with
// ErrNoSpace if the block is full; the caller drives promotion to
// HashedDirIndex.
func (d *Dir) Insert(ctx context.Context, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	buf, err := d.dev.BRead(ctx, d.ino, 0, false)
	if err != nil {
		return err
	}
	defer buf.Release()

	leaf := dirleaf.New(buf.Bytes())
	if err := leaf.Insert(name, ino, ft, birthEpoch); err != nil {
		return err
	}
	buf.MarkDirty()
	return nil
}

// Tombstone marks entry deleted in the block it was found in.
func (d *Dir) Tombstone(ctx context.Context, block uint32, entry *dirleaf.Entry, curEpoch uint32) error {
	buf, err := d.dev.BRead(ctx, d.ino, block, false)
	if err != nil {
		return err
	}
	defer buf.Release()

	leaf := dirleaf.New(buf.Bytes())
	if err := leaf.Tombstone(entry, curEpoch); err != nil {
		return err
	}
	buf.MarkDirty()
	return nil
}

// Iterate walks every live record across every block, oldest block first,
// calling fn for each. Used by rmdir's empty_dir check and by fsck.
func (d *Dir) Iterate(ctx context.Context, fn func(*dirleaf.Entry) error) error {
	total := d.dev.NumBlocks(d.ino)
	for b := uint32(0); b < total; b++ {
		buf, err := d.dev.BRead(ctx, d.ino, b, false)
		if err != nil {
			return err
		}
		leaf := dirleaf.New(buf.Bytes())
		walkErr := leaf.WalkLive(fn)
		buf.Release()
		if walkErr != nil {
			return fmt.Errorf("lineardir: %w", walkErr)
		}
	}
	return nil
}

// overflowCounter is a process-wide diagnostic counter of how many times a
// LinearDir has hit ErrNoSpace, surfaced for /metrics scraping by callers
// that want to watch promotion pressure without wiring a histogram.
var overflowCounter atomic.Int64

func NoteOverflow() { overflowCounter.Add(1) }

func OverflowCount() int64 { return overflowCounter.Load() }
