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

package htree

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxfs/fluxdir/dirleaf"
)

// Lookup resolves name within the index, scoped to epoch.
func (x *Index) Lookup(ctx context.Context, name string, epoch uint32) (*dirleaf.Entry, error) {
	e, _, err := x.LookupBlock(ctx, name, epoch)
	return e, err
}

// LookupBlock is Lookup but also returns the block the matching entry lives
// in, needed by callers (namespace.Ops) that go on to Tombstone it.
func (x *Index) LookupBlock(ctx context.Context, name string, epoch uint32) (*dirleaf.Entry, uint32, error) {
	// "." and ".." live in the root block itself, never in a hash leaf.
	if name == "." || name == ".." {
		e, err := x.scanLeaf(ctx, 0, name, epoch)
		return e, 0, err
	}
	hash := x.hasher.Hash(name, x.seed)
	frames, leafBlock, err := x.Probe(ctx, hash)
	if err != nil {
		return nil, 0, err
	}
	for {
		e, err := x.scanLeaf(ctx, leafBlock, name, epoch)
		if err == nil {
			return e, leafBlock, nil
		}
		if !errors.Is(err, dirleaf.ErrNotFound) {
			return nil, 0, err
		}

		// A hash bucket may span multiple physical leaves; keep scanning
		// while the next sibling leaf starts at the same hash.
		var ok bool
		frames, leafBlock, ok, err = x.NextLeaf(ctx, frames)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, dirleaf.ErrNotFound
		}
		deepest := frames[len(frames)-1]
		if deepest.Entries[deepest.At].Hash != hash {
			return nil, 0, dirleaf.ErrNotFound
		}
	}
}

func (x *Index) scanLeaf(ctx context.Context, block uint32, name string, epoch uint32) (*dirleaf.Entry, error) {
	buf, err := x.dev.BRead(ctx, x.ino, block, false)
	if err != nil {
		return nil, err
	}
	defer buf.Release()
	leaf := dirleaf.New(buf.Bytes())
	return leaf.Scan(name, epoch)
}

// Insert adds a new entry to the index, splitting the target leaf (and, if
// necessary, promoting the root into a second level) when it overflows.
func (x *Index) Insert(ctx context.Context, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	hash := x.hasher.Hash(name, x.seed)
	frames, leafBlock, err := x.Probe(ctx, hash)
	if err != nil {
		return err
	}

	err = x.insertIntoLeaf(ctx, leafBlock, name, ino, ft, birthEpoch)
	if err == nil {
		return nil
	}
	if !errors.Is(err, dirleaf.ErrNoSpace) {
		return err
	}

	return x.splitAndInsert(ctx, frames, leafBlock, name, ino, ft, birthEpoch)
}

func (x *Index) insertIntoLeaf(ctx context.Context, block uint32, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	buf, err := x.dev.BRead(ctx, x.ino, block, false)
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

// splitAndInsert performs the classic overflow dance: pack the full leaf,
// sort its live-and-dead records by hash, move the upper half to a freshly
// allocated leaf, retry the insert in whichever half now has room, and
// promote the new leaf's lowest hash into the parent index (splitting the
// parent too, if it is itself full).
func (x *Index) splitAndInsert(ctx context.Context, frames []Frame, leafBlock uint32, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	oldBuf, err := x.dev.BRead(ctx, x.ino, leafBlock, false)
	if err != nil {
		return err
	}
	oldLeaf := dirleaf.New(oldBuf.Bytes())
	if _, err := oldLeaf.Pack(); err != nil {
		oldBuf.Release()
		return err
	}
	sorted, err := oldLeaf.BuildMap(func(n string) uint32 { return x.hasher.Hash(n, x.seed) })
	oldBuf.Release()
	if err != nil {
		return err
	}
	if len(sorted) < 2 {
		return fmt.Errorf("htree: leaf has no room to split (only %d records)", len(sorted))
	}

	mid := splitPoint(sorted, x.dev.BlockSize())
	splitHash := x.hasher.Hash(sorted[mid].Name, x.seed)

	newBlock, newBuf, err := x.dev.Append(ctx, x.ino)
	if err != nil {
		return err
	}
	newLeaf := dirleaf.New(newBuf.Bytes())
	newLeaf.Init()
	for _, e := range sorted[mid:] {
		if err := newLeaf.InsertRaw(&dirleaf.Entry{
			Inode: e.Inode, NameLen: e.NameLen, FileType: e.FileType,
			BirthEpoch: e.BirthEpoch, DeathEpoch: e.DeathEpoch, Name: e.Name,
		}); err != nil {
			newBuf.Release()
			return fmt.Errorf("htree: split migration failed: %w", err)
		}
	}
	newBuf.MarkDirty()
	newBuf.Release()

	// Rebuild the old leaf from only the lower half.
	oldBuf, err = x.dev.BRead(ctx, x.ino, leafBlock, false)
	if err != nil {
		return err
	}
	oldLeaf = dirleaf.New(oldBuf.Bytes())
	oldLeaf.Init()
	for _, e := range sorted[:mid] {
		if err := oldLeaf.InsertRaw(&dirleaf.Entry{
			Inode: e.Inode, NameLen: e.NameLen, FileType: e.FileType,
			BirthEpoch: e.BirthEpoch, DeathEpoch: e.DeathEpoch, Name: e.Name,
		}); err != nil {
			oldBuf.Release()
			return fmt.Errorf("htree: split migration failed: %w", err)
		}
	}
	oldBuf.MarkDirty()
	oldBuf.Release()

	if err := x.promote(ctx, frames, splitHash, newBlock); err != nil {
		return err
	}

	targetBlock := leafBlock
	targetHash := x.hasher.Hash(name, x.seed)
	if targetHash >= splitHash {
		targetBlock = newBlock
	}
	return x.insertIntoLeaf(ctx, targetBlock, name, ino, ft, birthEpoch)
}

// splitPoint picks the index at which a packed, hash-sorted leaf splits:
// scan from the high end accumulating record bytes, stopping at the first
// record that, counted at half its size, would push the second half past
// half the block.
// Everything at and above the returned index moves to the new leaf.
func splitPoint(sorted []*dirleaf.Entry, blockSize int) int {
	half := blockSize / 2
	size := 0
	move := 0
	for i := len(sorted) - 1; i > 0; i-- {
		rec := int(dirleaf.MinRecLen(len(sorted[i].Name)))
		if size+rec/2 > half {
			break
		}
		size += rec
		move++
	}
	split := len(sorted) - move
	if split < 1 {
		split = 1
	}
	if split >= len(sorted) {
		split = len(sorted) - 1
	}
	return split
}

// promote inserts a new (hash, block) pointer into the index level that
// produced leafBlock, splitting that level's node too if it is itself full,
// and deepening the root by one level the first time that happens.
func (x *Index) promote(ctx context.Context, frames []Frame, hash uint32, block uint32) error {
	if len(frames) == 1 {
		return x.promoteRoot(ctx, frames[0].Entries, hash, block)
	}
	return x.promoteInterior(ctx, frames[1].Block, frames[1].Entries, hash, block)
}

// splitInterior halves an overfull interior node and promotes the split
// hash into the root, the one level of growth still available once the
// tree is two levels deep. A root with no room left means the index is at
// its maximum size.
func (x *Index) splitInterior(ctx context.Context, block uint32, inserted []IndexEntry) error {
	mid := len(inserted) / 2

	newInterior, buf, err := x.dev.Append(ctx, x.ino)
	if err != nil {
		return err
	}
	buf.Release()

	if err := x.writeInterior(ctx, newInterior, inserted[mid:]); err != nil {
		return err
	}
	if err := x.writeInterior(ctx, block, inserted[:mid]); err != nil {
		return err
	}

	info, rootEntries, err := x.ReadRoot(ctx)
	if err != nil {
		return err
	}
	updated := insertSorted(rootEntries, IndexEntry{Hash: inserted[mid].Hash, Block: newInterior})
	if len(updated) > rootLimit(x.dev.BlockSize(), info.InfoLength) {
		return ErrTooDeep
	}
	return x.writeRootEntries(ctx, info, updated)
}

func (x *Index) promoteRoot(ctx context.Context, entries []IndexEntry, hash uint32, block uint32) error {
	info, _, err := x.ReadRoot(ctx)
	if err != nil {
		return err
	}
	limit := rootLimit(x.dev.BlockSize(), info.InfoLength)

	inserted := insertSorted(entries, IndexEntry{Hash: hash, Block: block})
	if len(inserted) <= limit {
		return x.writeRootEntries(ctx, info, inserted)
	}

	// The root itself is full: spill every entry into a fresh interior node
	// and leave the root with a single pointer at indirect_levels=1.
	if info.IndirectLevels > 0 {
		return ErrTooDeep
	}
	interiorBlock, buf, err := x.dev.Append(ctx, x.ino)
	if err != nil {
		return err
	}
	buf.Release()
	if err := x.writeInterior(ctx, interiorBlock, inserted); err != nil {
		return err
	}
	info.IndirectLevels = 1
	return x.writeRootEntries(ctx, info, []IndexEntry{{Hash: 0, Block: interiorBlock}})
}

func (x *Index) promoteInterior(ctx context.Context, block uint32, entries []IndexEntry, hash uint32, newBlock uint32) error {
	limit := nodeLimit(x.dev.BlockSize())
	inserted := insertSorted(entries, IndexEntry{Hash: hash, Block: newBlock})
	if len(inserted) > limit {
		return x.splitInterior(ctx, block, inserted)
	}
	return x.writeInterior(ctx, block, inserted)
}

func (x *Index) writeRootEntries(ctx context.Context, info RootInfo, entries []IndexEntry) error {
	buf, err := x.dev.BRead(ctx, x.ino, 0, false)
	if err != nil {
		return err
	}
	defer buf.Release()
	b := buf.Bytes()
	encodeRootInfo(b[rootFixedHeader:], info)
	if err := writeEntries(b[rootFixedHeader+int(info.InfoLength):], entries, rootLimit(len(b), info.InfoLength)); err != nil {
		return err
	}
	buf.MarkDirty()
	return nil
}

func insertSorted(entries []IndexEntry, e IndexEntry) []IndexEntry {
	out := make([]IndexEntry, 0, len(entries)+1)
	placed := false
	for _, cur := range entries {
		if !placed && e.Hash < cur.Hash {
			out = append(out, e)
			placed = true
		}
		out = append(out, cur)
	}
	if !placed {
		out = append(out, e)
	}
	return out
}

// Tombstone marks entry deleted within the leaf at block.
func (x *Index) Tombstone(ctx context.Context, block uint32, entry *dirleaf.Entry, curEpoch uint32) error {
	buf, err := x.dev.BRead(ctx, x.ino, block, false)
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
