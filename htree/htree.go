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

// Package htree implements the hashed directory index: a root block
// carrying a RootInfo header and a sorted index of (hash, block) entries,
// an optional single level of interior nodes, and dirleaf-formatted leaves
// at the bottom. Probing descends by binary search on hash; overflow
// promotes a full leaf into two via the classic split-and-reinsert dance,
// and a full root is itself promoted one level deeper by spilling its
// entries into a fresh interior node.
//
// Only zero or one levels of interior nodes are supported; a directory
// large enough to need a second indirect level returns ErrTooDeep rather
// than silently misbehaving.
package htree

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/dirhash"
	"github.com/fluxfs/fluxdir/dirleaf"
)

// ErrBadDxDir is returned when a root or interior node fails its structural
// validation (count > limit, corrupt header, unsorted entries). Callers
// handle it by falling back to a linear scan.
var ErrBadDxDir = errors.New("htree: corrupt index node")

// ErrTooDeep is returned when a split would require a second indirect
// level.
var ErrTooDeep = errors.New("htree: directory index exceeds one indirect level")

const (
	fakeDirentHeaderSize = 16
	rootFixedHeader      = 48 // dot (24) + dotdot's fixed portion (24) ahead of RootInfo
	rootInfoSize         = 8
	countLimitSize       = 4
	indexEntrySize       = 8
)

// RootInfo is the root block's fixed header, immediately following the dot
// and dotdot fake dirents.
type RootInfo struct {
	HashVersion    dirhash.Version
	InfoLength     uint8
	IndirectLevels uint8
}

// IndexEntry is one (hash, block) pointer in a root or interior node.
type IndexEntry struct {
	Hash  uint32
	Block uint32
}

// Index is a HashedDirIndex bound to one directory inode's data blocks.
type Index struct {
	dev    blockio.Device
	ino    uint64
	hasher dirhash.Hasher
	seed   dirhash.Seed
}

// New returns an Index over the given directory inode's blocks.
func New(dev blockio.Device, ino uint64, hasher dirhash.Hasher, seed dirhash.Seed) *Index {
	return &Index{dev: dev, ino: ino, hasher: hasher, seed: seed}
}

// rootLimit returns how many index entries fit in a root block.
func rootLimit(blockSize int, infoLength uint8) int {
	avail := blockSize - rootFixedHeader - int(infoLength) - countLimitSize
	if avail < indexEntrySize {
		return 0
	}
	return avail / indexEntrySize
}

// nodeLimit returns how many index entries fit in an interior node block.
func nodeLimit(blockSize int) int {
	avail := blockSize - fakeDirentHeaderSize - countLimitSize
	if avail < indexEntrySize {
		return 0
	}
	return avail / indexEntrySize
}

// InitRoot formats block 0 of the directory as a fresh indexed root with a
// single entry pointing at leafBlock, the state a directory is promoted into
// the first time its single linear block overflows.
func (x *Index) InitRoot(ctx context.Context, selfIno, parentIno uint32, leafBlock uint32) error {
	buf, err := x.dev.BRead(ctx, x.ino, 0, true)
	if err != nil {
		return err
	}
	defer buf.Release()

	b := buf.Bytes()
	// The dot and dotdot records are real directory records; dotdot's
	// rec_len spans to end of block so a linear sweep of this block skips
	// straight over the index area hidden in its slack.
	writeFakeDirent(b[0:24], selfIno, 24, ".")
	writeFakeDirent(b[24:], parentIno, uint16(len(b)-24), "..")

	info := RootInfo{HashVersion: x.hasher.Version(), InfoLength: rootInfoSize, IndirectLevels: 0}
	encodeRootInfo(b[rootFixedHeader:], info)

	entries := []IndexEntry{{Hash: 0, Block: leafBlock}}
	if err := writeEntries(b[rootFixedHeader+rootInfoSize:], entries, rootLimit(len(b), rootInfoSize)); err != nil {
		return err
	}
	buf.MarkDirty()
	return nil
}

// ReadRoot parses block 0 of the directory.
func (x *Index) ReadRoot(ctx context.Context) (RootInfo, []IndexEntry, error) {
	buf, err := x.dev.BRead(ctx, x.ino, 0, false)
	if err != nil {
		return RootInfo{}, nil, err
	}
	defer buf.Release()

	b := buf.Bytes()
	if len(b) < rootFixedHeader+rootInfoSize+countLimitSize {
		return RootInfo{}, nil, fmt.Errorf("%w: block too small", ErrBadDxDir)
	}
	info := decodeRootInfo(b[rootFixedHeader:])
	limit := rootLimit(len(b), info.InfoLength)
	entries, err := readEntries(b[rootFixedHeader+int(info.InfoLength):], limit)
	if err != nil {
		return RootInfo{}, nil, err
	}
	if err := validateSorted(entries); err != nil {
		return RootInfo{}, nil, err
	}
	return info, entries, nil
}

func (x *Index) readInterior(ctx context.Context, block uint32) ([]IndexEntry, error) {
	buf, err := x.dev.BRead(ctx, x.ino, block, false)
	if err != nil {
		return nil, err
	}
	defer buf.Release()

	b := buf.Bytes()
	entries, err := readEntries(b[fakeDirentHeaderSize:], nodeLimit(len(b)))
	if err != nil {
		return nil, err
	}
	if err := validateSorted(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (x *Index) writeInterior(ctx context.Context, block uint32, entries []IndexEntry) error {
	buf, err := x.dev.BRead(ctx, x.ino, block, true)
	if err != nil {
		return err
	}
	defer buf.Release()

	b := buf.Bytes()
	writeFakeDirentFiller(b[0:fakeDirentHeaderSize], len(b))
	if err := writeEntries(b[fakeDirentHeaderSize:], entries, nodeLimit(len(b))); err != nil {
		return err
	}
	buf.MarkDirty()
	return nil
}

// Frame records one level of descent, for NextLeaf's sibling-leaf iteration.
type Frame struct {
	Block   uint32 // block holding this level's entries (0 for the root)
	Entries []IndexEntry
	At      int // index into Entries of the slot most recently followed
}

// Probe descends from the root to the leaf that should hold hash, binary
// searching each level for the rightmost entry whose Hash <= target.
func (x *Index) Probe(ctx context.Context, hash uint32) ([]Frame, uint32, error) {
	info, rootEntries, err := x.ReadRoot(ctx)
	if err != nil {
		return nil, 0, err
	}

	at := searchSlot(rootEntries, hash)
	frames := []Frame{{Block: 0, Entries: rootEntries, At: at}}
	leafBlock := rootEntries[at].Block

	if info.IndirectLevels == 0 {
		return frames, leafBlock, nil
	}
	if info.IndirectLevels > 1 {
		return nil, 0, fmt.Errorf("%w: indirect_levels %d", ErrBadDxDir, info.IndirectLevels)
	}

	interiorBlock := leafBlock
	interior, err := x.readInterior(ctx, interiorBlock)
	if err != nil {
		return nil, 0, err
	}
	iat := searchSlot(interior, hash)
	frames = append(frames, Frame{Block: interiorBlock, Entries: interior, At: iat})
	return frames, interior[iat].Block, nil
}

// searchSlot returns the index of the rightmost entry whose Hash <= hash,
// per the "first entry's hash is implicit 0" convention: slot 0 always
// matches if nothing else does.
func searchSlot(entries []IndexEntry, hash uint32) int {
	lo, hi := 1, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].Hash > hash {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}

// writeFakeDirent lays down a directory record in the leaf format, so an
// index block parses cleanly under a linear sweep.
func writeFakeDirent(b []byte, ino uint32, recLen uint16, name string) {
	binary.LittleEndian.PutUint32(b[0:4], ino)
	binary.LittleEndian.PutUint16(b[4:6], recLen)
	b[6] = uint8(len(name))
	b[7] = uint8(dirleaf.FTDir)
	binary.LittleEndian.PutUint32(b[8:12], 0)
	binary.LittleEndian.PutUint32(b[12:16], dirleaf.Alive)
	copy(b[fakeDirentHeaderSize:fakeDirentHeaderSize+len(name)], name)
}

// writeFakeDirentFiller writes one free record spanning the whole block, so
// an interior node is skipped outright by a linear sweep.
func writeFakeDirentFiller(b []byte, recLen int) {
	binary.LittleEndian.PutUint32(b[0:4], 0)
	binary.LittleEndian.PutUint16(b[4:6], uint16(recLen))
	b[6] = 0
	b[7] = 0
	binary.LittleEndian.PutUint32(b[8:12], 0)
	binary.LittleEndian.PutUint32(b[12:16], dirleaf.Alive)
}

func encodeRootInfo(b []byte, info RootInfo) {
	binary.LittleEndian.PutUint32(b[0:4], 0)
	b[4] = uint8(info.HashVersion)
	b[5] = info.InfoLength
	b[6] = info.IndirectLevels
	b[7] = 0
}

func decodeRootInfo(b []byte) RootInfo {
	return RootInfo{
		HashVersion:    dirhash.Version(b[4]),
		InfoLength:     b[5],
		IndirectLevels: b[6],
	}
}

func writeEntries(b []byte, entries []IndexEntry, limit int) error {
	if len(entries) > limit {
		return fmt.Errorf("%w: %d entries exceeds limit %d", ErrBadDxDir, len(entries), limit)
	}
	binary.LittleEndian.PutUint16(b[0:2], uint16(len(entries)))
	binary.LittleEndian.PutUint16(b[2:4], uint16(limit))
	for i, e := range entries {
		o := countLimitSize + i*indexEntrySize
		binary.LittleEndian.PutUint32(b[o:o+4], e.Hash)
		binary.LittleEndian.PutUint32(b[o+4:o+8], e.Block)
	}
	return nil
}

func readEntries(b []byte, expectedLimit int) ([]IndexEntry, error) {
	if len(b) < countLimitSize {
		return nil, fmt.Errorf("%w: node too small for count/limit", ErrBadDxDir)
	}
	count := binary.LittleEndian.Uint16(b[0:2])
	limit := binary.LittleEndian.Uint16(b[2:4])
	if int(limit) != expectedLimit {
		return nil, fmt.Errorf("%w: on-disk limit %d does not match block geometry %d", ErrBadDxDir, limit, expectedLimit)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: node has no entries", ErrBadDxDir)
	}
	if int(count) > int(limit) {
		return nil, fmt.Errorf("%w: count %d exceeds limit %d", ErrBadDxDir, count, limit)
	}
	entries := make([]IndexEntry, count)
	for i := range entries {
		o := countLimitSize + i*indexEntrySize
		if o+8 > len(b) {
			return nil, fmt.Errorf("%w: entry %d overruns block", ErrBadDxDir, i)
		}
		entries[i] = IndexEntry{
			Hash:  binary.LittleEndian.Uint32(b[o : o+4]),
			Block: binary.LittleEndian.Uint32(b[o+4 : o+8]),
		}
	}
	return entries, nil
}

func validateSorted(entries []IndexEntry) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Hash < entries[i-1].Hash {
			return fmt.Errorf("%w: entries not sorted ascending by hash", ErrBadDxDir)
		}
	}
	return nil
}
