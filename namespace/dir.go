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

package namespace

import (
	"context"
	"errors"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/htree"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/lineardir"
	"github.com/fluxfs/fluxdir/logger"
)

// dirHandle is the uniform surface namespace.Ops drives a directory
// through, whichever of the hashed index or the linear scan is currently
// backing it (the INDEX flag discriminates the two). Read operations fall
// back to a linear scan on ErrBadDxDir; write operations clear the INDEX
// flag and fall back too.
type dirHandle interface {
	Lookup(ctx context.Context, name string, epoch uint32) (*dirleaf.Entry, uint32, error)
	Insert(ctx context.Context, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error
	Tombstone(ctx context.Context, block uint32, entry *dirleaf.Entry, curEpoch uint32) error
	Iterate(ctx context.Context, fn func(*dirleaf.Entry) error) error
}

// devIno resolves the inode number directory blocks are addressed under.
// A FakeInode projection and a dup_inode clone both read the blocks of the
// persistent head they share: directory history lives in one set of
// blocks, scoped by per-entry epochs, not in copies.
func devIno(dirIno *inotab.Inode) uint64 {
	if dirIno.Backing != 0 {
		return uint64(dirIno.Backing)
	}
	return uint64(dirIno.Number)
}

// openDir returns the dirHandle backing dirIno, per its INDEX flag.
func (o *Ops) openDir(dirIno *inotab.Inode) dirHandle {
	if dirIno.Flags.Has(inotab.FlagIndex) {
		return &indexedHandle{x: htree.New(o.dev, devIno(dirIno), o.hasher, o.sb.HashSeed)}
	}
	return &linearHandle{d: lineardir.New(o.dev, devIno(dirIno), o.readaheadBlocks)}
}

// openLinearScan forces a linear scan regardless of the INDEX flag, used as
// the BAD_DX_DIR fallback.
func (o *Ops) openLinearScan(dirIno *inotab.Inode) dirHandle {
	return &linearHandle{d: lineardir.New(o.dev, devIno(dirIno), o.readaheadBlocks)}
}

type indexedHandle struct {
	x *htree.Index
}

func (h *indexedHandle) Lookup(ctx context.Context, name string, epoch uint32) (*dirleaf.Entry, uint32, error) {
	return h.x.LookupBlock(ctx, name, epoch)
}

func (h *indexedHandle) Insert(ctx context.Context, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	return h.x.Insert(ctx, name, ino, ft, birthEpoch)
}

func (h *indexedHandle) Tombstone(ctx context.Context, block uint32, entry *dirleaf.Entry, curEpoch uint32) error {
	return h.x.Tombstone(ctx, block, entry, curEpoch)
}

func (h *indexedHandle) Iterate(ctx context.Context, fn func(*dirleaf.Entry) error) error {
	return h.x.Iterate(ctx, fn)
}

type linearHandle struct {
	d *lineardir.Dir
}

func (h *linearHandle) Lookup(ctx context.Context, name string, epoch uint32) (*dirleaf.Entry, uint32, error) {
	return h.d.Lookup(ctx, name, epoch)
}

func (h *linearHandle) Insert(ctx context.Context, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	return h.d.Insert(ctx, name, ino, ft, birthEpoch)
}

func (h *linearHandle) Tombstone(ctx context.Context, block uint32, entry *dirleaf.Entry, curEpoch uint32) error {
	return h.d.Tombstone(ctx, block, entry, curEpoch)
}

func (h *linearHandle) Iterate(ctx context.Context, fn func(*dirleaf.Entry) error) error {
	return h.d.Iterate(ctx, fn)
}

// insertEntryRetry drives insertEntry through the allocator retry budget:
// an out-of-space failure is retried up to enospcRetries times before it
// propagates, giving the host allocator's lazy reclaim a chance to free
// blocks between attempts.
func (o *Ops) insertEntryRetry(ctx context.Context, dirIno *inotab.Inode, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = o.insertEntry(ctx, dirIno, name, ino, ft, birthEpoch)
		if err == nil {
			return nil
		}
		var noSpace *blockio.ErrNoSpace
		if !errors.Is(err, dirleaf.ErrNoSpace) && !errors.As(err, &noSpace) {
			return err
		}
		if attempt >= o.enospcRetries {
			return err
		}
		logger.Debugf("namespace: insert into inode %d hit ENOSPC, retry %d of %d", dirIno.Number, attempt+1, o.enospcRetries)
	}
}

// lookupEntry resolves name in dirIno, scoped to epoch, falling back to a
// forced linear scan on ErrBadDxDir. Reads switch to the linear scan for
// this call only; the INDEX flag is left untouched.
func (o *Ops) lookupEntry(ctx context.Context, dirIno *inotab.Inode, name string, epoch uint32) (*dirleaf.Entry, uint32, error) {
	e, block, err := o.openDir(dirIno).Lookup(ctx, name, epoch)
	if errors.Is(err, htree.ErrBadDxDir) {
		logger.Warnf("namespace: BAD_DX_DIR on inode %d, falling back to linear scan for this lookup", dirIno.Number)
		return o.openLinearScan(dirIno).Lookup(ctx, name, epoch)
	}
	return e, block, err
}

// insertEntry inserts name into dirIno, promoting from a linear block to a
// hashed index on first overflow if enabled, and clearing the INDEX flag
// to fall back to linear insertion if the index is found corrupt.
func (o *Ops) insertEntry(ctx context.Context, dirIno *inotab.Inode, name string, ino uint32, ft dirleaf.FileType, birthEpoch uint32) error {
	err := o.openDir(dirIno).Insert(ctx, name, ino, ft, birthEpoch)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, htree.ErrBadDxDir):
		logger.Warnf("namespace: BAD_DX_DIR on inode %d, clearing INDEX and retrying linearly", dirIno.Number)
		dirIno.Flags &^= inotab.FlagIndex
		return o.openLinearScan(dirIno).Insert(ctx, name, ino, ft, birthEpoch)
	case errors.Is(err, dirleaf.ErrNoSpace) && !dirIno.Flags.Has(inotab.FlagIndex):
		if !o.enableIndexedDirs {
			return err
		}
		lineardir.NoteOverflow()
		x := htree.New(o.dev, uint64(dirIno.Number), o.hasher, o.sb.HashSeed)
		if promoteErr := x.PromoteFromLinear(ctx, dirIno.Number, dirIno.Number); promoteErr != nil {
			return promoteErr
		}
		dirIno.Flags |= inotab.FlagIndex
		return x.Insert(ctx, name, ino, ft, birthEpoch)
	default:
		return err
	}
}
