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
	"fmt"

	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/journal"
	"github.com/fluxfs/fluxdir/lineardir"
	"github.com/fluxfs/fluxdir/nserr"
	"github.com/fluxfs/fluxdir/version"
)

func fileTypeFor(kind inotab.Kind) dirleaf.FileType {
	switch kind {
	case inotab.KindDirectory:
		return dirleaf.FTDir
	case inotab.KindSymlink:
		return dirleaf.FTSymlink
	case inotab.KindCharDevice:
		return dirleaf.FTChrdev
	case inotab.KindBlockDevice:
		return dirleaf.FTBlkdev
	case inotab.KindFIFO:
		return dirleaf.FTFifo
	case inotab.KindSocket:
		return dirleaf.FTSock
	default:
		return dirleaf.FTRegular
	}
}

// instantiate implements the common body of create/mkdir/symlink/mknod:
// dup the parent if it predates the current epoch, mint a fresh inode,
// charge quota, clone default ACLs, run the type-specific initChild step,
// and link the new name into the parent's directory. Any failure after the
// parent was dup'd unwinds it via reclaim_dup_inode and drops the freshly
// minted inode's link count back to zero so nothing leaks.
func (o *Ops) instantiate(ctx context.Context, dir *inotab.Inode, name string, kind inotab.Kind, mode, uid, gid uint32, initChild func(h journal.Handle, child *inotab.Inode) error) (*inotab.Inode, error) {
	if err := checkMutable(dir); err != nil {
		return nil, err
	}
	if err := o.checkNameMutable(dir, name); err != nil {
		return nil, err
	}
	if len(name) == 0 || len(name) > dirleaf.MaxNameLen {
		return nil, fmt.Errorf("namespace: instantiate: %w", nserr.ErrNameTooLong)
	}

	systemEpoch := o.sb.SystemEpoch()
	if _, _, lerr := o.lookupEntry(ctx, dir, name, systemEpoch); lerr == nil {
		return nil, fmt.Errorf("namespace: instantiate: %w", nserr.ErrExists)
	} else if !errors.Is(lerr, dirleaf.ErrNotFound) {
		return nil, translateErr("instantiate", lerr)
	}

	h, finish, err := o.startTxn(ctx, 8)
	if err != nil {
		return nil, err
	}
	defer finish(&err)

	before, err := o.chain.DupInode(ctx, h, dir, systemEpoch)
	if err != nil {
		return nil, err
	}

	child, err := o.table.New(kind)
	if err != nil {
		o.unwindParent(ctx, h, dir, before)
		return nil, err
	}
	child.Mode = mode
	child.UID = uid
	child.GID = gid
	child.Nlink = 1
	child.EpochNumber = systemEpoch

	if qerr := o.quota.Initialize(ctx, child.Number, uid, gid); qerr != nil {
		err = qerr
		o.abandonChild(ctx, h, dir, before, child)
		return nil, err
	}

	o.attrs.CloneDefaults(dir.Number, child.Number)

	if initChild != nil {
		if ierr := initChild(h, child); ierr != nil {
			err = ierr
			o.abandonChild(ctx, h, dir, before, child)
			return nil, err
		}
	}

	ft := fileTypeFor(kind)
	if ierr := o.insertEntryRetry(ctx, dir, name, child.Number, ft, systemEpoch); ierr != nil {
		err = translateErr("instantiate", ierr)
		o.abandonChild(ctx, h, dir, before, child)
		return nil, err
	}

	if derr := h.DirtyMetadata(ctx, uint64(child.Number), 0); derr != nil {
		err = derr
		return nil, err
	}

	return child, nil
}

// unwindParent reverses a dup_inode performed on dir with nothing else yet
// built atop it.
func (o *Ops) unwindParent(ctx context.Context, h journal.Handle, dir *inotab.Inode, before version.Snapshot) {
	_ = o.chain.ReclaimDupInode(ctx, h, dir, before)
}

// abandonChild rolls dir's dup back and forces child's link count to zero,
// releasing instantiate's own New-acquired reference so the inode table
// reclaims it immediately (nothing else can be holding a reference to an
// inode that was never linked into any directory).
func (o *Ops) abandonChild(ctx context.Context, h journal.Handle, dir *inotab.Inode, before version.Snapshot, child *inotab.Inode) {
	child.Nlink = 0
	o.table.Put(child)
	o.unwindParent(ctx, h, dir, before)
}

// Create implements NamespaceOps.create: a new regular file.
func (o *Ops) Create(ctx context.Context, dir *inotab.Inode, _ string, name string, mode, uid, gid uint32) (child *inotab.Inode, err error) {
	done := metricsTrack(ctx, o, "create")
	defer func() { done(err) }()
	child, err = o.instantiate(ctx, dir, name, inotab.KindRegular, mode, uid, gid, nil)
	return child, err
}

// Mkdir implements NamespaceOps.mkdir: the new directory's own block 0 is
// formatted with "." and ".." before it is linked into dir, and dir's link
// count is bumped for the new subdirectory's ".." entry.
func (o *Ops) Mkdir(ctx context.Context, dir *inotab.Inode, _ string, name string, mode, uid, gid uint32) (child *inotab.Inode, err error) {
	done := metricsTrack(ctx, o, "mkdir")
	defer func() { done(err) }()

	child, err = o.instantiate(ctx, dir, name, inotab.KindDirectory, mode, uid, gid, func(h journal.Handle, child *inotab.Inode) error {
		child.Nlink = 2
		ld := lineardir.New(o.dev, uint64(child.Number), o.readaheadBlocks)
		return ld.Init(ctx, child.Number, dir.Number, o.sb.SystemEpoch())
	})
	if err != nil {
		return nil, err
	}

	h2, finish2, terr := o.startTxn(ctx, 1)
	if terr != nil {
		err = terr
		return child, err
	}
	defer finish2(&err)
	dir.Nlink++
	if derr := h2.DirtyMetadata(ctx, uint64(dir.Number), 0); derr != nil {
		err = derr
	}
	return child, err
}

// Symlink implements NamespaceOps.symlink.
func (o *Ops) Symlink(ctx context.Context, dir *inotab.Inode, _ string, name, target string, uid, gid uint32) (child *inotab.Inode, err error) {
	done := metricsTrack(ctx, o, "symlink")
	defer func() { done(err) }()

	const symlinkMode = 0777
	child, err = o.instantiate(ctx, dir, name, inotab.KindSymlink, symlinkMode, uid, gid, func(h journal.Handle, child *inotab.Inode) error {
		child.Target = target
		child.Size = int64(len(target))
		return nil
	})
	return child, err
}

// Mknod implements NamespaceOps.mknod: special files (char/block device,
// FIFO, socket).
func (o *Ops) Mknod(ctx context.Context, dir *inotab.Inode, _ string, name string, kind inotab.Kind, mode uint32, rdev uint32, uid, gid uint32) (child *inotab.Inode, err error) {
	done := metricsTrack(ctx, o, "mknod")
	defer func() { done(err) }()

	if kind == inotab.KindDirectory || kind == inotab.KindRegular || kind == inotab.KindSymlink {
		err = fmt.Errorf("namespace: mknod: %w", nserr.ErrInvalid)
		return nil, err
	}

	child, err = o.instantiate(ctx, dir, name, kind, mode, uid, gid, func(h journal.Handle, child *inotab.Inode) error {
		child.Rdev = rdev
		return nil
	})
	return child, err
}
