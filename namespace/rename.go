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
	"github.com/fluxfs/fluxdir/nserr"
	"github.com/fluxfs/fluxdir/version"
)

// maxAncestorWalk bounds the directory-rename cycle check: a real volume's
// depth is nowhere near this, so hitting it means the tree is corrupt
// (a ".." loop that never reaches the root).
const maxAncestorWalk = 1 << 16

// isAncestor reports whether candidate is of, or an ancestor of of, walking
// of's ".." chain toward the root. Used by Rename's cycle guard: a
// directory may never be moved into its own subtree.
func (o *Ops) isAncestor(ctx context.Context, candidate *inotab.Inode, of *inotab.Inode) (bool, error) {
	systemEpoch := o.sb.SystemEpoch()
	curNumber := of.Number
	if curNumber == candidate.Number {
		return true, nil
	}
	for i := 0; i < maxAncestorWalk; i++ {
		cur, err := o.table.Get(curNumber)
		if err != nil {
			return false, err
		}
		entry, _, lerr := o.openDir(cur).Lookup(ctx, "..", systemEpoch)
		o.table.Put(cur)
		if lerr != nil {
			return false, translateErr("rename", lerr)
		}
		if entry.Inode == curNumber {
			return false, nil // reached the root, candidate was never seen
		}
		if entry.Inode == candidate.Number {
			return true, nil
		}
		curNumber = entry.Inode
	}
	return false, fmt.Errorf("namespace: rename: ancestor walk exceeded bound, possible cycle")
}

// rewriteDotDot repoints child's ".." entry at newParent, needed when a
// directory rename crosses into a different parent. The record is
// overwritten in place: ".." always lives in block 0, ahead of any hash
// index, and carries no history of its own.
func (o *Ops) rewriteDotDot(ctx context.Context, child *inotab.Inode, newParent uint32, systemEpoch uint32) error {
	entry, block, err := o.openDir(child).Lookup(ctx, "..", systemEpoch)
	if err != nil {
		return translateErr("rename", err)
	}
	buf, err := o.dev.BRead(ctx, devIno(child), block, false)
	if err != nil {
		return translateErr("rename", err)
	}
	defer buf.Release()
	if err := dirleaf.New(buf.Bytes()).SetInode(entry, newParent); err != nil {
		return translateErr("rename", err)
	}
	buf.MarkDirty()
	return nil
}

// Rename implements NamespaceOps.rename. Renaming a name onto itself within
// the same directory is a no-op; moving a directory requires both the
// ancestor-cycle check above and, when it crosses into a different parent,
// the ".." rewrite.
func (o *Ops) Rename(ctx context.Context, oldDir *inotab.Inode, _ string, oldName string, newDir *inotab.Inode, _ string, newName string) (err error) {
	done := metricsTrack(ctx, o, "rename")
	defer func() { done(err) }()

	if err = checkMutable(oldDir); err != nil {
		return err
	}
	if err = checkMutable(newDir); err != nil {
		return err
	}
	if err = o.checkNameMutable(oldDir, oldName); err != nil {
		return err
	}
	if err = o.checkNameMutable(newDir, newName); err != nil {
		return err
	}
	if oldDir.Number == newDir.Number && oldName == newName {
		return nil
	}

	systemEpoch := o.sb.SystemEpoch()
	entry, oldBlock, lerr := o.lookupEntry(ctx, oldDir, oldName, systemEpoch)
	if lerr != nil {
		err = translateErr("rename", lerr)
		return err
	}

	child, gerr := o.table.Get(entry.Inode)
	if gerr != nil {
		err = gerr
		return err
	}
	defer o.table.Put(child)

	isDir := entry.FileType == dirleaf.FTDir
	if isDir {
		if child.Number == newDir.Number {
			err = fmt.Errorf("namespace: rename: %w", nserr.ErrInvalid)
			return err
		}
		cyc, cerr := o.isAncestor(ctx, child, newDir)
		if cerr != nil {
			err = cerr
			return err
		}
		if cyc {
			err = fmt.Errorf("namespace: rename: %w", nserr.ErrInvalid)
			return err
		}
	}

	var victim *inotab.Inode
	var victimBlock uint32
	var victimEntry *dirleaf.Entry
	ve, vb, verr := o.lookupEntry(ctx, newDir, newName, systemEpoch)
	switch {
	case verr == nil && ve.Inode != entry.Inode:
		v, gerr2 := o.table.Get(ve.Inode)
		if gerr2 != nil {
			err = gerr2
			return err
		}
		victim, victimBlock, victimEntry = v, vb, ve
		defer o.table.Put(victim)
	case verr != nil && !errors.Is(verr, dirleaf.ErrNotFound):
		err = translateErr("rename", verr)
		return err
	}
	if victim != nil && victim.IsDir() {
		empty, eerr := o.isEmptyDir(ctx, victim)
		if eerr != nil {
			err = eerr
			return err
		}
		if !empty {
			err = fmt.Errorf("namespace: rename: %w", nserr.ErrNotEmpty)
			return err
		}
	}

	h, finish, terr := o.startTxn(ctx, 10)
	if terr != nil {
		err = terr
		return err
	}
	defer finish(&err)

	crossDir := newDir.Number != oldDir.Number

	oldDirBefore, derr := o.chain.DupInode(ctx, h, oldDir, systemEpoch)
	if derr != nil {
		err = derr
		return err
	}
	var newDirBefore version.Snapshot
	if crossDir {
		newDirBefore, derr = o.chain.DupInode(ctx, h, newDir, systemEpoch)
		if derr != nil {
			err = derr
			o.unwindParent(ctx, h, oldDir, oldDirBefore)
			return err
		}
	}
	rollbackParents := func() {
		if crossDir {
			_ = o.chain.ReclaimDupInode(ctx, h, newDir, newDirBefore)
		}
		o.unwindParent(ctx, h, oldDir, oldDirBefore)
	}

	if victim != nil {
		if verr := o.openDir(newDir).Tombstone(ctx, victimBlock, victimEntry, systemEpoch); verr != nil {
			err = translateErr("rename", verr)
			rollbackParents()
			return err
		}
		victim.Nlink--
		if victim.IsDir() {
			victim.Nlink = 0
		}
		if derr := h.DirtyMetadata(ctx, uint64(victim.Number), 0); derr != nil {
			err = derr
			rollbackParents()
			return err
		}
		if victim.Nlink == 0 {
			if oerr := o.sb.Orphans.Add(ctx, h, victim.Number); oerr != nil {
				err = oerr
				rollbackParents()
				return err
			}
		}
	}

	if ierr := o.insertEntry(ctx, newDir, newName, entry.Inode, entry.FileType, systemEpoch); ierr != nil {
		err = translateErr("rename", ierr)
		rollbackParents()
		return err
	}

	// The insert may have split a leaf and migrated the old entry; its
	// captured block and offset are stale until re-found.
	entry, oldBlock, lerr = o.lookupEntry(ctx, oldDir, oldName, systemEpoch)
	if lerr != nil {
		err = translateErr("rename", lerr)
		rollbackParents()
		return err
	}
	if terr := o.openDir(oldDir).Tombstone(ctx, oldBlock, entry, systemEpoch); terr != nil {
		err = translateErr("rename", terr)
		rollbackParents()
		return err
	}

	if isDir && crossDir {
		if rerr := o.rewriteDotDot(ctx, child, newDir.Number, systemEpoch); rerr != nil {
			err = rerr
			rollbackParents()
			return err
		}
		oldDir.Nlink--
		newDir.Nlink++
		if derr := h.DirtyMetadata(ctx, uint64(oldDir.Number), 0); derr != nil {
			err = derr
			return err
		}
		if derr := h.DirtyMetadata(ctx, uint64(newDir.Number), 0); derr != nil {
			err = derr
			return err
		}
	}

	return nil
}
