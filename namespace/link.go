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
)

// maxLinks bounds Nlink, matching the conservative ext2-family limit.
const maxLinks = 65000

// Link implements NamespaceOps.link: a new name for an existing inode.
// Directories may not be hard-linked.
func (o *Ops) Link(ctx context.Context, dir *inotab.Inode, _ string, name string, target *inotab.Inode) (err error) {
	done := metricsTrack(ctx, o, "link")
	defer func() { done(err) }()

	if err = checkMutable(dir); err != nil {
		return err
	}
	if err = o.checkNameMutable(dir, name); err != nil {
		return err
	}
	if target.IsDir() {
		err = fmt.Errorf("namespace: link: %w", nserr.ErrInvalid)
		return err
	}
	if len(name) == 0 || len(name) > dirleaf.MaxNameLen {
		err = fmt.Errorf("namespace: link: %w", nserr.ErrNameTooLong)
		return err
	}
	if target.Nlink+1 > maxLinks {
		err = fmt.Errorf("namespace: link: %w", nserr.ErrLinkMaxExceeed)
		return err
	}

	systemEpoch := o.sb.SystemEpoch()
	if _, _, lerr := o.lookupEntry(ctx, dir, name, systemEpoch); lerr == nil {
		err = fmt.Errorf("namespace: link: %w", nserr.ErrExists)
		return err
	} else if !errors.Is(lerr, dirleaf.ErrNotFound) {
		err = translateErr("link", lerr)
		return err
	}

	h, finish, terr := o.startTxn(ctx, 6)
	if terr != nil {
		err = terr
		return err
	}
	defer finish(&err)

	dirBefore, derr := o.chain.DupInode(ctx, h, dir, systemEpoch)
	if derr != nil {
		err = derr
		return err
	}
	targetBefore, derr2 := o.chain.DupInode(ctx, h, target, systemEpoch)
	if derr2 != nil {
		err = derr2
		o.unwindParent(ctx, h, dir, dirBefore)
		return err
	}

	target.Nlink++
	if derr := h.DirtyMetadata(ctx, uint64(target.Number), 0); derr != nil {
		err = derr
		target.Nlink--
		_ = o.chain.ReclaimDupInode(ctx, h, target, targetBefore)
		o.unwindParent(ctx, h, dir, dirBefore)
		return err
	}

	if ierr := o.insertEntryRetry(ctx, dir, name, target.Number, fileTypeFor(target.Kind), systemEpoch); ierr != nil {
		err = translateErr("link", ierr)
		target.Nlink--
		_ = o.chain.ReclaimDupInode(ctx, h, target, targetBefore)
		o.unwindParent(ctx, h, dir, dirBefore)
		return err
	}

	return nil
}

// Unlink implements NamespaceOps.unlink: tombstones name in dir at the
// current epoch. A name both born and removed within the current epoch
// never existed in any other epoch, so its inode's link count drops for
// real and the inode is orphaned at zero. A name born in an earlier epoch
// stays addressable through historical lookups; its inode is instead
// frozen UNCHANGEABLE once the last live link is gone.
func (o *Ops) Unlink(ctx context.Context, dir *inotab.Inode, _ string, name string) (err error) {
	done := metricsTrack(ctx, o, "unlink")
	defer func() { done(err) }()

	if err = checkMutable(dir); err != nil {
		return err
	}
	if err = o.checkNameMutable(dir, name); err != nil {
		return err
	}

	systemEpoch := o.sb.SystemEpoch()
	entry, block, lerr := o.lookupEntry(ctx, dir, name, systemEpoch)
	if lerr != nil {
		err = translateErr("unlink", lerr)
		return err
	}
	if entry.FileType == dirleaf.FTDir {
		err = fmt.Errorf("namespace: unlink: %w", nserr.ErrInvalid)
		return err
	}

	target, gerr := o.table.Get(entry.Inode)
	if gerr != nil {
		err = gerr
		return err
	}
	defer o.table.Put(target)

	h, finish, terr := o.startTxn(ctx, 6)
	if terr != nil {
		err = terr
		return err
	}
	defer finish(&err)

	dirBefore, derr := o.chain.DupInode(ctx, h, dir, systemEpoch)
	if derr != nil {
		err = derr
		return err
	}

	bornNow := entry.BirthEpoch == systemEpoch

	if terr := o.openDir(dir).Tombstone(ctx, block, entry, systemEpoch); terr != nil {
		err = translateErr("unlink", terr)
		o.unwindParent(ctx, h, dir, dirBefore)
		return err
	}

	target.Nlink--
	if derr := h.DirtyMetadata(ctx, uint64(target.Number), 0); derr != nil {
		err = derr
		return err
	}

	if target.Nlink == 0 {
		if bornNow {
			if oerr := o.sb.Orphans.Add(ctx, h, target.Number); oerr != nil {
				err = oerr
				return err
			}
		} else {
			target.Flags |= inotab.FlagUnchangeable
		}
	}
	return nil
}

// isEmptyDir reports whether child contains only "." and ".." as of the
// current system epoch: entries dead in the current scope do not count.
func (o *Ops) isEmptyDir(ctx context.Context, child *inotab.Inode) (bool, error) {
	systemEpoch := o.sb.SystemEpoch()
	empty := true
	err := o.openDir(child).Iterate(ctx, func(e *dirleaf.Entry) error {
		if e.Name == "." || e.Name == ".." {
			return nil
		}
		if e.InScope(systemEpoch) {
			empty = false
		}
		return nil
	})
	return empty, err
}

// Rmdir implements NamespaceOps.rmdir: removes an empty subdirectory. A
// directory created within the current epoch is removed for real (link
// count cleared, inode orphaned); one created earlier is only tombstoned
// and its inode frozen UNCHANGEABLE, so historical lookups still reach it.
func (o *Ops) Rmdir(ctx context.Context, dir *inotab.Inode, _ string, name string) (err error) {
	done := metricsTrack(ctx, o, "rmdir")
	defer func() { done(err) }()

	if err = checkMutable(dir); err != nil {
		return err
	}
	if name == "." || name == ".." {
		err = fmt.Errorf("namespace: rmdir: %w", nserr.ErrInvalid)
		return err
	}
	if err = o.checkNameMutable(dir, name); err != nil {
		return err
	}

	systemEpoch := o.sb.SystemEpoch()
	entry, block, lerr := o.lookupEntry(ctx, dir, name, systemEpoch)
	if lerr != nil {
		err = translateErr("rmdir", lerr)
		return err
	}
	if entry.FileType != dirleaf.FTDir {
		err = fmt.Errorf("namespace: rmdir: %w", nserr.ErrInvalid)
		return err
	}

	child, gerr := o.table.Get(entry.Inode)
	if gerr != nil {
		err = gerr
		return err
	}
	defer o.table.Put(child)

	empty, eerr := o.isEmptyDir(ctx, child)
	if eerr != nil {
		err = eerr
		return err
	}
	if !empty {
		err = fmt.Errorf("namespace: rmdir: %w", nserr.ErrNotEmpty)
		return err
	}

	h, finish, terr := o.startTxn(ctx, 6)
	if terr != nil {
		err = terr
		return err
	}
	defer finish(&err)

	dirBefore, derr := o.chain.DupInode(ctx, h, dir, systemEpoch)
	if derr != nil {
		err = derr
		return err
	}

	bornNow := entry.BirthEpoch == systemEpoch

	if terr := o.openDir(dir).Tombstone(ctx, block, entry, systemEpoch); terr != nil {
		err = translateErr("rmdir", terr)
		o.unwindParent(ctx, h, dir, dirBefore)
		return err
	}

	if bornNow {
		// The child's ".." backlink dies with it, so the parent loses a
		// link. A tombstoned directory keeps its historical backlink and
		// the parent's count stays put.
		dir.Nlink--
		if derr := h.DirtyMetadata(ctx, uint64(dir.Number), 0); derr != nil {
			err = derr
			return err
		}
		child.Nlink = 0
		if derr := h.DirtyMetadata(ctx, uint64(child.Number), 0); derr != nil {
			err = derr
			return err
		}
		if oerr := o.sb.Orphans.Add(ctx, h, child.Number); oerr != nil {
			err = oerr
			return err
		}
	} else {
		child.Flags |= inotab.FlagUnchangeable
		if derr := h.DirtyMetadata(ctx, uint64(child.Number), 0); derr != nil {
			err = derr
			return err
		}
	}
	return nil
}
