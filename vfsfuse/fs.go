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

// Package vfsfuse exposes namespace.Ops as a mountable FUSE filesystem.
// Only the metadata plane is served: directory structure, versioned
// lookups through the flux token, symlinks, and attributes. File content
// reads return empty data, since the data plane belongs to the host block
// layer rather than the directory core.
package vfsfuse

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"

	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/namespace"
	"github.com/fluxfs/fluxdir/superblock"
)

// attrCacheTTL is how long the kernel may cache entry and attribute
// responses. Kept short because a historical projection's attributes never
// change but the live head's do on every epoch advance.
const attrCacheTTL = time.Second

// ServerConfig carries everything NewServer needs.
type ServerConfig struct {
	Ops   *namespace.Ops
	Table inotab.Table
	SB    *superblock.Superblock

	// Root is the volume's root directory inode, holding one lookup
	// reference that the server takes ownership of.
	Root *inotab.Inode

	Uid uint32
	Gid uint32
}

// inodeRecord tracks one kernel-visible inode: the held lookup reference,
// the name it was reached by (consulted by the version-listing cycle
// guard), and how many kernel lookups are outstanding.
type inodeRecord struct {
	ino     *inotab.Inode
	name    string
	lookups uint64
}

// fileSystem implements fuseutil.FileSystem over namespace.Ops.
//
// LOCK ORDERING: fs.mu is a leaf lock. It is never held across a
// namespace.Ops call; records are looked up, the reference captured, and
// the lock dropped before any directory I/O happens.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	ops   *namespace.Ops
	table inotab.Table
	sb    *superblock.Superblock

	uid uint32
	gid uint32

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	inodes map[fuseops.InodeID]*inodeRecord

	// GUARDED_BY(mu)
	handles map[fuseops.HandleID][]fuseutil.Dirent
	// GUARDED_BY(mu)
	nextHandle fuseops.HandleID
}

// NewServer wires a fuseutil server around cfg. The root inode is pinned
// for the life of the mount under fuseops.RootInodeID.
func NewServer(cfg ServerConfig) (fuseutil.FileSystem, error) {
	if cfg.Root == nil || !cfg.Root.IsDir() {
		return nil, fmt.Errorf("vfsfuse: root inode must be a directory")
	}
	fs := &fileSystem{
		ops:     cfg.Ops,
		table:   cfg.Table,
		sb:      cfg.SB,
		uid:     cfg.Uid,
		gid:     cfg.Gid,
		inodes:  make(map[fuseops.InodeID]*inodeRecord),
		handles: make(map[fuseops.HandleID][]fuseutil.Dirent),
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)
	fs.inodes[fuseops.RootInodeID] = &inodeRecord{ino: cfg.Root, name: "", lookups: 1}
	return fs, nil
}

func (fs *fileSystem) checkInvariants() {
	for id, rec := range fs.inodes {
		if rec.lookups == 0 {
			panic(fmt.Sprintf("vfsfuse: inode %d retained with zero lookups", id))
		}
	}
}

// getRecord returns the record for id without changing its lookup count.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) getRecord(id fuseops.InodeID) (*inodeRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.inodes[id]
	if !ok {
		return nil, errStale
	}
	return rec, nil
}

// rememberInode registers child (whose one lookup reference transfers to
// the map) under its own number and bumps the kernel lookup count.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) rememberInode(child *inotab.Inode, name string) fuseops.InodeID {
	id := inodeID(child)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if rec, ok := fs.inodes[id]; ok {
		// Already known: fold the fresh reference into the existing one.
		fs.table.Put(child)
		rec.ino = child
		rec.name = name
		rec.lookups++
		return id
	}
	fs.inodes[id] = &inodeRecord{ino: child, name: name, lookups: 1}
	return id
}

// inodeID maps a fluxdir inode onto the kernel inode ID space. Persistent
// numbers and the reserved FakeInode range are both disjoint from
// RootInodeID's peers by construction, except the root itself.
func inodeID(ino *inotab.Inode) fuseops.InodeID {
	return fuseops.InodeID(ino.Number)
}

func (fs *fileSystem) attributesFor(ino *inotab.Inode) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  uint64(ino.Size),
		Nlink: ino.Nlink,
		Mode:  goMode(ino),
		Atime: ino.Atime,
		Mtime: ino.Mtime,
		Ctime: ino.Ctime,
		Uid:   ino.UID,
		Gid:   ino.GID,
	}
}

func goMode(ino *inotab.Inode) os.FileMode {
	m := os.FileMode(ino.Mode & 0777)
	switch ino.Kind {
	case inotab.KindDirectory:
		m |= os.ModeDir
	case inotab.KindSymlink:
		m |= os.ModeSymlink
	case inotab.KindCharDevice:
		m |= os.ModeDevice | os.ModeCharDevice
	case inotab.KindBlockDevice:
		m |= os.ModeDevice
	case inotab.KindFIFO:
		m |= os.ModeNamedPipe
	case inotab.KindSocket:
		m |= os.ModeSocket
	}
	return m
}

func kindForMode(m os.FileMode) inotab.Kind {
	switch {
	case m&os.ModeCharDevice != 0:
		return inotab.KindCharDevice
	case m&os.ModeDevice != 0:
		return inotab.KindBlockDevice
	case m&os.ModeNamedPipe != 0:
		return inotab.KindFIFO
	case m&os.ModeSocket != 0:
		return inotab.KindSocket
	default:
		return inotab.KindRegular
	}
}

func direntType(ft dirleaf.FileType) fuseutil.DirentType {
	switch ft {
	case dirleaf.FTDir:
		return fuseutil.DT_Directory
	case dirleaf.FTSymlink:
		return fuseutil.DT_Link
	case dirleaf.FTChrdev:
		return fuseutil.DT_Char
	case dirleaf.FTBlkdev:
		return fuseutil.DT_Block
	case dirleaf.FTFifo:
		return fuseutil.DT_FIFO
	case dirleaf.FTSock:
		return fuseutil.DT_Socket
	case dirleaf.FTRegular:
		return fuseutil.DT_File
	default:
		return fuseutil.DT_Unknown
	}
}

// fillEntry populates a ChildInodeEntry from child.
func (fs *fileSystem) fillEntry(entry *fuseops.ChildInodeEntry, child *inotab.Inode) {
	entry.Child = inodeID(child)
	entry.Generation = fuseops.GenerationNumber(child.Generation)
	entry.Attributes = fs.attributesFor(child)
	entry.AttributesExpiration = time.Now().Add(attrCacheTTL)
	entry.EntryExpiration = entry.AttributesExpiration
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = uint32(fs.sb.BlockSize)
	op.IoSize = uint32(fs.sb.BlockSize)
	return nil
}

func (fs *fileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	rec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}

	child, err := fs.ops.Lookup(ctx, rec.ino, rec.name, op.Name)
	if err != nil {
		return errno(err)
	}
	if child == nil {
		// Version-listing cycle guard: a null dentry, not an error.
		return errNotFound
	}

	fs.rememberInode(child, op.Name)
	fs.fillEntry(&op.Entry, child)
	return nil
}

func (fs *fileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	rec, err := fs.getRecord(op.Inode)
	if err != nil {
		return errno(err)
	}
	op.Attributes = fs.attributesFor(rec.ino)
	op.AttributesExpiration = time.Now().Add(attrCacheTTL)
	return nil
}

func (fs *fileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, ok := fs.inodes[op.Inode]
	if !ok {
		return nil
	}
	if op.N >= rec.lookups {
		delete(fs.inodes, op.Inode)
		fs.table.Put(rec.ino)
		return nil
	}
	rec.lookups -= op.N
	return nil
}

func (fs *fileSystem) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	rec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}
	child, err := fs.ops.Mkdir(ctx, rec.ino, rec.name, op.Name, uint32(op.Mode.Perm()), fs.uid, fs.gid)
	if err != nil {
		return errno(err)
	}
	fs.rememberInode(child, op.Name)
	fs.fillEntry(&op.Entry, child)
	return nil
}

func (fs *fileSystem) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	rec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}

	kind := kindForMode(op.Mode)
	var child *inotab.Inode
	if kind == inotab.KindRegular {
		child, err = fs.ops.Create(ctx, rec.ino, rec.name, op.Name, uint32(op.Mode.Perm()), fs.uid, fs.gid)
	} else {
		child, err = fs.ops.Mknod(ctx, rec.ino, rec.name, op.Name, kind, uint32(op.Mode.Perm()), 0, fs.uid, fs.gid)
	}
	if err != nil {
		return errno(err)
	}
	fs.rememberInode(child, op.Name)
	fs.fillEntry(&op.Entry, child)
	return nil
}

func (fs *fileSystem) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	rec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}
	child, err := fs.ops.Create(ctx, rec.ino, rec.name, op.Name, uint32(op.Mode.Perm()), fs.uid, fs.gid)
	if err != nil {
		return errno(err)
	}
	fs.rememberInode(child, op.Name)
	fs.fillEntry(&op.Entry, child)
	return nil
}

func (fs *fileSystem) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	rec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}
	child, err := fs.ops.Symlink(ctx, rec.ino, rec.name, op.Name, op.Target, fs.uid, fs.gid)
	if err != nil {
		return errno(err)
	}
	fs.rememberInode(child, op.Name)
	fs.fillEntry(&op.Entry, child)
	return nil
}

func (fs *fileSystem) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	parentRec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}
	targetRec, err := fs.getRecord(op.Target)
	if err != nil {
		return errno(err)
	}

	if err := fs.ops.Link(ctx, parentRec.ino, parentRec.name, op.Name, targetRec.ino); err != nil {
		return errno(err)
	}

	// The kernel now holds one more lookup on the target.
	fresh, err := fs.table.Get(targetRec.ino.Number)
	if err != nil {
		return errno(err)
	}
	fs.rememberInode(fresh, op.Name)
	fs.fillEntry(&op.Entry, fresh)
	return nil
}

func (fs *fileSystem) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldRec, err := fs.getRecord(op.OldParent)
	if err != nil {
		return errno(err)
	}
	newRec, err := fs.getRecord(op.NewParent)
	if err != nil {
		return errno(err)
	}
	return errno(fs.ops.Rename(ctx, oldRec.ino, oldRec.name, op.OldName, newRec.ino, newRec.name, op.NewName))
}

func (fs *fileSystem) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	rec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}
	return errno(fs.ops.Rmdir(ctx, rec.ino, rec.name, op.Name))
}

func (fs *fileSystem) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	rec, err := fs.getRecord(op.Parent)
	if err != nil {
		return errno(err)
	}
	return errno(fs.ops.Unlink(ctx, rec.ino, rec.name, op.Name))
}

func (fs *fileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	rec, err := fs.getRecord(op.Inode)
	if err != nil {
		return errno(err)
	}

	entries, err := fs.ops.ReadDir(ctx, rec.ino)
	if err != nil {
		return errno(err)
	}

	// Snapshot the listing at open, the usual defense against a concurrent
	// mutation shifting offsets mid-getdents.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	dirents := make([]fuseutil.Dirent, 0, len(entries))
	for i, e := range entries {
		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.Inode),
			Name:   e.Name,
			Type:   direntType(e.Type),
		})
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextHandle++
	op.Handle = fs.nextHandle
	fs.handles[op.Handle] = dirents
	return nil
}

func (fs *fileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	dirents, ok := fs.handles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return errStale
	}

	idx := int(op.Offset)
	if idx > len(dirents) {
		return errInvalid
	}
	for _, d := range dirents[idx:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *fileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.handles, op.Handle)
	return nil
}

func (fs *fileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	rec, err := fs.getRecord(op.Inode)
	if err != nil {
		return errno(err)
	}
	if rec.ino.Kind != inotab.KindSymlink {
		return errInvalid
	}
	op.Target = rec.ino.Target
	return nil
}

func (fs *fileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	_, err := fs.getRecord(op.Inode)
	return errno(err)
}

// ReadFile serves no data: the directory core owns only metadata, and a
// mounted volume's file bodies live behind the host block layer.
func (fs *fileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	return nil
}

func (fs *fileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (fs *fileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (fs *fileSystem) Destroy() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for id, rec := range fs.inodes {
		fs.table.Put(rec.ino)
		delete(fs.inodes, id)
	}
}
