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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/clock"
	"github.com/fluxfs/fluxdir/dirhash"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/journal"
	"github.com/fluxfs/fluxdir/nserr"
	"github.com/fluxfs/fluxdir/superblock"
	"github.com/fluxfs/fluxdir/xattr"
)

type testEnv struct {
	dev   *blockio.MemDevice
	table *inotab.MemTable
	jm    *journal.MemManager
	sb    *superblock.Superblock
	clk   *clock.SimulatedClock
}

func testConfig(blockSize int) *cfg.Config {
	return &cfg.Config{
		FileSystem: cfg.FileSystemConfig{
			BlockSize:         cfg.BlockSize(blockSize),
			RootMode:          0755,
			Uid:               -1,
			Gid:               -1,
			EnableIndexedDirs: true,
			ReadaheadBlocks:   2,
			EnospcRetries:     1,
		},
		Versioning: cfg.VersioningConfig{
			FluxToken:   cfg.FluxToken('@'),
			HashVersion: cfg.HashHalfMD4,
		},
	}
}

func newTestFS(t *testing.T, blockSize int) (*Ops, *inotab.Inode, *testEnv) {
	t.Helper()
	env := &testEnv{
		dev:   blockio.NewMemDevice(blockSize),
		table: inotab.NewMemTable(),
		jm:    journal.NewMemManager(),
		sb:    superblock.New(blockSize, dirhash.HalfMD4, dirhash.Seed{11, 12, 13, 14}),
		clk:   clock.NewSimulatedClock(time.Unix(1_000_000, 0)),
	}
	deps := Deps{
		Dev:     env.dev,
		Table:   env.table,
		Journal: env.jm,
		SB:      env.sb,
		Attrs:   xattr.NewMemStore(),
		Clock:   env.clk,
	}
	ops, root, err := Mkfs(context.Background(), deps, testConfig(blockSize))
	require.NoError(t, err)
	return ops, root, env
}

func advanceTo(sb *superblock.Superblock, epoch uint32) {
	for sb.SystemEpoch() < epoch {
		sb.AdvanceEpoch()
	}
}

func TestCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	f, err := ops.Create(ctx, root, "", "foo", 0644, 1000, 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.Nlink)
	assert.Equal(t, ops.sb.SystemEpoch(), f.EpochNumber)

	got, err := ops.Lookup(ctx, root, "", "foo")
	require.NoError(t, err)
	assert.Equal(t, f.Number, got.Number)

	_, err = ops.Lookup(ctx, root, "", "missing")
	assert.ErrorIs(t, err, nserr.ErrNotFound)

	_, err = ops.Create(ctx, root, "", "foo", 0644, 1000, 1000)
	assert.ErrorIs(t, err, nserr.ErrExists)
}

func TestPastIsReadOnly(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 512)

	advanceTo(env.sb, 5)
	f, err := ops.Create(ctx, root, "", "foo", 0644, 0, 0)
	require.NoError(t, err)
	fooNum := f.Number

	advanceTo(env.sb, 7)
	require.NoError(t, ops.Unlink(ctx, root, "", "foo"))

	// Mutating a version name is refused outright.
	_, err = ops.Create(ctx, root, "", "foo@3", 0644, 0, 0)
	assert.ErrorIs(t, err, nserr.ErrReadOnly)

	// The historical name still resolves to the original inode.
	past, err := ops.Lookup(ctx, root, "", "foo@6")
	require.NoError(t, err)
	require.NotNil(t, past)
	assert.True(t, past.Flags.Has(inotab.FlagFakeInode))
	assert.Equal(t, fooNum, past.Backing)

	// The live name is gone.
	_, err = ops.Lookup(ctx, root, "", "foo")
	assert.ErrorIs(t, err, nserr.ErrNotFound)

	// The unlinked inode predated this epoch: frozen, not collected.
	assert.True(t, f.Flags.Has(inotab.FlagUnchangeable))
	assert.False(t, env.sb.Orphans.Contains(fooNum))
}

func TestUnlinkSameEpochOrphans(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 512)

	advanceTo(env.sb, 3)
	f, err := ops.Create(ctx, root, "", "tmp", 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, ops.Unlink(ctx, root, "", "tmp"))

	assert.Zero(t, f.Nlink)
	assert.True(t, env.sb.Orphans.Contains(f.Number))
	_, err = ops.Lookup(ctx, root, "", "tmp")
	assert.ErrorIs(t, err, nserr.ErrNotFound)
}

func TestVersionChainWalk(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 512)

	f, err := ops.Create(ctx, root, "", "f", 0644, 0, 0)
	require.NoError(t, err)
	f.Size = 10

	// A write in a later epoch clones the inode before mutating it.
	write := func(epoch uint32, size int64) {
		advanceTo(env.sb, epoch)
		h, err := env.jm.Start(ctx, 4)
		require.NoError(t, err)
		_, err = ops.chain.DupInode(ctx, h, f, epoch)
		require.NoError(t, err)
		require.NoError(t, h.Stop(ctx, true))
		f.Size = size
	}
	write(2, 20)
	write(3, 30)

	cur, err := ops.Lookup(ctx, root, "", "f")
	require.NoError(t, err)
	assert.EqualValues(t, 30, cur.Size)
	assert.False(t, cur.Flags.Has(inotab.FlagFakeInode))

	v2, err := ops.Lookup(ctx, root, "", "f@3")
	require.NoError(t, err)
	assert.EqualValues(t, 20, v2.Size)
	assert.True(t, v2.Flags.Has(inotab.FlagFakeInode))

	v1, err := ops.Lookup(ctx, root, "", "f@2")
	require.NoError(t, err)
	assert.EqualValues(t, 10, v1.Size)

	// Chain shape: epochs strictly decrease, only the head is mutable.
	require.NoError(t, ops.chain.CheckInvariants(f, func(n uint32) (*inotab.Inode, error) {
		in, err := env.table.Get(n)
		if err == nil {
			defer env.table.Put(in)
		}
		return in, err
	}))
}

func TestSymbolicFluxLookup(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 512)

	// Epochs here mirror wall-clock seconds, so a symbolic offset lands on
	// a numerically comparable epoch.
	now := env.clk.Now()
	advanceTo(env.sb, uint32(now.Unix()))

	f, err := ops.Create(ctx, root, "", "x", 0644, 0, 0)
	require.NoError(t, err)
	_ = f

	got, err := ops.Lookup(ctx, root, "", "x@yesterday")
	// x did not exist a day ago by birth epoch, so this must miss: its
	// birth epoch is the current wall-second.
	if err == nil {
		t.Fatalf("expected ErrNotFound, got inode %d", got.Number)
	}
	assert.ErrorIs(t, err, nserr.ErrNotFound)

	// One epoch later the numeric form of its birth epoch resolves to a
	// projection.
	birth := env.sb.SystemEpoch()
	advanceTo(env.sb, birth+1)
	cur, err := ops.Lookup(ctx, root, "", fmt.Sprintf("x@%d", birth+1))
	require.NoError(t, err)
	assert.True(t, cur.Flags.Has(inotab.FlagFakeInode))
}

func TestRmdirSameEpochOrphans(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 512)

	advanceTo(env.sb, 9)
	d, err := ops.Mkdir(ctx, root, "", "d", 0755, 0, 0)
	require.NoError(t, err)

	rootLinks := root.Nlink
	require.NoError(t, ops.Rmdir(ctx, root, "", "d"))

	assert.Zero(t, d.Nlink)
	assert.True(t, env.sb.Orphans.Contains(d.Number))
	assert.Equal(t, rootLinks-1, root.Nlink)
}

func TestRmdirPastEpochFreezes(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 512)

	advanceTo(env.sb, 9)
	d, err := ops.Mkdir(ctx, root, "", "d", 0755, 0, 0)
	require.NoError(t, err)

	advanceTo(env.sb, 10)
	rootLinks := root.Nlink
	require.NoError(t, ops.Rmdir(ctx, root, "", "d"))

	assert.True(t, d.Flags.Has(inotab.FlagUnchangeable))
	assert.False(t, env.sb.Orphans.Contains(d.Number))

	// The tombstoned child's historical ".." backlink is still alive, so
	// the parent's link count is untouched.
	assert.Equal(t, rootLinks, root.Nlink)

	// Still reachable by its historical name.
	past, err := ops.Lookup(ctx, root, "", "d@10")
	require.NoError(t, err)
	assert.True(t, past.Flags.Has(inotab.FlagFakeInode))
	assert.Equal(t, d.Number, past.Backing)
}

func TestRmdirRefusesNonEmpty(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	d, err := ops.Mkdir(ctx, root, "", "d", 0755, 0, 0)
	require.NoError(t, err)
	_, err = ops.Create(ctx, d, "d", "inner", 0644, 0, 0)
	require.NoError(t, err)

	err = ops.Rmdir(ctx, root, "", "d")
	assert.ErrorIs(t, err, nserr.ErrNotEmpty)

	// Remove the child, and the directory goes quietly.
	require.NoError(t, ops.Unlink(ctx, d, "d", "inner"))
	require.NoError(t, ops.Rmdir(ctx, root, "", "d"))
}

func TestVersionListingAndCycleGuard(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	d, err := ops.Mkdir(ctx, root, "", "d", 0755, 0, 0)
	require.NoError(t, err)
	_ = d

	listing, err := ops.Lookup(ctx, root, "", "d@")
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.True(t, listing.Flags.Has(inotab.FlagFakeInode))
	assert.Equal(t, root.NextInode, listing.NextInode)

	// A version listing of a version listing is a null dentry, not an
	// error and not a recursion.
	inner, err := ops.Lookup(ctx, listing, "d@", "d@")
	require.NoError(t, err)
	assert.Nil(t, inner)
}

func TestLinkBumpsNlinkAndRejectsDirs(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	f, err := ops.Create(ctx, root, "", "f", 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, ops.Link(ctx, root, "", "g", f))
	assert.EqualValues(t, 2, f.Nlink)

	got, err := ops.Lookup(ctx, root, "", "g")
	require.NoError(t, err)
	assert.Equal(t, f.Number, got.Number)

	d, err := ops.Mkdir(ctx, root, "", "d", 0755, 0, 0)
	require.NoError(t, err)
	err = ops.Link(ctx, root, "", "dlink", d)
	assert.ErrorIs(t, err, nserr.ErrInvalid)
}

func TestSymlinkAndMknod(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	s, err := ops.Symlink(ctx, root, "", "s", "target/far/away", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, inotab.KindSymlink, s.Kind)
	assert.Equal(t, "target/far/away", s.Target)
	assert.EqualValues(t, len(s.Target), s.Size)

	p, err := ops.Mknod(ctx, root, "", "pipe", inotab.KindFIFO, 0600, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, inotab.KindFIFO, p.Kind)

	_, err = ops.Mknod(ctx, root, "", "badkind", inotab.KindDirectory, 0755, 0, 0, 0)
	assert.ErrorIs(t, err, nserr.ErrInvalid)
}

func TestRenameWithinDirectory(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	f, err := ops.Create(ctx, root, "", "old", 0644, 0, 0)
	require.NoError(t, err)

	// Renaming onto itself is a no-op.
	require.NoError(t, ops.Rename(ctx, root, "", "old", root, "", "old"))

	require.NoError(t, ops.Rename(ctx, root, "", "old", root, "", "new"))

	_, err = ops.Lookup(ctx, root, "", "old")
	assert.ErrorIs(t, err, nserr.ErrNotFound)
	got, err := ops.Lookup(ctx, root, "", "new")
	require.NoError(t, err)
	assert.Equal(t, f.Number, got.Number)
}

func TestRenameDirectoryAcrossParentsRewritesDotDot(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	a, err := ops.Mkdir(ctx, root, "", "a", 0755, 0, 0)
	require.NoError(t, err)
	b, err := ops.Mkdir(ctx, root, "", "b", 0755, 0, 0)
	require.NoError(t, err)
	d, err := ops.Mkdir(ctx, a, "a", "d", 0755, 0, 0)
	require.NoError(t, err)

	aLinks, bLinks := a.Nlink, b.Nlink
	require.NoError(t, ops.Rename(ctx, a, "a", "d", b, "b", "d"))

	got, err := ops.Lookup(ctx, b, "b", "d")
	require.NoError(t, err)
	assert.Equal(t, d.Number, got.Number)

	parent, err := ops.Lookup(ctx, d, "d", "..")
	require.NoError(t, err)
	assert.Equal(t, b.Number, parent.Number)

	assert.Equal(t, aLinks-1, a.Nlink)
	assert.Equal(t, bLinks+1, b.Nlink)
}

func TestRenameRefusesCycle(t *testing.T) {
	ctx := context.Background()
	ops, root, _ := newTestFS(t, 512)

	p, err := ops.Mkdir(ctx, root, "", "p", 0755, 0, 0)
	require.NoError(t, err)
	c, err := ops.Mkdir(ctx, p, "p", "c", 0755, 0, 0)
	require.NoError(t, err)

	err = ops.Rename(ctx, root, "", "p", c, "c", "trap")
	assert.ErrorIs(t, err, nserr.ErrInvalid)
}

func TestReadDirScopesEntries(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 512)

	advanceTo(env.sb, 2)
	for _, n := range []string{"one", "two", "three"} {
		_, err := ops.Create(ctx, root, "", n, 0644, 0, 0)
		require.NoError(t, err)
	}
	advanceTo(env.sb, 4)
	require.NoError(t, ops.Unlink(ctx, root, "", "two"))

	names := func(entries []DirEntry) map[string]bool {
		out := map[string]bool{}
		for _, e := range entries {
			out[e.Name] = true
		}
		return out
	}

	cur, err := ops.ReadDir(ctx, root)
	require.NoError(t, err)
	got := names(cur)
	assert.True(t, got["one"] && got["three"])
	assert.False(t, got["two"])

	// The projection of the directory one epoch back still lists it.
	past, err := ops.Lookup(ctx, root, "", ".@4")
	require.NoError(t, err)
	entries, err := ops.ReadDir(ctx, past)
	require.NoError(t, err)
	assert.True(t, names(entries)["two"])
}

func TestIndexFallbackAfterCorruption(t *testing.T) {
	ctx := context.Background()
	ops, root, env := newTestFS(t, 256)

	// Enough inserts to overflow the single linear block and promote.
	for i := 0; ; i++ {
		require.Less(t, i, 64, "directory never promoted")
		_, err := ops.Create(ctx, root, "", fmt.Sprintf("f%02d", i), 0644, 0, 0)
		require.NoError(t, err)
		if root.Flags.Has(inotab.FlagIndex) {
			break
		}
	}

	// Clobber the root block's info_length so every probe sees BAD_DX_DIR.
	buf, err := env.dev.BRead(ctx, uint64(root.Number), 0, false)
	require.NoError(t, err)
	buf.Bytes()[48+5] = 99
	buf.MarkDirty()
	buf.Release()

	// Reads fall back to the linear sweep without touching the INDEX flag.
	got, err := ops.Lookup(ctx, root, "", "f00")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, root.Flags.Has(inotab.FlagIndex))

	// A write clears INDEX and lands linearly.
	g, err := ops.Create(ctx, root, "", "g", 0644, 0, 0)
	require.NoError(t, err)
	assert.False(t, root.Flags.Has(inotab.FlagIndex))

	got, err = ops.Lookup(ctx, root, "", "g")
	require.NoError(t, err)
	assert.Equal(t, g.Number, got.Number)

	got, err = ops.Lookup(ctx, root, "", "f00")
	require.NoError(t, err)
	require.NotNil(t, got)
}
