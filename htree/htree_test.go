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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/dirhash"
	"github.com/fluxfs/fluxdir/dirleaf"
)

func newTestIndex(t *testing.T, blockSize int) (*Index, blockio.Device) {
	t.Helper()
	dev := blockio.NewMemDevice(blockSize)
	hasher := dirhash.New(dirhash.Legacy)
	seed := dirhash.Seed{1, 2, 3, 4}

	// Block 0 is the root; block 1 is the sole initial leaf.
	_, rootBuf, err := dev.Append(context.Background(), 100)
	require.NoError(t, err)
	rootBuf.Release()

	_, leafBuf, err := dev.Append(context.Background(), 100)
	require.NoError(t, err)
	dirleaf.New(leafBuf.Bytes()).Init()
	leafBuf.Release()

	idx := New(dev, 100, hasher, seed)
	require.NoError(t, idx.InitRoot(context.Background(), 2, 1, 1))
	return idx, dev
}

func TestInsertAndLookup(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, 256)

	require.NoError(t, idx.Insert(ctx, "alpha", 10, dirleaf.FTRegular, 1))
	require.NoError(t, idx.Insert(ctx, "beta", 11, dirleaf.FTRegular, 1))

	e, err := idx.Lookup(ctx, "alpha", 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, e.Inode)

	e, err = idx.Lookup(ctx, "beta", 1)
	require.NoError(t, err)
	require.EqualValues(t, 11, e.Inode)

	_, err = idx.Lookup(ctx, "missing", 1)
	require.ErrorIs(t, err, dirleaf.ErrNotFound)
}

func TestInsertOverflowSplitsLeaf(t *testing.T) {
	ctx := context.Background()
	idx, dev := newTestIndex(t, 128)

	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("file-%03d", i)
		require.NoError(t, idx.Insert(ctx, name, uint32(1000+i), dirleaf.FTRegular, 1))
	}

	// Every inserted name must still resolve, regardless of which leaf it
	// ended up in after the split(s).
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("file-%03d", i)
		e, err := idx.Lookup(ctx, name, 1)
		require.NoError(t, err, "lookup of %s", name)
		require.EqualValues(t, 1000+i, e.Inode)
	}

	require.Greater(t, dev.NumBlocks(100), uint32(2), "split should have allocated at least one extra leaf")

	_, entries, err := idx.ReadRoot(ctx)
	require.NoError(t, err)
	for i := 1; i < len(entries); i++ {
		require.Less(t, entries[i-1].Hash, entries[i].Hash+1)
	}
}

func TestTombstoneThenLookupPastVsPresent(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t, 256)

	require.NoError(t, idx.Insert(ctx, "gone", 42, dirleaf.FTRegular, 1))

	entry, err := idx.Lookup(ctx, "gone", 2)
	require.NoError(t, err)

	hash := dirhash.New(dirhash.Legacy).Hash("gone", dirhash.Seed{1, 2, 3, 4})
	_, leafBlock, err := idx.Probe(ctx, hash)
	require.NoError(t, err)

	require.NoError(t, idx.Tombstone(ctx, leafBlock, entry, 3))

	_, err = idx.Lookup(ctx, "gone", 3)
	require.ErrorIs(t, err, dirleaf.ErrNotFound)

	past, err := idx.Lookup(ctx, "gone", 2)
	require.NoError(t, err)
	require.EqualValues(t, 42, past.Inode)
}
