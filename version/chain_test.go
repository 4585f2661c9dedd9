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

package version

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/journal"
)

func TestDupInode_ClonesAndSwapsEpoch(t *testing.T) {
	ctx := context.Background()
	table := inotab.NewMemTable()
	jm := journal.NewMemManager()
	chain := New(table, jm)

	head, err := table.New(inotab.KindRegular)
	require.NoError(t, err)
	head.Nlink = 1
	head.EpochNumber = 1
	head.Size = 10

	h, err := jm.Start(ctx, 4)
	require.NoError(t, err)

	before, err := chain.DupInode(ctx, h, head, 2)
	require.NoError(t, err)
	require.NoError(t, h.Stop(ctx, true))

	require.True(t, before.Valid)
	require.EqualValues(t, 1, before.EpochNumber)
	require.EqualValues(t, 2, head.EpochNumber)
	require.NotZero(t, head.NextInode)

	clone, err := table.Get(head.NextInode)
	require.NoError(t, err)
	defer table.Put(clone)
	require.EqualValues(t, 1, clone.EpochNumber)
	require.True(t, clone.Flags.Has(inotab.FlagUnchangeable))
	require.EqualValues(t, 10, clone.Size)
}

func TestDupInode_NoopWhenAlreadyCurrent(t *testing.T) {
	ctx := context.Background()
	table := inotab.NewMemTable()
	jm := journal.NewMemManager()
	chain := New(table, jm)

	head, err := table.New(inotab.KindRegular)
	require.NoError(t, err)
	head.Nlink = 1
	head.EpochNumber = 5

	h, err := jm.Start(ctx, 4)
	require.NoError(t, err)
	before, err := chain.DupInode(ctx, h, head, 5)
	require.NoError(t, err)
	require.NoError(t, h.Stop(ctx, true))

	require.False(t, before.Valid)
	require.Zero(t, head.NextInode)
}

func TestDupInode_NoopWhenUnversionable(t *testing.T) {
	ctx := context.Background()
	table := inotab.NewMemTable()
	jm := journal.NewMemManager()
	chain := New(table, jm)

	head, err := table.New(inotab.KindRegular)
	require.NoError(t, err)
	head.Nlink = 1
	head.EpochNumber = 1
	head.Flags |= inotab.FlagUnversionable

	h, err := jm.Start(ctx, 4)
	require.NoError(t, err)
	before, err := chain.DupInode(ctx, h, head, 9)
	require.NoError(t, err)
	require.NoError(t, h.Stop(ctx, true))

	require.False(t, before.Valid)
	require.Zero(t, head.NextInode)
}

func TestReclaimDupInode_RestoresHeadAndZeroesCloneLinks(t *testing.T) {
	ctx := context.Background()
	table := inotab.NewMemTable()
	jm := journal.NewMemManager()
	chain := New(table, jm)

	head, err := table.New(inotab.KindRegular)
	require.NoError(t, err)
	head.Nlink = 1
	head.EpochNumber = 1
	head.CowBitmap = []byte{0xAB}

	h, err := jm.Start(ctx, 4)
	require.NoError(t, err)
	before, err := chain.DupInode(ctx, h, head, 2)
	require.NoError(t, err)
	clone, err := table.Get(head.NextInode)
	require.NoError(t, err)
	defer table.Put(clone)

	err = chain.ReclaimDupInode(ctx, h, head, before)
	require.NoError(t, err)
	require.NoError(t, h.Stop(ctx, true))

	require.EqualValues(t, 1, head.EpochNumber)
	require.Equal(t, []byte{0xAB}, head.CowBitmap)
	require.Zero(t, head.NextInode)
	require.Zero(t, clone.Nlink)
}
