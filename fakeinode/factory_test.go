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

package fakeinode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/xattr"
)

func newBacking(t *testing.T, table *inotab.MemTable) *inotab.Inode {
	t.Helper()
	in, err := table.New(inotab.KindRegular)
	require.NoError(t, err)
	in.Nlink = 1
	in.Size = 77
	in.EpochNumber = 9
	in.NextInode = 3
	return in
}

func TestProjectForcesFlagsAndEpoch(t *testing.T) {
	table := inotab.NewMemTable()
	f := New(xattr.NewMemStore())
	backing := newBacking(t, table)
	backingNumber := backing.Number

	fake := f.Project(table, backing, 4)

	assert.True(t, fake.Flags.Has(inotab.FlagFakeInode))
	assert.True(t, fake.Flags.Has(inotab.FlagUnchangeable))
	assert.True(t, fake.Flags.Has(inotab.FlagUnversionable))
	assert.True(t, fake.Flags.Has(inotab.FlagImmutable))
	assert.EqualValues(t, 4, fake.EpochNumber)
	assert.Zero(t, fake.NextInode)
	assert.EqualValues(t, 77, fake.Size)
	assert.Equal(t, backingNumber, fake.Backing)

	// Project released the caller's reference on the backing inode.
	assert.Zero(t, table.LookupCount(backingNumber))
}

func TestNumbersDecreaseAndStayReserved(t *testing.T) {
	table := inotab.NewMemTable()
	f := New(xattr.NewMemStore())

	var prev uint32
	for i := 0; i < 8; i++ {
		backing := newBacking(t, table)
		fake := f.Project(table, backing, 1)
		require.True(t, IsFakeRange(fake.Number), "number %d not in reserved range", fake.Number)
		if i > 0 {
			require.Less(t, fake.Number, prev)
		}
		prev = fake.Number
	}
}

func TestProjectListingTakesParentChain(t *testing.T) {
	table := inotab.NewMemTable()
	f := New(xattr.NewMemStore())

	parent, err := table.New(inotab.KindDirectory)
	require.NoError(t, err)
	parent.Nlink = 2
	parent.NextInode = 42

	backing := newBacking(t, table)
	fake := f.ProjectListing(table, backing, parent, 6)

	assert.EqualValues(t, 42, fake.NextInode)
	assert.EqualValues(t, 6, fake.EpochNumber)
}
