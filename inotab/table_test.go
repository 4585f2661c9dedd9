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

package inotab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGetPutRefCounting(t *testing.T) {
	table := NewMemTable()

	in, err := table.New(KindRegular)
	require.NoError(t, err)
	in.Nlink = 1
	assert.EqualValues(t, 1, table.LookupCount(in.Number))

	again, err := table.Get(in.Number)
	require.NoError(t, err)
	assert.Same(t, in, again)
	assert.EqualValues(t, 2, table.LookupCount(in.Number))

	table.Put(again)
	table.Put(in)
	assert.Zero(t, table.LookupCount(in.Number))

	// A linked inode survives its last Put.
	kept, err := table.Get(in.Number)
	require.NoError(t, err)
	table.Put(kept)
}

func TestPutDropsUnlinkedAndFakeInodes(t *testing.T) {
	table := NewMemTable()

	in, err := table.New(KindRegular)
	require.NoError(t, err)
	in.Nlink = 0
	table.Put(in)
	_, err = table.Get(in.Number)
	assert.Error(t, err)

	fake, err := table.New(KindRegular)
	require.NoError(t, err)
	fake.Nlink = 1
	fake.Flags |= FlagFakeInode
	table.Put(fake)
	_, err = table.Get(fake.Number)
	assert.Error(t, err)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	table := NewMemTable()

	a, err := table.New(KindDirectory)
	require.NoError(t, err)
	a.Nlink = 2
	a.EpochNumber = 3

	b, err := table.New(KindSymlink)
	require.NoError(t, err)
	b.Nlink = 1
	b.Target = "over/there"

	exported, next := table.Export()
	require.Len(t, exported, 2)

	restored := NewMemTable()
	restored.Restore(exported, next)

	got, err := restored.Get(a.Number)
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, got.Kind)
	assert.EqualValues(t, 3, got.EpochNumber)
	restored.Put(got)

	got, err = restored.Get(b.Number)
	require.NoError(t, err)
	assert.Equal(t, "over/there", got.Target)
	restored.Put(got)

	// Numbering continues where the exporter left off.
	c, err := restored.New(KindRegular)
	require.NoError(t, err)
	assert.Greater(t, c.Number, b.Number)
}

func TestExportSkipsFakeInodes(t *testing.T) {
	table := NewMemTable()

	real, err := table.New(KindRegular)
	require.NoError(t, err)
	real.Nlink = 1

	fake, err := table.New(KindRegular)
	require.NoError(t, err)
	fake.Nlink = 1
	fake.Flags |= FlagFakeInode

	exported, _ := table.Export()
	require.Len(t, exported, 1)
	assert.Equal(t, real.Number, exported[0].Number)
}
