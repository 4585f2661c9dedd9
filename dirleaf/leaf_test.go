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

package dirleaf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeaf(t *testing.T, size int) *Leaf {
	t.Helper()
	l := New(make([]byte, size))
	l.Init()
	return l
}

// recLenSum walks the raw records and returns the sum of their rec_lens,
// which must always equal the block size.
func recLenSum(t *testing.T, l *Leaf) int {
	t.Helper()
	sum := 0
	buf := l.Bytes()
	for off := 0; off < len(buf); {
		e, err := decodeAt(buf, off)
		require.NoError(t, err)
		sum += int(e.RecLen)
		off += int(e.RecLen)
	}
	return sum
}

func TestInsertAndScan(t *testing.T) {
	l := newLeaf(t, 256)

	require.NoError(t, l.Insert("hello", 7, FTRegular, 3))

	e, err := l.Scan("hello", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 7, e.Inode)
	assert.EqualValues(t, 3, e.BirthEpoch)
	assert.EqualValues(t, Alive, e.DeathEpoch)

	_, err = l.Scan("absent", 3)
	assert.ErrorIs(t, err, ErrNotFound)

	// Born at 3: invisible at epoch 2.
	_, err = l.Scan("hello", 2)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 256, recLenSum(t, l))
}

func TestInsertFailsWhenFull(t *testing.T) {
	l := newLeaf(t, 64)

	require.NoError(t, l.Insert("first", 1, FTRegular, 1))
	require.NoError(t, l.Insert("second", 2, FTRegular, 1))
	err := l.Insert("third-does-not-fit", 3, FTRegular, 1)
	assert.ErrorIs(t, err, ErrNoSpace)
}

func TestDuplicateNamesAcrossDisjointEpochs(t *testing.T) {
	l := newLeaf(t, 256)

	require.NoError(t, l.Insert("name", 1, FTRegular, 1))
	e, err := l.Scan("name", 4)
	require.NoError(t, err)
	require.NoError(t, l.Tombstone(e, 4))

	// Reborn under the same name in a later epoch with a new inode.
	require.NoError(t, l.Insert("name", 2, FTRegular, 5))

	old, err := l.Scan("name", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, old.Inode)

	cur, err := l.Scan("name", 6)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cur.Inode)

	// At the dead gap in between neither generation is visible... except
	// epoch 4 belongs to the first generation's death, so only [4,5) is
	// truly dark.
	_, err = l.Scan("name", 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTombstoneSameEpochCoalesces(t *testing.T) {
	l := newLeaf(t, 256)

	require.NoError(t, l.Insert("first", 1, FTRegular, 2))
	require.NoError(t, l.Insert("ephemeral", 9, FTRegular, 2))

	e, err := l.Scan("ephemeral", 2)
	require.NoError(t, err)
	require.NoError(t, l.Tombstone(e, 2))

	// Born and died in the same epoch with a physical predecessor: the
	// record is folded into "first", whose rec_len grows back to span the
	// whole block, and the inode field is zeroed.
	assert.Zero(t, e.Inode)
	assert.Equal(t, 256, recLenSum(t, l))

	f, err := l.Scan("first", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 256, f.RecLen)

	_, err = l.Scan("ephemeral", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTombstoneCrossEpochRetainsRecord(t *testing.T) {
	l := newLeaf(t, 256)

	require.NoError(t, l.Insert("kept", 9, FTRegular, 2))
	e, err := l.Scan("kept", 2)
	require.NoError(t, err)
	require.NoError(t, l.Tombstone(e, 5))

	// Still visible in its live range, gone at and after death.
	past, err := l.Scan("kept", 4)
	require.NoError(t, err)
	assert.EqualValues(t, 9, past.Inode)
	assert.EqualValues(t, 5, past.DeathEpoch)

	_, err = l.Scan("kept", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPackShrinksAndAbsorbsTail(t *testing.T) {
	l := newLeaf(t, 512)
	names := []string{"alpha", "bravo", "charlie", "delta"}
	for i, n := range names {
		require.NoError(t, l.Insert(n, uint32(i+1), FTRegular, 1))
	}

	last, err := l.Pack()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "delta", last.Name)
	assert.Equal(t, 512, recLenSum(t, l))

	// Every record but the last is at its minimal size.
	seen := 0
	require.NoError(t, l.WalkLive(func(e *Entry) error {
		seen++
		if e.Name != "delta" {
			assert.Equal(t, minRecLen(len(e.Name)), e.RecLen)
		}
		return nil
	}))
	assert.Equal(t, len(names), seen)

	for i, n := range names {
		e, err := l.Scan(n, 1)
		require.NoError(t, err)
		assert.EqualValues(t, i+1, e.Inode)
	}
}

func TestBuildMapSortedByHash(t *testing.T) {
	l := newLeaf(t, 512)
	names := []string{"one", "two", "three", "four", "five", "six"}
	for i, n := range names {
		require.NoError(t, l.Insert(n, uint32(i+1), FTRegular, 1))
	}

	hash := func(name string) uint32 {
		h := uint32(0)
		for _, c := range []byte(name) {
			h = h*31 + uint32(c)
		}
		return h
	}
	sorted, err := l.BuildMap(hash)
	require.NoError(t, err)
	require.Len(t, sorted, len(names))
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, hash(sorted[i-1].Name), hash(sorted[i].Name))
	}
}

func TestMalformedRecLenSurfacesError(t *testing.T) {
	l := newLeaf(t, 128)
	require.NoError(t, l.Insert("x", 1, FTRegular, 1))

	// Stamp a rec_len smaller than the header.
	l.Bytes()[4] = 3
	l.Bytes()[5] = 0

	_, err := l.Scan("x", 1)
	assert.Error(t, err)
}
