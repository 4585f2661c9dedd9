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

package epoch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxdir/clock"
	"github.com/fluxfs/fluxdir/inotab"
)

func TestResolve_NoToken(t *testing.T) {
	r := New('@', clock.NewSimulatedClock(time.Unix(1000, 0)))

	scope, err := r.Resolve("foo", "dir", nil, 5)

	require.NoError(t, err)
	assert.Equal(t, "foo", scope.Name)
	assert.EqualValues(t, 5, scope.ScopeEpoch)
	assert.False(t, scope.VersionListing)
}

func TestResolve_NumericSuffix(t *testing.T) {
	r := New('@', clock.NewSimulatedClock(time.Unix(1000, 0)))

	scope, err := r.Resolve("foo@3", "dir", nil, 5)

	require.NoError(t, err)
	assert.Equal(t, "foo", scope.Name)
	assert.EqualValues(t, 2, scope.ScopeEpoch) // decoded (3) minus one
}

func TestResolve_FutureEpochFails(t *testing.T) {
	r := New('@', clock.NewSimulatedClock(time.Unix(1000, 0)))

	_, err := r.Resolve("foo@7", "dir", nil, 5)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_SymbolicYesterday(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	fc := clock.NewSimulatedClock(now)
	r := New('@', fc)

	scope, err := r.Resolve("x@yesterday", "dir", nil, uint32(now.Unix())+1)

	require.NoError(t, err)
	want := uint32(now.Add(-24*time.Hour).Unix()) - 1
	assert.Equal(t, want, scope.ScopeEpoch)
}

func TestResolve_VersionListing(t *testing.T) {
	r := New('@', clock.NewSimulatedClock(time.Unix(1000, 0)))

	scope, err := r.Resolve("dir@", "subdir", nil, 5)

	require.NoError(t, err)
	assert.True(t, scope.VersionListing)
	assert.Equal(t, "dir", scope.Name)
}

func TestResolve_VersionListingCycleGuard(t *testing.T) {
	r := New('@', clock.NewSimulatedClock(time.Unix(1000, 0)))

	_, err := r.Resolve("dir@", "subdir@", nil, 5)

	assert.ErrorIs(t, err, ErrCycle)
}

func TestResolve_UnchangeableParentInheritsItsEpoch(t *testing.T) {
	r := New('@', clock.NewSimulatedClock(time.Unix(1000, 0)))
	parent := &inotab.Inode{EpochNumber: 3, Flags: inotab.FlagUnchangeable}

	scope, err := r.Resolve("foo", "dir", parent, 9)

	require.NoError(t, err)
	assert.EqualValues(t, 3, scope.ScopeEpoch)
}

func TestWalkChain(t *testing.T) {
	inodes := map[uint32]*inotab.Inode{
		2: {Number: 2, EpochNumber: 3, NextInode: 1},
		1: {Number: 1, EpochNumber: 1, NextInode: 0},
	}
	head := &inotab.Inode{Number: 3, EpochNumber: 5, NextInode: 2}

	got, err := WalkChain(head, 2, func(n uint32) (*inotab.Inode, error) { return inodes[n], nil })

	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Number)
}
