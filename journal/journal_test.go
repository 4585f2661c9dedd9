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

package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRecordsTouchesInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemManager()

	h, err := m.Start(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, h.GetWriteAccess(ctx, 5, 0))
	require.NoError(t, h.DirtyMetadata(ctx, 5, 1))
	require.NoError(t, h.DirtyMetadata(ctx, 6, 0))
	require.NoError(t, h.Stop(ctx, true))

	commits := m.Commits()
	require.Len(t, commits, 1)
	assert.True(t, commits[0].OK)
	assert.NotEmpty(t, commits[0].ID)
	assert.Equal(t, []Touch{{Ino: 5, Block: 0}, {Ino: 5, Block: 1}, {Ino: 6, Block: 0}}, commits[0].Touched)
}

func TestAbortIsRecorded(t *testing.T) {
	ctx := context.Background()
	m := NewMemManager()

	h, err := m.Start(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, h.Stop(ctx, false))

	commits := m.Commits()
	require.Len(t, commits, 1)
	assert.False(t, commits[0].OK)
}

func TestUseAfterStopFails(t *testing.T) {
	ctx := context.Background()
	m := NewMemManager()

	h, err := m.Start(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, h.Stop(ctx, true))

	assert.Error(t, h.DirtyMetadata(ctx, 1, 0))
	assert.Error(t, h.GetWriteAccess(ctx, 1, 0))
	assert.Error(t, h.Stop(ctx, true))
}

func TestTransactionIDsAreDistinct(t *testing.T) {
	ctx := context.Background()
	m := NewMemManager()

	for i := 0; i < 3; i++ {
		h, err := m.Start(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, h.Stop(ctx, true))
	}

	commits := m.Commits()
	require.Len(t, commits, 3)
	assert.NotEqual(t, commits[0].ID, commits[1].ID)
	assert.NotEqual(t, commits[1].ID, commits[2].ID)
}
