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

package orphan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxdir/journal"
)

func startTxn(t *testing.T, jm *journal.MemManager) journal.Handle {
	t.Helper()
	h, err := jm.Start(context.Background(), 1)
	require.NoError(t, err)
	return h
}

func TestAddRemoveHead(t *testing.T) {
	ctx := context.Background()
	jm := journal.NewMemManager()
	l := New()

	h := startTxn(t, jm)
	require.NoError(t, l.Add(ctx, h, 10))
	require.NoError(t, l.Add(ctx, h, 20))
	require.NoError(t, h.Stop(ctx, true))

	assert.EqualValues(t, 20, l.Head())
	assert.True(t, l.Contains(10))
	assert.True(t, l.Contains(20))

	h = startTxn(t, jm)
	require.NoError(t, l.Remove(ctx, h, 20))
	require.NoError(t, h.Stop(ctx, true))

	assert.EqualValues(t, 10, l.Head())
	assert.False(t, l.Contains(20))
}

func TestRemoveFromMiddle(t *testing.T) {
	ctx := context.Background()
	jm := journal.NewMemManager()
	l := New()

	h := startTxn(t, jm)
	for _, ino := range []uint32{1, 2, 3} {
		require.NoError(t, l.Add(ctx, h, ino))
	}
	require.NoError(t, l.Remove(ctx, h, 2))
	require.NoError(t, h.Stop(ctx, true))

	assert.EqualValues(t, 3, l.Head())
	assert.True(t, l.Contains(1))
	assert.False(t, l.Contains(2))
	assert.True(t, l.Contains(3))
}

func TestDoubleAddAndMissingRemoveFail(t *testing.T) {
	ctx := context.Background()
	jm := journal.NewMemManager()
	l := New()

	h := startTxn(t, jm)
	defer h.Stop(ctx, true)

	require.NoError(t, l.Add(ctx, h, 7))
	assert.Error(t, l.Add(ctx, h, 7))
	assert.Error(t, l.Remove(ctx, h, 99))
}
