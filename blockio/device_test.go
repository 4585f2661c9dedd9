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

package blockio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDeviceReadWriteAppend(t *testing.T) {
	ctx := context.Background()
	d := NewMemDevice(128)

	assert.Zero(t, d.NumBlocks(1))
	_, err := d.BRead(ctx, 1, 0, false)
	assert.Error(t, err)

	block, buf, err := d.Append(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, block)
	copy(buf.Bytes(), "hello")
	buf.MarkDirty()
	buf.Release()

	again, err := d.BRead(ctx, 1, 0, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again.Bytes()[:5]))
	again.Release()

	assert.EqualValues(t, 1, d.NumBlocks(1))
}

func TestMemDeviceLimitBlocks(t *testing.T) {
	ctx := context.Background()
	d := NewMemDevice(64)
	d.LimitBlocks = 2

	_, _, err := d.Append(ctx, 7)
	require.NoError(t, err)
	_, _, err = d.Append(ctx, 7)
	require.NoError(t, err)
	_, _, err = d.Append(ctx, 7)

	var noSpace *ErrNoSpace
	assert.ErrorAs(t, err, &noSpace)
}

func TestFileDevicePersistsBlocks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocks")

	d, err := NewFileDevice(path, 256)
	require.NoError(t, err)

	block, buf, err := d.Append(ctx, 3)
	require.NoError(t, err)
	copy(buf.Bytes(), "persisted")
	buf.MarkDirty()
	buf.Release()

	extents, next := d.ExtentTable()
	require.NoError(t, d.Close())

	d2, err := NewFileDevice(path, 256)
	require.NoError(t, err)
	defer d2.Close()
	d2.RestoreExtentTable(extents, next)

	got, err := d2.BRead(ctx, 3, block, false)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got.Bytes()[:9]))
	got.Release()
}
