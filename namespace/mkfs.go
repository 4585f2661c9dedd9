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

	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/lineardir"
)

// Mkfs formats a fresh volume over d's device and inode table: it mints the
// root directory inode, lays out its first block with "." and "..", and
// returns the wired Ops plus the root (carrying one lookup reference the
// caller owns). The root's ".." points at itself, the usual convention for
// a filesystem root.
func Mkfs(ctx context.Context, d Deps, c *cfg.Config) (*Ops, *inotab.Inode, error) {
	o := New(d, c)

	root, err := d.Table.New(inotab.KindDirectory)
	if err != nil {
		return nil, nil, err
	}
	root.Mode = uint32(c.FileSystem.RootMode)
	if c.FileSystem.Uid >= 0 {
		root.UID = uint32(c.FileSystem.Uid)
	}
	if c.FileSystem.Gid >= 0 {
		root.GID = uint32(c.FileSystem.Gid)
	}
	root.Nlink = 2
	root.EpochNumber = d.SB.SystemEpoch()

	ld := lineardir.New(d.Dev, uint64(root.Number), c.FileSystem.ReadaheadBlocks)
	if err := ld.Init(ctx, root.Number, root.Number, d.SB.SystemEpoch()); err != nil {
		d.Table.Put(root)
		return nil, nil, err
	}
	return o, root, nil
}
