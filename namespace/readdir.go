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
	"errors"

	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/htree"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/logger"
)

// DirEntry is one visible directory entry, as surfaced to readdir callers.
type DirEntry struct {
	Name  string
	Inode uint32
	Type  dirleaf.FileType
}

// scopeEpochFor returns the epoch a read against dir should be scoped to:
// a frozen past projection is read at its own epoch, a live directory at
// the current system epoch.
func (o *Ops) scopeEpochFor(dir *inotab.Inode) uint32 {
	if dir.Flags.Has(inotab.FlagUnchangeable) {
		return dir.EpochNumber
	}
	return o.sb.SystemEpoch()
}

// ReadDir returns every entry of dir that is in scope for the directory's
// epoch, including "." and "..". Order follows on-disk layout (hash order
// for an indexed directory, insertion order for a linear one). A corrupt
// index degrades to a linear sweep for this call.
func (o *Ops) ReadDir(ctx context.Context, dir *inotab.Inode) (out []DirEntry, err error) {
	done := metricsTrack(ctx, o, "readdir")
	defer func() { done(err) }()

	if !dir.IsDir() {
		err = translateErr("readdir", dirleaf.ErrNotFound)
		return nil, err
	}

	epoch := o.scopeEpochFor(dir)
	collect := func(e *dirleaf.Entry) error {
		if e.InScope(epoch) {
			out = append(out, DirEntry{Name: e.Name, Inode: e.Inode, Type: e.FileType})
		}
		return nil
	}

	err = o.openDir(dir).Iterate(ctx, collect)
	if errors.Is(err, htree.ErrBadDxDir) {
		logger.Warnf("namespace: BAD_DX_DIR on inode %d, listing via linear sweep", dir.Number)
		out = out[:0]
		err = o.openLinearScan(dir).Iterate(ctx, collect)
	}
	if err != nil {
		err = translateErr("readdir", err)
		return nil, err
	}
	return out, nil
}
