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
	"fmt"

	"github.com/fluxfs/fluxdir/epoch"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/nserr"
)

// Lookup resolves name within dir (whose own name, as it was reached by
// the caller, is dirName and is only consulted for the version-listing
// cycle guard). The returned inode carries one lookup reference the caller
// must eventually Put.
//
// A bare trailing flux token ("name@") yields a version-listing FakeInode
// rather than performing a scoped lookup; a numeric or symbolic suffix
// ("name@3", "name@yesterday") yields a historical projection once the
// live entry is found. A version-listing request made against an already
// version-listed name resolves to a null dentry: (nil, nil).
func (o *Ops) Lookup(ctx context.Context, dir *inotab.Inode, dirName, name string) (result *inotab.Inode, err error) {
	done := metricsTrack(ctx, o, "lookup")
	defer func() { done(err) }()

	if !dir.IsDir() {
		err = fmt.Errorf("namespace: lookup: %w", nserr.ErrInvalid)
		return nil, err
	}

	scope, serr := o.resolver.Resolve(name, dirName, dir, o.sb.SystemEpoch())
	if serr != nil {
		switch {
		case errors.Is(serr, epoch.ErrCycle):
			return nil, nil
		case errors.Is(serr, epoch.ErrNotFound):
			err = fmt.Errorf("namespace: lookup: %w", nserr.ErrNotFound)
		default:
			err = fmt.Errorf("namespace: lookup: %w", nserr.ErrInvalid)
		}
		return nil, err
	}

	if scope.VersionListing {
		return o.lookupVersionListing(ctx, dir, scope.Name)
	}
	return o.lookupScoped(ctx, dir, scope.Name, scope.ScopeEpoch)
}

func (o *Ops) lookupVersionListing(ctx context.Context, dir *inotab.Inode, name string) (*inotab.Inode, error) {
	entry, _, err := o.lookupEntry(ctx, dir, name, o.sb.SystemEpoch())
	if err != nil {
		return nil, translateErr("lookup", err)
	}
	head, err := o.table.Get(entry.Inode)
	if err != nil {
		return nil, err
	}
	return o.fake.ProjectListing(o.table, head, dir, o.sb.SystemEpoch()), nil
}

func (o *Ops) lookupScoped(ctx context.Context, dir *inotab.Inode, name string, scopeEpoch uint32) (*inotab.Inode, error) {
	entry, _, err := o.lookupEntry(ctx, dir, name, scopeEpoch)
	if err != nil {
		return nil, translateErr("lookup", err)
	}
	head, err := o.table.Get(entry.Inode)
	if err != nil {
		return nil, err
	}
	if scopeEpoch >= o.sb.SystemEpoch() {
		return head, nil
	}

	versioned, err := o.walkToEpoch(head, scopeEpoch)
	if err != nil {
		return nil, err
	}
	return o.fake.Project(o.table, versioned, scopeEpoch), nil
}

// walkToEpoch consumes head's lookup reference and walks its version chain
// (newest to oldest, via NextInode) for the newest version whose
// EpochNumber <= scopeEpoch. It releases every intermediate hop's
// reference as it passes through, returning a fresh reference to the node
// it stops on, owned by the caller.
func (o *Ops) walkToEpoch(head *inotab.Inode, scopeEpoch uint32) (*inotab.Inode, error) {
	cur := head
	for {
		if cur.EpochNumber <= scopeEpoch || cur.NextInode == 0 {
			return cur, nil
		}
		next, err := o.table.Get(cur.NextInode)
		if err != nil {
			o.table.Put(cur)
			return nil, err
		}
		o.table.Put(cur)
		cur = next
	}
}
