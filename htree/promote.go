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

package htree

import (
	"context"

	"github.com/fluxfs/fluxdir/dirleaf"
)

// PromoteFromLinear converts a one-block linear directory into a hashed
// index in place: the
// directory's sole existing block (which holds "." and ".." plus every
// live and tombstoned record) is copied, minus the two synthetic entries,
// into a freshly allocated leaf; block 0 is then reformatted as an indexed
// root carrying its own synthetic "." / ".." and a single index entry
// pointing at that new leaf. The pending insert that triggered promotion is
// left to the caller, via a subsequent Insert call, so the ordinary
// split-on-overflow path handles the case where the copied content alone
// already fills the new leaf.
func (x *Index) PromoteFromLinear(ctx context.Context, selfIno, parentIno uint32) error {
	oldBuf, err := x.dev.BRead(ctx, x.ino, 0, false)
	if err != nil {
		return err
	}
	oldLeaf := dirleaf.New(oldBuf.Bytes())

	var carried []*dirleaf.Entry
	walkErr := oldLeaf.WalkLive(func(e *dirleaf.Entry) error {
		switch e.Name {
		case ".":
			return nil
		case "..":
			// Preserve the directory's real parent through the conversion.
			parentIno = e.Inode
			return nil
		}
		cp := *e
		carried = append(carried, &cp)
		return nil
	})
	oldBuf.Release()
	if walkErr != nil {
		return walkErr
	}

	leafBlock, leafBuf, err := x.dev.Append(ctx, x.ino)
	if err != nil {
		return err
	}
	newLeaf := dirleaf.New(leafBuf.Bytes())
	newLeaf.Init()
	for _, e := range carried {
		if err := newLeaf.InsertRaw(e); err != nil {
			leafBuf.Release()
			return err
		}
	}
	leafBuf.MarkDirty()
	leafBuf.Release()

	return x.InitRoot(ctx, selfIno, parentIno, leafBlock)
}
