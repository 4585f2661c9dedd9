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

// Iterate visits every live record in hash order across every leaf, calling
// fn for each. Used by rmdir's empty-directory check and by fsck, both of
// which need to see every entry regardless of which hash bucket it lives
// in.
func (x *Index) Iterate(ctx context.Context, fn func(*dirleaf.Entry) error) error {
	frames, leafBlock, err := x.Probe(ctx, 0)
	if err != nil {
		return err
	}

	for {
		if err := x.iterateLeaf(ctx, leafBlock, fn); err != nil {
			return err
		}
		var ok bool
		frames, leafBlock, ok, err = x.NextLeaf(ctx, frames)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// NextLeaf advances the deepest frame to the next sibling leaf in hash
// order, popping to the parent level when a node is exhausted and
// reloading child frames on the way back down. Returns ok=false once every
// leaf has been visited. The deepest frame's current slot tells callers
// the starting hash of the returned leaf, which is how a lookup decides
// whether a sibling leaf continues the same hash bucket (adjacent slot
// hashes are compared directly rather than a stored continuation bit; see
// DESIGN.md).
func (x *Index) NextLeaf(ctx context.Context, frames []Frame) ([]Frame, uint32, bool, error) {
	depth := len(frames)
	for level := depth - 1; level >= 0; level-- {
		f := &frames[level]
		if f.At+1 >= len(f.Entries) {
			continue
		}
		f.At++
		frames = frames[:level+1]
		block := f.Entries[f.At].Block
		for len(frames) < depth {
			entries, err := x.readInterior(ctx, block)
			if err != nil {
				return frames, 0, false, err
			}
			frames = append(frames, Frame{Block: block, Entries: entries, At: 0})
			block = entries[0].Block
		}
		return frames, block, true, nil
	}
	return frames, 0, false, nil
}

func (x *Index) iterateLeaf(ctx context.Context, block uint32, fn func(*dirleaf.Entry) error) error {
	buf, err := x.dev.BRead(ctx, x.ino, block, false)
	if err != nil {
		return err
	}
	defer buf.Release()
	leaf := dirleaf.New(buf.Bytes())
	return leaf.WalkLive(fn)
}
