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

// Package version implements the per-inode version chain: dup_inode
// (clone-before-mutate) and reclaim_dup_inode (rollback on failed
// mutation), threaded through an explicit journal transaction.
package version

import (
	"context"
	"fmt"

	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/journal"
)

// Chain orchestrates dup_inode/reclaim_dup_inode over an inotab.Table and a
// journal.Manager.
type Chain struct {
	table   inotab.Table
	journal journal.Manager
}

func New(table inotab.Table, jm journal.Manager) *Chain {
	return &Chain{table: table, journal: jm}
}

// Snapshot captures the head fields dup_inode is about to overwrite, so a
// failed subsequent operation can reclaim_dup_inode back to this state.
// Valid is false when DupInode was a no-op (nothing to reclaim).
type Snapshot struct {
	Valid       bool
	EpochNumber uint32
	CowBitmap   []byte
	NextInode   uint32
}

// DupInode clones ino if it predates the current system epoch, so the
// mutation about to happen cannot disturb history. If ino carries
// FlagUnversionable, or is
// already current (EpochNumber == systemEpoch and not UNCHANGEABLE), this is
// a no-op and head is returned unchanged with a zero Snapshot.
//
// On success, ino (the head) has had its EpochNumber swapped to the new
// current epoch, its CowBitmap reset, and its NextInode repointed at the
// freshly minted clone; the clone carries ino's old EpochNumber, CowBitmap,
// and NextInode, and is marked UNCHANGEABLE.
func (c *Chain) DupInode(ctx context.Context, h journal.Handle, ino *inotab.Inode, systemEpoch uint32) (Snapshot, error) {
	if ino.Flags.Has(inotab.FlagUnversionable) {
		return Snapshot{}, nil
	}
	if ino.Nlink == 0 {
		return Snapshot{}, fmt.Errorf("version: cannot dup deleted inode %d", ino.Number)
	}
	if ino.EpochNumber == systemEpoch && !ino.Flags.Has(inotab.FlagUnchangeable) {
		return Snapshot{}, nil
	}

	before := Snapshot{Valid: true, EpochNumber: ino.EpochNumber, CowBitmap: ino.CowBitmap, NextInode: ino.NextInode}

	clone, err := c.table.New(ino.Kind)
	if err != nil {
		return Snapshot{}, err
	}
	cloneNumber := clone.Number
	*clone = *ino.Clone()
	clone.Number = cloneNumber
	clone.Flags |= inotab.FlagUnchangeable

	if err := h.GetWriteAccess(ctx, uint64(ino.Number), 0); err != nil {
		return Snapshot{}, err
	}

	// Step 5: move the cow bitmap off the head to the clone.
	clone.CowBitmap = ino.CowBitmap
	ino.CowBitmap = nil

	// Step 6: swap epoch numbers so the head becomes current and the clone
	// carries what had been the head's epoch.
	clone.EpochNumber = ino.EpochNumber
	ino.EpochNumber = systemEpoch

	// Step 7: splice the clone into the chain as ino's immediate successor.
	clone.NextInode = ino.NextInode
	ino.NextInode = clone.Number

	// The clone shares the head's block space: its content is the same set
	// of blocks, scoped by the epochs already recorded in them.
	if clone.Backing == 0 {
		clone.Backing = ino.Number
	}

	if err := h.DirtyMetadata(ctx, uint64(clone.Number), 0); err != nil {
		return Snapshot{}, err
	}
	if err := h.DirtyMetadata(ctx, uint64(ino.Number), 0); err != nil {
		return Snapshot{}, err
	}

	return before, nil
}

// ReclaimDupInode undoes a DupInode whose caller failed a subsequent step:
// it copies the successor's fields back onto the head and marks the
// successor for collection.
func (c *Chain) ReclaimDupInode(ctx context.Context, h journal.Handle, ino *inotab.Inode, before Snapshot) error {
	if !before.Valid {
		// DupInode was a no-op; nothing to reclaim.
		return nil
	}

	successorNumber := ino.NextInode
	successor, err := c.table.Get(successorNumber)
	if err != nil {
		return err
	}
	defer c.table.Put(successor)

	ino.EpochNumber = before.EpochNumber
	ino.CowBitmap = before.CowBitmap
	ino.NextInode = before.NextInode
	successor.Nlink = 0

	if err := h.DirtyMetadata(ctx, uint64(ino.Number), 0); err != nil {
		return err
	}
	if err := h.DirtyMetadata(ctx, uint64(successor.Number), 0); err != nil {
		return err
	}
	return nil
}

// CheckInvariants verifies that epochs strictly decrease along the chain
// starting at head, and that every element but head is UNCHANGEABLE.
func (c *Chain) CheckInvariants(head *inotab.Inode, get func(uint32) (*inotab.Inode, error)) error {
	cur := head
	first := true
	for {
		if !first && !cur.Flags.Has(inotab.FlagUnchangeable) {
			return fmt.Errorf("version: non-head inode %d in chain is not UNCHANGEABLE", cur.Number)
		}
		if cur.NextInode == 0 {
			return nil
		}
		next, err := get(cur.NextInode)
		if err != nil {
			return err
		}
		if next.EpochNumber >= cur.EpochNumber {
			return fmt.Errorf("version: chain epoch %d does not strictly decrease to %d", cur.EpochNumber, next.EpochNumber)
		}
		cur = next
		first = false
	}
}
