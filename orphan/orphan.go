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

// Package orphan maintains the superblock-wide orphan inode list: inodes
// whose link count has dropped to zero but that still have an outstanding
// lookup reference (an open file handle, or a version chain still pointing
// at them) and so cannot be freed yet. Every add/remove crosses the
// journal under an invariant-checked mutex.
package orphan

import (
	"context"
	"fmt"

	"github.com/jacobsa/syncutil"

	"github.com/fluxfs/fluxdir/journal"
)

// List is the in-memory mirror of the on-disk orphan singly-linked list
// threaded through each Inode's NextOrphan field.
//
// INVARIANT: head == 0 iff members is empty.
// INVARIANT: members contains no duplicate inode numbers.
type List struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	head uint32
	// GUARDED_BY(mu)
	members map[uint32]uint32 // ino -> next ino in the list, 0 if tail
}

func New() *List {
	l := &List{members: make(map[uint32]uint32)}
	l.mu = syncutil.NewInvariantMutex(l.checkInvariants)
	return l
}

func (l *List) checkInvariants() {
	if (l.head == 0) != (len(l.members) == 0) {
		panic("orphan: head/members out of sync")
	}
}

// Add links ino onto the head of the orphan list within the given journal
// transaction. The in-memory list is touched only after the journal write
// succeeds, so a failed add never leaves a dangling pointer; callers must
// have already logged the nlink-drops-to-zero update.
//
// LOCKS_EXCLUDED(mu)
func (l *List) Add(ctx context.Context, h journal.Handle, ino uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.members[ino]; exists {
		return fmt.Errorf("orphan: inode %d already orphaned", ino)
	}
	if err := h.DirtyMetadata(ctx, uint64(ino), 0); err != nil {
		return err
	}

	l.members[ino] = l.head
	l.head = ino
	return nil
}

// Remove unlinks ino from the orphan list, used once the inode's final
// lookup reference drops away and the inode can actually be freed.
//
// LOCKS_EXCLUDED(mu)
func (l *List) Remove(ctx context.Context, h journal.Handle, ino uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, exists := l.members[ino]
	if !exists {
		return fmt.Errorf("orphan: inode %d not orphaned", ino)
	}
	if err := h.DirtyMetadata(ctx, uint64(ino), 0); err != nil {
		return err
	}

	if l.head == ino {
		l.head = next
	} else {
		for cur, n := range l.members {
			if n == ino {
				l.members[cur] = next
				break
			}
		}
	}
	delete(l.members, ino)
	return nil
}

// Head returns the inode at the head of the orphan list, 0 if empty. Used by
// mount-time recovery to walk and finish freeing any inodes orphaned by a
// crash mid-unlink.
//
// LOCKS_EXCLUDED(mu)
func (l *List) Head() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// Contains reports whether ino is currently on the orphan list.
//
// LOCKS_EXCLUDED(mu)
func (l *List) Contains(ino uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.members[ino]
	return ok
}
