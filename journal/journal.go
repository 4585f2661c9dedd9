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

// Package journal is the journaling-transaction-manager collaborator the
// namespace layer mutates through. The write-ahead log itself lives in the
// host filesystem; NamespaceOps only needs a transaction context it can
// start, dirty metadata through, and finalise on every exit path.
package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handle is a single journal transaction, threaded explicitly through every
// mutating NamespaceOps call.
type Handle interface {
	// GetWriteAccess declares intent to dirty the given block of the given
	// inode within this transaction.
	GetWriteAccess(ctx context.Context, ino uint64, block uint32) error

	// DirtyMetadata records that the given block was modified and must be
	// part of this transaction's commit.
	DirtyMetadata(ctx context.Context, ino uint64, block uint32) error

	// Stop finalises the transaction: commit if ok is true, abort otherwise.
	// Stop must be called exactly once per Start, on every exit path
	// (success or error).
	Stop(ctx context.Context, ok bool) error
}

// Manager starts transactions sized for a particular operation's worst-case
// metadata touch.
type Manager interface {
	Start(ctx context.Context, creditBlocks int) (Handle, error)
}

// MemManager is an in-memory fake sufficient to exercise the namespace
// layer's ordering guarantees (a cow clone before the head's next_inode,
// the orphan list only after a successful journal write) without a real
// write-ahead log. htree splits do not run under a Handle, so the order in
// which split blocks and their parent index are dirtied is not recorded. It
// records each transaction's touched (ino, block) pairs so tests can
// assert the order operations were dirtied in.
type MemManager struct {
	mu      sync.Mutex
	commits []Commit
}

// Commit is one completed (or aborted) transaction, recorded for inspection
// by tests. ID correlates the transaction with log lines emitted while it
// was open.
type Commit struct {
	ID      string
	Touched []Touch
	OK      bool
}

// Touch is one (inode, block) pair dirtied within a transaction, in the
// order GetWriteAccess/DirtyMetadata were called.
type Touch struct {
	Ino   uint64
	Block uint32
}

func NewMemManager() *MemManager {
	return &MemManager{}
}

func (m *MemManager) Start(_ context.Context, _ int) (Handle, error) {
	return &memHandle{mgr: m, id: uuid.New().String()}, nil
}

// Commits returns a snapshot of every transaction finalised so far, for
// assertions in tests.
func (m *MemManager) Commits() []Commit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Commit, len(m.commits))
	copy(out, m.commits)
	return out
}

type memHandle struct {
	mgr     *MemManager
	id      string
	touched []Touch
	stopped bool
}

func (h *memHandle) GetWriteAccess(_ context.Context, ino uint64, block uint32) error {
	if h.stopped {
		return fmt.Errorf("journal: GetWriteAccess after Stop")
	}
	h.touched = append(h.touched, Touch{Ino: ino, Block: block})
	return nil
}

func (h *memHandle) DirtyMetadata(_ context.Context, ino uint64, block uint32) error {
	if h.stopped {
		return fmt.Errorf("journal: DirtyMetadata after Stop")
	}
	h.touched = append(h.touched, Touch{Ino: ino, Block: block})
	return nil
}

func (h *memHandle) Stop(_ context.Context, ok bool) error {
	if h.stopped {
		return fmt.Errorf("journal: double Stop")
	}
	h.stopped = true

	h.mgr.mu.Lock()
	h.mgr.commits = append(h.mgr.commits, Commit{ID: h.id, Touched: h.touched, OK: ok})
	h.mgr.mu.Unlock()

	return nil
}
