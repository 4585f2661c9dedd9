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

// Package quota is the quota-accounting collaborator (dquot_initialize /
// dquot_transfer). Per-user/group accounting policy belongs to the host;
// NamespaceOps only needs the two call sites where the real system would
// charge or transfer a quota.
package quota

import "context"

// Initializer is invoked once per newly minted inode, after new_inode and
// before the inode is linked into a directory.
type Initializer interface {
	Initialize(ctx context.Context, ino uint32, uid, gid uint32) error

	// Transfer is invoked on chown, moving ino's charge from one owner to
	// another.
	Transfer(ctx context.Context, ino uint32, fromUID, toUID uint32) error
}

// Noop does no accounting at all; it is the default Initializer for volumes
// mounted without quotas enabled.
type Noop struct{}

func (Noop) Initialize(context.Context, uint32, uint32, uint32) error { return nil }
func (Noop) Transfer(context.Context, uint32, uint32, uint32) error   { return nil }

var _ Initializer = Noop{}
