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

// Package namespace implements the directory-tree operations (lookup,
// create, link, unlink, rmdir, mkdir, rename, symlink, mknod) layered on
// top of the dirleaf/htree/lineardir engines, the version chain, and the
// epoch resolver.
package namespace

import (
	"context"
	"fmt"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/clock"
	"github.com/fluxfs/fluxdir/dirhash"
	"github.com/fluxfs/fluxdir/epoch"
	"github.com/fluxfs/fluxdir/fakeinode"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/journal"
	"github.com/fluxfs/fluxdir/metrics"
	"github.com/fluxfs/fluxdir/nserr"
	"github.com/fluxfs/fluxdir/quota"
	"github.com/fluxfs/fluxdir/superblock"
	"github.com/fluxfs/fluxdir/version"
	"github.com/fluxfs/fluxdir/xattr"
)

// Ops is the single entry point every VFS-facing adapter (vfsfuse, the cmd
// line tools) drives the filesystem's namespace through.
type Ops struct {
	dev   blockio.Device
	table inotab.Table
	jm    journal.Manager

	chain    *version.Chain
	resolver *epoch.Resolver
	fake     *fakeinode.Factory

	sb     *superblock.Superblock
	hasher dirhash.Hasher
	quota  quota.Initializer
	attrs  xattr.Store

	metrics metrics.Handle

	readaheadBlocks   int
	enableIndexedDirs bool
	enospcRetries     int
}

// Deps bundles every host collaborator Ops is wired against.
type Deps struct {
	Dev     blockio.Device
	Table   inotab.Table
	Journal journal.Manager
	SB      *superblock.Superblock
	Quota   quota.Initializer
	Attrs   xattr.Store
	Clock   clock.Clock
	Metrics metrics.Handle
}

// New wires Ops from its collaborators and the bound configuration.
func New(d Deps, c *cfg.Config) *Ops {
	if d.Quota == nil {
		d.Quota = quota.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoopMetrics()
	}
	return &Ops{
		dev:               d.Dev,
		table:             d.Table,
		jm:                d.Journal,
		chain:             version.New(d.Table, d.Journal),
		resolver:          epoch.New(byte(c.Versioning.FluxToken), d.Clock),
		fake:              fakeinode.New(d.Attrs),
		sb:                d.SB,
		hasher:            dirhash.New(d.SB.HashVersion),
		quota:             d.Quota,
		attrs:             d.Attrs,
		metrics:           d.Metrics,
		readaheadBlocks:   c.FileSystem.ReadaheadBlocks,
		enableIndexedDirs: c.FileSystem.EnableIndexedDirs,
		enospcRetries:     c.FileSystem.EnospcRetries,
	}
}

// checkMutable rejects mutations targeting a past version: only the
// current head of a version chain may be mutated directly.
func checkMutable(ino *inotab.Inode) error {
	if ino.Flags.Has(inotab.FlagUnchangeable) {
		return fmt.Errorf("namespace: %w", nserr.ErrReadOnly)
	}
	return nil
}

// checkNameMutable rejects a mutating op whose dentry name addresses a
// version: a flux-suffixed name scopes into the past (or is a version
// listing), and the past is read-only. A malformed suffix is rejected the
// same way since the token byte is reserved.
func (o *Ops) checkNameMutable(dir *inotab.Inode, name string) error {
	scope, err := o.resolver.Resolve(name, "", dir, o.sb.SystemEpoch())
	if err != nil || scope.VersionListing || scope.Name != name {
		return fmt.Errorf("namespace: %w", nserr.ErrReadOnly)
	}
	return nil
}

// startTxn opens a journal transaction sized for creditBlocks and returns a
// finish func that stops it, committing iff *errp is nil when called.
func (o *Ops) startTxn(ctx context.Context, creditBlocks int) (journal.Handle, func(errp *error), error) {
	h, err := o.jm.Start(ctx, creditBlocks)
	if err != nil {
		return nil, nil, err
	}
	return h, func(errp *error) {
		_ = h.Stop(ctx, *errp == nil)
	}, nil
}

// metricsTrack is a thin wrapper over metrics.Track so every operation in
// this package threads its Handle the same way.
func metricsTrack(ctx context.Context, o *Ops, op string) func(error) {
	return metrics.Track(ctx, o.metrics, op)
}
