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

// Package superblock holds the mount-wide state the namespace layer
// consults: the monotonically non-decreasing system epoch, the default
// hash version and seed recorded on mkfs, the feature flags, and the
// orphan list.
package superblock

import (
	"fmt"
	"sync/atomic"

	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/dirhash"
	"github.com/fluxfs/fluxdir/orphan"
)

// Feature flags recorded in the superblock.
type Features uint32

const (
	// FeatureFiletype marks every directory entry's file_type field as
	// meaningful. fluxdir always mkfs's with this set (see DESIGN.md Open
	// Question 1); a volume mounted without it is rejected.
	FeatureFiletype Features = 1 << iota
)

// Superblock is the in-memory superblock for one mounted volume.
type Superblock struct {
	// SystemEpoch is advanced by AdvanceEpoch; it is monotonically
	// non-decreasing for the life of the mount.
	systemEpoch atomic.Uint32

	HashVersion dirhash.Version
	HashSeed    dirhash.Seed
	Features    Features

	BlockSize int

	Orphans *orphan.List
}

// New returns a freshly mkfs'd superblock, with FeatureFiletype always set
// (DESIGN.md Open Question 1).
func New(blockSize int, hashVersion dirhash.Version, seed dirhash.Seed) *Superblock {
	sb := &Superblock{
		HashVersion: hashVersion,
		HashSeed:    seed,
		Features:    FeatureFiletype,
		BlockSize:   blockSize,
		Orphans:     orphan.New(),
	}
	sb.systemEpoch.Store(1)
	return sb
}

// FromConfig derives mkfs-time superblock parameters from the bound
// configuration.
func FromConfig(c *cfg.Config) *Superblock {
	var hv dirhash.Version
	switch c.Versioning.HashVersion {
	case cfg.HashLegacy:
		hv = dirhash.Legacy
	case cfg.HashTEA:
		hv = dirhash.TEA
	default:
		hv = dirhash.HalfMD4
	}
	return New(int(c.FileSystem.BlockSize), hv, dirhash.Seed{})
}

// Open validates an existing volume's feature flags at mount time, per
// DESIGN.md Open Question 1: non-FILETYPE volumes are unsupported.
func Open(features Features) error {
	if features&FeatureFiletype == 0 {
		return fmt.Errorf("superblock: volume was not created with the FILETYPE feature; unsupported")
	}
	return nil
}

// SystemEpoch returns the current system epoch.
func (sb *Superblock) SystemEpoch() uint32 {
	return sb.systemEpoch.Load()
}

// AdvanceEpoch bumps the system epoch by one and returns the new value.
// The epoch only ever increases.
func (sb *Superblock) AdvanceEpoch() uint32 {
	return sb.systemEpoch.Add(1)
}

// RestoreEpoch reinstates a persisted system epoch at mount time. It never
// moves the epoch backwards.
func (sb *Superblock) RestoreEpoch(e uint32) {
	for {
		cur := sb.systemEpoch.Load()
		if e <= cur || sb.systemEpoch.CompareAndSwap(cur, e) {
			return
		}
	}
}
