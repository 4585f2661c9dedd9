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

package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxfs/fluxdir/blockio"
	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/dirhash"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/superblock"
)

// manifestInode is the persisted slice of one inode's metadata.
type manifestInode struct {
	Number      uint32    `yaml:"number"`
	Kind        uint8     `yaml:"kind"`
	Mode        uint32    `yaml:"mode"`
	UID         uint32    `yaml:"uid"`
	GID         uint32    `yaml:"gid"`
	Size        int64     `yaml:"size"`
	Nlink       uint32    `yaml:"nlink"`
	Atime       time.Time `yaml:"atime"`
	Mtime       time.Time `yaml:"mtime"`
	Ctime       time.Time `yaml:"ctime"`
	Flags       uint32    `yaml:"flags"`
	EpochNumber uint32    `yaml:"epoch-number"`
	NextInode   uint32    `yaml:"next-inode"`
	NextOrphan  uint32    `yaml:"next-orphan"`
	Generation  uint32    `yaml:"generation"`
	Backing     uint32    `yaml:"backing,omitempty"`
	Target      string    `yaml:"target,omitempty"`
	Rdev        uint32    `yaml:"rdev,omitempty"`
	CowBitmap   []byte    `yaml:"cow-bitmap,omitempty"`
}

// manifest is the volume metadata the out-of-scope host subsystems (inode
// table loader, block allocator, superblock) would normally keep on disk
// themselves. The CLI persists it next to the block file so mkfs, fsck, ls
// and mount compose across process runs.
type manifest struct {
	BlockSize   int                `yaml:"block-size"`
	SystemEpoch uint32             `yaml:"system-epoch"`
	HashVersion uint8              `yaml:"hash-version"`
	HashSeed    [4]uint32          `yaml:"hash-seed"`
	RootInode   uint32             `yaml:"root-inode"`
	NextInode   uint32             `yaml:"next-inode"`
	NextOffset  int64              `yaml:"next-offset"`
	Extents     map[uint64][]int64 `yaml:"extents"`
	Inodes      []manifestInode    `yaml:"inodes"`
}

func manifestPath(volume string) string { return volume + ".meta" }

// volume bundles the live handles a subcommand operates on.
type volume struct {
	path  string
	dev   *blockio.FileDevice
	table *inotab.MemTable
	sb    *superblock.Superblock
	root  uint32
}

// openVolume loads an existing volume's block file and manifest.
func openVolume(path string, c *cfg.Config) (*volume, error) {
	raw, err := os.ReadFile(manifestPath(path))
	if err != nil {
		return nil, fmt.Errorf("reading volume manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing volume manifest: %w", err)
	}

	dev, err := blockio.NewFileDevice(path, m.BlockSize)
	if err != nil {
		return nil, err
	}
	dev.RestoreExtentTable(m.Extents, m.NextOffset)

	table := inotab.NewMemTable()
	inodes := make([]inotab.Inode, 0, len(m.Inodes))
	for _, mi := range m.Inodes {
		inodes = append(inodes, inotab.Inode{
			Number: mi.Number, Kind: inotab.Kind(mi.Kind), Mode: mi.Mode,
			UID: mi.UID, GID: mi.GID, Size: mi.Size, Nlink: mi.Nlink,
			Atime: mi.Atime, Mtime: mi.Mtime, Ctime: mi.Ctime,
			Flags: inotab.Flags(mi.Flags), EpochNumber: mi.EpochNumber,
			NextInode: mi.NextInode, NextOrphan: mi.NextOrphan,
			Backing: mi.Backing, Generation: mi.Generation,
			Target: mi.Target, Rdev: mi.Rdev, CowBitmap: mi.CowBitmap,
		})
	}
	table.Restore(inodes, m.NextInode)

	sb := superblock.New(m.BlockSize, dirhash.Version(m.HashVersion), dirhash.Seed(m.HashSeed))
	sb.RestoreEpoch(m.SystemEpoch)
	if err := superblock.Open(sb.Features); err != nil {
		dev.Close()
		return nil, err
	}

	return &volume{path: path, dev: dev, table: table, sb: sb, root: m.RootInode}, nil
}

// save writes the volume's manifest back out.
func (v *volume) save() error {
	extents, next := v.dev.ExtentTable()
	inodes, nextIno := v.table.Export()

	m := manifest{
		BlockSize:   v.sb.BlockSize,
		SystemEpoch: v.sb.SystemEpoch(),
		HashVersion: uint8(v.sb.HashVersion),
		HashSeed:    [4]uint32(v.sb.HashSeed),
		RootInode:   v.root,
		NextInode:   nextIno,
		NextOffset:  next,
		Extents:     extents,
	}
	for _, in := range inodes {
		m.Inodes = append(m.Inodes, manifestInode{
			Number: in.Number, Kind: uint8(in.Kind), Mode: in.Mode,
			UID: in.UID, GID: in.GID, Size: in.Size, Nlink: in.Nlink,
			Atime: in.Atime, Mtime: in.Mtime, Ctime: in.Ctime,
			Flags: uint32(in.Flags), EpochNumber: in.EpochNumber,
			NextInode: in.NextInode, NextOrphan: in.NextOrphan,
			Backing: in.Backing, Generation: in.Generation,
			Target: in.Target, Rdev: in.Rdev, CowBitmap: in.CowBitmap,
		})
	}

	raw, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return os.WriteFile(manifestPath(v.path), raw, 0o644)
}

func (v *volume) close() error {
	if err := v.save(); err != nil {
		v.dev.Close()
		return err
	}
	return v.dev.Close()
}
