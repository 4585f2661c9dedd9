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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/dirhash"
	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/fakeinode"
	"github.com/fluxfs/fluxdir/htree"
	"github.com/fluxfs/fluxdir/inotab"
	"github.com/fluxfs/fluxdir/journal"
	"github.com/fluxfs/fluxdir/lineardir"
	"github.com/fluxfs/fluxdir/version"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck volume",
	Short: "Check a fluxdir volume's directory and version-chain invariants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		return runFsck(args[0], c)
	},
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}

// checker accumulates problems instead of stopping at the first one, the
// way any fsck worth running does.
type checker struct {
	v        *volume
	chain    *version.Chain
	problems []string
	dirs     int
	entries  int
}

func (ck *checker) problemf(format string, args ...interface{}) {
	ck.problems = append(ck.problems, fmt.Sprintf(format, args...))
}

func runFsck(path string, c *cfg.Config) error {
	v, err := openVolume(path, c)
	if err != nil {
		return err
	}
	defer v.dev.Close()

	ck := &checker{v: v, chain: version.New(v.table, journal.NewMemManager())}
	ck.checkDir(context.Background(), v.root, map[uint32]bool{})

	fmt.Printf("fsck: %d directories, %d entries, system epoch %d\n", ck.dirs, ck.entries, v.sb.SystemEpoch())
	if len(ck.problems) == 0 {
		fmt.Println("fsck: clean")
		return nil
	}
	for _, p := range ck.problems {
		fmt.Println("fsck:", p)
	}
	return fmt.Errorf("fsck: %d problem(s) found", len(ck.problems))
}

// checkDir validates one directory and recurses into live subdirectories.
func (ck *checker) checkDir(ctx context.Context, ino uint32, seen map[uint32]bool) {
	if seen[ino] {
		ck.problemf("directory inode %d reached twice (cycle?)", ino)
		return
	}
	seen[ino] = true
	ck.dirs++

	dir, err := ck.v.table.Get(ino)
	if err != nil {
		ck.problemf("directory inode %d missing from inode table", ino)
		return
	}
	defer ck.v.table.Put(dir)

	if !dir.IsDir() {
		ck.problemf("inode %d referenced as a directory but has kind %d", ino, dir.Kind)
		return
	}

	if dir.Flags.Has(inotab.FlagIndex) {
		x := htree.New(ck.v.dev, uint64(ino), dirhash.New(ck.v.sb.HashVersion), ck.v.sb.HashSeed)
		if _, _, err := x.ReadRoot(ctx); err != nil {
			ck.problemf("inode %d: corrupt hashed index: %v", ino, err)
		}
	}

	ld := lineardir.New(ck.v.dev, uint64(ino), 1)
	err = ld.Iterate(ctx, func(e *dirleaf.Entry) error {
		ck.entries++
		ck.checkEntry(ctx, ino, e, seen)
		return nil
	})
	if err != nil {
		ck.problemf("inode %d: directory sweep failed: %v", ino, err)
	}
}

func (ck *checker) checkEntry(ctx context.Context, dirIno uint32, e *dirleaf.Entry, seen map[uint32]bool) {
	if e.DeathEpoch != dirleaf.Alive && e.BirthEpoch > e.DeathEpoch {
		ck.problemf("inode %d entry %q: birth epoch %d after death epoch %d", dirIno, e.Name, e.BirthEpoch, e.DeathEpoch)
	}
	if fakeinode.IsFakeRange(e.Inode) {
		ck.problemf("inode %d entry %q: references reserved inode number %d", dirIno, e.Name, e.Inode)
		return
	}

	target, err := ck.v.table.Get(e.Inode)
	if err != nil {
		ck.problemf("inode %d entry %q: dangling inode %d", dirIno, e.Name, e.Inode)
		return
	}
	defer ck.v.table.Put(target)

	var walked []*inotab.Inode
	if err := ck.chain.CheckInvariants(target, func(n uint32) (*inotab.Inode, error) {
		in, err := ck.v.table.Get(n)
		if err == nil {
			walked = append(walked, in)
		}
		return in, err
	}); err != nil {
		ck.problemf("inode %d: version chain: %v", e.Inode, err)
	}
	for _, in := range walked {
		ck.v.table.Put(in)
	}

	if e.FileType == dirleaf.FTDir && e.Name != "." && e.Name != ".." && e.InScope(ck.v.sb.SystemEpoch()) {
		ck.checkDir(ctx, e.Inode, seen)
	}
}
