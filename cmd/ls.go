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
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/clock"
	"github.com/fluxfs/fluxdir/dirleaf"
	"github.com/fluxfs/fluxdir/journal"
	"github.com/fluxfs/fluxdir/namespace"
	"github.com/fluxfs/fluxdir/xattr"
)

var lsCmd = &cobra.Command{
	Use:   "ls volume [path]",
	Short: "List a directory of an unmounted fluxdir volume",
	Long: `List a directory without mounting. The path may carry flux
suffixes on any component, so "fluxdir ls vol.img /src@3" lists the
directory "src" as it stood at epoch 3.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		path := "/"
		if len(args) == 2 {
			path = args[1]
		}
		return runLs(args[0], path, c)
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func typeChar(ft dirleaf.FileType) byte {
	switch ft {
	case dirleaf.FTDir:
		return 'd'
	case dirleaf.FTSymlink:
		return 'l'
	case dirleaf.FTChrdev:
		return 'c'
	case dirleaf.FTBlkdev:
		return 'b'
	case dirleaf.FTFifo:
		return 'p'
	case dirleaf.FTSock:
		return 's'
	default:
		return '-'
	}
}

func runLs(volumePath, path string, c *cfg.Config) error {
	v, err := openVolume(volumePath, c)
	if err != nil {
		return err
	}
	defer v.dev.Close()

	deps := namespace.Deps{
		Dev:     v.dev,
		Table:   v.table,
		Journal: journal.NewMemManager(),
		SB:      v.sb,
		Attrs:   xattr.NewMemStore(),
		Clock:   clock.RealClock{},
	}
	ops := namespace.New(deps, c)
	ctx := context.Background()

	dir, err := v.table.Get(v.root)
	if err != nil {
		return err
	}
	dirName := ""

	// Walk down one component at a time so each may carry a flux suffix.
	for _, component := range strings.Split(strings.Trim(path, "/"), "/") {
		if component == "" {
			continue
		}
		child, err := ops.Lookup(ctx, dir, dirName, component)
		v.table.Put(dir)
		if err != nil {
			return err
		}
		if child == nil {
			return fmt.Errorf("ls: %s: no such entry", component)
		}
		dir, dirName = child, component
	}
	defer v.table.Put(dir)

	if !dir.IsDir() {
		fmt.Printf("%c %10d  ino %-6d epoch %-4d %s\n", '-', dir.Size, dir.Number, dir.EpochNumber, path)
		return nil
	}

	entries, err := ops.ReadDir(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		attr := fmt.Sprintf("%10s  ino %-6d %10s", "?", e.Inode, "")
		if in, gerr := v.table.Get(e.Inode); gerr == nil {
			attr = fmt.Sprintf("%10d  ino %-6d epoch %-4d", in.Size, in.Number, in.EpochNumber)
			v.table.Put(in)
		}
		fmt.Printf("%c %s %s\n", typeChar(e.Type), attr, e.Name)
	}
	return nil
}
