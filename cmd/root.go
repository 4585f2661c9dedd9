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

// Package cmd is the fluxdir command-line surface: mkfs, fsck, mount, and
// ls over a fluxdir volume.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxfs/fluxdir/cfg"
	"github.com/fluxfs/fluxdir/logger"
)

var (
	cfgFile      string
	bindErr      error
	mountConfig  cfg.Config
	configLoaded bool
)

var rootCmd = &cobra.Command{
	Use:   "fluxdir",
	Short: "A copy-on-write, versioned directory filesystem",
	Long: `fluxdir maintains directories as hashed trees of name-to-inode
bindings with temporal semantics: every entry and inode carries birth and
death epochs, and past versions of files and directories stay reachable by
name through the flux suffix (name@<epoch>, name@yesterday).`,
	SilenceUsage: true,
}

// Execute runs the root command. It is the only entry point main uses.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "error reading config file %q: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}

// loadConfig materialises the merged flag/file configuration exactly once
// per process, then rationalises and validates it.
func loadConfig() (*cfg.Config, error) {
	if configLoaded {
		return &mountConfig, nil
	}
	if bindErr != nil {
		return nil, bindErr
	}

	if err := viper.Unmarshal(&mountConfig, viper.DecodeHook(cfg.DecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Rationalize(&mountConfig); err != nil {
		return nil, err
	}
	if err := cfg.ValidateConfig(&mountConfig); err != nil {
		return nil, err
	}
	if err := logger.SetLogger(mountConfig.Logging); err != nil {
		return nil, err
	}

	configLoaded = true
	return &mountConfig, nil
}
