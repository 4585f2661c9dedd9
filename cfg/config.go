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

// GENERATED CODE - DO NOT EDIT MANUALLY.

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the root of fluxdir's mount/mkfs configuration, bound from
// flags and/or a YAML config file.
type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	FileSystem FileSystemConfig `yaml:"file-system"`

	Versioning VersioningConfig `yaml:"versioning"`

	Cache CacheConfig `yaml:"cache"`

	Logging LoggingConfig `yaml:"logging"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex"`

	// LogBadDxDir is bound to the debug_bad_dx_dir flag but nothing reads
	// it; every BAD_DX_DIR fallback is logged at WARNING regardless.
	LogBadDxDir bool `yaml:"log-bad-dx-dir"`
}

type FileSystemConfig struct {
	// BlockSize is the directory/data block size, fixed at mkfs time.
	BlockSize BlockSize `yaml:"block-size"`

	// RootMode is the permission bits on the volume's root directory.
	RootMode Octal `yaml:"root-mode"`

	Uid int `yaml:"uid"`
	Gid int `yaml:"gid"`

	// EnableIndexedDirs turns on linear-to-indexed promotion. Volumes
	// mounted with this off never promote, even on overflow, and fail
	// writes with NO_SPACE once a linear directory's single block is full.
	EnableIndexedDirs bool `yaml:"enable-indexed-dirs"`

	// ReadaheadBlocks is LinearDir's RA_SIZE.
	ReadaheadBlocks int `yaml:"readahead-blocks"`

	// EnospcRetries bounds the allocator-retry budget for create/mkdir/
	// symlink/link.
	EnospcRetries int `yaml:"enospc-retries"`
}

// VersioningConfig controls the flux-naming / epoch-resolution behavior.
type VersioningConfig struct {
	// FluxToken is the reserved byte separating a base name from an epoch
	// selector.
	FluxToken FluxToken `yaml:"flux-token"`

	// HashVersion is the dirhash family recorded in new volumes' RootInfo.
	HashVersion HashVersion `yaml:"hash-version"`
}

type CacheConfig struct {
	// BufferCacheBlocks is bound to the buffer-cache-blocks flag but nothing
	// reads it; blockio.MemDevice is bounded only by its LimitBlocks field,
	// and the real on-disk buffer cache is out of scope.
	BufferCacheBlocks int `yaml:"buffer-cache-blocks"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	FilePath ResolvedPath `yaml:"file-path"`

	Format string `yaml:"format"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "", "The application name of this mount.")
	if err = viper.BindPFlag("app-name", flagSet.Lookup("app-name")); err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants are violated.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants")); err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Print debug messages when a mutex is held too long.")
	if err = viper.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex")); err != nil {
		return err
	}

	flagSet.BoolP("debug_bad_dx_dir", "", false, "Log every BAD_DX_DIR linear-scan fallback.")
	if err = viper.BindPFlag("debug.log-bad-dx-dir", flagSet.Lookup("debug_bad_dx_dir")); err != nil {
		return err
	}

	flagSet.IntP("block-size", "", int(DefaultBlockSize), "Directory/data block size in bytes. Fixed at mkfs time.")
	if err = viper.BindPFlag("file-system.block-size", flagSet.Lookup("block-size")); err != nil {
		return err
	}

	defaultRootMode := DefaultRootMode
	flagSet.StringP("root-mode", "", defaultRootMode.String(), "Permission bits for the root directory, in octal.")
	if err = viper.BindPFlag("file-system.root-mode", flagSet.Lookup("root-mode")); err != nil {
		return err
	}

	flagSet.IntP("uid", "", -1, "UID owner of all inodes.")
	if err = viper.BindPFlag("file-system.uid", flagSet.Lookup("uid")); err != nil {
		return err
	}

	flagSet.IntP("gid", "", -1, "GID owner of all inodes.")
	if err = viper.BindPFlag("file-system.gid", flagSet.Lookup("gid")); err != nil {
		return err
	}

	flagSet.BoolP("enable-indexed-dirs", "", true, "Allow linear directories to promote to a hashed index on overflow.")
	if err = viper.BindPFlag("file-system.enable-indexed-dirs", flagSet.Lookup("enable-indexed-dirs")); err != nil {
		return err
	}

	flagSet.IntP("readahead-blocks", "", DefaultReadaheadBlocks, "Blocks to read ahead while scanning a linear directory.")
	if err = viper.BindPFlag("file-system.readahead-blocks", flagSet.Lookup("readahead-blocks")); err != nil {
		return err
	}

	flagSet.IntP("enospc-retries", "", DefaultEnospcRetries, "Allocator retries before an ENOSPC create/mkdir/symlink/link gives up.")
	if err = viper.BindPFlag("file-system.enospc-retries", flagSet.Lookup("enospc-retries")); err != nil {
		return err
	}

	flagSet.StringP("flux-token", "", string(defaultFluxToken), "Reserved byte separating a base name from an epoch selector.")
	if err = viper.BindPFlag("versioning.flux-token", flagSet.Lookup("flux-token")); err != nil {
		return err
	}

	flagSet.StringP("hash-version", "", string(DefaultHashVersion), "dirhash family recorded in new volumes: legacy, half-md4, or tea.")
	if err = viper.BindPFlag("versioning.hash-version", flagSet.Lookup("hash-version")); err != nil {
		return err
	}

	flagSet.IntP("buffer-cache-blocks", "", 1024, "In-memory buffer cache capacity, in blocks.")
	if err = viper.BindPFlag("cache.buffer-cache-blocks", flagSet.Lookup("buffer-cache-blocks")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Logging severity: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to the log file. Empty means stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log line format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	return nil
}
