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

package cfg

const (
	// DefaultBlockSize is the directory/data block size used by mkfs when
	// the operator does not override it.
	DefaultBlockSize BlockSize = 4096

	// DefaultRootMode is the permission bits on a freshly mkfs'd volume's
	// root directory.
	DefaultRootMode Octal = 0755

	// DefaultHashVersion is the dirhash family a freshly mkfs'd volume
	// records in its RootInfo header.
	DefaultHashVersion = HashHalfMD4

	// DefaultLinearToIndexThreshold is the number of live entries a
	// LinearDir tolerates before promotion to HashedDirIndex is attempted
	// on the next overflowing insert.
	DefaultLinearToIndexThreshold = 0 // promotion is purely overflow-triggered

	// DefaultReadaheadBlocks is the linear-scan readahead batch size.
	DefaultReadaheadBlocks = 8

	// DefaultEnospcRetries bounds the allocator retry budget for
	// create/mkdir/symlink/link.
	DefaultEnospcRetries = 3
)
