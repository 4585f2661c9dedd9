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

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolvePath makes path absolute, expanding a leading "~" to the user's
// home directory. The empty string resolves to itself (meaning "use the
// default", e.g. stderr for --log-file).
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

// DefaultReadaheadWorkers sizes the linear-scan readahead worker pool off
// the host's CPU count.
func DefaultReadaheadWorkers() int {
	return max(2, runtime.NumCPU()/2)
}

// IsIndexedDirEnabled reports whether a mounted volume is allowed to promote
// overflowing LinearDirs to a HashedDirIndex.
func IsIndexedDirEnabled(c *Config) bool {
	return c.FileSystem.EnableIndexedDirs
}
