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

package vfsfuse

import (
	"context"
	"log"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
)

// Mount attaches server at mountPoint and returns the mounted filesystem,
// which the caller Joins to block until unmount.
func Mount(ctx context.Context, mountPoint, fsName string, server fuseutil.FileSystem, errorLogger *log.Logger) (*fuse.MountedFileSystem, error) {
	cfg := &fuse.MountConfig{
		FSName:      fsName,
		ErrorLogger: errorLogger,
	}
	return fuse.Mount(mountPoint, fuseutil.NewFileSystemServer(server), cfg)
}
