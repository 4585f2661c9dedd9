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
	"errors"
	"syscall"

	"github.com/fluxfs/fluxdir/nserr"
)

var (
	errNotFound = syscall.ENOENT
	errInvalid  = syscall.EINVAL
	errStale    = syscall.ESTALE
)

// errno collapses a namespace boundary error onto the errno the kernel
// expects. Anything unrecognized surfaces as EIO.
func errno(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nserr.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, nserr.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, nserr.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, nserr.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, nserr.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, nserr.ErrAccess):
		return syscall.EACCES
	case errors.Is(err, nserr.ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, nserr.ErrLinkMaxExceeed):
		return syscall.EMLINK
	case errors.Is(err, nserr.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, nserr.ErrStale):
		return syscall.ESTALE
	case errors.Is(err, errStale):
		return syscall.ESTALE
	default:
		return syscall.EIO
	}
}
