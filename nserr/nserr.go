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

// Package nserr defines the error codes surfaced at the NamespaceOps
// boundary, shared by namespace and metrics so the latter can categorize
// failures without importing the former.
package nserr

import "errors"

// Sentinel errors, one per boundary error code. Wrap with
// fmt.Errorf("...: %w", ErrX) for context.
var (
	ErrNotFound       = errors.New("not found")
	ErrNotEmpty       = errors.New("directory not empty")
	ErrNameTooLong    = errors.New("name too long")
	ErrInvalid        = errors.New("invalid argument")
	ErrExists         = errors.New("already exists")
	ErrIO             = errors.New("i/o error")
	ErrAccess         = errors.New("access denied")
	ErrNoSpace        = errors.New("no space left")
	ErrLinkMaxExceeed = errors.New("link count would exceed maximum")
	ErrReadOnly       = errors.New("past is read-only")
	ErrStale          = errors.New("stale handle")
)

// Category classifies err into a small set of buckets, for metrics
// cardinality and for logging. Unrecognized errors classify as "io": a
// referential failure such as a bad inode number in a directory entry is
// indistinguishable from device corruption at this level.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotEmpty):
		return "not_empty"
	case errors.Is(err, ErrNameTooLong):
		return "name_too_long"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrExists):
		return "exists"
	case errors.Is(err, ErrAccess):
		return "access"
	case errors.Is(err, ErrNoSpace):
		return "no_space"
	case errors.Is(err, ErrLinkMaxExceeed):
		return "link_max"
	case errors.Is(err, ErrReadOnly):
		return "read_only"
	case errors.Is(err, ErrStale):
		return "stale"
	default:
		return "io"
	}
}
