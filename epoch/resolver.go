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

// Package epoch parses the flux-token suffix on an incoming pathname
// component, maps symbolic names and numeric epochs to a scope epoch, and
// flags version-listing lookups.
package epoch

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fluxfs/fluxdir/clock"
	"github.com/fluxfs/fluxdir/inotab"
)

// ErrNotFound is returned when the requested epoch lies in the future
// relative to the current system epoch.
var ErrNotFound = errors.New("epoch: requested epoch is in the future")

// ErrCycle signals the "version listing of a version listing" cycle guard:
// the caller should return a null dentry, not an error.
var ErrCycle = errors.New("epoch: version listing of a version listing")

// symbolic names a fixed offset to subtract from the current wall-clock
// second count.
var symbolic = map[string]time.Duration{
	"onehour":   time.Hour,
	"yesterday": 24 * time.Hour,
	"oneday":    24 * time.Hour,
	"oneweek":   7 * 24 * time.Hour,
	"onemonth":  30 * 24 * time.Hour,
	"oneyear":   365 * 24 * time.Hour,
}

// Resolver parses flux-suffixed names into (effective name, scope epoch).
type Resolver struct {
	token byte
	clk   clock.Clock
}

// New returns a Resolver using the given flux token byte and clock.
func New(token byte, clk clock.Clock) *Resolver {
	return &Resolver{token: token, clk: clk}
}

// Scope is the result of resolving one pathname component.
type Scope struct {
	// Name is the name to hand to the directory engine, truncated at the
	// flux token if one was present.
	Name string

	// ScopeEpoch is the epoch lookups through this name should be scoped to.
	ScopeEpoch uint32

	// VersionListing is true when the name is a bare trailing flux token
	// (e.g. "dir@" with no suffix): the caller should synthesize a
	// directory FakeInode projecting the parent at the system epoch,
	// rather than performing a normal scoped lookup.
	VersionListing bool
}

// Resolve parses name in the context of parent (the directory the lookup is
// rooted at) and the filesystem's current system epoch. parentName is the
// name parent was itself reached by, used only for the version-listing
// cycle guard.
func (r *Resolver) Resolve(name string, parentName string, parent *inotab.Inode, systemEpoch uint32) (Scope, error) {
	base, suffix, hasToken := r.splitToken(name)

	defaultEpoch := systemEpoch
	if parent != nil && parent.Flags.Has(inotab.FlagUnchangeable) {
		defaultEpoch = parent.EpochNumber
	}

	if !hasToken {
		return Scope{Name: name, ScopeEpoch: defaultEpoch}, nil
	}

	if suffix == "" {
		// Bare trailing token: a version-listing request, unless the parent
		// itself was already reached through a trailing token (cycle guard).
		if r.endsWithToken(parentName) {
			return Scope{}, ErrCycle
		}
		return Scope{Name: base, ScopeEpoch: systemEpoch, VersionListing: true}, nil
	}

	decoded, err := r.decodeSuffix(suffix)
	if err != nil {
		return Scope{}, err
	}
	scopeEpoch := decoded - 1 // epochs are 1-based on the wire.

	if scopeEpoch+1 > systemEpoch {
		return Scope{}, ErrNotFound
	}

	return Scope{Name: base, ScopeEpoch: scopeEpoch}, nil
}

// splitToken splits name at the last occurrence of the flux token.
func (r *Resolver) splitToken(name string) (base, suffix string, ok bool) {
	idx := strings.LastIndexByte(name, r.token)
	if idx < 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}

func (r *Resolver) endsWithToken(name string) bool {
	return len(name) > 0 && name[len(name)-1] == r.token
}

func (r *Resolver) decodeSuffix(suffix string) (uint32, error) {
	if d, ok := symbolic[suffix]; ok {
		wallSeconds := r.clk.Now().Add(-d).Unix()
		// Epochs are 1-based on the wire; a clock that lands at or before
		// zero cannot name one.
		if wallSeconds < 1 {
			return 0, errors.New("epoch: flux selector " + strconv.Quote(suffix) + " reaches before the first epoch")
		}
		return uint32(wallSeconds), nil
	}
	n, err := strconv.ParseUint(suffix, 10, 32)
	if err != nil || n == 0 {
		return 0, errors.New("epoch: malformed flux selector " + strconv.Quote(suffix))
	}
	return uint32(n), nil
}

// WalkChain walks inode's version chain (through NextInode) via get,
// looking for the newest version whose EpochNumber is <= scopeEpoch. get is
// called only with a non-zero NextInode and must return that inode or an
// error. If no version is old enough, the last version in the chain is
// returned.
func WalkChain(head *inotab.Inode, scopeEpoch uint32, get func(number uint32) (*inotab.Inode, error)) (*inotab.Inode, error) {
	cur := head
	for {
		if cur.EpochNumber <= scopeEpoch {
			return cur, nil
		}
		if cur.NextInode == 0 {
			return cur, nil
		}
		next, err := get(cur.NextInode)
		if err != nil {
			return nil, err
		}
		cur = next
	}
}
