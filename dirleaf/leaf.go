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

package dirleaf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrNoSpace is returned by Insert when no free slot or reusable slack is
// large enough for the new record.
var ErrNoSpace = errors.New("dirleaf: no space in leaf")

// ErrNotFound is returned when a named, in-scope entry does not exist.
var ErrNotFound = errors.New("dirleaf: entry not found")

// Leaf is a single directory block: blocksize bytes of packed records. It
// never allocates or frees blocks itself; callers own the buffer's
// lifetime (typically a blockio.Buffer's Bytes()).
type Leaf struct {
	buf []byte
}

// New wraps an existing, possibly freshly-zeroed, blocksize buffer as a
// Leaf. A zeroed buffer decodes as one giant free record spanning the
// whole block once Init is called.
func New(buf []byte) *Leaf {
	return &Leaf{buf: buf}
}

// Init formats an empty leaf as a single free record spanning the entire
// block, the state a freshly allocated leaf block starts in.
func (l *Leaf) Init() {
	for i := range l.buf {
		l.buf[i] = 0
	}
	e := &Entry{RecLen: uint16(len(l.buf)), DeathEpoch: Alive, Offset: 0}
	_ = e.encode(l.buf)
}

// Bytes returns the leaf's backing buffer.
func (l *Leaf) Bytes() []byte { return l.buf }

// walk calls fn for every record in the leaf, head to tail, stopping early
// if fn returns false. It returns an error if any record is malformed.
func (l *Leaf) walk(fn func(*Entry) bool) error {
	off := 0
	for off < len(l.buf) {
		e, err := decodeAt(l.buf, off)
		if err != nil {
			return err
		}
		if !fn(e) {
			return nil
		}
		off += int(e.RecLen)
	}
	return nil
}

// WalkLive calls fn for every non-free record in the leaf (including
// historically-dead ones still retained for past scopes), head to tail,
// stopping at the first error fn returns.
func (l *Leaf) WalkLive(fn func(*Entry) error) error {
	var walkErr error
	err := l.walk(func(e *Entry) bool {
		if e.Free() {
			return true
		}
		if err := fn(e); err != nil {
			walkErr = err
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return walkErr
}

// Scan walks records left to right and returns the first entry whose name
// matches and which is in scope for epoch. Duplicate names may legitimately
// coexist across disjoint epoch ranges, so the scan never short-circuits on
// a bare name match.
func (l *Leaf) Scan(name string, epoch uint32) (*Entry, error) {
	var found *Entry
	err := l.walk(func(e *Entry) bool {
		if e.Free() {
			return true
		}
		if e.Name == name && e.InScope(epoch) {
			found = e
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// Insert writes a new live record for name, preferring a free slot or
// reusable slack after the tail of a live record's minimal size. It fails
// with ErrNoSpace if nothing in the leaf fits.
func (l *Leaf) Insert(name string, ino uint32, ft FileType, birthEpoch uint32) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return fmt.Errorf("dirleaf: invalid name length %d", len(name))
	}
	wanted := minRecLen(len(name))

	off := 0
	for off < len(l.buf) {
		e, err := decodeAt(l.buf, off)
		if err != nil {
			return err
		}

		if e.Free() {
			if e.RecLen >= wanted {
				return l.writeNewAt(off, e.RecLen, name, ino, ft, birthEpoch)
			}
			off += int(e.RecLen)
			continue
		}

		used := minRecLen(len(e.Name))
		slack := e.RecLen - used
		if slack >= wanted {
			// Shrink the live record to its minimal size and carve the new
			// entry out of the freed slack.
			e.RecLen = used
			if err := e.encode(l.buf); err != nil {
				return err
			}
			return l.writeNewAt(off+int(used), slack, name, ino, ft, birthEpoch)
		}
		off += int(e.RecLen)
	}
	return ErrNoSpace
}

// InsertRaw writes a fully-specified entry (including a historical
// birth/death epoch pair), used when migrating records between leaves
// during an htree split where a record's tombstone state must survive the
// move verbatim rather than being reset to Alive.
func (l *Leaf) InsertRaw(e *Entry) error {
	wanted := minRecLen(len(e.Name))

	off := 0
	for off < len(l.buf) {
		cur, err := decodeAt(l.buf, off)
		if err != nil {
			return err
		}
		if cur.Free() && cur.RecLen >= wanted {
			e.RecLen = cur.RecLen
			e.Offset = off
			if rest := cur.RecLen - wanted; rest >= HeaderSize {
				// Take only the minimal size and leave the remainder as a
				// free record, so the next migrated record still fits.
				e.RecLen = wanted
				if err := e.encode(l.buf); err != nil {
					return err
				}
				free := &Entry{RecLen: rest, DeathEpoch: Alive, Offset: off + int(wanted)}
				return free.encode(l.buf)
			}
			return e.encode(l.buf)
		}
		off += int(cur.RecLen)
	}
	return ErrNoSpace
}

// writeNewAt installs a fresh live record for name at offset, spanning
// exactly avail bytes.
func (l *Leaf) writeNewAt(offset int, avail uint16, name string, ino uint32, ft FileType, birthEpoch uint32) error {
	e := &Entry{
		Inode:      ino,
		RecLen:     avail,
		NameLen:    uint8(len(name)),
		FileType:   ft,
		BirthEpoch: birthEpoch,
		DeathEpoch: Alive,
		Name:       name,
		Offset:     offset,
	}
	return e.encode(l.buf)
}

// SetInode rewrites entry's inode number in place. Used when ".." must be
// repointed at a new parent on a cross-directory rename; nothing else in a
// record ever changes after insertion besides death_epoch.
func (l *Leaf) SetInode(e *Entry, ino uint32) error {
	e.Inode = ino
	return e.encode(l.buf)
}

// Tombstone sets entry's death_epoch, logically deleting it. If the entry
// was born and died within the same epoch and has a physical predecessor,
// its space is folded into that predecessor (classic ext-style coalesce)
// and its inode field is zeroed; otherwise the record is left physically
// intact so older scopes still observe it.
func (l *Leaf) Tombstone(entry *Entry, curEpoch uint32) error {
	entry.DeathEpoch = curEpoch

	predOffset, predLen, hasPred := l.predecessorOf(entry.Offset)
	if hasPred && entry.BirthEpoch == curEpoch {
		// Fold directly: the predecessor's rec_len absorbs this record's
		// entire span, and this record never existed in any epoch that
		// matters.
		newLen := predLen + entry.RecLen
		binary.LittleEndian.PutUint16(l.buf[predOffset+4:predOffset+6], newLen)
		entry.Inode = 0
		return nil
	}

	return entry.encode(l.buf)
}

// predecessorOf returns the offset and rec_len of the record immediately
// preceding the one at offset, or ok=false if offset is the first record.
func (l *Leaf) predecessorOf(offset int) (predOffset int, predLen uint16, ok bool) {
	off := 0
	for off < offset {
		e, err := decodeAt(l.buf, off)
		if err != nil {
			return 0, 0, false
		}
		if off+int(e.RecLen) == offset {
			return off, e.RecLen, true
		}
		off += int(e.RecLen)
	}
	return 0, 0, false
}

// Pack compacts every occupied record (including historically-dead ones,
// which must be retained for past scopes to observe) down to its minimal
// rec_len, sliding them toward the head of the block and dropping pure free
// slots. The final retained record absorbs the remaining tail as slack. It
// returns the last live record, for the split math in the htree package.
func (l *Leaf) Pack() (*Entry, error) {
	var occupied []*Entry
	err := l.walk(func(e *Entry) bool {
		if !e.Free() {
			occupied = append(occupied, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	// Re-lay occupied records head to tail at minimal size.
	off := 0
	for _, e := range occupied {
		e.RecLen = minRecLen(len(e.Name))
		e.Offset = off
		off += int(e.RecLen)
	}

	if len(occupied) == 0 {
		l.Init()
		return nil, nil
	}

	last := occupied[len(occupied)-1]
	last.RecLen += uint16(len(l.buf) - off)

	for i := range l.buf {
		l.buf[i] = 0
	}
	for _, e := range occupied {
		if err := e.encode(l.buf); err != nil {
			return nil, err
		}
	}
	return last, nil
}

// BuildMap returns every occupied entry in the leaf sorted by the given
// hash function, ascending, with ties broken by on-disk offset for
// determinism. This is the transient hash map built while deciding a split
// point.
func (l *Leaf) BuildMap(hash func(name string) uint32) ([]*Entry, error) {
	var occupied []*Entry
	err := l.walk(func(e *Entry) bool {
		if !e.Free() {
			occupied = append(occupied, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	hashes := make(map[*Entry]uint32, len(occupied))
	for _, e := range occupied {
		hashes[e] = hash(e.Name)
	}

	sort.SliceStable(occupied, func(i, j int) bool {
		return hashes[occupied[i]] < hashes[occupied[j]]
	})
	return occupied, nil
}
