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

// Package dirleaf implements a single blocksize-aligned page of
// variable-length versioned directory records: record packing, compaction,
// and duplicate-name-across-disjoint-epochs handling. It owns no knowledge
// of hashing or indexing; HashedDirIndex and LinearDir are both built on top
// of it.
package dirleaf

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed portion of every on-disk record: u32 inode,
// u16 rec_len, u8 name_len, u8 file_type, u32 birth_epoch, u32 death_epoch.
const HeaderSize = 16

// MaxNameLen is the largest name a single record can hold.
const MaxNameLen = 255

// Alive is the death_epoch sentinel meaning "not yet deleted".
const Alive = 0xFFFFFFFF

// FileType tags a record's inode kind, valid only when the volume carries
// the FILETYPE feature (see DESIGN.md's Open Question on this).
type FileType uint8

const (
	FTUnknown FileType = iota
	FTRegular
	FTDir
	FTChrdev
	FTBlkdev
	FTFifo
	FTSock
	FTSymlink
)

// Entry is the decoded form of one on-disk directory record.
type Entry struct {
	Inode      uint32
	RecLen     uint16
	NameLen    uint8
	FileType   FileType
	BirthEpoch uint32
	DeathEpoch uint32
	Name       string

	// Offset is this record's byte offset within its leaf. It is not part
	// of the on-disk encoding; Scan/walk fill it in for callers that need
	// to address a specific record (Tombstone, the htree split math).
	Offset int
}

// Free reports whether this record is a reusable free slot rather than a
// live or historically-dead entry.
func (e *Entry) Free() bool { return e.Inode == 0 }

// InScope reports whether the entry should be visible when resolving a
// lookup anchored at the given epoch: born at or before epoch, and either
// still alive or not yet dead as of epoch.
func (e *Entry) InScope(epoch uint32) bool {
	return e.BirthEpoch <= epoch && epoch < e.DeathEpoch
}

// align8 rounds n up to the next multiple of 8, matching the on-disk
// record alignment.
func align8(n int) int {
	return (n + 7) &^ 7
}

// minRecLen returns the minimal rec_len for a live record holding the given
// name.
func minRecLen(nameLen int) uint16 {
	return uint16(align8(HeaderSize + nameLen))
}

// MinRecLen is minRecLen for callers outside the package, such as the
// split-point math that balances leaves by record bytes.
func MinRecLen(nameLen int) uint16 {
	return minRecLen(nameLen)
}

// encode writes e into buf[e.Offset:], which must have at least
// int(e.RecLen) bytes remaining.
func (e *Entry) encode(buf []byte) error {
	if int(e.RecLen) < HeaderSize+len(e.Name) {
		return fmt.Errorf("dirleaf: rec_len %d too small for name %q", e.RecLen, e.Name)
	}
	b := buf[e.Offset:]
	binary.LittleEndian.PutUint32(b[0:4], e.Inode)
	binary.LittleEndian.PutUint16(b[4:6], e.RecLen)
	b[6] = e.NameLen
	b[7] = byte(e.FileType)
	binary.LittleEndian.PutUint32(b[8:12], e.BirthEpoch)
	binary.LittleEndian.PutUint32(b[12:16], e.DeathEpoch)
	copy(b[HeaderSize:HeaderSize+len(e.Name)], e.Name)
	return nil
}

// decodeAt reads one record from buf at the given offset.
func decodeAt(buf []byte, offset int) (*Entry, error) {
	if offset+HeaderSize > len(buf) {
		return nil, fmt.Errorf("dirleaf: record header at %d exceeds block", offset)
	}
	b := buf[offset:]
	recLen := binary.LittleEndian.Uint16(b[4:6])
	if recLen < HeaderSize {
		return nil, fmt.Errorf("dirleaf: malformed rec_len %d at offset %d", recLen, offset)
	}
	if offset+int(recLen) > len(buf) {
		return nil, fmt.Errorf("dirleaf: record at %d overruns block (rec_len %d)", offset, recLen)
	}
	nameLen := b[6]
	if int(nameLen) > MaxNameLen {
		return nil, fmt.Errorf("dirleaf: name_len %d exceeds max", nameLen)
	}
	if HeaderSize+int(nameLen) > int(recLen) {
		return nil, fmt.Errorf("dirleaf: name_len %d does not fit rec_len %d", nameLen, recLen)
	}
	name := string(b[HeaderSize : HeaderSize+int(nameLen)])

	return &Entry{
		Inode:      binary.LittleEndian.Uint32(b[0:4]),
		RecLen:     recLen,
		NameLen:    nameLen,
		FileType:   FileType(b[7]),
		BirthEpoch: binary.LittleEndian.Uint32(b[8:12]),
		DeathEpoch: binary.LittleEndian.Uint32(b[12:16]),
		Name:       name,
		Offset:     offset,
	}, nil
}
