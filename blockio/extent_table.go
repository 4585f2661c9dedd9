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

package blockio

// ExtentTable exports the per-inode block placement so a volume manifest
// can persist it across process restarts. The real block allocator keeps
// this on disk itself; FileDevice leaves that to the caller.
func (d *FileDevice) ExtentTable() (extents map[uint64][]int64, nextOffset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	extents = make(map[uint64][]int64, len(d.extent))
	for ino, offs := range d.extent {
		extents[ino] = append([]int64(nil), offs...)
	}
	return extents, d.next
}

// RestoreExtentTable installs a previously exported placement, replacing
// whatever the device currently tracks.
func (d *FileDevice) RestoreExtentTable(extents map[uint64][]int64, nextOffset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.extent = make(map[uint64][]int64, len(extents))
	for ino, offs := range extents {
		d.extent[ino] = append([]int64(nil), offs...)
	}
	d.next = nextOffset
}
