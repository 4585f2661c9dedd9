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

//go:build !linux

package blockio

import "os"

// preadFull and pwriteFull fall back to os.File's ReadAt/WriteAt on
// non-Linux platforms, which are themselves pread/pwrite-backed.
func preadFull(f *os.File, buf []byte, off int64) error {
	_, err := f.ReadAt(buf, off)
	return err
}

func pwriteFull(f *os.File, buf []byte, off int64) error {
	_, err := f.WriteAt(buf, off)
	return err
}
