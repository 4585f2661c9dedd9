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

//go:build linux

package blockio

import (
	"os"

	"golang.org/x/sys/unix"
)

// preadFull and pwriteFull use the raw pread(2)/pwrite(2) syscalls on Linux
// so concurrent readers of a FileDevice never contend on the file's shared
// offset, the way a real buffer cache's block reads would not.
func preadFull(f *os.File, buf []byte, off int64) error {
	for len(buf) > 0 {
		n, err := unix.Pread(int(f.Fd()), buf, off)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}

func pwriteFull(f *os.File, buf []byte, off int64) error {
	for len(buf) > 0 {
		n, err := unix.Pwrite(int(f.Fd()), buf, off)
		if err != nil {
			return err
		}
		buf = buf[n:]
		off += int64(n)
	}
	return nil
}
