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

package dirhash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var versions = []Version{Legacy, HalfMD4, TEA}

func TestHashIsDeterministic(t *testing.T) {
	seed := Seed{1, 2, 3, 4}
	for _, v := range versions {
		h := New(v)
		assert.Equal(t, h.Hash("some-name", seed), h.Hash("some-name", seed), "version %d", v)
		assert.Equal(t, v, h.Version())
	}
}

func TestSeedChangesHash(t *testing.T) {
	for _, v := range versions {
		h := New(v)
		a := h.Hash("name", Seed{1, 2, 3, 4})
		b := h.Hash("name", Seed{5, 6, 7, 8})
		assert.NotEqual(t, a, b, "version %d ignored the seed", v)
	}
}

func TestHighBitIsClear(t *testing.T) {
	seed := Seed{9, 9, 9, 9}
	for _, v := range versions {
		h := New(v)
		for i := 0; i < 64; i++ {
			got := h.Hash(fmt.Sprintf("n-%04d", i), seed)
			require.Zero(t, got&0x80000000, "version %d produced a negative-range hash", v)
		}
	}
}

func TestReasonableSpread(t *testing.T) {
	seed := Seed{1, 2, 3, 4}
	for _, v := range versions {
		h := New(v)
		seen := map[uint32]bool{}
		for i := 0; i < 256; i++ {
			seen[h.Hash(fmt.Sprintf("file-%05d", i), seed)] = true
		}
		// Collisions are possible but wholesale clumping means the mix is
		// broken.
		assert.Greater(t, len(seen), 250, "version %d collides too much", v)
	}
}
