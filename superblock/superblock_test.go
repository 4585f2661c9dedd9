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

package superblock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fluxfs/fluxdir/dirhash"
)

func TestEpochStartsAtOneAndAdvances(t *testing.T) {
	sb := New(4096, dirhash.HalfMD4, dirhash.Seed{})

	assert.EqualValues(t, 1, sb.SystemEpoch())
	assert.EqualValues(t, 2, sb.AdvanceEpoch())
	assert.EqualValues(t, 3, sb.AdvanceEpoch())
	assert.EqualValues(t, 3, sb.SystemEpoch())
}

func TestRestoreEpochNeverMovesBackwards(t *testing.T) {
	sb := New(4096, dirhash.TEA, dirhash.Seed{})

	sb.RestoreEpoch(17)
	assert.EqualValues(t, 17, sb.SystemEpoch())

	sb.RestoreEpoch(5)
	assert.EqualValues(t, 17, sb.SystemEpoch())
}

func TestOpenRequiresFiletypeFeature(t *testing.T) {
	sb := New(4096, dirhash.Legacy, dirhash.Seed{})
	assert.NoError(t, Open(sb.Features))
	assert.Error(t, Open(0))
}
