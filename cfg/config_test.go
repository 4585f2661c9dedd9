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

package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOctalUnmarshal(t *testing.T) {
	var o Octal
	require.NoError(t, o.UnmarshalText([]byte("755")))
	assert.EqualValues(t, 0o755, o)
	assert.Equal(t, "755", o.String())

	assert.Error(t, o.UnmarshalText([]byte("9x9")))
}

func TestLogSeverityRankingAndUnmarshal(t *testing.T) {
	var s LogSeverity
	require.NoError(t, s.UnmarshalText([]byte("warning")))
	assert.Equal(t, WarningLogSeverity, s)
	assert.Less(t, DebugLogSeverity.Rank(), ErrorLogSeverity.Rank())

	assert.Error(t, s.UnmarshalText([]byte("shouty")))
}

func TestFluxTokenUnmarshal(t *testing.T) {
	var f FluxToken
	require.NoError(t, f.UnmarshalText([]byte("@")))
	assert.EqualValues(t, '@', f)
	assert.Equal(t, "@", f.String())

	assert.Error(t, f.UnmarshalText([]byte("@@")))
	assert.Error(t, f.UnmarshalText([]byte("")))
}

func TestHashVersionUnmarshal(t *testing.T) {
	var h HashVersion
	require.NoError(t, h.UnmarshalText([]byte("TEA")))
	assert.Equal(t, HashTEA, h)
	assert.Error(t, h.UnmarshalText([]byte("sha999")))
}

func TestBlockSizeValidity(t *testing.T) {
	assert.True(t, BlockSize(1024).IsValid())
	assert.True(t, BlockSize(4096).IsValid())
	assert.True(t, BlockSize(65536).IsValid())
	assert.False(t, BlockSize(512).IsValid())
	assert.False(t, BlockSize(3000).IsValid())
	assert.False(t, BlockSize(131072).IsValid())
}

func TestRationalizeFillsDefaults(t *testing.T) {
	c := &Config{}
	require.NoError(t, Rationalize(c))

	assert.Equal(t, DefaultBlockSize, c.FileSystem.BlockSize)
	assert.Equal(t, DefaultReadaheadBlocks, c.FileSystem.ReadaheadBlocks)
	assert.EqualValues(t, '@', c.Versioning.FluxToken)
	assert.Equal(t, DefaultHashVersion, c.Versioning.HashVersion)
}

func TestValidateConfigRejectsBadGeometry(t *testing.T) {
	c := &Config{
		FileSystem: FileSystemConfig{BlockSize: 4096, ReadaheadBlocks: 4},
		Logging:    GetDefaultLoggingConfig(),
	}
	require.NoError(t, ValidateConfig(c))

	c.FileSystem.BlockSize = 1000
	assert.Error(t, ValidateConfig(c))

	c.FileSystem.BlockSize = 4096
	c.FileSystem.ReadaheadBlocks = 0
	assert.Error(t, ValidateConfig(c))

	c.FileSystem.ReadaheadBlocks = 4
	c.Logging.LogRotate.MaxFileSizeMb = 0
	assert.Error(t, ValidateConfig(c))
}
