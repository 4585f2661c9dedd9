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

// Rationalize updates the config fields based on the values of other fields,
// run once after flags/YAML are merged and before ValidateConfig.
func Rationalize(c *Config) error {
	if c.Debug.LogMutex {
		c.Logging.Severity = TraceLogSeverity
	}

	if c.FileSystem.BlockSize == 0 {
		c.FileSystem.BlockSize = DefaultBlockSize
	}
	if c.FileSystem.ReadaheadBlocks == 0 {
		c.FileSystem.ReadaheadBlocks = DefaultReadaheadBlocks
	}
	if c.Versioning.FluxToken == 0 {
		c.Versioning.FluxToken = FluxToken(defaultFluxToken)
	}
	if c.Versioning.HashVersion == "" {
		c.Versioning.HashVersion = DefaultHashVersion
	}

	return nil
}
