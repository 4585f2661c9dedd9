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
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Octal is the datatype for params such as root-mode which accept a base-8
// value.
type Octal int

func (o *Octal) UnmarshalText(text []byte) error {
	v, err := strconv.ParseInt(string(text) /*base=*/, 8 /*bitSize=*/, 32)
	if err != nil {
		return err
	}
	*o = Octal(v)
	return nil
}

func (o *Octal) String() string {
	return fmt.Sprintf("%o", *o)
}

// HashVersion names one of the three dirhash families a volume's RootInfo
// header may record.
type HashVersion string

const (
	HashLegacy  HashVersion = "legacy"
	HashHalfMD4 HashVersion = "half-md4"
	HashTEA     HashVersion = "tea"
)

func (h *HashVersion) UnmarshalText(text []byte) error {
	v := HashVersion(strings.ToLower(string(text)))
	allowed := []HashVersion{HashLegacy, HashHalfMD4, HashTEA}
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("invalid hash-version value: %s. It can only accept values in the list: %v", text, allowed)
	}
	*h = v
	return nil
}

// LogSeverity represents the logging severity and can accept the following
// values: "TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF".
type LogSeverity string

const (
	TraceLogSeverity   LogSeverity = "TRACE"
	DebugLogSeverity   LogSeverity = "DEBUG"
	InfoLogSeverity    LogSeverity = "INFO"
	WarningLogSeverity LogSeverity = "WARNING"
	ErrorLogSeverity   LogSeverity = "ERROR"
	OffLogSeverity     LogSeverity = "OFF"
)

var severityRanking = map[LogSeverity]int{
	TraceLogSeverity:   0,
	DebugLogSeverity:   1,
	InfoLogSeverity:    2,
	WarningLogSeverity: 3,
	ErrorLogSeverity:   4,
	OffLogSeverity:     5,
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	level := LogSeverity(strings.ToUpper(string(text)))
	if _, ok := severityRanking[level]; !ok {
		return fmt.Errorf("invalid log severity level: %s. Must be one of [TRACE, DEBUG, INFO, WARNING, ERROR, OFF]", text)
	}
	*l = level
	return nil
}

// Rank returns the integer representation of the severity rank, or -1 if
// unknown.
func (l LogSeverity) Rank() int {
	if rank, ok := severityRanking[l]; ok {
		return rank
	}
	return -1
}

// FluxToken is the single reserved ASCII byte separating a base name from
// an epoch selector, configured at build/mkfs time.
type FluxToken byte

const defaultFluxToken = '@'

func (f *FluxToken) UnmarshalText(text []byte) error {
	if len(text) != 1 {
		return fmt.Errorf("invalid flux-token value %q: must be exactly one byte", text)
	}
	*f = FluxToken(text[0])
	return nil
}

func (f FluxToken) String() string {
	return string([]byte{byte(f)})
}
