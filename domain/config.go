//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package domain

import "os"

// Environment variable names the observer reads its configuration from.
// Names match the wire contract the rest of the build tree (the
// orchestrator, the interposition shims) already expects.
const (
	EnvFamPath     = "__BUILDXL_FAM_PATH"
	EnvLogPath     = "__BUILDXL_LOG_PATH"
	EnvRootPid     = "__BUILDXL_ROOT_PID"
	EnvDetoursPath = "__BUILDXL_DETOURS_PATH"

	// EnvPreload is the preload-mechanism env var the Environment
	// Propagator manages (LD_PRELOAD on Linux/glibc).
	EnvPreload = "LD_PRELOAD"

	// EnvLegacyStatFallthrough opts into Config.LegacyStatFallthrough; any
	// non-empty value turns it on.
	EnvLegacyStatFallthrough = "__BUILDXL_LEGACY_STAT_FALLTHROUGH"
)

// Config holds the observer's process-wide, immutable-after-init settings.
// It is sourced once from the environment by the Singleton Lifecycle.
type Config struct {
	// FamPath is the absolute path to the FAM policy file. Empty means the
	// observer degrades to a no-op.
	FamPath string

	// ReportsPath is the absolute path of the report pipe/FIFO. Empty means
	// reports cannot be sent (no-op degrade, same as above).
	ReportsPath string

	// RootPid is the pid of the root-of-subtree process, or 0 if unset.
	RootPid uint32

	// DetoursPath is the absolute path of the interposition library to
	// propagate via EnvPreload on exec*/posix_spawn*.
	DetoursPath string

	// LegacyStatFallthrough reproduces the original C++ source's missing
	// `break` after the STAT-coalescing case. Off by default; see
	// DESIGN.md for the rationale.
	LegacyStatFallthrough bool
}

// LoadConfig reads the observer's configuration from the process
// environment. It never fails: an absent FAM or reports path simply leaves
// the corresponding field empty, and callers degrade to a no-op.
func LoadConfig() *Config {
	rootPid := uint32(0)
	if s := os.Getenv(EnvRootPid); s != "" {
		rootPid = parseUint32(s)
	}

	return &Config{
		FamPath:               os.Getenv(EnvFamPath),
		ReportsPath:           os.Getenv(EnvLogPath),
		RootPid:               rootPid,
		DetoursPath:           os.Getenv(EnvDetoursPath),
		LegacyStatFallthrough: os.Getenv(EnvLegacyStatFallthrough) != "",
	}
}

// parseUint32 is a tolerant decimal parser: a malformed __BUILDXL_ROOT_PID
// is not a reason to abort the observed program, so on error this simply
// returns 0.
func parseUint32(s string) uint32 {
	var n uint32
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + uint32(c-'0')
	}
	return n
}
