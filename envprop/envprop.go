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

// Package envprop rewrites a child process' environment ahead of
// exec*/posix_spawn*, either ensuring the observer stays wired into the
// child (LD_PRELOAD plus the four configuration variables) or stripping
// itself out entirely. It never mutates the caller's original slice: a
// call that changes anything returns a freshly built one, and a call with
// nothing to change returns the input slice as is.
package envprop

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
)

// configVars is the set of env vars ensured/stripped alongside LD_PRELOAD.
var configVars = []string{
	domain.EnvFamPath,
	domain.EnvLogPath,
	domain.EnvRootPid,
	domain.EnvDetoursPath,
}

func split(entry string) (key, value string, ok bool) {
	i := strings.IndexByte(entry, '=')
	if i < 0 {
		return "", "", false
	}
	return entry[:i], entry[i+1:], true
}

func find(envp []string, key string) (value string, index int) {
	for i, e := range envp {
		k, v, ok := split(e)
		if ok && k == key {
			return v, i
		}
	}
	return "", -1
}

// set returns a copy of envp with key set to value, replacing any
// existing entry or appending a new one.
func set(envp []string, key, value string) []string {
	out := make([]string, len(envp))
	copy(out, envp)

	_, idx := find(out, key)
	entry := key + "=" + value
	if idx >= 0 {
		out[idx] = entry
	} else {
		out = append(out, entry)
	}
	return out
}

// unset returns a copy of envp with key removed entirely.
func unset(envp []string, key string) []string {
	out := make([]string, 0, len(envp))
	for _, e := range envp {
		k, _, ok := split(e)
		if ok && k == key {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ensurePreloadContains returns a copy of envp whose LD_PRELOAD entry
// includes libPath, appending it (colon-separated) if it isn't already
// present. Logs when it actually had to modify the entry.
func ensurePreloadContains(envp []string, libPath string) []string {
	current, _ := find(envp, domain.EnvPreload)

	for _, p := range strings.Split(current, ":") {
		if p == libPath {
			return envp
		}
	}

	newValue := libPath
	if current != "" {
		newValue = current + ":" + libPath
	}

	logrus.Debugf("envp has been modified with %s added to %s", libPath, domain.EnvPreload)

	return set(envp, domain.EnvPreload, newValue)
}

// removePreloadEntry returns a copy of envp with libPath removed from
// LD_PRELOAD, dropping the variable entirely if nothing else remains.
func removePreloadEntry(envp []string, libPath string) []string {
	current, idx := find(envp, domain.EnvPreload)
	if idx < 0 {
		return envp
	}

	var kept []string
	for _, p := range strings.Split(current, ":") {
		if p != "" && p != libPath {
			kept = append(kept, p)
		}
	}

	if len(kept) == 0 {
		return unset(envp, domain.EnvPreload)
	}
	return set(envp, domain.EnvPreload, strings.Join(kept, ":"))
}

// ensureConfigValue copies the current process' own value for envName
// into envp, logging the change, unless that value is empty.
func ensureConfigValue(envp []string, envName, currentValue string) []string {
	if currentValue == "" {
		return envp
	}

	existing, _ := find(envp, envName)
	if existing == currentValue {
		return envp
	}

	logrus.Debugf("envp has been modified with %s added to %s", currentValue, envName)

	return set(envp, envName, currentValue)
}

// Ensure rewrites envp for a monitored child: LD_PRELOAD is made to
// include detoursLibPath, and the four configuration variables are
// propagated from cfg.
func Ensure(envp []string, detoursLibPath string, cfg *domain.Config) []string {
	out := ensurePreloadContains(envp, detoursLibPath)

	out = ensureConfigValue(out, domain.EnvFamPath, cfg.FamPath)
	out = ensureConfigValue(out, domain.EnvLogPath, cfg.ReportsPath)
	out = ensureConfigValue(out, domain.EnvDetoursPath, cfg.DetoursPath)
	if cfg.RootPid != 0 {
		out = ensureConfigValue(out, domain.EnvRootPid, strconv.FormatUint(uint64(cfg.RootPid), 10))
	}

	return out
}

// Strip rewrites envp for an escaping child: detoursLibPath is removed
// from LD_PRELOAD and all four configuration variables are blanked out,
// so the child (and its descendants) are no longer observed.
func Strip(envp []string, detoursLibPath string) []string {
	out := removePreloadEntry(envp, detoursLibPath)

	for _, v := range configVars {
		out = set(out, v, "")
	}

	return out
}
