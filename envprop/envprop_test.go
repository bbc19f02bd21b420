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

package envprop_test

import (
	"testing"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/envprop"
	"github.com/stretchr/testify/assert"
)

func TestEnsure_AddsPreloadWhenMissing(t *testing.T) {
	envp := []string{"PATH=/bin"}
	cfg := &domain.Config{FamPath: "/fam", ReportsPath: "/reports", RootPid: 42, DetoursPath: "/lib/detours.so"}

	out := envprop.Ensure(envp, "/lib/detours.so", cfg)

	assert.Contains(t, out, "LD_PRELOAD=/lib/detours.so")
	assert.Contains(t, out, "__BUILDXL_FAM_PATH=/fam")
	assert.Contains(t, out, "__BUILDXL_LOG_PATH=/reports")
	assert.Contains(t, out, "__BUILDXL_ROOT_PID=42")
	assert.Contains(t, out, "__BUILDXL_DETOURS_PATH=/lib/detours.so")
}

func TestEnsure_AppendsToExistingPreload(t *testing.T) {
	envp := []string{"LD_PRELOAD=/lib/other.so"}
	cfg := &domain.Config{}

	out := envprop.Ensure(envp, "/lib/detours.so", cfg)

	assert.Contains(t, out, "LD_PRELOAD=/lib/other.so:/lib/detours.so")
}

func TestEnsure_IdempotentWhenAlreadyPresent(t *testing.T) {
	envp := []string{"LD_PRELOAD=/lib/detours.so"}
	cfg := &domain.Config{}

	out := envprop.Ensure(envp, "/lib/detours.so", cfg)

	assert.Equal(t, []string{"LD_PRELOAD=/lib/detours.so"}, out)
}

func TestEnsure_NeverMutatesInput(t *testing.T) {
	envp := []string{"PATH=/bin"}
	cfg := &domain.Config{FamPath: "/fam"}

	_ = envprop.Ensure(envp, "/lib/detours.so", cfg)

	assert.Equal(t, []string{"PATH=/bin"}, envp)
}

func TestStrip_RemovesDetoursFromPreloadAndBlanksConfig(t *testing.T) {
	envp := []string{
		"LD_PRELOAD=/lib/other.so:/lib/detours.so",
		"__BUILDXL_FAM_PATH=/fam",
		"PATH=/bin",
	}

	out := envprop.Strip(envp, "/lib/detours.so")

	assert.Contains(t, out, "LD_PRELOAD=/lib/other.so")
	assert.Contains(t, out, "__BUILDXL_FAM_PATH=")
	assert.Contains(t, out, "PATH=/bin")
	assert.NotContains(t, out, "LD_PRELOAD=/lib/other.so:/lib/detours.so")
}

func TestStrip_RemovesPreloadVarEntirelyWhenNowEmpty(t *testing.T) {
	envp := []string{"LD_PRELOAD=/lib/detours.so"}

	out := envprop.Strip(envp, "/lib/detours.so")

	for _, e := range out {
		assert.NotContains(t, e, "LD_PRELOAD=")
	}
}
