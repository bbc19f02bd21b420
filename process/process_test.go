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

package process_test

import (
	"testing"

	"github.com/buildxl-oss/linux-sandbox-observer/process"
	"github.com/stretchr/testify/assert"
)

func TestProcessCreate(t *testing.T) {
	ps := process.NewProcessService()

	p := ps.ProcessCreate(1234, 1)

	assert.Equal(t, uint32(1234), p.Pid())
	assert.Equal(t, uint32(1), p.Ppid())
	assert.Equal(t, "", p.ExecPath())
}

func TestProcessSetExecPath(t *testing.T) {
	ps := process.NewProcessService()

	p := ps.ProcessCreate(1234, 1)
	p.SetExecPath("/usr/bin/gcc")

	assert.Equal(t, "/usr/bin/gcc", p.ExecPath())
}

func TestProcessCreate_DistinctInstances(t *testing.T) {
	ps := process.NewProcessService()

	p1 := ps.ProcessCreate(10, 1)
	p2 := ps.ProcessCreate(20, 10)

	assert.Equal(t, uint32(10), p1.Pid())
	assert.Equal(t, uint32(20), p2.Pid())
	assert.Equal(t, uint32(10), p2.Ppid())
}
