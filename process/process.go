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

package process

import (
	"sync"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
)

type processService struct{}

func NewProcessService() domain.ProcessServiceIface {
	return &processService{}
}

func (ps *processService) ProcessCreate(pid uint32, ppid uint32) domain.ProcessIface {
	return &process{
		pid:  pid,
		ppid: ppid,
	}
}

type process struct {
	mu       sync.RWMutex
	pid      uint32
	ppid     uint32
	execPath string
}

func (p *process) Pid() uint32 {
	return p.pid
}

func (p *process) Ppid() uint32 {
	return p.ppid
}

func (p *process) ExecPath() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.execPath
}

func (p *process) SetExecPath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.execPath = path
}
