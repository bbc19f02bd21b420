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

// ProcessIface represents a tracked process: pid, parent pid, and the
// main-executable's absolute path. It is intentionally narrow. This
// observer does not emulate namespaces or evaluate POSIX permission bits;
// that is the policy engine's job, not the core's.
type ProcessIface interface {
	Pid() uint32
	Ppid() uint32
	ExecPath() string
	SetExecPath(path string)
}

// ProcessServiceIface constructs TrackedProcess instances, mirroring the
// policy engine's own TrackRootProcess/FindTrackedProcess surface closely
// enough that the Singleton Lifecycle can hand the same process record to
// both.
type ProcessServiceIface interface {
	ProcessCreate(pid uint32, ppid uint32) ProcessIface
}
