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

// PolicyEngineIface is the consumed surface of the FAM binary-format parser
// and the policy-evaluation engine (IOHandler/Sandbox). Both are external
// collaborators, interfaced but not implemented here; this repository only
// depends on this interface, never on a concrete parser.
//
// Package `policy` ships one concrete, intentionally simplified
// implementation used for tests and for the cmd/bxltrace harness.
type PolicyEngineIface interface {
	// TrackRootProcess registers pid as the root of the monitored subtree.
	// Returns false if the engine could not register it.
	TrackRootProcess(pid uint32) bool

	// FindTrackedProcess looks up a previously tracked process, returning
	// (nil, false) if pid is not tracked.
	FindTrackedProcess(pid uint32) (ProcessIface, bool)

	// SetAccessReportCallback installs the callback invoked whenever the
	// engine decides an access should be reported.
	SetAccessReportCallback(cb AccessReportCallback)

	// HandleEvent evaluates a single IOEvent against the loaded FAM and
	// returns the resulting AccessCheckResult.
	HandleEvent(event IOEvent) AccessCheckResult
}

// AccessReportCallback is invoked by the policy engine for every access it
// decides is reportable; the Singleton Lifecycle wires this to the Report
// Framer and Sender.
type AccessReportCallback func(report AccessReport)

// AccessReport is the payload the policy engine hands back to the
// observer's report callback, matching the fields an Access Report Record
// is built from.
type AccessReport struct {
	Pid              uint32
	RequestedAccess  uint32
	Status           int
	ReportExplicitly bool
	Errno            int
	Operation        EventKind
	Path             string
}

// NewPolicyEngineFunc constructs a PolicyEngineIface from the raw FAM file
// contents: (pid, buffer, length) in the original ABI.
type NewPolicyEngineFunc func(pid uint32, famContents []byte) (PolicyEngineIface, error)
