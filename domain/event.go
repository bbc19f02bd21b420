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

const (
	SymlinkMax = 40 // matches Linux's MAXSYMLINKS
	PathMax    = 4096
	PipeBuf    = 4096 // PIPE_BUF on Linux
	MaxFd      = 1024 // fd-table capacity (platform-dependent)
)

// AccessMode mirrors the open(2)/access(2) R_OK/W_OK/X_OK bitmask.
type AccessMode uint32

const (
	R_OK AccessMode = 0x4
	W_OK AccessMode = 0x2
	X_OK AccessMode = 0x1
)

// EventKind is the tagged enumeration of syscall-observations the router
// hands to the policy engine. It is kept wire-compatible with the policy
// engine's own enumeration.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventOpenRead
	EventOpenWrite
	EventProbe // stat/access/getattr family
	EventReadlink
	EventWrite // truncate/chmod/chown/xattr/utimes/... family
	EventCreate
	EventUnlink
	EventRename
	EventLink
	EventExec
	EventFork
	EventExit
	EventOther
)

func (k EventKind) String() string {
	switch k {
	case EventOpenRead:
		return "OPEN_READ"
	case EventOpenWrite:
		return "OPEN_WRITE"
	case EventProbe:
		return "PROBE"
	case EventReadlink:
		return "READLINK"
	case EventWrite:
		return "WRITE"
	case EventCreate:
		return "CREATE"
	case EventUnlink:
		return "UNLINK"
	case EventRename:
		return "RENAME"
	case EventLink:
		return "LINK"
	case EventExec:
		return "EXEC"
	case EventFork:
		return "FORK"
	case EventExit:
		return "EXIT"
	case EventOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// CoalescedEventKind is the dedup-cache-only projection of EventKind.
// Every mutating-metadata kind collapses onto CoalescedWrite, every
// non-mutating probe onto CoalescedStat, everything else maps onto itself.
type CoalescedEventKind int

const (
	CoalescedUnknown CoalescedEventKind = iota
	CoalescedOpenRead
	CoalescedOpenWrite
	CoalescedStat
	CoalescedReadlink
	CoalescedWrite
	CoalescedCreate
	CoalescedUnlink
	CoalescedRename
	CoalescedLink
	CoalescedOther
)

// Coalesce projects an EventKind onto its dedup-cache key. When
// legacyStatFallthrough is true it reproduces the original C++ source's
// missing `break` after the STAT case: the switch falls through into
// `default`, so EventProbe is keyed under CoalescedOther instead of
// CoalescedStat.
func Coalesce(kind EventKind, legacyStatFallthrough bool) CoalescedEventKind {
	if kind == EventProbe && !legacyStatFallthrough {
		return CoalescedStat
	}

	switch kind {
	case EventWrite:
		return CoalescedWrite
	case EventCreate:
		return CoalescedCreate
	case EventOpenRead:
		return CoalescedOpenRead
	case EventOpenWrite:
		return CoalescedOpenWrite
	case EventReadlink:
		return CoalescedReadlink
	case EventUnlink:
		return CoalescedUnlink
	case EventRename:
		return CoalescedRename
	case EventLink:
		return CoalescedLink
	default:
		// EventProbe falls in here when legacyStatFallthrough reproduces
		// the original's missing `break` (EventProbe isn't one of the
		// named cases above). The key that would have been CoalescedStat
		// ends up CoalescedOther, the bucket shared with EventOther and
		// every other unlisted kind: a repeated probe of the same path is
		// still a dedup hit, and so is a probe of a path already recorded
		// under another CoalescedOther kind.
		return CoalescedOther
	}
}

// Cacheable reports whether an event of this kind may ever be looked up in
// the dedup cache. Forks, execs, exits, and any event carrying a second
// path are never cacheable.
func Cacheable(kind EventKind, secondPath string) bool {
	if secondPath != "" {
		return false
	}
	switch kind {
	case EventFork, EventExec, EventExit:
		return false
	}
	return true
}

// IOEvent is the policy-engine input constructed by the router for every
// dispatched access.
type IOEvent struct {
	Pid         uint32
	Ppid        uint32
	Kind        EventKind
	SrcPath     string
	DstPath     string
	ExecPath    string
	Mode        uint32
	IsDirectory bool
}

// AccessCheckResult is the policy engine's verdict for one IOEvent.
type AccessCheckResult struct {
	Checked          bool // false means "not checked" (disposed/disabled/cache-hit)
	ShouldReport     bool
	ShouldDenyAccess bool
}

// NotChecked is returned whenever the router skips policy consultation
// (disposed observer, disabled observer, or a dedup-cache hit).
var NotChecked = AccessCheckResult{Checked: false}
