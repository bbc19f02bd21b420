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

// Package router dispatches observed filesystem accesses to the policy
// engine and, when the engine says to, to the report sender. It is the
// single place where the dedup cache, the canonicalizer and the fd cache
// come together around one syscall observation.
package router

import (
	"github.com/sirupsen/logrus"

	"github.com/buildxl-oss/linux-sandbox-observer/canon"
	"github.com/buildxl-oss/linux-sandbox-observer/dedup"
	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/fdcache"
	"github.com/buildxl-oss/linux-sandbox-observer/report"
)

// Router ties together the pieces needed to turn a syscall observation
// into a policy decision and, possibly, an access report.
type Router struct {
	Policy   domain.PolicyEngineIface
	Dedup    *dedup.Cache
	FdCache  *fdcache.Cache
	Resolver *canon.Resolver
	Sender   *report.Sender

	// MonitorChildren gates exec reporting: when false, ReportExec is a
	// no-op, mirroring IsMonitoringChildProcesses() in the original.
	MonitorChildren func() bool

	Enabled  func() bool
	Disposed func() bool

	// LegacyStatFallthrough selects the dedup-coalescing behavior for
	// EventProbe (see domain.Coalesce). Nil is treated as false.
	LegacyStatFallthrough func() bool

	// FailUnexpectedAccesses, when set and returning true, adds a
	// "[Blocked]" suffix to the debug log line for denied accesses to
	// signal that the observed program's syscall will actually be made
	// to fail (as opposed to being denied only for reporting purposes).
	FailUnexpectedAccesses func() bool

	Pid  func() uint32
	Ppid func() uint32
}

// ReportAccess dispatches a single-path access: the common case for
// open/stat/unlink/readlink-family syscalls already carrying an absolute,
// canonical path.
func (r *Router) ReportAccess(syscallName string, kind domain.EventKind, path, secondPath string) domain.AccessCheckResult {
	if r.Disposed() || !r.Enabled() {
		return domain.NotChecked
	}

	if domain.Cacheable(kind, secondPath) {
		legacyStatFallthrough := r.LegacyStatFallthrough != nil && r.LegacyStatFallthrough()
		coalesced := domain.Coalesce(kind, legacyStatFallthrough)
		if hit, ok := r.Dedup.CheckAndAdd(coalesced, path); ok && hit {
			return domain.NotChecked
		}
	}

	event := domain.IOEvent{
		Pid:     r.Pid(),
		Ppid:    r.Ppid(),
		Kind:    kind,
		SrcPath: path,
		DstPath: secondPath,
	}

	result := r.Policy.HandleEvent(event)

	r.logDecision(syscallName, kind, path, result)

	return result
}

// ReportAccessFd dispatches an access identified only by a file
// descriptor: it is resolved to a path via the fd cache first. Non-file
// descriptors (pipes, sockets, anonymous fds) resolve to a path that
// isn't rooted at "/" and are silently ignored, mirroring the original
// fd_to_path/report_access_fd contract.
func (r *Router) ReportAccessFd(syscallName string, kind domain.EventKind, fd int) domain.AccessCheckResult {
	path, err := r.FdCache.Path(fd)
	if err != nil || len(path) == 0 || path[0] != '/' {
		return domain.NotChecked
	}

	return r.ReportAccess(syscallName, kind, path, "")
}

// ReportAccessAt dispatches an access expressed relative to a directory
// file descriptor (the openat(2) family), canonicalizing pathname against
// dirfd's path (or the process CWD when dirfd is AT_FDCWD) before
// reporting it.
func (r *Router) ReportAccessAt(syscallName string, kind domain.EventKind, dirfd int, pathname string, followFinalSymlink bool, cwd string) domain.AccessCheckResult {
	anchor := cwd
	if dirfd != AtFdcwd {
		dp, err := r.FdCache.Path(dirfd)
		if err != nil {
			return domain.NotChecked
		}
		anchor = dp
	}

	full, err := r.Resolver.Canonicalize(anchor, pathname, followFinalSymlink, func(symlinkPath string) {
		r.ReportAccess("_readlink", domain.EventReadlink, symlinkPath, "")
	})
	if err != nil {
		return domain.NotChecked
	}

	return r.ReportAccess(syscallName, kind, full, "")
}

// ReportExec reports an exec-family syscall as two consecutive access
// reports: syscallName identifies the originating syscall (execve,
// posix_spawn, ...); procName is the literal command name passed by the
// caller, reported unresolved so a process name always precedes anything
// else said about it; resolvedPath is the canonicalized executable path.
// A no-op when MonitorChildren is unset or returns false.
func (r *Router) ReportExec(syscallName, procName, resolvedPath string) error {
	if r.MonitorChildren == nil || !r.MonitorChildren() {
		return nil
	}

	logrus.Debugf("(( %10s:%s )) %s [Exec]", syscallName, domain.EventExec, resolvedPath)

	return r.Sender.SendExec(r.Pid(), procName, resolvedPath)
}

// AtFdcwd mirrors AT_FDCWD without importing golang.org/x/sys/unix just
// for one constant that callers on non-Linux test platforms also need to
// compare against.
const AtFdcwd = -100

func (r *Router) logDecision(syscallName string, kind domain.EventKind, path string, result domain.AccessCheckResult) {
	verdict := "[Ignored]"
	blocked := ""

	switch {
	case !result.ShouldReport:
		verdict = "[Ignored]"
	case result.ShouldDenyAccess:
		verdict = "[Denied]"
		if r.FailUnexpectedAccesses != nil && r.FailUnexpectedAccesses() {
			blocked = "[Blocked]"
		}
	default:
		verdict = "[Allowed]"
	}

	logrus.Debugf("(( %10s:%s )) %s %s%s", syscallName, kind, path, verdict, blocked)
}
