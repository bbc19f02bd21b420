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

// Package observer owns the process-wide singleton that every
// interposition shim calls into: it loads configuration once, builds the
// policy engine and wires it to the report sender, and exposes the
// narrow surface (Router, Sender, Enabled/Disposed) the rest of this
// tree needs. It also tracks the disposed flag that guards against use
// during process exit or from within a signal handler.
package observer

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/buildxl-oss/linux-sandbox-observer/canon"
	"github.com/buildxl-oss/linux-sandbox-observer/dedup"
	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/fdcache"
	"github.com/buildxl-oss/linux-sandbox-observer/policy"
	"github.com/buildxl-oss/linux-sandbox-observer/report"
	"github.com/buildxl-oss/linux-sandbox-observer/router"
	"github.com/buildxl-oss/linux-sandbox-observer/sysio"
)

var (
	instance *Observer
	once     sync.Once
)

// Observer is the process-wide singleton. Exactly one is constructed per
// process, lazily, on first GetInstance call.
type Observer struct {
	Config  *domain.Config
	Policy  domain.PolicyEngineIface
	Router  *router.Router
	Sender  *report.Sender

	disposed int32 // atomic bool
	enabled  int32 // atomic bool
}

// GetInstance returns the process-wide Observer, constructing it on first
// call. readFamFile lets callers (and tests) substitute how the FAM file
// is read; production callers pass ReadFamFile.
func GetInstance(readFamFile func(string) ([]byte, error)) *Observer {
	once.Do(func() {
		instance = newObserver(readFamFile)
	})
	return instance
}

func newObserver(readFamFile func(string) ([]byte, error)) *Observer {
	cfg := domain.LoadConfig()

	o := &Observer{
		Config: cfg,
	}

	if cfg.FamPath == "" || cfg.ReportsPath == "" {
		// No FAM or no reports sink configured: degrade to a disabled,
		// no-op observer rather than aborting the observed program.
		logrus.Warn("observer running without a FAM path and/or reports path; disabling")
		atomic.StoreInt32(&o.enabled, 0)
		return o
	}

	famContents, err := readFamFile(cfg.FamPath)
	if err != nil {
		fatal("could not load FAM file %q: %v", cfg.FamPath, err)
	}

	eng, err := policy.NewFromFam(cfg.RootPid, famContents)
	if err != nil {
		fatal("could not parse FAM file %q: %v", cfg.FamPath, err)
	}
	o.Policy = eng

	name := progName()
	sender := report.NewSender(cfg.ReportsPath, name)
	o.Sender = sender
	eng.SetAccessReportCallback(func(r domain.AccessReport) {
		// A record too large for one atomic pipe write is fatal; a failed
		// write of a record that fits is only logged.
		if _, err := report.Frame(name, r.Pid, r); err != nil {
			fatal("could not frame access report: %v", err)
		}
		if err := sender.SendReport(r.Pid, r); err != nil {
			logrus.Errorf("failed to send access report: %v", err)
		}
	})

	if cfg.RootPid != 0 {
		eng.TrackRootProcess(cfg.RootPid)
	}

	fdc := fdcache.New(func(fd int) (string, error) {
		buf := make([]byte, domain.PathMax)
		return readlinkProc(fd, buf)
	})

	resolver := canon.New(func(path string) (string, error) {
		return osReadlink(path)
	})

	o.Router = &router.Router{
		Policy:   eng,
		Dedup:    dedup.New(dedup.DefaultCapacityPerKind, dedup.DefaultLockTimeout),
		FdCache:  fdc,
		Resolver: resolver,
		Sender:   sender,
		Enabled:  o.Enabled,
		Disposed: o.Disposed,
		Pid:      func() uint32 { return uint32(os.Getpid()) },
		Ppid:     func() uint32 { return uint32(os.Getppid()) },
		MonitorChildren: func() bool {
			return cfg.RootPid != 0
		},
		LegacyStatFallthrough: func() bool {
			return cfg.LegacyStatFallthrough
		},
	}

	atomic.StoreInt32(&o.enabled, 1)
	return o
}

// Enabled reports whether the observer was able to fully initialize
// (FAM + reports path present and loaded).
func (o *Observer) Enabled() bool {
	return atomic.LoadInt32(&o.enabled) == 1
}

// Disposed reports whether Dispose has been called. Once true, callers
// must treat every subsequent observation as a NotChecked no-op: this
// guards against use from a signal handler running during teardown.
func (o *Observer) Disposed() bool {
	return atomic.LoadInt32(&o.disposed) == 1
}

// Dispose marks the observer as torn down. Safe to call more than once
// and from a signal handler.
func (o *Observer) Dispose() {
	atomic.StoreInt32(&o.disposed, 1)
}

// fatal logs at fatal level and terminates the process. Reserved for
// configuration that makes correct observation impossible to establish
// (an unreadable or unparsable FAM file) and for an access report too
// large for one atomic pipe write; anything recoverable degrades to a
// disabled observer instead.
func fatal(format string, args ...interface{}) {
	logrus.Fatalf(format, args...)
}

func progName() string {
	exe, err := os.Executable()
	if err != nil {
		return "unknown"
	}
	base := exe
	for i := len(exe) - 1; i >= 0; i-- {
		if exe[i] == '/' {
			base = exe[i+1:]
			break
		}
	}
	return base
}

// readlinkProc and osReadlink are indirection points so tests never touch
// the real filesystem. Production wiring issues a raw unix.Readlink
// rather than going through os.Readlink, matching the re-entrancy stance
// the rest of this tree takes for syscalls made on behalf of the observed
// program (see sysio.IOnodeFile.Readlink, canon.ReadlinkFunc).
var readlinkProc = func(fd int, buf []byte) (string, error) {
	return rawReadlink(fdcache.ProcPath(fd))
}

var osReadlink = rawReadlink

func rawReadlink(path string) (string, error) {
	buf := make([]byte, domain.PathMax)
	n, err := unix.Readlink(path, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// ReadFamFile is the production readFamFile implementation: it reads the
// FAM file through the same IOnodeIface/IOServiceIface abstraction the
// rest of this tree uses for filesystem access (see sysio), so the same
// code path can be driven against an afero.MemMapFs in tests instead of
// the real filesystem (see NewFamReader).
func ReadFamFile(path string) ([]byte, error) {
	return NewFamReader(sysio.NewIOService(domain.IOOsFileService))(path)
}

// NewFamReader builds a readFamFile function (GetInstance's parameter
// shape) that reads the FAM file through svc. Production code passes an
// OS-backed service (see ReadFamFile); tests pass one backed by
// afero.MemMapFs.
func NewFamReader(svc domain.IOServiceIface) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		return svc.NewIOnode("fam", path, 0).ReadFile()
	}
}
