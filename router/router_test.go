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

package router_test

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/buildxl-oss/linux-sandbox-observer/canon"
	"github.com/buildxl-oss/linux-sandbox-observer/dedup"
	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/fdcache"
	"github.com/buildxl-oss/linux-sandbox-observer/report"
	"github.com/buildxl-oss/linux-sandbox-observer/router"
	"github.com/stretchr/testify/assert"
)

type stubPolicy struct {
	result domain.AccessCheckResult
	calls  int
}

func (s *stubPolicy) TrackRootProcess(pid uint32) bool { return true }
func (s *stubPolicy) FindTrackedProcess(pid uint32) (domain.ProcessIface, bool) {
	return nil, false
}
func (s *stubPolicy) SetAccessReportCallback(cb domain.AccessReportCallback) {}
func (s *stubPolicy) HandleEvent(event domain.IOEvent) domain.AccessCheckResult {
	s.calls++
	return s.result
}

func newTestRouter(t *testing.T, policy domain.PolicyEngineIface) *router.Router {
	pipePath := t.TempDir() + "/reports"
	f, err := os.OpenFile(pipePath, os.O_CREATE|os.O_WRONLY, 0644)
	assert.NoError(t, err)
	f.Close()

	return &router.Router{
		Policy:   policy,
		Dedup:    dedup.New(16, time.Millisecond),
		FdCache:  fdcache.New(func(fd int) (string, error) { return "", os.ErrNotExist }),
		Resolver: canon.New(func(path string) (string, error) { return "", os.ErrNotExist }),
		Sender:   report.NewSender(pipePath, "myapp"),
		Enabled:  func() bool { return true },
		Disposed: func() bool { return false },
		Pid:      func() uint32 { return 100 },
		Ppid:     func() uint32 { return 1 },
		MonitorChildren: func() bool {
			return true
		},
	}
}

func TestReportAccess_DispatchesToPolicy(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)

	result := r.ReportAccess("open", domain.EventOpenRead, "/tmp/a", "")
	assert.True(t, result.Checked)
	assert.Equal(t, 1, policy.calls)
}

func TestReportAccess_DisposedSkipsPolicy(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)
	r.Disposed = func() bool { return true }

	result := r.ReportAccess("open", domain.EventOpenRead, "/tmp/a", "")
	assert.Equal(t, domain.NotChecked, result)
	assert.Equal(t, 0, policy.calls)
}

func TestReportAccess_DedupHitSkipsSecondPolicyCall(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)

	_ = r.ReportAccess("stat", domain.EventProbe, "/tmp/a", "")
	result := r.ReportAccess("stat", domain.EventProbe, "/tmp/a", "")

	assert.Equal(t, domain.NotChecked, result)
	assert.Equal(t, 1, policy.calls)
}

func TestReportAccess_ExecNeverCached(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)

	_ = r.ReportAccess("execve", domain.EventExec, "/bin/ls", "")
	_ = r.ReportAccess("execve", domain.EventExec, "/bin/ls", "")

	assert.Equal(t, 2, policy.calls)
}

func TestReportAccessFd_NonFileIsIgnored(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)
	r.FdCache = fdcache.New(func(fd int) (string, error) { return "socket:[12345]", nil })

	result := r.ReportAccessFd("read", domain.EventOpenRead, 5)
	assert.Equal(t, domain.NotChecked, result)
	assert.Equal(t, 0, policy.calls)
}

func TestReportAccessFd_FilePathIsDispatched(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)
	r.FdCache = fdcache.New(func(fd int) (string, error) { return "/tmp/fromfd", nil })

	result := r.ReportAccessFd("read", domain.EventOpenRead, 5)
	assert.True(t, result.Checked)
	assert.Equal(t, 1, policy.calls)
}

func TestReportExec_NoopWhenNotMonitoringChildren(t *testing.T) {
	policy := &stubPolicy{}
	r := newTestRouter(t, policy)
	r.MonitorChildren = func() bool { return false }

	err := r.ReportExec("execve", "ls", "/bin/ls")
	assert.NoError(t, err)
}

func TestReportExec_SendsTwoRecords(t *testing.T) {
	policy := &stubPolicy{}
	r := newTestRouter(t, policy)

	pipePath := t.TempDir() + "/exec-reports"
	f, err := os.OpenFile(pipePath, os.O_CREATE|os.O_WRONLY, 0644)
	assert.NoError(t, err)
	f.Close()
	r.Sender = report.NewSender(pipePath, "myapp")

	err = r.ReportExec("execve", "ls", "/bin/ls")
	assert.NoError(t, err)

	content, err := os.ReadFile(pipePath)
	assert.NoError(t, err)
	records := 0
	for offset := 0; offset+4 <= len(content); records++ {
		offset += 4 + int(binary.LittleEndian.Uint32(content[offset:offset+4]))
	}
	assert.Equal(t, 2, records)
}

func TestReportAccessAt_CanonicalizesBeforeDispatch(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)
	r.Resolver = canon.New(func(path string) (string, error) {
		if path == "/a/link" {
			return "/a/real", nil
		}
		return "", os.ErrNotExist
	})

	result := r.ReportAccessAt("open", domain.EventOpenRead, router.AtFdcwd, "/a/link/file", true, "/")

	assert.True(t, result.Checked)
	// One policy call for the intermediate READLINK, one for the final,
	// canonicalized OPEN_READ.
	assert.Equal(t, 2, policy.calls)
}

func TestReportAccessAt_SymlinkCycleStillDispatchesBestEffortPath(t *testing.T) {
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)
	r.Resolver = canon.New(func(path string) (string, error) {
		switch path {
		case "/a":
			return "/b", nil
		case "/b":
			return "/a", nil
		}
		return "", os.ErrNotExist
	})

	result := r.ReportAccessAt("open", domain.EventOpenRead, router.AtFdcwd, "/a", true, "/")

	// A cycle must not drop the event: ReportAccessAt still dispatches
	// the best-effort path instead of returning NotChecked.
	assert.True(t, result.Checked)
}

func TestReportAccess_LegacyStatFallthroughChangesCoalescing(t *testing.T) {
	// Without the legacy fallthrough, EventProbe coalesces onto its own
	// CoalescedStat bucket, distinct from EventOther's CoalescedOther:
	// the second call on the same path is a fresh miss.
	policy := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r := newTestRouter(t, policy)

	_ = r.ReportAccess("stat", domain.EventProbe, "/tmp/a", "")
	_ = r.ReportAccess("other", domain.EventOther, "/tmp/a", "")
	assert.Equal(t, 2, policy.calls)

	// With the legacy fallthrough on, EventProbe falls through into the
	// same CoalescedOther bucket EventOther already uses, so the second
	// call collides with the first and is suppressed as a dedup hit.
	policy2 := &stubPolicy{result: domain.AccessCheckResult{Checked: true, ShouldReport: true}}
	r2 := newTestRouter(t, policy2)
	r2.LegacyStatFallthrough = func() bool { return true }

	_ = r2.ReportAccess("stat", domain.EventProbe, "/tmp/a", "")
	_ = r2.ReportAccess("other", domain.EventOther, "/tmp/a", "")
	assert.Equal(t, 1, policy2.calls)
}
