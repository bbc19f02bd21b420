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

package policy_test

import (
	"testing"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/policy"
	"github.com/stretchr/testify/assert"
)

func TestHandleEvent_AllowByDefault(t *testing.T) {
	e := policy.New(nil, false)

	result := e.HandleEvent(domain.IOEvent{SrcPath: "/tmp/file", Kind: domain.EventOpenRead})
	assert.True(t, result.Checked)
	assert.False(t, result.ShouldReport)
	assert.False(t, result.ShouldDenyAccess)
}

func TestHandleEvent_DenyMatchesLongestPrefix(t *testing.T) {
	e := policy.New([]policy.Rule{
		{PathPrefix: "/tmp", Verdict: policy.VerdictAllow},
		{PathPrefix: "/tmp/secret", Verdict: policy.VerdictDenyButReport},
	}, false)

	result := e.HandleEvent(domain.IOEvent{SrcPath: "/tmp/secret/file", Kind: domain.EventOpenRead})
	assert.True(t, result.ShouldReport)
	assert.True(t, result.ShouldDenyAccess)

	result = e.HandleEvent(domain.IOEvent{SrcPath: "/tmp/public/file", Kind: domain.EventOpenRead})
	assert.False(t, result.ShouldDenyAccess)
}

func TestHandleEvent_ReportAllFlagReportsAllowedAccesses(t *testing.T) {
	e := policy.New(nil, true)

	result := e.HandleEvent(domain.IOEvent{SrcPath: "/tmp/file", Kind: domain.EventOpenRead})
	assert.True(t, result.ShouldReport)
	assert.False(t, result.ShouldDenyAccess)
}

func TestHandleEvent_InvokesCallback(t *testing.T) {
	e := policy.New([]policy.Rule{
		{PathPrefix: "/secret", Verdict: policy.VerdictDenyAndBlock},
	}, false)

	var got domain.AccessReport
	called := false
	e.SetAccessReportCallback(func(r domain.AccessReport) {
		called = true
		got = r
	})

	e.HandleEvent(domain.IOEvent{Pid: 99, SrcPath: "/secret/file", Kind: domain.EventOpenRead})

	assert.True(t, called)
	assert.Equal(t, uint32(99), got.Pid)
	assert.Equal(t, "/secret/file", got.Path)
}

func TestTrackRootProcess(t *testing.T) {
	e := policy.New(nil, false)

	ok := e.TrackRootProcess(123)
	assert.True(t, ok)

	ok = e.TrackRootProcess(123)
	assert.False(t, ok, "re-tracking the same pid should fail")

	p, found := e.FindTrackedProcess(123)
	assert.True(t, found)
	assert.Equal(t, uint32(123), p.Pid())
}

func TestFindTrackedProcess_NotFound(t *testing.T) {
	e := policy.New(nil, false)

	_, found := e.FindTrackedProcess(999)
	assert.False(t, found)
}

func TestNewFromFam_ParsesRuleLines(t *testing.T) {
	contents := []byte("allow /tmp\ndeny /tmp/secret\nblock /etc/shadow\n")

	eng, err := policy.NewFromFam(1, contents)
	assert.NoError(t, err)

	result := eng.HandleEvent(domain.IOEvent{SrcPath: "/etc/shadow", Kind: domain.EventOpenRead})
	assert.True(t, result.ShouldDenyAccess)
}
