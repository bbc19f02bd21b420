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
	"testing"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestReportAccess_WithMockedPolicyEngine(t *testing.T) {
	mockPolicy := &mocks.PolicyEngineIface{}
	mockPolicy.On("HandleEvent", mock.Anything).Return(domain.AccessCheckResult{
		Checked:      true,
		ShouldReport: true,
	})

	r := newTestRouter(t, mockPolicy)

	result := r.ReportAccess("open", domain.EventOpenWrite, "/tmp/mocked", "")

	assert.True(t, result.Checked)
	assert.True(t, result.ShouldReport)
	mockPolicy.AssertExpectations(t)
}
