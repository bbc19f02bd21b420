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

// Package policy is a small, self-contained implementation of
// domain.PolicyEngineIface backed by a path-prefix radix tree. It is
// deliberately NOT a parser for the real binary File Access Manifest
// format; that parser and the evaluation engine it feeds live outside
// this repository and are consumed only through domain.PolicyEngineIface.
// This implementation exists so the router, the dedup cache and the
// canonicalizer have something concrete to run against in tests and in
// the cmd/bxltrace harness.
package policy

import (
	"strings"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
	"github.com/buildxl-oss/linux-sandbox-observer/process"
)

// Verdict is the rule-table decision for a path prefix.
type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictDenyButReport
	VerdictDenyAndBlock
)

// Rule binds a path prefix to a verdict. Rules are matched by longest
// prefix, mirroring how a real FAM's scope entries nest (an allow under a
// denied subtree, and so on).
type Rule struct {
	PathPrefix string
	Verdict    Verdict
}

// Engine is the simplified stand-in policy engine.
type Engine struct {
	mu        sync.RWMutex
	rules     *iradix.Tree
	procs     map[uint32]domain.ProcessIface
	procSvc   domain.ProcessServiceIface
	callback  domain.AccessReportCallback
	reportAll bool
}

var _ domain.PolicyEngineIface = (*Engine)(nil)

// New builds an Engine from a set of rules. reportAll, when true, makes
// HandleEvent set ShouldReport even for allowed accesses (useful for a
// build observer that wants a full access trace, not just violations).
func New(rules []Rule, reportAll bool) *Engine {
	tree := iradix.New()
	for _, r := range rules {
		tree, _, _ = tree.Insert([]byte(r.PathPrefix), r.Verdict)
	}

	return &Engine{
		rules:     tree,
		procs:     make(map[uint32]domain.ProcessIface),
		procSvc:   process.NewProcessService(),
		reportAll: reportAll,
	}
}

// NewFromFam is the domain.NewPolicyEngineFunc-shaped constructor; in this
// stand-in, famContents is ignored beyond checking it parses as a
// newline-separated "verdict path" rule list (one rule per line, verdict
// one of "allow", "deny", "block"). Any other binary format is simply
// treated as zero rules (allow-by-default), since real FAM parsing is out
// of scope here.
func NewFromFam(pid uint32, famContents []byte) (domain.PolicyEngineIface, error) {
	var rules []Rule
	for _, line := range strings.Split(string(famContents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}

		var v Verdict
		switch parts[0] {
		case "deny":
			v = VerdictDenyButReport
		case "block":
			v = VerdictDenyAndBlock
		default:
			v = VerdictAllow
		}

		rules = append(rules, Rule{PathPrefix: parts[1], Verdict: v})
	}

	return New(rules, false), nil
}

func (e *Engine) TrackRootProcess(pid uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.procs[pid]; exists {
		return false
	}
	e.procs[pid] = e.procSvc.ProcessCreate(pid, 0)
	return true
}

func (e *Engine) FindTrackedProcess(pid uint32) (domain.ProcessIface, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.procs[pid]
	return p, ok
}

func (e *Engine) SetAccessReportCallback(cb domain.AccessReportCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callback = cb
}

func (e *Engine) matchVerdict(path string) Verdict {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, val, ok := e.rules.Root().LongestPrefix([]byte(path))
	if !ok {
		return VerdictAllow
	}
	return val.(Verdict)
}

func (e *Engine) HandleEvent(event domain.IOEvent) domain.AccessCheckResult {
	verdict := e.matchVerdict(event.SrcPath)

	result := domain.AccessCheckResult{Checked: true}

	switch verdict {
	case VerdictAllow:
		result.ShouldReport = e.reportAll
	case VerdictDenyButReport:
		result.ShouldReport = true
		result.ShouldDenyAccess = true
	case VerdictDenyAndBlock:
		result.ShouldReport = true
		result.ShouldDenyAccess = true
	}

	e.mu.RLock()
	cb := e.callback
	e.mu.RUnlock()

	if result.ShouldReport && cb != nil {
		status := 0
		if result.ShouldDenyAccess {
			status = 1
		}
		cb(domain.AccessReport{
			Pid:       event.Pid,
			Status:    status,
			Operation: event.Kind,
			Path:      event.SrcPath,
		})
	}

	return result
}
