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

// Package canon resolves a path relative to an anchor (a CWD or a dirfd's
// path) into its canonical, symlink-free absolute form: "." and ".."
// components removed, repeated "/" collapsed, and every intermediate
// symlink followed and reported through a caller-supplied callback.
package canon

import (
	"path/filepath"
	"strings"
	"syscall"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
)

// ReadlinkFunc reads the target of the symlink at path. Production callers
// wire this to a raw unix.Readlink (bypassing any interposed libc
// wrapper); tests wire it to a canned map.
type ReadlinkFunc func(path string) (string, error)

// ReportFunc is invoked once per intermediate symlink encountered while
// canonicalizing, with the path of the symlink itself (not its target).
type ReportFunc func(symlinkPath string)

// Resolver canonicalizes paths. It carries no process-wide state; one
// Resolver instance is safe to share across goroutines as long as its
// Readlink function is.
type Resolver struct {
	Readlink ReadlinkFunc
}

// New returns a Resolver configured to call fn for each readlink(2).
func New(fn ReadlinkFunc) *Resolver {
	return &Resolver{Readlink: fn}
}

// Canonicalize resolves pathname into an absolute, symlink-free path.
// anchor is the absolute directory pathname is resolved against when it is
// itself relative (the process CWD, or the path behind a dirfd). When
// followFinalSymlink is false (O_NOFOLLOW on the final component), the
// last path component is left unresolved if it is itself a symlink — only
// intermediate components are always followed. report is invoked once per
// symlink actually followed, in path-order, mirroring what a caller would
// emit as a READLINK access record per hop.
//
// A symlink cycle does not fail the call: once a symlink is seen a second
// time, resolution stops and the best-effort path assembled so far (the
// settled components plus whatever was still pending) is returned, so a
// caller can still report an access against it. Returns syscall.ELOOP only
// for a genuinely unbounded chain of distinct symlinks, once more than
// domain.SymlinkMax have been followed, matching the Linux kernel's own
// bound.
func (r *Resolver) Canonicalize(anchor, pathname string, followFinalSymlink bool, report ReportFunc) (string, error) {

	if pathname == "" {
		return "", syscall.ENOENT
	}

	var full string
	if filepath.IsAbs(pathname) {
		full = pathname
	} else {
		full = filepath.Join(anchor, pathname)
	}

	if len(full)+1 > domain.PathMax {
		return "", syscall.ENAMETOOLONG
	}

	// pending holds path components still to be consumed; resolved holds
	// the canonical segments already settled on. Pushing a symlink
	// target's components back onto the front of pending is how we
	// splice it into the walk without re-scanning from the start.
	pending := splitComponents(full)
	resolved := make([]string, 0, len(pending))

	visited := make(map[string]struct{})
	linkCount := 0

	for len(pending) > 0 {
		c := pending[0]
		pending = pending[1:]
		isFinal := len(pending) == 0

		switch c {
		case "", ".":
			continue
		case "..":
			if len(resolved) > 0 {
				resolved = resolved[:len(resolved)-1]
			}
			continue
		}

		resolved = append(resolved, c)
		cur := "/" + strings.Join(resolved, "/")

		if isFinal && !followFinalSymlink {
			continue
		}

		target, err := r.Readlink(cur)
		if err != nil {
			// ENOENT/EINVAL (not a symlink, or missing) just means this
			// component resolves to itself; the caller finds out whether
			// it actually exists when it opens/stats the final path.
			continue
		}

		if _, seen := visited[cur]; seen {
			// A repeated symlink means a cycle: stop resolving and hand
			// back the best-effort path rather than failing the access
			// outright.
			return bestEffortPath(resolved, pending), nil
		}
		visited[cur] = struct{}{}

		linkCount++
		if linkCount > domain.SymlinkMax {
			return "", syscall.ELOOP
		}

		report(cur)

		// splice the symlink target's components back into pending so
		// the rest of the original path is resolved against it.
		resolved = resolved[:len(resolved)-1]
		if filepath.IsAbs(target) {
			resolved = resolved[:0]
		}
		pending = append(splitComponents(target), pending...)
	}

	if len(resolved) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(resolved, "/"), nil
}

// bestEffortPath joins the already-settled components with whatever is
// still pending, verbatim, for the partial-resolution return path.
func bestEffortPath(resolved, pending []string) string {
	if len(resolved) == 0 && len(pending) == 0 {
		return "/"
	}
	all := make([]string, 0, len(resolved)+len(pending))
	all = append(all, resolved...)
	all = append(all, pending...)
	return "/" + strings.Join(all, "/")
}

func splitComponents(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
