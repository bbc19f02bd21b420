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

// Package fdcache maintains a fixed-capacity mapping from file descriptor
// to the canonical path it was opened with, populated lazily by reading
// /proc/self/fd/<n> the first time a descriptor is looked up.
package fdcache

import (
	"fmt"
	"sync"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
)

// ReadlinkFunc resolves /proc/self/fd/<n> to the path backing fd. Swapped
// out in tests; production callers wire it to a raw readlink syscall.
type ReadlinkFunc func(fd int) (string, error)

// Cache is a MaxFd-capacity table; descriptors beyond that bound are never
// cached and always resolved on demand.
type Cache struct {
	mu       sync.RWMutex
	entries  [domain.MaxFd]string
	readlink ReadlinkFunc
}

func New(readlink ReadlinkFunc) *Cache {
	return &Cache{readlink: readlink}
}

func inRange(fd int) bool {
	return fd >= 0 && fd < domain.MaxFd
}

// Path returns the canonical path for fd, populating the cache entry on
// first lookup. Descriptors outside the table's range are resolved every
// call and never stored.
func (c *Cache) Path(fd int) (string, error) {
	if !inRange(fd) {
		return c.readlink(fd)
	}

	c.mu.RLock()
	if p := c.entries[fd]; p != "" {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	p, err := c.readlink(fd)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[fd] = p
	c.mu.Unlock()

	return p, nil
}

// Invalidate drops fd's cache entry; called on close(2).
func (c *Cache) Invalidate(fd int) {
	if !inRange(fd) {
		return
	}
	c.mu.Lock()
	c.entries[fd] = ""
	c.mu.Unlock()
}

// Dup copies oldFd's cache entry (if any) to newFd, mirroring the kernel's
// own dup/dup2/fcntl(F_DUPFD) behavior of cloning the open file
// description, not just the descriptor number.
func (c *Cache) Dup(oldFd, newFd int) {
	if !inRange(oldFd) || !inRange(newFd) {
		return
	}
	c.mu.Lock()
	c.entries[newFd] = c.entries[oldFd]
	c.mu.Unlock()
}

// Set forces fd's cache entry, used when a path is already known from the
// syscall that produced fd (e.g. open(2)) and a /proc readlink round trip
// would be redundant.
func (c *Cache) Set(fd int, path string) {
	if !inRange(fd) {
		return
	}
	c.mu.Lock()
	c.entries[fd] = path
	c.mu.Unlock()
}

// ProcPath returns the /proc/self/fd/<n> path for fd, the canonical
// source readlink(2) is pointed at when populating the cache.
func ProcPath(fd int) string {
	return fmt.Sprintf("/proc/self/fd/%d", fd)
}
