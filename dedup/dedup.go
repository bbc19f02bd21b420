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

// Package dedup tracks, per coalesced event kind, the set of canonical
// paths already reported, so the router can skip re-reporting an access
// it has already told the policy engine about. The cache is guarded by a
// try-lock with a short timeout rather than a plain mutex: shims calling
// into this code may run in contexts that behave like signal handlers,
// where blocking indefinitely on a lock risks deadlocking the observed
// program. Losing the race just means an access gets reported twice,
// which is safe; blocking forever is not.
package dedup

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/buildxl-oss/linux-sandbox-observer/domain"
)

// DefaultLockTimeout is the try-lock deadline used when none is supplied.
const DefaultLockTimeout = time.Millisecond

// DefaultCapacityPerKind bounds how many distinct paths are remembered per
// coalesced event kind before the least-recently-seen ones are evicted.
const DefaultCapacityPerKind = 4096

// Cache is safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	sets        map[domain.CoalescedEventKind]*lru.Cache
	capacity    int
	lockTimeout time.Duration
}

func New(capacityPerKind int, lockTimeout time.Duration) *Cache {
	if capacityPerKind <= 0 {
		capacityPerKind = DefaultCapacityPerKind
	}
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Cache{
		sets:        make(map[domain.CoalescedEventKind]*lru.Cache),
		capacity:    capacityPerKind,
		lockTimeout: lockTimeout,
	}
}

// tryLock attempts to acquire c.mu within c.lockTimeout. Go 1.18's
// sync.Mutex has no native TryLock-with-timeout, so this polls a
// zero-allocation TryLock in a tight loop until the deadline passes.
func (c *Cache) tryLock() bool {
	deadline := time.Now().Add(c.lockTimeout)
	for {
		if c.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

// CheckAndAdd reports whether path has already been recorded for kind. If
// it has not, it is added and false is returned (report it). If the lock
// could not be acquired within the timeout, acquired is false and the
// caller should treat this as a miss (report it) rather than block.
func (c *Cache) CheckAndAdd(kind domain.CoalescedEventKind, path string) (hit bool, acquired bool) {
	if !c.tryLock() {
		return false, false
	}
	defer c.mu.Unlock()

	set, ok := c.sets[kind]
	if !ok {
		set, _ = lru.New(c.capacity)
		c.sets[kind] = set
	}

	if _, seen := set.Get(path); seen {
		return true, true
	}

	set.Add(path, struct{}{})
	return false, true
}

// Reset drops every recorded path for every kind.
func (c *Cache) Reset() {
	if !c.tryLock() {
		return
	}
	defer c.mu.Unlock()
	c.sets = make(map[domain.CoalescedEventKind]*lru.Cache)
}
