// Copyright (c) 2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package allocator

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/granaryproject/granary/pkg/resource"
)

// agentState is the allocator's book-keeping for one agent.
type agentState struct {
	id       string
	hostname string

	// total carries static reservations and the revocable slice as
	// resource tags. allocated is the per-framework breakdown; the
	// invariant is that the sum of allocated is contained in total.
	total     resource.Resources
	allocated map[string]resource.Resources

	unavailability *Unavailability

	// whitelisted is false only while a whitelist is in effect which
	// does not name this agent's hostname.
	whitelisted bool
}

func newAgentState(info *AgentInfo) *agentState {
	return &agentState{
		id:             info.ID,
		hostname:       info.Hostname,
		total:          info.Total.Clone(),
		allocated:      make(map[string]resource.Resources),
		unavailability: cloneUnavailability(info.Unavailability),
		whitelisted:    true,
	}
}

func cloneUnavailability(u *Unavailability) *Unavailability {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// allocatedTotal sums the per-framework allocations. A shared volume
// held by several frameworks counts once.
func (a *agentState) allocatedTotal() resource.Resources {
	var out resource.Resources
	seenShared := make(map[string]bool)
	for _, rs := range a.allocated {
		for _, r := range rs {
			if r.IsShared() {
				if seenShared[r.Disk.Persistence] {
					continue
				}
				seenShared[r.Disk.Persistence] = true
			}
			out = out.Plus(r)
		}
	}
	return out
}

// unallocated is the strict difference total minus allocated, used for
// operator reservations. It logs an error and returns nil when the
// allocations are not contained in total, which happens after an
// oversubscription update shrinks the revocable slice below what is
// already allocated.
func (a *agentState) unallocated() resource.Resources {
	out, err := a.total.Subtract(a.allocatedTotal())
	if err != nil {
		log.WithField("agent_id", a.id).
			WithError(err).
			Error("Agent allocation exceeds total")
		return nil
	}
	return out
}

// available is the offerable slice: total minus allocated, clamped at
// empty per line item, plus shared volumes which stay offerable to their
// role while held.
func (a *agentState) available() resource.Resources {
	out := a.total.SubtractClamped(a.allocatedTotal())
	for _, v := range a.total.Shared() {
		if !out.Contains(resource.Resources{v}) {
			out = out.Plus(v)
		}
	}
	return out
}

// holdsVolume returns the frameworks holding the given volume.
func (a *agentState) holdsVolume(persistenceID string) []string {
	var holders []string
	for frameworkID, rs := range a.allocated {
		if _, found := rs.FindVolume(persistenceID); found {
			holders = append(holders, frameworkID)
		}
	}
	return holders
}

// offerable returns whether the agent may produce offers at the given
// time: it is whitelisted and not inside (or within holdoff of) a
// maintenance window.
func (a *agentState) offerable(now time.Time, holdoff time.Duration) bool {
	if !a.whitelisted {
		return false
	}
	if a.unavailability == nil {
		return true
	}
	u := a.unavailability
	if now.Add(holdoff).Before(u.Start) {
		return true
	}
	if u.Duration > 0 && !now.Before(u.Start.Add(u.Duration)) {
		// The window already ended.
		return true
	}
	return false
}

// maintenanceScheduled returns whether a window is set and not yet over.
func (a *agentState) maintenanceScheduled(now time.Time) bool {
	if a.unavailability == nil {
		return false
	}
	u := a.unavailability
	if u.Duration > 0 && !now.Before(u.Start.Add(u.Duration)) {
		return false
	}
	return true
}
