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

	"github.com/granaryproject/granary/pkg/resource"
)

// offerFilter is one decline: the framework does not want to see a
// subset of these resources on this agent again until the filter
// expires. Expiry needs both the wall-clock deadline to pass and one
// full allocation round to complete after it; otherwise a refuse
// timeout shorter than the allocation interval would be a no-op and
// the framework would receive the identical offer on the next round.
type offerFilter struct {
	agentID   string
	resources resource.Resources
	deadline  time.Time

	// expiredAtRound is the number of the first round which began after
	// the deadline, or zero while the deadline has not been observed.
	expiredAtRound uint64
}

// matches returns whether the candidate falls under this filter.
func (f *offerFilter) matches(agentID string, candidate resource.Resources) bool {
	return f.agentID == agentID && f.resources.Contains(candidate)
}

// frameworkState is the allocator's book-keeping for one framework.
type frameworkState struct {
	info *FrameworkInfo

	// active is flipped by deactivate/activate; suppressed by
	// suppress/revive. Either bit alone stops offers.
	active     bool
	suppressed bool

	filters []*offerFilter
}

func newFrameworkState(info *FrameworkInfo, active bool) *frameworkState {
	c := *info
	return &frameworkState{
		info:   &c,
		active: active,
	}
}

// eligible returns whether the framework may receive offers this round.
func (f *frameworkState) eligible() bool {
	return f.active && !f.suppressed
}

// isFiltered returns whether any live filter blocks the candidate.
func (f *frameworkState) isFiltered(agentID string, candidate resource.Resources) bool {
	for _, filter := range f.filters {
		if filter.matches(agentID, candidate) {
			return true
		}
	}
	return false
}

// installFilter records a decline.
func (f *frameworkState) installFilter(agentID string, declined resource.Resources, deadline time.Time) {
	f.filters = append(f.filters, &offerFilter{
		agentID:   agentID,
		resources: declined.Clone(),
		deadline:  deadline,
	})
}

// sweepExpiredFilters drops the filters whose deadline passed before a
// previous round began. round is the number of the round about to run.
// It returns how many filters were dropped.
func (f *frameworkState) sweepExpiredFilters(now time.Time, round uint64) int {
	kept := f.filters[:0]
	dropped := 0
	for _, filter := range f.filters {
		if !now.Before(filter.deadline) {
			if filter.expiredAtRound == 0 {
				filter.expiredAtRound = round
			} else if round > filter.expiredAtRound {
				dropped++
				continue
			}
		}
		kept = append(kept, filter)
	}
	f.filters = kept
	return dropped
}

// clearFilters drops every filter, e.g. on revival.
func (f *frameworkState) clearFilters() {
	f.filters = nil
}
