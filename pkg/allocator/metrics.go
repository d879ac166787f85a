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
	"github.com/uber-go/tally"

	"github.com/granaryproject/granary/pkg/resource"
)

// gaugeMaps reports a quantity vector as a group of per-kind gauges.
type gaugeMaps struct {
	scope  tally.Scope
	gauges map[string]tally.Gauge
}

func newGaugeMaps(scope tally.Scope) *gaugeMaps {
	return &gaugeMaps{
		scope:  scope,
		gauges: make(map[string]tally.Gauge),
	}
}

// Update updates one gauge per resource kind present in the quantities.
func (g *gaugeMaps) Update(quantities resource.Quantities) {
	for kind, value := range quantities {
		gauge, ok := g.gauges[kind]
		if !ok {
			gauge = g.scope.Gauge(kind)
			g.gauges[kind] = gauge
		}
		gauge.Update(value)
	}
}

// Metrics tracks the allocator counters and gauges.
type Metrics struct {
	// AllocationRuns counts completed allocation rounds.
	AllocationRuns tally.Counter
	// AllocationLatency tracks the duration of one round.
	AllocationLatency tally.Timer
	// OffersEmitted counts per-agent offers handed to frameworks.
	OffersEmitted tally.Counter
	// InverseOffersEmitted counts inverse offers handed to frameworks.
	InverseOffersEmitted tally.Counter
	// FilteredCandidates counts candidates dropped by a decline filter.
	FilteredCandidates tally.Counter
	// EventTriggeredRuns counts rounds scheduled by mutations rather
	// than the periodic tick.
	EventTriggeredRuns tally.Counter
	// AllocationOverlaps counts rounds skipped because one was already
	// running.
	AllocationOverlaps tally.Counter

	clusterTotal     *gaugeMaps
	clusterAllocated *gaugeMaps

	roleScope           tally.Scope
	roleDominantShares  map[string]tally.Gauge
}

// NewMetrics returns the allocator metrics rooted at the given scope.
func NewMetrics(parent tally.Scope) *Metrics {
	scope := parent.SubScope("allocator")
	cluster := scope.SubScope("cluster")

	return &Metrics{
		AllocationRuns:       scope.Counter("allocation_runs"),
		AllocationLatency:    scope.Timer("allocation_latency"),
		OffersEmitted:        scope.Counter("offers_emitted"),
		InverseOffersEmitted: scope.Counter("inverse_offers_emitted"),
		FilteredCandidates:   scope.Counter("filtered_candidates"),
		EventTriggeredRuns:   scope.Counter("event_triggered_runs"),
		AllocationOverlaps:   scope.Counter("allocation_overlaps"),

		clusterTotal:     newGaugeMaps(cluster.SubScope("total")),
		clusterAllocated: newGaugeMaps(cluster.SubScope("allocated")),

		roleScope:          scope.SubScope("roles"),
		roleDominantShares: make(map[string]tally.Gauge),
	}
}

// ReportCluster updates the cluster total and allocated gauges.
func (m *Metrics) ReportCluster(total, allocated resource.Quantities) {
	m.clusterTotal.Update(total)
	m.clusterAllocated.Update(allocated)
}

// ReportDominantShare updates the dominant share gauge of one role.
func (m *Metrics) ReportDominantShare(role string, share float64) {
	gauge, ok := m.roleDominantShares[role]
	if !ok {
		gauge = m.roleScope.SubScope(role).Gauge("dominant_share")
		m.roleDominantShares[role] = gauge
	}
	gauge.Update(share)
}
