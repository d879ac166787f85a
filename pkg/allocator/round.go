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
	"context"
	"sort"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/granaryproject/granary/pkg/common"
	"github.com/granaryproject/granary/pkg/common/async"
	"github.com/granaryproject/granary/pkg/common/util"
	"github.com/granaryproject/granary/pkg/resource"
)

// offerBatch is one framework's offers from a round, one per agent,
// ordered by agent ID.
type offerBatch struct {
	frameworkID string
	offers      []*Offer
}

// inverseBatch is one framework's inverse offers from a round.
type inverseBatch struct {
	frameworkID string
	offers      []*InverseOffer
}

// allocate runs one full allocation round and hands the decisions to
// the callbacks. The round body holds the lock; deliveries happen off
// it through the dispatcher.
func (h *hierarchical) allocate() {
	if h.allocating.Swap(true) {
		log.Warn("Allocation round is already running, no action will be performed")
		h.metrics.AllocationOverlaps.Inc(1)
		return
	}
	defer h.allocating.Swap(false)

	h.Lock()
	sw := h.metrics.AllocationLatency.Start()
	offerBatches, inverseBatches := h.allocateLocked()
	h.metrics.AllocationRuns.Inc(1)
	sw.Stop()
	h.Unlock()

	for _, batch := range offerBatches {
		batch := batch
		h.metrics.OffersEmitted.Inc(int64(len(batch.offers)))
		h.dispatcher.Enqueue(async.JobFunc(func(_ context.Context) {
			h.offerCallback(batch.frameworkID, batch.offers)
		}))
	}
	for _, batch := range inverseBatches {
		batch := batch
		h.metrics.InverseOffersEmitted.Inc(int64(len(batch.offers)))
		h.dispatcher.Enqueue(async.JobFunc(func(_ context.Context) {
			h.inverseOfferCallback(batch.frameworkID, batch.offers)
		}))
	}
}

func (h *hierarchical) allocateLocked() ([]*offerBatch, []*inverseBatch) {
	now := h.clock.Now()
	round := h.completedRounds + 1

	for _, fw := range h.frameworks {
		fw.sweepExpiredFilters(now, round)
	}

	// Agents which may produce offers this round, in insertion order.
	var eligibleIDs []string
	available := make(map[string]resource.Resources)
	for _, agentID := range h.agentIDs {
		agent := h.agents[agentID]
		if !agent.offerable(now, h.config.MaintenanceOfferHoldoff) {
			continue
		}
		avail := agent.available()
		if avail.Empty() {
			continue
		}
		eligibleIDs = append(eligibleIDs, agentID)
		available[agentID] = avail
	}

	// Remaining guarantee per quota'ed role with registered frameworks.
	// Standing reservations to the role count against the guarantee
	// whether or not anything is allocated from them.
	unsatisfied := make(map[string]resource.Quantities)
	for roleName, role := range h.roles {
		if !role.hasQuota() || len(role.frameworks) == 0 {
			continue
		}
		charged := h.quotaRoleSorter.AllocationQuantities(roleName)
		for _, agent := range h.agents {
			charged.Add(agent.available().Reserved(roleName).ScalarQuantities())
		}
		remaining := role.guarantee.Clone().SubtractClamp(charged)
		if !remaining.Empty() {
			unsatisfied[roleName] = remaining
		}
	}

	offers := make(map[string]map[string]resource.Resources)
	var grantOrder []string

	h.quotaStage(eligibleIDs, available, unsatisfied, offers, &grantOrder)

	// Whatever guarantee is still unsatisfied must be withheld from the
	// fair-share stage.
	headroom := resource.Quantities{}
	for _, remaining := range unsatisfied {
		headroom.Add(remaining)
	}

	h.fairShareStage(eligibleIDs, available, headroom, offers, &grantOrder)

	offerBatches := h.buildOfferBatches(offers, grantOrder)
	inverseBatches := h.buildInverseBatches(now)

	h.completedRounds++
	h.reportRoundMetrics()

	return offerBatches, inverseBatches
}

// quotaStage satisfies quota guarantees before anything else is given
// out. Agents are walked in insertion order; on every agent the quota
// role sorter is consulted afresh, so each grant reshuffles who picks
// next. A framework takes the role's reservations plus unreserved
// resources capped to the still unsatisfied remainder.
func (h *hierarchical) quotaStage(
	eligibleIDs []string,
	available map[string]resource.Resources,
	unsatisfied map[string]resource.Quantities,
	offers map[string]map[string]resource.Resources,
	grantOrder *[]string) {

	for _, agentID := range eligibleIDs {
		agent := h.agents[agentID]

		for _, roleName := range h.quotaRoleSorter.Sort() {
			remaining, ok := unsatisfied[roleName]
			if !ok || remaining.Empty() {
				continue
			}
			role := h.roles[roleName]

			for _, frameworkID := range h.frameworkSorters[roleName].Sort() {
				avail := available[agentID]
				if avail.Empty() {
					break
				}
				fw := h.frameworks[frameworkID]

				// Revocable resources never satisfy a guarantee.
				reserved := avail.Reserved(roleName).NonRevocable()
				capped := capScalars(avail.Unreserved().NonRevocable(), remaining)
				candidate := reserved.Add(capped)
				candidate = stripForCapabilities(candidate, fw.info.Capabilities)
				candidate = dropHeldShared(candidate, agent.allocated[frameworkID])

				if candidate.Empty() || !h.allocatable(candidate) {
					continue
				}
				if fw.isFiltered(agentID, candidate) {
					h.metrics.FilteredCandidates.Inc(1)
					continue
				}

				h.grant(role, frameworkID, agentID, candidate, available, offers, grantOrder)

				// Free reservations were already charged against the
				// guarantee; only the unreserved take shrinks it.
				remaining.SubtractClamp(
					candidate.Unreserved().NonRevocable().ScalarQuantities())
				if remaining.Empty() {
					break
				}
			}
		}
	}
}

// fairShareStage walks the agents in insertion order and, on each, the
// role tree in freshly computed weighted dominant share order. Each
// framework takes everything eligible left on the agent, as long as the
// unreserved part fits what remains after quota headroom; later entries
// in the walk pick over the leftovers (reservations to their role).
func (h *hierarchical) fairShareStage(
	eligibleIDs []string,
	available map[string]resource.Resources,
	headroom resource.Quantities,
	offers map[string]map[string]resource.Resources,
	grantOrder *[]string) {

	// The pool the fair-share stage may give away: free unreserved
	// non-revocable resources minus the laid-away headroom.
	pool := resource.Quantities{}
	for _, agentID := range eligibleIDs {
		pool.Add(available[agentID].Unreserved().NonRevocable().ScalarQuantities())
	}
	pool.SubtractClamp(headroom)

	for _, agentID := range eligibleIDs {
		agent := h.agents[agentID]

		for _, roleName := range h.roleSorter.Sort() {
			role := h.roles[roleName]

			for _, frameworkID := range h.frameworkSorters[roleName].Sort() {
				avail := available[agentID]
				if avail.Empty() {
					break
				}
				fw := h.frameworks[frameworkID]

				// Coarse grained: the whole eligible slice or nothing.
				candidate := avail.Unreserved().Add(avail.Reserved(roleName))
				candidate = stripForCapabilities(candidate, fw.info.Capabilities)
				candidate = dropHeldShared(candidate, agent.allocated[frameworkID])

				if candidate.Empty() || !h.allocatable(candidate) {
					continue
				}
				if fw.isFiltered(agentID, candidate) {
					h.metrics.FilteredCandidates.Inc(1)
					continue
				}

				// Taking the unreserved part must not dig into the
				// headroom laid away for unsatisfied guarantees.
				poolTake := candidate.Unreserved().NonRevocable().ScalarQuantities()
				if !pool.Contains(poolTake) {
					continue
				}

				h.grant(role, frameworkID, agentID, candidate, available, offers, grantOrder)
				pool.SubtractClamp(poolTake)
			}
		}
	}
}

// grant applies one tentative allocation: agent accounting, sorter
// accounting and the round's offer map.
func (h *hierarchical) grant(
	role *roleState,
	frameworkID, agentID string,
	granted resource.Resources,
	available map[string]resource.Resources,
	offers map[string]map[string]resource.Resources,
	grantOrder *[]string) {

	agent := h.agents[agentID]
	agent.allocated[frameworkID] = agent.allocated[frameworkID].Add(granted)
	available[agentID] = available[agentID].SubtractClamped(granted)

	h.trackAllocated(role, frameworkID, agentID, granted)

	if _, ok := offers[frameworkID]; !ok {
		offers[frameworkID] = make(map[string]resource.Resources)
		*grantOrder = append(*grantOrder, frameworkID)
	}
	offers[frameworkID][agentID] = offers[frameworkID][agentID].Add(granted)

	log.WithFields(log.Fields{
		"role":         role.name,
		"framework_id": frameworkID,
		"agent_id":     agentID,
		"granted":      granted.String(),
	}).Debug("Tentative allocation")
}

// buildOfferBatches turns the round's offer map into per-framework
// batches in grant order, one offer per agent.
func (h *hierarchical) buildOfferBatches(
	offers map[string]map[string]resource.Resources,
	grantOrder []string) []*offerBatch {

	var batches []*offerBatch
	for _, frameworkID := range grantOrder {
		byAgent := offers[frameworkID]

		agentIDs := make([]string, 0, len(byAgent))
		for agentID := range byAgent {
			agentIDs = append(agentIDs, agentID)
		}
		sort.Strings(agentIDs)

		batch := &offerBatch{frameworkID: frameworkID}
		for _, agentID := range agentIDs {
			batch.offers = append(batch.offers, &Offer{
				ID:        uuid.New(),
				AgentID:   agentID,
				Hostname:  h.agents[agentID].hostname,
				Resources: byAgent[agentID],
			})
		}
		batches = append(batches, batch)
	}
	return batches
}

// buildInverseBatches emits an inverse offer for every framework still
// holding resources on an agent with a pending maintenance window.
func (h *hierarchical) buildInverseBatches(now time.Time) []*inverseBatch {
	byFramework := make(map[string]*inverseBatch)
	var order []string

	for _, agentID := range h.agentIDs {
		agent := h.agents[agentID]
		if !agent.maintenanceScheduled(now) {
			continue
		}

		holders := make([]string, 0, len(agent.allocated))
		for frameworkID, rs := range agent.allocated {
			if rs.Empty() {
				continue
			}
			if _, ok := h.frameworks[frameworkID]; !ok {
				continue
			}
			holders = append(holders, frameworkID)
		}
		sort.Strings(holders)

		for _, frameworkID := range holders {
			batch, ok := byFramework[frameworkID]
			if !ok {
				batch = &inverseBatch{frameworkID: frameworkID}
				byFramework[frameworkID] = batch
				order = append(order, frameworkID)
			}
			batch.offers = append(batch.offers, &InverseOffer{
				ID:             uuid.New(),
				AgentID:        agentID,
				Hostname:       agent.hostname,
				Unavailability: *agent.unavailability,
			})
		}
	}

	batches := make([]*inverseBatch, 0, len(order))
	for _, frameworkID := range order {
		batches = append(batches, byFramework[frameworkID])
	}
	return batches
}

// allocatable returns whether the slice is worth offering at all.
func (h *hierarchical) allocatable(rs resource.Resources) bool {
	cpus := rs.Quantity(common.CPUs)
	mem := rs.Quantity(common.Mem)
	return util.LessThanOrEqual(h.config.MinAllocatableCPUs, cpus) ||
		util.LessThanOrEqual(h.config.MinAllocatableMemMB, mem)
}

// reportRoundMetrics refreshes the cluster gauges and per-role dominant
// shares after a round.
func (h *hierarchical) reportRoundMetrics() {
	total := resource.Quantities{}
	allocated := resource.Quantities{}
	for _, agent := range h.agents {
		total.Add(agent.total.ScalarQuantities())
		allocated.Add(agent.allocatedTotal().ScalarQuantities())
	}
	h.metrics.ReportCluster(total, allocated)

	for roleName := range h.roles {
		h.metrics.ReportDominantShare(roleName, h.roleSorter.DominantShare(roleName))
	}
}

// capScalars trims the scalar line items to the per-kind limits,
// dropping non-scalar line items. Used to stop a quota allocation at
// the unsatisfied remainder of the guarantee.
func capScalars(rs resource.Resources, limit resource.Quantities) resource.Resources {
	taken := resource.Quantities{}
	var out resource.Resources
	for _, r := range rs {
		if r.Type != resource.Scalar {
			continue
		}
		allowed := limit[r.Name] - taken[r.Name]
		if allowed < util.ResourceEpsilon {
			continue
		}
		take := r
		if take.Scalar > allowed {
			take.Scalar = allowed
		}
		taken[take.Name] += take.Scalar
		out = out.Plus(take)
	}
	return out
}

// stripForCapabilities removes resources the framework did not opt
// into.
func stripForCapabilities(rs resource.Resources, caps Capabilities) resource.Resources {
	out := rs
	if !caps.RevocableResources {
		out = out.NonRevocable()
	}
	if !caps.SharedResources {
		out = out.NonShared()
	}
	if !caps.GPUResources {
		out = out.Without(common.GPUs)
	}
	return out
}

// dropHeldShared removes shared volumes the framework already holds on
// the agent, so a holder is not offered its own volume again.
func dropHeldShared(candidate, held resource.Resources) resource.Resources {
	shared := candidate.Shared()
	if shared.Empty() {
		return candidate
	}
	out := candidate
	for _, v := range shared {
		if _, holds := held.FindVolume(v.Disk.Persistence); holds {
			trimmed, err := out.Minus(v)
			if err == nil {
				out = trimmed
			}
		}
	}
	return out
}
