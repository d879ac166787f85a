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
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/atomic"
	"github.com/uber-go/tally"

	"github.com/granaryproject/granary/pkg/allocator/sorter"
	"github.com/granaryproject/granary/pkg/common"
	"github.com/granaryproject/granary/pkg/common/async"
	"github.com/granaryproject/granary/pkg/common/lifecycle"
	"github.com/granaryproject/granary/pkg/common/stringset"
	"github.com/granaryproject/granary/pkg/resource"
)

// hierarchical implements Allocator with two nested levels of DRF
// sorters: roles against the cluster, frameworks against their role.
type hierarchical struct {
	sync.Mutex

	config  *Config
	clock   clock.Clock
	metrics *Metrics

	offerCallback        OfferCallback
	inverseOfferCallback InverseOfferCallback

	// dispatcher delivers callbacks one at a time off the allocator
	// goroutine, so a slow consumer cannot stall a round.
	dispatcher *async.Dispatcher

	lifeCycle      lifecycle.LifeCycle
	allocateSignal chan struct{}

	agents map[string]*agentState
	// agentIDs preserves insertion order; rounds walk agents in this
	// order so equal-share picks stay deterministic.
	agentIDs []string

	frameworks map[string]*frameworkState
	roles      map[string]*roleState

	// whitelist is nil while every agent is admitted.
	whitelist stringset.StringSet

	// roleSorter orders roles against the full cluster. quotaRoleSorter
	// mirrors it for quota'ed roles only, against the non-revocable
	// cluster, and drives the quota stage. frameworkSorters holds one
	// inner sorter per tracked role.
	roleSorter       sorter.Sorter
	quotaRoleSorter  sorter.Sorter
	frameworkSorters map[string]sorter.Sorter

	// completedRounds is the number of allocation rounds finished since
	// start; filter expiry is measured against it.
	completedRounds uint64

	// allocating guards against overlapping rounds; rounds are already
	// serialized, so a hit only ever signals a scheduling bug.
	allocating atomic.Bool
}

// New returns a stopped allocator. A nil config uses defaults; a nil
// clk uses the wall clock.
func New(
	config *Config,
	parent tally.Scope,
	clk clock.Clock,
	offerCallback OfferCallback,
	inverseOfferCallback InverseOfferCallback) Allocator {

	if config == nil {
		config = DefaultConfig()
	} else {
		c := *config
		config = &c
		config.normalize()
	}
	if clk == nil {
		clk = clock.New()
	}

	return &hierarchical{
		config:  config,
		clock:   clk,
		metrics: NewMetrics(parent),

		offerCallback:        offerCallback,
		inverseOfferCallback: inverseOfferCallback,

		dispatcher:     async.NewDispatcher(),
		lifeCycle:      lifecycle.NewLifeCycle(),
		allocateSignal: make(chan struct{}, 1),

		agents:     make(map[string]*agentState),
		frameworks: make(map[string]*frameworkState),
		roles:      make(map[string]*roleState),

		roleSorter:       sorter.NewDRFSorter(config.FairnessExcludedResources),
		quotaRoleSorter:  sorter.NewDRFSorter(config.FairnessExcludedResources),
		frameworkSorters: make(map[string]sorter.Sorter),
	}
}

// Start launches the allocation loop and the callback dispatcher.
func (h *hierarchical) Start() error {
	if !h.lifeCycle.Start() {
		log.Warn("Allocator is already running, no action will be performed")
		return nil
	}

	h.dispatcher.Start()

	started := make(chan struct{})
	go h.run(started)
	<-started
	return nil
}

// Stop terminates the loop and waits for it to exit. Pending callback
// deliveries are dropped.
func (h *hierarchical) Stop() error {
	if !h.lifeCycle.Stop() {
		log.Warn("Allocator is already stopped, no action will be performed")
		return nil
	}
	h.lifeCycle.Wait()
	h.dispatcher.Stop()
	log.Info("Allocator stopped")
	return nil
}

func (h *hierarchical) run(started chan struct{}) {
	log.WithField("interval", h.config.AllocationInterval).
		Info("Starting allocation loop")

	ticker := h.clock.Ticker(h.config.AllocationInterval)
	defer ticker.Stop()
	close(started)

	for {
		select {
		case <-h.lifeCycle.StopCh():
			log.Info("Exiting allocation loop")
			h.lifeCycle.StopComplete()
			return
		case <-ticker.C:
			h.allocate()
		case <-h.allocateSignal:
			h.metrics.EventTriggeredRuns.Inc(1)
			h.allocate()
		}
	}
}

// trigger schedules at most one pending allocation round. Triggering
// while a round is already pending collapses into it.
func (h *hierarchical) trigger() {
	select {
	case h.allocateSignal <- struct{}{}:
	default:
	}
}

// ensureRole tracks the role, creating its framework sorter seeded with
// the current cluster total. New roles start inactive until a framework
// becomes eligible in them.
func (h *hierarchical) ensureRole(name string) *roleState {
	if role, ok := h.roles[name]; ok {
		return role
	}

	role := newRoleState(name)
	h.roles[name] = role

	fs := sorter.NewDRFSorter(h.config.FairnessExcludedResources)
	for _, agent := range h.agents {
		fs.AddTotal(agent.total)
	}
	h.frameworkSorters[name] = fs

	h.roleSorter.Add(name)
	h.roleSorter.Deactivate(name)
	return role
}

// maybeDropRole untracks the role once nothing justifies keeping it.
func (h *hierarchical) maybeDropRole(role *roleState) {
	if role.tracked() {
		return
	}
	delete(h.roles, role.name)
	delete(h.frameworkSorters, role.name)
	h.roleSorter.Remove(role.name)
	h.quotaRoleSorter.Remove(role.name)
}

// updateRoleActivity flips the role's visibility in the outer sorters
// based on whether any framework in it may receive offers.
func (h *hierarchical) updateRoleActivity(role *roleState) {
	active := false
	for id := range role.frameworks {
		if fw, ok := h.frameworks[id]; ok && fw.eligible() {
			active = true
			break
		}
	}
	if active {
		h.roleSorter.Activate(role.name)
		h.quotaRoleSorter.Activate(role.name)
	} else {
		h.roleSorter.Deactivate(role.name)
		h.quotaRoleSorter.Deactivate(role.name)
	}
}

// trackAllocated records a grant in every sorter level.
func (h *hierarchical) trackAllocated(role *roleState, frameworkID, agentID string, rs resource.Resources) {
	h.frameworkSorters[role.name].Allocated(frameworkID, agentID, rs)
	h.roleSorter.Allocated(role.name, agentID, rs)
	if role.hasQuota() {
		h.quotaRoleSorter.Allocated(role.name, agentID, rs.NonRevocable())
	}
}

// trackUnallocated records a return in every sorter level.
func (h *hierarchical) trackUnallocated(role *roleState, frameworkID, agentID string, rs resource.Resources) {
	fields := log.Fields{
		"role":         role.name,
		"framework_id": frameworkID,
		"agent_id":     agentID,
	}
	if err := h.frameworkSorters[role.name].Unallocated(frameworkID, agentID, rs); err != nil {
		log.WithFields(fields).WithError(err).Error("Framework sorter accounting mismatch")
	}
	if err := h.roleSorter.Unallocated(role.name, agentID, rs); err != nil {
		log.WithFields(fields).WithError(err).Error("Role sorter accounting mismatch")
	}
	if role.hasQuota() {
		if err := h.quotaRoleSorter.Unallocated(role.name, agentID, rs.NonRevocable()); err != nil {
			log.WithFields(fields).WithError(err).Error("Quota sorter accounting mismatch")
		}
	}
}

// AddFramework registers a framework and schedules a round.
func (h *hierarchical) AddFramework(
	info *FrameworkInfo,
	used map[string]resource.Resources,
	active bool) error {

	if info == nil || info.ID == "" || info.Role == "" {
		return errors.New("framework id and role are required")
	}

	h.Lock()
	defer h.Unlock()

	if _, ok := h.frameworks[info.ID]; ok {
		return errors.Wrapf(ErrFrameworkExists, "framework %s", info.ID)
	}

	role := h.ensureRole(info.Role)
	role.frameworks[info.ID] = true

	fw := newFrameworkState(info, active)
	h.frameworks[info.ID] = fw

	fs := h.frameworkSorters[role.name]
	fs.Add(info.ID)
	if !fw.eligible() {
		fs.Deactivate(info.ID)
	}

	// Resources the framework already holds, e.g. after a coordinator
	// failover.
	for agentID, rs := range used {
		agent, ok := h.agents[agentID]
		if !ok {
			log.WithField("framework_id", info.ID).
				WithField("agent_id", agentID).
				Warn("Ignoring used resources on unknown agent")
			continue
		}
		if !agent.unallocated().Contains(rs.NonShared()) {
			log.WithField("framework_id", info.ID).
				WithField("agent_id", agentID).
				Warn("Ignoring used resources exceeding agent availability")
			continue
		}
		agent.allocated[info.ID] = agent.allocated[info.ID].Add(rs)
		h.trackAllocated(role, info.ID, agentID, rs)
	}

	h.updateRoleActivity(role)

	log.WithField("framework_id", info.ID).
		WithField("role", info.Role).
		Info("Added framework")

	h.trigger()
	return nil
}

// RemoveFramework unregisters a framework and returns its holdings.
func (h *hierarchical) RemoveFramework(frameworkID string) error {
	h.Lock()
	defer h.Unlock()

	fw, ok := h.frameworks[frameworkID]
	if !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", frameworkID)
	}

	role := h.roles[fw.info.Role]
	fs := h.frameworkSorters[role.name]

	for agentID, rs := range fs.Allocation(frameworkID) {
		if agent, ok := h.agents[agentID]; ok {
			delete(agent.allocated, frameworkID)
		}
		h.trackUnallocated(role, frameworkID, agentID, rs)
	}
	fs.Remove(frameworkID)

	delete(role.frameworks, frameworkID)
	delete(h.frameworks, frameworkID)

	h.updateRoleActivity(role)
	h.maybeDropRole(role)

	log.WithField("framework_id", frameworkID).Info("Removed framework")
	return nil
}

// ActivateFramework resumes offers to the framework.
func (h *hierarchical) ActivateFramework(frameworkID string) error {
	h.Lock()
	defer h.Unlock()

	fw, ok := h.frameworks[frameworkID]
	if !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", frameworkID)
	}

	fw.active = true
	role := h.roles[fw.info.Role]
	if fw.eligible() {
		h.frameworkSorters[role.name].Activate(frameworkID)
	}
	h.updateRoleActivity(role)
	return nil
}

// DeactivateFramework hides the framework from sorters, keeping its
// allocation accounting. Its filters are dropped; a framework failing
// over should start from a clean slate.
func (h *hierarchical) DeactivateFramework(frameworkID string) error {
	h.Lock()
	defer h.Unlock()

	fw, ok := h.frameworks[frameworkID]
	if !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", frameworkID)
	}

	fw.active = false
	fw.clearFilters()

	role := h.roles[fw.info.Role]
	h.frameworkSorters[role.name].Deactivate(frameworkID)
	h.updateRoleActivity(role)
	return nil
}

// UpdateFramework replaces the framework's capabilities.
func (h *hierarchical) UpdateFramework(info *FrameworkInfo) error {
	if info == nil || info.ID == "" {
		return errors.New("framework id is required")
	}

	h.Lock()
	defer h.Unlock()

	fw, ok := h.frameworks[info.ID]
	if !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", info.ID)
	}
	if info.Role != "" && info.Role != fw.info.Role {
		return errors.Errorf("changing framework role from %s to %s is not supported",
			fw.info.Role, info.Role)
	}

	fw.info.Name = info.Name
	fw.info.Capabilities = info.Capabilities
	return nil
}

// AddAgent registers an agent and schedules a round.
func (h *hierarchical) AddAgent(info *AgentInfo, used map[string]resource.Resources) error {
	if info == nil || info.ID == "" {
		return errors.New("agent id is required")
	}

	h.Lock()
	defer h.Unlock()

	if _, ok := h.agents[info.ID]; ok {
		return errors.Wrapf(ErrAgentExists, "agent %s", info.ID)
	}

	agent := newAgentState(info)
	if h.whitelist != nil {
		agent.whitelisted = h.whitelist.Contains(agent.hostname)
	}
	h.agents[info.ID] = agent
	h.agentIDs = append(h.agentIDs, info.ID)

	h.roleSorter.AddTotal(agent.total)
	h.quotaRoleSorter.AddTotal(agent.total.NonRevocable())
	for _, fs := range h.frameworkSorters {
		fs.AddTotal(agent.total)
	}

	for frameworkID, rs := range used {
		fw, ok := h.frameworks[frameworkID]
		if !ok {
			log.WithField("agent_id", info.ID).
				WithField("framework_id", frameworkID).
				Warn("Ignoring used resources of unknown framework")
			continue
		}
		if !agent.unallocated().Contains(rs.NonShared()) {
			log.WithField("agent_id", info.ID).
				WithField("framework_id", frameworkID).
				Warn("Ignoring used resources exceeding agent availability")
			continue
		}
		agent.allocated[frameworkID] = agent.allocated[frameworkID].Add(rs)
		h.trackAllocated(h.roles[fw.info.Role], frameworkID, info.ID, rs)
	}

	log.WithField("agent_id", info.ID).
		WithField("hostname", info.Hostname).
		WithField("total", agent.total.String()).
		Info("Added agent")

	h.trigger()
	return nil
}

// RemoveAgent unregisters an agent. Holdings on it vanish with it.
func (h *hierarchical) RemoveAgent(agentID string) error {
	h.Lock()
	defer h.Unlock()

	agent, ok := h.agents[agentID]
	if !ok {
		return errors.Wrapf(ErrUnknownAgent, "agent %s", agentID)
	}

	for frameworkID, rs := range agent.allocated {
		fw, ok := h.frameworks[frameworkID]
		if !ok {
			continue
		}
		h.trackUnallocated(h.roles[fw.info.Role], frameworkID, agentID, rs)
	}

	h.roleSorter.RemoveTotal(agent.total)
	h.quotaRoleSorter.RemoveTotal(agent.total.NonRevocable())
	for _, fs := range h.frameworkSorters {
		fs.RemoveTotal(agent.total)
	}

	delete(h.agents, agentID)
	for i, id := range h.agentIDs {
		if id == agentID {
			h.agentIDs = append(h.agentIDs[:i], h.agentIDs[i+1:]...)
			break
		}
	}

	log.WithField("agent_id", agentID).Info("Removed agent")
	return nil
}

// UpdateAgent replaces the agent's revocable slice and schedules a
// round. The oversubscribed resources must all be tagged revocable.
func (h *hierarchical) UpdateAgent(agentID string, oversubscribed resource.Resources) error {
	for _, r := range oversubscribed {
		if !r.Revocable {
			return errors.Wrapf(resource.ErrInvalidOperation,
				"oversubscribed resource %s is not revocable", r.String())
		}
	}

	h.Lock()
	defer h.Unlock()

	agent, ok := h.agents[agentID]
	if !ok {
		return errors.Wrapf(ErrUnknownAgent, "agent %s", agentID)
	}

	oldTotal := agent.total
	agent.total = agent.total.NonRevocable().Add(oversubscribed)

	h.roleSorter.RemoveTotal(oldTotal)
	h.roleSorter.AddTotal(agent.total)
	for _, fs := range h.frameworkSorters {
		fs.RemoveTotal(oldTotal)
		fs.AddTotal(agent.total)
	}
	// The quota sorter total only tracks non-revocable resources, which
	// an oversubscription update leaves untouched.

	log.WithField("agent_id", agentID).
		WithField("oversubscribed", oversubscribed.String()).
		Info("Updated agent oversubscription")

	h.trigger()
	return nil
}

// UpdateUnavailability schedules or clears the agent's maintenance
// window and schedules a round so inverse offers go out.
func (h *hierarchical) UpdateUnavailability(agentID string, unavailability *Unavailability) error {
	h.Lock()
	defer h.Unlock()

	agent, ok := h.agents[agentID]
	if !ok {
		return errors.Wrapf(ErrUnknownAgent, "agent %s", agentID)
	}

	agent.unavailability = cloneUnavailability(unavailability)

	h.trigger()
	return nil
}

// UpdateWhitelist restricts offers to the listed hostnames. A nil
// whitelist admits every agent.
func (h *hierarchical) UpdateWhitelist(hostnames []string) {
	h.Lock()
	defer h.Unlock()

	if hostnames == nil {
		h.whitelist = nil
		for _, agent := range h.agents {
			agent.whitelisted = true
		}
		log.Info("Cleared agent whitelist")
		return
	}

	h.whitelist = stringset.FromSlice(hostnames)
	for _, agent := range h.agents {
		agent.whitelisted = h.whitelist.Contains(agent.hostname)
	}
	log.WithField("hostnames", hostnames).Info("Updated agent whitelist")
}

// RequestResources records a framework's hint. The allocator ignores
// it; fair ordering alone decides.
func (h *hierarchical) RequestResources(frameworkID string, requested resource.Resources) error {
	h.Lock()
	defer h.Unlock()

	if _, ok := h.frameworks[frameworkID]; !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", frameworkID)
	}

	log.WithField("framework_id", frameworkID).
		WithField("requested", requested.String()).
		Debug("Ignoring resource request")
	return nil
}

// UpdateAllocation applies in-place operations to resources the
// framework holds on the agent. Application is atomic.
func (h *hierarchical) UpdateAllocation(
	frameworkID, agentID string,
	consumed resource.Resources,
	ops []resource.Operation) error {

	h.Lock()
	defer h.Unlock()

	fw, ok := h.frameworks[frameworkID]
	if !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", frameworkID)
	}
	agent, ok := h.agents[agentID]
	if !ok {
		return errors.Wrapf(ErrUnknownAgent, "agent %s", agentID)
	}

	held := agent.allocated[frameworkID]
	if !held.Contains(consumed) {
		return errors.Wrapf(resource.ErrInsufficientResources,
			"framework %s does not hold %s on agent %s",
			frameworkID, consumed.String(), agentID)
	}

	for _, op := range ops {
		if op.Type == resource.OperationCreate &&
			op.Volume != nil && op.Volume.IsShared() &&
			!fw.info.Capabilities.SharedResources {
			return errors.Wrapf(ErrCapabilityMismatch,
				"framework %s cannot create shared volume", frameworkID)
		}
		if op.Type == resource.OperationDestroy && op.Volume != nil && op.Volume.IsShared() {
			for _, holder := range agent.holdsVolume(op.Volume.Disk.Persistence) {
				if holder != frameworkID {
					return errors.Wrapf(resource.ErrInvalidOperation,
						"shared volume %q still held by framework %s",
						op.Volume.Disk.Persistence, holder)
				}
			}
		}
	}

	updated, err := resource.ApplyOperations(consumed, ops)
	if err != nil {
		return err
	}

	newHeld, err := held.Subtract(consumed)
	if err != nil {
		return err
	}
	newTotal, err := agent.total.Subtract(consumed)
	if err != nil {
		return err
	}
	agent.allocated[frameworkID] = newHeld.Add(updated)
	agent.total = newTotal.Add(updated)

	role := h.roles[fw.info.Role]
	if err := h.frameworkSorters[role.name].Update(frameworkID, agentID, consumed, updated); err != nil {
		log.WithError(err).Error("Framework sorter accounting mismatch")
	}
	if err := h.roleSorter.Update(role.name, agentID, consumed, updated); err != nil {
		log.WithError(err).Error("Role sorter accounting mismatch")
	}
	if role.hasQuota() {
		if err := h.quotaRoleSorter.Update(
			role.name, agentID, consumed.NonRevocable(), updated.NonRevocable()); err != nil {
			log.WithError(err).Error("Quota sorter accounting mismatch")
		}
	}

	log.WithField("framework_id", frameworkID).
		WithField("agent_id", agentID).
		WithField("operations", len(ops)).
		Debug("Updated allocation")
	return nil
}

// UpdateAvailable applies in-place operations to the agent's free
// resources, for operator-driven reservations. Fails without state
// change if the free slice cannot cover the operations.
func (h *hierarchical) UpdateAvailable(agentID string, ops []resource.Operation) error {
	h.Lock()
	defer h.Unlock()

	agent, ok := h.agents[agentID]
	if !ok {
		return errors.Wrapf(ErrUnknownAgent, "agent %s", agentID)
	}

	free := agent.unallocated()
	updated, err := resource.ApplyOperations(free, ops)
	if err != nil {
		return err
	}

	agent.total = agent.total.SubtractClamped(free).Add(updated)

	log.WithField("agent_id", agentID).
		WithField("operations", len(ops)).
		Info("Updated available resources")
	return nil
}

// RecoverResources returns resources a framework no longer uses and
// optionally installs a decline filter. Recovery after the framework or
// agent is gone is a no-op, not an error; the triggering events race
// with removals by design of the callers.
func (h *hierarchical) RecoverResources(
	frameworkID, agentID string,
	recovered resource.Resources,
	filter *RefuseFilter) error {

	if recovered.Empty() {
		return nil
	}

	h.Lock()
	defer h.Unlock()

	fw, fwKnown := h.frameworks[frameworkID]
	agent, agentKnown := h.agents[agentID]

	if !fwKnown && !agentKnown {
		log.WithField("framework_id", frameworkID).
			WithField("agent_id", agentID).
			Warn("Ignoring recovery for unknown framework and agent")
		return nil
	}

	if agentKnown {
		held := agent.allocated[frameworkID]
		if !held.Contains(recovered) {
			return errors.Wrapf(resource.ErrInsufficientResources,
				"framework %s does not hold %s on agent %s",
				frameworkID, recovered.String(), agentID)
		}
		remaining, err := held.Subtract(recovered)
		if err != nil {
			return err
		}
		if remaining.Empty() {
			delete(agent.allocated, frameworkID)
		} else {
			agent.allocated[frameworkID] = remaining
		}
	}

	if fwKnown {
		if role, ok := h.roles[fw.info.Role]; ok {
			h.trackUnallocated(role, frameworkID, agentID, recovered)
		}
	}

	if fwKnown && filter != nil && filter.RefuseDuration > 0 {
		deadline := h.clock.Now().Add(filter.RefuseDuration)
		fw.installFilter(agentID, recovered, deadline)
		log.WithField("framework_id", frameworkID).
			WithField("agent_id", agentID).
			WithField("refuse_duration", filter.RefuseDuration).
			Debug("Installed decline filter")
		return nil
	}

	// A decline without a filter wants the resources back in play
	// immediately.
	h.trigger()
	return nil
}

// SuppressOffers stops offers to the framework until revived.
func (h *hierarchical) SuppressOffers(frameworkID string) error {
	h.Lock()
	defer h.Unlock()

	fw, ok := h.frameworks[frameworkID]
	if !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", frameworkID)
	}

	fw.suppressed = true
	role := h.roles[fw.info.Role]
	h.frameworkSorters[role.name].Deactivate(frameworkID)
	h.updateRoleActivity(role)

	log.WithField("framework_id", frameworkID).Info("Suppressed offers")
	return nil
}

// ReviveOffers drops the framework's filters and suppression and
// schedules a round. Reviving twice equals reviving once.
func (h *hierarchical) ReviveOffers(frameworkID string) error {
	h.Lock()
	defer h.Unlock()

	fw, ok := h.frameworks[frameworkID]
	if !ok {
		return errors.Wrapf(ErrUnknownFramework, "framework %s", frameworkID)
	}

	fw.suppressed = false
	fw.clearFilters()

	role := h.roles[fw.info.Role]
	if fw.eligible() {
		h.frameworkSorters[role.name].Activate(frameworkID)
	}
	h.updateRoleActivity(role)

	log.WithField("framework_id", frameworkID).Info("Revived offers")

	h.trigger()
	return nil
}

// SetQuota guarantees the role a resource vector across the cluster.
func (h *hierarchical) SetQuota(roleName string, guarantee resource.Resources) error {
	if roleName == "" || roleName == common.UnreservedRole {
		return errors.Errorf("invalid quota role %q", roleName)
	}
	q := guarantee.ScalarQuantities()
	if q.Empty() {
		return errors.New("quota guarantee is empty")
	}

	h.Lock()
	defer h.Unlock()

	if role, ok := h.roles[roleName]; ok && role.hasQuota() {
		return errors.Errorf("role %s already has a quota; remove it first", roleName)
	}

	// Feasibility: all guarantees together must fit the non-revocable
	// cluster. An empty cluster accepts any guarantee; quotas are
	// routinely configured before agents register, and an unsatisfied
	// guarantee is merely laid away.
	if len(h.agents) > 0 {
		clusterTotal := resource.Quantities{}
		for _, agent := range h.agents {
			clusterTotal.Add(agent.total.NonRevocable().ScalarQuantities())
		}
		committed := q.Clone()
		for _, other := range h.roles {
			if other.hasQuota() {
				committed.Add(other.guarantee)
			}
		}
		if !clusterTotal.Contains(committed) {
			return errors.Wrapf(ErrQuotaInfeasible,
				"guarantees %s exceed cluster total %s", committed, clusterTotal)
		}
	}

	role := h.ensureRole(roleName)
	role.guarantee = q

	h.quotaRoleSorter.Add(roleName)
	h.quotaRoleSorter.UpdateWeight(roleName, role.weight)

	// Seed the quota sorter with the role's standing allocations.
	fs := h.frameworkSorters[roleName]
	for frameworkID := range role.frameworks {
		for agentID, rs := range fs.Allocation(frameworkID) {
			h.quotaRoleSorter.Allocated(roleName, agentID, rs.NonRevocable())
		}
	}
	h.updateRoleActivity(role)

	log.WithField("role", roleName).
		WithField("guarantee", q.String()).
		Info("Set quota")
	return nil
}

// RemoveQuota drops the role's guarantee.
func (h *hierarchical) RemoveQuota(roleName string) error {
	h.Lock()
	defer h.Unlock()

	role, ok := h.roles[roleName]
	if !ok || !role.hasQuota() {
		return errors.Wrapf(ErrUnknownRole, "role %s has no quota", roleName)
	}

	role.guarantee = nil
	h.quotaRoleSorter.Remove(roleName)
	h.maybeDropRole(role)

	log.WithField("role", roleName).Info("Removed quota")
	return nil
}

// UpdateWeights adjusts role weights. The new ordering applies from the
// next round on; a round is scheduled right away when a reweighted role
// has frameworks which could receive offers.
func (h *hierarchical) UpdateWeights(weights map[string]float64) {
	h.Lock()
	defer h.Unlock()

	affectsAllocation := false
	for roleName, weight := range weights {
		if weight <= 0 {
			log.WithField("role", roleName).
				WithField("weight", weight).
				Warn("Ignoring non-positive role weight")
			continue
		}

		role := h.ensureRole(roleName)
		role.weight = weight
		role.explicitWeight = true

		h.roleSorter.UpdateWeight(roleName, weight)
		h.quotaRoleSorter.UpdateWeight(roleName, weight)

		for id := range role.frameworks {
			if fw, ok := h.frameworks[id]; ok && fw.eligible() {
				affectsAllocation = true
				break
			}
		}

		log.WithField("role", roleName).
			WithField("weight", weight).
			Info("Updated role weight")
	}

	if affectsAllocation {
		h.trigger()
	}
}
