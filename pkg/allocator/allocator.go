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

// Package allocator decides, round by round, which subset of every
// agent's free resources to offer to which framework. Frameworks are
// grouped into weighted roles; ordering inside and across roles follows
// dominant resource fairness, with per-role quota guarantees satisfied
// first. The allocator only produces logical decisions; delivering them
// to agents and frameworks is the caller's business.
package allocator

import (
	"time"

	"github.com/granaryproject/granary/pkg/resource"
)

// Unavailability is a maintenance window on an agent. A zero Duration
// means the window never ends.
type Unavailability struct {
	Start    time.Time
	Duration time.Duration
}

// AgentInfo describes an agent joining the cluster. Static reservations
// are encoded directly in Total via resource role tags.
type AgentInfo struct {
	ID             string
	Hostname       string
	Total          resource.Resources
	Unavailability *Unavailability
}

// Capabilities is the set of offer features a framework opted into.
type Capabilities struct {
	// RevocableResources permits revocable (oversubscribed) resources
	// in offers.
	RevocableResources bool
	// GPUResources permits gpus in offers.
	GPUResources bool
	// SharedResources permits shared persistent volumes in offers.
	SharedResources bool
}

// FrameworkInfo describes a framework registering with the allocator.
type FrameworkInfo struct {
	ID           string
	Name         string
	Role         string
	Capabilities Capabilities
}

// Offer is a tentative grant of a slice of one agent to one framework.
type Offer struct {
	ID        string
	AgentID   string
	Hostname  string
	Resources resource.Resources
}

// InverseOffer asks a framework to release its holdings on an agent
// which is going unavailable.
type InverseOffer struct {
	ID             string
	AgentID        string
	Hostname       string
	Unavailability Unavailability
}

// OfferCallback receives one framework's offers from a round. The
// payload is a value copy; the allocator already considers the
// resources allocated.
type OfferCallback func(frameworkID string, offers []*Offer)

// InverseOfferCallback receives one framework's inverse offers from a
// round.
type InverseOfferCallback func(frameworkID string, offers []*InverseOffer)

// RefuseFilter is a framework's request, attached to a decline, to not
// see similar offers again for a while.
type RefuseFilter struct {
	RefuseDuration time.Duration
}

// Allocator is the hierarchical fair-share allocator. All methods are
// serialized with respect to each other and to allocation rounds; a
// mutation's error is returned synchronously and implies no state
// change.
type Allocator interface {
	// Start launches the periodic allocation loop.
	Start() error

	// Stop terminates the loop and waits for it to exit.
	Stop() error

	// AddFramework registers a framework, optionally with resources it
	// already holds (after a failover), and schedules a round.
	AddFramework(info *FrameworkInfo, used map[string]resource.Resources, active bool) error

	// RemoveFramework unregisters a framework and returns everything it
	// held to the pool.
	RemoveFramework(frameworkID string) error

	// ActivateFramework resumes offers to a deactivated framework.
	ActivateFramework(frameworkID string) error

	// DeactivateFramework stops offers to a framework without touching
	// its allocation accounting.
	DeactivateFramework(frameworkID string) error

	// UpdateFramework replaces a framework's capabilities. Changing the
	// role is not supported.
	UpdateFramework(info *FrameworkInfo) error

	// AddAgent registers an agent, optionally with per-framework
	// resources already in use on it, and schedules a round.
	AddAgent(info *AgentInfo, used map[string]resource.Resources) error

	// RemoveAgent unregisters an agent.
	RemoveAgent(agentID string) error

	// UpdateAgent replaces the agent's oversubscribed (revocable) slice
	// and schedules a round.
	UpdateAgent(agentID string, oversubscribed resource.Resources) error

	// UpdateUnavailability schedules, moves or clears the agent's
	// maintenance window and schedules a round.
	UpdateUnavailability(agentID string, unavailability *Unavailability) error

	// UpdateWhitelist restricts offers to agents whose hostname is
	// listed. A nil whitelist admits every agent.
	UpdateWhitelist(hostnames []string)

	// RequestResources records a framework's resource hint. Advisory.
	RequestResources(frameworkID string, resources resource.Resources) error

	// UpdateAllocation applies in-place operations to resources the
	// framework holds on the agent.
	UpdateAllocation(frameworkID, agentID string, consumed resource.Resources,
		ops []resource.Operation) error

	// UpdateAvailable applies in-place operations to the agent's free
	// resources, for operator-driven reservations.
	UpdateAvailable(agentID string, ops []resource.Operation) error

	// RecoverResources returns declined or freed resources to the pool,
	// optionally installing a decline filter. A recovery without a
	// filter schedules a round.
	RecoverResources(frameworkID, agentID string, recovered resource.Resources,
		filter *RefuseFilter) error

	// SuppressOffers stops offers to the framework until revived.
	SuppressOffers(frameworkID string) error

	// ReviveOffers clears the framework's filters and suppression and
	// schedules a round. Revival is idempotent.
	ReviveOffers(frameworkID string) error

	// SetQuota guarantees the role a resource vector across the cluster.
	SetQuota(role string, guarantee resource.Resources) error

	// RemoveQuota drops the role's guarantee.
	RemoveQuota(role string) error

	// UpdateWeights adjusts role weights, creating weight entries for
	// roles not seen yet. Takes effect on the next round.
	UpdateWeights(weights map[string]float64)
}
