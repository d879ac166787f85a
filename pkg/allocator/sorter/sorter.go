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

package sorter

import (
	"github.com/granaryproject/granary/pkg/resource"
)

// Sorter orders a set of named clients by ascending weighted dominant
// share against a shared total. It keeps a per-agent breakdown of every
// client's allocation so a grant can later be returned agent by agent.
// Implementations are not thread safe; the owner serializes access.
type Sorter interface {
	// Add registers a client with weight 1. Adding an existing client is
	// a no-op. New clients start active.
	Add(client string)

	// Remove drops the client and its allocation accounting.
	Remove(client string)

	// Contains returns whether the client is registered.
	Contains(client string) bool

	// Count returns the number of registered clients.
	Count() int

	// Activate makes the client eligible for Sort output.
	Activate(client string)

	// Deactivate hides the client from Sort output without touching its
	// allocation accounting.
	Deactivate(client string)

	// Active returns whether the client is eligible for Sort output.
	Active(client string) bool

	// UpdateWeight sets the client's fair-share weight.
	UpdateWeight(client string, weight float64)

	// Allocated records resources granted to the client on an agent.
	Allocated(client, agentID string, resources resource.Resources)

	// Unallocated returns previously granted resources on an agent.
	Unallocated(client, agentID string, resources resource.Resources) error

	// Update replaces part of the client's allocation on an agent,
	// keeping total quantities intact. Used when in-place operations
	// change resource tags.
	Update(client, agentID string, oldAllocated, newAllocated resource.Resources) error

	// Allocation returns the client's allocation, keyed by agent.
	Allocation(client string) map[string]resource.Resources

	// AllocationQuantities returns the client's total allocation as
	// tag-free quantities.
	AllocationQuantities(client string) resource.Quantities

	// AddTotal grows the shared total the shares are computed against.
	AddTotal(resources resource.Resources)

	// RemoveTotal shrinks the shared total.
	RemoveTotal(resources resource.Resources)

	// DominantShare returns the client's weighted dominant share.
	DominantShare(client string) float64

	// Sort returns the active clients in ascending weighted dominant
	// share order, ties broken by insertion order then name.
	Sort() []string
}
