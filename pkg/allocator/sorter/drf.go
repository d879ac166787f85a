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
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/granaryproject/granary/pkg/common/util"
	"github.com/granaryproject/granary/pkg/resource"
)

// drfClient is the sorter's book-keeping for one client.
type drfClient struct {
	name   string
	weight float64
	active bool

	// seq is the insertion sequence number; it breaks share ties so
	// that equally-sharing clients round-robin over time.
	seq uint64

	// allocations keeps the full tagged grant per agent; quantities is
	// the tag-free aggregate used for share computation.
	allocations map[string]resource.Resources
	quantities  resource.Quantities
}

// drfSorter orders clients by weighted dominant share. Resource kinds in
// the exclusion set never drive the dominant share, although their
// allocation is still tracked.
type drfSorter struct {
	clients    map[string]*drfClient
	total      resource.Quantities
	exclusions map[string]bool
	nextSeq    uint64
}

// NewDRFSorter returns a sorter implementing dominant resource fairness.
// Resource kinds named in excludedFromFairness are left out of dominant
// share computation.
func NewDRFSorter(excludedFromFairness []string) Sorter {
	exclusions := make(map[string]bool, len(excludedFromFairness))
	for _, name := range excludedFromFairness {
		exclusions[name] = true
	}
	return &drfSorter{
		clients:    make(map[string]*drfClient),
		total:      resource.Quantities{},
		exclusions: exclusions,
	}
}

func (s *drfSorter) Add(client string) {
	if _, ok := s.clients[client]; ok {
		return
	}
	s.nextSeq++
	s.clients[client] = &drfClient{
		name:        client,
		weight:      1.0,
		active:      true,
		seq:         s.nextSeq,
		allocations: make(map[string]resource.Resources),
		quantities:  resource.Quantities{},
	}
}

func (s *drfSorter) Remove(client string) {
	delete(s.clients, client)
}

func (s *drfSorter) Contains(client string) bool {
	_, ok := s.clients[client]
	return ok
}

func (s *drfSorter) Count() int {
	return len(s.clients)
}

func (s *drfSorter) Activate(client string) {
	if c, ok := s.clients[client]; ok {
		c.active = true
	}
}

func (s *drfSorter) Deactivate(client string) {
	if c, ok := s.clients[client]; ok {
		c.active = false
	}
}

func (s *drfSorter) Active(client string) bool {
	c, ok := s.clients[client]
	return ok && c.active
}

func (s *drfSorter) UpdateWeight(client string, weight float64) {
	c, ok := s.clients[client]
	if !ok {
		return
	}
	if weight <= 0 {
		log.WithField("client", client).
			WithField("weight", weight).
			Warn("Ignoring non-positive weight")
		return
	}
	c.weight = weight
}

func (s *drfSorter) Allocated(client, agentID string, resources resource.Resources) {
	c, ok := s.clients[client]
	if !ok {
		return
	}
	c.allocations[agentID] = c.allocations[agentID].Add(resources)
	c.quantities.Add(resources.ScalarQuantities())
}

func (s *drfSorter) Unallocated(client, agentID string, resources resource.Resources) error {
	c, ok := s.clients[client]
	if !ok {
		return nil
	}
	remaining, err := c.allocations[agentID].Subtract(resources)
	if err != nil {
		return err
	}
	if remaining.Empty() {
		delete(c.allocations, agentID)
	} else {
		c.allocations[agentID] = remaining
	}
	c.quantities.SubtractClamp(resources.ScalarQuantities())
	return nil
}

func (s *drfSorter) Update(client, agentID string, oldAllocated, newAllocated resource.Resources) error {
	c, ok := s.clients[client]
	if !ok {
		return nil
	}
	updated, err := c.allocations[agentID].Subtract(oldAllocated)
	if err != nil {
		return err
	}
	c.allocations[agentID] = updated.Add(newAllocated)
	c.quantities.SubtractClamp(oldAllocated.ScalarQuantities())
	c.quantities.Add(newAllocated.ScalarQuantities())
	return nil
}

func (s *drfSorter) Allocation(client string) map[string]resource.Resources {
	c, ok := s.clients[client]
	if !ok {
		return nil
	}
	out := make(map[string]resource.Resources, len(c.allocations))
	for agentID, rs := range c.allocations {
		out[agentID] = rs.Clone()
	}
	return out
}

func (s *drfSorter) AllocationQuantities(client string) resource.Quantities {
	c, ok := s.clients[client]
	if !ok {
		return resource.Quantities{}
	}
	return c.quantities.Clone()
}

func (s *drfSorter) AddTotal(resources resource.Resources) {
	s.total.Add(resources.ScalarQuantities())
}

func (s *drfSorter) RemoveTotal(resources resource.Resources) {
	s.total.SubtractClamp(resources.ScalarQuantities())
}

// DominantShare returns allocation divided by total for the client's
// dominant resource kind, scaled down by the client's weight.
func (s *drfSorter) DominantShare(client string) float64 {
	c, ok := s.clients[client]
	if !ok {
		return 0
	}
	return s.dominantShare(c)
}

func (s *drfSorter) dominantShare(c *drfClient) float64 {
	var share float64
	for kind, allocated := range c.quantities {
		if s.exclusions[kind] {
			continue
		}
		total := s.total[kind]
		if total < util.ResourceEpsilon {
			continue
		}
		if frac := allocated / total; frac > share {
			share = frac
		}
	}
	return share / c.weight
}

func (s *drfSorter) Sort() []string {
	active := make([]*drfClient, 0, len(s.clients))
	for _, c := range s.clients {
		if c.active {
			active = append(active, c)
		}
	}

	shares := make(map[string]float64, len(active))
	for _, c := range active {
		shares[c.name] = s.dominantShare(c)
	}

	sort.Slice(active, func(i, j int) bool {
		si, sj := shares[active[i].name], shares[active[j].name]
		if !util.Equal(si, sj) {
			return si < sj
		}
		if active[i].seq != active[j].seq {
			return active[i].seq < active[j].seq
		}
		return active[i].name < active[j].name
	})

	out := make([]string, 0, len(active))
	for _, c := range active {
		out = append(out, c.name)
	}
	return out
}
