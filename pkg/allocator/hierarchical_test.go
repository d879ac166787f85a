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
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally"

	"github.com/granaryproject/granary/pkg/resource"
)

const _interval = 1 * time.Second

type offerEvent struct {
	frameworkID string
	offers      []*Offer
}

type inverseEvent struct {
	frameworkID string
	offers      []*InverseOffer
}

type HierarchicalTestSuite struct {
	suite.Suite

	clock     *clock.Mock
	alloc     *hierarchical
	offerCh   chan *offerEvent
	inverseCh chan *inverseEvent
}

func TestHierarchicalTestSuite(t *testing.T) {
	suite.Run(t, new(HierarchicalTestSuite))
}

func (suite *HierarchicalTestSuite) SetupTest() {
	suite.setup(&Config{AllocationInterval: _interval})
}

func (suite *HierarchicalTestSuite) setup(config *Config) {
	suite.clock = clock.NewMock()
	suite.offerCh = make(chan *offerEvent, 64)
	suite.inverseCh = make(chan *inverseEvent, 64)

	a := New(
		config,
		tally.NoopScope,
		suite.clock,
		func(frameworkID string, offers []*Offer) {
			suite.offerCh <- &offerEvent{frameworkID: frameworkID, offers: offers}
		},
		func(frameworkID string, offers []*InverseOffer) {
			suite.inverseCh <- &inverseEvent{frameworkID: frameworkID, offers: offers}
		})
	suite.alloc = a.(*hierarchical)

	// Tests drive rounds directly for determinism; only the callback
	// dispatcher runs.
	suite.alloc.dispatcher.Start()
}

func (suite *HierarchicalTestSuite) TearDownTest() {
	suite.alloc.dispatcher.Stop()
}

// allocate runs one round and returns the resulting offers by
// framework.
func (suite *HierarchicalTestSuite) allocate() map[string][]*Offer {
	suite.alloc.allocate()
	suite.alloc.dispatcher.WaitUntilProcessed()

	out := make(map[string][]*Offer)
	for {
		select {
		case ev := <-suite.offerCh:
			out[ev.frameworkID] = append(out[ev.frameworkID], ev.offers...)
		default:
			return out
		}
	}
}

// drainInverse returns the inverse offers delivered so far, by
// framework.
func (suite *HierarchicalTestSuite) drainInverse() map[string][]*InverseOffer {
	out := make(map[string][]*InverseOffer)
	for {
		select {
		case ev := <-suite.inverseCh:
			out[ev.frameworkID] = append(out[ev.frameworkID], ev.offers...)
		default:
			return out
		}
	}
}

func (suite *HierarchicalTestSuite) addAgent(id, resources string) {
	suite.NoError(suite.alloc.AddAgent(&AgentInfo{
		ID:       id,
		Hostname: "host-" + id,
		Total:    resource.MustParse(resources),
	}, nil))
}

func (suite *HierarchicalTestSuite) addFramework(id, role string, caps Capabilities) {
	suite.NoError(suite.alloc.AddFramework(&FrameworkInfo{
		ID:           id,
		Role:         role,
		Capabilities: caps,
	}, nil, true))
}

func sumOffers(offers []*Offer) resource.Resources {
	var out resource.Resources
	for _, o := range offers {
		out = out.Add(o.Resources)
	}
	return out
}

// checkConservation verifies allocated + unallocated = total on every
// agent.
func (suite *HierarchicalTestSuite) checkConservation() {
	for id, agent := range suite.alloc.agents {
		total := agent.total.ScalarQuantities()
		sum := agent.allocatedTotal().Add(agent.unallocated()).ScalarQuantities()
		for kind, v := range total {
			suite.InDelta(v, sum[kind], 1e-6, "agent %s kind %s", id, kind)
		}
		for kind, v := range sum {
			suite.InDelta(v, total[kind], 1e-6, "agent %s kind %s", id, kind)
		}
	}
}

// Scenario: unreserved DRF ordering across two roles and a growing
// cluster.
func (suite *HierarchicalTestSuite) TestUnreservedDRF() {
	suite.addAgent("a1", "cpus:2;mem:1024")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:2;mem:1024"), sumOffers(offers["f1"]))

	suite.addFramework("f2", "r2", Capabilities{})
	suite.addAgent("a2", "cpus:1;mem:512")

	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f2"]))

	suite.addAgent("a3", "cpus:3;mem:2048")

	// r2's share is still the lowest.
	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:3;mem:2048"), sumOffers(offers["f2"]))

	suite.addFramework("f3", "r1", Capabilities{})
	suite.addAgent("a4", "cpus:4;mem:4096")

	// r1 is now poorest, and f3 is its poorest framework.
	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:4;mem:4096"), sumOffers(offers["f3"]))

	suite.checkConservation()
}

// Scenario: statically reserved resources only go to frameworks in the
// reservation role.
func (suite *HierarchicalTestSuite) TestReservationRouting() {
	suite.addAgent("a1", "cpus(r1):2;cpus:2")
	suite.addFramework("f1", "r2", Capabilities{})

	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:2"), sumOffers(offers["f1"]))

	suite.addFramework("f2", "r1", Capabilities{})

	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus(r1):2"), sumOffers(offers["f2"]))

	suite.checkConservation()
}

// Scenario: a decline filter of two allocation intervals blocks exactly
// two rounds.
func (suite *HierarchicalTestSuite) TestOfferFilter() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	granted := sumOffers(offers["f1"])
	suite.Equal(resource.MustParse("cpus:1;mem:512"), granted)

	suite.NoError(suite.alloc.RecoverResources("f1", "a1", granted,
		&RefuseFilter{RefuseDuration: 2 * _interval}))

	suite.clock.Add(_interval)
	suite.Empty(suite.allocate())

	suite.clock.Add(_interval)
	suite.Empty(suite.allocate())

	suite.clock.Add(_interval)
	offers = suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))
}

// Scenario: a refuse timeout shorter than the allocation interval still
// blocks the next round, then drops.
func (suite *HierarchicalTestSuite) TestSmallOfferFilterTimeout() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	granted := sumOffers(offers["f1"])

	suite.NoError(suite.alloc.RecoverResources("f1", "a1", granted,
		&RefuseFilter{RefuseDuration: _interval / 2}))

	// The timeout elapses before the next round; the filter must still
	// hold for that round.
	suite.clock.Add(_interval)
	suite.Empty(suite.allocate())

	// One full round has completed after expiry; the filter is gone.
	suite.clock.Add(_interval)
	offers = suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))
}

// Scenario: quota lays away resources a non-quota role may not touch.
func (suite *HierarchicalTestSuite) TestQuotaShelter() {
	suite.addFramework("f1", "q", Capabilities{})
	suite.addFramework("f2", "n", Capabilities{})
	suite.NoError(suite.alloc.SetQuota("q", resource.MustParse("cpus:2;mem:1024")))

	suite.addAgent("a1", "cpus:1;mem:512")
	offers := suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))

	suite.addAgent("a2", "cpus:1;mem:512")
	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))

	// f1 declines agent a2 with a long filter. The freed resources are
	// laid away for q's guarantee; n must not see them.
	suite.NoError(suite.alloc.RecoverResources("f1", "a2",
		resource.MustParse("cpus:1;mem:512"),
		&RefuseFilter{RefuseDuration: 100 * _interval}))

	suite.clock.Add(_interval)
	suite.Empty(suite.allocate())
	suite.clock.Add(_interval)
	suite.Empty(suite.allocate())

	// Once the filter is gone, the laid-away resources flow back to q.
	suite.clock.Add(200 * _interval)
	suite.Empty(suite.allocate())
	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))

	suite.checkConservation()
}

// Scenario: weights 1:2:3 across six identical agents settle at one,
// two and three agents respectively.
func (suite *HierarchicalTestSuite) TestWeightedShares() {
	suite.alloc.UpdateWeights(map[string]float64{"r1": 1, "r2": 2, "r3": 3})
	suite.addFramework("f1", "r1", Capabilities{})
	suite.addFramework("f2", "r2", Capabilities{})
	suite.addFramework("f3", "r3", Capabilities{})

	for i := 1; i <= 6; i++ {
		suite.addAgent("a"+string(rune('0'+i)), "cpus:2;mem:1024")
	}

	offers := suite.allocate()
	suite.Len(offers["f1"], 1)
	suite.Len(offers["f2"], 2)
	suite.Len(offers["f3"], 3)

	// Nothing is left over afterwards.
	suite.Empty(suite.allocate())
	suite.checkConservation()
}

// Scenario: oversubscription updates only offer the revocable
// increment.
func (suite *HierarchicalTestSuite) TestOversubscription() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{RevocableResources: true})

	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))

	suite.NoError(suite.alloc.UpdateAgent("a1",
		resource.Resources{resource.NewRevocableScalar("cpus", 10)}))
	offers = suite.allocate()
	suite.Equal(10.0, sumOffers(offers["f1"]).Revocable().Quantity("cpus"))

	suite.NoError(suite.alloc.UpdateAgent("a1",
		resource.Resources{resource.NewRevocableScalar("cpus", 12)}))
	offers = suite.allocate()
	suite.Equal(2.0, sumOffers(offers["f1"]).Revocable().Quantity("cpus"))

	// Shrinking below what is allocated leaves nothing to offer.
	suite.NoError(suite.alloc.UpdateAgent("a1",
		resource.Resources{resource.NewRevocableScalar("cpus", 5)}))
	suite.Empty(suite.allocate())
}

// Revocable resources require the opt-in capability.
func (suite *HierarchicalTestSuite) TestRevocableRequiresCapability() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))

	suite.NoError(suite.alloc.UpdateAgent("a1",
		resource.Resources{resource.NewRevocableScalar("cpus", 10)}))

	// Without the capability the revocable slice is never offered.
	suite.Empty(suite.allocate())
}

// GPUs only go to frameworks with the gpu capability.
func (suite *HierarchicalTestSuite) TestGPURequiresCapability() {
	suite.addAgent("a1", "cpus:1;mem:512;gpus:2")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	granted := sumOffers(offers["f1"])
	suite.Equal(0.0, granted.Quantity("gpus"))
	suite.Equal(1.0, granted.Quantity("cpus"))

	suite.NoError(suite.alloc.RecoverResources("f1", "a1", granted, nil))
	suite.NoError(suite.alloc.RemoveFramework("f1"))

	suite.addFramework("f2", "r1", Capabilities{GPUResources: true})
	offers = suite.allocate()
	suite.Equal(2.0, sumOffers(offers["f2"]).Quantity("gpus"))
}

// Tiny slices below the allocatable threshold are never offered.
func (suite *HierarchicalTestSuite) TestAllocatableThreshold() {
	suite.addFramework("f1", "r1", Capabilities{})

	suite.addAgent("a1", "cpus:0.005;mem:16")
	suite.Empty(suite.allocate())

	// Enough cpus alone clears the bar.
	suite.addAgent("a2", "cpus:0.01;mem:16")
	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:0.01;mem:16"), sumOffers(offers["f1"]))

	// Enough mem alone clears the bar too.
	suite.addAgent("a3", "cpus:0.005;mem:32")
	offers = suite.allocate()
	suite.Equal(resource.MustParse("cpus:0.005;mem:32"), sumOffers(offers["f1"]))
}

// Suppress stops offers; revive restores them and is idempotent.
func (suite *HierarchicalTestSuite) TestSuppressAndRevive() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	granted := sumOffers(offers["f1"])

	suite.NoError(suite.alloc.RecoverResources("f1", "a1", granted, nil))
	suite.NoError(suite.alloc.SuppressOffers("f1"))
	suite.Empty(suite.allocate())

	suite.NoError(suite.alloc.ReviveOffers("f1"))
	suite.NoError(suite.alloc.ReviveOffers("f1"))

	offers = suite.allocate()
	suite.Equal(granted, sumOffers(offers["f1"]))

	// The double revive produced exactly one allocation's worth.
	suite.Empty(suite.allocate())
}

// Revive also drops standing decline filters.
func (suite *HierarchicalTestSuite) TestReviveClearsFilters() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	granted := sumOffers(offers["f1"])

	suite.NoError(suite.alloc.RecoverResources("f1", "a1", granted,
		&RefuseFilter{RefuseDuration: 100 * _interval}))
	suite.Empty(suite.allocate())

	suite.NoError(suite.alloc.ReviveOffers("f1"))
	offers = suite.allocate()
	suite.Equal(granted, sumOffers(offers["f1"]))
}

// Deactivation stops offers to a framework; reactivation resumes them.
func (suite *HierarchicalTestSuite) TestDeactivateAndReactivate() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	granted := sumOffers(offers["f1"])

	suite.NoError(suite.alloc.RecoverResources("f1", "a1", granted, nil))
	suite.NoError(suite.alloc.DeactivateFramework("f1"))
	suite.Empty(suite.allocate())

	suite.NoError(suite.alloc.ActivateFramework("f1"))
	offers = suite.allocate()
	suite.Equal(granted, sumOffers(offers["f1"]))
}

// A whitelist restricts offers to the named hostnames.
func (suite *HierarchicalTestSuite) TestWhitelist() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	suite.alloc.UpdateWhitelist([]string{"elsewhere"})
	suite.Empty(suite.allocate())

	suite.alloc.UpdateWhitelist([]string{"elsewhere", "host-a1"})
	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))

	// Clearing the whitelist admits everyone again.
	suite.NoError(suite.alloc.RecoverResources("f1", "a1",
		sumOffers(offers["f1"]), nil))
	suite.alloc.UpdateWhitelist(nil)
	offers = suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))
}

// Frameworks holding resources on an agent going into maintenance
// receive inverse offers.
func (suite *HierarchicalTestSuite) TestMaintenanceInverseOffers() {
	suite.addAgent("a1", "cpus:2;mem:1024")
	suite.addFramework("f1", "r1", Capabilities{})
	suite.addFramework("f2", "r2", Capabilities{})

	offers := suite.allocate()
	suite.Len(offers, 1)
	suite.NotEmpty(offers["f1"])

	start := suite.clock.Now().Add(10 * time.Hour)
	suite.NoError(suite.alloc.UpdateUnavailability("a1", &Unavailability{Start: start}))

	suite.allocate()
	inverse := suite.drainInverse()
	suite.Len(inverse, 1)
	suite.Len(inverse["f1"], 1)
	suite.Equal("a1", inverse["f1"][0].AgentID)
	suite.Equal(start, inverse["f1"][0].Unavailability.Start)

	// Clearing the window stops the inverse offers.
	suite.NoError(suite.alloc.UpdateUnavailability("a1", nil))
	suite.allocate()
	suite.Empty(suite.drainInverse())
}

// An agent inside its maintenance window stops producing offers.
func (suite *HierarchicalTestSuite) TestNoOffersDuringMaintenance() {
	suite.addAgent("a1", "cpus:1;mem:512")
	suite.addFramework("f1", "r1", Capabilities{})

	suite.NoError(suite.alloc.UpdateUnavailability("a1", &Unavailability{
		Start: suite.clock.Now().Add(-time.Hour),
	}))
	suite.Empty(suite.allocate())

	// A window that already ended admits offers again.
	suite.NoError(suite.alloc.UpdateUnavailability("a1", &Unavailability{
		Start:    suite.clock.Now().Add(-2 * time.Hour),
		Duration: time.Hour,
	}))
	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))
}

// Quota'ed roles with no frameworks do not lay away headroom.
func (suite *HierarchicalTestSuite) TestQuotaAbsentFramework() {
	suite.addFramework("f1", "n", Capabilities{})
	suite.NoError(suite.alloc.SetQuota("q", resource.MustParse("cpus:2;mem:1024")))

	suite.addAgent("a1", "cpus:2;mem:1024")
	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:2;mem:1024"), sumOffers(offers["f1"]))
}

// Removing a quota releases its laid-away headroom.
func (suite *HierarchicalTestSuite) TestRemoveQuota() {
	suite.addFramework("f1", "q", Capabilities{})
	suite.addFramework("f2", "n", Capabilities{})
	suite.NoError(suite.alloc.SetQuota("q", resource.MustParse("cpus:4;mem:2048")))

	suite.addAgent("a1", "cpus:1;mem:512")
	offers := suite.allocate()
	granted := sumOffers(offers["f1"])
	suite.Equal(resource.MustParse("cpus:1;mem:512"), granted)

	suite.NoError(suite.alloc.RecoverResources("f1", "a1", granted,
		&RefuseFilter{RefuseDuration: 100 * _interval}))

	// Laid away for q; n sees nothing.
	suite.Empty(suite.allocate())

	suite.NoError(suite.alloc.RemoveQuota("q"))
	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f2"]))
}

// A guarantee that cannot fit the cluster is rejected.
func (suite *HierarchicalTestSuite) TestQuotaInfeasible() {
	suite.addAgent("a1", "cpus:2;mem:1024")

	err := suite.alloc.SetQuota("q", resource.MustParse("cpus:4"))
	suite.Error(err)
	suite.Equal(ErrQuotaInfeasible, errors.Cause(err))

	// Guarantees are checked together, not one by one.
	suite.NoError(suite.alloc.SetQuota("q", resource.MustParse("cpus:1.5")))
	err = suite.alloc.SetQuota("p", resource.MustParse("cpus:1"))
	suite.Error(err)
	suite.Equal(ErrQuotaInfeasible, errors.Cause(err))
}

// Quota counts standing reservations against the guarantee: once the
// role's reservation covers it, nothing extra is laid away.
func (suite *HierarchicalTestSuite) TestQuotaCountsReservations() {
	suite.addFramework("f1", "q", Capabilities{})
	suite.addFramework("f2", "n", Capabilities{})
	suite.NoError(suite.alloc.SetQuota("q", resource.MustParse("cpus:2")))

	suite.addAgent("a1", "cpus(q):2;cpus:2;mem:1024")

	// Coarse grained: the quota framework takes the whole agent first.
	offers := suite.allocate()
	suite.Len(offers, 1)
	granted := sumOffers(offers["f1"])
	suite.Equal(4.0, granted.Quantity("cpus"))

	// Giving the unreserved half back hands it to role n; the
	// reservation already charges q's guarantee in full, so no headroom
	// is withheld.
	suite.NoError(suite.alloc.RecoverResources("f1", "a1",
		resource.MustParse("cpus:2;mem:1024"), nil))

	offers = suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:2;mem:1024"), sumOffers(offers["f2"]))
}

// In-place operations transform held resources atomically.
func (suite *HierarchicalTestSuite) TestUpdateAllocation() {
	suite.addAgent("a1", "cpus:2;mem:1024;disk:1024")
	suite.addFramework("f1", "r1", Capabilities{})

	offers := suite.allocate()
	suite.NotEmpty(offers["f1"])

	volume := resource.NewVolume("r1", 512, "id1", false)
	suite.NoError(suite.alloc.UpdateAllocation("f1", "a1",
		resource.MustParse("cpus:1;disk:512"),
		[]resource.Operation{
			{Type: resource.OperationReserve, Resources: resource.MustParse("cpus(r1):1;disk(r1):512")},
			{Type: resource.OperationCreate, Volume: &volume},
		}))

	agent := suite.alloc.agents["a1"]
	_, ok := agent.total.FindVolume("id1")
	suite.True(ok)
	_, ok = agent.allocated["f1"].FindVolume("id1")
	suite.True(ok)
	suite.Equal(1.0, agent.total.Reserved("r1").Quantity("cpus"))
	suite.checkConservation()

	// Returning the transformed resources puts the reservation back in
	// the offerable pool, visible only to r1.
	suite.NoError(suite.alloc.RecoverResources("f1", "a1",
		agent.allocated["f1"], nil))
	offers = suite.allocate()
	granted := sumOffers(offers["f1"])
	suite.Equal(1.0, granted.Reserved("r1").Quantity("cpus"))
	_, ok = granted.FindVolume("id1")
	suite.True(ok)
}

func (suite *HierarchicalTestSuite) TestUpdateAllocationErrors() {
	suite.addAgent("a1", "cpus:2;mem:1024")
	suite.addFramework("f1", "r1", Capabilities{})
	suite.allocate()

	err := suite.alloc.UpdateAllocation("nope", "a1", nil, nil)
	suite.Equal(ErrUnknownFramework, errors.Cause(err))

	err = suite.alloc.UpdateAllocation("f1", "nope", nil, nil)
	suite.Equal(ErrUnknownAgent, errors.Cause(err))

	// Operating on resources the framework does not hold fails without
	// state change.
	err = suite.alloc.UpdateAllocation("f1", "a1",
		resource.MustParse("cpus:5"),
		[]resource.Operation{{
			Type:      resource.OperationReserve,
			Resources: resource.MustParse("cpus(r1):5"),
		}})
	suite.Equal(resource.ErrInsufficientResources, errors.Cause(err))
	suite.checkConservation()
}

// Operator reservations apply to the free slice and fail when it is
// spoken for.
func (suite *HierarchicalTestSuite) TestUpdateAvailable() {
	suite.addAgent("a1", "cpus:2;mem:1024")
	suite.addFramework("f1", "r1", Capabilities{})

	suite.NoError(suite.alloc.UpdateAvailable("a1", []resource.Operation{{
		Type:      resource.OperationReserve,
		Resources: resource.MustParse("cpus(r1):1"),
	}}))

	offers := suite.allocate()
	granted := sumOffers(offers["f1"])
	suite.Equal(1.0, granted.Reserved("r1").Quantity("cpus"))
	suite.Equal(1.0, granted.Unreserved().Quantity("cpus"))
	suite.checkConservation()

	// Everything is allocated now; there is nothing free to reserve.
	err := suite.alloc.UpdateAvailable("a1", []resource.Operation{{
		Type:      resource.OperationReserve,
		Resources: resource.MustParse("mem(r1):1"),
	}})
	suite.Equal(resource.ErrInsufficientResources, errors.Cause(err))
	suite.checkConservation()
}

// A shared volume stays offerable to other frameworks in the role
// while held, and cannot be destroyed while another framework holds it.
func (suite *HierarchicalTestSuite) TestSharedVolume() {
	suite.addAgent("a1", "cpus:2;mem:1024;disk(r1):1024")
	suite.addFramework("f1", "r1", Capabilities{SharedResources: true})

	offers := suite.allocate()
	suite.NotEmpty(offers["f1"])

	volume := resource.NewVolume("r1", 512, "idS", true)
	suite.NoError(suite.alloc.UpdateAllocation("f1", "a1",
		resource.MustParse("disk(r1):512"),
		[]resource.Operation{{Type: resource.OperationCreate, Volume: &volume}}))

	// f1 keeps only the volume; the rest returns to the pool.
	agent := suite.alloc.agents["a1"]
	rest, err := agent.allocated["f1"].Subtract(resource.Resources{volume})
	suite.NoError(err)
	suite.NoError(suite.alloc.RecoverResources("f1", "a1", rest, nil))

	// A second framework in the role is offered the shared volume
	// although f1 still holds it.
	suite.addFramework("f2", "r1", Capabilities{SharedResources: true})
	offers = suite.allocate()
	granted := sumOffers(offers["f2"])
	_, ok := granted.FindVolume("idS")
	suite.True(ok)

	// Destroying a volume someone else holds is rejected.
	err = suite.alloc.UpdateAllocation("f1", "a1",
		resource.Resources{volume},
		[]resource.Operation{{Type: resource.OperationDestroy, Volume: &volume}})
	suite.Equal(resource.ErrInvalidOperation, errors.Cause(err))
}

// Creating a shared volume needs the shared capability.
func (suite *HierarchicalTestSuite) TestSharedVolumeNeedsCapability() {
	suite.addAgent("a1", "cpus:2;mem:1024;disk(r1):1024")
	suite.addFramework("f1", "r1", Capabilities{})
	suite.allocate()

	volume := resource.NewVolume("r1", 512, "idS", true)
	err := suite.alloc.UpdateAllocation("f1", "a1",
		resource.MustParse("disk(r1):512"),
		[]resource.Operation{{Type: resource.OperationCreate, Volume: &volume}})
	suite.Equal(ErrCapabilityMismatch, errors.Cause(err))
}

// Frameworks without the shared capability never see shared volumes.
func (suite *HierarchicalTestSuite) TestSharedVolumeStripped() {
	suite.addAgent("a1", "cpus:2;mem:1024;disk(r1):1024")
	suite.addFramework("f1", "r1", Capabilities{SharedResources: true})
	suite.allocate()

	volume := resource.NewVolume("r1", 512, "idS", true)
	suite.NoError(suite.alloc.UpdateAllocation("f1", "a1",
		resource.MustParse("disk(r1):512"),
		[]resource.Operation{{Type: resource.OperationCreate, Volume: &volume}}))

	suite.addFramework("f2", "r1", Capabilities{})
	offers := suite.allocate()
	_, ok := sumOffers(offers["f2"]).FindVolume("idS")
	suite.False(ok)
}

// Mutations against unknown entities surface typed errors.
func (suite *HierarchicalTestSuite) TestUnknownIDs() {
	suite.Equal(ErrUnknownFramework,
		errors.Cause(suite.alloc.RemoveFramework("nope")))
	suite.Equal(ErrUnknownFramework,
		errors.Cause(suite.alloc.SuppressOffers("nope")))
	suite.Equal(ErrUnknownFramework,
		errors.Cause(suite.alloc.RequestResources("nope", nil)))
	suite.Equal(ErrUnknownAgent,
		errors.Cause(suite.alloc.RemoveAgent("nope")))
	suite.Equal(ErrUnknownAgent,
		errors.Cause(suite.alloc.UpdateAgent("nope", nil)))
	suite.Equal(ErrUnknownAgent,
		errors.Cause(suite.alloc.UpdateUnavailability("nope", nil)))
	suite.Equal(ErrUnknownRole,
		errors.Cause(suite.alloc.RemoveQuota("nope")))

	suite.addFramework("f1", "r1", Capabilities{})
	suite.Equal(ErrFrameworkExists, errors.Cause(suite.alloc.AddFramework(
		&FrameworkInfo{ID: "f1", Role: "r1"}, nil, true)))

	suite.addAgent("a1", "cpus:1")
	suite.Equal(ErrAgentExists, errors.Cause(suite.alloc.AddAgent(
		&AgentInfo{ID: "a1", Total: resource.MustParse("cpus:1")}, nil)))
}

// Removing an agent drops its resources from every share computation.
func (suite *HierarchicalTestSuite) TestRemoveAgent() {
	suite.addAgent("a1", "cpus:2;mem:1024")
	suite.addFramework("f1", "r1", Capabilities{})
	suite.allocate()

	suite.NoError(suite.alloc.RemoveAgent("a1"))
	suite.Empty(suite.alloc.agents)
	suite.Empty(suite.allocate())

	// The framework's share is clean again; a new agent goes to it.
	suite.addAgent("a2", "cpus:1;mem:512")
	offers := suite.allocate()
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f1"]))
}

// A framework added with resources already in use keeps its share.
func (suite *HierarchicalTestSuite) TestAddFrameworkWithUsedResources() {
	suite.addAgent("a1", "cpus:2;mem:1024")
	suite.addFramework("f2", "r2", Capabilities{})

	suite.NoError(suite.alloc.AddFramework(
		&FrameworkInfo{ID: "f1", Role: "r1"},
		map[string]resource.Resources{"a1": resource.MustParse("cpus:2;mem:1024")},
		true))
	suite.checkConservation()

	// a1 is fully used; a new agent must go to the empty-handed f2.
	suite.addAgent("a2", "cpus:1;mem:512")
	offers := suite.allocate()
	suite.Len(offers, 1)
	suite.Equal(resource.MustParse("cpus:1;mem:512"), sumOffers(offers["f2"]))
}

// Round-robin between two frameworks with identical shares.
func (suite *HierarchicalTestSuite) TestSameShareFairness() {
	suite.addFramework("f1", "r1", Capabilities{})
	suite.addFramework("f2", "r1", Capabilities{})
	suite.addAgent("a1", "cpus:2;mem:1024")

	// Each round the previous winner declines with a short filter; the
	// filter blocks it for exactly the next round, so turns alternate.
	counts := map[string]int{}
	for i := 0; i < 4; i++ {
		offers := suite.allocate()
		suite.Len(offers, 1)
		for frameworkID, list := range offers {
			counts[frameworkID]++
			suite.NoError(suite.alloc.RecoverResources(
				frameworkID, "a1", sumOffers(list),
				&RefuseFilter{RefuseDuration: _interval / 2}))
		}
		suite.clock.Add(_interval)
	}

	suite.Equal(2, counts["f1"])
	suite.Equal(2, counts["f2"])
}
