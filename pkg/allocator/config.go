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

	"github.com/granaryproject/granary/pkg/common"
)

const (
	_defaultAllocationInterval = 1 * time.Second

	// Agents whose unavailability starts within this window stop
	// receiving offers ahead of time, so frameworks are not handed
	// resources they are about to be asked to give back.
	_defaultMaintenanceOfferHoldoff = 0 * time.Second
)

// Config holds the allocator tunables.
type Config struct {
	// AllocationInterval is the period of batch allocation rounds.
	AllocationInterval time.Duration `yaml:"allocation_interval"`

	// FairnessExcludedResources lists resource kinds which never drive
	// dominant share, although their allocation is still tracked.
	FairnessExcludedResources []string `yaml:"fairness_excluded_resources"`

	// MinAllocatableCPUs is the smallest cpus quantity an offer slice
	// may carry on its own.
	MinAllocatableCPUs float64 `yaml:"min_allocatable_cpus"`

	// MinAllocatableMemMB is the smallest mem quantity (in MB) an offer
	// slice may carry on its own.
	MinAllocatableMemMB float64 `yaml:"min_allocatable_mem_mb"`

	// MaintenanceOfferHoldoff stops offers from an agent this long
	// before its unavailability starts.
	MaintenanceOfferHoldoff time.Duration `yaml:"maintenance_offer_holdoff"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		AllocationInterval:      _defaultAllocationInterval,
		MinAllocatableCPUs:      common.MinAllocatableCPUs,
		MinAllocatableMemMB:     common.MinAllocatableMem,
		MaintenanceOfferHoldoff: _defaultMaintenanceOfferHoldoff,
	}
}

// normalize fills the zero values with defaults.
func (c *Config) normalize() {
	if c.AllocationInterval <= 0 {
		c.AllocationInterval = _defaultAllocationInterval
	}
	if c.MinAllocatableCPUs <= 0 {
		c.MinAllocatableCPUs = common.MinAllocatableCPUs
	}
	if c.MinAllocatableMemMB <= 0 {
		c.MinAllocatableMemMB = common.MinAllocatableMem
	}
}
