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
	"github.com/granaryproject/granary/pkg/resource"
)

// roleState is the allocator's book-keeping for one role. A role is
// tracked while it has at least one framework, a quota guarantee, or an
// explicitly assigned weight.
type roleState struct {
	name string

	weight float64
	// explicitWeight keeps the role alive after its last framework
	// leaves, so the weight applies when frameworks return.
	explicitWeight bool

	frameworks map[string]bool

	// guarantee is the quota, nil when the role has none.
	guarantee resource.Quantities
}

func newRoleState(name string) *roleState {
	return &roleState{
		name:       name,
		weight:     1.0,
		frameworks: make(map[string]bool),
	}
}

// tracked returns whether anything still justifies keeping the role.
func (r *roleState) tracked() bool {
	return len(r.frameworks) > 0 || r.guarantee != nil || r.explicitWeight
}

// hasQuota returns whether the role carries a guarantee.
func (r *roleState) hasQuota() bool {
	return r.guarantee != nil
}
