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

package resource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/granaryproject/granary/pkg/common/util"
)

// Quantities is a tag-free view of a multiset: total scalar quantity per
// resource kind. Ranges and sets do not contribute. It is the currency of
// fair-share accounting, where reservation and revocability tags are
// irrelevant.
type Quantities map[string]float64

// ScalarQuantities sums the scalar line items by kind, ignoring all tags.
func (rs Resources) ScalarQuantities() Quantities {
	q := Quantities{}
	for _, r := range rs {
		if r.Type != Scalar {
			continue
		}
		q[r.Name] += r.Scalar
	}
	return q
}

// Quantity returns the total scalar quantity of one kind, ignoring tags.
func (rs Resources) Quantity(name string) float64 {
	var total float64
	for _, r := range rs {
		if r.Type == Scalar && r.Name == name {
			total += r.Scalar
		}
	}
	return total
}

// Clone returns a copy.
func (q Quantities) Clone() Quantities {
	c := make(Quantities, len(q))
	for k, v := range q {
		c[k] = v
	}
	return c
}

// Add accumulates other into q and returns q.
func (q Quantities) Add(other Quantities) Quantities {
	for k, v := range other {
		q[k] += v
	}
	return q
}

// SubtractClamp removes other from q, clamping each kind at zero, and
// returns q.
func (q Quantities) SubtractClamp(other Quantities) Quantities {
	for k, v := range other {
		q[k] -= v
		if q[k] < util.ResourceEpsilon {
			delete(q, k)
		}
	}
	return q
}

// Contains returns whether q holds at least other, kind by kind.
func (q Quantities) Contains(other Quantities) bool {
	for k, v := range other {
		if util.LessThan(q[k], v) {
			return false
		}
	}
	return true
}

// Empty returns whether every kind is at (or within epsilon of) zero.
func (q Quantities) Empty() bool {
	for _, v := range q {
		if !util.IsZero(v) {
			return false
		}
	}
	return true
}

// String renders the quantities in a deterministic order.
func (q Quantities) String() string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%g", k, q[k]))
	}
	return strings.Join(parts, ";")
}
