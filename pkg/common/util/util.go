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

package util

import (
	"math"
)

// ResourceEpsilon is the minimum meaningful difference between two
// resource quantities. Quantities closer than this are considered equal.
const ResourceEpsilon = 1e-6

// LessThanOrEqual is a safe less-than-or-equal comparator which takes
// epsilon into consideration.
func LessThanOrEqual(f1, f2 float64) bool {
	v := f1 - f2
	if math.Abs(v) < ResourceEpsilon {
		return true
	}
	return v < 0
}

// LessThan is a safe less-than comparator which takes epsilon into
// consideration.
func LessThan(f1, f2 float64) bool {
	v := f1 - f2
	if math.Abs(v) < ResourceEpsilon {
		return false
	}
	return v < 0
}

// Equal returns whether two quantities are within epsilon of each other.
func Equal(f1, f2 float64) bool {
	return math.Abs(f1-f2) < ResourceEpsilon
}

// IsZero returns whether the quantity is within epsilon of zero.
func IsZero(f float64) bool {
	return math.Abs(f) < ResourceEpsilon
}
