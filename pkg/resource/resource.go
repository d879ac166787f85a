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
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/granaryproject/granary/pkg/common"
	"github.com/granaryproject/granary/pkg/common/util"
)

// ErrInsufficientResources is returned when a subtraction or an operation
// would drive a quantity negative.
var ErrInsufficientResources = errors.New("insufficient resources")

// Type describes the shape of a resource value.
type Type int

const (
	// Scalar is a floating point quantity, e.g. cpus or mem.
	Scalar Type = iota
	// Ranges is a list of non-overlapping integer ranges, e.g. ports.
	Ranges
	// Set is a list of distinct strings.
	Set
)

// Range is an inclusive integer interval.
type Range struct {
	Begin uint64
	End   uint64
}

// DiskInfo carries the volume metadata of a disk resource.
type DiskInfo struct {
	// Persistence is the persistent volume id. A disk resource with a
	// non-empty Persistence is a volume.
	Persistence string
	// Shared marks a volume which may be held by several frameworks in
	// the same role at once.
	Shared bool
}

// Resource is a single tagged line item: a named quantity together with
// its reservation role, revocability and optional volume metadata. Two
// line items accumulate into one only when every tag matches.
type Resource struct {
	Name      string
	Type      Type
	Scalar    float64
	Ranges    []Range
	Set       []string
	Role      string
	Revocable bool
	Disk      *DiskInfo
}

// NewScalar returns an unreserved non-revocable scalar line item.
func NewScalar(name string, value float64) Resource {
	return Resource{
		Name:   name,
		Type:   Scalar,
		Scalar: value,
		Role:   common.UnreservedRole,
	}
}

// NewReservedScalar returns a scalar line item reserved to the given role.
func NewReservedScalar(name string, value float64, role string) Resource {
	r := NewScalar(name, value)
	r.Role = role
	return r
}

// NewRevocableScalar returns an unreserved revocable scalar line item.
func NewRevocableScalar(name string, value float64) Resource {
	r := NewScalar(name, value)
	r.Revocable = true
	return r
}

// NewVolume returns a persistent volume of the given size, reserved to
// the given role.
func NewVolume(role string, sizeMB float64, persistenceID string, shared bool) Resource {
	return Resource{
		Name:   common.Disk,
		Type:   Scalar,
		Scalar: sizeMB,
		Role:   role,
		Disk: &DiskInfo{
			Persistence: persistenceID,
			Shared:      shared,
		},
	}
}

// IsUnreserved returns whether the line item belongs to no role.
func (r Resource) IsUnreserved() bool {
	return r.Role == "" || r.Role == common.UnreservedRole
}

// IsVolume returns whether the line item is a persistent volume.
func (r Resource) IsVolume() bool {
	return r.Disk != nil && r.Disk.Persistence != ""
}

// IsShared returns whether the line item is a shared volume.
func (r Resource) IsShared() bool {
	return r.Disk != nil && r.Disk.Shared
}

// sameObject returns whether two line items carry identical tags and may
// therefore accumulate into a single line item.
func (r Resource) sameObject(o Resource) bool {
	if r.Name != o.Name || r.Type != o.Type || r.Revocable != o.Revocable {
		return false
	}
	if r.Role != o.Role && !(r.IsUnreserved() && o.IsUnreserved()) {
		return false
	}
	if (r.Disk == nil) != (o.Disk == nil) {
		return false
	}
	if r.Disk != nil &&
		(r.Disk.Persistence != o.Disk.Persistence || r.Disk.Shared != o.Disk.Shared) {
		return false
	}
	return true
}

// isEmpty returns whether the line item holds no quantity.
func (r Resource) isEmpty() bool {
	switch r.Type {
	case Scalar:
		return util.IsZero(r.Scalar)
	case Ranges:
		return len(r.Ranges) == 0
	case Set:
		return len(r.Set) == 0
	}
	return true
}

func (r Resource) clone() Resource {
	c := r
	if r.Ranges != nil {
		c.Ranges = append([]Range(nil), r.Ranges...)
	}
	if r.Set != nil {
		c.Set = append([]string(nil), r.Set...)
	}
	if r.Disk != nil {
		d := *r.Disk
		c.Disk = &d
	}
	return c
}

// String renders the line item in the compact "name(role):value" form.
func (r Resource) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if !r.IsUnreserved() {
		fmt.Fprintf(&b, "(%s)", r.Role)
	}
	if r.IsVolume() {
		fmt.Fprintf(&b, "[%s]", r.Disk.Persistence)
	}
	b.WriteString(":")
	switch r.Type {
	case Scalar:
		b.WriteString(strconv.FormatFloat(r.Scalar, 'f', -1, 64))
	case Ranges:
		parts := make([]string, 0, len(r.Ranges))
		for _, rng := range r.Ranges {
			parts = append(parts, fmt.Sprintf("%d-%d", rng.Begin, rng.End))
		}
		fmt.Fprintf(&b, "[%s]", strings.Join(parts, ","))
	case Set:
		fmt.Fprintf(&b, "{%s}", strings.Join(r.Set, ","))
	}
	if r.Revocable {
		b.WriteString("{REV}")
	}
	return b.String()
}

// Resources is an immutable multiset of tagged line items. All arithmetic
// returns new values; receivers are never modified.
type Resources []Resource

// Clone returns a deep copy.
func (rs Resources) Clone() Resources {
	if rs == nil {
		return nil
	}
	c := make(Resources, 0, len(rs))
	for _, r := range rs {
		c = append(c, r.clone())
	}
	return c
}

// Empty returns whether the multiset holds no quantity at all.
func (rs Resources) Empty() bool {
	for _, r := range rs {
		if !r.isEmpty() {
			return false
		}
	}
	return true
}

// Plus returns the union of the multiset and a single line item, merging
// it into an existing line item when every tag matches.
func (rs Resources) Plus(o Resource) Resources {
	if o.isEmpty() {
		return rs.Clone()
	}
	out := rs.Clone()
	for i := range out {
		if !out[i].sameObject(o) {
			continue
		}
		switch o.Type {
		case Scalar:
			out[i].Scalar += o.Scalar
		case Ranges:
			out[i].Ranges = rangesUnion(out[i].Ranges, o.Ranges)
		case Set:
			out[i].Set = setUnion(out[i].Set, o.Set)
		}
		return out
	}
	return append(out, o.clone())
}

// Add returns the union of two multisets.
func (rs Resources) Add(other Resources) Resources {
	out := rs.Clone()
	for _, o := range other {
		out = out.Plus(o)
	}
	return out
}

// Minus returns the multiset with a single line item removed. The
// receiver must contain the subtrahend tag-for-tag, otherwise
// ErrInsufficientResources is returned.
func (rs Resources) Minus(o Resource) (Resources, error) {
	if o.isEmpty() {
		return rs.Clone(), nil
	}
	out := rs.Clone()
	for i := range out {
		if !out[i].sameObject(o) {
			continue
		}
		switch o.Type {
		case Scalar:
			if util.LessThan(out[i].Scalar, o.Scalar) {
				return nil, errors.Wrapf(ErrInsufficientResources,
					"cannot subtract %s from %s", o.String(), out[i].String())
			}
			out[i].Scalar -= o.Scalar
		case Ranges:
			diff, err := rangesSubtract(out[i].Ranges, o.Ranges)
			if err != nil {
				return nil, errors.Wrapf(err,
					"cannot subtract %s from %s", o.String(), out[i].String())
			}
			out[i].Ranges = diff
		case Set:
			diff, err := setSubtract(out[i].Set, o.Set)
			if err != nil {
				return nil, errors.Wrapf(err,
					"cannot subtract %s from %s", o.String(), out[i].String())
			}
			out[i].Set = diff
		}
		if out[i].isEmpty() {
			out = append(out[:i], out[i+1:]...)
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrInsufficientResources,
		"no line item matching %s", o.String())
}

// Subtract returns the difference of two multisets, requiring tag-for-tag
// containment of the subtrahend.
func (rs Resources) Subtract(other Resources) (Resources, error) {
	out := rs.Clone()
	var err error
	for _, o := range other {
		out, err = out.Minus(o)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SubtractClamped removes as much of other as the multiset holds,
// clamping every line item at empty instead of failing. Used where the
// subtrahend may legitimately exceed the minuend, e.g. when an
// oversubscription update shrinks an agent below what is already
// allocated.
func (rs Resources) SubtractClamped(other Resources) Resources {
	out := rs.Clone()
	for _, o := range other {
		for i := range out {
			if !out[i].sameObject(o) {
				continue
			}
			switch o.Type {
			case Scalar:
				out[i].Scalar -= o.Scalar
				if out[i].Scalar < 0 {
					out[i].Scalar = 0
				}
			case Ranges:
				out[i].Ranges = rangesSubtractClamped(out[i].Ranges, o.Ranges)
			case Set:
				diff, _ := setSubtract(out[i].Set, intersect(out[i].Set, o.Set))
				out[i].Set = diff
			}
			break
		}
	}
	kept := out[:0]
	for _, r := range out {
		if !r.isEmpty() {
			kept = append(kept, r)
		}
	}
	return kept
}

// Contains returns whether the multiset contains the other tag-for-tag.
func (rs Resources) Contains(other Resources) bool {
	_, err := rs.Subtract(other)
	return err == nil
}

// filter returns the line items satisfying the predicate.
func (rs Resources) filter(keep func(Resource) bool) Resources {
	var out Resources
	for _, r := range rs {
		if keep(r) {
			out = append(out, r.clone())
		}
	}
	return out
}

// Unreserved returns the line items belonging to no role.
func (rs Resources) Unreserved() Resources {
	return rs.filter(Resource.IsUnreserved)
}

// Reserved returns the line items reserved to the given role.
func (rs Resources) Reserved(role string) Resources {
	return rs.filter(func(r Resource) bool {
		return !r.IsUnreserved() && r.Role == role
	})
}

// AllReserved returns the line items reserved to any role.
func (rs Resources) AllReserved() Resources {
	return rs.filter(func(r Resource) bool { return !r.IsUnreserved() })
}

// Revocable returns the revocable line items.
func (rs Resources) Revocable() Resources {
	return rs.filter(func(r Resource) bool { return r.Revocable })
}

// NonRevocable returns the non-revocable line items.
func (rs Resources) NonRevocable() Resources {
	return rs.filter(func(r Resource) bool { return !r.Revocable })
}

// Shared returns the shared volumes.
func (rs Resources) Shared() Resources {
	return rs.filter(Resource.IsShared)
}

// NonShared returns everything but shared volumes.
func (rs Resources) NonShared() Resources {
	return rs.filter(func(r Resource) bool { return !r.IsShared() })
}

// Volumes returns the persistent volumes.
func (rs Resources) Volumes() Resources {
	return rs.filter(Resource.IsVolume)
}

// NonVolumes returns everything but persistent volumes.
func (rs Resources) NonVolumes() Resources {
	return rs.filter(func(r Resource) bool { return !r.IsVolume() })
}

// Without returns the multiset minus every line item of the given kind.
func (rs Resources) Without(name string) Resources {
	return rs.filter(func(r Resource) bool { return r.Name != name })
}

// OfName returns the line items of the given resource kind.
func (rs Resources) OfName(name string) Resources {
	return rs.filter(func(r Resource) bool { return r.Name == name })
}

// FindVolume returns the volume with the given persistence id, if present.
func (rs Resources) FindVolume(persistenceID string) (Resource, bool) {
	for _, r := range rs {
		if r.IsVolume() && r.Disk.Persistence == persistenceID {
			return r.clone(), true
		}
	}
	return Resource{}, false
}

// String renders the multiset as a semicolon separated list in a
// deterministic order.
func (rs Resources) String() string {
	if len(rs) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, r.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
