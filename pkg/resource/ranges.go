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
	"sort"

	"github.com/pkg/errors"
)

// rangesUnion merges two range lists into a normalized (sorted,
// non-overlapping, coalesced) list.
func rangesUnion(a, b []Range) []Range {
	all := make([]Range, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	if len(all) == 0 {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Begin < all[j].Begin })

	out := []Range{all[0]}
	for _, r := range all[1:] {
		last := &out[len(out)-1]
		if r.Begin <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// rangesSubtract removes b from a. Every interval of b must be covered by
// a, otherwise ErrInsufficientResources is returned.
func rangesSubtract(a, b []Range) ([]Range, error) {
	out := append([]Range(nil), a...)
	for _, r := range b {
		var next []Range
		covered := false
		for _, cur := range out {
			if r.Begin >= cur.Begin && r.End <= cur.End {
				covered = true
				if cur.Begin < r.Begin {
					next = append(next, Range{Begin: cur.Begin, End: r.Begin - 1})
				}
				if r.End < cur.End {
					next = append(next, Range{Begin: r.End + 1, End: cur.End})
				}
				continue
			}
			next = append(next, cur)
		}
		if !covered {
			return nil, errors.Wrapf(ErrInsufficientResources,
				"range [%d-%d] not held", r.Begin, r.End)
		}
		out = next
	}
	return out, nil
}

// rangesSubtractClamped removes the covered portion of b from a,
// ignoring intervals of b that a does not hold.
func rangesSubtractClamped(a, b []Range) []Range {
	out := append([]Range(nil), a...)
	for _, r := range b {
		var next []Range
		for _, cur := range out {
			if r.End < cur.Begin || r.Begin > cur.End {
				next = append(next, cur)
				continue
			}
			if cur.Begin < r.Begin {
				next = append(next, Range{Begin: cur.Begin, End: r.Begin - 1})
			}
			if r.End < cur.End {
				next = append(next, Range{Begin: r.End + 1, End: cur.End})
			}
		}
		out = next
	}
	return out
}

// intersect returns the items of a also present in b.
func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if inB[s] {
			out = append(out, s)
		}
	}
	return out
}

// setUnion merges two string sets, keeping insertion order of a.
func setUnion(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// setSubtract removes b from a. Every item of b must be present in a,
// otherwise ErrInsufficientResources is returned.
func setSubtract(a, b []string) ([]string, error) {
	remove := make(map[string]bool, len(b))
	for _, s := range b {
		remove[s] = true
	}
	var out []string
	removed := 0
	for _, s := range a {
		if remove[s] {
			removed++
			continue
		}
		out = append(out, s)
	}
	if removed != len(remove) {
		return nil, errors.Wrapf(ErrInsufficientResources, "set items not held")
	}
	return out, nil
}
