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
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/granaryproject/granary/pkg/common"
)

// Parse turns the compact semicolon separated form into a multiset, e.g.
// "cpus:2;mem:1024" or "cpus(prod):1;cpus:1". Only scalar kinds are
// supported; ranges and sets must be constructed explicitly.
func Parse(s string) (Resources, error) {
	var out Resources
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.LastIndex(part, ":")
		if idx <= 0 || idx == len(part)-1 {
			return nil, errors.Errorf("malformed resource %q", part)
		}
		name := part[:idx]
		role := common.UnreservedRole
		if open := strings.Index(name, "("); open > 0 {
			if !strings.HasSuffix(name, ")") {
				return nil, errors.Errorf("malformed reservation in %q", part)
			}
			role = name[open+1 : len(name)-1]
			name = name[:open]
		}
		value, err := strconv.ParseFloat(part[idx+1:], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed quantity in %q", part)
		}
		if value < 0 {
			return nil, errors.Errorf("negative quantity in %q", part)
		}
		out = out.Plus(NewReservedScalar(name, value, role))
	}
	return out, nil
}

// MustParse is Parse for literals known to be well-formed; it panics on a
// malformed input.
func MustParse(s string) Resources {
	rs, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return rs
}
