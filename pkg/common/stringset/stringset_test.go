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

package stringset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringSet(t *testing.T) {
	s := New()
	assert.False(t, s.Contains("a"))

	s.Add("a")
	s.Add("b")
	assert.True(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.Len(t, s.ToSlice(), 2)

	s.Remove("a")
	assert.False(t, s.Contains("a"))

	s.Clear()
	assert.Empty(t, s.ToSlice())
}

func TestFromSlice(t *testing.T) {
	s := FromSlice([]string{"x", "y", "x"})
	assert.True(t, s.Contains("x"))
	assert.True(t, s.Contains("y"))
	assert.Len(t, s.ToSlice(), 2)
}
