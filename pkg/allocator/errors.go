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
	"github.com/pkg/errors"
)

var (
	// ErrUnknownFramework is returned when a mutation names an
	// unregistered framework.
	ErrUnknownFramework = errors.New("unknown framework")

	// ErrUnknownAgent is returned when a mutation names an unregistered
	// agent.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUnknownRole is returned when a mutation names an untracked role.
	ErrUnknownRole = errors.New("unknown role")

	// ErrFrameworkExists is returned when adding a framework twice.
	ErrFrameworkExists = errors.New("framework already added")

	// ErrAgentExists is returned when adding an agent twice.
	ErrAgentExists = errors.New("agent already added")

	// ErrCapabilityMismatch is returned when an operation requires a
	// capability the framework does not carry.
	ErrCapabilityMismatch = errors.New("framework capability mismatch")

	// ErrQuotaInfeasible is returned when a guarantee cannot fit the
	// current cluster together with the other guarantees.
	ErrQuotaInfeasible = errors.New("quota guarantee infeasible")
)
