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

package common

const (
	// CPUs is the resource kind name for processor cores.
	CPUs = "cpus"

	// Mem is the resource kind name for memory, in megabytes.
	Mem = "mem"

	// Disk is the resource kind name for disk space, in megabytes.
	Disk = "disk"

	// GPUs is the resource kind name for GPU devices.
	GPUs = "gpus"

	// Ports is the resource kind name for host port ranges.
	Ports = "ports"

	// UnreservedRole marks a resource as belonging to no role.
	UnreservedRole = "*"

	// MinAllocatableCPUs is the smallest amount of cpus an offer may
	// carry on its own.
	MinAllocatableCPUs = 0.01

	// MinAllocatableMem is the smallest amount of memory (in MB) an
	// offer may carry on its own.
	MinAllocatableMem = 32.0
)
