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
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/granaryproject/granary/pkg/common/util"
)

// ErrInvalidOperation is returned for a malformed in-place operation.
var ErrInvalidOperation = errors.New("invalid operation")

// OperationType enumerates the in-place operations on held resources.
type OperationType int

const (
	// OperationReserve dynamically reserves unreserved resources to a role.
	OperationReserve OperationType = iota + 1
	// OperationUnreserve releases a dynamic reservation.
	OperationUnreserve
	// OperationCreate turns reserved disk into a persistent volume.
	OperationCreate
	// OperationDestroy turns a persistent volume back into plain disk.
	OperationDestroy
)

// String returns the operation type name.
func (t OperationType) String() string {
	switch t {
	case OperationReserve:
		return "RESERVE"
	case OperationUnreserve:
		return "UNRESERVE"
	case OperationCreate:
		return "CREATE"
	case OperationDestroy:
		return "DESTROY"
	}
	return "UNKNOWN"
}

// Operation is one in-place transformation. Reserve and Unreserve carry
// their payload in Resources; Create and Destroy carry the volume.
type Operation struct {
	Type      OperationType
	Resources Resources
	Volume    *Resource
}

// Validate checks an operation for structural problems without applying
// it. All problems found are combined into one error.
func (op Operation) Validate() error {
	var errs []error
	switch op.Type {
	case OperationReserve, OperationUnreserve:
		if op.Resources.Empty() {
			errs = append(errs, errors.Wrapf(ErrInvalidOperation,
				"%s with no resources", op.Type))
		}
		for _, r := range op.Resources {
			if r.IsUnreserved() {
				errs = append(errs, errors.Wrapf(ErrInvalidOperation,
					"%s of unreserved %s", op.Type, r.String()))
			}
			if r.Revocable {
				errs = append(errs, errors.Wrapf(ErrInvalidOperation,
					"%s of revocable %s", op.Type, r.String()))
			}
			if r.IsVolume() {
				errs = append(errs, errors.Wrapf(ErrInvalidOperation,
					"%s of volume %s", op.Type, r.String()))
			}
		}
	case OperationCreate, OperationDestroy:
		if op.Volume == nil {
			errs = append(errs, errors.Wrapf(ErrInvalidOperation,
				"%s with no volume", op.Type))
			break
		}
		if !op.Volume.IsVolume() {
			errs = append(errs, errors.Wrapf(ErrInvalidOperation,
				"%s of non-volume %s", op.Type, op.Volume.String()))
		}
		if op.Volume.IsUnreserved() {
			errs = append(errs, errors.Wrapf(ErrInvalidOperation,
				"%s of unreserved volume %s", op.Type, op.Volume.String()))
		}
	default:
		errs = append(errs, errors.Wrapf(ErrInvalidOperation,
			"unknown operation type %d", op.Type))
	}
	return multierr.Combine(errs...)
}

// ValidateOperations validates a whole list, combining the problems of
// every operation into one error.
func ValidateOperations(ops []Operation) error {
	var errs []error
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

// ApplyOperations applies the operations left to right to the multiset
// and returns the transformed result. Application is atomic: on any
// failure the returned error carries the cause and the input is left
// untouched. The transformation is value preserving; a result whose
// total quantities differ from the input is rejected.
func ApplyOperations(rs Resources, ops []Operation) (Resources, error) {
	if err := ValidateOperations(ops); err != nil {
		return nil, err
	}

	before := rs.ScalarQuantities()
	out := rs.Clone()
	var err error
	for _, op := range ops {
		out, err = applyOperation(out, op)
		if err != nil {
			return nil, errors.Wrapf(err, "applying %s", op.Type)
		}
	}

	after := out.ScalarQuantities()
	if !quantitiesEqual(before, after) {
		return nil, errors.Wrapf(ErrInvalidOperation,
			"operations do not preserve value: %s != %s", before, after)
	}
	return out, nil
}

func applyOperation(rs Resources, op Operation) (Resources, error) {
	switch op.Type {
	case OperationReserve:
		return applyReserve(rs, op.Resources)
	case OperationUnreserve:
		return applyUnreserve(rs, op.Resources)
	case OperationCreate:
		return applyCreate(rs, *op.Volume)
	case OperationDestroy:
		return applyDestroy(rs, *op.Volume)
	}
	return nil, errors.Wrapf(ErrInvalidOperation, "unknown operation type %d", op.Type)
}

// applyReserve swaps unreserved quantities for their reserved equivalent.
func applyReserve(rs Resources, reserved Resources) (Resources, error) {
	out := rs
	var err error
	for _, r := range reserved {
		unreserved := r.clone()
		unreserved.Role = ""
		out, err = out.Minus(unreserved)
		if err != nil {
			return nil, err
		}
		out = out.Plus(r)
	}
	return out, nil
}

// applyUnreserve swaps reserved quantities for their unreserved
// equivalent.
func applyUnreserve(rs Resources, reserved Resources) (Resources, error) {
	out := rs
	var err error
	for _, r := range reserved {
		out, err = out.Minus(r)
		if err != nil {
			return nil, err
		}
		unreserved := r.clone()
		unreserved.Role = ""
		out = out.Plus(unreserved)
	}
	return out, nil
}

// applyCreate swaps plain reserved disk for a persistent volume.
func applyCreate(rs Resources, volume Resource) (Resources, error) {
	if _, found := rs.FindVolume(volume.Disk.Persistence); found {
		return nil, errors.Wrapf(ErrInvalidOperation,
			"volume %q already exists", volume.Disk.Persistence)
	}
	plain := volume.clone()
	plain.Disk = nil
	out, err := rs.Minus(plain)
	if err != nil {
		return nil, err
	}
	return out.Plus(volume), nil
}

// applyDestroy swaps a persistent volume for plain reserved disk.
func applyDestroy(rs Resources, volume Resource) (Resources, error) {
	if _, found := rs.FindVolume(volume.Disk.Persistence); !found {
		return nil, errors.Wrapf(ErrInvalidOperation,
			"volume %q does not exist", volume.Disk.Persistence)
	}
	out, err := rs.Minus(volume)
	if err != nil {
		return nil, err
	}
	plain := volume.clone()
	plain.Disk = nil
	return out.Plus(plain), nil
}

func quantitiesEqual(a, b Quantities) bool {
	for k, v := range a {
		if !util.Equal(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if !util.Equal(v, a[k]) {
			return false
		}
	}
	return true
}
