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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type OperationsTestSuite struct {
	suite.Suite
}

func TestOperationsTestSuite(t *testing.T) {
	suite.Run(t, new(OperationsTestSuite))
}

func (suite *OperationsTestSuite) TestReserve() {
	rs := MustParse("cpus:2;mem:1024")
	out, err := ApplyOperations(rs, []Operation{{
		Type:      OperationReserve,
		Resources: MustParse("cpus(prod):1;mem(prod):512"),
	}})
	suite.NoError(err)
	suite.Equal(1.0, out.Reserved("prod").Quantity("cpus"))
	suite.Equal(1.0, out.Unreserved().Quantity("cpus"))
	suite.Equal(512.0, out.Reserved("prod").Quantity("mem"))
}

func (suite *OperationsTestSuite) TestReserveInsufficient() {
	rs := MustParse("cpus:1")
	_, err := ApplyOperations(rs, []Operation{{
		Type:      OperationReserve,
		Resources: MustParse("cpus(prod):2"),
	}})
	suite.Error(err)
	suite.Equal(ErrInsufficientResources, errors.Cause(err))
}

func (suite *OperationsTestSuite) TestUnreserveRoundTrip() {
	rs := MustParse("cpus:2")
	reserve := Operation{Type: OperationReserve, Resources: MustParse("cpus(prod):2")}
	unreserve := Operation{Type: OperationUnreserve, Resources: MustParse("cpus(prod):2")}

	out, err := ApplyOperations(rs, []Operation{reserve, unreserve})
	suite.NoError(err)
	suite.Equal(2.0, out.Unreserved().Quantity("cpus"))
	suite.Empty(out.AllReserved())
}

func (suite *OperationsTestSuite) TestCreateVolume() {
	rs := MustParse("disk(prod):1024")
	volume := NewVolume("prod", 256, "id1", false)

	out, err := ApplyOperations(rs, []Operation{{
		Type:   OperationCreate,
		Volume: &volume,
	}})
	suite.NoError(err)
	suite.Equal(1024.0, out.Quantity("disk"))

	created, ok := out.FindVolume("id1")
	suite.True(ok)
	suite.Equal(256.0, created.Scalar)
	suite.Equal(768.0, out.NonVolumes().Quantity("disk"))
}

func (suite *OperationsTestSuite) TestCreateDuplicateVolume() {
	volume := NewVolume("prod", 256, "id1", false)
	rs := MustParse("disk(prod):1024").Plus(volume)

	_, err := ApplyOperations(rs, []Operation{{
		Type:   OperationCreate,
		Volume: &volume,
	}})
	suite.Error(err)
	suite.Equal(ErrInvalidOperation, errors.Cause(err))
}

func (suite *OperationsTestSuite) TestDestroyVolume() {
	volume := NewVolume("prod", 256, "id1", false)
	rs := MustParse("disk(prod):768").Plus(volume)

	out, err := ApplyOperations(rs, []Operation{{
		Type:   OperationDestroy,
		Volume: &volume,
	}})
	suite.NoError(err)
	suite.Empty(out.Volumes())
	suite.Equal(1024.0, out.Quantity("disk"))
}

func (suite *OperationsTestSuite) TestDestroyMissingVolume() {
	rs := MustParse("disk(prod):1024")
	volume := NewVolume("prod", 256, "id1", false)

	_, err := ApplyOperations(rs, []Operation{{
		Type:   OperationDestroy,
		Volume: &volume,
	}})
	suite.Error(err)
	suite.Equal(ErrInvalidOperation, errors.Cause(err))
}

func (suite *OperationsTestSuite) TestOperationsApplyLeftToRight() {
	rs := MustParse("cpus:1;disk:512")
	volume := NewVolume("prod", 512, "id1", false)

	// The CREATE depends on the RESERVE before it having run.
	out, err := ApplyOperations(rs, []Operation{
		{Type: OperationReserve, Resources: MustParse("disk(prod):512")},
		{Type: OperationCreate, Volume: &volume},
	})
	suite.NoError(err)
	_, ok := out.FindVolume("id1")
	suite.True(ok)

	// In the opposite order the CREATE has no reserved disk to consume.
	_, err = ApplyOperations(rs, []Operation{
		{Type: OperationCreate, Volume: &volume},
		{Type: OperationReserve, Resources: MustParse("disk(prod):512")},
	})
	suite.Error(err)
}

func (suite *OperationsTestSuite) TestFailureIsAtomic() {
	rs := MustParse("cpus:2")
	out, err := ApplyOperations(rs, []Operation{
		{Type: OperationReserve, Resources: MustParse("cpus(prod):1")},
		{Type: OperationReserve, Resources: MustParse("cpus(prod):5")},
	})
	suite.Error(err)
	suite.Nil(out)
	suite.Equal(2.0, rs.Unreserved().Quantity("cpus"))
}

func (suite *OperationsTestSuite) TestValidateRejectsMalformedOperations() {
	// Reserving unreserved resources is meaningless.
	err := ValidateOperations([]Operation{{
		Type:      OperationReserve,
		Resources: MustParse("cpus:1"),
	}})
	suite.Error(err)

	// A CREATE must carry a volume.
	err = ValidateOperations([]Operation{{Type: OperationCreate}})
	suite.Error(err)

	// A DESTROY of a non-volume is malformed.
	plain := NewReservedScalar("disk", 10, "prod")
	err = ValidateOperations([]Operation{{Type: OperationDestroy, Volume: &plain}})
	suite.Error(err)

	// Problems of several operations surface together.
	err = ValidateOperations([]Operation{
		{Type: OperationCreate},
		{Type: OperationDestroy},
	})
	suite.Error(err)
}
