// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentdock/agentdock-core/errs"
)

func TestConstructorsTagTheirKind(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		kind errs.Kind
	}{
		{"validation", errs.Validation("op", cause), errs.KindValidation},
		{"storage", errs.Storage("op", cause), errs.KindStorage},
		{"tenancy violation", errs.TenancyViolation("op", cause), errs.KindTenancyViolation},
		{"decode", errs.Decode("op", cause), errs.KindDecode},
		{"capability missing", errs.CapabilityMissing("op", cause), errs.KindCapabilityMissing},
		{"cancelled", errs.Cancelled("op", cause), errs.KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errs.Is(tt.err, tt.kind))
			assert.False(t, errs.Is(tt.err, errs.KindValidation+"-not-a-real-kind"))
		})
	}
}

func TestErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("root cause")
	err := errs.Storage("MemoryOps.Store", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "root cause")
	assert.Contains(t, err.Error(), "MemoryOps.Store")
}

func TestErrorWithNilCauseOmitsColon(t *testing.T) {
	err := errs.Validation("op", nil)
	assert.Equal(t, "op: validation", err.Error())
}

func TestIsMatchesByKindNotIdentity(t *testing.T) {
	a := errs.Storage("op-a", errors.New("x"))
	b := errs.Storage("op-b", errors.New("y"))

	var typedA *errs.Error
	assert.True(t, errors.As(a, &typedA))
	assert.True(t, typedA.Is(b))
}

func TestIsReturnsFalseForPlainErrors(t *testing.T) {
	plain := fmt.Errorf("not a typed error")
	assert.False(t, errs.Is(plain, errs.KindStorage))
}
