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

// Package errs defines the typed error kinds surfaced by agentdock-core.
//
// Every error the core returns wraps one of the six kinds below so callers
// can branch with errors.As instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories the core surfaces.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindStorage           Kind = "storage"
	KindTenancyViolation  Kind = "tenancy_violation"
	KindDecode            Kind = "decode"
	KindCapabilityMissing Kind = "capability_missing"
	KindCancelled         Kind = "cancelled"
)

// Error is the common shape of every typed error the core returns.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "MemoryOps.Store"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, errs.Validation("", nil)) style checks are unnecessary;
// callers instead use errors.As and inspect Kind, or the Is* helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation wraps a missing/malformed-input failure. Never retried.
func Validation(op string, err error) error { return newErr(KindValidation, op, err) }

// Storage wraps a backend I/O failure. Write paths that return this have
// already rolled back; callers may retry.
func Storage(op string, err error) error { return newErr(KindStorage, op, err) }

// TenancyViolation wraps an attempt to cross user ids. Fatal at the call
// site; never recovered internally.
func TenancyViolation(op string, err error) error { return newErr(KindTenancyViolation, op, err) }

// Decode wraps a row that could not be parsed back into a typed record.
func Decode(op string, err error) error { return newErr(KindDecode, op, err) }

// CapabilityMissing wraps a call to an optional capability (memory, vector)
// a provider does not implement. Treated as a programming error.
func CapabilityMissing(op string, err error) error { return newErr(KindCapabilityMissing, op, err) }

// Cancelled wraps a cooperative-cancellation outcome. Not a failure in the
// usual sense — callers may choose to simply log it.
func Cancelled(op string, err error) error { return newErr(KindCancelled, op, err) }

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
