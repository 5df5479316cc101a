/*
 * Copyright 2025 The DriftSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package errors provides structured errors with status codes for the sync
// engine. The codes classify failures into the retriable/terminal taxonomy
// used by clients to decide between backoff-retry and surfacing the failure.
package errors

import "fmt"

// StatusCode classifies an error. The numbering follows the Connect/gRPC
// convention so the codes translate directly if a gRPC surface is added.
type StatusCode int

const (
	// CodeInvalidArgument indicates a malformed request, such as an operation
	// that fails validation. Not retriable.
	CodeInvalidArgument StatusCode = 3

	// CodeNotFound indicates a requested entity does not exist.
	CodeNotFound StatusCode = 5

	// CodeAlreadyExists indicates the entity being created already exists.
	CodeAlreadyExists StatusCode = 6

	// CodeFailedPrecondition indicates the system is not in a state required
	// for the operation, such as an invalid session transition.
	CodeFailedPrecondition StatusCode = 9

	// CodeInternal indicates a broken invariant. Reserved for serious errors.
	CodeInternal StatusCode = 13

	// CodeUnavailable indicates a temporarily unavailable collaborator, such
	// as the durable or ephemeral store. Callers may back off and retry.
	CodeUnavailable StatusCode = 14
)

// String returns the string representation of the status code.
func (c StatusCode) String() string {
	switch c {
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeNotFound:
		return "not_found"
	case CodeAlreadyExists:
		return "already_exists"
	case CodeFailedPrecondition:
		return "failed_precondition"
	case CodeInternal:
		return "internal"
	case CodeUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// IsRetriable returns true if a caller may retry the failed call after
// backing off.
func (c StatusCode) IsRetriable() bool {
	return c == CodeUnavailable
}
