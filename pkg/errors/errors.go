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

package errors

import (
	"errors"
)

// StatusError is an error carrying a status code and an optional short code
// string for machine-readable handling.
type StatusError interface {
	error
	Status() StatusCode
	Code() string
	WithCode(code string) StatusError
}

type statusError struct {
	err    error
	status StatusCode
	code   string
}

// Error returns the error message.
func (e statusError) Error() string {
	return e.err.Error()
}

// Status returns the status code of the error.
func (e statusError) Status() StatusCode {
	return e.status
}

// Code returns the short code of the error.
func (e statusError) Code() string {
	return e.code
}

// Unwrap returns the underlying error for error chain compatibility.
func (e statusError) Unwrap() error {
	return e.err
}

// WithCode returns a copy of the error with the given short code.
func (e statusError) WithCode(code string) StatusError {
	return statusError{
		err:    e.err,
		status: e.status,
		code:   code,
	}
}

func newStatusError(message string, status StatusCode) StatusError {
	return statusError{
		err:    errors.New(message),
		status: status,
	}
}

// InvalidArgument creates a new "invalid argument" error.
func InvalidArgument(message string) StatusError {
	return newStatusError(message, CodeInvalidArgument)
}

// NotFound creates a new "not found" error.
func NotFound(message string) StatusError {
	return newStatusError(message, CodeNotFound)
}

// AlreadyExists creates a new "already exists" error.
func AlreadyExists(message string) StatusError {
	return newStatusError(message, CodeAlreadyExists)
}

// FailedPrecond creates a new "failed precondition" error.
func FailedPrecond(message string) StatusError {
	return newStatusError(message, CodeFailedPrecondition)
}

// Internal creates a new "internal" error.
func Internal(message string) StatusError {
	return newStatusError(message, CodeInternal)
}

// Unavailable creates a new "unavailable" error.
func Unavailable(message string) StatusError {
	return newStatusError(message, CodeUnavailable)
}

// StatusOf extracts the status code from an error chain. It returns 0 if no
// status is attached anywhere in the chain.
func StatusOf(err error) StatusCode {
	if err == nil {
		return 0
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status()
	}

	return 0
}

// CodeOf extracts the short code from an error chain, or "" if none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code()
	}

	return ""
}
