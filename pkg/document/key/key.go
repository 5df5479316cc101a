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

// Package key provides the key of a document.
package key

import (
	"github.com/rs/xid"

	"github.com/driftsync/driftsync/internal/validation"
	"github.com/driftsync/driftsync/pkg/errors"
)

const (
	// MaxKeyLen is the maximum length of a document key.
	MaxKeyLen = 120

	// MinKeyLen is the minimum length of a document key.
	MinKeyLen = 4
)

// ErrInvalidKey is returned when the given key is malformed.
var ErrInvalidKey = errors.InvalidArgument("invalid document key").WithCode("ErrInvalidKey")

// Key is the opaque identifier of a document.
type Key string

// New generates a fresh document key.
func New() Key {
	return Key(xid.New().String())
}

// String returns the string representation of this Key.
func (k Key) String() string {
	return string(k)
}

// Validate checks whether the key is valid.
func (k Key) Validate() error {
	if len(k) < MinKeyLen || len(k) > MaxKeyLen {
		return ErrInvalidKey
	}

	if err := validation.ValidateValue(k.String(), "slug"); err != nil {
		return ErrInvalidKey
	}

	return nil
}
