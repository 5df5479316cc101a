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

package time

import (
	"sort"
	"strconv"
	"strings"
)

// VersionVector maps an actor's hex ID to the highest Lamport timestamp seen
// from that actor. An operation carries the vector of the state it was
// generated against as its causal context. Keys are hex strings so the vector
// round-trips through JSON unchanged.
type VersionVector map[string]int64

// NewVersionVector creates a new instance of VersionVector.
func NewVersionVector() VersionVector {
	return make(VersionVector)
}

// VersionOf returns the version of the given actor, 0 when absent.
func (v VersionVector) VersionOf(actor string) int64 {
	return v[actor]
}

// Set sets the given actor's version to the given value.
func (v VersionVector) Set(actor string, i int64) {
	v[actor] = i
}

// Forward raises the given actor's version if the given value is higher.
func (v VersionVector) Forward(actor string, i int64) {
	if v[actor] < i {
		v[actor] = i
	}
}

// DeepCopy creates a deep copy of this VersionVector.
func (v VersionVector) DeepCopy() VersionVector {
	copied := NewVersionVector()
	for k, val := range v {
		copied[k] = val
	}
	return copied
}

// Max modifies the receiver in place to the entry-wise maximum of itself and
// the given vector, and returns the receiver.
func (v VersionVector) Max(other VersionVector) VersionVector {
	for key, value := range other {
		if v[key] < value {
			v[key] = value
		}
	}
	return v
}

// Marshal returns a deterministic string encoding of this vector.
func (v VersionVector) Marshal() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	builder := strings.Builder{}
	builder.WriteRune('{')
	for i, k := range keys {
		if i != 0 {
			builder.WriteRune(',')
		}
		builder.WriteString(k)
		builder.WriteRune(':')
		builder.WriteString(strconv.FormatInt(v[k], 10))
	}
	builder.WriteRune('}')
	return builder.String()
}
