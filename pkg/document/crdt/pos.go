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

package crdt

import (
	"fmt"
	"strings"

	"github.com/driftsync/driftsync/pkg/document/time"
	"github.com/driftsync/driftsync/pkg/errors"
)

// posDigits is the digit alphabet of the fractional part, in ascending ASCII
// order so plain string comparison orders positions.
const posDigits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// posSep separates the fractional part from the replica disambiguator. It is
// below every digit in ASCII, which keeps a prefix-extended fraction ordered
// after its prefix.
const posSep = "."

// ErrInvalidPos is returned when a position key is malformed.
var ErrInvalidPos = errors.InvalidArgument("invalid position key").WithCode("ErrInvalidPos")

// Pos identifies a position in a document. It is a fractional key: a new Pos
// can always be generated strictly between two existing ones without
// renumbering, and two replicas generating a Pos between the same neighbors
// concurrently produce distinct keys with a deterministic relative order,
// because the generating actor and sequence are part of the key.
type Pos string

// Between returns a Pos strictly between left and right. An empty left means
// the head of the document and an empty right means the tail.
func Between(left, right Pos, actor *time.ActorID, seq int64) (Pos, error) {
	leftFrac := left.frac()
	rightFrac := right.frac()

	if right != "" && leftFrac >= rightFrac {
		return "", fmt.Errorf("between %q and %q: %w", left, right, ErrInvalidPos)
	}

	frac, err := midpoint(leftFrac, rightFrac)
	if err != nil {
		return "", err
	}

	return Pos(frac + posSep + actor.String() + fmt.Sprintf("%016d", seq)), nil
}

// Compare returns an integer comparing two positions.
func (p Pos) Compare(other Pos) int {
	return strings.Compare(string(p), string(other))
}

// Validate checks whether the position key is well formed.
func (p Pos) Validate() error {
	frac, _, found := strings.Cut(string(p), posSep)
	if !found || frac == "" {
		return fmt.Errorf("%q: %w", p, ErrInvalidPos)
	}
	if strings.HasSuffix(frac, posDigits[:1]) {
		return fmt.Errorf("%q has trailing zero digit: %w", p, ErrInvalidPos)
	}
	for i := 0; i < len(frac); i++ {
		if strings.IndexByte(posDigits, frac[i]) < 0 {
			return fmt.Errorf("%q: %w", p, ErrInvalidPos)
		}
	}
	return nil
}

// frac returns the fractional part of the position key.
func (p Pos) frac() string {
	frac, _, _ := strings.Cut(string(p), posSep)
	return frac
}

// midpoint returns a fraction strictly between a and b. An empty a means
// negative infinity and an empty b means positive infinity. Generated
// fractions never end with the smallest digit, which keeps the recursion
// well-founded.
func midpoint(a, b string) (string, error) {
	if b != "" && a >= b {
		return "", fmt.Errorf("midpoint of %q and %q: %w", a, b, ErrInvalidPos)
	}

	if b != "" {
		n := 0
		for {
			ca := byte(posDigits[0])
			if n < len(a) {
				ca = a[n]
			}
			if n >= len(b) || ca != b[n] {
				break
			}
			n++
		}
		if n > 0 {
			rest, err := midpoint(sliceFrom(a, n), sliceFrom(b, n))
			if err != nil {
				return "", err
			}
			return b[:n] + rest, nil
		}
	}

	digitA := 0
	if a != "" {
		digitA = strings.IndexByte(posDigits, a[0])
	}
	digitB := len(posDigits)
	if b != "" {
		digitB = strings.IndexByte(posDigits, b[0])
	}
	if digitA < 0 || digitB < 0 {
		return "", fmt.Errorf("midpoint of %q and %q: %w", a, b, ErrInvalidPos)
	}

	if digitB-digitA > 1 {
		return string(posDigits[(digitA+digitB+1)/2]), nil
	}

	// The first digits are adjacent.
	if len(b) > 1 {
		return b[:1], nil
	}

	rest, err := midpoint(sliceFrom(a, 1), "")
	if err != nil {
		return "", err
	}
	return string(posDigits[digitA]) + rest, nil
}

func sliceFrom(s string, n int) string {
	if n >= len(s) {
		return ""
	}
	return s[n:]
}
