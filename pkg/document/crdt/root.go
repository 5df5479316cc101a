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

// Package crdt provides the conflict-free replicated state of a document: a
// map of fractional position keys to last-writer-wins registers with
// tombstones. Applying the same operation set in any order, with any
// duplication, yields the same state.
package crdt

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/driftsync/driftsync/pkg/document/time"
)

// Register is the value slot of a single position. The value and the
// tombstone are independent last-writer-wins cells; keeping them independent
// makes the fold order-insensitive even for the hidden (tombstoned) state,
// so snapshots of converged replicas are byte-identical.
type Register struct {
	value     string
	valueAt   *time.Ticket
	removedAt *time.Ticket
}

// Value returns the current value of the register.
func (r *Register) Value() string {
	return r.value
}

// ValueAt returns the ticket of the winning write, or nil if the position
// has only ever been deleted.
func (r *Register) ValueAt() *time.Ticket {
	return r.valueAt
}

// Removed returns whether the register is tombstoned.
func (r *Register) Removed() bool {
	return r.removedAt != nil
}

// Element is a live position-value pair of the document.
type Element struct {
	Pos   Pos    `json:"pos"`
	Value string `json:"value"`
}

// Root is the materialized CRDT state of a document.
//
// Merge rules, applied identically on every replica:
//   - a write (insert or update) to a position wins if its ticket is higher
//     than the register's current one; the (lamport, actorID) pair makes the
//     comparison a total order, so ties are impossible;
//   - a delete tombstones the position instead of removing it, and a
//     tombstone is permanent: any write to a tombstoned position is dropped
//     no matter its ticket, so a delete concurrent with updates always wins;
//   - every operation is recorded by its op ID, and re-applying a recorded
//     op ID is a no-op.
type Root struct {
	registers map[Pos]*Register
	applied   map[string]struct{}
}

// NewRoot creates an empty Root.
func NewRoot() *Root {
	return &Root{
		registers: make(map[Pos]*Register),
		applied:   make(map[string]struct{}),
	}
}

// HasApplied returns whether the operation with the given key has already
// been folded into this root.
func (r *Root) HasApplied(opKey string) bool {
	_, ok := r.applied[opKey]
	return ok
}

// MarkApplied records the operation key as folded in.
func (r *Root) MarkApplied(opKey string) {
	r.applied[opKey] = struct{}{}
}

// Write applies an insert or update to the given position. It returns
// whether the visible state changed: a write losing the LWW race or landing
// on a tombstoned position changes nothing the reader can see.
func (r *Root) Write(pos Pos, value string, executedAt *time.Ticket) bool {
	reg, ok := r.registers[pos]
	if !ok {
		reg = &Register{}
		r.registers[pos] = reg
	}

	if reg.valueAt == nil || executedAt.After(reg.valueAt) {
		reg.value = value
		reg.valueAt = executedAt
		return reg.removedAt == nil
	}

	return false
}

// Remove tombstones the given position. A register is created if the delete
// arrives before any write to the position, so later-arriving concurrent
// writes are still dropped. It returns whether the visible state changed.
func (r *Root) Remove(pos Pos, executedAt *time.Ticket) bool {
	reg, ok := r.registers[pos]
	if !ok {
		r.registers[pos] = &Register{removedAt: executedAt}
		return false
	}

	wasLive := reg.removedAt == nil
	if reg.removedAt == nil || executedAt.After(reg.removedAt) {
		reg.removedAt = executedAt
	}

	return wasLive && reg.valueAt != nil
}

// Register returns the register at the given position, tombstoned or not.
func (r *Root) Register(pos Pos) (*Register, bool) {
	reg, ok := r.registers[pos]
	return reg, ok
}

// Elements returns the live position-value pairs in position order.
func (r *Root) Elements() []Element {
	elements := make([]Element, 0, len(r.registers))
	for pos, reg := range r.registers {
		if reg.removedAt != nil {
			continue
		}
		elements = append(elements, Element{Pos: pos, Value: reg.value})
	}

	sort.Slice(elements, func(i, j int) bool {
		return elements[i].Pos.Compare(elements[j].Pos) < 0
	})
	return elements
}

// Len returns the number of live positions.
func (r *Root) Len() int {
	count := 0
	for _, reg := range r.registers {
		if reg.removedAt == nil {
			count++
		}
	}
	return count
}

// Marshal returns the deterministic JSON encoding of the live elements.
func (r *Root) Marshal() string {
	bytes, err := json.Marshal(r.Elements())
	if err != nil {
		return "[]"
	}
	return string(bytes)
}

type ticketJSON struct {
	Lamport int64  `json:"lamport"`
	Actor   string `json:"actor"`
}

type registerJSON struct {
	Value     string      `json:"value"`
	ValueAt   *ticketJSON `json:"value_at,omitempty"`
	RemovedAt *ticketJSON `json:"removed_at,omitempty"`
}

type rootJSON struct {
	Registers map[string]registerJSON `json:"registers"`
	Applied   []string                `json:"applied"`
}

func encodeTicket(t *time.Ticket) ticketJSON {
	return ticketJSON{Lamport: t.Lamport(), Actor: t.ActorID().String()}
}

func decodeTicket(t ticketJSON) (*time.Ticket, error) {
	actor, err := time.ActorIDFromHex(t.Actor)
	if err != nil {
		return nil, fmt.Errorf("decode ticket actor: %w", err)
	}
	return time.NewTicket(t.Lamport, actor), nil
}

// Snapshot returns the full encoding of this root, tombstones included.
func (r *Root) Snapshot() ([]byte, error) {
	encoded := rootJSON{
		Registers: make(map[string]registerJSON, len(r.registers)),
		Applied:   make([]string, 0, len(r.applied)),
	}

	for pos, reg := range r.registers {
		rj := registerJSON{Value: reg.value}
		if reg.valueAt != nil {
			valueAt := encodeTicket(reg.valueAt)
			rj.ValueAt = &valueAt
		}
		if reg.removedAt != nil {
			removed := encodeTicket(reg.removedAt)
			rj.RemovedAt = &removed
		}
		encoded.Registers[string(pos)] = rj
	}

	for opKey := range r.applied {
		encoded.Applied = append(encoded.Applied, opKey)
	}
	sort.Strings(encoded.Applied)

	bytes, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("marshal root: %w", err)
	}
	return bytes, nil
}

// FromSnapshot restores a Root from the encoding produced by Snapshot.
func FromSnapshot(snapshot []byte) (*Root, error) {
	root := NewRoot()
	if len(snapshot) == 0 {
		return root, nil
	}

	var encoded rootJSON
	if err := json.Unmarshal(snapshot, &encoded); err != nil {
		return nil, fmt.Errorf("unmarshal root: %w", err)
	}

	for pos, rj := range encoded.Registers {
		reg := &Register{value: rj.Value}
		if rj.ValueAt != nil {
			valueAt, err := decodeTicket(*rj.ValueAt)
			if err != nil {
				return nil, err
			}
			reg.valueAt = valueAt
		}
		if rj.RemovedAt != nil {
			removedAt, err := decodeTicket(*rj.RemovedAt)
			if err != nil {
				return nil, err
			}
			reg.removedAt = removedAt
		}
		root.registers[Pos(pos)] = reg
	}

	for _, opKey := range encoded.Applied {
		root.applied[opKey] = struct{}{}
	}

	return root, nil
}
