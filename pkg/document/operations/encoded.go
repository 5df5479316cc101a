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

package operations

import (
	"fmt"

	"github.com/driftsync/driftsync/internal/validation"
	"github.com/driftsync/driftsync/pkg/document/crdt"
	"github.com/driftsync/driftsync/pkg/document/time"
)

// Operation type tags on the wire.
const (
	TypeInsert = "insert"
	TypeUpdate = "update"
	TypeDelete = "delete"
)

// Encoded is the wire form of an Operation: what clients submit, what the
// offline queue buffers and what broadcasts carry as deltas.
type Encoded struct {
	Type    string             `json:"type" validate:"required,oneof=insert update delete"`
	Actor   string             `json:"actor" validate:"required,hexadecimal,len=24"`
	Seq     int64              `json:"seq" validate:"required,gte=1"`
	Pos     string             `json:"pos" validate:"required"`
	Value   string             `json:"value"`
	Lamport int64              `json:"lamport" validate:"required,gte=1"`
	Context time.VersionVector `json:"context,omitempty"`
}

// Encode returns the wire form of the given operation.
func Encode(op Operation) *Encoded {
	encoded := &Encoded{
		Actor:   op.ID().Actor().String(),
		Seq:     op.ID().Seq(),
		Pos:     string(op.Pos()),
		Lamport: op.ExecutedAt().Lamport(),
		Context: op.Context(),
	}

	switch o := op.(type) {
	case *Insert:
		encoded.Type = TypeInsert
		encoded.Value = o.Value()
	case *Update:
		encoded.Type = TypeUpdate
		encoded.Value = o.Value()
	case *Delete:
		encoded.Type = TypeDelete
	}

	return encoded
}

// Validate checks whether the wire form is well formed. Malformed operations
// are rejected and never retried.
func (e *Encoded) Validate() error {
	if err := validation.ValidateStruct(e); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalidOperation)
	}

	if err := crdt.Pos(e.Pos).Validate(); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), ErrInvalidOperation)
	}

	return nil
}

// Decode returns the Operation represented by this wire form.
func (e *Encoded) Decode() (Operation, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	actor, err := time.ActorIDFromHex(e.Actor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), ErrInvalidOperation)
	}

	id := NewID(actor, e.Seq)
	pos := crdt.Pos(e.Pos)
	executedAt := time.NewTicket(e.Lamport, actor)
	context := e.Context
	if context == nil {
		context = time.NewVersionVector()
	}

	switch e.Type {
	case TypeInsert:
		return NewInsert(id, pos, e.Value, executedAt, context), nil
	case TypeUpdate:
		return NewUpdate(id, pos, e.Value, executedAt, context), nil
	case TypeDelete:
		return NewDelete(id, pos, executedAt, context), nil
	default:
		return nil, fmt.Errorf("type %q: %w", e.Type, ErrInvalidOperation)
	}
}

// DecodeAll decodes a batch, rejecting the whole batch on the first
// malformed operation.
func DecodeAll(encoded []*Encoded) ([]Operation, error) {
	ops := make([]Operation, 0, len(encoded))
	for _, e := range encoded {
		op, err := e.Decode()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
