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

package memory

import (
	memdb "github.com/hashicorp/go-memdb"
)

var (
	tblDocuments  = "documents"
	tblOperations = "operations"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblDocuments: {
			Name: tblDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
				"workspace_id": {
					Name:    "workspace_id",
					Indexer: &memdb.StringFieldIndex{Field: "WorkspaceID"},
				},
			},
		},
		tblOperations: {
			Name: tblOperations,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:   "id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "DocKey"},
							&memdb.StringFieldIndex{Field: "Actor"},
							&memdb.IntFieldIndex{Field: "Seq"},
						},
					},
				},
				"doc_key_server_seq": {
					Name: "doc_key_server_seq",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "DocKey"},
							&memdb.IntFieldIndex{Field: "ServerSeq"},
						},
					},
				},
			},
		},
	},
}
