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

// Package mongo implements the database interface using MongoDB.
package mongo

import (
	"context"
	"fmt"
	gotime "time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/driftsync/driftsync/pkg/document/key"
	"github.com/driftsync/driftsync/server/backend/database"
	"github.com/driftsync/driftsync/server/logging"
)

const (
	colDocuments  = "documents"
	colOperations = "operations"
)

// Client is a MongoDB-backed implementation of database.Database.
type Client struct {
	config *Config
	client *mongo.Client
}

// Dial creates an instance of Client and dials the given MongoDB.
func Dial(conf *Config) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.ParseConnectionTimeout())
	defer cancel()

	client, err := mongo.Connect(
		ctx,
		options.Client().ApplyURI(conf.ConnectionURI),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingTimeout := conf.ParsePingTimeout()
	ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo %s: %w", pingTimeout, err)
	}

	if err := ensureIndexes(ctx, client.Database(conf.DriftSyncDatabase)); err != nil {
		return nil, err
	}

	logging.DefaultLogger().Infof("MongoDB connected, URI: %s, DB: %s",
		conf.ConnectionURI,
		conf.DriftSyncDatabase,
	)

	return &Client{
		config: conf,
		client: client,
	}, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection(colDocuments).Indexes().CreateMany(ctx, []mongo.IndexModel{{
		Keys:    bson.D{{Key: "doc_key", Value: 1}},
		Options: options.Index().SetUnique(true),
	}, {
		Keys: bson.D{{Key: "workspace_id", Value: 1}},
	}}); err != nil {
		return fmt.Errorf("create document indexes: %w", err)
	}

	if _, err := db.Collection(colOperations).Indexes().CreateMany(ctx, []mongo.IndexModel{{
		Keys: bson.D{
			{Key: "doc_key", Value: 1},
			{Key: "actor", Value: 1},
			{Key: "seq", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}, {
		Keys: bson.D{
			{Key: "doc_key", Value: 1},
			{Key: "server_seq", Value: 1},
		},
	}}); err != nil {
		return fmt.Errorf("create operation indexes: %w", err)
	}

	return nil
}

// Close all resources of this client.
func (c *Client) Close() error {
	if err := c.client.Disconnect(context.Background()); err != nil {
		return fmt.Errorf("close mongo client: %w", err)
	}

	return nil
}

// EnsureDocInfo finds the document of the given key, creating it if it does
// not exist yet.
func (c *Client) EnsureDocInfo(
	ctx context.Context,
	workspaceID string,
	docKey key.Key,
	title string,
) (*database.DocInfo, error) {
	now := gotime.Now()
	res := c.collection(colDocuments).FindOneAndUpdate(ctx, bson.M{
		"doc_key": docKey,
	}, bson.M{
		"$setOnInsert": bson.M{
			"workspace_id": workspaceID,
			"title":        title,
			"version":      int64(0),
			"server_seq":   int64(0),
			"snapshot_seq": int64(0),
			"vector":       bson.M{},
			"created_at":   now,
			"updated_at":   now,
		},
	}, options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After))

	info := &database.DocInfo{}
	if err := res.Decode(info); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", docKey, err, database.ErrStorageUnavailable)
	}

	return info, nil
}

// FindDocInfoByKey finds the document of the given key.
func (c *Client) FindDocInfoByKey(
	ctx context.Context,
	docKey key.Key,
) (*database.DocInfo, error) {
	res := c.collection(colDocuments).FindOne(ctx, bson.M{
		"doc_key": docKey,
	})

	info := &database.DocInfo{}
	if err := res.Decode(info); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%s: %w", docKey, database.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("decode document: %v: %w", err, database.ErrStorageUnavailable)
	}

	return info, nil
}

// FindDocInfosByWorkspace returns the documents of the given workspace.
func (c *Client) FindDocInfosByWorkspace(
	ctx context.Context,
	workspaceID string,
) ([]*database.DocInfo, error) {
	cursor, err := c.collection(colDocuments).Find(ctx, bson.M{
		"workspace_id": workspaceID,
	})
	if err != nil {
		return nil, fmt.Errorf("find documents by workspace: %v: %w", err, database.ErrStorageUnavailable)
	}

	var infos []*database.DocInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("decode documents: %v: %w", err, database.ErrStorageUnavailable)
	}

	return infos, nil
}

// RemoveDocInfo removes the document and its operation log.
func (c *Client) RemoveDocInfo(
	ctx context.Context,
	docKey key.Key,
) error {
	res, err := c.collection(colDocuments).DeleteOne(ctx, bson.M{
		"doc_key": docKey,
	})
	if err != nil {
		return fmt.Errorf("delete document: %v: %w", err, database.ErrStorageUnavailable)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", docKey, database.ErrDocumentNotFound)
	}

	if _, err := c.collection(colOperations).DeleteMany(ctx, bson.M{
		"doc_key": docKey,
	}); err != nil {
		return fmt.Errorf("delete operations: %v: %w", err, database.ErrStorageUnavailable)
	}

	return nil
}

// UpdateDocSnapshot stores the materialized state of the document.
func (c *Client) UpdateDocSnapshot(
	ctx context.Context,
	docKey key.Key,
	version int64,
	serverSeq int64,
	vector map[string]int64,
	snapshot []byte,
) error {
	res, err := c.collection(colDocuments).UpdateOne(ctx, bson.M{
		"doc_key":      docKey,
		"snapshot_seq": bson.M{"$lte": serverSeq},
	}, bson.M{
		"$set": bson.M{
			"version":      version,
			"snapshot_seq": serverSeq,
			"vector":       vector,
			"snapshot":     snapshot,
			"updated_at":   gotime.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("update snapshot: %v: %w", err, database.ErrStorageUnavailable)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", docKey, database.ErrConflictOnUpdate)
	}

	return nil
}

// CreateOperationInfo appends the operation to the document's log and returns
// it with its assigned server sequence.
func (c *Client) CreateOperationInfo(
	ctx context.Context,
	info *database.OperationInfo,
) (*database.OperationInfo, error) {
	res := c.collection(colDocuments).FindOneAndUpdate(ctx, bson.M{
		"doc_key": info.DocKey,
	}, bson.M{
		"$inc": bson.M{"server_seq": int64(1)},
	}, options.FindOneAndUpdate().SetReturnDocument(options.After))

	docInfo := &database.DocInfo{}
	if err := res.Decode(docInfo); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%s: %w", info.DocKey, database.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("decode document: %v: %w", err, database.ErrStorageUnavailable)
	}

	appended := info.DeepCopy()
	appended.ServerSeq = docInfo.ServerSeq
	appended.CreatedAt = gotime.Now()

	if _, err := c.collection(colOperations).InsertOne(ctx, appended); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s:%d: %w",
				info.Actor, info.Seq, database.ErrOperationAlreadyExists)
		}
		return nil, fmt.Errorf("insert operation: %v: %w", err, database.ErrStorageUnavailable)
	}

	return appended, nil
}

// FindOperationInfosSinceServerSeq returns up to limit operations of the
// document after the given server sequence.
func (c *Client) FindOperationInfosSinceServerSeq(
	ctx context.Context,
	docKey key.Key,
	serverSeq int64,
	limit int,
) ([]*database.OperationInfo, error) {
	opts := options.Find().SetSort(bson.D{{Key: "server_seq", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := c.collection(colOperations).Find(ctx, bson.M{
		"doc_key":    docKey,
		"server_seq": bson.M{"$gt": serverSeq},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("find operations: %v: %w", err, database.ErrStorageUnavailable)
	}

	var infos []*database.OperationInfo
	if err := cursor.All(ctx, &infos); err != nil {
		return nil, fmt.Errorf("decode operations: %v: %w", err, database.ErrStorageUnavailable)
	}

	return infos, nil
}

func (c *Client) collection(name string) *mongo.Collection {
	return c.client.Database(c.config.DriftSyncDatabase).Collection(name)
}
