// Package mongo implements an optional durable backend for working memory,
// storing one document per entry in a MongoDB collection indexed by id,
// timestamp and tag: a thin Client interface plus health.Pinger, a
// collection wrapper that keeps the driver types out of the public
// surface, and New(opts) validating required fields and calling
// ensureIndexes.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/mandubian/ccos-sub014/workingmemory"
)

const (
	defaultCollection = "working_memory"
	defaultTimeout    = 5 * time.Second
	clientName        = "working-memory-mongo"
)

// Client exposes Mongo-backed operations for working memory entries.
type Client interface {
	health.Pinger

	Upsert(ctx context.Context, entry workingmemory.Entry) error
	FindByID(ctx context.Context, id string) (workingmemory.Entry, bool, error)
	Find(ctx context.Context, params workingmemory.QueryParams) ([]workingmemory.Entry, error)
	DeleteOlderThanRank(ctx context.Context, keepNewest int) error
	All(ctx context.Context) ([]workingmemory.Entry, error)
}

// Options configures the Mongo client implementation.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

type client struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a Client backed by the provided MongoDB client.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collectionName := opts.Collection
	if collectionName == "" {
		collectionName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collectionName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, coll); err != nil {
		return nil, err
	}
	return &client{mongo: opts.Client, coll: coll, timeout: timeout}, nil
}

func (c *client) Name() string { return clientName }

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type entryDocument struct {
	ID           string            `bson:"_id"`
	Title        string            `bson:"title"`
	Content      string            `bson:"content"`
	Tags         []string          `bson:"tags"`
	TimestampS   int64             `bson:"timestamp_s"`
	ApproxTokens int               `bson:"approx_tokens"`
	Meta         map[string]string `bson:"meta,omitempty"`
}

func toDocument(e workingmemory.Entry) entryDocument {
	return entryDocument{
		ID: e.ID, Title: e.Title, Content: e.Content, Tags: e.Tags,
		TimestampS: e.TimestampS, ApproxTokens: e.ApproxTokens, Meta: e.Meta,
	}
}

func (d entryDocument) toEntry() workingmemory.Entry {
	return workingmemory.Entry{
		ID: d.ID, Title: d.Title, Content: d.Content, Tags: d.Tags,
		TimestampS: d.TimestampS, ApproxTokens: d.ApproxTokens, Meta: d.Meta,
	}
}

func (c *client) Upsert(ctx context.Context, entry workingmemory.Entry) error {
	if entry.ID == "" {
		return errors.New("entry id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"_id": entry.ID}
	update := bson.M{"$set": toDocument(entry)}
	_, err := c.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (c *client) FindByID(ctx context.Context, id string) (workingmemory.Entry, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var doc entryDocument
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return workingmemory.Entry{}, false, nil
	}
	if err != nil {
		return workingmemory.Entry{}, false, err
	}
	return doc.toEntry(), true, nil
}

func (c *client) Find(ctx context.Context, params workingmemory.QueryParams) ([]workingmemory.Entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	if len(params.TagsAny) > 0 {
		filter["tags"] = bson.M{"$in": params.TagsAny}
	}
	tsFilter := bson.M{}
	if params.FromTS != 0 {
		tsFilter["$gte"] = params.FromTS
	}
	if params.ToTS != 0 {
		tsFilter["$lte"] = params.ToTS
	}
	if len(tsFilter) > 0 {
		filter["timestamp_s"] = tsFilter
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp_s", Value: -1}})
	if params.Limit > 0 {
		findOpts.SetLimit(int64(params.Limit))
	}
	cursor, err := c.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]workingmemory.Entry, len(docs))
	for i, d := range docs {
		out[i] = d.toEntry()
	}
	return out, nil
}

func (c *client) All(ctx context.Context) ([]workingmemory.Entry, error) {
	return c.Find(ctx, workingmemory.QueryParams{})
}

// DeleteOlderThanRank removes every document except the keepNewest most
// recent by timestamp, used to implement budget-pressure eviction without
// pulling the whole collection into process memory. A keepNewest of zero or
// less deletes nothing.
func (c *client) DeleteOlderThanRank(ctx context.Context, keepNewest int) error {
	if keepNewest <= 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "timestamp_s", Value: -1}}).
		SetSkip(int64(keepNewest)).
		SetProjection(bson.M{"_id": 1})
	cursor, err := c.coll.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	var staleIDs []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		staleIDs = append(staleIDs, doc.ID)
	}
	if len(staleIDs) == 0 {
		return nil
	}
	_, err = c.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": staleIDs}})
	return err
}

func ensureIndexes(ctx context.Context, coll *mongodriver.Collection) error {
	models := []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "timestamp_s", Value: -1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
	}
	_, err := coll.Indexes().CreateMany(ctx, models)
	return err
}
