package mongo

import (
	"context"
	"errors"

	"github.com/mandubian/ccos-sub014/workingmemory"
)

// StoreOptions configures the Store wrapper.
type StoreOptions struct {
	Client Client
}

// Store implements workingmemory.Store by delegating to the Mongo client.
type Store struct {
	client Client
}

// NewStore builds a Mongo-backed working-memory store using the provided
// client.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: opts.Client}, nil
}

// NewStoreFromOptions is a helper that instantiates the underlying client
// from connection options.
func NewStoreFromOptions(clientOpts Options) (*Store, error) {
	c, err := New(clientOpts)
	if err != nil {
		return nil, err
	}
	return NewStore(StoreOptions{Client: c})
}

func (s *Store) Append(ctx context.Context, entry workingmemory.Entry) error {
	return s.client.Upsert(ctx, entry)
}

func (s *Store) Get(ctx context.Context, id string) (workingmemory.Entry, bool, error) {
	return s.client.FindByID(ctx, id)
}

func (s *Store) Query(ctx context.Context, params workingmemory.QueryParams) ([]workingmemory.Entry, error) {
	return s.client.Find(ctx, params)
}

// Prune here only enforces maxEntries: a document count is cheap to rank by
// index, while token-budget pruning needs the whole collection scanned and
// is expected to run against the in-memory store in front of this one.
func (s *Store) Prune(ctx context.Context, maxEntries, maxTokens int) error {
	if maxEntries <= 0 {
		return nil
	}
	return s.client.DeleteOlderThanRank(ctx, maxEntries)
}

// Load and Flush are no-ops: Mongo is itself the durable store, so there is
// no sidecar file to replay or rewrite.
func (s *Store) Load(ctx context.Context) error  { return nil }
func (s *Store) Flush(ctx context.Context) error { return nil }
