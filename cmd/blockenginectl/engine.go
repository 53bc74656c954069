// Command blockenginectl is a small inspection and manipulation tool for
// blockengine storage files. Every subcommand operates on a single
// buffered-file-backed object store with one named B+ tree root.
package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blockengine/blockengine/blockstore"
	"github.com/blockengine/blockengine/btree"
	"github.com/blockengine/blockengine/internal/logging"
	"github.com/blockengine/blockengine/objectstore"
)

const treeRootName = "tree"

// engine bundles the open storage, object store and tree for one CLI
// invocation; its Close method closes the storage. runID tags
// every log line this invocation emits so separate blockenginectl runs
// against the same file can be told apart in aggregated logs.
type engine struct {
	storage *blockstore.BufferedFileStorage
	store   *objectstore.ObjectStore
	tree    *btree.Tree
	log     logging.Logger
	runID   uuid.UUID
}

func openEngine(ctx context.Context, path string, create bool) (*engine, error) {
	runID := uuid.New()
	log := logging.New().WithFields(map[string]any{"run_id": runID.String(), "path": path})

	storage, err := blockstore.OpenBufferedFile(path, blockstore.BufferedFileOptions{
		PageSize: blockstore.DefaultPageSize,
		Writable: true,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("opened buffered-file storage (create=%t)", create)

	opts := objectstore.Options{PageSize: blockstore.DefaultPageSize, WithRegistry: true}
	var store *objectstore.ObjectStore
	if create {
		store, err = objectstore.Create(ctx, storage, opts)
	} else {
		store, err = objectstore.Open(ctx, storage, opts)
	}
	if err != nil {
		storage.Close(ctx)
		return nil, fmt.Errorf("open object store: %w", err)
	}

	rootHandle, err := store.GetObject(ctx, treeRootName)
	if err != nil {
		storage.Close(ctx)
		return nil, fmt.Errorf("look up tree root: %w", err)
	}

	var tree *btree.Tree
	if rootHandle == objectstore.KeyNull {
		tree, rootHandle, err = btree.New(ctx, store, btree.DefaultRate)
		if err != nil {
			storage.Close(ctx)
			return nil, fmt.Errorf("create tree: %w", err)
		}
		if err := store.Register(ctx, treeRootName, rootHandle); err != nil {
			storage.Close(ctx)
			return nil, fmt.Errorf("register tree root: %w", err)
		}
	} else {
		tree = btree.Open(store, btree.DefaultRate, rootHandle)
	}

	return &engine{storage: storage, store: store, tree: tree, log: log, runID: runID}, nil
}

func (e *engine) Close(ctx context.Context) error {
	e.log.Info("closing storage")
	return e.storage.Close(ctx)
}
