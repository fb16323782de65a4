// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package jsondata is the content addressed store for task and process data.
// Payloads are identified by the sha256 of their canonical JSON and written at most once.
package jsondata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pbinitiative/zentask/pkg/bpmn/runtime"
	"github.com/pbinitiative/zentask/pkg/storage"
)

type Store struct {
	reader storage.JsonDataStorageReader
	cache  *expirable.LRU[string, []byte]
}

func NewStore(reader storage.JsonDataStorageReader, size int, ttl time.Duration) *Store {
	return &Store{
		reader: reader,
		cache:  expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

// Serialize returns the hash and canonical bytes of value without staging anything.
func Serialize(value any) (string, []byte, error) {
	if value == nil {
		value = map[string]any{}
	}
	hash, data, err := runtime.ContentHash(value)
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize json data: %w", err)
	}
	return hash, data, nil
}

// Add serializes value and stages it into batch unless it is already known to be stored.
func (s *Store) Add(ctx context.Context, batch storage.Batch, value any) (string, error) {
	hash, data, err := Serialize(value)
	if err != nil {
		return "", err
	}
	if err := s.StoreIfAbsent(ctx, batch, map[string][]byte{hash: data}); err != nil {
		return "", err
	}
	return hash, nil
}

// StoreIfAbsent stages every blob of the map that is not cached as persisted. The
// storage write itself is a no-op on an existing hash.
func (s *Store) StoreIfAbsent(ctx context.Context, batch storage.Batch, blobs map[string][]byte) error {
	hashes := make([]string, 0, len(blobs))
	for hash := range blobs {
		if s.cache.Contains(hash) {
			continue
		}
		hashes = append(hashes, hash)
	}
	if len(hashes) == 0 {
		return nil
	}
	// stable statement order keeps batches reproducible
	sort.Strings(hashes)
	for _, hash := range hashes {
		data := blobs[hash]
		if err := batch.SaveJsonData(ctx, runtime.JsonData{Hash: hash, Data: data}); err != nil {
			return fmt.Errorf("failed to stage json data %s: %w", hash, err)
		}
	}
	batch.AddPostFlushAction(ctx, func() {
		for _, hash := range hashes {
			s.cache.Add(hash, blobs[hash])
		}
	})
	return nil
}

// Fetch returns the raw bytes stored under hash.
func (s *Store) Fetch(ctx context.Context, hash string) ([]byte, error) {
	if data, ok := s.cache.Get(hash); ok {
		return data, nil
	}
	jd, err := s.reader.FindJsonData(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.cache.Add(hash, jd.Data)
	return jd.Data, nil
}

// FetchMap decodes the blob stored under hash into a map. An empty hash yields an empty map.
func (s *Store) FetchMap(ctx context.Context, hash string) (map[string]any, error) {
	res := map[string]any{}
	if hash == "" {
		return res, nil
	}
	data, err := s.Fetch(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode json data %s: %w", hash, err)
	}
	return res, nil
}
