// Copyright 2025 The Opslog Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kvstore

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// Bolt is a single-file, on-disk ordered KV backend. Keys are stored and
// scanned in the same byte order BoltDB already maintains its B+tree in,
// which is exactly the ascending lexicographic order the engine's key
// layout (internal/recordkey) depends on — the same role BoltDB plays as
// the storage layer underneath etcd's mvcc package.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if necessary) a BoltDB file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("kvstore: open bolt db %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kvstore: create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Get(_ context.Context, key string) (string, error) {
	var value string
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v != nil {
			found = true
			value = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	if !found {
		return "", ErrNotFound
	}
	return decodeValue(value), nil
}

func (b *Bolt) Batch(_ context.Context, writes []Write) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		for _, w := range writes {
			switch w.Kind {
			case Put:
				if err := bucket.Put([]byte(w.Key), []byte(encodeValue(w.Value))); err != nil {
					return err
				}
			case Del:
				if err := bucket.Delete([]byte(w.Key)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kvstore: batch: %w", err)
	}
	return nil
}

func (b *Bolt) Scan(_ context.Context, gte, lt string) (Iterator, error) {
	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("kvstore: begin scan: %w", err)
	}
	cursor := tx.Bucket(recordsBucket).Cursor()
	return &boltIterator{tx: tx, cursor: cursor, gte: []byte(gte), lt: []byte(lt), started: false}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

type boltIterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	gte, lt []byte
	started bool
	key     string
	value   string
	done    bool
}

func (it *boltIterator) Next() bool {
	if it.done {
		return false
	}
	var k, v []byte
	if !it.started {
		it.started = true
		k, v = it.cursor.Seek(it.gte)
	} else {
		k, v = it.cursor.Next()
	}
	if k == nil || (len(it.lt) > 0 && string(k) >= string(it.lt)) {
		it.done = true
		return false
	}
	it.key = string(k)
	it.value = decodeValue(string(v))
	return true
}

func (it *boltIterator) Key() string   { return it.key }
func (it *boltIterator) Value() string { return it.value }
func (it *boltIterator) Err() error    { return nil }

func (it *boltIterator) Close() error {
	return it.tx.Rollback()
}
