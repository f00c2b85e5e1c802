// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/syndtr/goleveldb/leveldb"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

// PoolHandle - access to one prefix-partitioned pool of the database
type PoolHandle struct {
	prefix byte
	limit  []byte
	db     *leveldb.DB
}

// Element - a binary data item
type Element struct {
	Key   []byte
	Value []byte
}

// prepend the prefix onto the key
func (p *PoolHandle) prefixKey(key []byte) []byte {
	prefixedKey := make([]byte, 1, len(key)+1)
	prefixedKey[0] = p.prefix
	return append(prefixedKey, key...)
}

// Put - store a key/value bytes pair directly to the database
func (p *PoolHandle) Put(key []byte, value []byte) error {
	return p.db.Put(p.prefixKey(key), value, nil)
}

// PutBatch - add a key/value bytes pair to a pending batch
func (p *PoolHandle) PutBatch(batch *leveldb.Batch, key []byte, value []byte) {
	batch.Put(p.prefixKey(key), value)
}

// Delete - remove a key from the database
func (p *PoolHandle) Delete(key []byte) error {
	return p.db.Delete(p.prefixKey(key), nil)
}

// DeleteBatch - add a key removal to a pending batch
func (p *PoolHandle) DeleteBatch(batch *leveldb.Batch, key []byte) {
	batch.Delete(p.prefixKey(key))
}

// Get - read a value for a given key
//
// returns nil if the key is not present
// this returns the actual element - copy the result if it must be preserved
func (p *PoolHandle) Get(key []byte) ([]byte, error) {
	value, err := p.db.Get(p.prefixKey(key), nil)
	if leveldb.ErrNotFound == err {
		return nil, nil
	} else if nil != err {
		return nil, err
	}
	return value, nil
}

// Has - check if a key exists
func (p *PoolHandle) Has(key []byte) (bool, error) {
	return p.db.Has(p.prefixKey(key), nil)
}

// LastElement - get the element with the highest key in a pool
func (p *PoolHandle) LastElement() (Element, bool, error) {
	maxRange := ldb_util.Range{
		Start: []byte{p.prefix}, // Start of key range, included in the range
		Limit: p.limit,          // Limit of key range, excluded from the range
	}

	iter := p.db.NewIterator(&maxRange, nil)
	defer iter.Release()

	var result Element
	found := false
	if iter.Last() {
		// contents of the returned slice must not be modified, and are
		// only valid until the next call to Next
		dataKey := iter.Key()
		dataValue := iter.Value()

		key := make([]byte, len(dataKey)-1) // strip the prefix
		copy(key, dataKey[1:])

		value := make([]byte, len(dataValue))
		copy(value, dataValue)

		result.Key = key
		result.Value = value
		found = true
	}
	if err := iter.Error(); nil != err {
		return Element{}, false, err
	}
	return result, found, nil
}
