// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/quillchain/quilld/fault"
)

// exported storage pools
//
// note all must be exported (i.e. initial capital) or initialisation will panic
type pools struct {
	Blocks  *PoolHandle `prefix:"B"`
	Heights *PoolHandle `prefix:"H"`
}

// reserved metadata keys, outside every pool's prefix range
var (
	versionKey = []byte{0x00, 'V', 'E', 'R', 'S', 'I', 'O', 'N'}
	cursorKey  = []byte{0x00, 'C', 'U', 'R', 'S', 'O', 'R'}
)

const currentIndexDBVersion = 0x100

// PoolStore - an open index database and its pools
//
// constructed once by the storage initialiser and passed by handle to
// every consumer; there is no ambient global instance
type PoolStore struct {
	Pool pools

	db *leveldb.DB
}

// Open - open (or create) the index database in the given directory
//
// the second return value reports whether the database already
// existed: false means a freshly created, empty database
func Open(directory string) (*PoolStore, bool, error) {

	opt := &ldb_opt.Options{
		ErrorIfExist:   false,
		ErrorIfMissing: false,
	}

	db, err := leveldb.OpenFile(directory, opt)
	if nil != err {
		return nil, false, err
	}

	version, err := getVersion(db)
	if nil != err {
		db.Close()
		return nil, false, err
	}

	// ensure no database downgrade
	if version > currentIndexDBVersion {
		db.Close()
		return nil, false, fault.ErrIndexVersionTooNew
	}

	existing := 0 != version
	if !existing {
		// database was empty so tag as current version
		if err := putVersion(db, currentIndexDBVersion); nil != err {
			db.Close()
			return nil, false, err
		}
	}

	s := &PoolStore{
		db: db,
	}

	// this will be a struct type
	poolType := reflect.TypeOf(s.Pool)

	// get write access by using pointer + Elem()
	poolValue := reflect.ValueOf(&s.Pool).Elem()

	// scan each field
	for i := 0; i < poolType.NumField(); i += 1 {

		fieldInfo := poolType.Field(i)

		prefixTag := fieldInfo.Tag.Get("prefix")
		if 1 != len(prefixTag) {
			db.Close()
			return nil, false, fmt.Errorf("pool: %v has invalid prefix: %q", fieldInfo, prefixTag)
		}

		prefix := prefixTag[0]
		limit := []byte(nil)
		if prefix < 255 {
			limit = []byte{prefix + 1}
		}

		p := &PoolHandle{
			prefix: prefix,
			limit:  limit,
			db:     db,
		}
		poolValue.Field(i).Set(reflect.ValueOf(p))
	}

	return s, existing, nil
}

// Close - close the database connection
func (s *PoolStore) Close() error {
	if nil == s.db {
		return fault.ErrNotInitialised
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// NewBatch - start gathering writes for one atomic commit
func (s *PoolStore) NewBatch() *leveldb.Batch {
	return new(leveldb.Batch)
}

// Commit - atomically apply a gathered batch
//
// with sync set the write is flushed through the OS before returning
func (s *PoolStore) Commit(batch *leveldb.Batch, sync bool) error {
	return s.db.Write(batch, &ldb_opt.WriteOptions{Sync: sync})
}

// GetCursor - read the flat file write cursor recorded by the last
// committed append
//
// returns ok == false on a fresh database
func (s *PoolStore) GetCursor() (fileNumber uint32, offset uint32, ok bool, err error) {
	value, err := s.db.Get(cursorKey, nil)
	if leveldb.ErrNotFound == err {
		return 0, 0, false, nil
	} else if nil != err {
		return 0, 0, false, err
	}
	if 8 != len(value) {
		return 0, 0, false, fault.ErrCursorCorrupt
	}
	fileNumber = binary.BigEndian.Uint32(value[0:4])
	offset = binary.BigEndian.Uint32(value[4:8])
	return fileNumber, offset, true, nil
}

// PutCursor - add the write cursor to a batch
func (s *PoolStore) PutCursor(batch *leveldb.Batch, fileNumber uint32, offset uint32) {
	value := make([]byte, 8)
	binary.BigEndian.PutUint32(value[0:4], fileNumber)
	binary.BigEndian.PutUint32(value[4:8], offset)
	batch.Put(cursorKey, value)
}

// return the schema version number, zero for an empty database
func getVersion(db *leveldb.DB) (int, error) {
	versionValue, err := db.Get(versionKey, nil)
	if leveldb.ErrNotFound == err {
		return 0, nil
	} else if nil != err {
		return 0, err
	}

	if 4 != len(versionValue) {
		return 0, fmt.Errorf("incompatible database version length: expected: %d  actual: %d", 4, len(versionValue))
	}

	return int(binary.BigEndian.Uint32(versionValue)), nil
}

func putVersion(db *leveldb.DB, version int) error {
	currentVersion := make([]byte, 4)
	binary.BigEndian.PutUint32(currentVersion, uint32(version))

	return db.Put(versionKey, currentVersion, nil)
}
