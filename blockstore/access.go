// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"bytes"
	"encoding/binary"

	gocache "github.com/patrickmn/go-cache"

	"github.com/quillchain/quilld/blockdigest"
	"github.com/quillchain/quilld/blockfile"
	"github.com/quillchain/quilld/fault"
)

// Append - store one raw block
//
// the block's identity is its content digest; appending a block that
// is already stored writes nothing and returns the existing location
//
// the returned location is durable: the record is flushed to its flat
// file before the index entry and write cursor commit as one batch
func (s *Store) Append(payload []byte, meta BlockMetadata) (blockdigest.Digest, blockfile.Location, error) {
	digest := blockdigest.NewDigest(payload)

	s.Lock()
	defer s.Unlock()

	if nil == s.files {
		return digest, blockfile.Location{}, fault.ErrNotInitialised
	}

	// idempotent re-append
	if existing, _, found, err := s.getEntry(digest); nil != err {
		return digest, blockfile.Location{}, err
	} else if found {
		s.log.Debugf("append of existing block: %v", digest)
		return digest, existing, nil
	}

	loc, err := s.files.Append(payload)
	if nil != err {
		return digest, blockfile.Location{}, err
	}

	batch := s.pools.NewBatch()
	s.pools.Pool.Blocks.PutBatch(batch, digest[:], serializeEntry(loc, meta))

	heightKey := make([]byte, 8)
	binary.BigEndian.PutUint64(heightKey, meta.Height)
	s.pools.Pool.Heights.PutBatch(batch, heightKey, digest[:])

	fileNumber, offset := s.files.WriteCursor()
	s.pools.PutCursor(batch, fileNumber, offset)

	if err := s.pools.Commit(batch, s.syncWrites); nil != err {
		return digest, blockfile.Location{}, err
	}

	s.payloadCache.Set(digest.String(), append([]byte(nil), payload...), gocache.DefaultExpiration)

	return digest, loc, nil
}

// Read - return the payload stored at a location
//
// a location can only have come from a completed append, so a short
// file or checksum failure here is a hard corruption error
func (s *Store) Read(loc blockfile.Location) ([]byte, error) {
	if nil == s.files {
		return nil, fault.ErrNotInitialised
	}
	return s.files.Read(loc)
}

// Fetch - return the payload of a block by its identity
func (s *Store) Fetch(digest blockdigest.Digest) ([]byte, error) {
	if nil == s.files {
		return nil, fault.ErrNotInitialised
	}
	if cached, found := s.payloadCache.Get(digest.String()); found {
		return cached.([]byte), nil
	}

	loc, _, found, err := s.getEntry(digest)
	if nil != err {
		return nil, err
	}
	if !found {
		return nil, fault.ErrBlockNotFound
	}

	payload, err := s.files.Read(loc)
	if nil != err {
		return nil, err
	}

	// the frame checksum guards the file, this guards the index
	if blockdigest.NewDigest(payload) != digest {
		s.log.Criticalf("digest mismatch for block: %v", digest)
		return nil, fault.ErrBlockFileChecksum
	}

	s.payloadCache.Set(digest.String(), payload, gocache.DefaultExpiration)
	return payload, nil
}

// GetEntry - look up the location and metadata of a block
func (s *Store) GetEntry(digest blockdigest.Digest) (blockfile.Location, BlockMetadata, bool, error) {
	return s.getEntry(digest)
}

func (s *Store) getEntry(digest blockdigest.Digest) (blockfile.Location, BlockMetadata, bool, error) {
	if nil == s.pools {
		return blockfile.Location{}, BlockMetadata{}, false, fault.ErrNotInitialised
	}
	value, err := s.pools.Pool.Blocks.Get(digest[:])
	if nil != err {
		return blockfile.Location{}, BlockMetadata{}, false, err
	}
	if nil == value {
		return blockfile.Location{}, BlockMetadata{}, false, nil
	}
	loc, meta, err := deserializeEntry(value)
	if nil != err {
		return blockfile.Location{}, BlockMetadata{}, false, err
	}
	return loc, meta, true, nil
}

// PutEntry - record the location of an already stored block
//
// identical repeat calls are no-ops; a block identity is content
// derived so recording a different location for a present identity is
// a logic error and refused
func (s *Store) PutEntry(digest blockdigest.Digest, loc blockfile.Location, meta BlockMetadata) error {
	s.Lock()
	defer s.Unlock()

	if nil == s.pools {
		return fault.ErrNotInitialised
	}

	existing, err := s.pools.Pool.Blocks.Get(digest[:])
	if nil != err {
		return err
	}
	entry := serializeEntry(loc, meta)
	if nil != existing {
		if bytes.Equal(existing, entry) {
			return nil
		}
		s.log.Criticalf("conflicting entry for block: %v", digest)
		return fault.ErrIndexEntryConflict
	}

	batch := s.pools.NewBatch()
	s.pools.Pool.Blocks.PutBatch(batch, digest[:], entry)

	heightKey := make([]byte, 8)
	binary.BigEndian.PutUint64(heightKey, meta.Height)
	s.pools.Pool.Heights.PutBatch(batch, heightKey, digest[:])

	return s.pools.Commit(batch, s.syncWrites)
}

// Iterate - walk every index entry in identity order
//
// the traversal is finite and each call restarts from the first
// entry; the callback ends the walk early by returning an error
func (s *Store) Iterate(f func(digest blockdigest.Digest, loc blockfile.Location, meta BlockMetadata) error) error {
	if nil == s.pools {
		return fault.ErrNotInitialised
	}
	return s.pools.Pool.Blocks.NewFetchCursor().Map(func(key []byte, value []byte) error {
		var digest blockdigest.Digest
		if err := blockdigest.DigestFromBytes(&digest, key); nil != err {
			return err
		}
		loc, meta, err := deserializeEntry(value)
		if nil != err {
			return err
		}
		return f(digest, loc, meta)
	})
}

// IterateByHeight - walk the chain in ascending height order
func (s *Store) IterateByHeight(f func(height uint64, digest blockdigest.Digest) error) error {
	if nil == s.pools {
		return fault.ErrNotInitialised
	}
	return s.pools.Pool.Heights.NewFetchCursor().Map(func(key []byte, value []byte) error {
		if 8 != len(key) {
			return fault.ErrIndexEntryCorrupt
		}
		var digest blockdigest.Digest
		if err := blockdigest.DigestFromBytes(&digest, value); nil != err {
			return err
		}
		return f(binary.BigEndian.Uint64(key), digest)
	})
}

// LastHeight - the highest indexed height
func (s *Store) LastHeight() (uint64, bool, error) {
	if nil == s.pools {
		return 0, false, fault.ErrNotInitialised
	}
	last, found, err := s.pools.Pool.Heights.LastElement()
	if nil != err || !found {
		return 0, false, err
	}
	if 8 != len(last.Key) {
		return 0, false, fault.ErrIndexEntryCorrupt
	}
	return binary.BigEndian.Uint64(last.Key), true, nil
}
