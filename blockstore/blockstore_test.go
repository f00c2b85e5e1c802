// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillchain/quilld/blockdigest"
	"github.com/quillchain/quilld/blockfile"
	"github.com/quillchain/quilld/blockstore"
	"github.com/quillchain/quilld/chain"
	"github.com/quillchain/quilld/fault"
)

// mirrors the behavior an operator sees when relocating block files:
// a missing override refuses to start and creates nothing, an
// existing one receives only the namespaced blocks directory while
// the index stays under the data root
func TestBlocksDirectoryOverride(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	dataDir := filepath.Join(tmp, "node0")
	override := filepath.Join(tmp, "blocksdir")

	cfg := blockstore.Config{
		DataDirectory:    dataDir,
		BlocksDirectory:  override,
		Chain:            chain.Regtest,
		MaxBlockFileSize: 4096,
		SyncWrites:       true,
	}

	// nonexistent override directory refuses to start
	_, err := blockstore.Initialise(cfg)
	assert.Equal(t, fault.ErrBlocksDirectoryMissing, err, "missing override accepted")
	assert.True(t, fault.IsErrConfiguration(err), "configuration class")

	// and must not have created anything under the refused path
	_, err = os.Stat(override)
	assert.True(t, os.IsNotExist(err), "override directory was created")

	// create the directory and retry
	err = os.Mkdir(override, 0o700)
	assert.Nil(t, err, "mkdir error")

	s, err := blockstore.Initialise(cfg)
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	defer s.Close()

	// namespaced blocks directory under the override
	info, err := os.Stat(filepath.Join(override, "regtest", "blocks"))
	assert.Nil(t, err, "namespace directory missing")
	assert.True(t, info.IsDir(), "namespace path is not a directory")

	// but never an un-namespaced one
	_, err = os.Stat(filepath.Join(override, "blocks"))
	assert.True(t, os.IsNotExist(err), "blocks directory created without namespace")

	appendChain(t, s, 10, 200)

	// flat files under the override...
	_, err = os.Stat(filepath.Join(override, "regtest", "blocks", "blk00000.dat"))
	assert.Nil(t, err, "blk00000.dat missing under override")

	// ...the index under the data root
	info, err = os.Stat(filepath.Join(dataDir, "regtest", "blocks", "index"))
	assert.Nil(t, err, "index directory missing under data root")
	assert.True(t, info.IsDir(), "index path is not a directory")

	// and no index beneath the override
	_, err = os.Stat(filepath.Join(override, "regtest", "blocks", "index"))
	assert.True(t, os.IsNotExist(err), "index directory created under override")
}

func TestInitialiseDefaultRoot(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	// the default root itself may be created on first run
	dataDir := filepath.Join(tmp, "not-yet-existing", "node0")

	s, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: dataDir,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	defer s.Close()

	assert.Equal(t, filepath.Join(dataDir, "regtest", "blocks"), s.BlocksPath(), "blocks path")
	assert.Equal(t, filepath.Join(dataDir, "regtest", "blocks", "index"), s.IndexPath(), "index path")
}

func TestInitialiseUnwritableRoot(t *testing.T) {
	if 0 == os.Geteuid() {
		t.Skip("root ignores directory permissions")
	}

	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	dataDir := filepath.Join(tmp, "node0")
	err := os.Mkdir(dataDir, 0o500)
	assert.Nil(t, err, "mkdir error")
	defer os.Chmod(dataDir, 0o700)

	_, err = blockstore.Initialise(blockstore.Config{
		DataDirectory: dataDir,
		Chain:         chain.Regtest,
	})
	assert.Equal(t, fault.ErrDataDirectoryNotWritable, err, "unwritable root accepted")
	assert.True(t, fault.IsErrConfiguration(err), "configuration class")
}

func TestInitialiseInvalidChain(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	_, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         "no-such-chain",
	})
	assert.Equal(t, fault.ErrInvalidChain, err, "invalid chain accepted")
}

// two chains sharing one root must never touch each other's data
func TestNamespaceIsolation(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	regtest, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise regtest error: %s", err)
	}
	defer regtest.Close()

	testnet, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Testnet,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise testnet error: %s", err)
	}
	defer testnet.Close()

	digest, _, err := regtest.Append(makeBlock(1, 100), blockstore.BlockMetadata{Height: 1})
	assert.Nil(t, err, "append error")

	_, err = testnet.Fetch(digest)
	assert.Equal(t, fault.ErrBlockNotFound, err, "namespace isolation broken")

	_, err = os.Stat(filepath.Join(tmp, "regtest", "blocks"))
	assert.Nil(t, err, "regtest namespace missing")
	_, err = os.Stat(filepath.Join(tmp, "testnet", "blocks"))
	assert.Nil(t, err, "testnet namespace missing")
}

func TestAppendFetchRoundTrip(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	s, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	defer s.Close()

	payload := makeBlock(42, 300)
	digest, loc, err := s.Append(payload, blockstore.BlockMetadata{Height: 1})
	assert.Nil(t, err, "append error")
	assert.Equal(t, blockdigest.NewDigest(payload), digest, "content digest")

	// by location
	data, err := s.Read(loc)
	assert.Nil(t, err, "read error")
	assert.True(t, bytes.Equal(payload, data), "read round trip")

	// by identity
	data, err = s.Fetch(digest)
	assert.Nil(t, err, "fetch error")
	assert.True(t, bytes.Equal(payload, data), "fetch round trip")

	// and again, now served from the payload cache
	data, err = s.Fetch(digest)
	assert.Nil(t, err, "cached fetch error")
	assert.True(t, bytes.Equal(payload, data), "cached fetch round trip")

	_, err = s.Fetch(blockdigest.NewDigest([]byte("never stored")))
	assert.Equal(t, fault.ErrBlockNotFound, err, "phantom block")
}

func TestAppendIdempotent(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	s, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	defer s.Close()

	payload := makeBlock(7, 150)
	meta := blockstore.BlockMetadata{Height: 1}

	digest1, loc1, err := s.Append(payload, meta)
	assert.Nil(t, err, "append error")

	// the same block again writes nothing new
	digest2, loc2, err := s.Append(payload, meta)
	assert.Nil(t, err, "repeat append error")
	assert.Equal(t, digest1, digest2, "digest changed")
	assert.Equal(t, loc1, loc2, "location changed")

	// exactly one record is on disk
	info, err := os.Stat(filepath.Join(s.BlocksPath(), "blk00000.dat"))
	assert.Nil(t, err, "stat error")
	assert.Equal(t, int64(len(payload)+12), info.Size(), "duplicate was written")
}

func TestPutEntrySemantics(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	s, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	defer s.Close()

	payload := makeBlock(3, 120)
	digest, loc, err := s.Append(payload, blockstore.BlockMetadata{Height: 1})
	assert.Nil(t, err, "append error")

	meta := blockstore.BlockMetadata{Height: 1}

	// identical arguments: no-op
	err = s.PutEntry(digest, loc, meta)
	assert.Nil(t, err, "idempotent put rejected")

	gotLoc, gotMeta, found, err := s.GetEntry(digest)
	assert.Nil(t, err, "get entry error")
	assert.True(t, found, "entry lost")
	assert.Equal(t, loc, gotLoc, "location changed by idempotent put")
	assert.Equal(t, meta, gotMeta, "metadata changed by idempotent put")

	// conflicting location: refused
	conflicting := blockfile.Location{
		FileNumber: loc.FileNumber + 1,
		Offset:     0,
		Length:     loc.Length,
	}
	err = s.PutEntry(digest, conflicting, meta)
	assert.Equal(t, fault.ErrIndexEntryConflict, err, "conflicting put accepted")
	assert.True(t, fault.IsErrInvariant(err), "invariant class")

	// the original entry is untouched
	gotLoc, _, found, err = s.GetEntry(digest)
	assert.Nil(t, err, "get entry error")
	assert.True(t, found, "entry lost after conflict")
	assert.Equal(t, loc, gotLoc, "entry overwritten by conflicting put")
}

func TestIterate(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	s, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	defer s.Close()

	digests := appendChain(t, s, 5, 100)

	count := 0
	seen := make(map[blockdigest.Digest]bool)
	err = s.Iterate(func(digest blockdigest.Digest, loc blockfile.Location, meta blockstore.BlockMetadata) error {
		data, err := s.Read(loc)
		if nil != err {
			return err
		}
		if blockdigest.NewDigest(data) != digest {
			t.Errorf("entry %v does not match its data", digest)
		}
		seen[digest] = true
		count += 1
		return nil
	})
	assert.Nil(t, err, "iterate error")
	assert.Equal(t, len(digests), count, "entry count")
	for _, digest := range digests {
		assert.True(t, seen[digest], "missing digest in iteration")
	}

	// a second walk sees the same entries: the traversal restarts
	rerun := 0
	err = s.Iterate(func(blockdigest.Digest, blockfile.Location, blockstore.BlockMetadata) error {
		rerun += 1
		return nil
	})
	assert.Nil(t, err, "iterate error")
	assert.Equal(t, count, rerun, "iteration not restartable")
}

func TestIterateByHeight(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	s, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	defer s.Close()

	digests := appendChain(t, s, 6, 100)

	expectedHeight := uint64(1)
	err = s.IterateByHeight(func(height uint64, digest blockdigest.Digest) error {
		assert.Equal(t, expectedHeight, height, "height order")
		assert.Equal(t, digests[height-1], digest, "digest at height")
		expectedHeight += 1
		return nil
	})
	assert.Nil(t, err, "iterate by height error")
	assert.Equal(t, uint64(7), expectedHeight, "height count")

	height, found, err := s.LastHeight()
	assert.Nil(t, err, "last height error")
	assert.True(t, found, "no last height")
	assert.Equal(t, uint64(6), height, "last height")
}

// every operation on a closed store reports it instead of panicking
func TestUseAfterClose(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	s, err := blockstore.Initialise(blockstore.Config{
		DataDirectory: tmp,
		Chain:         chain.Regtest,
		SyncWrites:    true,
	})
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}

	payload := makeBlock(1, 100)
	digest, loc, err := s.Append(payload, blockstore.BlockMetadata{Height: 1})
	assert.Nil(t, err, "append error")

	err = s.Close()
	assert.Nil(t, err, "close error")

	_, _, err = s.Append(payload, blockstore.BlockMetadata{Height: 1})
	assert.Equal(t, fault.ErrNotInitialised, err, "append after close")

	_, err = s.Read(loc)
	assert.Equal(t, fault.ErrNotInitialised, err, "read after close")

	_, err = s.Fetch(digest)
	assert.Equal(t, fault.ErrNotInitialised, err, "fetch after close")

	_, _, _, err = s.GetEntry(digest)
	assert.Equal(t, fault.ErrNotInitialised, err, "get entry after close")

	err = s.PutEntry(digest, loc, blockstore.BlockMetadata{Height: 1})
	assert.Equal(t, fault.ErrNotInitialised, err, "put entry after close")

	err = s.Iterate(func(blockdigest.Digest, blockfile.Location, blockstore.BlockMetadata) error {
		return nil
	})
	assert.Equal(t, fault.ErrNotInitialised, err, "iterate after close")

	err = s.IterateByHeight(func(uint64, blockdigest.Digest) error {
		return nil
	})
	assert.Equal(t, fault.ErrNotInitialised, err, "iterate by height after close")

	_, _, err = s.LastHeight()
	assert.Equal(t, fault.ErrNotInitialised, err, "last height after close")

	err = s.Close()
	assert.Equal(t, fault.ErrNotInitialised, err, "double close")
}

func TestPersistenceAcrossRestart(t *testing.T) {
	tmp, cleanup := makeTempDir(t)
	defer cleanup()

	cfg := blockstore.Config{
		DataDirectory:    tmp,
		Chain:            chain.Regtest,
		MaxBlockFileSize: 1024, // force several files
		SyncWrites:       true,
	}

	s, err := blockstore.Initialise(cfg)
	if nil != err {
		t.Fatalf("initialise error: %s", err)
	}
	digests := appendChain(t, s, 12, 200)
	s.Close()

	s, err = blockstore.Initialise(cfg)
	if nil != err {
		t.Fatalf("re-initialise error: %s", err)
	}
	defer s.Close()

	for i, digest := range digests {
		data, err := s.Fetch(digest)
		if nil != err {
			t.Fatalf("fetch %d error: %s", i, err)
		}
		if !bytes.Equal(makeBlock(i, 200), data) {
			t.Errorf("payload %d mismatch after restart", i)
		}
	}

	// appending continues with strictly increasing heights
	digest, _, err := s.Append(makeBlock(100, 200), blockstore.BlockMetadata{
		Height:        13,
		PreviousBlock: digests[len(digests)-1],
	})
	assert.Nil(t, err, "append after restart error")

	data, err := s.Fetch(digest)
	assert.Nil(t, err, "fetch after restart error")
	assert.True(t, bytes.Equal(makeBlock(100, 200), data), "round trip after restart")
}
