// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	gocache "github.com/patrickmn/go-cache"

	"github.com/quillchain/quilld/blockfile"
	"github.com/quillchain/quilld/chain"
	"github.com/quillchain/quilld/fault"
	"github.com/quillchain/quilld/storage"
)

// DefaultMaxBlockFileSize - size ceiling of one flat block file
// unless configured otherwise
const DefaultMaxBlockFileSize = 128 * 1024 * 1024 // 128 MiB

// payload cache tuning
const (
	cacheTimeout    = 1 * time.Minute
	cacheExpiration = 2 * time.Minute
)

// Config - everything the engine consumes from the outside
type Config struct {
	DataDirectory    string // storage root, created on first run
	BlocksDirectory  string // optional override for the flat files, must pre-exist
	Chain            string // chain namespace, see package chain
	MaxBlockFileSize uint32 // zero selects DefaultMaxBlockFileSize
	SyncWrites       bool   // fsync every append and index commit
}

// initialisation progress, logged so a failed start names the phase
// that refused
type initState int

const (
	stateUnconfigured initState = iota
	stateRootResolved
	stateNamespaceReady
	stateStoreOpen
	stateValidated
)

var initStateNames = map[initState]string{
	stateUnconfigured:   "unconfigured",
	stateRootResolved:   "root resolved",
	stateNamespaceReady: "namespace ready",
	stateStoreOpen:      "store open",
	stateValidated:      "validated",
}

func (state initState) String() string {
	return initStateNames[state]
}

// Store - an initialised block storage engine
//
// safe for concurrent use: appends are serialised internally, reads
// and lookups may run concurrently with each other and with a single
// in-flight append
type Store struct {
	sync.Mutex // serialises Append and PutEntry

	log        *logger.L
	chainName  string
	blocksPath string // <blocks root>/<chain>/blocks
	indexPath  string // <data root>/<chain>/blocks/index
	syncWrites bool

	files *blockfile.Store
	pools *storage.PoolStore

	// recently fetched payloads, keyed by digest string
	payloadCache *gocache.Cache
}

// Initialise - bring the engine up for one chain
//
// on first run the layout beneath the roots is created; on every run
// the flat file tail is checked against the committed write cursor
// and any bytes written but never indexed are truncated away
func Initialise(cfg Config) (*Store, error) {
	log := logger.New("blockstore")
	if nil == log {
		return nil, fault.ErrInvalidLoggerChannel
	}

	state := stateUnconfigured
	log.Infof("initialising: chain: %q", cfg.Chain)

	if !chain.Valid(cfg.Chain) {
		log.Errorf("%s: invalid chain: %q", state, cfg.Chain)
		return nil, fault.ErrInvalidChain
	}

	maxFileSize := cfg.MaxBlockFileSize
	if 0 == maxFileSize {
		maxFileSize = DefaultMaxBlockFileSize
	}

	// resolve both roots before touching the disk
	dataRoot, err := resolveDataRoot(cfg.DataDirectory)
	if nil != err {
		log.Errorf("%s: data root: %s", state, err)
		return nil, err
	}
	blocksRoot, err := resolveBlocksRoot(cfg.BlocksDirectory, dataRoot)
	if nil != err {
		log.Errorf("%s: blocks root: %q  error: %s", state, cfg.BlocksDirectory, err)
		return nil, err
	}
	state = stateRootResolved
	log.Infof("%s: data: %q  blocks: %q", state, dataRoot, blocksRoot)

	// the chain subdirectories may always be created beneath the
	// validated roots
	subdirectory := chain.Subdirectory(cfg.Chain)
	blocksPath := filepath.Join(blocksRoot, subdirectory, "blocks")
	indexPath := filepath.Join(dataRoot, subdirectory, "blocks", "index")

	if err := createUnder(blocksPath); nil != err {
		log.Errorf("%s: create %q error: %s", state, blocksPath, err)
		return nil, err
	}
	if err := createUnder(indexPath); nil != err {
		log.Errorf("%s: create %q error: %s", state, indexPath, err)
		return nil, err
	}
	state = stateNamespaceReady

	pools, existing, err := storage.Open(indexPath)
	if nil != err {
		log.Errorf("%s: index open error: %s", state, err)
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			pools.Close()
		}
	}()

	files, err := blockfile.OpenStore(blocksPath, chain.Magic(cfg.Chain), maxFileSize, cfg.SyncWrites, log)
	if nil != err {
		log.Errorf("%s: flat file open error: %s", state, err)
		return nil, err
	}
	state = stateStoreOpen
	log.Infof("%s: existing index: %t", state, existing)

	s := &Store{
		log:          log,
		chainName:    cfg.Chain,
		blocksPath:   blocksPath,
		indexPath:    indexPath,
		syncWrites:   cfg.SyncWrites,
		files:        files,
		pools:        pools,
		payloadCache: gocache.New(cacheTimeout, cacheExpiration),
	}

	if err := s.recover(); nil != err {
		log.Errorf("%s: recovery error: %s", state, err)
		files.Close()
		return nil, err
	}
	state = stateValidated

	if height, found, err := s.LastHeight(); nil == err && found {
		log.Infof("%s: chain height: %d", state, height)
	} else {
		log.Infof("%s: empty chain", state)
	}

	ok = true
	return s, nil
}

// Close - flush and release everything
func (s *Store) Close() error {
	s.Lock()
	defer s.Unlock()

	if nil == s.files {
		return fault.ErrNotInitialised
	}

	err := s.files.Close()
	if poolErr := s.pools.Close(); nil == err {
		err = poolErr
	}
	s.files = nil
	s.pools = nil
	s.payloadCache.Flush()
	return err
}

// BlocksPath - the directory holding this chain's flat block files
func (s *Store) BlocksPath() string {
	return s.blocksPath
}

// IndexPath - the directory holding this chain's index database
func (s *Store) IndexPath() string {
	return s.indexPath
}
