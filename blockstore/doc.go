// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockstore - the durable block storage engine
//
// composes the flat block files (package blockfile) with the
// persistent block index (package storage) beneath a per-chain
// subdirectory of the storage roots:
//
//	<blocks root>/<chain>/blocks/blk00000.dat ...
//	<data root>/<chain>/blocks/index/         (LevelDB)
//
// the data root is created on first run; an operator supplied blocks
// root must already exist and is never created silently - a typo must
// not start a node over an empty, unintended directory
//
// every write is one logical transaction: the record is flushed to
// its flat file before the index entry and the write cursor commit in
// a single batch, so after a crash either both are observable or the
// unindexed tail bytes are truncated away on the next start
//
// the engine is an explicit handle constructed once at startup and
// passed to every consumer; there are no package globals
package blockstore
