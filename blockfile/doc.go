// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockfile - append-only flat files holding raw block records
//
// blocks are appended to a sequence of numbered files named
// blk00000.dat, blk00001.dat, ... in a single directory; when a file
// would exceed the configured size ceiling it is synced, closed and
// the next file number is started - file numbers are never reused
//
// each record is framed as
//
//	magic(4) | payload length(4) | payload | CRC-32 Castagnoli(4)
//
// the magic number identifies the chain namespace so a file misplaced
// between namespaces is detected; the checksum covers everything
// before it
//
// the caller must serialise Append; Read supports multiple concurrent
// readers over a bounded cache of read-only file handles
package blockfile
