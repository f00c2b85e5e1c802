// SPDX-License-Identifier: ISC
// Copyright (c) 2018-2020 Quillchain Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage - the persistent ordered key-value layer under the
// block index
//
// a single LevelDB database partitioned into pools by a one byte key
// prefix; every pool supports direct reads and ordered traversal and
// all writes for one logical transaction are gathered into a batch so
// that they commit atomically
//
// the database carries a schema version under a reserved metadata key
// and refuses to open databases written by a newer program
package storage
